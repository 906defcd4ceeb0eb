// Package master ties the codec, the challenge and server registries and the filter engine
// together: it turns one inbound datagram into at most one reply.
package master

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcmaster/internal/challenge"
	"github.com/woozymasta/srcmaster/internal/filter"
	"github.com/woozymasta/srcmaster/internal/protocol"
	"github.com/woozymasta/srcmaster/internal/registry"
)

// Reasons a datagram is dropped without a reply.
var (
	ErrSource      = errors.New("source address is not IPv4")
	ErrAuth        = errors.New("challenge mismatch")
	ErrGameDir     = errors.New("gamedir not allowed")
	ErrShutdown    = errors.New("shutdown not accepted")
	ErrUnsupported = errors.New("unexpected message")
)

// RegionResolver guesses the region of a server that did not report one.
type RegionResolver interface {
	Region(ip netip.Addr) (protocol.Region, bool)
}

// Options configure an Engine. Zero values select defaults.
type Options struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// Regions fills in the region of heartbeats that carry none. Optional.
	Regions RegionResolver

	// AllowedGameDirs restricts registration to these game directories. Empty allows all.
	AllowedGameDirs []string

	// Whitelist marks servers inside these networks for the "white" filter key.
	Whitelist []netip.Prefix

	// MaxPacketSize bounds the size of a list reply. Defaults to protocol.MaxPacketSize.
	MaxPacketSize int

	// AcceptShutdown lets a registered server remove itself with a shutdown message.
	AcceptShutdown bool
}

// Engine handles master server traffic. It is safe for concurrent use.
type Engine struct {
	// challenges holds the values issued to servers awaiting their first heartbeat.
	challenges *challenge.Registry

	// servers is the table served to clients.
	servers *registry.Registry

	// regions resolves the region of heartbeats without one. It can be nil.
	regions RegionResolver

	// clock is the time source for every TTL decision.
	clock func() time.Time

	// allowedDirs is a set of hashed lowercase gamedirs (using xxhash). Empty allows all.
	allowedDirs map[uint64]struct{}

	whitelist []netip.Prefix

	stats Stats

	started time.Time

	maxPacket int

	acceptShutdown bool
}

// New creates an Engine over the given registries.
func New(challenges *challenge.Registry, servers *registry.Registry, opts Options) *Engine {
	e := &Engine{
		challenges:     challenges,
		servers:        servers,
		regions:        opts.Regions,
		clock:          opts.Clock,
		whitelist:      opts.Whitelist,
		maxPacket:      opts.MaxPacketSize,
		acceptShutdown: opts.AcceptShutdown,
		allowedDirs:    make(map[uint64]struct{}, len(opts.AllowedGameDirs)),
	}

	if e.clock == nil {
		e.clock = time.Now
	}
	if e.maxPacket <= 0 {
		e.maxPacket = protocol.MaxPacketSize
	}
	for _, dir := range opts.AllowedGameDirs {
		e.allowedDirs[xxhash.Sum64String(strings.ToLower(dir))] = struct{}{}
	}
	e.started = e.clock()

	return e
}

// Servers returns the server registry.
func (e *Engine) Servers() *registry.Registry {
	return e.servers
}

// Challenges returns the challenge registry.
func (e *Engine) Challenges() *challenge.Registry {
	return e.challenges
}

// Now returns the engine clock reading.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// HandlePacket processes one datagram from addr. A nil reply with a nil error means the
// message was accepted and needs no answer. Any error means the datagram was dropped.
func (e *Engine) HandlePacket(from netip.AddrPort, data []byte) ([]byte, error) {
	e.stats.Packets.Add(1)

	from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
	if !from.Addr().Is4() {
		e.stats.Dropped.Add(1)
		return nil, ErrSource
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		e.stats.Malformed.Add(1)
		e.stats.Dropped.Add(1)
		return nil, err
	}

	reply, err := e.dispatch(from, msg)
	if err != nil {
		e.stats.Dropped.Add(1)
		return nil, err
	}

	return reply, nil
}

func (e *Engine) dispatch(from netip.AddrPort, msg protocol.Message) ([]byte, error) {
	now := e.clock()

	switch m := msg.(type) {
	case protocol.ChallengeRequest:
		return e.handleChallenge(from, m, now)
	case protocol.Heartbeat:
		return nil, e.handleHeartbeat(from, m, now)
	case protocol.Shutdown:
		return nil, e.handleShutdown(from)
	case protocol.Query:
		return e.handleQuery(m, now)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, msg)
	}
}

func (e *Engine) handleChallenge(from netip.AddrPort, m protocol.ChallengeRequest, now time.Time) ([]byte, error) {
	value, err := e.challenges.Issue(from, now)
	if err != nil {
		return nil, err
	}
	e.stats.Challenges.Add(1)

	log.Trace().Str("addr", from.String()).Uint32("challenge", value).Msg("Challenge issued")

	return protocol.Encode(protocol.ChallengeReply{
		Challenge:          value,
		ServerChallenge:    m.ServerChallenge,
		HasServerChallenge: m.HasServerChallenge,
	})
}

func (e *Engine) handleHeartbeat(from netip.AddrPort, m protocol.Heartbeat, now time.Time) error {
	if !m.HasChallenge || !e.challenges.Consume(from, m.Challenge, now) {
		e.stats.AuthFailures.Add(1)
		return ErrAuth
	}

	info := m.Info
	if len(e.allowedDirs) > 0 {
		if _, ok := e.allowedDirs[xxhash.Sum64String(strings.ToLower(info.GameDir))]; !ok {
			return fmt.Errorf("%w: %q", ErrGameDir, info.GameDir)
		}
	}

	if !info.HasRegion && e.regions != nil {
		if region, ok := e.regions.Region(from.Addr()); ok {
			info.Region = region
		}
	}

	if e.servers.Upsert(from, info, e.trusted(from.Addr()), now) {
		log.Debug().
			Str("addr", from.String()).
			Str("gamedir", info.GameDir).
			Str("map", info.Map).
			Stringer("region", info.Region).
			Msg("Server registered")
	}
	e.stats.Heartbeats.Add(1)

	return nil
}

func (e *Engine) handleShutdown(from netip.AddrPort) error {
	if !e.acceptShutdown || !e.servers.Remove(from) {
		return ErrShutdown
	}

	log.Debug().Str("addr", from.String()).Msg("Server removed on shutdown")

	return nil
}

func (e *Engine) handleQuery(m protocol.Query, now time.Time) ([]byte, error) {
	f, err := filter.Parse(m.Filter)
	if err != nil {
		e.stats.BadFilters.Add(1)
		return nil, err
	}
	e.stats.Queries.Add(1)

	reply := Respond(m.Region, f, m.Cursor, e.servers.Snapshot(now), e.maxPacket)

	return protocol.Encode(reply)
}

func (e *Engine) trusted(ip netip.Addr) bool {
	for _, p := range e.whitelist {
		if p.Contains(ip) {
			return true
		}
	}

	return false
}

// Stats are monotonic traffic counters.
type Stats struct {
	Packets      atomic.Uint64
	Dropped      atomic.Uint64
	Malformed    atomic.Uint64
	Challenges   atomic.Uint64
	Heartbeats   atomic.Uint64
	AuthFailures atomic.Uint64
	Queries      atomic.Uint64
	BadFilters   atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the engine counters and table sizes.
type StatsSnapshot struct {
	Uptime       time.Duration
	Packets      uint64
	Dropped      uint64
	Malformed    uint64
	Challenges   uint64
	Heartbeats   uint64
	AuthFailures uint64
	Queries      uint64
	BadFilters   uint64
	Servers      int
	Pending      int
}

// Stats returns the current counters.
func (e *Engine) Stats() StatsSnapshot {
	return StatsSnapshot{
		Uptime:       e.clock().Sub(e.started),
		Packets:      e.stats.Packets.Load(),
		Dropped:      e.stats.Dropped.Load(),
		Malformed:    e.stats.Malformed.Load(),
		Challenges:   e.stats.Challenges.Load(),
		Heartbeats:   e.stats.Heartbeats.Load(),
		AuthFailures: e.stats.AuthFailures.Load(),
		Queries:      e.stats.Queries.Load(),
		BadFilters:   e.stats.BadFilters.Load(),
		Servers:      e.servers.Len(),
		Pending:      e.challenges.Len(),
	}
}
