// Package registry keeps the table of game servers that passed the challenge handshake.
package registry

import (
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/woozymasta/srcmaster/internal/protocol"
)

// Entry is one registered server.
type Entry struct {
	LastHeartbeat time.Time
	Info          protocol.ServerInfo
	Addr          netip.AddrPort
	Trusted       bool // address is on the operator whitelist
}

// Address implements filter.Server.
func (e *Entry) Address() netip.AddrPort { return e.Addr }

// ServerInfo implements filter.Server.
func (e *Entry) ServerInfo() *protocol.ServerInfo { return &e.Info }

// Whitelisted implements filter.Server.
func (e *Entry) Whitelisted() bool { return e.Trusted }

// Registry maps server addresses to entries. Entries are visible while
// now - LastHeartbeat < ttl.
type Registry struct {
	entries map[netip.AddrPort]Entry
	sorted  []Entry // cached canonical ordering, nil after any write
	ttl     time.Duration
	mu      sync.RWMutex
}

// New creates an empty registry.
func New(ttl time.Duration) *Registry {
	return &Registry{
		entries: make(map[netip.AddrPort]Entry),
		ttl:     ttl,
	}
}

// TTL returns the server time to live.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Upsert inserts or overwrites the entry for addr and reports whether it was new.
func (r *Registry) Upsert(addr netip.AddrPort, info protocol.ServerInfo, trusted bool, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.entries[addr]
	r.entries[addr] = Entry{
		Addr:          addr,
		Info:          info,
		LastHeartbeat: now,
		Trusted:       trusted,
	}
	r.sorted = nil

	return !exists
}

// Get returns the live entry for addr.
func (r *Registry) Get(addr netip.AddrPort, now time.Time) (Entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[addr]
	r.mu.RUnlock()

	if !ok || !r.live(&e, now) {
		return Entry{}, false
	}

	return e, true
}

// Remove deletes the entry for addr and reports whether it existed.
func (r *Registry) Remove(addr netip.AddrPort) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[addr]; !ok {
		return false
	}
	delete(r.entries, addr)
	r.sorted = nil

	return true
}

// Snapshot returns the live entries ordered by IP then port. The returned slice is owned
// by the caller.
func (r *Registry) Snapshot(now time.Time) []Entry {
	all := r.ordered()

	out := make([]Entry, 0, len(all))
	for i := range all {
		if r.live(&all[i], now) {
			out = append(out, all[i])
		}
	}

	return out
}

// Sweep removes expired entries and returns how many were dropped.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for addr, e := range r.entries {
		if !r.live(&e, now) {
			delete(r.entries, addr)
			removed++
		}
	}
	if removed > 0 {
		r.sorted = nil
	}

	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

func (r *Registry) live(e *Entry, now time.Time) bool {
	return now.Sub(e.LastHeartbeat) < r.ttl
}

// ordered returns the cached sorted view, rebuilding it after writes.
// The cached slice is never modified in place.
func (r *Registry) ordered() []Entry {
	r.mu.RLock()
	sorted := r.sorted
	r.mu.RUnlock()
	if sorted != nil {
		return sorted
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sorted == nil {
		sorted = make([]Entry, 0, len(r.entries))
		for _, e := range r.entries {
			sorted = append(sorted, e)
		}
		slices.SortFunc(sorted, func(a, b Entry) int {
			return a.Addr.Compare(b.Addr)
		})
		r.sorted = sorted
	}

	return r.sorted
}
