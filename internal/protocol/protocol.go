// Package protocol implements the wire format of the Source/GoldSrc master server protocol:
// challenge exchange, server heartbeats, and paginated server list queries.
package protocol

import (
	"fmt"
	"net/netip"
)

const (
	// MaxPacketSize is the default maximum size of a single UDP datagram payload.
	MaxPacketSize = 512

	// EntrySize is the size of one server address in a list reply (IPv4 octets + big-endian port).
	EntrySize = 6
)

var (
	challengeReplyHeader = []byte("\xff\xff\xff\xffs\n")
	serverListHeader     = []byte("\xff\xff\xff\xfff\n")
	serverListEnd        = [EntrySize]byte{}
)

// ZeroAddr is the "0.0.0.0:0" sentinel used both as the first-page cursor and as the list terminator.
var ZeroAddr = netip.AddrPortFrom(netip.IPv4Unspecified(), 0)

// IsZeroAddr reports whether addr is the pagination sentinel (or unset).
func IsZeroAddr(addr netip.AddrPort) bool {
	return !addr.IsValid() || addr == ZeroAddr
}

// ListCapacity returns how many server entries fit into one list reply of maxPacket bytes,
// always leaving room for the terminating sentinel.
func ListCapacity(maxPacket int) int {
	n := (maxPacket - len(serverListHeader) - EntrySize) / EntrySize
	if n < 1 {
		return 1
	}

	return n
}

// Region is a coarse geographic selector.
type Region uint8

// Known regions. RegionAll in a query matches servers of every region.
const (
	RegionUSEast       Region = 0x00
	RegionUSWest       Region = 0x01
	RegionSouthAmerica Region = 0x02
	RegionEurope       Region = 0x03
	RegionAsia         Region = 0x04
	RegionAustralia    Region = 0x05
	RegionMiddleEast   Region = 0x06
	RegionAfrica       Region = 0x07
	RegionAll          Region = 0xff
)

// ParseRegion validates a raw region code.
func ParseRegion(b byte) (Region, bool) {
	r := Region(b)
	if r <= RegionAfrica || r == RegionAll {
		return r, true
	}

	return 0, false
}

// Matches reports whether a server registered in region server is selected by the query region r.
func (r Region) Matches(server Region) bool {
	return r == RegionAll || r == server
}

func (r Region) String() string {
	switch r {
	case RegionUSEast:
		return "us-east"
	case RegionUSWest:
		return "us-west"
	case RegionSouthAmerica:
		return "south-america"
	case RegionEurope:
		return "europe"
	case RegionAsia:
		return "asia"
	case RegionAustralia:
		return "australia"
	case RegionMiddleEast:
		return "middle-east"
	case RegionAfrica:
		return "africa"
	case RegionAll:
		return "world"
	default:
		return fmt.Sprintf("region(%d)", uint8(r))
	}
}

// Message is one of the fixed set of protocol messages:
// ChallengeRequest, ChallengeReply, Heartbeat, Shutdown, Query, QueryReply.
type Message interface {
	message()
}

// ChallengeRequest asks the master for an anti-spoof challenge.
// Newer servers attach their own challenge, which the master echoes back.
type ChallengeRequest struct {
	ServerChallenge    uint32
	HasServerChallenge bool
}

// ChallengeReply carries the challenge the server must put into its next heartbeat.
type ChallengeReply struct {
	Challenge          uint32
	ServerChallenge    uint32
	HasServerChallenge bool
}

// Heartbeat is a server announcing itself.
type Heartbeat struct {
	Info         ServerInfo
	Challenge    uint32
	HasChallenge bool
}

// Shutdown is a server asking to be removed from the list.
type Shutdown struct{}

// Query is a client request for one page of the server list.
type Query struct {
	// Cursor is the last address the client received, ZeroAddr for the first page.
	Cursor netip.AddrPort
	Filter string
	Region Region
}

// QueryReply is one page of the server list. Done marks the final page.
type QueryReply struct {
	Servers []netip.AddrPort
	Done    bool
}

func (ChallengeRequest) message() {}
func (ChallengeReply) message()   {}
func (Heartbeat) message()        {}
func (Shutdown) message()         {}
func (Query) message()            {}
func (QueryReply) message()       {}
