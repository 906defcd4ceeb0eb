package master

import (
	"net/netip"
	"slices"

	"github.com/woozymasta/srcmaster/internal/filter"
	"github.com/woozymasta/srcmaster/internal/protocol"
	"github.com/woozymasta/srcmaster/internal/registry"
)

// Respond builds the single list page answering a query. Entries are taken from snapshot,
// which must be in canonical address order, starting right after cursor within the matching
// subset. A cursor that is not part of that subset restarts the list from its beginning.
// The page holds as many matches as fit into maxPacket bytes and is marked Done when no
// match is left.
func Respond(region protocol.Region, f *filter.Filter, cursor netip.AddrPort, snapshot []registry.Entry, maxPacket int) protocol.QueryReply {
	capacity := protocol.ListCapacity(maxPacket)
	collapse := f.CollapseAddr()

	start := 0
	var lastIP netip.Addr
	if i, ok := locate(region, f, cursor, snapshot); ok {
		start = i + 1
		lastIP = cursor.Addr()
	}

	reply := protocol.QueryReply{Servers: make([]netip.AddrPort, 0, min(capacity, len(snapshot)-start))}

	for i := start; i < len(snapshot); i++ {
		e := &snapshot[i]
		if collapse && e.Addr.Addr() == lastIP {
			continue
		}
		if !selected(region, f, e) {
			continue
		}

		if len(reply.Servers) == capacity {
			// at least one more match exists, so this page is not the last
			return reply
		}
		reply.Servers = append(reply.Servers, e.Addr)
		lastIP = e.Addr.Addr()
	}

	reply.Done = true

	return reply
}

// locate returns the snapshot index of cursor if it belongs to the subset selected by
// region and f.
func locate(region protocol.Region, f *filter.Filter, cursor netip.AddrPort, snapshot []registry.Entry) (int, bool) {
	if protocol.IsZeroAddr(cursor) {
		return 0, false
	}

	i, found := slices.BinarySearchFunc(snapshot, cursor, func(e registry.Entry, c netip.AddrPort) int {
		return e.Addr.Compare(c)
	})
	if !found || !selected(region, f, &snapshot[i]) {
		return 0, false
	}

	// collapsed lists hold only the first selected server of each IP
	if f.CollapseAddr() {
		ip := cursor.Addr()
		for j := i - 1; j >= 0 && snapshot[j].Addr.Addr() == ip; j-- {
			if selected(region, f, &snapshot[j]) {
				return 0, false
			}
		}
	}

	return i, true
}

func selected(region protocol.Region, f *filter.Filter, e *registry.Entry) bool {
	return region.Matches(e.Info.Region) && f.Match(e)
}
