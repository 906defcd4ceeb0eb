package master

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/woozymasta/srcmaster/internal/filter"
	"github.com/woozymasta/srcmaster/internal/protocol"
	"github.com/woozymasta/srcmaster/internal/registry"
)

var t0 = time.Unix(1_700_000_000, 0)

func fill(r *registry.Registry, n int, info protocol.ServerInfo) []netip.AddrPort {
	addrs := make([]netip.AddrPort, 0, n)
	for i := 0; i < n; i++ {
		a := netip.MustParseAddrPort(fmt.Sprintf("10.%d.%d.1:%d", i/250, i%250, 27015+i%3))
		r.Upsert(a, info, false, t0)
		addrs = append(addrs, a)
	}
	return addrs
}

// walk pages through the whole list the way a client does and returns every address seen.
func walk(t *testing.T, region protocol.Region, f *filter.Filter, snap []registry.Entry, maxPacket int) (seen []netip.AddrPort, pages int) {
	t.Helper()

	cursor := protocol.ZeroAddr
	for pages = 1; pages < 1000; pages++ {
		reply := Respond(region, f, cursor, snap, maxPacket)

		wire, err := protocol.Encode(reply)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(wire) > maxPacket {
			t.Fatalf("page %d is %d bytes, limit %d", pages, len(wire), maxPacket)
		}

		seen = append(seen, reply.Servers...)
		if reply.Done {
			return seen, pages
		}
		if len(reply.Servers) == 0 {
			t.Fatal("empty page without terminator")
		}
		cursor = reply.Servers[len(reply.Servers)-1]
	}

	t.Fatal("pagination did not terminate")
	return nil, 0
}

func TestPaginationExhaustive(t *testing.T) {
	for _, n := range []int{0, 1, 82, 83, 84, 166, 500} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			r := registry.New(time.Minute)
			fill(r, n, protocol.ServerInfo{GameDir: "cstrike", Region: protocol.RegionEurope})
			snap := r.Snapshot(t0)

			seen, pages := walk(t, protocol.RegionAll, nil, snap, protocol.MaxPacketSize)

			if len(seen) != n {
				t.Fatalf("got %d entries, want %d", len(seen), n)
			}
			for i := range seen {
				if seen[i] != snap[i].Addr {
					t.Fatalf("entry %d = %s, want %s", i, seen[i], snap[i].Addr)
				}
			}

			wantPages := n/83 + 1
			if n > 0 && n%83 == 0 {
				wantPages = n / 83
			}
			if pages != wantPages {
				t.Errorf("pages = %d, want %d", pages, wantPages)
			}
		})
	}
}

func TestPaginationSmallPackets(t *testing.T) {
	r := registry.New(time.Minute)
	fill(r, 20, protocol.ServerInfo{GameDir: "tf"})
	snap := r.Snapshot(t0)

	// header + 3 entries + sentinel
	maxPacket := 6 + 3*6 + 6
	seen, pages := walk(t, protocol.RegionAll, nil, snap, maxPacket)
	if len(seen) != 20 {
		t.Errorf("got %d entries, want 20", len(seen))
	}
	if pages != 7 {
		t.Errorf("pages = %d, want 7", pages)
	}
}

func TestPaginationFiltered(t *testing.T) {
	r := registry.New(time.Minute)
	fill(r, 100, protocol.ServerInfo{GameDir: "cstrike", Map: "de_dust2"})
	fill(r, 10, protocol.ServerInfo{GameDir: "tf", Map: "ctf_2fort"}) // overwrites the first ten
	snap := r.Snapshot(t0)

	f, err := filter.Parse(`\gamedir\cstrike`)
	if err != nil {
		t.Fatal(err)
	}

	seen, _ := walk(t, protocol.RegionAll, f, snap, protocol.MaxPacketSize)
	if len(seen) != 90 {
		t.Fatalf("got %d entries, want 90", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1].Compare(seen[i]) >= 0 {
			t.Fatalf("entries out of order at %d: %s, %s", i, seen[i-1], seen[i])
		}
	}
}

func TestRespondRegion(t *testing.T) {
	r := registry.New(time.Minute)
	eu := netip.MustParseAddrPort("10.0.0.1:27015")
	asia := netip.MustParseAddrPort("10.0.0.2:27015")
	r.Upsert(eu, protocol.ServerInfo{Region: protocol.RegionEurope}, false, t0)
	r.Upsert(asia, protocol.ServerInfo{Region: protocol.RegionAsia}, false, t0)
	snap := r.Snapshot(t0)

	reply := Respond(protocol.RegionEurope, nil, protocol.ZeroAddr, snap, protocol.MaxPacketSize)
	if len(reply.Servers) != 1 || reply.Servers[0] != eu || !reply.Done {
		t.Errorf("europe reply = %+v", reply)
	}

	reply = Respond(protocol.RegionAll, nil, protocol.ZeroAddr, snap, protocol.MaxPacketSize)
	if len(reply.Servers) != 2 {
		t.Errorf("world reply has %d servers, want 2", len(reply.Servers))
	}
}

func TestRespondCursorNotFound(t *testing.T) {
	r := registry.New(time.Minute)
	for _, a := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		r.Upsert(netip.MustParseAddrPort(a), protocol.ServerInfo{GameDir: "tf"}, false, t0)
	}
	r.Upsert(netip.MustParseAddrPort("10.0.0.4:1"), protocol.ServerInfo{GameDir: "cstrike"}, false, t0)
	snap := r.Snapshot(t0)

	tf, err := filter.Parse(`\gamedir\tf`)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		cursor string
		f      *filter.Filter
		want   []string
	}{
		{"found", "10.0.0.2:1", tf, []string{"10.0.0.3:1"}},
		{"not registered", "10.0.0.2:9", tf, []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"}},
		{"past the end", "255.255.255.255:65535", tf, []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"}},
		{"filtered out", "10.0.0.4:1", tf, []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"}},
		{"unfiltered", "10.0.0.3:1", nil, []string{"10.0.0.4:1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := Respond(protocol.RegionAll, tt.f, netip.MustParseAddrPort(tt.cursor), snap, protocol.MaxPacketSize)
			if !reply.Done || len(reply.Servers) != len(tt.want) {
				t.Fatalf("reply = %+v, want %v", reply, tt.want)
			}
			for i := range tt.want {
				if reply.Servers[i].String() != tt.want[i] {
					t.Errorf("entry %d = %s, want %s", i, reply.Servers[i], tt.want[i])
				}
			}
		})
	}
}

func TestRespondCursorOtherRegion(t *testing.T) {
	r := registry.New(time.Minute)
	eu := netip.MustParseAddrPort("10.0.0.1:27015")
	asia := netip.MustParseAddrPort("10.0.0.2:27015")
	r.Upsert(eu, protocol.ServerInfo{Region: protocol.RegionEurope}, false, t0)
	r.Upsert(asia, protocol.ServerInfo{Region: protocol.RegionAsia}, false, t0)
	snap := r.Snapshot(t0)

	// the asia server is not in the europe subset, so the walk restarts
	reply := Respond(protocol.RegionEurope, nil, asia, snap, protocol.MaxPacketSize)
	if len(reply.Servers) != 1 || reply.Servers[0] != eu || !reply.Done {
		t.Errorf("reply = %+v", reply)
	}
}

func TestRespondCollapse(t *testing.T) {
	r := registry.New(time.Minute)
	for _, a := range []string{"10.0.0.1:27017", "10.0.0.1:27015", "10.0.0.1:27016", "10.0.0.2:27015", "10.0.0.3:1", "10.0.0.3:2"} {
		r.Upsert(netip.MustParseAddrPort(a), protocol.ServerInfo{GameDir: "tf"}, false, t0)
	}
	snap := r.Snapshot(t0)

	f, err := filter.Parse(`\collapse_addr_hash\1`)
	if err != nil {
		t.Fatal(err)
	}

	seen, _ := walk(t, protocol.RegionAll, f, snap, 6+6+6) // one entry per page
	want := []string{"10.0.0.1:27015", "10.0.0.2:27015", "10.0.0.3:1"}
	if len(seen) != len(want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i].String() != want[i] {
			t.Errorf("entry %d = %s, want %s", i, seen[i], want[i])
		}
	}

	// a second port of a collapsed IP is not in the list, so it restarts the walk
	reply := Respond(protocol.RegionAll, f, netip.MustParseAddrPort("10.0.0.1:27016"), snap, protocol.MaxPacketSize)
	if len(reply.Servers) != 3 || reply.Servers[0].String() != "10.0.0.1:27015" {
		t.Errorf("reply after collapsed cursor = %v", reply.Servers)
	}
}
