package registry

import (
	"net/netip"
	"testing"
	"time"

	"github.com/woozymasta/srcmaster/internal/protocol"
)

var t0 = time.Unix(1_700_000_000, 0)

func info(gamedir, mapName string) protocol.ServerInfo {
	return protocol.ServerInfo{GameDir: gamedir, Map: mapName, Region: protocol.RegionAll}
}

func contains(entries []Entry, addr netip.AddrPort) bool {
	for _, e := range entries {
		if e.Addr == addr {
			return true
		}
	}
	return false
}

func TestTTL(t *testing.T) {
	ttl := 300 * time.Second
	r := New(ttl)
	s := netip.MustParseAddrPort("203.0.113.5:27015")

	r.Upsert(s, info("tf", "ctf_2fort"), false, t0)

	if !contains(r.Snapshot(t0.Add(ttl-time.Second)), s) {
		t.Error("entry missing before ttl")
	}
	if contains(r.Snapshot(t0.Add(ttl+time.Second)), s) {
		t.Error("entry served after ttl")
	}
	if _, ok := r.Get(s, t0.Add(ttl)); ok {
		t.Error("Get returned an expired entry")
	}

	// snapshot filtering does not depend on sweeping
	if r.Len() != 1 {
		t.Errorf("Len = %d before sweep, want 1", r.Len())
	}
	if n := r.Sweep(t0.Add(ttl)); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d after sweep, want 0", r.Len())
	}
}

func TestUpsertIdempotent(t *testing.T) {
	r := New(time.Minute)
	a := netip.MustParseAddrPort("10.0.0.1:27015")
	b := netip.MustParseAddrPort("10.0.0.2:27015")

	if !r.Upsert(a, info("cstrike", "de_dust2"), false, t0) {
		t.Error("first upsert not reported as new")
	}
	for i := 0; i < 5; i++ {
		if r.Upsert(a, info("cstrike", "de_dust2"), false, t0) {
			t.Error("repeated upsert reported as new")
		}
	}
	r.Upsert(b, info("cstrike", "de_dust2"), false, t0)

	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	if got := len(r.Snapshot(t0)); got != 2 {
		t.Errorf("snapshot has %d entries, want 2", got)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	r := New(time.Minute)
	a := netip.MustParseAddrPort("10.0.0.1:27015")

	r.Upsert(a, info("cstrike", "de_dust2"), false, t0)
	r.Upsert(a, info("cstrike", "cs_office"), true, t0.Add(50*time.Second))

	e, ok := r.Get(a, t0.Add(90*time.Second))
	if !ok {
		t.Fatal("refreshed entry expired")
	}
	if e.Info.Map != "cs_office" || !e.Trusted {
		t.Errorf("entry not overwritten: %+v", e)
	}
}

func TestSnapshotOrder(t *testing.T) {
	r := New(time.Minute)
	addrs := []string{
		"192.168.0.1:27016",
		"10.0.0.2:1",
		"192.168.0.1:27015",
		"10.0.0.10:5",
		"9.255.255.255:65535",
	}
	for _, a := range addrs {
		r.Upsert(netip.MustParseAddrPort(a), info("hl2mp", "dm_lockdown"), false, t0)
	}

	want := []string{
		"9.255.255.255:65535",
		"10.0.0.2:1",
		"10.0.0.10:5",
		"192.168.0.1:27015",
		"192.168.0.1:27016",
	}

	snap := r.Snapshot(t0)
	if len(snap) != len(want) {
		t.Fatalf("snapshot has %d entries, want %d", len(snap), len(want))
	}
	for i, e := range snap {
		if e.Addr.String() != want[i] {
			t.Errorf("snapshot[%d] = %s, want %s", i, e.Addr, want[i])
		}
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := New(time.Minute)
	a := netip.MustParseAddrPort("10.0.0.1:27015")
	r.Upsert(a, info("tf", "ctf_2fort"), false, t0)

	snap := r.Snapshot(t0)
	snap[0].Info.Map = "changed"

	r.Upsert(netip.MustParseAddrPort("10.0.0.2:27015"), info("tf", "pl_badwater"), false, t0)

	if e, _ := r.Get(a, t0); e.Info.Map != "ctf_2fort" {
		t.Errorf("snapshot write leaked into registry: %q", e.Info.Map)
	}
	if len(snap) != 1 {
		t.Errorf("old snapshot grew to %d entries", len(snap))
	}
}

func TestRemove(t *testing.T) {
	r := New(time.Minute)
	a := netip.MustParseAddrPort("10.0.0.1:27015")
	r.Upsert(a, info("tf", "ctf_2fort"), false, t0)

	if !r.Remove(a) {
		t.Error("Remove of registered address returned false")
	}
	if r.Remove(a) {
		t.Error("second Remove returned true")
	}
	if len(r.Snapshot(t0)) != 0 {
		t.Error("removed entry still in snapshot")
	}
}
