package ratelimit

import (
	"net/netip"
	"testing"
	"time"
)

func TestAllow(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	l := New(3, time.Second)
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")

	for i := 0; i < 3; i++ {
		if !l.Allow(a, t0) {
			t.Fatalf("event %d rejected within burst", i)
		}
	}
	if l.Allow(a, t0) {
		t.Error("event over burst allowed")
	}
	if !l.Allow(b, t0) {
		t.Error("other address limited")
	}
	if !l.Allow(a, t0.Add(time.Second/2)) {
		t.Error("token not refilled after half a window")
	}
}

func TestCleanup(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	l := New(1, time.Second)

	l.Allow(netip.MustParseAddr("10.0.0.1"), t0)
	l.Allow(netip.MustParseAddr("10.0.0.2"), t0.Add(8*time.Second))

	if n := l.Cleanup(t0.Add(11 * time.Second)); n != 1 {
		t.Errorf("Cleanup removed %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}
