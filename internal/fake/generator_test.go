package fake

import (
	"testing"
	"time"

	"github.com/woozymasta/srcmaster/internal/registry"
)

func TestGenerate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reg := registry.New(5 * time.Minute)

	addrs := Generate(reg, 200, now)

	if len(addrs) == 0 || len(addrs) > 200 {
		t.Fatalf("created %d servers", len(addrs))
	}
	if reg.Len() != len(addrs) {
		t.Errorf("registry has %d entries, generator reported %d", reg.Len(), len(addrs))
	}

	for _, e := range reg.Snapshot(now) {
		if !e.Addr.Addr().Is4() {
			t.Errorf("non IPv4 address %s", e.Addr)
		}
		if e.Info.Players > e.Info.MaxPlayers {
			t.Errorf("%s: %d/%d players", e.Addr, e.Info.Players, e.Info.MaxPlayers)
		}
		if e.Info.GameDir == "" || e.Info.Map == "" {
			t.Errorf("%s: incomplete info %+v", e.Addr, e.Info)
		}
	}

	if got := len(reg.Snapshot(now)); got != reg.Len() {
		t.Errorf("%d of %d generated servers are live", got, reg.Len())
	}
}
