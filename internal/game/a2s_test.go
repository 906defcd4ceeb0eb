package game

import (
	"errors"
	"net/netip"
	"sync/atomic"
	"testing"

	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/srcmaster/internal/config"
)

func TestProbeAll(t *testing.T) {
	addrs := []netip.AddrPort{
		netip.MustParseAddrPort("10.0.0.1:27015"),
		netip.MustParseAddrPort("10.0.0.2:27015"),
		netip.MustParseAddrPort("10.0.0.3:27015"),
		netip.MustParseAddrPort("10.0.0.4:27015"),
	}
	down := addrs[2]
	errDown := errors.New("timeout")

	var calls atomic.Int32
	query := func(addr netip.AddrPort, _ config.A2S) (*a2s.Info, error) {
		calls.Add(1)
		if addr == down {
			return nil, errDown
		}
		return &a2s.Info{Name: addr.String()}, nil
	}

	results := ProbeAll(addrs, config.A2S{}, 3, query)

	if int(calls.Load()) != len(addrs) {
		t.Errorf("queried %d servers, want %d", calls.Load(), len(addrs))
	}
	for i, r := range results {
		if r.Addr != addrs[i] {
			t.Errorf("result %d is for %s, want %s", i, r.Addr, addrs[i])
		}
		if r.Addr == down {
			if !errors.Is(r.Err, errDown) {
				t.Errorf("down server err = %v", r.Err)
			}
			continue
		}
		if r.Err != nil || r.Info == nil || r.Info.Name != r.Addr.String() {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestProbeAllEmpty(t *testing.T) {
	if got := ProbeAll(nil, config.A2S{}, 0, func(netip.AddrPort, config.A2S) (*a2s.Info, error) {
		t.Error("query called")
		return nil, nil
	}); len(got) != 0 {
		t.Errorf("got %d results", len(got))
	}
}
