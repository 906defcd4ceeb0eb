package models

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/srcmaster/internal/master"
	"github.com/woozymasta/srcmaster/internal/protocol"
	"github.com/woozymasta/srcmaster/internal/registry"
)

func TestNewServer(t *testing.T) {
	e := &registry.Entry{
		Addr:          netip.MustParseAddrPort("203.0.113.5:27015"),
		LastHeartbeat: time.Unix(1000, 0),
		Trusted:       true,
		Info: protocol.ServerInfo{
			GameDir:    "tf",
			Map:        "ctf_2fort",
			Players:    12,
			MaxPlayers: 24,
			Region:     protocol.RegionEurope,
			Type:       protocol.ServerDedicated,
			OS:         protocol.OSLinux,
			Flags:      protocol.FlagSecure | protocol.FlagBots,
		},
	}

	got := NewServer(e)
	if got.Address != "203.0.113.5:27015" || got.GameDir != "tf" || got.Map != "ctf_2fort" {
		t.Errorf("identity fields: %+v", got)
	}
	if got.Region != "europe" || got.Type != "dedicated" || got.OS != "Linux" {
		t.Errorf("enum fields: region=%q type=%q os=%q", got.Region, got.Type, got.OS)
	}
	if !got.Secure || !got.Bots || got.Password || got.LAN || !got.Whitelisted {
		t.Errorf("flags: %+v", got)
	}
	if got.LastHeartbeat.Location() != time.UTC {
		t.Errorf("LastHeartbeat not UTC: %v", got.LastHeartbeat)
	}
}

func TestNewStats(t *testing.T) {
	got := NewStats(master.StatsSnapshot{Uptime: 90*time.Second + 300*time.Millisecond, Queries: 7, Servers: 2})
	if got.Uptime != "1m30s" || got.Queries != 7 || got.Servers != 2 {
		t.Errorf("NewStats() = %+v", got)
	}
}

func TestNewProbe(t *testing.T) {
	addr := netip.MustParseAddrPort("198.51.100.7:27016")

	failed := NewProbe(addr, nil, errors.New("i/o timeout"))
	if failed.Error != "i/o timeout" || failed.Address != addr.String() || failed.Name != "" {
		t.Errorf("failed probe = %+v", failed)
	}

	ok := NewProbe(addr, &a2s.Info{Name: "Test", Map: "de_dust2", Players: 3, MaxPlayers: 16}, nil)
	if ok.Error != "" || ok.Name != "Test" || ok.Map != "de_dust2" || ok.Players != 3 || ok.MaxPlayers != 16 {
		t.Errorf("probe = %+v", ok)
	}
}
