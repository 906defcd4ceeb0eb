// Package fake provides utilities for filling the server list with random entries
// for testing and development purposes.
package fake

import (
	"fmt"
	"math/rand"
	"net/netip"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcmaster/internal/protocol"
	"github.com/woozymasta/srcmaster/internal/registry"
)

type game struct {
	dir     string
	product string
	maps    []string
	tags    []string
	appID   uint32
	slots   uint8
}

var games = []game{
	{dir: "cstrike", product: "cstrike", appID: 240, slots: 32, maps: []string{"de_dust2", "de_inferno", "cs_office", "de_nuke"}, tags: []string{"alltalk", "friendlyfire", "increased_maxplayers"}},
	{dir: "tf", product: "tf", appID: 440, slots: 24, maps: []string{"ctf_2fort", "pl_badwater", "cp_dustbowl", "koth_harvest_final"}, tags: []string{"cp", "ctf", "payload", "nocrits"}},
	{dir: "hl2mp", product: "hl2dm", appID: 320, slots: 16, maps: []string{"dm_lockdown", "dm_overwatch", "dm_runoff"}, tags: []string{"teamplay"}},
	{dir: "left4dead2", product: "left4dead2", appID: 550, slots: 8, maps: []string{"c1m1_hotel", "c2m1_highway", "c5m1_waterfront"}, tags: []string{"coop", "versus", "realism"}},
	{dir: "garrysmod", product: "garrysmod", appID: 4000, slots: 64, maps: []string{"gm_construct", "gm_flatgrass", "rp_downtown_v4c"}, tags: []string{"sandbox", "darkrp", "ttt"}},
}

var versions = []string{"1.0.0.70", "1.0.0.71", "7929953", "8835751"}

// Generate upserts count random servers with heartbeats spread over the last ttl.
// It returns the generated addresses.
func Generate(reg *registry.Registry, count int, now time.Time) []netip.AddrPort {
	rnd := rand.New(rand.NewSource(now.UnixNano()))
	addrs := make([]netip.AddrPort, 0, count)

	// Cache for ip reuse
	var ipHistory []netip.Addr

	for i := 0; i < count; i++ {
		var ip netip.Addr

		// 20% chance for reuse IP address
		if len(ipHistory) > 0 && rnd.Float32() < 0.2 {
			ip = ipHistory[rnd.Intn(len(ipHistory))]
		} else {
			ip = netip.AddrFrom4([4]byte{byte(rnd.Intn(220) + 1), byte(rnd.Intn(255)), byte(rnd.Intn(255)), byte(rnd.Intn(254) + 1)})
			ipHistory = append(ipHistory, ip)
		}
		addr := netip.AddrPortFrom(ip, uint16(27015+rnd.Intn(100)))

		g := games[rnd.Intn(len(games))]
		players := uint8(rnd.Intn(int(g.slots) + 1))

		info := protocol.ServerInfo{
			Name:       fmt.Sprintf("%s Server #%d", g.product, rnd.Intn(1000)),
			GameDir:    g.dir,
			Map:        g.maps[rnd.Intn(len(g.maps))],
			Version:    versions[rnd.Intn(len(versions))],
			Product:    g.product,
			AppID:      g.appID,
			GameType:   pickTags(rnd, g.tags),
			Protocol:   7,
			Players:    players,
			MaxPlayers: g.slots,
			Type:       protocol.ServerDedicated,
			OS:         protocol.OS(rnd.Intn(2) + 1),
			Region:     protocol.Region(rnd.Intn(8)),
			HasRegion:  true,
		}
		if rnd.Float32() < 0.1 {
			info.Flags |= protocol.FlagPassword
		}
		if rnd.Float32() < 0.8 {
			info.Flags |= protocol.FlagSecure
		}
		if rnd.Float32() < 0.3 {
			info.Flags |= protocol.FlagBots
		}

		// Random heartbeat within the last two minutes
		seen := now.Add(-time.Duration(rnd.Intn(120)) * time.Second)
		if reg.Upsert(addr, info, false, seen) {
			addrs = append(addrs, addr)
		}
	}

	log.Info().Int("requested", count).Int("created", len(addrs)).Msg("Fake servers generated")

	return addrs
}

func pickTags(rnd *rand.Rand, tags []string) []string {
	var out []string
	for _, tag := range tags {
		if rnd.Float32() < 0.5 {
			out = append(out, tag)
		}
	}

	return out
}
