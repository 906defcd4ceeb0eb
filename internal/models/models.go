// Package models defines the data structures returned by the admin API.
package models

import (
	"net/netip"
	"time"

	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/srcmaster/internal/master"
	"github.com/woozymasta/srcmaster/internal/protocol"
	"github.com/woozymasta/srcmaster/internal/registry"
)

// Server represents a listed game server.
type Server struct {
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Address       string    `json:"address"`
	Name          string    `json:"name,omitempty"`
	GameDir       string    `json:"gamedir"`
	Map           string    `json:"map"`
	Version       string    `json:"version,omitempty"`
	Product       string    `json:"product,omitempty"`
	Region        string    `json:"region"`
	Country       string    `json:"country,omitempty"`
	Type          string    `json:"type"`
	OS            string    `json:"os"`
	GameType      []string  `json:"gametype,omitempty"`
	GameData      []string  `json:"gamedata,omitempty"`
	AppID         uint32    `json:"appid,omitempty"`
	Protocol      uint8     `json:"protocol"`
	Players       uint8     `json:"players"`
	MaxPlayers    uint8     `json:"max_players"`
	Bots          bool      `json:"bots"`
	Password      bool      `json:"password"`
	Secure        bool      `json:"secure"`
	LAN           bool      `json:"lan"`
	Whitelisted   bool      `json:"whitelisted"`
}

// NewServer converts a registry entry.
func NewServer(e *registry.Entry) Server {
	info := &e.Info

	return Server{
		LastHeartbeat: e.LastHeartbeat.UTC(),
		Address:       e.Addr.String(),
		Name:          info.Name,
		GameDir:       info.GameDir,
		Map:           info.Map,
		Version:       info.Version,
		Product:       info.Product,
		Region:        info.Region.String(),
		Type:          info.Type.String(),
		OS:            info.OS.String(),
		GameType:      info.GameType,
		GameData:      info.GameData,
		AppID:         info.AppID,
		Protocol:      info.Protocol,
		Players:       info.Players,
		MaxPlayers:    info.MaxPlayers,
		Bots:          info.Flags.Has(protocol.FlagBots),
		Password:      info.Flags.Has(protocol.FlagPassword),
		Secure:        info.Flags.Has(protocol.FlagSecure),
		LAN:           info.Flags.Has(protocol.FlagLAN),
		Whitelisted:   e.Trusted,
	}
}

// Stats are the engine counters and table sizes.
type Stats struct {
	Uptime       string `json:"uptime"`
	Packets      uint64 `json:"packets"`
	Dropped      uint64 `json:"dropped"`
	Malformed    uint64 `json:"malformed"`
	Challenges   uint64 `json:"challenges"`
	Heartbeats   uint64 `json:"heartbeats"`
	AuthFailures uint64 `json:"auth_failures"`
	Queries      uint64 `json:"queries"`
	BadFilters   uint64 `json:"bad_filters"`
	Servers      int    `json:"servers"`
	Pending      int    `json:"pending_challenges"`
}

// NewStats converts an engine stats snapshot.
func NewStats(s master.StatsSnapshot) Stats {
	return Stats{
		Uptime:       s.Uptime.Truncate(time.Second).String(),
		Packets:      s.Packets,
		Dropped:      s.Dropped,
		Malformed:    s.Malformed,
		Challenges:   s.Challenges,
		Heartbeats:   s.Heartbeats,
		AuthFailures: s.AuthFailures,
		Queries:      s.Queries,
		BadFilters:   s.BadFilters,
		Servers:      s.Servers,
		Pending:      s.Pending,
	}
}

// Probe is the live A2S_INFO answer of one server.
type Probe struct {
	Error      string `json:"error,omitempty"`
	Address    string `json:"address"`
	Name       string `json:"name,omitempty"`
	Map        string `json:"map,omitempty"`
	Game       string `json:"game,omitempty"`
	Version    string `json:"version,omitempty"`
	OS         string `json:"os,omitempty"`
	Players    uint8  `json:"players"`
	MaxPlayers uint8  `json:"max_players"`
}

// NewProbe converts an A2S answer or failure.
func NewProbe(addr netip.AddrPort, info *a2s.Info, err error) Probe {
	p := Probe{Address: addr.String()}
	if err != nil {
		p.Error = err.Error()
		return p
	}

	p.Name = info.Name
	p.Map = info.Map
	p.Game = info.Game
	p.Version = info.Version
	p.OS = info.Environment.String()
	p.Players = info.Players
	p.MaxPlayers = info.MaxPlayers

	return p
}
