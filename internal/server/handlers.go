package server

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcmaster/internal/filter"
	"github.com/woozymasta/srcmaster/internal/models"
	"github.com/woozymasta/srcmaster/internal/protocol"
	"github.com/woozymasta/srcmaster/internal/vars"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// addrParam reads the ip and port query parameters.
func addrParam(r *http.Request) (netip.AddrPort, bool) {
	ip, err := netip.ParseAddr(r.URL.Query().Get("ip"))
	if err != nil {
		return netip.AddrPort{}, false
	}
	port, err := strconv.ParseUint(r.URL.Query().Get("port"), 10, 16)
	if err != nil || port == 0 {
		return netip.AddrPort{}, false
	}

	return netip.AddrPortFrom(ip.Unmap(), uint16(port)), true
}

// handleVersion returns build information. It is the only unauthenticated route.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Ver())
}

// handleServers returns the live server list in canonical order.
// Optional query params: ?filter=\gamedir\tf&region=3
func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	f, err := filter.Parse(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	region := protocol.RegionAll
	if raw := r.URL.Query().Get("region"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 8)
		reg, ok := protocol.ParseRegion(byte(n))
		if err != nil || !ok {
			writeError(w, http.StatusBadRequest, "invalid region")
			return
		}
		region = reg
	}

	snap := s.engine.Servers().Snapshot(s.engine.Now())
	out := make([]models.Server, 0, len(snap))
	for i := range snap {
		e := &snap[i]
		if !region.Matches(e.Info.Region) || !f.Match(e) {
			continue
		}
		view := models.NewServer(e)
		if s.geoip != nil {
			view.Country = s.geoip.CountryCode(e.Addr.Addr())
		}
		out = append(out, view)
	}

	writeJSON(w, http.StatusOK, out)
}

// handleStats returns engine counters and table sizes.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.NewStats(s.engine.Stats()))
}

// handleServerQuery performs a live A2S query to a specific game server IP and port.
// It acts as a proxy to retrieve real-time server status.
// Query params: ?ip=1.2.3.4&port=27015
func (s *Server) handleServerQuery(w http.ResponseWriter, r *http.Request) {
	addr, ok := addrParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid ip and port")
		return
	}

	info, err := s.query(addr, s.a2sOptions)
	probe := models.NewProbe(addr, info, err)
	if err != nil {
		writeJSON(w, http.StatusGatewayTimeout, probe)
		return
	}

	writeJSON(w, http.StatusOK, probe)
}

// handleDeleteServer removes a server from the list until its next heartbeat.
// Query params: ?ip=1.2.3.4&port=27015
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	addr, ok := addrParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid ip and port")
		return
	}

	if !s.engine.Servers().Remove(addr) {
		writeError(w, http.StatusNotFound, "server not listed")
		return
	}

	log.Info().Str("addr", addr.String()).Msg("Server deleted manually")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server deleted"})
}
