package server

import (
	"github.com/woozymasta/srcmaster/internal/config"
	"github.com/woozymasta/srcmaster/internal/game"
	"github.com/woozymasta/srcmaster/internal/geoip"
	"github.com/woozymasta/srcmaster/internal/master"
	"github.com/woozymasta/srcmaster/internal/ratelimit"
)

// Server holds the dependencies and configuration required to handle admin API requests.
type Server struct {
	// engine is the running master server whose registries are inspected and edited.
	engine *master.Engine

	// geoip resolves country codes for listed servers.
	// It can be nil if the GeoIP database is not initialized.
	geoip *geoip.Provider

	// limiter applies the hard per IP request limit.
	limiter *ratelimit.Limiter

	// query performs A2S requests. Replaced in tests.
	query game.Querier

	// authToken is the secret token required to access administrative API endpoints.
	authToken string

	// a2sOptions holds configuration settings for querying game servers (e.g., timeouts, buffer size).
	a2sOptions config.A2S

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool
}
