// Package server implements the admin HTTP API, middleware, and request handlers.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/woozymasta/srcmaster/internal/config"
	"github.com/woozymasta/srcmaster/internal/game"
	"github.com/woozymasta/srcmaster/internal/geoip"
	"github.com/woozymasta/srcmaster/internal/master"
	"github.com/woozymasta/srcmaster/internal/ratelimit"
)

// New creates a new Server instance over the master engine and optional GeoIP provider.
func New(engine *master.Engine, geo *geoip.Provider, cfg *config.Config) *Server {
	return &Server{
		engine:     engine,
		geoip:      geo,
		limiter:    ratelimit.New(cfg.RateLimit.Count, cfg.RateLimit.Window),
		query:      game.QueryServer,
		authToken:  cfg.HTTP.AuthToken,
		a2sOptions: cfg.A2S,
		trustProxy: cfg.HTTP.TrustProxy,
	}
}

// StartWorkers runs the rate limiter cleanup until ctx is canceled.
func (s *Server) StartWorkers(ctx context.Context) {
	go s.limiter.Run(ctx, 5*time.Minute)
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/version", http.HandlerFunc(s.handleVersion))
	mux.Handle("GET /api/servers", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleServers)))
	mux.Handle("GET /api/stats", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleStats)))
	mux.Handle("GET /api/a2s", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleServerQuery)))
	mux.Handle("DELETE /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleDeleteServer)))

	return s.LoggingMiddleware(s.RateLimitMiddleware(mux))
}
