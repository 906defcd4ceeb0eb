// main is the entry point of the srcmaster master server.
// It initializes the configuration, logger, GeoIP provider and registries, then serves
// the UDP protocol and the optional admin API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcmaster/internal/challenge"
	"github.com/woozymasta/srcmaster/internal/config"
	"github.com/woozymasta/srcmaster/internal/fake"
	"github.com/woozymasta/srcmaster/internal/geoip"
	"github.com/woozymasta/srcmaster/internal/logger"
	"github.com/woozymasta/srcmaster/internal/maintenance"
	"github.com/woozymasta/srcmaster/internal/master"
	"github.com/woozymasta/srcmaster/internal/ratelimit"
	"github.com/woozymasta/srcmaster/internal/registry"
	"github.com/woozymasta/srcmaster/internal/server"
	"github.com/woozymasta/srcmaster/internal/udp"
	"github.com/woozymasta/srcmaster/internal/vars"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	log.Info().Str("version", vars.Version).Msg("Starting srcmaster...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// GeoIP
	var geoProvider *geoip.Provider
	if cfg.GeoIP.Path != "" {
		geoProvider = openGeoIP(ctx, cfg.GeoIP)
		if geoProvider != nil {
			defer func() {
				if err := geoProvider.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing GeoIP provider")
				}
			}()
		}
	}

	whitelist, _ := cfg.Server.WhitelistPrefixes() // validated by config
	opts := master.Options{
		AllowedGameDirs: cfg.Server.AllowedGameDir,
		Whitelist:       whitelist,
		MaxPacketSize:   cfg.Server.MaxPacketSize,
		AcceptShutdown:  cfg.Server.AcceptShutdown,
	}
	if geoProvider != nil {
		opts.Regions = geoProvider
	}

	engine := master.New(
		challenge.New(cfg.Server.Timeout.ChallengeTTL(), cfg.Server.ChallengeLimit),
		registry.New(cfg.Server.Timeout.ServerTTL()),
		opts,
	)

	if cfg.FakeServers > 0 {
		fake.Generate(engine.Servers(), cfg.FakeServers, engine.Now())
	}

	// Expiry sweep
	sweeper := maintenance.New(cfg.Server.Timeout.CleanupInterval(), engine.Now,
		maintenance.Task{Name: "challenges", Table: engine.Challenges()},
		maintenance.Task{Name: "servers", Table: engine.Servers()},
	)
	go sweeper.Run(ctx)

	// UDP
	limiter := ratelimit.New(cfg.RateLimit.Count, cfg.RateLimit.Window)
	go limiter.Run(ctx, time.Minute)

	listener, err := udp.Listen(cfg.Server.ListenAddr(), engine, udp.Options{
		Limiter:   limiter,
		Workers:   cfg.Server.Workers,
		QueueSize: cfg.Server.QueueSize,
	})
	if err != nil {
		log.Fatal().Err(err).Str("address", cfg.Server.ListenAddr().String()).Msg("Failed to bind UDP socket")
	}

	udpDone := make(chan error, 1)
	go func() {
		log.Info().Str("address", listener.Addr().String()).Msg("Master server listening")
		udpDone <- listener.Serve(ctx)
	}()

	// Admin API
	var httpServer *http.Server
	if cfg.HTTP.Address != "" {
		api := server.New(engine, geoProvider, cfg)
		api.StartWorkers(ctx)

		httpServer = &http.Server{
			Addr:         cfg.HTTP.Address,
			Handler:      api.Run(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info().Str("address", cfg.HTTP.Address).Msg("Admin API listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Admin API failed")
			}
		}()
	}

	// Graceful Shutdown
	udpStopped := false
	select {
	case <-ctx.Done():
	case err := <-udpDone:
		log.Error().Err(err).Msg("Master server stopped unexpectedly")
		udpStopped = true
		stop()
	}

	log.Info().Msg("Shutting down...")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Admin API forced to shutdown")
		}
	}

	if !udpStopped {
		select {
		case err := <-udpDone:
			if err != nil {
				log.Error().Err(err).Msg("Error closing UDP socket")
			}
		case <-time.After(5 * time.Second):
			log.Warn().Msg("Timed out waiting for packet workers")
		}
	}

	log.Info().Msg("Server exited")
}

// openGeoIP makes sure the database is present and keeps it updated in the background.
// A nil provider disables region lookup.
func openGeoIP(ctx context.Context, cfg config.GeoIP) *geoip.Provider {
	log.Info().Msg("Checking GeoIP database...")
	if _, err := geoip.EnsureDB(ctx, cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	provider, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, region detection disabled")
		return nil
	}

	go geoip.Watch(ctx, provider, cfg.Path, cfg.URL, cfg.Interval)

	return provider
}
