// Package geoip handles downloading, updating, and reading MaxMind GeoLite2 databases
// used to place servers into regions.
package geoip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcmaster/internal/vars"
)

// EnsureDB checks if the GeoIP database exists at the specified path and if it is recent enough.
// If the file is missing or older than maxAge, it downloads a new copy from the provided URL.
// It reports whether a new file was written.
func EnsureDB(ctx context.Context, path, url string, maxAge time.Duration) (bool, error) {
	info, err := os.Stat(path)

	if err == nil {
		if time.Since(info.ModTime()) < maxAge {
			log.Debug().Str("path", path).Msg("GeoIP database is up to date")
			return false, nil
		}
		log.Info().Str("path", path).Msg("GeoIP database is outdated, updating...")
	} else if os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("GeoIP database missing, downloading...")
	} else {
		return false, err
	}

	if url == "" {
		return false, fmt.Errorf("no download url for %s", path)
	}

	if err := downloadFile(ctx, path, url); err != nil {
		return false, err
	}

	return true, nil
}

// Watch re-checks the database every interval and reloads p after each update,
// until ctx is canceled.
func Watch(ctx context.Context, p *Provider, path, url string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updated, err := EnsureDB(ctx, path, url, interval)
			if err != nil {
				log.Error().Err(err).Msg("Failed to update GeoIP database")
				continue
			}
			if !updated {
				continue
			}
			if err := p.Reload(path); err != nil {
				log.Error().Err(err).Msg("Failed to reload GeoIP database")
				continue
			}
			log.Info().Str("path", path).Msg("GeoIP database reloaded")
		}
	}
}

// downloadFile downloads a file from a URL to a local path using a temporary file
// to ensure atomic writes.
func downloadFile(ctx context.Context, filepath string, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", vars.UserAgent())

	resp, err := http.DefaultClient.Do(req) //nolint:gosec
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}

	tmpPath := filepath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err = io.Copy(out, resp.Body); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, filepath)
}
