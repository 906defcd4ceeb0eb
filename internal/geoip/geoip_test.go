package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/woozymasta/srcmaster/internal/protocol"
)

func TestRegionOf(t *testing.T) {
	tests := []struct {
		continent, country string
		lon                float64
		hasLon             bool
		want               protocol.Region
		ok                 bool
	}{
		{"NA", "US", -74, true, protocol.RegionUSEast, true},
		{"NA", "US", -122, true, protocol.RegionUSWest, true},
		{"NA", "CA", 0, false, protocol.RegionUSEast, true},
		{"SA", "BR", 0, false, protocol.RegionSouthAmerica, true},
		{"EU", "DE", 0, false, protocol.RegionEurope, true},
		{"AS", "JP", 0, false, protocol.RegionAsia, true},
		{"AS", "IL", 0, false, protocol.RegionMiddleEast, true},
		{"AF", "EG", 0, false, protocol.RegionMiddleEast, true},
		{"OC", "AU", 0, false, protocol.RegionAustralia, true},
		{"AF", "ZA", 0, false, protocol.RegionAfrica, true},
		{"AN", "AQ", 0, false, protocol.RegionAll, false},
		{"", "", 0, false, protocol.RegionAll, false},
	}

	for _, tt := range tests {
		got, ok := RegionOf(tt.continent, tt.country, tt.lon, tt.hasLon)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RegionOf(%s, %s) = %v, %v; want %v, %v", tt.continent, tt.country, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEnsureDB(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("mmdb"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "country.mmdb")
	ctx := context.Background()

	updated, err := EnsureDB(ctx, path, srv.URL, time.Hour)
	if err != nil || !updated {
		t.Fatalf("first EnsureDB = %v, %v", updated, err)
	}
	if data, _ := os.ReadFile(path); string(data) != "mmdb" {
		t.Errorf("file content %q", data)
	}

	updated, err = EnsureDB(ctx, path, srv.URL, time.Hour)
	if err != nil || updated {
		t.Errorf("fresh EnsureDB = %v, %v", updated, err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	if updated, err = EnsureDB(ctx, path, srv.URL, time.Hour); err != nil || !updated {
		t.Errorf("stale EnsureDB = %v, %v", updated, err)
	}
	if hits != 2 {
		t.Errorf("downloads = %d, want 2", hits)
	}
}

func TestEnsureDBBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "country.mmdb")
	if _, err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err == nil {
		t.Error("EnsureDB succeeded on 404")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("database file created after failed download")
	}
}

func TestClosedProvider(t *testing.T) {
	p := &Provider{}
	if code := p.CountryCode(netip.MustParseAddr("8.8.8.8")); code != "" {
		t.Errorf("CountryCode = %q", code)
	}
	if _, ok := p.Region(netip.MustParseAddr("8.8.8.8")); ok {
		t.Error("Region resolved without a database")
	}
	if err := p.Close(); err != nil {
		t.Error(err)
	}
}
