package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "srcmaster.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.Server.ListenAddr(); got != netip.MustParseAddrPort("0.0.0.0:27010") {
		t.Errorf("ListenAddr = %s", got)
	}
	if cfg.Server.Timeout.ChallengeTTL() != 300*time.Second || cfg.Server.Timeout.ServerTTL() != 300*time.Second {
		t.Errorf("timeouts = %+v", cfg.Server.Timeout)
	}
	if cfg.Server.MaxPacketSize != 512 {
		t.Errorf("MaxPacketSize = %d", cfg.Server.MaxPacketSize)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("log level = %q", cfg.Logger.Level)
	}
}

func TestLoadFilePrecedence(t *testing.T) {
	path := writeFile(t, `
[log]
level = "debug"

[server]
ip = "127.0.0.1"
port = 27011
whitelist = ["10.0.0.0/8", "192.0.2.1"]

[server.timeout]
challenge = 30
server = 600

[rate_limit]
window = "2s"
`)

	cfg, err := Load([]string{"-c", path, "--port", "27500", "--timeout-challenge", "15"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.Server.ListenAddr(); got != netip.MustParseAddrPort("127.0.0.1:27500") {
		t.Errorf("ListenAddr = %s, want flag port over file", got)
	}
	if cfg.Server.Timeout.Challenge != 15 {
		t.Errorf("challenge timeout = %d, want 15 from flags", cfg.Server.Timeout.Challenge)
	}
	if cfg.Server.Timeout.Server != 600 {
		t.Errorf("server timeout = %d, want 600 from file", cfg.Server.Timeout.Server)
	}
	if cfg.Server.Timeout.Cleanup != 10 {
		t.Errorf("cleanup = %d, want default 10", cfg.Server.Timeout.Cleanup)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logger.Level)
	}
	if cfg.RateLimit.Window != 2*time.Second || cfg.RateLimit.Count != 32 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}

	prefixes, err := cfg.Server.WhitelistPrefixes()
	if err != nil {
		t.Fatal(err)
	}
	want := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("192.0.2.1/32")}
	if len(prefixes) != len(want) || prefixes[0] != want[0] || prefixes[1] != want[1] {
		t.Errorf("whitelist = %v, want %v", prefixes, want)
	}
}

func TestLoadFileUnknownKey(t *testing.T) {
	path := writeFile(t, `
[server]
ip = "0.0.0.0"
bogus = 1
`)

	_, err := Load([]string{"--config", path})
	if err == nil || !strings.Contains(err.Error(), "server.bogus") {
		t.Errorf("err = %v, want unknown key server.bogus", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"ip", []string{"--ip", "localhost"}},
		{"log level", []string{"--log-level", "loud"}},
		{"log format", []string{"--log-format", "xml"}},
		{"packet size", []string{"--max-packet-size", "8"}},
		{"whitelist", []string{"--whitelist", "10.0.0.0/33"}},
		{"http without token", []string{"--http-address", ":8080"}},
		{"unknown flag", []string{"--bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args); err == nil {
				t.Errorf("Load(%v) succeeded", tt.args)
			}
		})
	}
}
