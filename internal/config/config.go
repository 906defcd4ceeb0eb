// Package config handles the parsing and validation of application configuration
// from command-line arguments, environment variables and an optional TOML file.
//
// Values are resolved in order: flags and environment, then the config file, then defaults.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"
	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/srcmaster/internal/logger"
	"github.com/woozymasta/srcmaster/internal/protocol"
	"github.com/woozymasta/srcmaster/internal/vars"
)

// Default values applied after flags and the config file.
const (
	DefaultIP      = "0.0.0.0"
	DefaultPort    = 27010
	DefaultTimeout = 300
)

// Config represents the complete application configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"SRCMASTER" toml:"server"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"SRCMASTER_RATE_LIMIT" toml:"rate_limit"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"SRCMASTER_GEOIP" toml:"geoip"`
	HTTP      HTTP          `group:"HTTP API Options" namespace:"http" env-namespace:"SRCMASTER_HTTP" toml:"http"`
	A2S       A2S           `group:"A2S Options" namespace:"a2s" env-namespace:"SRCMASTER_A2S" toml:"a2s"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"SRCMASTER_LOG" toml:"log"`

	File        string `short:"c" long:"config" env:"SRCMASTER_CONFIG" description:"Path to TOML config file" toml:"-"`
	FakeServers int    `long:"gen-fake-servers" hidden:"true" toml:"-"`
	Version     bool   `short:"v" long:"version" description:"Print version and build info" toml:"-"`
}

// Server holds the master server socket and protocol configuration.
type Server struct {
	// betteralign:ignore

	IP             string   `short:"i" long:"ip" env:"IP" description:"Listen IP address (default: 0.0.0.0)" toml:"ip"`
	Port           uint16   `short:"p" long:"port" env:"PORT" description:"Listen UDP port (default: 27010)" toml:"port"`
	MaxPacketSize  int      `long:"max-packet-size" env:"MAX_PACKET_SIZE" description:"Max server list reply size in bytes (default: 512)" toml:"max_packet_size"`
	Workers        int      `long:"workers" env:"WORKERS" description:"Packet handling workers (default: 4)" toml:"workers"`
	QueueSize      int      `long:"queue-size" env:"QUEUE_SIZE" description:"Pending packet queue size (default: 1024)" toml:"queue_size"`
	AllowedGameDir []string `short:"g" long:"allowed-gamedir" env:"ALLOWED_GAMEDIRS" env-delim:"," description:"Only list servers of these game directories" toml:"allowed_gamedirs"`
	Whitelist      []string `short:"w" long:"whitelist" env:"WHITELIST" env-delim:"," description:"Addresses or networks matched by the \\white\\1 filter" toml:"whitelist"`
	AcceptShutdown bool     `long:"accept-shutdown" env:"ACCEPT_SHUTDOWN" description:"Remove servers that send a shutdown message" toml:"accept_shutdown"`
	ChallengeLimit int      `long:"challenge-limit" env:"CHALLENGE_LIMIT" description:"Max pending challenges, 0 for no limit" toml:"challenge_limit"`

	Timeout Timeout `group:"Timeout Options" namespace:"timeout" env-namespace:"TIMEOUT" toml:"timeout"`
}

// Timeout holds expiry settings in seconds.
type Timeout struct {
	Challenge uint32 `long:"challenge" env:"CHALLENGE" description:"Challenge validity in seconds (default: 300)" toml:"challenge"`
	Server    uint32 `long:"server" env:"SERVER" description:"Server listing time to live in seconds (default: 300)" toml:"server"`
	Cleanup   uint32 `long:"cleanup" env:"CLEANUP" description:"Expired entry sweep interval in seconds (default: 10)" toml:"cleanup"`
}

// RateLimit holds per source IP flood protection.
type RateLimit struct {
	// betteralign:ignore

	Count  int           `long:"count" env:"COUNT" description:"Datagrams allowed per source IP per window (default: 32)" toml:"count"`
	Window time.Duration `long:"window" env:"WINDOW" description:"Rate limit window (default: 1s)" toml:"window"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `long:"path" env:"PATH" description:"Path to MMDB file, empty disables region lookup" toml:"path"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB (default: https://git.io/GeoLite2-Country.mmdb)" toml:"url"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check (default: 24h)" toml:"interval"`
}

// HTTP holds the admin API configuration.
type HTTP struct {
	// betteralign:ignore

	Address    string `long:"address" env:"ADDRESS" description:"Admin API listen address, empty disables it" toml:"address"`
	AuthToken  string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token" toml:"auth_token"`
	TrustProxy bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers" toml:"trust_proxy"`
}

// A2S holds Source Query protocol configuration.
type A2S struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Query timeout (default: 3s)" toml:"timeout"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response body buffer size (default: 1400)" toml:"buffer_size"`
}

// Defaults returns the values used for every option left unset.
func Defaults() Config {
	return Config{
		Server: Server{
			IP:            DefaultIP,
			Port:          DefaultPort,
			MaxPacketSize: protocol.MaxPacketSize,
			Workers:       4,
			QueueSize:     1024,
			Timeout: Timeout{
				Challenge: DefaultTimeout,
				Server:    DefaultTimeout,
				Cleanup:   10,
			},
		},
		RateLimit: RateLimit{
			Count:  32,
			Window: time.Second,
		},
		GeoIP: GeoIP{
			URL:      "https://git.io/GeoLite2-Country.mmdb",
			Interval: 24 * time.Hour,
		},
		A2S: A2S{
			Timeout:    3 * time.Second,
			BufferSize: 1400,
		},
		Logger: logger.Config{
			Level:  "warn",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Parse reads the configuration from flags, environment variables and the config file.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			// already printed by go-flags
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}

// Load resolves the configuration from args, the environment and the file named by --config.
func Load(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if cfg.Version {
		return &cfg, nil
	}

	if cfg.File != "" {
		file, err := LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(&cfg, file); err != nil {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
	}

	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile decodes a TOML config file. Keys that map to no option are an error.
func LoadFile(path string) (Config, error) {
	var cfg Config

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Validate checks option values after merging.
func (c *Config) Validate() error {
	if _, err := netip.ParseAddr(c.Server.IP); err != nil {
		return fmt.Errorf("invalid ip address %q", c.Server.IP)
	}
	if _, err := logger.ParseLevel(c.Logger.Level); err != nil {
		return err
	}
	if c.Logger.Format != "console" && c.Logger.Format != "json" {
		return fmt.Errorf("invalid log format %q", c.Logger.Format)
	}
	if c.Server.MaxPacketSize < protocol.EntrySize*3 || c.Server.MaxPacketSize > 65507 {
		return fmt.Errorf("max packet size %d out of range", c.Server.MaxPacketSize)
	}
	if c.Server.Workers < 1 || c.Server.QueueSize < 1 {
		return errors.New("workers and queue size must be positive")
	}
	if c.Server.ChallengeLimit < 0 {
		return errors.New("challenge limit must not be negative")
	}
	if c.RateLimit.Count < 1 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit count and window must be positive")
	}
	if _, err := c.Server.WhitelistPrefixes(); err != nil {
		return err
	}
	if c.HTTP.Address != "" && c.HTTP.AuthToken == "" {
		return errors.New("`--http-auth-token` is required when the admin API is enabled")
	}

	return nil
}

// ListenAddr returns the UDP address to bind.
func (s *Server) ListenAddr() netip.AddrPort {
	ip, _ := netip.ParseAddr(s.IP)
	return netip.AddrPortFrom(ip, s.Port)
}

// WhitelistPrefixes parses whitelist entries. A bare address is a single host network.
func (s *Server) WhitelistPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.Whitelist))
	for _, entry := range s.Whitelist {
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		ip, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid whitelist entry %q", entry)
		}
		ip = ip.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(ip, ip.BitLen()))
	}

	return prefixes, nil
}

// ChallengeTTL returns the challenge validity window.
func (t Timeout) ChallengeTTL() time.Duration {
	return time.Duration(t.Challenge) * time.Second
}

// ServerTTL returns how long a server stays listed after its last heartbeat.
func (t Timeout) ServerTTL() time.Duration {
	return time.Duration(t.Server) * time.Second
}

// CleanupInterval returns the sweep period.
func (t Timeout) CleanupInterval() time.Duration {
	return time.Duration(t.Cleanup) * time.Second
}
