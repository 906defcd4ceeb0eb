// srcquery lists servers known to a Source master server and can probe each of them with A2S_INFO.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcmaster/internal/client"
	"github.com/woozymasta/srcmaster/internal/config"
	"github.com/woozymasta/srcmaster/internal/game"
	"github.com/woozymasta/srcmaster/internal/logger"
	"github.com/woozymasta/srcmaster/internal/models"
	"github.com/woozymasta/srcmaster/internal/protocol"
	"github.com/woozymasta/srcmaster/internal/vars"
)

type options struct {
	// betteralign:ignore

	Master   string        `short:"m" long:"master" env:"SRCQUERY_MASTER" default:"127.0.0.1:27010" description:"Master server address"`
	Region   uint8         `short:"r" long:"region" default:"255" description:"Region code, 255 for all"`
	Filter   string        `short:"f" long:"filter" description:"Filter string, e.g. \\gamedir\\tf\\empty\\0"`
	Timeout  time.Duration `long:"timeout" default:"3s" description:"Reply timeout per page"`
	Retries  int           `long:"retries" default:"2" description:"Resends of an unanswered request"`
	MaxPages int           `long:"max-pages" default:"0" description:"Stop after this many pages, 0 for no limit"`
	JSON     bool          `short:"j" long:"json" description:"Print JSON instead of one address per line"`

	Probe   bool `long:"probe" description:"Query every listed server with A2S_INFO"`
	Workers int  `long:"workers" default:"16" description:"Parallel A2S probes"`

	A2S    config.A2S    `group:"A2S Options" namespace:"a2s" env-namespace:"SRCQUERY_A2S"`
	Logger logger.Config `group:"Logger Options" namespace:"log" env-namespace:"SRCQUERY_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

func main() {
	opts := options{
		A2S:    config.Defaults().A2S,
		Logger: config.Defaults().Logger,
	}

	p := flags.NewParser(&opts, flags.Default)
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		vars.Print()
		os.Exit(0)
	}

	logger.Setup(opts.Logger)

	if err := run(opts); err != nil {
		log.Fatal().Err(err).Msg("Query failed")
	}
}

func run(opts options) error {
	region, ok := protocol.ParseRegion(opts.Region)
	if !ok {
		return fmt.Errorf("unknown region %d", opts.Region)
	}

	addr, err := resolve(opts.Master)
	if err != nil {
		return err
	}

	c, err := client.Dial(addr)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	c.Timeout = opts.Timeout
	c.Retries = opts.Retries
	c.MaxPages = opts.MaxPages

	servers, err := c.List(context.Background(), region, opts.Filter)
	if err != nil && !errors.Is(err, client.ErrTooManyPages) {
		return err
	}
	if err != nil {
		log.Warn().Int("pages", opts.MaxPages).Msg("Page limit reached, list is incomplete")
	}
	log.Info().Str("master", addr.String()).Int("servers", len(servers)).Msg("Server list received")

	if !opts.Probe {
		return printList(servers, opts.JSON)
	}

	results := game.ProbeAll(servers, opts.A2S, opts.Workers, nil)
	probes := make([]models.Probe, 0, len(results))
	for _, r := range results {
		probes = append(probes, models.NewProbe(r.Addr, r.Info, r.Err))
	}

	return printProbes(probes, opts.JSON)
}

// resolve accepts host:port and returns an IPv4 endpoint.
func resolve(address string) (netip.AddrPort, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve master %q: %w", address, err)
	}

	ap := udpAddr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

func printList(servers []netip.AddrPort, asJSON bool) error {
	if asJSON {
		out := make([]string, len(servers))
		for i, s := range servers {
			out[i] = s.String()
		}
		return writeJSON(out)
	}

	for _, s := range servers {
		fmt.Println(s)
	}
	return nil
}

func printProbes(probes []models.Probe, asJSON bool) error {
	if asJSON {
		return writeJSON(probes)
	}

	for _, p := range probes {
		if p.Error != "" {
			fmt.Printf("%-21s  error: %s\n", p.Address, p.Error)
			continue
		}
		fmt.Printf("%-21s  %3d/%-3d  %-16s  %-20s  %s\n", p.Address, p.Players, p.MaxPlayers, p.Game, p.Map, p.Name)
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
