// Package game queries individual game servers with the Source Engine Query (A2S) protocol,
// used to spot-check what a listed server really reports.
package game

import (
	"net/netip"
	"sync"

	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/srcmaster/internal/config"
)

// Querier fetches A2S_INFO from one server.
type Querier func(addr netip.AddrPort, options config.A2S) (*a2s.Info, error)

// QueryServer connects to a game server via UDP and requests A2S_INFO.
// It returns server details (such as name, map, players) or an error if the server is unreachable.
func QueryServer(addr netip.AddrPort, options config.A2S) (*a2s.Info, error) {
	client, err := a2s.New(addr.Addr().String(), int(addr.Port()))
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	client.BufferSize = options.BufferSize
	client.Timeout = options.Timeout

	return client.GetInfo()
}

// Result is the outcome of probing one server.
type Result struct {
	Err  error
	Info *a2s.Info
	Addr netip.AddrPort
}

// ProbeAll queries every address with a pool of workers. Results keep the order of addrs.
func ProbeAll(addrs []netip.AddrPort, options config.A2S, workers int, query Querier) []Result {
	if query == nil {
		query = QueryServer
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(addrs))
	jobs := make(chan int, len(addrs))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				info, err := query(addrs[idx], options)
				results[idx] = Result{Addr: addrs[idx], Info: info, Err: err}
			}
		}()
	}

	for i := range addrs {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	return results
}
