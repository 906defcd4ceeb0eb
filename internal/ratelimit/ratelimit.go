// Package ratelimit keeps one token bucket per source address.
package ratelimit

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter allows count events per window for every address independently.
type Limiter struct {
	clients map[netip.Addr]*client
	limit   rate.Limit
	burst   int
	idle    time.Duration
	mu      sync.Mutex
}

// New creates a limiter allowing count events per window per address.
// Addresses idle for longer than ten windows are forgotten by Cleanup.
func New(count int, window time.Duration) *Limiter {
	return &Limiter{
		clients: make(map[netip.Addr]*client),
		limit:   rate.Limit(float64(count) / window.Seconds()),
		burst:   count,
		idle:    10 * window,
	}
}

// Allow reports whether addr may send one more event at now.
func (l *Limiter) Allow(addr netip.Addr, now time.Time) bool {
	l.mu.Lock()
	cli, found := l.clients[addr]
	if !found {
		cli = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[addr] = cli
	}
	cli.lastSeen = now
	limiter := cli.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Cleanup drops idle addresses and returns how many were removed.
func (l *Limiter) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for addr, c := range l.clients {
		if now.Sub(c.lastSeen) > l.idle {
			delete(l.clients, addr)
			removed++
		}
	}

	return removed
}

// Len returns the number of tracked addresses.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.clients)
}

// Run calls Cleanup every interval until ctx is canceled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Cleanup(now)
		}
	}
}
