// Package challenge issues and checks the anti-spoofing values a game server must echo
// back in its heartbeat before it is listed.
package challenge

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// ErrLimit is returned by Issue when the table is full and the address holds no challenge yet.
var ErrLimit = errors.New("challenge table is full")

type challenge struct {
	issued time.Time
	value  uint32
}

type shard struct {
	items map[netip.AddrPort]challenge
	mu    sync.Mutex
}

// Registry holds at most one live challenge per address.
type Registry struct {
	next   func() uint32
	shards [shardCount]shard
	ttl    time.Duration
	limit  int64
	count  atomic.Int64
}

// New creates a registry whose challenges live for ttl. A limit above zero caps the number
// of stored challenges.
func New(ttl time.Duration, limit int) *Registry {
	r := &Registry{
		ttl:   ttl,
		limit: int64(limit),
		next:  randomValue,
	}
	for i := range r.shards {
		r.shards[i].items = make(map[netip.AddrPort]challenge)
	}

	return r
}

// TTL returns the challenge validity window.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Issue creates a challenge for addr, replacing any previous one, and returns its value.
func (r *Registry) Issue(addr netip.AddrPort, now time.Time) (uint32, error) {
	s := r.shard(addr)
	value := r.next()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[addr]; !ok && !r.reserve() {
		return 0, ErrLimit
	}
	s.items[addr] = challenge{value: value, issued: now}

	return value, nil
}

// Validate reports whether addr holds a live challenge equal to value.
func (r *Registry) Validate(addr netip.AddrPort, value uint32, now time.Time) bool {
	s := r.shard(addr)

	s.mu.Lock()
	c, ok := s.items[addr]
	s.mu.Unlock()

	return ok && c.value == value && r.live(c, now)
}

// Consume is Validate that also removes the challenge on success, so a value
// authenticates a single heartbeat.
func (r *Registry) Consume(addr netip.AddrPort, value uint32, now time.Time) bool {
	s := r.shard(addr)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[addr]
	if !ok || c.value != value || !r.live(c, now) {
		return false
	}
	delete(s.items, addr)
	r.count.Add(-1)

	return true
}

// Sweep removes expired challenges and returns how many were dropped.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for addr, c := range s.items {
			if !r.live(c, now) {
				delete(s.items, addr)
				removed++
			}
		}
		s.mu.Unlock()
	}
	r.count.Add(int64(-removed))

	return removed
}

// Len returns the number of stored challenges, including expired ones not yet swept.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// reserve counts one more stored challenge unless the limit is reached.
func (r *Registry) reserve() bool {
	if r.limit <= 0 {
		r.count.Add(1)
		return true
	}

	for {
		n := r.count.Load()
		if n >= r.limit {
			return false
		}
		if r.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (r *Registry) live(c challenge, now time.Time) bool {
	return now.Sub(c.issued) < r.ttl
}

func (r *Registry) shard(addr netip.AddrPort) *shard {
	var key [18]byte
	ip := addr.Addr().As16()
	copy(key[:16], ip[:])
	binary.BigEndian.PutUint16(key[16:], addr.Port())

	return &r.shards[xxhash.Sum64(key[:])%shardCount]
}

func randomValue() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:]) // never returns an error since Go 1.24

	return binary.LittleEndian.Uint32(b[:])
}
