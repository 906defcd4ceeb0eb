// Package maintenance runs the periodic sweep that reclaims expired challenges and servers.
package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweepable is a table with time based expiry.
type Sweepable interface {
	Sweep(now time.Time) int
}

// Task is one table to sweep.
type Task struct {
	Table Sweepable
	Name  string
}

// Sweeper sweeps its tasks on a fixed interval, independent of request traffic.
type Sweeper struct {
	clock    func() time.Time
	tasks    []Task
	interval time.Duration
}

// New creates a sweeper. A nil clock means time.Now.
func New(interval time.Duration, clock func() time.Time, tasks ...Task) *Sweeper {
	if clock == nil {
		clock = time.Now
	}

	return &Sweeper{clock: clock, tasks: tasks, interval: interval}
}

// RunOnce sweeps every task and returns the number of removed entries per task name.
func (s *Sweeper) RunOnce() map[string]int {
	now := s.clock()
	removed := make(map[string]int, len(s.tasks))

	for _, task := range s.tasks {
		n := task.Table.Sweep(now)
		removed[task.Name] = n
		if n > 0 {
			log.Debug().Str("table", task.Name).Int("removed", n).Msg("Expired entries swept")
		}
	}

	return removed
}

// Run sweeps every interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}
