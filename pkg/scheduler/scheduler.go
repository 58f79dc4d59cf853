// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tejzpr/dayline/internal/app"
)

// Maintainer runs one cleanup and reindex pass
type Maintainer interface {
	Maintain(ctx context.Context) (*app.MaintenanceResult, error)
}

// Scheduler handles periodic maintenance
type Scheduler struct {
	target   Maintainer
	interval time.Duration
	log      zerolog.Logger
	stopChan chan struct{}
	done     chan struct{}
	once     sync.Once

	// runs counts completed passes; read through Runs
	mu   sync.Mutex
	runs int
}

// NewScheduler creates a new scheduler
func NewScheduler(target Maintainer, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		target:   target,
		interval: interval,
		log:      log.With().Str("component", "scheduler").Logger(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler. The first pass runs after one interval.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop stops a started scheduler and waits for a running pass to finish.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopChan) })
	<-s.done
}

// RunOnce runs a single maintenance pass, logging its outcome
func (s *Scheduler) RunOnce(ctx context.Context) {
	res, err := s.target.Maintain(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("maintenance failed")
		return
	}
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	s.log.Info().
		Int64("removed", res.Cleanup.Total()).
		Int("segments", res.Rebuild.Segments).
		Time("horizon", res.Horizon).
		Msg("maintenance complete")
}

// Runs returns the number of successful passes
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
