// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/tejzpr/dayline/internal/app"
	"github.com/tejzpr/dayline/internal/indexer"
)

type countingMaintainer struct {
	calls atomic.Int32
	err   error
}

func (m *countingMaintainer) Maintain(context.Context) (*app.MaintenanceResult, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &app.MaintenanceResult{Rebuild: &indexer.Result{}}, nil
}

func TestScheduler_RunsPeriodically(t *testing.T) {
	m := &countingMaintainer{}
	s := NewScheduler(m, 10*time.Millisecond, zerolog.Nop())
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return s.Runs() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	calls := m.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, m.calls.Load(), "no passes after Stop")
}

func TestScheduler_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(&countingMaintainer{}, time.Hour, zerolog.Nop())
	s.Start(ctx)
	cancel()
	s.Stop()
}

func TestScheduler_FailedPassIsNotCounted(t *testing.T) {
	m := &countingMaintainer{err: errors.New("locked")}
	s := NewScheduler(m, time.Hour, zerolog.Nop())

	s.RunOnce(context.Background())
	assert.EqualValues(t, 1, m.calls.Load())
	assert.Zero(t, s.Runs())
}
