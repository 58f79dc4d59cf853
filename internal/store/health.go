// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"fmt"
	"sync"
	"time"
)

// Health thresholds
const (
	HealthWindow       = 100
	SlowQueryThreshold = time.Second
	MaxAverageQuery    = 500 * time.Millisecond
	MaxSlowQueries     = 5
	MaxErrors          = 10
)

// Health summarizes recent store performance
type Health struct {
	Collection     string   `json:"collection"`
	Healthy        bool     `json:"healthy"`
	Samples        int      `json:"samples"`
	AverageQueryMS float64  `json:"average_query_ms"`
	SlowQueries    int      `json:"slow_queries"`
	ErrorCount     int      `json:"error_count"`
	Issues         []string `json:"issues,omitempty"`
}

// healthWindow keeps the last HealthWindow durations in a ring and an
// accumulated error count
type healthWindow struct {
	mu      sync.Mutex
	samples [HealthWindow]time.Duration
	next    int
	filled  int
	errors  int
	slow    time.Duration
}

func newHealthWindow(slow time.Duration) *healthWindow {
	if slow <= 0 {
		slow = SlowQueryThreshold
	}
	return &healthWindow{slow: slow}
}

func (h *healthWindow) record(d time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples[h.next] = d
	h.next = (h.next + 1) % HealthWindow
	if h.filled < HealthWindow {
		h.filled++
	}
	if err != nil {
		h.errors++
	}
}

func (h *healthWindow) report(collection string) Health {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := Health{Collection: collection, Samples: h.filled, ErrorCount: h.errors}
	var sum time.Duration
	for i := 0; i < h.filled; i++ {
		sum += h.samples[i]
		if h.samples[i] > h.slow {
			out.SlowQueries++
		}
	}
	var avg time.Duration
	if h.filled > 0 {
		avg = sum / time.Duration(h.filled)
	}
	out.AverageQueryMS = float64(avg) / float64(time.Millisecond)

	if avg > MaxAverageQuery {
		out.Issues = append(out.Issues, fmt.Sprintf("average query time %s exceeds %s", avg.Round(time.Millisecond), MaxAverageQuery))
	}
	if out.SlowQueries > MaxSlowQueries {
		out.Issues = append(out.Issues, fmt.Sprintf("%d queries slower than %s", out.SlowQueries, h.slow))
	}
	if out.ErrorCount > MaxErrors {
		out.Issues = append(out.Issues, fmt.Sprintf("%d errors recorded", out.ErrorCount))
	}
	out.Healthy = len(out.Issues) == 0
	return out
}
