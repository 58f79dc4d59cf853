// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dayline",
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Store operation latency including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection", "op"},
	)

	queryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayline",
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Store operations that surfaced a failure.",
		},
		[]string{"collection", "op", "code"},
	)
)
