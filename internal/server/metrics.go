// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MetricsPath is where the metrics server exposes the store and search
// metrics
const MetricsPath = "/metrics"

// MetricsHandler serves the registered metrics in the Prometheus text format
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsServer serves MetricsPath over HTTP next to the stdio transport
type MetricsServer struct {
	srv *http.Server
	log zerolog.Logger
}

// NewMetricsServer creates a metrics server listening on addr
func NewMetricsServer(addr string, log zerolog.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, MetricsHandler())
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "metrics").Logger(),
	}
}

// Start listens in the background until Shutdown
func (m *MetricsServer) Start() {
	go func() {
		m.log.Info().Str("addr", m.srv.Addr).Msg("metrics server listening")
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
