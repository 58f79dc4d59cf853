// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tejzpr/dayline/internal/app"
	"github.com/tejzpr/dayline/internal/server"
	"github.com/tejzpr/dayline/pkg/scheduler"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		noScheduler bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dayline tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// stdout carries JSON-RPC only; every log line goes to stderr
			a := app.OpenDegraded(ctx, cfg, log)
			defer a.Close()

			if cfg.Scheduler.Enabled && !noScheduler {
				s := scheduler.NewScheduler(a, time.Duration(cfg.Scheduler.IntervalMinutes)*time.Minute, log)
				s.Start(ctx)
				defer s.Stop()
			}

			if metricsAddr != "" {
				m := server.NewMetricsServer(metricsAddr, log)
				m.Start()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = m.Shutdown(shutdownCtx)
				}()
			}

			srv := server.NewMCPServer(a, Version)
			log.Info().
				Int("tools", len(srv.Tools())).
				Bool("available", a.Available()).
				Str("environment", cfg.Database.Environment).
				Msg("MCP server ready (stdio mode)")

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ServeStdio() }()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info().Msg("shutting down")
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Disable periodic cleanup and reindexing")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	return cmd
}
