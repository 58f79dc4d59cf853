// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package app wires configuration, storage, indexing and search into one
// running instance.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/tejzpr/dayline/internal/config"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
	"github.com/tejzpr/dayline/internal/indexer"
	"github.com/tejzpr/dayline/internal/search"
	"github.com/tejzpr/dayline/internal/store"
)

// App is one configured dayline instance
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Stores  *store.Stores
	Search  *search.Index
	Indexer *indexer.Indexer

	databases *database.Manager
	conn      *database.Conn
	// Clock returns the current time; tests replace it
	Clock func() time.Time
}

// Open opens the configured environment and fails when its database
// cannot be opened
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := build(cfg, log)
	conn, err := a.databases.Get(ctx, cfg.Database.Environment)
	if err != nil {
		return nil, err
	}
	a.attach(conn)
	return a, nil
}

// OpenDegraded is Open for long-running surfaces. A database that cannot
// be opened leaves every store reporting UNAVAILABLE instead of failing.
func OpenDegraded(ctx context.Context, cfg *config.Config, log zerolog.Logger) *App {
	a := build(cfg, log)
	conn, err := a.databases.Get(ctx, cfg.Database.Environment)
	if err != nil {
		a.Log.Error().Err(err).Str("code", string(errs.CodeOf(err))).Msg("data temporarily unavailable")
		conn = nil
	}
	a.attach(conn)
	return a
}

func build(cfg *config.Config, log zerolog.Logger) *App {
	a := &App{
		Config: cfg,
		Log:    log,
		Clock:  time.Now,
	}
	a.databases = database.NewManager(database.Options{
		Type:        cfg.Database.Type,
		DataDir:     cfg.Database.DataDir,
		PostgresDSN: cfg.Database.PostgresDSN,
		InMemory:    cfg.Database.InMemory,
		Timeout:     cfg.OpenTimeout(),
		Retry:       cfg.RetryOptions(),
		Logger:      &a.Log,
	})
	return a
}

func (a *App) attach(conn *database.Conn) {
	a.conn = conn
	a.Stores = store.NewStores(conn, store.Options{
		Retry:  a.Config.RetryOptions(),
		Logger: &a.Log,
	})
	a.Search = search.NewFromStores(a.Stores, search.Config{
		TTL:       a.Config.SearchTTL(),
		CacheSize: a.Config.Search.CacheSize,
		Logger:    &a.Log,
	})
	a.Indexer = indexer.FromStores(a.Stores, a.Search, &a.Log)
}

// Available reports whether the database opened
func (a *App) Available() bool {
	return a.conn != nil
}

// Close closes every open database
func (a *App) Close() error {
	return a.databases.Close()
}

// MaintenanceResult reports one cleanup and reindex pass
type MaintenanceResult struct {
	Horizon time.Time           `json:"horizon"`
	Cleanup store.CleanupResult `json:"cleanup"`
	Rebuild *indexer.Result     `json:"rebuild"`
}

// Maintain removes records older than the retention horizon, rebuilds the
// cross-entity links and marks every search lane stale
func (a *App) Maintain(ctx context.Context) (*MaintenanceResult, error) {
	horizon := a.Config.RetentionHorizon(a.Clock())
	cleaned, err := a.Stores.Cleanup(ctx, horizon)
	if err != nil {
		return nil, err
	}
	rebuilt, err := a.Indexer.Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	a.Search.Invalidate()
	return &MaintenanceResult{Horizon: horizon, Cleanup: cleaned, Rebuild: rebuilt}, nil
}

// DatabaseStatus describes the open database
type DatabaseStatus struct {
	Available   bool   `json:"available"`
	Environment string `json:"environment"`
	Path        string `json:"path,omitempty"`
	Version     int    `json:"version,omitempty"`
	FromVersion int    `json:"from_version,omitempty"`
	DataReset   bool   `json:"data_reset,omitempty"`
}

// Status is the health report of an instance
type Status struct {
	Healthy  bool                        `json:"healthy"`
	Database DatabaseStatus              `json:"database"`
	Stores   []store.Health              `json:"stores"`
	Search   map[string]search.LaneState `json:"search"`
}

// Status reports database, store and search health
func (a *App) Status(ctx context.Context) Status {
	st := Status{
		Database: DatabaseStatus{Environment: a.Config.Database.Environment},
		Stores:   a.Stores.Health(),
		Search:   a.Search.States(),
	}
	if a.conn != nil {
		st.Database.Available = true
		st.Database.Path = a.conn.Path()
		st.Database.FromVersion = a.conn.FromVersion()
		st.Database.DataReset = a.conn.DataReset()
		if v, err := a.conn.Version(ctx); err == nil {
			st.Database.Version = v
		} else {
			a.Log.Warn().Err(err).Msg("failed to read schema version")
		}
	}
	st.Healthy = st.Database.Available && a.Stores.Healthy()
	return st
}
