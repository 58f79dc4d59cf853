// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package store gives every entity collection pagination, sorting, retries,
// bulk writes and health reporting, and builds the typed stores on top.
//
// Every exported operation returns either a value or an *errs.Error; panics
// and raw driver errors never cross this package boundary.
package store

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
	"github.com/tejzpr/dayline/internal/paging"
)

// Entity is a record keyed by a stable string id
type Entity interface {
	EntityID() string
}

// Options are shared by every store
type Options struct {
	Retry     errs.RetryOptions
	SlowQuery time.Duration
	Logger    *zerolog.Logger
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// Config binds a Store to one collection
type Config[T Entity] struct {
	Collection string
	// Sortable lists the fields GetAll may order by
	Sortable map[string]func(a, b T) int
	// IngestColumns are the columns AddBulk overwrites on conflict.
	// Empty means every column.
	IngestColumns []string
	Options
}

// Store is the generic entity store for one collection
type Store[T Entity] struct {
	conn   *database.Conn
	cfg    Config[T]
	health *healthWindow
	log    zerolog.Logger
}

// New creates a store. A nil conn yields a store whose every operation
// fails with UNAVAILABLE.
func New[T Entity](conn *database.Conn, cfg Config[T]) *Store[T] {
	return &Store[T]{
		conn:   conn,
		cfg:    cfg,
		health: newHealthWindow(cfg.SlowQuery),
		log:    cfg.logger().With().Str("collection", cfg.Collection).Logger(),
	}
}

// Collection returns the collection name
func (s *Store[T]) Collection() string { return s.cfg.Collection }

// Run executes fn with retries, panic recovery, classification and
// timing. Typed stores route their composite operations through it.
func (s *Store[T]) Run(ctx context.Context, op string, fn func(ctx context.Context, conn *database.Conn) error) error {
	start := time.Now()

	var err error
	if s.conn == nil {
		err = errs.New(errs.CodeUnavailable, "data temporarily unavailable").With("collection", s.cfg.Collection)
	} else {
		err = errs.Retry(ctx, s.cfg.Retry, func(ctx context.Context) (err error) {
			defer errs.RecoverInto(&err)
			return errs.Classify(fn(ctx, s.conn))
		})
	}

	elapsed := time.Since(start)
	s.health.record(elapsed, err)
	queryDuration.WithLabelValues(s.cfg.Collection, op).Observe(elapsed.Seconds())

	if err != nil {
		queryErrors.WithLabelValues(s.cfg.Collection, op, string(errs.CodeOf(err))).Inc()
		if !errs.Is(err, errs.CodeItemNotFound) {
			s.log.Warn().Err(err).Str("op", op).Dur("elapsed", elapsed).Msg("store operation failed")
		}
	} else if elapsed > s.health.slow {
		s.log.Warn().Str("op", op).Dur("elapsed", elapsed).Msg("slow store operation")
	}
	return err
}

// GetAll returns one page of the collection, sorted when OrderBy names a
// sortable field. Unknown fields leave the storage order.
func (s *Store[T]) GetAll(ctx context.Context, opts paging.Options) (paging.Page[T], error) {
	return s.Query(ctx, nil, opts)
}

// Query is GetAll over the items accepted by keep
func (s *Store[T]) Query(ctx context.Context, keep func(T) bool, opts paging.Options) (paging.Page[T], error) {
	items, err := s.List(ctx)
	if err != nil {
		return paging.Page[T]{}, err
	}
	if keep != nil {
		items = slices.DeleteFunc(items, func(v T) bool { return !keep(v) })
	}
	s.Sort(items, opts.OrderBy, opts.OrderDirection)
	return paging.Paginate(items, opts.Limit, opts.Offset), nil
}

// Sort orders items in place by a sortable field; unknown fields are ignored
func (s *Store[T]) Sort(items []T, field string, dir paging.Direction) {
	cmp, ok := s.cfg.Sortable[field]
	if !ok {
		return
	}
	if dir == paging.Desc {
		slices.SortStableFunc(items, func(a, b T) int { return cmp(b, a) })
		return
	}
	slices.SortStableFunc(items, cmp)
}

// List returns the full collection in storage order
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	var items []T
	err := s.Run(ctx, "list", func(ctx context.Context, conn *database.Conn) error {
		items = nil
		return conn.GetAll(ctx, s.cfg.Collection, &items)
	})
	return items, err
}

// GetByID returns the record with id or ITEM_NOT_FOUND
func (s *Store[T]) GetByID(ctx context.Context, id string) (T, error) {
	var item T
	err := s.Run(ctx, "get", func(ctx context.Context, conn *database.Conn) error {
		return conn.Get(ctx, s.cfg.Collection, id, &item)
	})
	return item, err
}

// GetMany returns the records with the given ids; missing ids are skipped
func (s *Store[T]) GetMany(ctx context.Context, ids []string) ([]T, error) {
	var items []T
	err := s.Run(ctx, "get_many", func(ctx context.Context, conn *database.Conn) error {
		return conn.GetMany(ctx, s.cfg.Collection, ids, &items)
	})
	return items, err
}

// GetByIndex returns every record whose named index equals key
func (s *Store[T]) GetByIndex(ctx context.Context, index string, key interface{}) ([]T, error) {
	var items []T
	err := s.Run(ctx, "get_by_index", func(ctx context.Context, conn *database.Conn) error {
		items = nil
		return conn.GetByIndex(ctx, s.cfg.Collection, index, key, &items)
	})
	return items, err
}

// GetRange returns every record whose named index lies in [from, to)
func (s *Store[T]) GetRange(ctx context.Context, index string, from, to interface{}) ([]T, error) {
	var items []T
	err := s.Run(ctx, "get_range", func(ctx context.Context, conn *database.Conn) error {
		items = nil
		return conn.GetRange(ctx, s.cfg.Collection, index, from, to, &items)
	})
	return items, err
}

// GetSpanning returns every record whose window between the two named
// indices strictly contains at
func (s *Store[T]) GetSpanning(ctx context.Context, startIndex, endIndex string, at time.Time) ([]T, error) {
	var items []T
	err := s.Run(ctx, "get_spanning", func(ctx context.Context, conn *database.Conn) error {
		items = nil
		return conn.GetSpanning(ctx, s.cfg.Collection, startIndex, endIndex, at, &items)
	})
	return items, err
}

// Count returns the number of records
func (s *Store[T]) Count(ctx context.Context) (int, error) {
	var n int64
	err := s.Run(ctx, "count", func(ctx context.Context, conn *database.Conn) error {
		var err error
		n, err = conn.Count(ctx, s.cfg.Collection)
		return err
	})
	return int(n), err
}

// Add stores item, replacing any record with the same id
func (s *Store[T]) Add(ctx context.Context, item T) (T, error) {
	if item.EntityID() == "" {
		var zero T
		return zero, errs.Invalid("%s record has no id", s.cfg.Collection)
	}
	err := s.Run(ctx, "add", func(ctx context.Context, conn *database.Conn) error {
		return conn.Put(ctx, s.cfg.Collection, &item)
	})
	return item, err
}

// AddBulk upserts items in one transaction: either all are stored or none
func (s *Store[T]) AddBulk(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		if item.EntityID() == "" {
			return errs.Invalid("%s record has no id", s.cfg.Collection)
		}
	}
	return s.Run(ctx, "add_bulk", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			return tx.Put(ctx, s.cfg.Collection, &items, s.cfg.IngestColumns...)
		})
	})
}

// Update merges patch (column → value) over the existing record and
// returns the result. It fails with ITEM_NOT_FOUND if id is absent.
func (s *Store[T]) Update(ctx context.Context, id string, patch map[string]interface{}) (T, error) {
	var item T
	err := s.Run(ctx, "update", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			var existing T
			if err := tx.Get(ctx, s.cfg.Collection, id, &existing); err != nil {
				return err
			}
			if len(patch) > 0 {
				if err := tx.Update(ctx, s.cfg.Collection, id, patch); err != nil {
					return err
				}
			}
			return tx.Get(ctx, s.cfg.Collection, id, &item)
		})
	})
	return item, err
}

// Delete removes the record with id; deleting a missing id is not an error
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	return s.Run(ctx, "delete", func(ctx context.Context, conn *database.Conn) error {
		return conn.Delete(ctx, s.cfg.Collection, id)
	})
}

// DeleteMany removes the records with the given ids
func (s *Store[T]) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.Run(ctx, "delete_many", func(ctx context.Context, conn *database.Conn) error {
		return conn.Delete(ctx, s.cfg.Collection, ids...)
	})
}

// Health reports on the last HealthWindow operations
func (s *Store[T]) Health() Health {
	return s.health.report(s.cfg.Collection)
}

// IDs returns the ids of items
func IDs[T Entity](items []T) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.EntityID()
	}
	return out
}
