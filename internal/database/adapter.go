// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"github.com/tejzpr/dayline/internal/errs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DefaultOpenTimeout bounds a single open attempt
const DefaultOpenTimeout = 5 * time.Second

// rows per statement for bulk reads and writes
const batchSize = 500

// Options configures Open
type Options struct {
	Type        string // "sqlite" (default) or "postgres"
	DataDir     string
	Environment string
	PostgresDSN string
	InMemory    bool
	Timeout     time.Duration
	Retry       errs.RetryOptions
	Logger      *zerolog.Logger

	// test seams
	connect func(cfg *Config) (*gorm.DB, error)
	remove  func(path string) error
}

// Environments a database can be opened for
var Environments = []string{"production", "test", "isolated"}

func validEnvironment(env string) bool {
	for _, e := range Environments {
		if e == env {
			return true
		}
	}
	return false
}

func (o Options) withDefaults() Options {
	if o.Type == "" {
		o.Type = "sqlite"
	}
	if o.Environment == "" {
		o.Environment = "production"
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultOpenTimeout
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.connect == nil {
		o.connect = Connect
	}
	if o.remove == nil {
		o.remove = os.Remove
	}
	return o
}

// Path returns the database file for the environment, empty when the
// database does not live in a local file
func (o Options) Path() string {
	if o.Type != "sqlite" || o.InMemory {
		return ""
	}
	return filepath.Join(o.DataDir, o.Environment+".db")
}

func (o Options) config() *Config {
	cfg := &Config{
		Type:        o.Type,
		PostgresDSN: o.PostgresDSN,
		BusyTimeout: o.Timeout,
		LogLevel:    logger.Silent,
	}
	if o.InMemory {
		cfg.SQLitePath = MemoryPath
	} else {
		cfg.SQLitePath = o.Path()
	}
	return cfg
}

// Conn is an open, migrated database for one environment
type Conn struct {
	db          *gorm.DB
	environment string
	path        string
	fromVersion int
	dataReset   bool
	log         zerolog.Logger
}

// Open opens the environment's database, migrating it to
// CurrentSchemaVersion. Blocked, terminated and timed-out attempts are
// retried. An unreadable database is deleted and recreated once; the
// returned Conn then reports DataReset.
func Open(ctx context.Context, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	if !validEnvironment(opts.Environment) {
		return nil, errs.Invalid("unknown environment %q", opts.Environment)
	}
	if opts.Type == "sqlite" && !opts.InMemory && opts.DataDir == "" {
		return nil, errs.Invalid("data directory is required for sqlite")
	}
	log := opts.Logger.With().Str("environment", opts.Environment).Logger()

	var (
		conn      *Conn
		recovered bool
		attempt   int
	)
	err := errs.Retry(ctx, opts.Retry, func(ctx context.Context) error {
		attempt++
		c, err := openOnce(ctx, opts)
		if err == nil {
			conn = c
			return nil
		}
		if !errs.Is(err, errs.CodeDatabaseCorrupted) {
			log.Warn().Err(err).Int("attempt", attempt).Msg("database open failed")
			return err
		}
		if recovered {
			return errs.Wrap(errs.CodeRecoveryFailed, "database still unreadable after reset", err)
		}

		recovered = true
		log.Error().Err(err).Str("path", opts.Path()).Msg("database corrupted, resetting")
		if rerr := removeDatabase(opts); rerr != nil {
			return errs.Wrap(errs.CodeRecoveryFailed, "failed to reset corrupted database", rerr)
		}

		c, err = openOnce(ctx, opts)
		if err != nil {
			if errs.Is(err, errs.CodeDatabaseCorrupted) {
				return errs.Wrap(errs.CodeRecoveryFailed, "database still unreadable after reset", err)
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	conn.dataReset = recovered
	conn.log = log
	log.Info().
		Int("from_version", conn.fromVersion).
		Int("version", CurrentSchemaVersion).
		Bool("data_reset", recovered).
		Msg("database opened")
	return conn, nil
}

// OpenOrUnavailable is Open for callers that degrade to an empty dataset:
// any failure is logged and reported as a nil Conn.
func OpenOrUnavailable(ctx context.Context, opts Options) *Conn {
	conn, err := Open(ctx, opts)
	if err != nil {
		l := opts.withDefaults().Logger
		l.Error().Err(err).Str("code", string(errs.CodeOf(err))).Msg("data temporarily unavailable")
		return nil
	}
	return conn
}

type openResult struct {
	db   *gorm.DB
	from int
	err  error
}

// openOnce connects and migrates under the open timeout
func openOnce(parent context.Context, opts Options) (*Conn, error) {
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	ch := make(chan openResult, 1)
	go func() {
		db, err := opts.connect(opts.config())
		if err != nil {
			ch <- openResult{err: err}
			return
		}
		from, err := Migrate(db.WithContext(ctx))
		ch <- openResult{db: db, from: from, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if r.db != nil {
				_ = Close(r.db)
			}
			return nil, errs.Classify(r.err)
		}
		return &Conn{
			db:          r.db,
			environment: opts.Environment,
			path:        opts.Path(),
			fromVersion: r.from,
		}, nil

	case <-ctx.Done():
		// release a connection that finishes after we gave up
		go func() {
			if r := <-ch; r.db != nil {
				_ = Close(r.db)
			}
		}()
		if parent.Err() != nil {
			return nil, errs.Wrap(errs.CodeCancelled, "database open cancelled", parent.Err())
		}
		return nil, errs.New(errs.CodeSetupTimeout,
			fmt.Sprintf("database open exceeded %s", opts.Timeout)).With("environment", opts.Environment)
	}
}

// removeDatabase deletes the database file and its sidecar files
func removeDatabase(opts Options) error {
	path := opts.Path()
	if path == "" {
		return fmt.Errorf("%s database cannot be reset in place", opts.Type)
	}
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := opts.remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// DB returns the underlying GORM handle
func (c *Conn) DB() *gorm.DB { return c.db }

// Environment returns the environment name
func (c *Conn) Environment() string { return c.environment }

// Path returns the database file, empty for in-memory and postgres
func (c *Conn) Path() string { return c.path }

// FromVersion returns the schema version found before migrating
func (c *Conn) FromVersion() int { return c.fromVersion }

// DataReset reports whether the database was wiped during Open, either
// because it was corrupted or because its version was below the floor
func (c *Conn) DataReset() bool {
	return c.dataReset || (c.fromVersion > 0 && c.fromVersion < MinSupportedVersion)
}

// Version returns the stored schema version
func (c *Conn) Version(ctx context.Context) (int, error) {
	v, err := readVersion(c.db.WithContext(ctx))
	return v, errs.Classify(err)
}

// Close closes the connection
func (c *Conn) Close() error {
	return Close(c.db)
}

// Ping checks the connection
func (c *Conn) Ping() error {
	return errs.Classify(Ping(c.db))
}

func (c *Conn) column(collection, index string) (string, error) {
	indexes, ok := Indexes[collection]
	if !ok {
		return "", errs.Invalid("unknown collection %q", collection)
	}
	col, ok := indexes[index]
	if !ok {
		return "", errs.Invalid("collection %q has no index %q", collection, index).
			With("collection", collection)
	}
	return col, nil
}

func (c *Conn) table(ctx context.Context, collection string) (*gorm.DB, error) {
	if _, ok := Indexes[collection]; !ok {
		return nil, errs.Invalid("unknown collection %q", collection)
	}
	return c.db.WithContext(ctx).Table(collection), nil
}

// Get loads the record with id into dest
func (c *Conn) Get(ctx context.Context, collection, id string, dest interface{}) error {
	q, err := c.table(ctx, collection)
	if err != nil {
		return err
	}
	if err := q.Where("id = ?", id).Take(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound(collection, id)
		}
		return errs.Classify(err)
	}
	return nil
}

// GetMany loads the records with the given ids into dest (a slice pointer).
// Missing ids are skipped.
func (c *Conn) GetMany(ctx context.Context, collection string, ids []string, dest interface{}) error {
	if _, err := c.table(ctx, collection); err != nil {
		return err
	}
	out := reflect.ValueOf(dest).Elem()
	out.Set(reflect.MakeSlice(out.Type(), 0, len(ids)))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		part := reflect.New(out.Type())
		if err := c.db.WithContext(ctx).Table(collection).Where("id IN ?", ids[start:end]).Find(part.Interface()).Error; err != nil {
			return errs.Classify(err)
		}
		out.Set(reflect.AppendSlice(out, part.Elem()))
	}
	return nil
}

// GetAll loads the full collection in storage order
func (c *Conn) GetAll(ctx context.Context, collection string, dest interface{}) error {
	q, err := c.table(ctx, collection)
	if err != nil {
		return err
	}
	return errs.Classify(q.Find(dest).Error)
}

// GetByIndex loads every record whose indexed column equals key
func (c *Conn) GetByIndex(ctx context.Context, collection, index string, key interface{}, dest interface{}) error {
	col, err := c.column(collection, index)
	if err != nil {
		return err
	}
	q, err := c.table(ctx, collection)
	if err != nil {
		return err
	}
	return errs.Classify(q.Where(clause.Eq{Column: clause.Column{Name: col}, Value: utcArg(key)}).Find(dest).Error)
}

// times are stored in UTC; bound parameters must match for range scans
func utcArg(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

// GetRange loads records whose indexed column lies in [from, to)
func (c *Conn) GetRange(ctx context.Context, collection, index string, from, to interface{}, dest interface{}) error {
	col, err := c.column(collection, index)
	if err != nil {
		return err
	}
	q, err := c.table(ctx, collection)
	if err != nil {
		return err
	}
	return errs.Classify(q.
		Where(clause.Gte{Column: clause.Column{Name: col}, Value: utcArg(from)}).
		Where(clause.Lt{Column: clause.Column{Name: col}, Value: utcArg(to)}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}}).
		Find(dest).Error)
}

// GetSpanning loads records whose window (startIndex, endIndex) strictly
// contains at, ordered by start
func (c *Conn) GetSpanning(ctx context.Context, collection, startIndex, endIndex string, at time.Time, dest interface{}) error {
	startCol, err := c.column(collection, startIndex)
	if err != nil {
		return err
	}
	endCol, err := c.column(collection, endIndex)
	if err != nil {
		return err
	}
	q, err := c.table(ctx, collection)
	if err != nil {
		return err
	}
	return errs.Classify(q.
		Where(clause.Lt{Column: clause.Column{Name: startCol}, Value: at.UTC()}).
		Where(clause.Gt{Column: clause.Column{Name: endCol}, Value: at.UTC()}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: startCol}}).
		Find(dest).Error)
}

// Count returns the number of records in the collection
func (c *Conn) Count(ctx context.Context, collection string) (int64, error) {
	q, err := c.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, errs.Classify(err)
	}
	return n, nil
}

// Put upserts records (a struct pointer or slice) on id. With no columns
// every column is overwritten; otherwise only the named columns are
// updated on conflict, leaving the rest of an existing row untouched.
func (c *Conn) Put(ctx context.Context, collection string, records interface{}, columns ...string) error {
	q, err := c.table(ctx, collection)
	if err != nil {
		return err
	}
	conflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}}
	if len(columns) == 0 {
		conflict.UpdateAll = true
	} else {
		conflict.DoUpdates = clause.AssignmentColumns(columns)
	}
	return errs.Classify(q.Clauses(conflict).CreateInBatches(records, batchSize).Error)
}

// PutIfAbsent inserts records whose id is not yet stored and leaves
// existing rows untouched
func (c *Conn) PutIfAbsent(ctx context.Context, collection string, records interface{}) error {
	q, err := c.table(ctx, collection)
	if err != nil {
		return err
	}
	conflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}
	return errs.Classify(q.Clauses(conflict).CreateInBatches(records, batchSize).Error)
}

// Update applies column updates to the record with id
func (c *Conn) Update(ctx context.Context, collection, id string, values map[string]interface{}) error {
	q, err := c.table(ctx, collection)
	if err != nil {
		return err
	}
	res := q.Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return errs.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound(collection, id)
	}
	return nil
}

// Delete removes the records with the given ids; missing ids are ignored
func (c *Conn) Delete(ctx context.Context, collection string, ids ...string) error {
	if _, err := c.table(ctx, collection); err != nil {
		return err
	}
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		stmt := fmt.Sprintf("DELETE FROM %s WHERE id IN ?", collection)
		if err := c.db.WithContext(ctx).Exec(stmt, ids[start:end]).Error; err != nil {
			return errs.Classify(err)
		}
	}
	return nil
}

// DeleteByIndex removes every record whose indexed column equals key
func (c *Conn) DeleteByIndex(ctx context.Context, collection, index string, key interface{}) (int64, error) {
	col, err := c.column(collection, index)
	if err != nil {
		return 0, err
	}
	res := c.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", collection, col), key)
	return res.RowsAffected, errs.Classify(res.Error)
}

// DeleteByIndexIn removes every record whose indexed column is one of keys
func (c *Conn) DeleteByIndexIn(ctx context.Context, collection, index string, keys []string) (int64, error) {
	col, err := c.column(collection, index)
	if err != nil {
		return 0, err
	}
	var total int64
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		res := c.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", collection, col), keys[start:end])
		if res.Error != nil {
			return total, errs.Classify(res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// DeleteBefore removes every record whose indexed column is before cutoff
func (c *Conn) DeleteBefore(ctx context.Context, collection, index string, cutoff time.Time) (int64, error) {
	col, err := c.column(collection, index)
	if err != nil {
		return 0, err
	}
	res := c.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE %s < ?", collection, col), cutoff.UTC())
	return res.RowsAffected, errs.Classify(res.Error)
}

// Transaction runs fn against a Conn bound to one storage transaction
func (c *Conn) Transaction(ctx context.Context, fn func(tx *Conn) error) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txConn := *c
		txConn.db = tx
		return fn(&txConn)
	})
}
