// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package search scores free-text queries against every entity type.
//
// Each type has its own lane of flattened documents. A lane is built on
// first use, reused until its TTL lapses or it is invalidated, and then
// rebuilt on the next query:
//
//	cold → indexing → indexed → stale → indexing
package search

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/tejzpr/dayline/internal/errs"
	"github.com/tejzpr/dayline/internal/paging"
	"golang.org/x/sync/singleflight"
)

// Defaults
const (
	DefaultTTL       = 5 * time.Minute
	DefaultCacheSize = 100
)

// LaneState is the lifecycle state of one type's index
type LaneState string

const (
	StateCold     LaneState = "cold"
	StateIndexing LaneState = "indexing"
	StateIndexed  LaneState = "indexed"
	StateStale    LaneState = "stale"
)

var (
	searchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayline_search_queries_total",
			Help: "Search queries by result cache outcome.",
		},
		[]string{"cache"},
	)

	laneBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayline_search_lane_build_seconds",
			Help:    "Time to build one search lane.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// Document is one searchable item produced by a Source
type Document struct {
	ID    string
	Type  string
	Title string
	// Text is everything the query is scored against
	Text string
	Item interface{}
}

// Source loads every document of one type
type Source interface {
	Type() string
	Load(ctx context.Context) ([]Document, error)
}

// Result is one scored match
type Result struct {
	ID    string      `json:"id"`
	Type  string      `json:"type"`
	Title string      `json:"title"`
	Score float64     `json:"score"`
	Item  interface{} `json:"item"`
}

// Options selects and windows search results
type Options struct {
	Limit    int
	Offset   int
	Types    []string
	MinScore float64
}

// Config configures an Index
type Config struct {
	TTL       time.Duration
	CacheSize int
	// Clock returns the current time; nil means time.Now
	Clock  func() time.Time
	Logger *zerolog.Logger
}

type entry struct {
	doc  Document
	text string
}

type lane struct {
	state       LaneState
	entries     []entry
	refreshedAt time.Time
	// bumped on invalidation so an in-flight build cannot mark the lane fresh
	generation int
}

type cachedResult struct {
	key     string
	types   []string
	results []Result
	at      time.Time
}

// Index is the search index over a fixed set of sources
type Index struct {
	sources map[string]Source
	order   []string
	ttl     time.Duration
	size    int
	clock   func() time.Time
	log     zerolog.Logger
	group   singleflight.Group

	mu      sync.Mutex
	lanes   map[string]*lane
	results []cachedResult
}

// New creates an index over sources. Later sources replace earlier ones of
// the same type.
func New(cfg Config, sources ...Source) *Index {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "search").Logger()
	}

	ix := &Index{
		sources: make(map[string]Source, len(sources)),
		ttl:     cfg.TTL,
		size:    cfg.CacheSize,
		clock:   cfg.Clock,
		log:     log,
		lanes:   make(map[string]*lane),
	}
	for _, s := range sources {
		if _, ok := ix.sources[s.Type()]; !ok {
			ix.order = append(ix.order, s.Type())
		}
		ix.sources[s.Type()] = s
	}
	return ix
}

// Types returns the searchable types in registration order
func (ix *Index) Types() []string {
	return slices.Clone(ix.order)
}

// Search scores query against the requested types (all when empty) and
// returns one page of results ordered by score, then text
func (ix *Index) Search(ctx context.Context, query string, opts Options) (paging.Page[Result], error) {
	q := Normalize(query)
	if q == "" {
		return paging.Page[Result]{}, errs.Invalid("search query is empty")
	}
	types, err := ix.resolveTypes(opts.Types)
	if err != nil {
		return paging.Page[Result]{}, err
	}

	key := cacheKey(q, types, opts.MinScore)
	if results, ok := ix.cached(key); ok {
		searchQueries.WithLabelValues("hit").Inc()
		return paging.Paginate(results, opts.Limit, opts.Offset), nil
	}
	searchQueries.WithLabelValues("miss").Inc()

	type scored struct {
		Result
		text string
	}
	var matches []scored
	generations := make(map[string]int, len(types))
	for _, typ := range types {
		entries, generation, err := ix.lane(ctx, typ)
		if err != nil {
			return paging.Page[Result]{}, err
		}
		generations[typ] = generation
		for _, e := range entries {
			s := scoreNormalized(q, e.text)
			if s <= 0 || s < opts.MinScore {
				continue
			}
			matches = append(matches, scored{
				Result: Result{ID: e.doc.ID, Type: e.doc.Type, Title: e.doc.Title, Score: s, Item: e.doc.Item},
				text:   e.text,
			})
		}
	}
	slices.SortStableFunc(matches, func(a, b scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		if c := strings.Compare(a.text, b.text); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = m.Result
	}
	ix.remember(key, types, generations, results)
	return paging.Paginate(results, opts.Limit, opts.Offset), nil
}

func (ix *Index) resolveTypes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return ix.Types(), nil
	}
	out := make([]string, 0, len(requested))
	for _, t := range requested {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, ok := ix.sources[t]; !ok {
			return nil, errs.Invalid("unknown search type %q", t)
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func cacheKey(query string, types []string, minScore float64) string {
	sorted := slices.Clone(types)
	slices.Sort(sorted)
	return fmt.Sprintf("%s|%s|%g", query, strings.Join(sorted, ","), minScore)
}

// lane returns the entries of typ and the lane generation they belong to,
// building the lane when it is cold or stale. Concurrent builds of one
// lane share a single load until the lane is invalidated.
func (ix *Index) lane(ctx context.Context, typ string) ([]entry, int, error) {
	ix.mu.Lock()
	l := ix.lanes[typ]
	if l != nil && l.state == StateIndexed && ix.clock().Sub(l.refreshedAt) < ix.ttl {
		entries, generation := l.entries, l.generation
		ix.mu.Unlock()
		return entries, generation, nil
	}
	if l == nil {
		l = &lane{state: StateCold}
		ix.lanes[typ] = l
		ix.evictLanes(typ)
	}
	l.state = StateIndexing
	generation := l.generation
	ix.mu.Unlock()

	v, err, _ := ix.group.Do(typ, func() (interface{}, error) {
		return ix.build(ctx, typ)
	})
	if err != nil {
		ix.mu.Lock()
		if cur := ix.lanes[typ]; cur != nil && cur.state == StateIndexing {
			cur.state = StateStale
		}
		ix.mu.Unlock()
		return nil, 0, err
	}
	entries := v.([]entry)

	ix.mu.Lock()
	if cur := ix.lanes[typ]; cur != nil && cur.generation == generation {
		cur.entries = entries
		cur.refreshedAt = ix.clock()
		cur.state = StateIndexed
	}
	ix.mu.Unlock()
	return entries, generation, nil
}

func (ix *Index) build(ctx context.Context, typ string) ([]entry, error) {
	start := time.Now()
	docs, err := ix.sources[typ].Load(ctx)
	if err != nil {
		ix.log.Warn().Err(err).Str("type", typ).Msg("search lane build failed")
		return nil, err
	}
	entries := make([]entry, 0, len(docs))
	for _, d := range docs {
		if d.Type == "" {
			d.Type = typ
		}
		text := Normalize(d.Text)
		if text == "" {
			text = Normalize(d.Title)
		}
		entries = append(entries, entry{doc: d, text: text})
	}
	elapsed := time.Since(start)
	laneBuildDuration.WithLabelValues(typ).Observe(elapsed.Seconds())
	ix.log.Debug().Str("type", typ).Int("documents", len(entries)).Dur("elapsed", elapsed).Msg("search lane built")
	return entries, nil
}

// evictLanes drops the least recently refreshed lanes while there are more
// than the cache size. keep is never evicted. Caller holds mu.
func (ix *Index) evictLanes(keep string) {
	for len(ix.lanes) > ix.size {
		victim := ""
		var oldest time.Time
		for typ, l := range ix.lanes {
			if typ == keep {
				continue
			}
			if victim == "" || l.refreshedAt.Before(oldest) {
				victim, oldest = typ, l.refreshedAt
			}
		}
		if victim == "" {
			return
		}
		delete(ix.lanes, victim)
	}
}

func (ix *Index) cached(key string) ([]Result, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	now := ix.clock()
	for _, c := range ix.results {
		if c.key == key && now.Sub(c.at) < ix.ttl {
			return c.results, true
		}
	}
	return nil, false
}

// remember stores results, evicting the oldest insertions past the cache
// size. Results drawn from a lane that was invalidated or evicted since
// are not stored.
func (ix *Index) remember(key string, types []string, generations map[string]int, results []Result) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, t := range types {
		l, ok := ix.lanes[t]
		if !ok || l.generation != generations[t] {
			return
		}
	}
	ix.results = slices.DeleteFunc(ix.results, func(c cachedResult) bool { return c.key == key })
	ix.results = append(ix.results, cachedResult{key: key, types: types, results: results, at: ix.clock()})
	if over := len(ix.results) - ix.size; over > 0 {
		ix.results = slices.Delete(ix.results, 0, over)
	}
}

// Invalidate marks the lanes of the given types stale (all when none are
// given) and drops cached results that drew on them
func (ix *Index) Invalidate(types ...string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(types) == 0 {
		types = ix.order
	}
	for _, t := range types {
		if l, ok := ix.lanes[t]; ok {
			l.state = StateStale
			l.generation++
		}
		// later searches must not join a build that began before now
		ix.group.Forget(t)
	}
	ix.results = slices.DeleteFunc(ix.results, func(c cachedResult) bool {
		for _, t := range c.types {
			if slices.Contains(types, t) {
				return true
			}
		}
		return false
	})
}

// States reports the state of every registered type's lane
func (ix *Index) States() map[string]LaneState {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	now := ix.clock()
	out := make(map[string]LaneState, len(ix.order))
	for _, t := range ix.order {
		l, ok := ix.lanes[t]
		switch {
		case !ok:
			out[t] = StateCold
		case l.state == StateIndexed && now.Sub(l.refreshedAt) >= ix.ttl:
			out[t] = StateStale
		default:
			out[t] = l.state
		}
	}
	return out
}

// CachedResults returns the number of cached result sets
func (ix *Index) CachedResults() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.results)
}
