// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
	"github.com/tejzpr/dayline/internal/paging"
)

func testRetry(attempts int) errs.RetryOptions {
	return errs.RetryOptions{
		MaxAttempts: attempts,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func testStoreOptions() Options {
	return Options{Retry: testRetry(3)}
}

func openTestConn(t *testing.T) *database.Conn {
	t.Helper()
	conn, err := database.Open(context.Background(), database.Options{
		InMemory:    true,
		Environment: "isolated",
		Retry:       testRetry(1),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newDocStore(t *testing.T) *Store[database.Document] {
	t.Helper()
	return New(openTestConn(t), Config[database.Document]{
		Collection: database.CollectionDocuments,
		Sortable:   documentSortable,
		Options:    testStoreOptions(),
	})
}

func seedDocs(t *testing.T, s *Store[database.Document], n int) {
	t.Helper()
	docs := make([]database.Document, n)
	for i := range docs {
		docs[i] = database.Document{
			ID:   fmt.Sprintf("d%02d", i),
			Name: fmt.Sprintf("Doc %02d", n-i),
			Link: fmt.Sprintf("https://docs.example.com/d/%02d", i),
		}
	}
	require.NoError(t, s.AddBulk(context.Background(), docs))
}

func TestStore_GetAllPaginates(t *testing.T) {
	ctx := context.Background()
	s := newDocStore(t)
	seedDocs(t, s, 5)

	page, err := s.GetAll(ctx, paging.Options{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextOffset)
	assert.Equal(t, 3, *page.NextOffset)

	page, err = s.GetAll(ctx, paging.Options{Offset: 3})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextOffset)
}

func TestStore_GetAllSorts(t *testing.T) {
	ctx := context.Background()
	s := newDocStore(t)
	seedDocs(t, s, 3)

	page, err := s.GetAll(ctx, paging.Options{OrderBy: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d02", "d01", "d00"}, IDs(page.Data))

	page, err = s.GetAll(ctx, paging.Options{OrderBy: "name", OrderDirection: paging.Desc})
	require.NoError(t, err)
	assert.Equal(t, []string{"d00", "d01", "d02"}, IDs(page.Data))
}

func TestStore_UnknownSortFieldKeepsStorageOrder(t *testing.T) {
	ctx := context.Background()
	s := newDocStore(t)
	seedDocs(t, s, 3)

	page, err := s.GetAll(ctx, paging.Options{OrderBy: "drop table"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d00", "d01", "d02"}, IDs(page.Data))
}

func TestStore_AddRequiresID(t *testing.T) {
	s := newDocStore(t)

	_, err := s.Add(context.Background(), database.Document{Name: "nameless"})
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))

	err = s.AddBulk(context.Background(), []database.Document{{ID: "ok"}, {}})
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a rejected batch stores nothing")
}

func TestStore_UpdateMergesPatch(t *testing.T) {
	ctx := context.Background()
	s := newDocStore(t)
	_, err := s.Add(ctx, database.Document{ID: "d1", Name: "Plan", Link: "https://x/1", MimeType: "doc"})
	require.NoError(t, err)

	updated, err := s.Update(ctx, "d1", map[string]interface{}{"starred": true})
	require.NoError(t, err)
	assert.True(t, updated.Starred)
	assert.Equal(t, "Plan", updated.Name)
	assert.Equal(t, "doc", updated.MimeType)

	_, err = s.Update(ctx, "missing", map[string]interface{}{"starred": true})
	assert.True(t, errs.Is(err, errs.CodeItemNotFound))
}

func TestStore_GetByIDNotFound(t *testing.T) {
	s := newDocStore(t)

	_, err := s.GetByID(context.Background(), "nope")
	assert.True(t, errs.Is(err, errs.CodeItemNotFound))
	assert.Equal(t, 1, s.Health().ErrorCount)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newDocStore(t)
	seedDocs(t, s, 2)

	require.NoError(t, s.Delete(ctx, "d00"))
	require.NoError(t, s.Delete(ctx, "d00"))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_NilConnIsUnavailable(t *testing.T) {
	s := New[database.Document](nil, Config[database.Document]{Collection: database.CollectionDocuments})

	_, err := s.GetAll(context.Background(), paging.Options{})
	assert.True(t, errs.Is(err, errs.CodeUnavailable))
	_, err = s.Add(context.Background(), database.Document{ID: "x"})
	assert.True(t, errs.Is(err, errs.CodeUnavailable))
}

func TestStore_RunRetriesTransientFailures(t *testing.T) {
	s := newDocStore(t)

	calls := 0
	err := s.Run(context.Background(), "probe", func(context.Context, *database.Conn) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStore_RunFailsFastOnNonRetryable(t *testing.T) {
	s := newDocStore(t)

	calls := 0
	err := s.Run(context.Background(), "probe", func(context.Context, *database.Conn) error {
		calls++
		return errs.Invalid("bad")
	})
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))
	assert.Equal(t, 1, calls)
}

func TestStore_RunRecoversPanics(t *testing.T) {
	s := newDocStore(t)

	err := s.Run(context.Background(), "probe", func(context.Context, *database.Conn) error {
		panic("boom")
	})
	assert.True(t, errs.Is(err, errs.CodeInternal))
}

func TestStore_HealthReportsErrors(t *testing.T) {
	s := newDocStore(t)
	assert.True(t, s.Health().Healthy)

	for i := 0; i <= MaxErrors; i++ {
		_ = s.Run(context.Background(), "probe", func(context.Context, *database.Conn) error {
			return errs.Invalid("bad")
		})
	}
	h := s.Health()
	assert.False(t, h.Healthy)
	assert.Equal(t, MaxErrors+1, h.ErrorCount)
	assert.Equal(t, database.CollectionDocuments, h.Collection)
	assert.NotEmpty(t, h.Issues)
}

func TestHealthWindow_SlowQueries(t *testing.T) {
	h := newHealthWindow(10 * time.Millisecond)
	for i := 0; i < MaxSlowQueries+1; i++ {
		h.record(20*time.Millisecond, nil)
	}
	r := h.report("x")
	assert.Equal(t, MaxSlowQueries+1, r.SlowQueries)
	assert.False(t, r.Healthy)

	for i := 0; i < HealthWindow; i++ {
		h.record(time.Millisecond, nil)
	}
	r = h.report("x")
	assert.Equal(t, HealthWindow, r.Samples)
	assert.Zero(t, r.SlowQueries, "old samples fall out of the window")
	assert.True(t, r.Healthy)
}

func TestHealthWindow_AverageThreshold(t *testing.T) {
	h := newHealthWindow(time.Hour)
	h.record(2*time.Second, nil)

	r := h.report("x")
	assert.False(t, r.Healthy)
	assert.InDelta(t, 2000, r.AverageQueryMS, 0.001)
}
