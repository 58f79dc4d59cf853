// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
)

func newPeople(t *testing.T) *PersonStore {
	t.Helper()
	return NewPersonStore(openTestConn(t), testStoreOptions())
}

func TestPersonIDForEmail_IsStableAcrossCasing(t *testing.T) {
	assert.Equal(t, PersonIDForEmail("Ann@Example.com"), PersonIDForEmail(" ann@example.com"))
	assert.NotEqual(t, PersonIDForEmail("ann@example.com"), PersonIDForEmail("bob@example.com"))
}

func TestPersonStore_AddBulkIndexesEmails(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t)
	require.NoError(t, s.AddBulk(ctx, []database.Person{
		{ID: "p1", DisplayName: "Ann", Emails: []string{" Ann@Example.com", "ann@example.com", ""}, IsContact: true},
		{ID: "p2", DisplayName: "Bob", Emails: []string{"bob@example.com", "shared@example.com"}},
		{ID: "p3", DisplayName: "Cat", Emails: []string{"SHARED@example.com"}},
	}))

	p, err := s.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ann@example.com"}, p.Emails)

	id, ok, err := s.ResolveEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "p1", id)

	got, err := s.GetByEmail(ctx, "shared@example.com")
	require.NoError(t, err)
	assert.Equal(t, "p3", got.ID, "the later record in a batch owns the address")

	_, ok, err = s.ResolveEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetByEmail(ctx, "nobody@example.com")
	assert.True(t, errs.Is(err, errs.CodeItemNotFound))
}

func TestPersonStore_ReindexGivesUnownedAddressToContact(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t)
	// neither write records an owner for the address
	require.NoError(t, s.EnsurePeople(ctx, []database.Person{
		{ID: "stub", Emails: []string{"dana@example.com"}},
		{ID: "contact", Emails: []string{"dana@example.com"}, IsContact: true},
	}))

	conflicts, err := s.ReindexEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, conflicts)

	id, ok, err := s.ResolveEmail(ctx, "dana@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "contact", id)
}

func TestPersonStore_ReindexKeepsLastWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("within a batch", func(t *testing.T) {
		s := newPeople(t)
		require.NoError(t, s.AddBulk(ctx, []database.Person{
			{ID: "zed", Emails: []string{"shared@example.com"}, IsContact: true},
			{ID: "amy", Emails: []string{"shared@example.com"}, IsContact: true},
		}))

		_, err := s.ReindexEmails(ctx)
		require.NoError(t, err)
		id, _, err := s.ResolveEmail(ctx, "shared@example.com")
		require.NoError(t, err)
		assert.Equal(t, "amy", id)
	})

	t.Run("across batches after a note edit", func(t *testing.T) {
		s := newPeople(t)
		require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "old", Emails: []string{"shared@example.com"}, IsContact: true}}))
		require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "new", Emails: []string{"shared@example.com"}, IsContact: true}}))

		_, err := s.UpdateNote(ctx, "old", "met at the offsite")
		require.NoError(t, err)
		_, err = s.ReindexEmails(ctx)
		require.NoError(t, err)

		id, _, err := s.ResolveEmail(ctx, "shared@example.com")
		require.NoError(t, err)
		assert.Equal(t, "new", id)
	})

	t.Run("owner drops the address", func(t *testing.T) {
		s := newPeople(t)
		require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "old", Emails: []string{"shared@example.com"}}}))
		require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "new", Emails: []string{"shared@example.com"}}}))
		require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "new", Emails: []string{"other@example.com"}}}))

		_, err := s.ReindexEmails(ctx)
		require.NoError(t, err)
		index, err := s.EmailIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"shared@example.com": "old", "other@example.com": "new"}, index)
	})
}

func TestPersonStore_ReindexDropsStaleEntries(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t)
	require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "p1", Emails: []string{"old@example.com"}}}))
	require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "p1", Emails: []string{"new@example.com"}}}))

	_, err := s.ReindexEmails(ctx)
	require.NoError(t, err)

	index, err := s.EmailIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"new@example.com": "p1"}, index)
}

func TestPersonStore_EnsurePeopleKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t)
	require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "p1", DisplayName: "Ann", IsContact: true}}))

	require.NoError(t, s.EnsurePeople(ctx, []database.Person{
		{ID: "p1", DisplayName: "stub"},
		{ID: "p2", DisplayName: "new"},
	}))

	p1, err := s.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", p1.DisplayName)
	assert.True(t, p1.IsContact)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPersonStore_GetByIDsByFrequency(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t)
	require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "a"}, {ID: "b"}, {ID: "c"}}))

	got, err := s.GetByIDsByFrequency(ctx, []string{"c", "a", "b", "a", "b", "missing", "missing", "missing", ""})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID, "ties keep first-seen order")
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, 1, got[2].Count)
}

func TestPersonStore_CurrentUserSurvivesReingest(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t)
	require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "me", DisplayName: "Me"}, {ID: "you"}}))
	require.NoError(t, s.MarkCurrentUser(ctx, []string{"me"}))
	_, err := s.UpdateNote(ctx, "me", "hello")
	require.NoError(t, err)

	require.NoError(t, s.AddBulk(ctx, []database.Person{{ID: "me", DisplayName: "Me Updated"}}))

	ids, err := s.CurrentUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"me"}, ids)

	me, err := s.GetByID(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, "Me Updated", me.DisplayName)
	assert.Equal(t, "hello", me.Notes)

	err = s.MarkCurrentUser(ctx, []string{"ghost"})
	assert.True(t, errs.Is(err, errs.CodeItemNotFound))
}

func TestPersonStore_RemoveOrphans(t *testing.T) {
	ctx := context.Background()
	s := newPeople(t)
	require.NoError(t, s.AddBulk(ctx, []database.Person{
		{ID: "contact", IsContact: true},
		{ID: "owner", Emails: []string{"owner@example.com"}},
		{ID: "referenced"},
		{ID: "orphan"},
	}))

	removed, err := s.RemoveOrphans(ctx, map[string]struct{}{"referenced": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.GetByID(ctx, "orphan")
	assert.True(t, errs.Is(err, errs.CodeItemNotFound))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
