// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
)

func TestNormalizeLink(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://docs.example.com/d/abc/edit", "https://docs.example.com/d/abc"},
		{"https://DOCS.example.com/d/abc/edit?usp=sharing#heading=h.1", "https://docs.example.com/d/abc"},
		{"https://docs.example.com/d/abc/view/", "https://docs.example.com/d/abc"},
		{"https://docs.example.com/d/abc/preview/edit", "https://docs.example.com/d/abc"},
		{"https://docs.example.com/d/abc", "https://docs.example.com/d/abc"},
		{"not a link/", "not a link"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLink(tt.in))
		})
	}
}

func newDocuments(t *testing.T) (*DocumentStore, *ActivityStore, *PersonStore) {
	t.Helper()
	conn := openTestConn(t)
	opts := testStoreOptions()
	activities := NewActivityStore(conn, opts)
	people := NewPersonStore(conn, opts)
	return NewDocumentStore(conn, opts, activities, people), activities, people
}

func TestDocumentStore_AddBulkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	docs, _, _ := newDocuments(t)

	batch := []database.Document{
		{Name: "Plan", Link: "https://docs.example.com/d/plan/edit"},
		{Name: "Plan v2", Link: "https://docs.example.com/d/plan/view?x=1"},
		{Name: "Notes", Link: "https://docs.example.com/d/notes"},
	}
	require.NoError(t, docs.AddBulk(ctx, batch))
	require.NoError(t, docs.AddBulk(ctx, batch))

	n, err := docs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	plan, err := docs.GetByLink(ctx, "https://docs.example.com/d/plan")
	require.NoError(t, err)
	assert.Equal(t, "Plan v2", plan.Name)
	assert.Equal(t, DocumentID("https://docs.example.com/d/plan/comment"), plan.ID)

	err = docs.AddBulk(ctx, []database.Document{{Name: "linkless"}})
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))
}

func TestDocumentStore_EditedByCurrentUser(t *testing.T) {
	ctx := context.Background()
	docs, activities, people := newDocuments(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, people.AddBulk(ctx, []database.Person{{ID: "me"}, {ID: "other"}}))
	require.NoError(t, people.MarkCurrentUser(ctx, []string{"me"}))
	require.NoError(t, docs.AddBulk(ctx, []database.Document{
		{Name: "A", Link: "https://d.example.com/a"},
		{Name: "B", Link: "https://d.example.com/b"},
		{Name: "C", Link: "https://d.example.com/c"},
		{Name: "Old", Link: "https://d.example.com/old"},
	}))

	me, other := "me", "other"
	require.NoError(t, activities.AddBulk(ctx, []database.DriveActivity{
		{ID: "1", Action: "edit", ActorPersonID: &me, DocumentLink: "https://d.example.com/a/edit", Timestamp: now.Add(-48 * time.Hour)},
		{ID: "2", Action: "create", ActorPersonID: &me, DocumentLink: "https://d.example.com/b", Timestamp: now.Add(-time.Hour)},
		{ID: "3", Action: "view", ActorPersonID: &me, DocumentLink: "https://d.example.com/c", Timestamp: now.Add(-time.Hour)},
		{ID: "4", Action: "edit", ActorPersonID: &other, DocumentLink: "https://d.example.com/c", Timestamp: now.Add(-time.Hour)},
		{ID: "5", Action: "edit", ActorPersonID: &me, DocumentLink: "https://d.example.com/old", Timestamp: now.AddDate(0, 0, -30)},
	}))

	got, err := docs.EditedByCurrentUser(ctx, now, 7)
	require.NoError(t, err)
	names := make([]string, len(got))
	for i, d := range got {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"B", "A"}, names)

	_, err = docs.EditedByCurrentUser(ctx, now, 0)
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))
}

func TestActivityStore_ForDocumentAndActor(t *testing.T) {
	ctx := context.Background()
	_, activities, _ := newDocuments(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	me, blank := "me", ""

	require.NoError(t, activities.AddBulk(ctx, []database.DriveActivity{
		{ID: "2", Action: "edit", ActorPersonID: &me, DocumentLink: "https://d.example.com/a/edit", Timestamp: now},
		{ID: "1", Action: "view", ActorPersonID: &blank, DocumentLink: "https://d.example.com/a?usp=x", Timestamp: now.Add(-time.Hour)},
	}))

	got, err := activities.ForDocument(ctx, "https://d.example.com/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, IDs(got))
	assert.Nil(t, got[0].ActorPersonID, "an empty actor is stored as none")

	got, err = activities.ByActor(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, IDs(got))

	got, err = activities.Between(ctx, now.Add(-30*time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, IDs(got))
}

func TestEmailStore_ThreadAndRange(t *testing.T) {
	ctx := context.Background()
	emails := NewEmailStore(openTestConn(t), testStoreOptions())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, emails.AddBulk(ctx, []database.Email{
		{ID: "e2", ThreadID: "t1", From: "Ann@Example.com", To: []string{"BOB@example.com", "bob@example.com"}, Date: now},
		{ID: "e1", ThreadID: "t1", Date: now.Add(-2 * time.Hour)},
		{ID: "e3", ThreadID: "t2", Date: now.Add(time.Hour)},
	}))

	got, err := emails.ForThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, IDs(got))
	assert.Equal(t, "ann@example.com", got[1].From)
	assert.Equal(t, []string{"bob@example.com"}, got[1].To)

	got, err = emails.Between(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, IDs(got))
}
