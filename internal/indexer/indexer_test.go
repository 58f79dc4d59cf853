// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package indexer

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
	"github.com/tejzpr/dayline/internal/search"
	"github.com/tejzpr/dayline/internal/store"
)

type recordingInvalidator struct {
	lanes []string
}

func (r *recordingInvalidator) Invalidate(types ...string) {
	r.lanes = append(r.lanes, types...)
}

func setup(t *testing.T) (*Indexer, *store.Stores, *recordingInvalidator) {
	t.Helper()
	conn, err := database.Open(context.Background(), database.Options{
		InMemory:    true,
		Environment: "isolated",
		Retry:       errs.RetryOptions{MaxAttempts: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	stores := store.NewStores(conn, store.Options{Retry: errs.RetryOptions{MaxAttempts: 1}})
	inv := &recordingInvalidator{}
	return FromStores(stores, inv, nil), stores, inv
}

func meeting(id string, start time.Time, d time.Duration, attendees ...database.Attendee) database.Segment {
	return database.Segment{ID: id, Title: "Meeting " + id, StartAt: start, EndAt: start.Add(d), Attendees: attendees}
}

func TestIngest_DayScenario(t *testing.T) {
	ctx := context.Background()
	x, stores, inv := setup(t)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	res, err := x.Ingest(ctx, Batch{
		People: []database.Person{{ID: "ann", DisplayName: "Ann", Emails: []string{"ann@example.com"}, IsContact: true}},
		Segments: []database.Segment{
			meeting("today", today.Add(10*time.Hour), time.Hour, database.Attendee{Email: "Ann@Example.com"}),
			meeting("tomorrow", today.Add(34*time.Hour), time.Hour, database.Attendee{Email: "ann@EXAMPLE.com "}),
			meeting("next-week", today.AddDate(0, 0, 7).Add(9*time.Hour), time.Hour, database.Attendee{Email: "ann@example.com"}),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Segments)
	assert.Equal(t, 3, res.Rebuild.Attendees)
	assert.Zero(t, res.Rebuild.PeopleCreated)

	day, err := stores.Segments.ForDay(ctx, today.Add(8*time.Hour))
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "today", day[0].ID)

	rows, err := stores.Segments.AllAttendees(ctx)
	require.NoError(t, err)
	people := map[string]bool{}
	for _, r := range rows {
		people[r.PersonID] = true
	}
	assert.Equal(t, map[string]bool{"ann": true}, people, "both casings resolve to one person")

	assert.Contains(t, inv.lanes, search.TypeSegment)
	assert.Contains(t, inv.lanes, search.TypePerson)
	assert.NotContains(t, inv.lanes, search.TypeWebsite)
}

func TestRebuild_CreatesPeopleForUnknownAddresses(t *testing.T) {
	ctx := context.Background()
	x, stores, _ := setup(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	batch := Batch{Segments: []database.Segment{
		meeting("s1", start, time.Hour,
			database.Attendee{Email: "me@example.com", Self: true, ResponseStatus: "accepted"},
			database.Attendee{Email: "Guest@Example.com", DisplayName: "Guest"}),
	}}
	res, err := x.Ingest(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rebuild.PeopleCreated)
	assert.Equal(t, 1, res.Rebuild.CurrentUsers)

	guest, err := stores.People.GetByEmail(ctx, "guest@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.PersonIDForEmail("guest@example.com"), guest.ID)
	assert.Equal(t, "Guest", guest.DisplayName)
	assert.False(t, guest.IsContact)

	me, err := stores.People.CurrentUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{store.PersonIDForEmail("me@example.com")}, me)

	rows, err := stores.Segments.Attendees(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Email < rows[j].Email })
	assert.Equal(t, "guest@example.com", rows[0].Email)
	assert.True(t, rows[1].Self)
	assert.Equal(t, "accepted", rows[1].ResponseStatus)

	// the second pass finds the stubs and creates nothing
	again, err := x.Ingest(ctx, batch)
	require.NoError(t, err)
	assert.Zero(t, again.Rebuild.PeopleCreated)
	n, err := stores.People.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRebuild_WindowMembership(t *testing.T) {
	ctx := context.Background()
	x, stores, _ := setup(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, err := x.Ingest(ctx, Batch{
		Segments: []database.Segment{
			meeting("outer", start, 2*time.Hour),
			meeting("inner", start.Add(30*time.Minute), 30*time.Minute),
		},
		Activities: []database.DriveActivity{
			{ID: "at-start", Action: "edit", Timestamp: start},
			{ID: "inside-both", Action: "edit", Timestamp: start.Add(45 * time.Minute)},
			{ID: "at-inner-end", Action: "edit", Timestamp: start.Add(time.Hour)},
			{ID: "after", Action: "edit", Timestamp: start.Add(3 * time.Hour)},
		},
		Emails: []database.Email{
			{ID: "mail", Date: start.Add(90 * time.Minute)},
		},
	})
	require.NoError(t, err)

	outer, err := stores.Segments.GetByID(ctx, "outer")
	require.NoError(t, err)
	assert.Equal(t, []string{"inside-both", "at-inner-end"}, outer.ActivityIDs)
	assert.Equal(t, []string{"mail"}, outer.EmailIDs)

	inner, err := stores.Segments.GetByID(ctx, "inner")
	require.NoError(t, err)
	assert.Equal(t, []string{"inside-both"}, inner.ActivityIDs)
	assert.Empty(t, inner.EmailIDs)

	// a rebuild with nothing new yields the same lists, never duplicates
	_, err = x.Rebuild(ctx)
	require.NoError(t, err)
	outer, err = stores.Segments.GetByID(ctx, "outer")
	require.NoError(t, err)
	assert.Equal(t, []string{"inside-both", "at-inner-end"}, outer.ActivityIDs)
}

func TestRebuild_DescriptionLinksKnownDocuments(t *testing.T) {
	ctx := context.Background()
	x, stores, _ := setup(t)
	seg := meeting("s1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), time.Hour)
	seg.Description = "Agenda: https://docs.example.com/d/plan/edit?usp=sharing, notes (https://docs.example.com/d/notes). " +
		"Also https://unknown.example.com/x and again https://docs.example.com/d/plan"

	_, err := x.Ingest(ctx, Batch{
		Segments: []database.Segment{seg},
		Documents: []database.Document{
			{Name: "Plan", Link: "https://docs.example.com/d/plan"},
			{Name: "Notes", Link: "https://docs.example.com/d/notes/view"},
		},
	})
	require.NoError(t, err)

	got, err := stores.Segments.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		store.DocumentID("https://docs.example.com/d/plan"),
		store.DocumentID("https://docs.example.com/d/notes"),
	}, got.DocumentIDs)
}

func TestRebuild_RelinksVisits(t *testing.T) {
	ctx := context.Background()
	x, stores, inv := setup(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// visits arrive before the meeting they happened in
	_, err := x.Ingest(ctx, Batch{Visits: []store.Visit{{URL: "https://example.com", Timestamp: start.Add(10 * time.Minute)}}})
	require.NoError(t, err)
	assert.Contains(t, inv.lanes, search.TypeWebsite)

	res, err := x.Ingest(ctx, Batch{Segments: []database.Segment{meeting("s1", start, time.Hour)}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rebuild.VisitsRelinked)

	visits, err := stores.Websites.VisitsForSegment(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, visits, 1)
}

func TestRebuild_ResolvesActorAddresses(t *testing.T) {
	ctx := context.Background()
	x, stores, _ := setup(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	res, err := x.Ingest(ctx, Batch{
		People:    []database.Person{{ID: "me", DisplayName: "Me", Emails: []string{"me@example.com"}, IsContact: true}},
		Segments:  []database.Segment{meeting("s1", now.Add(-3*time.Hour), time.Hour, database.Attendee{Email: "me@example.com", Self: true})},
		Documents: []database.Document{{Name: "Plan", Link: "https://docs.example.com/d/plan"}},
		Activities: []database.DriveActivity{
			{ID: "a1", Action: "edit", Timestamp: now.Add(-time.Hour), DocumentLink: "https://docs.example.com/d/plan", ActorEmail: "Me@Example.com"},
			{ID: "a2", Action: "edit", Timestamp: now.Add(-time.Hour), DocumentLink: "https://docs.example.com/d/plan", ActorEmail: "guest@example.com"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rebuild.ActorsResolved)
	assert.Equal(t, 1, res.Rebuild.PeopleCreated)

	a1, err := stores.Activities.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, a1.ActorPersonID)
	assert.Equal(t, "me", *a1.ActorPersonID, "the address resolves to the contact, not a derived id")

	a2, err := stores.Activities.GetByID(ctx, "a2")
	require.NoError(t, err)
	require.NotNil(t, a2.ActorPersonID)
	guest, err := stores.People.GetByID(ctx, *a2.ActorPersonID)
	require.NoError(t, err)
	assert.Equal(t, store.PersonIDForEmail("guest@example.com"), guest.ID)

	docs, err := stores.Documents.EditedByCurrentUser(ctx, now, 7)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Plan", docs[0].Name)

	again, err := x.Rebuild(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.ActorsResolved)
	assert.Zero(t, again.OrphansRemoved, "actor stubs stay referenced")
}

func TestRebuild_RemovesOrphanedStubs(t *testing.T) {
	ctx := context.Background()
	x, stores, _ := setup(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, err := x.Ingest(ctx, Batch{Segments: []database.Segment{
		meeting("s1", start, time.Hour, database.Attendee{Email: "gone@example.com"}),
	}})
	require.NoError(t, err)

	require.NoError(t, stores.Segments.Delete(ctx, "s1"))
	_, err = stores.People.Update(ctx, store.PersonIDForEmail("gone@example.com"), map[string]interface{}{"emails": "[]"})
	require.NoError(t, err)

	res, err := x.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrphansRemoved)
}

func TestMergeSegments(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	a := meeting("s1", start, time.Hour, database.Attendee{Email: "Ann@example.com", ResponseStatus: "accepted"})
	b := meeting("s2", start, time.Hour)
	c := meeting("s1", start, time.Hour,
		database.Attendee{Email: "ann@example.com", Self: true},
		database.Attendee{Email: "bob@example.com"})
	c.Title = "Renamed"

	got, merged := MergeSegments([]database.Segment{a, b, c})
	assert.Equal(t, 1, merged)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "Renamed", got[0].Title)
	require.Len(t, got[0].Attendees, 2)
	assert.True(t, got[0].Attendees[0].Self)
	assert.Equal(t, "accepted", got[0].Attendees[0].ResponseStatus)
	assert.Equal(t, "bob@example.com", got[0].Attendees[1].Email)
}
