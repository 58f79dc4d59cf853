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
)

// Tuesday
var tuesday = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func segment(id string, start time.Time, d time.Duration) database.Segment {
	return database.Segment{ID: id, Title: "Meeting " + id, StartAt: start, EndAt: start.Add(d)}
}

func newSegments(t *testing.T) (*SegmentStore, *database.Conn) {
	t.Helper()
	conn := openTestConn(t)
	return NewSegmentStore(conn, testStoreOptions()), conn
}

func TestSegmentStore_ForDay(t *testing.T) {
	ctx := context.Background()
	s, _ := newSegments(t)
	require.NoError(t, s.AddBulk(ctx, []database.Segment{
		segment("late", tuesday.Add(14*time.Hour), time.Hour),
		segment("early", tuesday.Add(9*time.Hour), time.Hour),
		segment("tomorrow", tuesday.Add(33*time.Hour), time.Hour),
		segment("yesterday", tuesday.Add(-time.Hour), 30*time.Minute),
	}))

	got, err := s.ForDay(ctx, tuesday.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, IDs(got))
}

func TestSegmentStore_ForDayUsesDayLocation(t *testing.T) {
	ctx := context.Background()
	s, _ := newSegments(t)
	eastern := time.FixedZone("UTC-5", -5*60*60)

	// 23:30 local on the 10th is 04:30 UTC on the 11th
	evening := time.Date(2026, 3, 10, 23, 30, 0, 0, eastern)
	require.NoError(t, s.AddBulk(ctx, []database.Segment{segment("evening", evening, 15*time.Minute)}))

	got, err := s.ForDay(ctx, time.Date(2026, 3, 10, 8, 0, 0, 0, eastern))
	require.NoError(t, err)
	assert.Equal(t, []string{"evening"}, IDs(got))

	got, err = s.ForDay(ctx, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSegmentStore_ForWeekStartsMonday(t *testing.T) {
	ctx := context.Background()
	s, _ := newSegments(t)
	monday := tuesday.AddDate(0, 0, -1)
	sunday := tuesday.AddDate(0, 0, 5)
	require.NoError(t, s.AddBulk(ctx, []database.Segment{
		segment("sun-before", monday.Add(-2*time.Hour), time.Hour),
		segment("mon", monday.Add(9*time.Hour), time.Hour),
		segment("sun", sunday.Add(20*time.Hour), time.Hour),
		segment("next-mon", monday.AddDate(0, 0, 7).Add(time.Hour), time.Hour),
	}))

	got, err := s.ForWeek(ctx, sunday.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"mon", "sun"}, IDs(got))
}

func TestSegmentStore_CurrentOrUpcoming(t *testing.T) {
	ctx := context.Background()
	s, _ := newSegments(t)
	now := tuesday.Add(10 * time.Hour)
	require.NoError(t, s.AddBulk(ctx, []database.Segment{
		segment("past", now.Add(-2*time.Hour), time.Hour),
		segment("ended-now", now.Add(-time.Hour), time.Hour),
		segment("current", now.Add(-30*time.Minute), time.Hour),
		segment("next", now.Add(time.Hour), time.Hour),
		segment("later", now.Add(3*time.Hour), time.Hour),
	}))

	got, err := s.CurrentOrUpcoming(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"current", "next", "later"}, IDs(got))
	assert.Equal(t, database.SegmentCurrent, got[0].State(now))

	got, err = s.CurrentOrUpcoming(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"current", "next"}, IDs(got))
}

func TestSegmentStore_ReingestKeepsNotesAndBackRefs(t *testing.T) {
	ctx := context.Background()
	s, _ := newSegments(t)
	seg := segment("s1", tuesday.Add(9*time.Hour), time.Hour)
	require.NoError(t, s.AddBulk(ctx, []database.Segment{seg}))

	_, err := s.UpdateNote(ctx, "s1", "bring slides")
	require.NoError(t, err)
	require.NoError(t, s.SetBackReferences(ctx, map[string]BackRefs{
		"s1": {ActivityIDs: []string{"a1"}, EmailIDs: []string{"e1"}},
	}))

	seg.Title = "Renamed upstream"
	require.NoError(t, s.AddBulk(ctx, []database.Segment{seg}))

	got, err := s.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed upstream", got.Title)
	assert.Equal(t, "bring slides", got.Notes)
	assert.Equal(t, []string{"a1"}, got.ActivityIDs)
	assert.Equal(t, []string{"e1"}, got.EmailIDs)
	assert.Empty(t, got.DocumentIDs)
}

func TestSegmentStore_ContainingTimeIsOpenInterval(t *testing.T) {
	ctx := context.Background()
	s, _ := newSegments(t)
	start := tuesday.Add(9 * time.Hour)
	require.NoError(t, s.AddBulk(ctx, []database.Segment{
		segment("outer", start, 2*time.Hour),
		segment("inner", start.Add(30*time.Minute), 30*time.Minute),
	}))

	tests := []struct {
		name string
		at   time.Time
		want []string
	}{
		{"at start", start, []string{}},
		{"inside outer", start.Add(10 * time.Minute), []string{"outer"}},
		{"inside both", start.Add(45 * time.Minute), []string{"outer", "inner"}},
		{"at inner end", start.Add(time.Hour), []string{"outer"}},
		{"at outer end", start.Add(2 * time.Hour), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ContainingTime(ctx, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, IDs(got))
		})
	}

	id, ok, err := s.SegmentAt(ctx, start.Add(45*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "inner", id, "the latest-starting segment wins")
}

func TestSegmentStore_SegmentAtFindsLongSegments(t *testing.T) {
	ctx := context.Background()
	s, _ := newSegments(t)
	require.NoError(t, s.AddBulk(ctx, []database.Segment{
		segment("offsite", tuesday, 14*24*time.Hour),
		segment("talk", tuesday.AddDate(0, 0, 9).Add(10*time.Hour), time.Hour),
	}))

	id, ok, err := s.SegmentAt(ctx, tuesday.AddDate(0, 0, 12))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "offsite", id)

	id, ok, err = s.SegmentAt(ctx, tuesday.AddDate(0, 0, 9).Add(10*time.Hour+30*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "talk", id, "the latest-starting segment wins")

	_, ok, err = s.SegmentAt(ctx, tuesday.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.False(t, ok, "the end instant is outside the window")
}

func TestSegmentStore_Attendees(t *testing.T) {
	ctx := context.Background()
	s, _ := newSegments(t)
	require.NoError(t, s.AddBulk(ctx, []database.Segment{
		segment("s1", tuesday.Add(9*time.Hour), time.Hour),
		segment("s2", tuesday.Add(11*time.Hour), time.Hour),
	}))

	require.NoError(t, s.ReplaceAttendees(ctx, map[string][]database.SegmentAttendee{
		"s1": {
			{ID: "s1|ann@example.com", SegmentID: "s1", Email: "ann@example.com", PersonID: "p-ann"},
			{ID: "s1|bob@example.com", SegmentID: "s1", Email: "bob@example.com", PersonID: "p-bob"},
		},
		"s2": {{ID: "s2|ann@example.com", SegmentID: "s2", Email: "ann@example.com", PersonID: "p-ann", Self: true}},
	}))

	got, err := s.ByAttendeeEmail(ctx, " Ann@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, IDs(got))

	got, err = s.ByPerson(ctx, "p-bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, IDs(got))

	// replacing drops rows the new set no longer names
	require.NoError(t, s.ReplaceAttendees(ctx, map[string][]database.SegmentAttendee{
		"s1": {{ID: "s1|ann@example.com", SegmentID: "s1", Email: "ann@example.com", PersonID: "p-ann"}},
	}))
	rows, err := s.Attendees(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p-ann", rows[0].PersonID)

	all, err := s.AllAttendees(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
