// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/interval"
)

// upper bound of open-ended range scans
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// columns refreshed when a segment is re-ingested; notes and
// back-references survive
var segmentIngestColumns = []string{
	"start_at", "end_at", "title", "description", "location",
	"response_status", "creator_email", "organizer_email", "attendees", "updated_at",
}

var segmentSortable = map[string]func(a, b database.Segment) int{
	"start": func(a, b database.Segment) int { return a.StartAt.Compare(b.StartAt) },
	"end":   func(a, b database.Segment) int { return a.EndAt.Compare(b.EndAt) },
	"title": func(a, b database.Segment) int { return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)) },
}

// SegmentLookup finds the segment running at an instant
type SegmentLookup interface {
	SegmentAt(ctx context.Context, t time.Time) (string, bool, error)
}

// BackRefs are the derived ids attached to one segment
type BackRefs struct {
	ActivityIDs []string
	EmailIDs    []string
	DocumentIDs []string
}

// SegmentStore holds calendar segments and their resolved attendees
type SegmentStore struct {
	*Store[database.Segment]
	attendees *Store[database.SegmentAttendee]
}

// NewSegmentStore creates the segment store
func NewSegmentStore(conn *database.Conn, opts Options) *SegmentStore {
	return &SegmentStore{
		Store: New(conn, Config[database.Segment]{
			Collection:    database.CollectionSegments,
			Sortable:      segmentSortable,
			IngestColumns: segmentIngestColumns,
			Options:       opts,
		}),
		attendees: New(conn, Config[database.SegmentAttendee]{
			Collection: database.CollectionSegmentAttendees,
			Options:    opts,
		}),
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sortByStart(segments []database.Segment) {
	slices.SortStableFunc(segments, segmentSortable["start"])
}

// ForDay returns the segments starting on day's calendar date, in day's
// location, ordered by start
func (s *SegmentStore) ForDay(ctx context.Context, day time.Time) ([]database.Segment, error) {
	from := startOfDay(day)
	return s.starting(ctx, from, from.AddDate(0, 0, 1))
}

// ForWeek returns the segments starting in the Monday-based week containing day
func (s *SegmentStore) ForWeek(ctx context.Context, day time.Time) ([]database.Segment, error) {
	offset := (int(day.Weekday()) + 6) % 7
	from := startOfDay(day).AddDate(0, 0, -offset)
	return s.starting(ctx, from, from.AddDate(0, 0, 7))
}

func (s *SegmentStore) starting(ctx context.Context, from, to time.Time) ([]database.Segment, error) {
	segments, err := s.GetRange(ctx, "by_start", from, to)
	if err != nil {
		return nil, err
	}
	sortByStart(segments)
	return segments, nil
}

// CurrentOrUpcoming returns segments that have not ended at now, ordered by
// start. limit <= 0 returns all of them.
func (s *SegmentStore) CurrentOrUpcoming(ctx context.Context, now time.Time, limit int) ([]database.Segment, error) {
	segments, err := s.GetRange(ctx, "by_end", now, farFuture)
	if err != nil {
		return nil, err
	}
	segments = slices.DeleteFunc(segments, func(seg database.Segment) bool {
		return seg.State(now) == database.SegmentPast
	})
	sortByStart(segments)
	if limit > 0 && len(segments) > limit {
		segments = segments[:limit]
	}
	return segments, nil
}

// ByAttendeeEmail returns the segments the address attends, ordered by start
func (s *SegmentStore) ByAttendeeEmail(ctx context.Context, email string) ([]database.Segment, error) {
	rows, err := s.attendees.GetByIndex(ctx, "by_email", NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return s.segmentsFor(ctx, rows)
}

// ByPerson returns the segments a person attends under any address
func (s *SegmentStore) ByPerson(ctx context.Context, personID string) ([]database.Segment, error) {
	rows, err := s.attendees.GetByIndex(ctx, "by_person", personID)
	if err != nil {
		return nil, err
	}
	return s.segmentsFor(ctx, rows)
}

func (s *SegmentStore) segmentsFor(ctx context.Context, rows []database.SegmentAttendee) ([]database.Segment, error) {
	ids := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.SegmentID]; ok {
			continue
		}
		seen[r.SegmentID] = struct{}{}
		ids = append(ids, r.SegmentID)
	}
	segments, err := s.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortByStart(segments)
	return segments, nil
}

// Attendees returns the resolved attendee rows of a segment
func (s *SegmentStore) Attendees(ctx context.Context, segmentID string) ([]database.SegmentAttendee, error) {
	return s.attendees.GetByIndex(ctx, "by_segment", segmentID)
}

// AllAttendees returns every resolved attendee row
func (s *SegmentStore) AllAttendees(ctx context.Context) ([]database.SegmentAttendee, error) {
	return s.attendees.List(ctx)
}

// ContainingTime returns the segments whose window strictly contains t
func (s *SegmentStore) ContainingTime(ctx context.Context, t time.Time) ([]database.Segment, error) {
	candidates, err := s.GetSpanning(ctx, "by_start", "by_end", t)
	if err != nil {
		return nil, err
	}
	ivs := make([]interval.Interval, len(candidates))
	byID := make(map[string]database.Segment, len(candidates))
	for i, seg := range candidates {
		ivs[i] = interval.Interval{ID: seg.ID, Start: seg.StartAt, End: seg.EndAt}
		byID[seg.ID] = seg
	}

	ids := interval.NewIndex(ivs).Containing(t)
	out := make([]database.Segment, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

// SegmentAt returns the latest-starting segment running at t
func (s *SegmentStore) SegmentAt(ctx context.Context, t time.Time) (string, bool, error) {
	segments, err := s.ContainingTime(ctx, t)
	if err != nil || len(segments) == 0 {
		return "", false, err
	}
	return segments[len(segments)-1].ID, true, nil
}

// ReplaceAttendees swaps the attendee rows of each listed segment in one
// transaction
func (s *SegmentStore) ReplaceAttendees(ctx context.Context, bySegment map[string][]database.SegmentAttendee) error {
	if len(bySegment) == 0 {
		return nil
	}
	ids := make([]string, 0, len(bySegment))
	var rows []database.SegmentAttendee
	for id, list := range bySegment {
		ids = append(ids, id)
		rows = append(rows, list...)
	}
	slices.Sort(ids)

	return s.attendees.Run(ctx, "replace_attendees", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			if _, err := tx.DeleteByIndexIn(ctx, database.CollectionSegmentAttendees, "by_segment", ids); err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			return tx.Put(ctx, database.CollectionSegmentAttendees, &rows)
		})
	})
}

// SetBackReferences overwrites the derived id lists of each listed segment
func (s *SegmentStore) SetBackReferences(ctx context.Context, refs map[string]BackRefs) error {
	if len(refs) == 0 {
		return nil
	}
	return s.Run(ctx, "set_back_references", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			for id, r := range refs {
				values := map[string]interface{}{
					"activity_ids": jsonList(r.ActivityIDs),
					"email_ids":    jsonList(r.EmailIDs),
					"document_ids": jsonList(r.DocumentIDs),
				}
				if err := tx.Update(ctx, database.CollectionSegments, id, values); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// UpdateNote sets the user's note on a segment
func (s *SegmentStore) UpdateNote(ctx context.Context, id, note string) (database.Segment, error) {
	return s.Update(ctx, id, map[string]interface{}{
		"notes":      note,
		"updated_at": time.Now().UTC(),
	})
}

// jsonList encodes ids the way the json serializer stores them
func jsonList(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}
