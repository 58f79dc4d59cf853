// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package indexer

import (
	"context"
	"slices"

	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/search"
	"github.com/tejzpr/dayline/internal/store"
)

// Batch is one fetch cycle's worth of records
type Batch struct {
	Segments   []database.Segment
	People     []database.Person
	Documents  []database.Document
	Activities []database.DriveActivity
	Emails     []database.Email
	Visits     []store.Visit
}

// Empty reports whether the batch carries no records
func (b Batch) Empty() bool {
	return len(b.Segments)+len(b.People)+len(b.Documents)+len(b.Activities)+len(b.Emails)+len(b.Visits) == 0
}

// IngestResult reports what one ingestion stored and rebuilt
type IngestResult struct {
	Segments      int     `json:"segments"`
	People        int     `json:"people"`
	Documents     int     `json:"documents"`
	Activities    int     `json:"activities"`
	Emails        int     `json:"emails"`
	VisitsTracked int     `json:"visits_tracked"`
	VisitsSkipped int     `json:"visits_skipped"`
	Rebuild       *Result `json:"rebuild"`
}

// Ingest bulk-writes every list of the batch, rebuilds the derived links
// and invalidates the search lanes the batch touched. Each list is written
// in its own transaction; a failure stops the ingestion at that list.
func (x *Indexer) Ingest(ctx context.Context, b Batch) (*IngestResult, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	segments, merged := MergeSegments(b.Segments)
	res := &IngestResult{
		Segments:   len(segments),
		People:     len(b.People),
		Documents:  len(b.Documents),
		Activities: len(b.Activities),
		Emails:     len(b.Emails),
	}

	// people first, so attendee resolution sees fresh addresses
	if err := x.opts.People.AddBulk(ctx, b.People); err != nil {
		return nil, err
	}
	if err := x.opts.Documents.AddBulk(ctx, b.Documents); err != nil {
		return nil, err
	}
	if err := x.opts.Activities.AddBulk(ctx, b.Activities); err != nil {
		return nil, err
	}
	if err := x.opts.Emails.AddBulk(ctx, b.Emails); err != nil {
		return nil, err
	}
	if err := x.opts.Segments.AddBulk(ctx, segments); err != nil {
		return nil, err
	}
	if len(b.Visits) > 0 {
		tracked, skipped, err := x.opts.Visits.TrackVisits(ctx, b.Visits)
		if err != nil {
			return nil, err
		}
		res.VisitsTracked, res.VisitsSkipped = tracked, skipped
	}

	rebuilt, err := x.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	rebuilt.DuplicatesMerged = merged
	res.Rebuild = rebuilt

	if x.opts.Search != nil {
		x.opts.Search.Invalidate(touchedLanes(b)...)
	}
	return res, nil
}

// touchedLanes lists the search lanes a batch changes. Segments and people
// are always refreshed because the rebuild rewrites their links.
func touchedLanes(b Batch) []string {
	lanes := []string{search.TypeSegment, search.TypePerson}
	if len(b.Documents) > 0 {
		lanes = append(lanes, search.TypeDocument)
	}
	if len(b.Visits) > 0 {
		lanes = append(lanes, search.TypeWebsite)
	}
	if len(b.Emails) > 0 {
		lanes = append(lanes, search.TypeEmail)
	}
	return lanes
}

// MergeSegments collapses segments sharing an id into one record, keeping
// first-seen order. The calendar can deliver one copy of a meeting per
// attendee; the later copy's fields win and attendee lists are unioned by
// address. It returns the merged list and how many copies were folded in.
func MergeSegments(segments []database.Segment) ([]database.Segment, int) {
	out := make([]database.Segment, 0, len(segments))
	byID := make(map[string]int, len(segments))
	merged := 0
	for _, seg := range segments {
		i, ok := byID[seg.ID]
		if !ok {
			byID[seg.ID] = len(out)
			seg.Attendees = unionAttendees(nil, seg.Attendees)
			out = append(out, seg)
			continue
		}
		merged++
		seg.Attendees = unionAttendees(out[i].Attendees, seg.Attendees)
		out[i] = seg
	}
	return out, merged
}

// unionAttendees appends next to prev by normalized address. A repeated
// address keeps its position; its record is replaced by the later copy
// with self and organizer flags accumulated.
func unionAttendees(prev, next []database.Attendee) []database.Attendee {
	out := slices.Clone(prev)
	pos := make(map[string]int, len(out)+len(next))
	for i, a := range out {
		pos[store.NormalizeEmail(a.Email)] = i
	}
	for _, a := range next {
		key := store.NormalizeEmail(a.Email)
		if key == "" {
			continue
		}
		if i, ok := pos[key]; ok {
			a.Self = a.Self || out[i].Self
			a.Organizer = a.Organizer || out[i].Organizer
			if a.ResponseStatus == "" {
				a.ResponseStatus = out[i].ResponseStatus
			}
			if a.DisplayName == "" {
				a.DisplayName = out[i].DisplayName
			}
			out[i] = a
			continue
		}
		pos[key] = len(out)
		out = append(out, a)
	}
	return out
}
