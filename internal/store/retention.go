// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"time"

	"github.com/tejzpr/dayline/internal/database"
)

// CleanupResult counts the records a retention pass removed
type CleanupResult struct {
	Segments   int64 `json:"segments"`
	Attendees  int64 `json:"attendees"`
	Activities int64 `json:"activities"`
	Emails     int64 `json:"emails"`
	Visits     int64 `json:"visits"`
}

// Total is the number of records removed
func (r CleanupResult) Total() int64 {
	return r.Segments + r.Attendees + r.Activities + r.Emails + r.Visits
}

// Cleanup removes segments that ended before horizon together with their
// attendee rows and tags, and activities, emails and visits older than
// horizon. Website items, documents and people are kept.
func (s *Stores) Cleanup(ctx context.Context, horizon time.Time) (CleanupResult, error) {
	var res CleanupResult
	err := s.Segments.Run(ctx, "cleanup", func(ctx context.Context, conn *database.Conn) error {
		res = CleanupResult{}
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			var expired []database.Segment
			if err := tx.GetRange(ctx, database.CollectionSegments, "by_end", time.Time{}, horizon, &expired); err != nil {
				return err
			}
			ids := IDs(expired)
			targets := make([]string, len(ids))
			for i, id := range ids {
				targets[i] = TargetKey(database.TagTargetSegment, id)
			}

			var err error
			if res.Attendees, err = tx.DeleteByIndexIn(ctx, database.CollectionSegmentAttendees, "by_segment", ids); err != nil {
				return err
			}
			if _, err = tx.DeleteByIndexIn(ctx, database.CollectionTags, "by_target", targets); err != nil {
				return err
			}
			if err = tx.Delete(ctx, database.CollectionSegments, ids...); err != nil {
				return err
			}
			res.Segments = int64(len(ids))

			if res.Activities, err = tx.DeleteBefore(ctx, database.CollectionDriveActivities, "by_timestamp", horizon); err != nil {
				return err
			}
			if res.Emails, err = tx.DeleteBefore(ctx, database.CollectionEmails, "by_date", horizon); err != nil {
				return err
			}
			res.Visits, err = tx.DeleteBefore(ctx, database.CollectionWebsiteVisits, "by_visited_at", horizon)
			return err
		})
	})
	if err != nil {
		return CleanupResult{}, err
	}
	s.log.Info().
		Time("horizon", horizon).
		Int64("segments", res.Segments).
		Int64("activities", res.Activities).
		Int64("emails", res.Emails).
		Int64("visits", res.Visits).
		Msg("retention cleanup")
	return res, nil
}
