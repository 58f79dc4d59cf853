// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
)

var activitySortable = map[string]func(a, b database.DriveActivity) int{
	"timestamp": func(a, b database.DriveActivity) int { return a.Timestamp.Compare(b.Timestamp) },
	"action":    func(a, b database.DriveActivity) int { return strings.Compare(a.Action, b.Action) },
}

// ActivityStore holds drive activity
type ActivityStore struct {
	*Store[database.DriveActivity]
}

// NewActivityStore creates the drive activity store
func NewActivityStore(conn *database.Conn, opts Options) *ActivityStore {
	return &ActivityStore{
		Store: New(conn, Config[database.DriveActivity]{
			Collection: database.CollectionDriveActivities,
			Sortable:   activitySortable,
			Options:    opts,
		}),
	}
}

// AddBulk ingests activity, resolving each target link to its document id
func (s *ActivityStore) AddBulk(ctx context.Context, items []database.DriveActivity) error {
	for i := range items {
		if items[i].ID == "" {
			return errs.Invalid("drive activity has no id")
		}
		if items[i].DocumentLink != "" {
			items[i].DocumentLink = NormalizeLink(items[i].DocumentLink)
			items[i].DocumentID = DocumentID(items[i].DocumentLink)
		}
		if items[i].ActorPersonID != nil && *items[i].ActorPersonID == "" {
			items[i].ActorPersonID = nil
		}
		items[i].ActorEmail = NormalizeEmail(items[i].ActorEmail)
	}
	return s.Store.AddBulk(ctx, items)
}

// SetActors points each activity, by id, at the person who performed it
func (s *ActivityStore) SetActors(ctx context.Context, actors map[string]string) error {
	if len(actors) == 0 {
		return nil
	}
	ids := make([]string, 0, len(actors))
	for id := range actors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return s.Run(ctx, "set_actors", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			for _, id := range ids {
				if err := tx.Update(ctx, database.CollectionDriveActivities, id, map[string]interface{}{"actor_person_id": actors[id]}); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// ForDocument returns the activity on a document, oldest first
func (s *ActivityStore) ForDocument(ctx context.Context, link string) ([]database.DriveActivity, error) {
	items, err := s.GetByIndex(ctx, "by_document", DocumentID(link))
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, activitySortable["timestamp"])
	return items, nil
}

// ByActor returns the activity performed by a person, oldest first
func (s *ActivityStore) ByActor(ctx context.Context, personID string) ([]database.DriveActivity, error) {
	items, err := s.GetByIndex(ctx, "by_actor", personID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, activitySortable["timestamp"])
	return items, nil
}

// Between returns the activity in [from, to), oldest first
func (s *ActivityStore) Between(ctx context.Context, from, to time.Time) ([]database.DriveActivity, error) {
	return s.GetRange(ctx, "by_timestamp", from, to)
}
