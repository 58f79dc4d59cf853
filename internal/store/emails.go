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

var emailSortable = map[string]func(a, b database.Email) int{
	"date":    func(a, b database.Email) int { return a.Date.Compare(b.Date) },
	"subject": func(a, b database.Email) int { return strings.Compare(strings.ToLower(a.Subject), strings.ToLower(b.Subject)) },
}

// EmailStore holds email headers
type EmailStore struct {
	*Store[database.Email]
}

// NewEmailStore creates the email store
func NewEmailStore(conn *database.Conn, opts Options) *EmailStore {
	return &EmailStore{
		Store: New(conn, Config[database.Email]{
			Collection: database.CollectionEmails,
			Sortable:   emailSortable,
			Options:    opts,
		}),
	}
}

// AddBulk ingests emails with normalized addresses
func (s *EmailStore) AddBulk(ctx context.Context, items []database.Email) error {
	for i := range items {
		if items[i].ID == "" {
			return errs.Invalid("email has no id")
		}
		items[i].From = NormalizeEmail(items[i].From)
		items[i].To = normalizeEmails(items[i].To)
	}
	return s.Store.AddBulk(ctx, items)
}

// Between returns the emails dated in [from, to), oldest first
func (s *EmailStore) Between(ctx context.Context, from, to time.Time) ([]database.Email, error) {
	return s.GetRange(ctx, "by_date", from, to)
}

// ForThread returns a thread's emails, oldest first
func (s *EmailStore) ForThread(ctx context.Context, threadID string) ([]database.Email, error) {
	items, err := s.GetByIndex(ctx, "by_thread", threadID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, emailSortable["date"])
	return items, nil
}
