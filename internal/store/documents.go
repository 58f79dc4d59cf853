// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
)

// trailing path segments selecting an editor or viewer mode
var viewModeSuffixes = []string{"/edit", "/view", "/preview", "/copy", "/comment"}

// actions that count as the user editing a document
var editActions = map[string]bool{"edit": true, "create": true, "rename": true, "restore": true}

var documentSortable = map[string]func(a, b database.Document) int{
	"name":     func(a, b database.Document) int { return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) },
	"modified": func(a, b database.Document) int { return a.ModifiedAt.Compare(b.ModifiedAt) },
}

// NormalizeLink canonicalizes a document link: the query, fragment,
// trailing view-mode segment and trailing slash are dropped and the host
// is lowercased
func NormalizeLink(link string) string {
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return strings.TrimRight(link, "/")
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	p := strings.TrimRight(u.Path, "/")
	for {
		trimmed := false
		for _, suffix := range viewModeSuffixes {
			if strings.HasSuffix(p, suffix) {
				p = strings.TrimRight(strings.TrimSuffix(p, suffix), "/")
				trimmed = true
			}
		}
		if !trimmed {
			break
		}
	}
	u.Path = p
	u.RawPath = ""
	return u.String()
}

// DocumentID derives a document's id from its link
func DocumentID(link string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(NormalizeLink(link))).String()
}

// ActivitySource is the slice of drive activity the document store reads
type ActivitySource interface {
	Between(ctx context.Context, from, to time.Time) ([]database.DriveActivity, error)
}

// CurrentUserSource reports which people are the current user
type CurrentUserSource interface {
	CurrentUserIDs(ctx context.Context) ([]string, error)
}

// DocumentStore holds drive documents
type DocumentStore struct {
	*Store[database.Document]
	activities ActivitySource
	people     CurrentUserSource
}

// NewDocumentStore creates the document store
func NewDocumentStore(conn *database.Conn, opts Options, activities ActivitySource, people CurrentUserSource) *DocumentStore {
	return &DocumentStore{
		Store: New(conn, Config[database.Document]{
			Collection: database.CollectionDocuments,
			Sortable:   documentSortable,
			Options:    opts,
		}),
		activities: activities,
		people:     people,
	}
}

// AddBulk ingests documents keyed by their canonical link. Documents that
// share a link collapse to one record, the last one winning.
func (s *DocumentStore) AddBulk(ctx context.Context, docs []database.Document) error {
	byID := make(map[string]int, len(docs))
	out := make([]database.Document, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Link) == "" {
			return errs.Invalid("document %q has no link", d.Name)
		}
		d.Link = NormalizeLink(d.Link)
		d.ID = DocumentID(d.Link)
		d.ModifiedAt = d.ModifiedAt.UTC()
		if i, ok := byID[d.ID]; ok {
			out[i] = d
			continue
		}
		byID[d.ID] = len(out)
		out = append(out, d)
	}
	return s.Store.AddBulk(ctx, out)
}

// GetByLink returns the document a link resolves to
func (s *DocumentStore) GetByLink(ctx context.Context, link string) (database.Document, error) {
	return s.GetByID(ctx, DocumentID(link))
}

// EditedByCurrentUser returns documents the current user edited in the
// last days days, most recently edited first
func (s *DocumentStore) EditedByCurrentUser(ctx context.Context, now time.Time, days int) ([]database.Document, error) {
	if days <= 0 {
		return nil, errs.Invalid("days must be positive, got %d", days)
	}
	me, err := s.people.CurrentUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(me) == 0 {
		return []database.Document{}, nil
	}

	activity, err := s.activities.Between(ctx, now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]time.Time)
	for _, a := range activity {
		if !editActions[strings.ToLower(a.Action)] || a.ActorPersonID == nil || !slices.Contains(me, *a.ActorPersonID) {
			continue
		}
		id := a.DocumentID
		if id == "" {
			id = DocumentID(a.DocumentLink)
		}
		if a.Timestamp.After(latest[id]) {
			latest[id] = a.Timestamp
		}
	}

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	docs, err := s.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(docs, func(a, b database.Document) int {
		if c := latest[b.ID].Compare(latest[a.ID]); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return docs, nil
}
