// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
)

// notes and the current-user flag are never overwritten by ingestion
var personIngestColumns = []string{"display_name", "emails", "avatar_url", "is_contact", "updated_at"}

var personSortable = map[string]func(a, b database.Person) int{
	"name":    func(a, b database.Person) int { return strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)) },
	"created": func(a, b database.Person) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

// NormalizeEmail trims and lowercases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PersonIDForEmail is the deterministic id of a person known only by address
func PersonIDForEmail(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+NormalizeEmail(email))).String()
}

// normalizeEmails normalizes, drops empties and dedupes, keeping order
func normalizeEmails(emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		n := NormalizeEmail(e)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// RankedPerson is a person with the number of times they were referenced
type RankedPerson struct {
	database.Person
	Count int `json:"count"`
}

// PersonStore holds people and the email → person index
type PersonStore struct {
	*Store[database.Person]
	emails *Store[database.PersonEmail]
}

// NewPersonStore creates the person store
func NewPersonStore(conn *database.Conn, opts Options) *PersonStore {
	return &PersonStore{
		Store: New(conn, Config[database.Person]{
			Collection:    database.CollectionPeople,
			Sortable:      personSortable,
			IngestColumns: personIngestColumns,
			Options:       opts,
		}),
		emails: New(conn, Config[database.PersonEmail]{
			Collection: database.CollectionPersonEmails,
			Options:    opts,
		}),
	}
}

// AddBulk ingests people with normalized addresses and points each address
// at its person. Within a batch the later person wins an address.
func (s *PersonStore) AddBulk(ctx context.Context, people []database.Person) error {
	if len(people) == 0 {
		return nil
	}
	now := time.Now().UTC()
	index := make(map[string]database.PersonEmail)
	for i := range people {
		if people[i].ID == "" {
			return errs.Invalid("person record has no id")
		}
		people[i].Emails = normalizeEmails(people[i].Emails)
		people[i].UpdatedAt = now
		for _, e := range people[i].Emails {
			index[e] = database.PersonEmail{ID: e, PersonID: people[i].ID, UpdatedAt: now}
		}
	}
	entries := make([]database.PersonEmail, 0, len(index))
	for _, e := range index {
		entries = append(entries, e)
	}

	return s.Run(ctx, "add_bulk", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			if err := tx.Put(ctx, database.CollectionPeople, &people, personIngestColumns...); err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}
			return tx.Put(ctx, database.CollectionPersonEmails, &entries)
		})
	})
}

// EnsurePeople inserts people that do not exist yet and leaves existing
// records untouched
func (s *PersonStore) EnsurePeople(ctx context.Context, people []database.Person) error {
	if len(people) == 0 {
		return nil
	}
	return s.Run(ctx, "ensure", func(ctx context.Context, conn *database.Conn) error {
		return conn.PutIfAbsent(ctx, database.CollectionPeople, &people)
	})
}

// ResolveEmail returns the person id an address maps to
func (s *PersonStore) ResolveEmail(ctx context.Context, email string) (string, bool, error) {
	entry, err := s.emails.GetByID(ctx, NormalizeEmail(email))
	if errs.Is(err, errs.CodeItemNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.PersonID, true, nil
}

// EmailIndex returns the full address → person id map
func (s *PersonStore) EmailIndex(ctx context.Context) (map[string]string, error) {
	entries, err := s.emails.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.ID] = e.PersonID
	}
	return out, nil
}

// GetByEmail returns the person an address resolves to
func (s *PersonStore) GetByEmail(ctx context.Context, email string) (database.Person, error) {
	id, ok, err := s.ResolveEmail(ctx, email)
	if err != nil {
		return database.Person{}, err
	}
	if !ok {
		return database.Person{}, errs.NotFound(database.CollectionPersonEmails, NormalizeEmail(email))
	}
	return s.GetByID(ctx, id)
}

// ReindexEmails normalizes every person's addresses and rebuilds the email
// index from them. An address keeps its recorded owner while that person
// still lists it, so the last write stands. An address without a valid
// owner goes to the first contact claiming it, or else to the first
// claimant. It returns the number of addresses claimed by more than one
// person.
func (s *PersonStore) ReindexEmails(ctx context.Context) (int, error) {
	people, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	recorded, err := s.EmailIndex(ctx)
	if err != nil {
		return 0, err
	}

	claimants := make(map[string][]database.Person)
	var changed []database.Person
	for _, p := range people {
		emails := normalizeEmails(p.Emails)
		if !slices.Equal(emails, p.Emails) {
			p.Emails = emails
			changed = append(changed, p)
		}
		for _, e := range emails {
			claimants[e] = append(claimants[e], p)
		}
	}

	now := time.Now().UTC()
	owner := make(map[string]string, len(claimants))
	conflicts := 0
	var entries []database.PersonEmail
	for e, claims := range claimants {
		if len(claims) > 1 {
			conflicts++
		}
		owner[e] = pickOwner(recorded[e], claims)
		if recorded[e] != owner[e] {
			entries = append(entries, database.PersonEmail{ID: e, PersonID: owner[e], UpdatedAt: now})
		}
	}
	slices.SortFunc(entries, func(a, b database.PersonEmail) int { return strings.Compare(a.ID, b.ID) })

	var drop []string
	for e := range recorded {
		if _, ok := owner[e]; !ok {
			drop = append(drop, e)
		}
	}
	slices.Sort(drop)

	err = s.Run(ctx, "reindex_emails", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			if len(changed) > 0 {
				if err := tx.Put(ctx, database.CollectionPeople, &changed, "emails"); err != nil {
					return err
				}
			}
			if err := tx.Delete(ctx, database.CollectionPersonEmails, drop...); err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}
			return tx.Put(ctx, database.CollectionPersonEmails, &entries)
		})
	})
	return conflicts, err
}

func pickOwner(recorded string, claims []database.Person) string {
	for _, p := range claims {
		if p.ID == recorded {
			return recorded
		}
	}
	for _, p := range claims {
		if p.IsContact {
			return p.ID
		}
	}
	return claims[0].ID
}

// GetByIDsByFrequency returns the referenced people ordered by how often
// their id occurs in ids, most frequent first; ties keep first-seen order.
func (s *PersonStore) GetByIDsByFrequency(ctx context.Context, ids []string) ([]RankedPerson, error) {
	counts := make(map[string]int)
	var order []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}
	slices.SortStableFunc(order, func(a, b string) int { return counts[b] - counts[a] })

	people, err := s.GetMany(ctx, order)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]database.Person, len(people))
	for _, p := range people {
		byID[p.ID] = p
	}

	out := make([]RankedPerson, 0, len(order))
	for _, id := range order {
		if p, ok := byID[id]; ok {
			out = append(out, RankedPerson{Person: p, Count: counts[id]})
		}
	}
	return out, nil
}

// MarkCurrentUser flags the people as the current user
func (s *PersonStore) MarkCurrentUser(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.Run(ctx, "mark_current_user", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			for _, id := range ids {
				if err := tx.Update(ctx, database.CollectionPeople, id, map[string]interface{}{"is_current_user": true}); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// CurrentUserIDs returns the ids of people flagged as the current user
func (s *PersonStore) CurrentUserIDs(ctx context.Context) ([]string, error) {
	people, err := s.GetByIndex(ctx, "by_current_user", true)
	if err != nil {
		return nil, err
	}
	return IDs(people), nil
}

// UpdateNote sets the user's note on a person
func (s *PersonStore) UpdateNote(ctx context.Context, id, note string) (database.Person, error) {
	return s.Update(ctx, id, map[string]interface{}{
		"notes":      note,
		"updated_at": time.Now().UTC(),
	})
}

// RemoveOrphans deletes non-contact people that no address resolves to
// and no attendee row references
func (s *PersonStore) RemoveOrphans(ctx context.Context, referenced map[string]struct{}) (int, error) {
	people, err := s.GetByIndex(ctx, "by_contact", false)
	if err != nil {
		return 0, err
	}
	index, err := s.EmailIndex(ctx)
	if err != nil {
		return 0, err
	}
	owned := make(map[string]struct{}, len(index))
	for _, id := range index {
		owned[id] = struct{}{}
	}

	var drop []string
	for _, p := range people {
		if p.IsCurrentUser {
			continue
		}
		_, isOwner := owned[p.ID]
		_, isReferenced := referenced[p.ID]
		if !isOwner && !isReferenced {
			drop = append(drop, p.ID)
		}
	}
	return len(drop), s.DeleteMany(ctx, drop)
}
