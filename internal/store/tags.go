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

// collections a tag may target
var tagTargets = map[string]string{
	database.TagTargetWebsite: database.CollectionWebsiteItems,
	database.TagTargetSegment: database.CollectionSegments,
}

// TargetKey identifies a tag target across kinds
func TargetKey(kind, id string) string {
	return kind + ":" + id
}

func tagNameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// TagNames returns the names of tags in order
func TagNames(tags []database.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}
	return out
}

// TagStore holds user tags on websites and segments
type TagStore struct {
	*Store[database.Tag]
}

// NewTagStore creates the tag store
func NewTagStore(conn *database.Conn, opts Options) *TagStore {
	return &TagStore{
		Store: New(conn, Config[database.Tag]{
			Collection: database.CollectionTags,
			Options:    opts,
		}),
	}
}

// ForTarget returns a target's tags in display order
func (s *TagStore) ForTarget(ctx context.Context, kind, id string) ([]database.Tag, error) {
	tags, err := s.GetByIndex(ctx, "by_target", TargetKey(kind, id))
	if err != nil {
		return nil, err
	}
	sortTags(tags)
	return tags, nil
}

// Toggle adds the tag to the target, or removes it if present, and returns
// the resulting tags in display order. New tags go last.
func (s *TagStore) Toggle(ctx context.Context, kind, id, name string) ([]database.Tag, error) {
	display := strings.Join(strings.Fields(name), " ")
	if display == "" {
		return nil, errs.Invalid("tag name is empty")
	}
	if strings.Contains(display, ",") {
		return nil, errs.Invalid("tag name %q may not contain a comma", display)
	}
	key := tagNameKey(display)

	return s.mutate(ctx, "toggle", kind, id, func(tags []database.Tag) ([]database.Tag, error) {
		if i := slices.IndexFunc(tags, func(t database.Tag) bool { return t.NameKey == key }); i >= 0 {
			return slices.Delete(tags, i, i+1), nil
		}
		return append(tags, database.Tag{
			ID:         TargetKey(kind, id) + "|" + key,
			TargetKind: kind,
			TargetID:   id,
			TargetKey:  TargetKey(kind, id),
			Name:       display,
			NameKey:    key,
			CreatedAt:  time.Now().UTC(),
		}), nil
	})
}

// Reorder moves the named tags to the front in the given order; the rest
// keep their relative order after them
func (s *TagStore) Reorder(ctx context.Context, kind, id string, names []string) ([]database.Tag, error) {
	return s.mutate(ctx, "reorder", kind, id, func(tags []database.Tag) ([]database.Tag, error) {
		out := make([]database.Tag, 0, len(tags))
		used := make(map[string]bool, len(names))
		for _, n := range names {
			key := tagNameKey(n)
			i := slices.IndexFunc(tags, func(t database.Tag) bool { return t.NameKey == key })
			if i < 0 {
				return nil, errs.Invalid("target has no tag %q", n)
			}
			if used[key] {
				continue
			}
			used[key] = true
			out = append(out, tags[i])
		}
		for _, t := range tags {
			if !used[t.NameKey] {
				out = append(out, t)
			}
		}
		return out, nil
	})
}

// mutate loads a target's tags, applies fn, renumbers positions and
// writes the result back, keeping a website's tag column in sync
func (s *TagStore) mutate(ctx context.Context, op, kind, id string, fn func([]database.Tag) ([]database.Tag, error)) ([]database.Tag, error) {
	collection, ok := tagTargets[kind]
	if !ok {
		return nil, errs.Invalid("unknown tag target %q", kind)
	}

	var result []database.Tag
	err := s.Run(ctx, op, func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			if err := targetExists(ctx, tx, collection, id); err != nil {
				return err
			}

			var tags []database.Tag
			if err := tx.GetByIndex(ctx, database.CollectionTags, "by_target", TargetKey(kind, id), &tags); err != nil {
				return err
			}
			sortTags(tags)

			next, err := fn(slices.Clone(tags))
			if err != nil {
				return err
			}
			for i := range next {
				next[i].Position = i
			}

			var removed []string
			for _, t := range tags {
				if !slices.ContainsFunc(next, func(n database.Tag) bool { return n.ID == t.ID }) {
					removed = append(removed, t.ID)
				}
			}
			if err := tx.Delete(ctx, database.CollectionTags, removed...); err != nil {
				return err
			}
			if len(next) > 0 {
				if err := tx.Put(ctx, database.CollectionTags, &next); err != nil {
					return err
				}
			}

			if kind == database.TagTargetWebsite {
				if err := tx.Update(ctx, database.CollectionWebsiteItems, id, map[string]interface{}{
					"tags": strings.Join(TagNames(next), ","),
				}); err != nil {
					return err
				}
			}
			result = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []database.Tag{}
	}
	return result, nil
}

func targetExists(ctx context.Context, tx *database.Conn, collection, id string) error {
	var probe []struct{ ID string }
	if err := tx.GetMany(ctx, collection, []string{id}, &probe); err != nil {
		return err
	}
	if len(probe) == 0 {
		return errs.NotFound(collection, id)
	}
	return nil
}

func sortTags(tags []database.Tag) {
	slices.SortStableFunc(tags, func(a, b database.Tag) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
