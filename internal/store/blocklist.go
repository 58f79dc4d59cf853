// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"net/url"
	"strings"

	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
)

// NormalizeDomain lowercases a domain and strips any scheme, path, port
// and leading "www."
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if strings.Contains(d, "://") {
		if u, err := url.Parse(d); err == nil {
			d = u.Hostname()
		}
	}
	d, _, _ = strings.Cut(d, "/")
	if h, _, ok := strings.Cut(d, ":"); ok {
		d = h
	}
	d = strings.Trim(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// domainMatches reports whether host is domain or one of its subdomains
func domainMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func blockID(kind, value string) string {
	return kind + ":" + value
}

// BlockResult is a new blocklist entry and the number of website items
// it removed
type BlockResult struct {
	Entry   database.BlocklistEntry `json:"entry"`
	Removed int                     `json:"removed"`
}

// BlocklistStore holds blocklisted domains and URLs
type BlocklistStore struct {
	*Store[database.BlocklistEntry]
}

// NewBlocklistStore creates the blocklist store
func NewBlocklistStore(conn *database.Conn, opts Options) *BlocklistStore {
	return &BlocklistStore{
		Store: New(conn, Config[database.BlocklistEntry]{
			Collection: database.CollectionBlocklist,
			Options:    opts,
		}),
	}
}

// BlockDomain blocklists a domain and its subdomains, removing their
// website items, visits and tags
func (s *BlocklistStore) BlockDomain(ctx context.Context, domain string) (BlockResult, error) {
	d := NormalizeDomain(domain)
	if d == "" {
		return BlockResult{}, errs.Invalid("domain is empty")
	}
	return s.block(ctx, database.BlockDomain, d, func(w database.WebsiteItem) bool {
		return domainMatches(w.Domain, d)
	})
}

// BlockURL blocklists a single URL, removing its website item
func (s *BlocklistStore) BlockURL(ctx context.Context, raw string) (BlockResult, error) {
	key, err := NormalizeURL(raw)
	if err != nil {
		return BlockResult{}, err
	}
	id := websiteIDForKey(key)
	return s.block(ctx, database.BlockURL, key, func(w database.WebsiteItem) bool {
		return w.ID == id
	})
}

func (s *BlocklistStore) block(ctx context.Context, kind, value string, match func(database.WebsiteItem) bool) (BlockResult, error) {
	res := BlockResult{Entry: database.BlocklistEntry{ID: blockID(kind, value), Kind: kind, Value: value}}
	err := s.Run(ctx, "block", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			if err := tx.Put(ctx, database.CollectionBlocklist, &res.Entry, "kind", "value"); err != nil {
				return err
			}

			var items []database.WebsiteItem
			if err := tx.GetAll(ctx, database.CollectionWebsiteItems, &items); err != nil {
				return err
			}
			var ids, targets []string
			for _, w := range items {
				if match(w) {
					ids = append(ids, w.ID)
					targets = append(targets, TargetKey(database.TagTargetWebsite, w.ID))
				}
			}
			res.Removed = len(ids)
			if len(ids) == 0 {
				return nil
			}
			if _, err := tx.DeleteByIndexIn(ctx, database.CollectionWebsiteVisits, "by_website", ids); err != nil {
				return err
			}
			if _, err := tx.DeleteByIndexIn(ctx, database.CollectionTags, "by_target", targets); err != nil {
				return err
			}
			return tx.Delete(ctx, database.CollectionWebsiteItems, ids...)
		})
	})
	if err != nil {
		return BlockResult{}, err
	}
	s.log.Info().Str("kind", kind).Str("value", value).Int("removed", res.Removed).Msg("blocklisted")
	return res, nil
}

// Remove deletes a blocklist entry. Removed website items do not return
// until they are visited again.
func (s *BlocklistStore) Remove(ctx context.Context, kind, value string) error {
	switch kind {
	case database.BlockDomain:
		value = NormalizeDomain(value)
	case database.BlockURL:
		key, err := NormalizeURL(value)
		if err != nil {
			return err
		}
		value = key
	default:
		return errs.Invalid("unknown blocklist kind %q", kind)
	}
	return s.Delete(ctx, blockID(kind, value))
}

// IsBlocked reports whether a domain (or a parent domain) or a canonical
// URL key is blocklisted
func (s *BlocklistStore) IsBlocked(ctx context.Context, domain, key string) (bool, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	domain = NormalizeDomain(domain)
	for _, e := range entries {
		switch e.Kind {
		case database.BlockDomain:
			if domain != "" && domainMatches(domain, e.Value) {
				return true, nil
			}
		case database.BlockURL:
			if key != "" && key == e.Value {
				return true, nil
			}
		}
	}
	return false, nil
}
