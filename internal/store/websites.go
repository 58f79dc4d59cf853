// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
	"github.com/tejzpr/dayline/internal/paging"
)

// query parameters that identify a campaign rather than a page
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "dclid": true, "msclkid": true,
	"mc_cid": true, "mc_eid": true, "ref": true, "ref_src": true,
}

var websiteSortable = map[string]func(a, b database.WebsiteItem) int{
	"order":        compareWebsiteOrder,
	"last_visited": func(a, b database.WebsiteItem) int { return a.LastVisitedAt.Compare(b.LastVisitedAt) },
	"visit_count":  func(a, b database.WebsiteItem) int { return a.VisitCount - b.VisitCount },
	"title": func(a, b database.WebsiteItem) int {
		return strings.Compare(strings.ToLower(a.DisplayTitle()), strings.ToLower(b.DisplayTitle()))
	},
	"domain": func(a, b database.WebsiteItem) int { return strings.Compare(a.Domain, b.Domain) },
}

// manually ordered items first by their index, then most recent visit first
func compareWebsiteOrder(a, b database.WebsiteItem) int {
	switch {
	case a.OrderIndex != nil && b.OrderIndex != nil:
		return *a.OrderIndex - *b.OrderIndex
	case a.OrderIndex != nil:
		return -1
	case b.OrderIndex != nil:
		return 1
	}
	return b.LastVisitedAt.Compare(a.LastVisitedAt)
}

// NormalizeURL returns the canonical key of a URL: scheme-less, lowercase
// host without "www.", default port, fragment, trailing slash and tracking
// parameters, with the remaining query sorted
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errs.Invalid("url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errs.Invalid("invalid url %q: %v", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errs.Invalid("unsupported url scheme %q", u.Scheme)
	}
	host := NormalizeDomain(u.Hostname())
	if host == "" {
		return "", errs.Invalid("url %q has no host", raw)
	}
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			q.Del(k)
		}
	}

	key := host + strings.TrimRight(u.EscapedPath(), "/")
	if enc := q.Encode(); enc != "" {
		key += "?" + enc
	}
	return key, nil
}

// WebsiteID derives a website item id from a URL
func WebsiteID(raw string) (string, error) {
	key, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	return websiteIDForKey(key), nil
}

func websiteIDForKey(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func visitID(websiteID string, at time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s@%d", websiteID, at.UTC().UnixNano()))).String()
}

// domainOf returns the host part of a canonical key
func domainOf(key string) string {
	host, _, _ := strings.Cut(key, "/")
	host, _, _ = strings.Cut(host, "?")
	if h, _, ok := strings.Cut(host, ":"); ok {
		return h
	}
	return host
}

// Visit is one page view delivered by the browsing-history fetcher
type Visit struct {
	URL          string    `json:"url" yaml:"url"`
	Domain       string    `json:"domain,omitempty" yaml:"domain"`
	Title        string    `json:"title,omitempty" yaml:"title"`
	Description  string    `json:"description,omitempty" yaml:"description"`
	PreviewImage string    `json:"preview_image,omitempty" yaml:"preview_image"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
}

// BlockChecker reports whether a domain or canonical URL key is blocklisted
type BlockChecker interface {
	IsBlocked(ctx context.Context, domain, key string) (bool, error)
}

// ListOptions selects website items
type ListOptions struct {
	paging.Options
	IncludeHidden bool
	Domain        string
}

// WebsiteStore holds visited websites and their visits
type WebsiteStore struct {
	*Store[database.WebsiteItem]
	visits    *Store[database.WebsiteVisit]
	blocklist BlockChecker
	segments  SegmentLookup
}

// NewWebsiteStore creates the website store. segments may be nil, leaving
// visits unlinked until the indexer relinks them.
func NewWebsiteStore(conn *database.Conn, opts Options, blocklist BlockChecker, segments SegmentLookup) *WebsiteStore {
	return &WebsiteStore{
		Store: New(conn, Config[database.WebsiteItem]{
			Collection: database.CollectionWebsiteItems,
			Sortable:   websiteSortable,
			Options:    opts,
		}),
		visits: New(conn, Config[database.WebsiteVisit]{
			Collection: database.CollectionWebsiteVisits,
			Options:    opts,
		}),
		blocklist: blocklist,
		segments:  segments,
	}
}

// TrackVisit records a visit. A new URL creates an item; a known one only
// has its fetched metadata and visit statistics refreshed, so the user's
// title, tags, order and hidden flag survive. Blocklisted sites fail with
// ITEM_BLOCKED. Replaying the same visit is a no-op.
func (s *WebsiteStore) TrackVisit(ctx context.Context, v Visit) (database.WebsiteItem, error) {
	key, err := NormalizeURL(v.URL)
	if err != nil {
		return database.WebsiteItem{}, err
	}
	if v.Timestamp.IsZero() {
		return database.WebsiteItem{}, errs.Invalid("visit to %q has no timestamp", v.URL)
	}
	domain := NormalizeDomain(v.Domain)
	if domain == "" {
		domain = domainOf(key)
	}

	if s.blocklist != nil {
		blocked, err := s.blocklist.IsBlocked(ctx, domain, key)
		if err != nil {
			return database.WebsiteItem{}, err
		}
		if blocked {
			return database.WebsiteItem{}, errs.New(errs.CodeBlocked, "website is blocklisted").
				With("domain", domain).
				With("url", v.URL)
		}
	}

	id := websiteIDForKey(key)
	at := v.Timestamp.UTC()
	visit := database.WebsiteVisit{ID: visitID(id, at), WebsiteID: id, VisitedAt: at}
	if s.segments != nil {
		segmentID, ok, err := s.segments.SegmentAt(ctx, at)
		if err != nil {
			s.log.Warn().Err(err).Msg("segment lookup failed, visit left unlinked")
		} else if ok {
			visit.SegmentID = &segmentID
		}
	}

	var item database.WebsiteItem
	err = s.Run(ctx, "track_visit", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			var prior database.WebsiteVisit
			seen := true
			if err := tx.Get(ctx, database.CollectionWebsiteVisits, visit.ID, &prior); errs.Is(err, errs.CodeItemNotFound) {
				seen = false
			} else if err != nil {
				return err
			}

			err := tx.Get(ctx, database.CollectionWebsiteItems, id, &item)
			switch {
			case errs.Is(err, errs.CodeItemNotFound):
				item = database.WebsiteItem{
					ID:             id,
					URL:            strings.TrimSpace(v.URL),
					Domain:         domain,
					Title:          strings.TrimSpace(v.Title),
					Description:    strings.TrimSpace(v.Description),
					PreviewImage:   strings.TrimSpace(v.PreviewImage),
					VisitCount:     1,
					FirstVisitedAt: at,
					LastVisitedAt:  at,
				}
				if err := tx.Put(ctx, database.CollectionWebsiteItems, &item); err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				if updates := derivedUpdates(item, v, domain, at, seen); len(updates) > 0 {
					if err := tx.Update(ctx, database.CollectionWebsiteItems, id, updates); err != nil {
						return err
					}
					if err := tx.Get(ctx, database.CollectionWebsiteItems, id, &item); err != nil {
						return err
					}
				}
			}

			if seen {
				return nil
			}
			return tx.Put(ctx, database.CollectionWebsiteVisits, &visit)
		})
	})
	return item, err
}

// derivedUpdates lists the fetched columns a visit refreshes. User-owned
// columns are never part of it.
func derivedUpdates(item database.WebsiteItem, v Visit, domain string, at time.Time, seen bool) map[string]interface{} {
	updates := make(map[string]interface{})
	set := func(col, current, incoming string) {
		incoming = strings.TrimSpace(incoming)
		if incoming != "" && incoming != current {
			updates[col] = incoming
		}
	}
	set("title", item.Title, v.Title)
	set("description", item.Description, v.Description)
	set("preview_image", item.PreviewImage, v.PreviewImage)
	set("domain", item.Domain, domain)

	if !seen {
		updates["visit_count"] = item.VisitCount + 1
		if at.After(item.LastVisitedAt) {
			updates["last_visited_at"] = at
			updates["url"] = strings.TrimSpace(v.URL)
		}
		if item.FirstVisitedAt.IsZero() || at.Before(item.FirstVisitedAt) {
			updates["first_visited_at"] = at
		}
	}
	return updates
}

// TrackVisits records a batch of visits, skipping blocklisted and invalid
// ones. It returns how many were tracked and how many skipped.
func (s *WebsiteStore) TrackVisits(ctx context.Context, visits []Visit) (int, int, error) {
	tracked, skipped := 0, 0
	for _, v := range visits {
		if _, err := s.TrackVisit(ctx, v); err != nil {
			if errs.Is(err, errs.CodeBlocked) || errs.Is(err, errs.CodeInvalidInput) {
				skipped++
				continue
			}
			return tracked, skipped, err
		}
		tracked++
	}
	return tracked, skipped, nil
}

// List returns a page of website items. Hidden items are excluded unless
// asked for; without OrderBy the manual order applies.
func (s *WebsiteStore) List(ctx context.Context, opts ListOptions) (paging.Page[database.WebsiteItem], error) {
	if opts.OrderBy == "" {
		opts.OrderBy = "order"
	}
	domain := NormalizeDomain(opts.Domain)
	return s.Query(ctx, func(w database.WebsiteItem) bool {
		if w.Hidden && !opts.IncludeHidden {
			return false
		}
		return domain == "" || domainMatches(w.Domain, domain)
	}, opts.Options)
}

// Rename sets the user's title for an item; an empty title restores the
// fetched one
func (s *WebsiteStore) Rename(ctx context.Context, id, title string) (database.WebsiteItem, error) {
	return s.Update(ctx, id, map[string]interface{}{
		"custom_title": strings.TrimSpace(title),
		"user_edited":  true,
	})
}

// Hide hides or unhides an item
func (s *WebsiteStore) Hide(ctx context.Context, id string, hidden bool) (database.WebsiteItem, error) {
	return s.Update(ctx, id, map[string]interface{}{
		"hidden":      hidden,
		"user_edited": true,
	})
}

// Reorder gives the listed items explicit positions in the given order.
// All ids must exist or nothing changes.
func (s *WebsiteStore) Reorder(ctx context.Context, ids []string) ([]database.WebsiteItem, error) {
	if len(ids) == 0 {
		return []database.WebsiteItem{}, nil
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, errs.Invalid("duplicate id %q in order", id)
		}
		seen[id] = true
	}

	err := s.Run(ctx, "reorder", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			for i, id := range ids {
				if err := tx.Update(ctx, database.CollectionWebsiteItems, id, map[string]interface{}{
					"order_index": i,
					"user_edited": true,
				}); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	items, err := s.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, compareWebsiteOrder)
	return items, nil
}

// Visits returns the visits to an item, oldest first
func (s *WebsiteStore) Visits(ctx context.Context, websiteID string) ([]database.WebsiteVisit, error) {
	visits, err := s.visits.GetByIndex(ctx, "by_website", websiteID)
	if err != nil {
		return nil, err
	}
	sortVisits(visits)
	return visits, nil
}

// VisitsForSegment returns the visits made during a segment, oldest first
func (s *WebsiteStore) VisitsForSegment(ctx context.Context, segmentID string) ([]database.WebsiteVisit, error) {
	visits, err := s.visits.GetByIndex(ctx, "by_segment", segmentID)
	if err != nil {
		return nil, err
	}
	sortVisits(visits)
	return visits, nil
}

// AllVisits returns every visit
func (s *WebsiteStore) AllVisits(ctx context.Context) ([]database.WebsiteVisit, error) {
	return s.visits.List(ctx)
}

// LinkVisits sets the segment of each listed visit; an empty segment id
// unlinks it
func (s *WebsiteStore) LinkVisits(ctx context.Context, segments map[string]string) error {
	if len(segments) == 0 {
		return nil
	}
	return s.visits.Run(ctx, "link_visits", func(ctx context.Context, conn *database.Conn) error {
		return conn.Transaction(ctx, func(tx *database.Conn) error {
			for visit, segment := range segments {
				var value interface{}
				if segment != "" {
					value = segment
				}
				if err := tx.Update(ctx, database.CollectionWebsiteVisits, visit, map[string]interface{}{"segment_id": value}); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func sortVisits(visits []database.WebsiteVisit) {
	slices.SortStableFunc(visits, func(a, b database.WebsiteVisit) int { return a.VisitedAt.Compare(b.VisitedAt) })
}
