// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package store

import (
	"github.com/rs/zerolog"
	"github.com/tejzpr/dayline/internal/database"
)

// Stores bundles the typed stores over one connection
type Stores struct {
	Segments   *SegmentStore
	People     *PersonStore
	Documents  *DocumentStore
	Activities *ActivityStore
	Emails     *EmailStore
	Websites   *WebsiteStore
	Tags       *TagStore
	Blocklist  *BlocklistStore

	log zerolog.Logger
}

// NewStores wires every typed store to conn. A nil conn gives stores that
// report UNAVAILABLE.
func NewStores(conn *database.Conn, opts Options) *Stores {
	s := &Stores{
		Segments:   NewSegmentStore(conn, opts),
		People:     NewPersonStore(conn, opts),
		Activities: NewActivityStore(conn, opts),
		Emails:     NewEmailStore(conn, opts),
		Tags:       NewTagStore(conn, opts),
		Blocklist:  NewBlocklistStore(conn, opts),
		log:        opts.logger(),
	}
	s.Documents = NewDocumentStore(conn, opts, s.Activities, s.People)
	s.Websites = NewWebsiteStore(conn, opts, s.Blocklist, s.Segments)
	return s
}

// Health reports every collection's rolling health
func (s *Stores) Health() []Health {
	return []Health{
		s.Segments.Health(),
		s.People.Health(),
		s.Documents.Health(),
		s.Activities.Health(),
		s.Emails.Health(),
		s.Websites.Health(),
		s.Tags.Health(),
		s.Blocklist.Health(),
	}
}

// Healthy reports whether every collection is healthy
func (s *Stores) Healthy() bool {
	for _, h := range s.Health() {
		if !h.Healthy {
			return false
		}
	}
	return true
}
