// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package search

import (
	"context"
	"strings"

	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/store"
)

// Searchable types
const (
	TypeSegment  = "segment"
	TypePerson   = "person"
	TypeDocument = "document"
	TypeWebsite  = "website"
	TypeEmail    = "email"
)

// Lister returns a whole collection
type Lister[T any] interface {
	List(ctx context.Context) ([]T, error)
}

// ListSource turns every item of a collection into a document. Items for
// which ToDocument returns false are left out.
type ListSource[T any] struct {
	Kind       string
	Items      Lister[T]
	ToDocument func(T) (Document, bool)
}

// Type implements Source
func (s ListSource[T]) Type() string { return s.Kind }

// Load implements Source
func (s ListSource[T]) Load(ctx context.Context) ([]Document, error) {
	items, err := s.Items.List(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		if d, ok := s.ToDocument(item); ok {
			d.Type = s.Kind
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func joinText(parts ...string) string {
	return strings.Join(parts, " ")
}

// SegmentSource searches segment titles, descriptions and locations
func SegmentSource(items Lister[database.Segment]) Source {
	return ListSource[database.Segment]{
		Kind:  TypeSegment,
		Items: items,
		ToDocument: func(s database.Segment) (Document, bool) {
			return Document{ID: s.ID, Title: s.Title, Text: joinText(s.Title, s.Location, s.Description, s.Notes), Item: s}, true
		},
	}
}

// PersonSource searches names and addresses
func PersonSource(items Lister[database.Person]) Source {
	return ListSource[database.Person]{
		Kind:  TypePerson,
		Items: items,
		ToDocument: func(p database.Person) (Document, bool) {
			title := p.DisplayName
			if title == "" && len(p.Emails) > 0 {
				title = p.Emails[0]
			}
			return Document{ID: p.ID, Title: title, Text: joinText(p.DisplayName, strings.Join(p.Emails, " ")), Item: p}, true
		},
	}
}

// DocumentSource searches document names
func DocumentSource(items Lister[database.Document]) Source {
	return ListSource[database.Document]{
		Kind:  TypeDocument,
		Items: items,
		ToDocument: func(d database.Document) (Document, bool) {
			return Document{ID: d.ID, Title: d.Name, Text: d.Name, Item: d}, true
		},
	}
}

// WebsiteSource searches visible website titles, domains and tags
func WebsiteSource(items Lister[database.WebsiteItem]) Source {
	return ListSource[database.WebsiteItem]{
		Kind:  TypeWebsite,
		Items: items,
		ToDocument: func(w database.WebsiteItem) (Document, bool) {
			if w.Hidden {
				return Document{}, false
			}
			text := joinText(w.DisplayTitle(), w.Domain, strings.ReplaceAll(w.Tags, ",", " "))
			return Document{ID: w.ID, Title: w.DisplayTitle(), Text: text, Item: w}, true
		},
	}
}

// EmailSource searches subjects and senders
func EmailSource(items Lister[database.Email]) Source {
	return ListSource[database.Email]{
		Kind:  TypeEmail,
		Items: items,
		ToDocument: func(e database.Email) (Document, bool) {
			return Document{ID: e.ID, Title: e.Subject, Text: joinText(e.Subject, e.From), Item: e}, true
		},
	}
}

// NewFromStores builds an index over every typed store
func NewFromStores(s *store.Stores, cfg Config) *Index {
	return New(cfg,
		SegmentSource(s.Segments),
		PersonSource(s.People),
		DocumentSource(s.Documents),
		WebsiteSource(s.Websites.Store),
		EmailSource(s.Emails),
	)
}
