// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ingest reads fetcher output into indexer batches
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/errs"
	"github.com/tejzpr/dayline/internal/indexer"
	"github.com/tejzpr/dayline/internal/store"
	"gopkg.in/yaml.v3"
)

// Parse decodes every YAML document in r. A stream of several documents
// yields one File per document.
func Parse(r io.Reader) ([]File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var files []File
	for {
		var f File
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.CodeInvalidInput, "failed to parse batch", err)
		}
		files = append(files, f)
	}
	return files, nil
}

// Load reads and converts the batch file at path
func Load(path string) (indexer.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return indexer.Batch{}, fmt.Errorf("failed to read batch file: %w", err)
	}
	files, err := Parse(bytes.NewReader(data))
	if err != nil {
		return indexer.Batch{}, err
	}
	return ToBatch(files...)
}

// ToBatch concatenates files into one indexer batch, validating each
// record on the way
func ToBatch(files ...File) (indexer.Batch, error) {
	var b indexer.Batch
	for _, f := range files {
		for i, s := range f.Segments {
			seg, err := s.toModel()
			if err != nil {
				return indexer.Batch{}, fmt.Errorf("segments[%d]: %w", i, err)
			}
			b.Segments = append(b.Segments, seg)
		}
		for i, p := range f.People {
			person, err := p.toModel()
			if err != nil {
				return indexer.Batch{}, fmt.Errorf("people[%d]: %w", i, err)
			}
			b.People = append(b.People, person)
		}
		for _, d := range f.Documents {
			b.Documents = append(b.Documents, database.Document{
				Name:       d.Name,
				Link:       d.Link,
				MimeType:   d.MimeType,
				Starred:    d.Starred,
				Shared:     d.Shared,
				ModifiedAt: d.Modified,
			})
		}
		for i, a := range f.Activities {
			act, err := a.toModel()
			if err != nil {
				return indexer.Batch{}, fmt.Errorf("activities[%d]: %w", i, err)
			}
			b.Activities = append(b.Activities, act)
		}
		for i, e := range f.Emails {
			if e.ID == "" {
				return indexer.Batch{}, fmt.Errorf("emails[%d]: %w", i, errs.Invalid("email has no id"))
			}
			b.Emails = append(b.Emails, database.Email{
				ID:       e.ID,
				ThreadID: e.Thread,
				Subject:  e.Subject,
				From:     e.From,
				To:       e.To,
				Date:     e.Date,
				Snippet:  e.Snippet,
			})
		}
		b.Visits = append(b.Visits, f.Visits...)
	}
	return b, nil
}

func (s Segment) toModel() (database.Segment, error) {
	if s.ID == "" {
		return database.Segment{}, errs.Invalid("segment has no id")
	}
	if !s.End.After(s.Start) {
		return database.Segment{}, errs.Invalid("segment %s ends before it starts", s.ID)
	}
	attendees := make([]database.Attendee, 0, len(s.Attendees))
	for _, a := range s.Attendees {
		attendees = append(attendees, database.Attendee{
			Email:          a.Email,
			DisplayName:    a.Name,
			ResponseStatus: a.ResponseStatus,
			Self:           a.Self,
			Organizer:      a.Organizer,
		})
	}
	return database.Segment{
		ID:             s.ID,
		Title:          s.Title,
		StartAt:        s.Start,
		EndAt:          s.End,
		Description:    s.Description,
		Location:       s.Location,
		ResponseStatus: s.ResponseStatus,
		CreatorEmail:   s.Creator,
		OrganizerEmail: s.Organizer,
		Attendees:      attendees,
	}, nil
}

func (p Person) toModel() (database.Person, error) {
	id := p.ID
	if id == "" {
		for _, e := range p.Emails {
			if strings.TrimSpace(e) != "" {
				id = store.PersonIDForEmail(e)
				break
			}
		}
	}
	if id == "" {
		return database.Person{}, errs.Invalid("person %q has neither id nor email", p.Name)
	}
	return database.Person{
		ID:          id,
		DisplayName: p.Name,
		Emails:      p.Emails,
		AvatarURL:   p.Avatar,
		IsContact:   true,
	}, nil
}

func (a Activity) toModel() (database.DriveActivity, error) {
	if a.ID == "" {
		return database.DriveActivity{}, errs.Invalid("activity has no id")
	}
	act := database.DriveActivity{
		ID:           a.ID,
		Action:       a.Action,
		Timestamp:    a.Timestamp,
		DocumentLink: a.Link,
	}
	switch {
	case a.ActorID != "":
		actor := a.ActorID
		act.ActorPersonID = &actor
	case a.ActorEmail != "":
		// resolved against the email index by the rebuild
		act.ActorEmail = store.NormalizeEmail(a.ActorEmail)
	}
	return act, nil
}
