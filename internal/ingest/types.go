// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package ingest

import (
	"time"

	"github.com/tejzpr/dayline/internal/store"
)

// File is one fetch cycle as written by the fetchers
type File struct {
	Segments   []Segment     `yaml:"segments,omitempty"`
	People     []Person      `yaml:"people,omitempty"`
	Documents  []Document    `yaml:"documents,omitempty"`
	Activities []Activity    `yaml:"activities,omitempty"`
	Emails     []Email       `yaml:"emails,omitempty"`
	Visits     []store.Visit `yaml:"visits,omitempty"`
}

// Segment is a calendar meeting
type Segment struct {
	ID             string     `yaml:"id"`
	Title          string     `yaml:"title"`
	Start          time.Time  `yaml:"start"`
	End            time.Time  `yaml:"end"`
	Description    string     `yaml:"description,omitempty"`
	Location       string     `yaml:"location,omitempty"`
	ResponseStatus string     `yaml:"response_status,omitempty"`
	Creator        string     `yaml:"creator,omitempty"`
	Organizer      string     `yaml:"organizer,omitempty"`
	Attendees      []Attendee `yaml:"attendees,omitempty"`
}

// Attendee is one invitee of a segment
type Attendee struct {
	Email          string `yaml:"email"`
	Name           string `yaml:"name,omitempty"`
	ResponseStatus string `yaml:"response_status,omitempty"`
	Self           bool   `yaml:"self,omitempty"`
	Organizer      bool   `yaml:"organizer,omitempty"`
}

// Person is a contact. A missing id is derived from the first address.
type Person struct {
	ID     string   `yaml:"id,omitempty"`
	Name   string   `yaml:"name"`
	Emails []string `yaml:"emails"`
	Avatar string   `yaml:"avatar,omitempty"`
}

// Document is a drive file
type Document struct {
	Name     string    `yaml:"name"`
	Link     string    `yaml:"link"`
	MimeType string    `yaml:"mime_type,omitempty"`
	Starred  bool      `yaml:"starred,omitempty"`
	Shared   bool      `yaml:"shared,omitempty"`
	Modified time.Time `yaml:"modified,omitempty"`
}

// Activity is one action on a document. The actor is given either as a
// person id or as an address.
type Activity struct {
	ID         string    `yaml:"id"`
	Action     string    `yaml:"action"`
	Timestamp  time.Time `yaml:"timestamp"`
	Link       string    `yaml:"link"`
	ActorID    string    `yaml:"actor_id,omitempty"`
	ActorEmail string    `yaml:"actor_email,omitempty"`
}

// Email is a message header
type Email struct {
	ID      string    `yaml:"id"`
	Thread  string    `yaml:"thread,omitempty"`
	Subject string    `yaml:"subject"`
	From    string    `yaml:"from"`
	To      []string  `yaml:"to,omitempty"`
	Date    time.Time `yaml:"date"`
	Snippet string    `yaml:"snippet,omitempty"`
}
