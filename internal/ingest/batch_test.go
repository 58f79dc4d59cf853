// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejzpr/dayline/internal/errs"
	"github.com/tejzpr/dayline/internal/store"
)

const sampleBatch = `segments:
  - id: standup
    title: Standup
    start: 2026-03-10T09:00:00Z
    end: 2026-03-10T09:15:00Z
    organizer: ann@example.com
    attendees:
      - email: ann@example.com
        organizer: true
      - email: me@example.com
        self: true
        response_status: accepted
people:
  - name: Ann
    emails: [Ann@Example.com]
documents:
  - name: Plan
    link: https://docs.example.com/d/plan
    modified: 2026-03-09T12:00:00Z
activities:
  - id: a1
    action: edit
    timestamp: 2026-03-10T09:05:00Z
    link: https://docs.example.com/d/plan
    actor_email: ann@example.com
emails:
  - id: m1
    subject: Agenda
    from: ann@example.com
    to: [me@example.com]
    date: 2026-03-10T08:55:00Z
visits:
  - url: https://go.dev/blog
    title: Go blog
    timestamp: 2026-03-10T09:10:00Z
`

func TestParse_SingleDocument(t *testing.T) {
	files, err := Parse(strings.NewReader(sampleBatch))
	require.NoError(t, err)
	require.Len(t, files, 1)

	b, err := ToBatch(files...)
	require.NoError(t, err)
	require.Len(t, b.Segments, 1)
	seg := b.Segments[0]
	assert.Equal(t, "standup", seg.ID)
	assert.Equal(t, 15*time.Minute, seg.Duration())
	assert.Equal(t, "ann@example.com", seg.OrganizerEmail)
	require.Len(t, seg.Attendees, 2)
	assert.True(t, seg.Attendees[1].Self)
	assert.Equal(t, "accepted", seg.Attendees[1].ResponseStatus)

	require.Len(t, b.People, 1)
	assert.Equal(t, store.PersonIDForEmail("ann@example.com"), b.People[0].ID)
	assert.True(t, b.People[0].IsContact)

	require.Len(t, b.Activities, 1)
	assert.Nil(t, b.Activities[0].ActorPersonID)
	assert.Equal(t, "ann@example.com", b.Activities[0].ActorEmail)

	require.Len(t, b.Emails, 1)
	assert.Equal(t, []string{"me@example.com"}, b.Emails[0].To)
	require.Len(t, b.Visits, 1)
	assert.Equal(t, "Go blog", b.Visits[0].Title)
	assert.False(t, b.Empty())
}

func TestParse_MultipleDocumentsConcatenate(t *testing.T) {
	stream := `people:
  - id: p1
    name: One
    emails: [one@example.com]
---
people:
  - id: p2
    name: Two
    emails: [two@example.com]
`
	files, err := Parse(strings.NewReader(stream))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	b, err := ToBatch(files...)
	require.NoError(t, err)
	require.Len(t, b.People, 2)
	assert.Equal(t, "p2", b.People[1].ID)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("meetings: []\n"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))
}

func TestToBatch_Validation(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		file File
	}{
		{"segment without id", File{Segments: []Segment{{Start: start, End: start.Add(time.Hour)}}}},
		{"segment ending before start", File{Segments: []Segment{{ID: "s", Start: start, End: start}}}},
		{"person without address", File{People: []Person{{Name: "Nobody"}}}},
		{"activity without id", File{Activities: []Activity{{Action: "edit"}}}},
		{"email without id", File{Emails: []Email{{Subject: "hi"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToBatch(tt.file)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.CodeInvalidInput))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBatch), 0644))

	b, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, b.Documents, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
