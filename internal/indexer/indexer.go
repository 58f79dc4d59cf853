// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package indexer derives the cross-entity links of the dataset after each
// ingestion cycle. The pass is a full rebuild; every index it writes can be
// recomputed from the source collections.
package indexer

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/interval"
	"github.com/tejzpr/dayline/internal/store"
)

// links in free-text segment descriptions
var linkPattern = regexp.MustCompile(`https?://[^\s"'<>()\[\]]+`)

// SegmentIndex is the segment side of the rebuild
type SegmentIndex interface {
	List(ctx context.Context) ([]database.Segment, error)
	AddBulk(ctx context.Context, segments []database.Segment) error
	ReplaceAttendees(ctx context.Context, bySegment map[string][]database.SegmentAttendee) error
	SetBackReferences(ctx context.Context, refs map[string]store.BackRefs) error
}

// PersonIndex is the person side of the rebuild
type PersonIndex interface {
	AddBulk(ctx context.Context, people []database.Person) error
	ReindexEmails(ctx context.Context) (int, error)
	EmailIndex(ctx context.Context) (map[string]string, error)
	EnsurePeople(ctx context.Context, people []database.Person) error
	MarkCurrentUser(ctx context.Context, ids []string) error
	RemoveOrphans(ctx context.Context, referenced map[string]struct{}) (int, error)
}

// ActivitySource supplies drive activity
type ActivitySource interface {
	List(ctx context.Context) ([]database.DriveActivity, error)
	AddBulk(ctx context.Context, items []database.DriveActivity) error
	SetActors(ctx context.Context, actors map[string]string) error
}

// EmailSource supplies email headers
type EmailSource interface {
	List(ctx context.Context) ([]database.Email, error)
	AddBulk(ctx context.Context, items []database.Email) error
}

// DocumentSource supplies documents
type DocumentSource interface {
	List(ctx context.Context) ([]database.Document, error)
	AddBulk(ctx context.Context, docs []database.Document) error
}

// VisitIndex tracks and relinks website visits
type VisitIndex interface {
	TrackVisits(ctx context.Context, visits []store.Visit) (int, int, error)
	AllVisits(ctx context.Context) ([]database.WebsiteVisit, error)
	LinkVisits(ctx context.Context, segments map[string]string) error
}

// Invalidator is told which search lanes an ingestion touched
type Invalidator interface {
	Invalidate(types ...string)
}

// Result holds statistics from one rebuild
type Result struct {
	Segments         int           `json:"segments"`
	DuplicatesMerged int           `json:"duplicates_merged"`
	Attendees        int           `json:"attendees"`
	PeopleCreated    int           `json:"people_created"`
	EmailConflicts   int           `json:"email_conflicts"`
	CurrentUsers     int           `json:"current_users"`
	ActorsResolved   int           `json:"actors_resolved"`
	ActivityLinks    int           `json:"activity_links"`
	EmailLinks       int           `json:"email_links"`
	DocumentLinks    int           `json:"document_links"`
	VisitsRelinked   int           `json:"visits_relinked"`
	OrphansRemoved   int           `json:"orphans_removed"`
	Duration         time.Duration `json:"duration"`
}

// Options configures an Indexer
type Options struct {
	Segments   SegmentIndex
	People     PersonIndex
	Activities ActivitySource
	Emails     EmailSource
	Documents  DocumentSource
	Visits     VisitIndex
	// Search may be nil
	Search Invalidator
	Logger *zerolog.Logger
}

// Indexer rebuilds derived links. Rebuilds are serialized.
type Indexer struct {
	opts Options
	log  zerolog.Logger
	mu   sync.Mutex
}

// New creates an Indexer
func New(opts Options) *Indexer {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "indexer").Logger()
	}
	return &Indexer{opts: opts, log: log}
}

// FromStores wires an Indexer to the typed stores
func FromStores(s *store.Stores, search Invalidator, logger *zerolog.Logger) *Indexer {
	return New(Options{
		Segments:   s.Segments,
		People:     s.People,
		Activities: s.Activities,
		Emails:     s.Emails,
		Documents:  s.Documents,
		Visits:     s.Websites,
		Search:     search,
		Logger:     logger,
	})
}

// Rebuild recomputes every derived link from the stored collections
func (x *Indexer) Rebuild(ctx context.Context) (*Result, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.rebuild(ctx)
}

func (x *Indexer) rebuild(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	conflicts, err := x.opts.People.ReindexEmails(ctx)
	if err != nil {
		return nil, err
	}
	res.EmailConflicts = conflicts

	segments, err := x.opts.Segments.List(ctx)
	if err != nil {
		return nil, err
	}
	res.Segments = len(segments)

	activities, err := x.opts.Activities.List(ctx)
	if err != nil {
		return nil, err
	}

	people, err := x.newResolver(ctx)
	if err != nil {
		return nil, err
	}
	attendees, currentUsers := resolveAttendees(people, segments, res)
	actors := resolveActors(people, activities)
	if res.PeopleCreated, err = x.createStubs(ctx, people); err != nil {
		return nil, err
	}

	if err := x.opts.People.MarkCurrentUser(ctx, currentUsers); err != nil {
		return nil, err
	}
	res.CurrentUsers = len(currentUsers)
	if err := x.opts.Segments.ReplaceAttendees(ctx, attendees); err != nil {
		return nil, err
	}
	if err := x.opts.Activities.SetActors(ctx, actors); err != nil {
		return nil, err
	}
	res.ActorsResolved = len(actors)

	refs, referenced, err := x.backReferences(ctx, segments, activities, res)
	if err != nil {
		return nil, err
	}
	if err := x.opts.Segments.SetBackReferences(ctx, refs); err != nil {
		return nil, err
	}

	if err := x.relinkVisits(ctx, segments, res); err != nil {
		return nil, err
	}

	for _, rows := range attendees {
		for _, r := range rows {
			referenced[r.PersonID] = struct{}{}
		}
	}
	if res.OrphansRemoved, err = x.opts.People.RemoveOrphans(ctx, referenced); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	x.log.Info().
		Int("segments", res.Segments).
		Int("attendees", res.Attendees).
		Int("people_created", res.PeopleCreated).
		Int("email_conflicts", res.EmailConflicts).
		Int("actors_resolved", res.ActorsResolved).
		Int("activity_links", res.ActivityLinks).
		Int("email_links", res.EmailLinks).
		Int("document_links", res.DocumentLinks).
		Int("visits_relinked", res.VisitsRelinked).
		Int("orphans_removed", res.OrphansRemoved).
		Dur("duration", res.Duration).
		Msg("index rebuilt")
	return res, nil
}

// resolver maps addresses to people through the email index. Unknown
// addresses get a non-contact stub, created once the pass is done.
type resolver struct {
	index map[string]string
	stubs map[string]database.Person
}

func (x *Indexer) newResolver(ctx context.Context) (*resolver, error) {
	index, err := x.opts.People.EmailIndex(ctx)
	if err != nil {
		return nil, err
	}
	return &resolver{index: index, stubs: make(map[string]database.Person)}, nil
}

func (r *resolver) resolve(email, name string) string {
	if id, ok := r.index[email]; ok {
		return id
	}
	id := store.PersonIDForEmail(email)
	if _, ok := r.stubs[id]; !ok {
		if name == "" {
			name = email
		}
		r.stubs[id] = database.Person{ID: id, DisplayName: name, Emails: []string{email}}
	}
	return id
}

// createStubs stores the people the resolver made up and indexes their
// addresses
func (x *Indexer) createStubs(ctx context.Context, r *resolver) (int, error) {
	if len(r.stubs) == 0 {
		return 0, nil
	}
	people := make([]database.Person, 0, len(r.stubs))
	for _, p := range r.stubs {
		people = append(people, p)
	}
	slices.SortFunc(people, func(a, b database.Person) int { return strings.Compare(a.ID, b.ID) })
	if err := x.opts.People.EnsurePeople(ctx, people); err != nil {
		return 0, err
	}
	if _, err := x.opts.People.ReindexEmails(ctx); err != nil {
		return 0, err
	}
	return len(people), nil
}

// resolveAttendees builds the attendee rows of every segment and returns
// the people flagged as self
func resolveAttendees(people *resolver, segments []database.Segment, res *Result) (map[string][]database.SegmentAttendee, []string) {
	bySegment := make(map[string][]database.SegmentAttendee, len(segments))
	var self []string
	for _, seg := range segments {
		rows := make([]database.SegmentAttendee, 0, len(seg.Attendees))
		seen := make(map[string]int, len(seg.Attendees))
		for _, a := range seg.Attendees {
			email := store.NormalizeEmail(a.Email)
			if email == "" {
				continue
			}
			row := database.SegmentAttendee{
				ID:             seg.ID + "|" + email,
				SegmentID:      seg.ID,
				Email:          email,
				PersonID:       people.resolve(email, strings.TrimSpace(a.DisplayName)),
				ResponseStatus: a.ResponseStatus,
				Self:           a.Self,
				Organizer:      a.Organizer || email == store.NormalizeEmail(seg.OrganizerEmail),
			}
			if i, ok := seen[email]; ok {
				// repeated address: flags accumulate, the later status wins
				row.Self = row.Self || rows[i].Self
				row.Organizer = row.Organizer || rows[i].Organizer
				if row.ResponseStatus == "" {
					row.ResponseStatus = rows[i].ResponseStatus
				}
				rows[i] = row
				continue
			}
			seen[email] = len(rows)
			rows = append(rows, row)
		}
		for _, r := range rows {
			if r.Self && !slices.Contains(self, r.PersonID) {
				self = append(self, r.PersonID)
			}
		}
		res.Attendees += len(rows)
		bySegment[seg.ID] = rows
	}
	slices.Sort(self)
	return bySegment, self
}

// resolveActors maps the actor address of every activity to its person and
// returns the activities whose stored actor differs, updating activities
// in place
func resolveActors(people *resolver, activities []database.DriveActivity) map[string]string {
	changes := make(map[string]string)
	for i, a := range activities {
		if a.ActorEmail == "" {
			continue
		}
		id := people.resolve(a.ActorEmail, "")
		if a.ActorPersonID != nil && *a.ActorPersonID == id {
			continue
		}
		changes[a.ID] = id
		activities[i].ActorPersonID = &id
	}
	return changes
}

// backReferences assigns activities and emails to the segments whose
// window contains them and collects the documents each description links
// to. It also returns the set of activity actors.
func (x *Indexer) backReferences(ctx context.Context, segments []database.Segment, activities []database.DriveActivity, res *Result) (map[string]store.BackRefs, map[string]struct{}, error) {
	emails, err := x.opts.Emails.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	docs, err := x.opts.Documents.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	windows := intervals(segments)
	actors := make(map[string]struct{})
	activityPoints := make([]interval.Point, len(activities))
	for i, a := range activities {
		activityPoints[i] = interval.Point{ID: a.ID, At: a.Timestamp}
		if a.ActorPersonID != nil {
			actors[*a.ActorPersonID] = struct{}{}
		}
	}
	emailPoints := make([]interval.Point, len(emails))
	for i, e := range emails {
		emailPoints[i] = interval.Point{ID: e.ID, At: e.Date}
	}
	byActivity := interval.Assign(windows, activityPoints)
	byEmail := interval.Assign(windows, emailPoints)

	known := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		known[d.ID] = struct{}{}
	}

	refs := make(map[string]store.BackRefs, len(segments))
	for _, seg := range segments {
		r := store.BackRefs{
			ActivityIDs: byActivity[seg.ID],
			EmailIDs:    byEmail[seg.ID],
			DocumentIDs: linkedDocuments(seg.Description, known),
		}
		res.ActivityLinks += len(r.ActivityIDs)
		res.EmailLinks += len(r.EmailIDs)
		res.DocumentLinks += len(r.DocumentIDs)
		refs[seg.ID] = r
	}
	return refs, actors, nil
}

// linkedDocuments returns the known documents a description links to, in
// order of first mention
func linkedDocuments(description string, known map[string]struct{}) []string {
	var ids []string
	for _, link := range linkPattern.FindAllString(description, -1) {
		link = strings.TrimRight(link, ".,;:!?")
		id := store.DocumentID(link)
		if _, ok := known[id]; ok && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// relinkVisits points every visit at the latest-starting segment running
// at its timestamp, or at none
func (x *Indexer) relinkVisits(ctx context.Context, segments []database.Segment, res *Result) error {
	visits, err := x.opts.Visits.AllVisits(ctx)
	if err != nil {
		return err
	}
	idx := interval.NewIndex(intervals(segments))
	changes := make(map[string]string)
	for _, v := range visits {
		want, _ := idx.First(v.VisitedAt)
		current := ""
		if v.SegmentID != nil {
			current = *v.SegmentID
		}
		if want != current {
			changes[v.ID] = want
		}
	}
	res.VisitsRelinked = len(changes)
	return x.opts.Visits.LinkVisits(ctx, changes)
}

func intervals(segments []database.Segment) []interval.Interval {
	out := make([]interval.Interval, len(segments))
	for i, seg := range segments {
		out[i] = interval.Interval{ID: seg.ID, Start: seg.StartAt, End: seg.EndAt}
	}
	return out
}
