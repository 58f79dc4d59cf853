// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"time"

	"gorm.io/gorm"
)

// Collection names
const (
	CollectionSegments         = "segments"
	CollectionSegmentAttendees = "segment_attendees"
	CollectionPeople           = "people"
	CollectionPersonEmails     = "person_emails"
	CollectionDocuments        = "documents"
	CollectionDriveActivities  = "drive_activities"
	CollectionEmails           = "emails"
	CollectionWebsiteItems     = "website_items"
	CollectionWebsiteVisits    = "website_visits"
	CollectionTags             = "tags"
	CollectionBlocklist        = "blocklist_entries"
	CollectionSchemaVersions   = "schema_versions"
)

// Indexes maps each collection to its named secondary indices and the
// column each one covers. Lookups by index name go through this table.
var Indexes = map[string]map[string]string{
	CollectionSegments:         {"by_start": "start_at", "by_end": "end_at"},
	CollectionSegmentAttendees: {"by_segment": "segment_id", "by_email": "email", "by_person": "person_id"},
	CollectionPeople:           {"by_contact": "is_contact", "by_current_user": "is_current_user"},
	CollectionPersonEmails:     {"by_person": "person_id"},
	CollectionDocuments:        {"by_link": "link", "by_modified": "modified_at"},
	CollectionDriveActivities:  {"by_document_link": "document_link", "by_document": "document_id", "by_actor": "actor_person_id", "by_actor_email": "actor_email", "by_timestamp": "timestamp"},
	CollectionEmails:           {"by_date": "date", "by_thread": "thread_id"},
	CollectionWebsiteItems:     {"by_domain": "domain", "by_order": "order_index"},
	CollectionWebsiteVisits:    {"by_website": "website_id", "by_segment": "segment_id", "by_visited_at": "visited_at"},
	CollectionTags:             {"by_target": "target_key"},
	CollectionBlocklist:        {"by_kind": "kind"},
	CollectionSchemaVersions:   {},
}

// SegmentState is derived from wall-clock time against the segment window
type SegmentState string

const (
	SegmentPast     SegmentState = "past"
	SegmentCurrent  SegmentState = "current"
	SegmentUpcoming SegmentState = "upcoming"
)

// Attendee is an invitee on a segment as delivered by the calendar fetcher
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
	Self           bool   `json:"self,omitempty"`
	Organizer      bool   `json:"organizer,omitempty"`
}

// Segment is a calendar meeting occupying the window [StartAt, EndAt)
type Segment struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	StartAt        time.Time  `gorm:"index:idx_segments_start;not null" json:"start"`
	EndAt          time.Time  `gorm:"index:idx_segments_end;not null" json:"end"`
	Title          string     `json:"title"`
	Description    string     `gorm:"type:text" json:"description,omitempty"`
	Location       string     `json:"location,omitempty"`
	ResponseStatus string     `json:"response_status,omitempty"`
	CreatorEmail   string     `json:"creator_email,omitempty"`
	OrganizerEmail string     `json:"organizer_email,omitempty"`
	Attendees      []Attendee `gorm:"serializer:json;type:text" json:"attendees"`

	// Back-references written by the indexer
	ActivityIDs []string `gorm:"serializer:json;type:text" json:"activity_ids"`
	EmailIDs    []string `gorm:"serializer:json;type:text" json:"email_ids"`
	DocumentIDs []string `gorm:"serializer:json;type:text" json:"document_ids"`

	// User-owned
	Notes string `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Segment
func (Segment) TableName() string { return CollectionSegments }

// EntityID returns the primary key
func (s Segment) EntityID() string { return s.ID }

// BeforeSave stores the window in UTC so range scans compare consistently
func (s *Segment) BeforeSave(tx *gorm.DB) error {
	s.StartAt = s.StartAt.UTC()
	s.EndAt = s.EndAt.UTC()
	return nil
}

// State reports whether the segment is past, current or upcoming at now
func (s Segment) State(now time.Time) SegmentState {
	switch {
	case !now.Before(s.EndAt):
		return SegmentPast
	case !now.Before(s.StartAt):
		return SegmentCurrent
	default:
		return SegmentUpcoming
	}
}

// Duration returns the length of the segment window
func (s Segment) Duration() time.Duration {
	return s.EndAt.Sub(s.StartAt)
}

// SelfAttendee returns the attendee record flagged as the current user
func (s Segment) SelfAttendee() (Attendee, bool) {
	for _, a := range s.Attendees {
		if a.Self {
			return a, true
		}
	}
	return Attendee{}, false
}

// SegmentAttendee is the resolved attendee row linking a segment to a person
type SegmentAttendee struct {
	ID             string `gorm:"primaryKey" json:"id"` // segment_id|email
	SegmentID      string `gorm:"index:idx_attendees_segment;not null" json:"segment_id"`
	Email          string `gorm:"index:idx_attendees_email;not null" json:"email"`
	PersonID       string `gorm:"index:idx_attendees_person" json:"person_id"`
	ResponseStatus string `json:"response_status,omitempty"`
	Self           bool   `json:"self"`
	Organizer      bool   `json:"organizer"`
}

// TableName specifies the table name for SegmentAttendee
func (SegmentAttendee) TableName() string { return CollectionSegmentAttendees }

// EntityID returns the primary key
func (a SegmentAttendee) EntityID() string { return a.ID }

// Person is a stable identity that one or more email addresses resolve to
type Person struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	DisplayName   string    `json:"display_name"`
	Emails        []string  `gorm:"serializer:json;type:text" json:"emails"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	IsContact     bool      `gorm:"index:idx_people_contact" json:"is_contact"`
	IsCurrentUser bool      `gorm:"index:idx_people_current_user" json:"is_current_user"`
	Notes         string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for Person
func (Person) TableName() string { return CollectionPeople }

// EntityID returns the primary key
func (p Person) EntityID() string { return p.ID }

// PersonEmail is the email → person index entry. The id is the
// normalized address, so each address maps to at most one person.
type PersonEmail struct {
	ID        string    `gorm:"primaryKey" json:"email"`
	PersonID  string    `gorm:"index:idx_person_emails_person;not null" json:"person_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for PersonEmail
func (PersonEmail) TableName() string { return CollectionPersonEmails }

// EntityID returns the primary key
func (e PersonEmail) EntityID() string { return e.ID }

// Document is a drive file; its id derives from the canonical link
type Document struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Name       string    `json:"name"`
	Link       string    `gorm:"index:idx_documents_link;not null" json:"link"`
	MimeType   string    `json:"mime_type,omitempty"`
	Starred    bool      `json:"starred"`
	Shared     bool      `json:"shared"`
	ModifiedAt time.Time `gorm:"index:idx_documents_modified" json:"modified_at"`
}

// TableName specifies the table name for Document
func (Document) TableName() string { return CollectionDocuments }

// EntityID returns the primary key
func (d Document) EntityID() string { return d.ID }

// DriveActivity is one action taken on a document. ActorEmail, when set,
// is resolved to ActorPersonID through the email index on every rebuild.
type DriveActivity struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Timestamp     time.Time `gorm:"index:idx_activities_timestamp;not null" json:"timestamp"`
	Action        string    `json:"action"`
	ActorPersonID *string   `gorm:"index:idx_activities_actor" json:"actor_person_id,omitempty"`
	ActorEmail    string    `gorm:"index:idx_activities_actor_email" json:"actor_email,omitempty"`
	DocumentLink  string    `gorm:"index:idx_activities_document_link" json:"document_link"`
	DocumentID    string    `gorm:"index:idx_activities_document" json:"document_id"`
}

// TableName specifies the table name for DriveActivity
func (DriveActivity) TableName() string { return CollectionDriveActivities }

// EntityID returns the primary key
func (a DriveActivity) EntityID() string { return a.ID }

// BeforeSave normalizes the timestamp to UTC
func (a *DriveActivity) BeforeSave(tx *gorm.DB) error {
	a.Timestamp = a.Timestamp.UTC()
	return nil
}

// Email is a message header record
type Email struct {
	ID       string    `gorm:"primaryKey" json:"id"`
	ThreadID string    `gorm:"index:idx_emails_thread" json:"thread_id,omitempty"`
	Subject  string    `json:"subject"`
	From     string    `gorm:"column:from_address" json:"from"`
	To       []string  `gorm:"column:to_addresses;serializer:json;type:text" json:"to"`
	Date     time.Time `gorm:"index:idx_emails_date;not null" json:"date"`
	Snippet  string    `gorm:"type:text" json:"snippet,omitempty"`
}

// TableName specifies the table name for Email
func (Email) TableName() string { return CollectionEmails }

// EntityID returns the primary key
func (e Email) EntityID() string { return e.ID }

// BeforeSave normalizes the date to UTC
func (e *Email) BeforeSave(tx *gorm.DB) error {
	e.Date = e.Date.UTC()
	return nil
}

// WebsiteItem is a visited site keyed by its normalized URL
type WebsiteItem struct {
	ID           string `gorm:"primaryKey" json:"id"`
	URL          string `gorm:"not null" json:"url"`
	Domain       string `gorm:"index:idx_websites_domain;not null" json:"domain"`
	Title        string `json:"title,omitempty"`
	Description  string `gorm:"type:text" json:"description,omitempty"`
	PreviewImage string `json:"preview_image,omitempty"`

	// User-owned
	CustomTitle string `json:"custom_title,omitempty"`
	Tags        string `json:"tags,omitempty"` // comma-separated, display order
	OrderIndex  *int   `gorm:"index:idx_websites_order" json:"order_index,omitempty"`
	UserEdited  bool   `json:"user_edited"`
	Hidden      bool   `json:"hidden"`

	VisitCount     int       `json:"visit_count"`
	FirstVisitedAt time.Time `json:"first_visited_at"`
	LastVisitedAt  time.Time `json:"last_visited_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for WebsiteItem
func (WebsiteItem) TableName() string { return CollectionWebsiteItems }

// EntityID returns the primary key
func (w WebsiteItem) EntityID() string { return w.ID }

// DisplayTitle prefers the user's title over the fetched one
func (w WebsiteItem) DisplayTitle() string {
	if w.CustomTitle != "" {
		return w.CustomTitle
	}
	if w.Title != "" {
		return w.Title
	}
	return w.URL
}

// WebsiteVisit links one timestamped visit to a website and, optionally,
// the segment that was running at the time
type WebsiteVisit struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	WebsiteID string    `gorm:"index:idx_visits_website;not null" json:"website_id"`
	SegmentID *string   `gorm:"index:idx_visits_segment" json:"segment_id,omitempty"`
	VisitedAt time.Time `gorm:"index:idx_visits_visited_at;not null" json:"visited_at"`
}

// TableName specifies the table name for WebsiteVisit
func (WebsiteVisit) TableName() string { return CollectionWebsiteVisits }

// EntityID returns the primary key
func (v WebsiteVisit) EntityID() string { return v.ID }

// BeforeSave normalizes the visit time to UTC
func (v *WebsiteVisit) BeforeSave(tx *gorm.DB) error {
	v.VisitedAt = v.VisitedAt.UTC()
	return nil
}

// Tag targets
const (
	TagTargetWebsite = "website"
	TagTargetSegment = "segment"
)

// Tag is a user label on a website or segment
type Tag struct {
	ID         string    `gorm:"primaryKey" json:"id"` // target_key|name_key
	TargetKind string    `gorm:"not null" json:"target_kind"`
	TargetID   string    `gorm:"not null" json:"target_id"`
	TargetKey  string    `gorm:"index:idx_tags_target;not null" json:"-"` // kind:id
	Name       string    `gorm:"not null" json:"name"`
	NameKey    string    `gorm:"not null" json:"-"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for Tag
func (Tag) TableName() string { return CollectionTags }

// EntityID returns the primary key
func (t Tag) EntityID() string { return t.ID }

// Blocklist kinds
const (
	BlockDomain = "domain"
	BlockURL    = "url"
)

// BlocklistEntry hides a domain or single URL from website tracking
type BlocklistEntry struct {
	ID        string    `gorm:"primaryKey" json:"id"` // kind:value
	Kind      string    `gorm:"index:idx_blocklist_kind;not null" json:"kind"`
	Value     string    `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for BlocklistEntry
func (BlocklistEntry) TableName() string { return CollectionBlocklist }

// EntityID returns the primary key
func (b BlocklistEntry) EntityID() string { return b.ID }

// SchemaVersion records each applied upgrade step
type SchemaVersion struct {
	Version     int       `gorm:"primaryKey;autoIncrement:false" json:"version"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
}

// TableName specifies the table name for SchemaVersion
func (SchemaVersion) TableName() string { return CollectionSchemaVersions }
