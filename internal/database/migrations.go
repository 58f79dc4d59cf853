// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/tejzpr/dayline/internal/errs"
	"gorm.io/gorm"
)

const (
	// CurrentSchemaVersion is the version every opened database ends at
	CurrentSchemaVersion = 5
	// MinSupportedVersion is the oldest version that can be upgraded in
	// place; anything older is wiped and rebuilt
	MinSupportedVersion = 2
)

// legacy tables dropped by later steps
const legacySegmentPeople = "segment_people"

// Step is one schema upgrade. Up must be idempotent.
type Step struct {
	Version     int
	Description string
	Up          func(tx *gorm.DB) error
}

// Steps returns the ordered upgrade steps
func Steps() []Step {
	return []Step{
		{
			Version:     1,
			Description: "segments, people, documents and drive activity",
			Up: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Segment{}, &Person{}, &PersonEmail{}, &Document{}, &DriveActivity{}); err != nil {
					return err
				}
				// v1 kept attendee links in a flat pair table
				return tx.Exec("CREATE TABLE IF NOT EXISTS " + legacySegmentPeople +
					" (segment_id TEXT NOT NULL, person_id TEXT NOT NULL)").Error
			},
		},
		{
			Version:     2,
			Description: "websites, visits, tags and blocklist",
			Up: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&WebsiteItem{}, &WebsiteVisit{}, &Tag{}, &BlocklistEntry{})
			},
		},
		{
			Version:     3,
			Description: "resolved attendees and emails",
			Up: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&SegmentAttendee{}, &Email{}); err != nil {
					return err
				}
				return tx.Exec("DROP TABLE IF EXISTS " + legacySegmentPeople).Error
			},
		},
		{
			Version:     4,
			Description: "composite indexes",
			Up:          CreateIndexes,
		},
		{
			Version:     5,
			Description: "drive activity actor addresses",
			Up: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&DriveActivity{})
			},
		},
	}
}

// Models returns every model owned by the schema
func Models() []interface{} {
	return []interface{}{
		&Segment{},
		&SegmentAttendee{},
		&Person{},
		&PersonEmail{},
		&Document{},
		&DriveActivity{},
		&Email{},
		&WebsiteItem{},
		&WebsiteVisit{},
		&Tag{},
		&BlocklistEntry{},
		&SchemaVersion{},
	}
}

// Migrate brings db to CurrentSchemaVersion and returns the version it
// found. All steps run in one transaction.
func Migrate(db *gorm.DB) (int, error) {
	from, err := readVersion(db)
	if err != nil {
		return 0, err
	}
	if from > CurrentSchemaVersion {
		return from, errs.New(errs.CodeIncompatibleSchema,
			fmt.Sprintf("database version %d is newer than supported version %d", from, CurrentSchemaVersion)).
			With("version", from)
	}
	if from == CurrentSchemaVersion {
		return from, nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		start := from
		if from > 0 && from < MinSupportedVersion {
			if err := DropAllTables(tx); err != nil {
				return err
			}
			start = 0
		}

		if err := tx.AutoMigrate(&SchemaVersion{}); err != nil {
			return fmt.Errorf("failed to create schema_versions: %w", err)
		}

		for _, step := range Steps() {
			if step.Version <= start {
				continue
			}
			if err := step.Up(tx); err != nil {
				return fmt.Errorf("migration to version %d failed: %w", step.Version, err)
			}
			row := SchemaVersion{Version: step.Version, Description: step.Description, AppliedAt: time.Now().UTC()}
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("failed to record version %d: %w", step.Version, err)
			}
		}

		return writeVersion(tx, CurrentSchemaVersion)
	})
	if err != nil {
		return from, err
	}
	return from, nil
}

// DropAllTables drops every known collection (use with caution!)
func DropAllTables(db *gorm.DB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return db.Exec("DROP TABLE IF EXISTS " + legacySegmentPeople).Error
}

func isSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == "sqlite"
}

// readVersion returns the stored schema version, 0 for a fresh database
func readVersion(db *gorm.DB) (int, error) {
	var version int
	if isSQLite(db) {
		if err := db.Raw("PRAGMA user_version").Scan(&version).Error; err != nil {
			return 0, err
		}
		return version, nil
	}

	if !db.Migrator().HasTable(&SchemaVersion{}) {
		return 0, nil
	}
	if err := db.Raw("SELECT COALESCE(MAX(version), 0) FROM " + CollectionSchemaVersions).Scan(&version).Error; err != nil {
		return 0, err
	}
	return version, nil
}

func writeVersion(tx *gorm.DB, version int) error {
	if !isSQLite(tx) {
		return nil
	}
	return tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)).Error
}

// CreateIndexes creates composite indexes for frequently queried combinations
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		columns []string
		name    string
	}{
		{
			table:   CollectionSegments,
			columns: []string{"start_at", "end_at"},
			name:    "idx_segments_window",
		},
		{
			table:   CollectionSegmentAttendees,
			columns: []string{"person_id", "segment_id"},
			name:    "idx_attendees_person_segment",
		},
		{
			table:   CollectionDriveActivities,
			columns: []string{"actor_person_id", "timestamp"},
			name:    "idx_activities_actor_timestamp",
		},
		{
			table:   CollectionWebsiteVisits,
			columns: []string{"website_id", "visited_at"},
			name:    "idx_visits_website_visited",
		},
		{
			table:   CollectionWebsiteItems,
			columns: []string{"hidden", "order_index"},
			name:    "idx_websites_hidden_order",
		},
		{
			table:   CollectionTags,
			columns: []string{"target_key", "position"},
			name:    "idx_tags_target_position",
		},
		{
			table:   CollectionBlocklist,
			columns: []string{"kind", "value"},
			name:    "idx_blocklist_kind_value",
		},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.table, idx.name) {
			continue
		}
		sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			idx.name,
			idx.table,
			strings.Join(idx.columns, ", "))

		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
