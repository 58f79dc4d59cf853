// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package errs

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// message fragments reported by the sqlite and postgres drivers
var (
	blockedMarkers = []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"sqlite_locked",
		"lock timeout",
	}
	terminatedMarkers = []string{
		"database is closed",
		"connection is already closed",
		"bad connection",
		"broken pipe",
		"connection reset",
		"conn closed",
	}
	corruptionMarkers = []string{
		"file is not a database",
		"database disk image is malformed",
		"malformed",
		"sqlite_corrupt",
		"sqlite_notadb",
		"file is encrypted",
	}
)

// Classify maps a raw driver or GORM error onto the taxonomy.
// An error that is already classified is returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(CodeItemNotFound, "record not found", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeCancelled, "operation cancelled", err)
	case errors.Is(err, gorm.ErrInvalidData), errors.Is(err, gorm.ErrEmptySlice),
		errors.Is(err, gorm.ErrPrimaryKeyRequired), errors.Is(err, gorm.ErrMissingWhereClause):
		return Wrap(CodeInvalidInput, "invalid storage request", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, corruptionMarkers):
		return Wrap(CodeDatabaseCorrupted, "database structure is unreadable", err)
	case containsAny(msg, blockedMarkers):
		return Wrap(CodeUpgradeBlocked, "storage is blocked by another connection", err)
	case containsAny(msg, terminatedMarkers):
		return Wrap(CodeConnectionTerminated, "storage connection was terminated", err)
	}

	return Wrap(CodeStorage, "storage operation failed", err)
}

// IsCorruption reports whether err indicates an unreadable database file
func IsCorruption(err error) bool {
	return Is(Classify(err), CodeDatabaseCorrupted)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
