// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package errs defines the failure taxonomy shared by the storage adapter,
// the entity stores, the indexer and the search index.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Code is a machine-readable failure code
type Code string

const (
	CodeSetupTimeout         Code = "SETUP_TIMEOUT"
	CodeUpgradeBlocked       Code = "UPGRADE_BLOCKED"
	CodeConnectionTerminated Code = "CONNECTION_TERMINATED"
	CodeDatabaseCorrupted    Code = "DATABASE_CORRUPTED"
	CodeRecoveryFailed       Code = "RECOVERY_FAILED"
	CodeItemNotFound         Code = "ITEM_NOT_FOUND"
	CodeStorage              Code = "STORAGE_ERROR"
	CodeIncompatibleSchema   Code = "INCOMPATIBLE_SCHEMA"
	CodeInvalidInput         Code = "INVALID_INPUT"
	CodeBlocked              Code = "ITEM_BLOCKED"
	CodeUnavailable          Code = "UNAVAILABLE"
	CodeCancelled            Code = "CANCELLED"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Severity grades how badly a failure affects the dataset
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// defaults per code: retryable flag and severity
var codeDefaults = map[Code]struct {
	retryable bool
	severity  Severity
}{
	CodeSetupTimeout:         {true, SeverityMedium},
	CodeUpgradeBlocked:       {true, SeverityMedium},
	CodeConnectionTerminated: {true, SeverityHigh},
	CodeDatabaseCorrupted:    {true, SeverityCritical},
	CodeRecoveryFailed:       {false, SeverityCritical},
	CodeItemNotFound:         {false, SeverityLow},
	CodeStorage:              {true, SeverityMedium},
	CodeIncompatibleSchema:   {false, SeverityCritical},
	CodeInvalidInput:         {false, SeverityLow},
	CodeBlocked:              {false, SeverityLow},
	CodeUnavailable:          {false, SeverityHigh},
	CodeCancelled:            {false, SeverityLow},
	CodeInternal:             {false, SeverityHigh},
}

// Error is the single error type returned across package boundaries
type Error struct {
	Message   string
	Code      Code
	Severity  Severity
	Context   map[string]interface{}
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// With attaches a context key/value and returns the same error
func (e *Error) With(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates an Error using the default retryability and severity of code.
func New(code Code, message string) *Error {
	d, ok := codeDefaults[code]
	if !ok {
		d.retryable, d.severity = true, SeverityMedium
	}
	return &Error{
		Message:   message,
		Code:      code,
		Severity:  d.severity,
		Retryable: d.retryable,
	}
}

// Wrap wraps err with a code and message.
func Wrap(code Code, message string, err error) *Error {
	e := New(code, message)
	e.Err = err
	return e
}

// NotFound builds an ITEM_NOT_FOUND error for a collection and id
func NotFound(collection, id string) *Error {
	return New(CodeItemNotFound, fmt.Sprintf("%s %q not found", collection, id)).
		With("collection", collection).
		With("id", id)
}

// Invalid builds an INVALID_INPUT error
func Invalid(format string, args ...interface{}) *Error {
	return New(CodeInvalidInput, fmt.Sprintf(format, args...))
}

// NonRetryable marks err as not retryable and returns it
func NonRetryable(err *Error) *Error {
	err.Retryable = false
	return err
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or "" when err is nil or unclassified.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// Is checks if err carries code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether an operation that failed with err may be retried.
// Unknown errors are retryable; context cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if e, ok := As(err); ok && e.Code == CodeSetupTimeout {
			return e.Retryable
		}
		return false
	}
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return true
}

// RecoverInto converts a panic into an INTERNAL_ERROR stored in *errp.
// It must be deferred directly.
func RecoverInto(errp *error) {
	if r := recover(); r != nil {
		*errp = New(CodeInternal, fmt.Sprintf("panic: %v", r))
	}
}
