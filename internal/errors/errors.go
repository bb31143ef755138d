// Package errors consolidates error definitions for the weather archive.
//
// It provides sentinel errors for every failure class the storage engine
// reports, category checking functions, and wrapping utilities.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Parse failures (malformed coordinate or timestamp input)
	ErrParse             = errors.New("parse error")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrBadRecordLength   = errors.New("record data length is not a multiple of the record size")

	// File backend failures
	ErrIO           = errors.New("file operation failed")
	ErrPartialBatch = errors.New("batch completed with skipped partitions")

	// Relational backend failures
	ErrQuery = errors.New("query execution failed")

	// Not-found conditions
	ErrNotFound         = errors.New("not found")
	ErrNoPartitions     = errors.New("no partitions exist for coordinate")
	ErrLocationNotFound = errors.New("no location resolves for coordinate")

	// Lifecycle
	ErrClosed     = errors.New("store is closed")
	ErrNotRunning = errors.New("service not running")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsParse returns true if err is a parse failure.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse) ||
		errors.Is(err, ErrInvalidCoordinate) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrBadRecordLength)
}

// IsNotFound returns true if err is a not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoPartitions) ||
		errors.Is(err, ErrLocationNotFound)
}

// IsPartial returns true if err reports a partially completed batch.
func IsPartial(err error) bool {
	return errors.Is(err, ErrPartialBatch)
}

// IsRetriable returns true if the error is potentially transient. Retrying
// is the caller's concern; the core primitives never retry internally.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrIO) || errors.Is(err, ErrQuery)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
