// Package apperr holds the sentinel errors shared across the engine.
package apperr

import "errors"

var (
	// ErrNotFound means no file exists for a requested fullname.
	ErrNotFound = errors.New("not found")
	// ErrBadFieldType means a value does not fit its index schema field.
	ErrBadFieldType = errors.New("bad field type")
	// ErrStaleRecordMissing means an incremental update expected a stored
	// record that is not there.
	ErrStaleRecordMissing = errors.New("stale record missing")
	// ErrCounterUnderflow means a hierarchy count would go negative.
	ErrCounterUnderflow = errors.New("counter underflow")
	// ErrSchemaMismatch means the stored index schema differs from the
	// requested one and no clear was asked for.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrBadQuery means a query, sort field or page request is invalid.
	ErrBadQuery = errors.New("bad query")
)
