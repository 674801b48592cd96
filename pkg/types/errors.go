package types

import "errors"

// Standard errors returned by the store and sync packages. Callers are
// expected to test with errors.Is.
var (
	// ErrStoreClosed is returned by store operations after Close, or
	// before Open has completed.
	ErrStoreClosed = errors.New("store is closed")

	// ErrAlreadyOpen is returned by Open when the store is already open.
	ErrAlreadyOpen = errors.New("store is already open")

	// ErrTableUnknown is returned when a table name is not one of the
	// registered domain tables.
	ErrTableUnknown = errors.New("unknown table")

	// ErrNotFound is returned when no record matches the given key.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidKey is returned when a local key or display ID is empty
	// or malformed.
	ErrInvalidKey = errors.New("invalid record key")

	// ErrInvalidFields is returned when a record payload is empty or not
	// representable as JSON.
	ErrInvalidFields = errors.New("invalid record fields")

	// ErrInvalidAction is returned when a queue entry carries an action
	// other than create or update.
	ErrInvalidAction = errors.New("invalid queue action")

	// ErrOffline is returned by operations that require the remote and
	// found it unreachable.
	ErrOffline = errors.New("remote is unreachable")
)
