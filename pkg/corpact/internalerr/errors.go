// Package internalerr holds the sentinel errors shared by the ingestion
// packages. Callers wrap them with fmt.Errorf("...: %w") and match with
// errors.Is.
package internalerr

import "errors"

var (
	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks arguments or records that fail validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicate marks a write rejected by a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrStoreUnavailable marks a persistence gateway that cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidConfig marks configuration that fails loading or validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrFetchFailed marks a feed request that failed (network, status, body).
	ErrFetchFailed = errors.New("feed fetch failed")
)
