package model

import (
	"errors"
	"fmt"
)

// ErrConflict marks an attempt to rewrite an immutable claim: same id,
// different content. The original is retained, the rewrite dropped.
var ErrConflict = errors.New("conflicting content for existing claim id")

// ErrNotFound is returned by direct id lookups for unknown claims.
// Query-style operations return empty results instead.
var ErrNotFound = errors.New("claim not found")

// ValidationError describes a malformed or out-of-range claim. The claim
// is dropped at the boundary: never stored, never replicated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid claim: %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError for the given field
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// PeerError wraps a delivery failure for a single replication target.
// It never fails the originating request; the propagator logs and moves on.
type PeerError struct {
	Peer string
	Err  error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %s: %v", e.Peer, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }
