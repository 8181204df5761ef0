// Package model - Error kinds shared by the store, lifecycle and API layers
package model

import "errors"

var (
	// ErrNotFound is returned when an issue does not exist.
	ErrNotFound = errors.New("issue not found")
	// ErrAccessDenied is returned when the requester may not act on the issue's workspace.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidInput is returned for malformed findings, scopes or requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateActive is returned by a store when an insert would create a
	// second active issue for the same (document, framework, fingerprint).
	ErrDuplicateActive = errors.New("active issue with this fingerprint already exists")
	// ErrRevisionConflict is returned when a conditional update lost a race.
	ErrRevisionConflict = errors.New("issue was modified concurrently")
)

// IsRetryable reports whether err is a storage race the reconciler retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDuplicateActive) || errors.Is(err, ErrRevisionConflict)
}
