package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated indicates no valid principal could be resolved.
	// Surfaced before any permission evaluation runs.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotPermitted indicates a denied permission evaluation. Deliberately
	// generic: role and relationship denials are indistinguishable externally.
	ErrNotPermitted = errors.New("not permitted")
	// ErrAuditUnavailable indicates an audit entry could not be persisted.
	// The surrounding request must fail; an unaudited decision is treated as
	// an unauthorized one.
	ErrAuditUnavailable = errors.New("audit store unavailable")
)
