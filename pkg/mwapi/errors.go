package mwapi

import "errors"

var (
	// ErrEntityNotFound indicates the entity does not exist (a file with
	// no structured data yet, or a deleted page).
	ErrEntityNotFound = errors.New("mwapi entity not found")
	// ErrStatementNotFound indicates no statement with the given GUID exists.
	ErrStatementNotFound = errors.New("mwapi statement not found")
	// ErrNoCredential indicates the acting user has no stored OAuth token.
	// Expected for logged-out users; writes must abort without traffic.
	ErrNoCredential = errors.New("mwapi no credential")
	// ErrAuth indicates the wiki rejected the user's authorization.
	ErrAuth = errors.New("mwapi authorization rejected")
	// ErrWriteConflict indicates a write failed because of a conflicting
	// concurrent edit.
	ErrWriteConflict = errors.New("mwapi write conflict")
)
