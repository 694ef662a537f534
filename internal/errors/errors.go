package errors

import "errors"

// Reconciliation errors.
var (
	ErrNoIdentity      = errors.New("no identity")
	ErrPersistFailed   = errors.New("local persist failed")
	ErrEventNotFound   = errors.New("event not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

// Sync/transport errors.
var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrUploadRejected = errors.New("upload rejected")
)
