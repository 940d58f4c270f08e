package models

import "errors"

// Error taxonomy for session operations. NotFound and AccessDenied send the
// caller out of the session with no retry; Conflict surfaces only after the
// store has exhausted its optimistic retries and is retryable by the user.
// Invalid moves have no sentinel: duplicate or early submissions are silently
// ignored since network retries are expected.
var (
	ErrNotFound     = errors.New("session not found")
	ErrAccessDenied = errors.New("access denied")
	ErrConflict     = errors.New("transaction conflict")
)
