package core

import "errors"

var (
	// ErrNoBackendAvailable indicates that no registered backend accepts the
	// request. It is a configuration error and is never retried.
	ErrNoBackendAvailable = errors.New("no text to speech backend found")
	// ErrRateLimited indicates the user exhausted the daily character budget.
	ErrRateLimited = errors.New("character budget exceeded")
	// ErrSynthesisFailed indicates the selected backend failed.
	ErrSynthesisFailed = errors.New("synthesis failed")
	// ErrStoreUnavailable indicates that a cache tier could not be read or written.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInternalCache indicates a synthesized artifact could not be persisted.
	ErrInternalCache = errors.New("internal cache error")
	// ErrInvalidInput indicates a request missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStatusNotAcknowledged indicates the status collaborator rejected a report.
	ErrStatusNotAcknowledged = errors.New("status update not acknowledged")
	// ErrObjectNotFound indicates a missing durable object.
	ErrObjectNotFound = errors.New("object not found")
)
