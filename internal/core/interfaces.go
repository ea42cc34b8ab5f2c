// Package core defines the shared types, interfaces and errors of the speech service.
package core

import (
	"context"
	"io"
	"time"
)

// ObjectStore defines the durable blob store holding synthesized artifacts.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	UploadStream(ctx context.Context, key string, reader io.Reader, contentType string) error
}

// EphemeralStore defines the TTL'd key-value store used as a cache accelerator
// and as the home of the per-user character counters.
type EphemeralStore interface {
	// Get returns the stored value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// SetIfAbsent writes value only when key holds nothing. It reports
	// whether the write happened.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Backend is a synthesis engine together with the predicate deciding whether
// it handles a given request.
type Backend interface {
	Name() string
	Supports(req SynthesisRequest) bool
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// StreamingBackend is implemented by backends able to write audio
// progressively to a sink instead of buffering it.
type StreamingBackend interface {
	Backend
	SynthesizeTo(ctx context.Context, req SynthesisRequest, sink io.Writer) ([]SpeechMark, error)
}

// StatusReporter receives the terminal state of a document job.
type StatusReporter interface {
	Report(ctx context.Context, report StatusReport) (bool, error)
}
