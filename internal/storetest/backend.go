package storetest

import (
	"context"
	"io"
	"sync"

	"github.com/book-expert/speech-service/internal/core"
)

// Backend is a scripted core.Backend that records its calls.
type Backend struct {
	mu       sync.Mutex
	name     string
	supports func(core.SynthesisRequest) bool
	result   *core.SynthesisResult
	err      error
	requests []core.SynthesisRequest
}

// NewBackend returns a backend named name that accepts requests matching
// supports and answers with result or err.
func NewBackend(
	name string,
	supports func(core.SynthesisRequest) bool,
	result *core.SynthesisResult,
	err error,
) *Backend {
	return &Backend{name: name, supports: supports, result: result, err: err}
}

// Always accepts every request.
func Always(core.SynthesisRequest) bool {
	return true
}

// Never rejects every request.
func Never(core.SynthesisRequest) bool {
	return false
}

// Name implements core.Backend.
func (b *Backend) Name() string {
	return b.name
}

// Supports implements core.Backend.
func (b *Backend) Supports(req core.SynthesisRequest) bool {
	return b.supports(req)
}

// Synthesize implements core.Backend.
func (b *Backend) Synthesize(_ context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, req)

	if b.err != nil {
		return nil, b.err
	}

	if b.result == nil {
		return &core.SynthesisResult{Audio: nil, SpeechMarks: nil}, nil
	}

	marks := append([]core.SpeechMark(nil), b.result.SpeechMarks...)

	return &core.SynthesisResult{Audio: append([]byte(nil), b.result.Audio...), SpeechMarks: marks}, nil
}

// Calls returns how many times Synthesize ran.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.requests)
}

// Requests returns the requests Synthesize received.
func (b *Backend) Requests() []core.SynthesisRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]core.SynthesisRequest(nil), b.requests...)
}

// StreamingBackend is a scripted core.StreamingBackend. It writes the
// scripted audio in two halves and fails between them when FailMidStream
// is set.
type StreamingBackend struct {
	*Backend

	FailMidStream error
}

// NewStreamingBackend returns a streaming backend answering with result.
func NewStreamingBackend(name string, supports func(core.SynthesisRequest) bool, result *core.SynthesisResult) *StreamingBackend {
	return &StreamingBackend{Backend: NewBackend(name, supports, result, nil), FailMidStream: nil}
}

// SynthesizeTo implements core.StreamingBackend.
func (b *StreamingBackend) SynthesizeTo(ctx context.Context, req core.SynthesisRequest, sink io.Writer) ([]core.SpeechMark, error) {
	result, err := b.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	half := len(result.Audio) / 2

	_, err = sink.Write(result.Audio[:half])
	if err != nil {
		return nil, err
	}

	if b.FailMidStream != nil {
		return nil, b.FailMidStream
	}

	_, err = sink.Write(result.Audio[half:])
	if err != nil {
		return nil, err
	}

	return result.SpeechMarks, nil
}
