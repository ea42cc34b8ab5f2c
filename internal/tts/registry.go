// Package tts holds the synthesis backends and the registry that routes a
// request to the first backend able to serve it.
package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/metrics"
)

// Registry is an ordered, immutable list of backends. Order is priority:
// the first backend whose Supports reports true serves the request.
type Registry struct {
	backends []core.Backend
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewRegistry returns a Registry over backends in priority order. Nil
// entries are skipped so disabled backends can be passed through.
func NewRegistry(log *logger.Logger, recorder *metrics.Metrics, backends ...core.Backend) *Registry {
	ordered := make([]core.Backend, 0, len(backends))

	for _, backend := range backends {
		if backend != nil {
			ordered = append(ordered, backend)
		}
	}

	return &Registry{backends: ordered, log: log, metrics: recorder}
}

// Names returns backend names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for _, backend := range r.backends {
		names = append(names, backend.Name())
	}

	return names
}

// Select returns the first backend that supports req.
func (r *Registry) Select(req core.SynthesisRequest) (core.Backend, error) {
	for _, backend := range r.backends {
		if backend.Supports(req) {
			return backend, nil
		}
	}

	return nil, fmt.Errorf("%w: voice %q high fidelity %t", core.ErrNoBackendAvailable, req.VoiceID, req.IsHighFidelity)
}

// Dispatch selects a backend for req and invokes it once. Backend failures
// are wrapped in core.ErrSynthesisFailed; there is no retry and no failover.
func (r *Registry) Dispatch(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	backend, err := r.Select(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()

	result, err := backend.Synthesize(ctx, req)

	r.metrics.RecordSynthesis(backend.Name(), err == nil, time.Since(started).Seconds())

	if err != nil {
		r.log.Error("Backend %s failed for %s: %v", backend.Name(), req.Key, err)

		return nil, fmt.Errorf("%w: backend %s: %w", core.ErrSynthesisFailed, backend.Name(), err)
	}

	return result, nil
}

// Health checks every backend that can check its upstream and joins the
// failures.
func (r *Registry) Health(ctx context.Context) error {
	var errs []error

	for _, backend := range r.backends {
		checker, ok := backend.(HealthChecker)
		if !ok {
			continue
		}

		err := checker.Health(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("backend %s: %w", backend.Name(), err))
		}
	}

	return errors.Join(errs...)
}
