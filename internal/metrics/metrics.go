// Package metrics exposes the Prometheus instruments of the speech service.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache tiers and lookup outcomes used as label values.
const (
	TierEphemeral = "ephemeral"
	TierDurable   = "durable"

	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"

	statusSuccess = "success"
	statusFailed  = "failed"
)

// Metrics holds every instrument. A nil *Metrics records nothing.
type Metrics struct {
	cacheLookups       *prometheus.CounterVec
	synthesisRequests  *prometheus.CounterVec
	synthesisDuration  *prometheus.HistogramVec
	documentJobs       *prometheus.CounterVec
	rateLimited        prometheus.Counter
	charactersConsumed prometheus.Counter
}

// New creates the instruments and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speech_cache_lookups_total",
				Help: "Cache lookups by tier and outcome.",
			},
			[]string{"tier", "result"},
		),
		synthesisRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speech_synthesis_requests_total",
				Help: "Backend synthesis calls by backend and status.",
			},
			[]string{"backend", "status"},
		),
		synthesisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "speech_synthesis_duration_seconds",
				Help:    "Backend synthesis latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		documentJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speech_document_jobs_total",
				Help: "Document jobs by terminal state.",
			},
			[]string{"state"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "speech_rate_limited_total",
				Help: "Utterances rejected by the character budget.",
			},
		),
		charactersConsumed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "speech_characters_consumed_total",
				Help: "Characters of utterances that passed the budget check.",
			},
		),
	}

	collectors := []prometheus.Collector{
		metrics.cacheLookups,
		metrics.synthesisRequests,
		metrics.synthesisDuration,
		metrics.documentJobs,
		metrics.rateLimited,
		metrics.charactersConsumed,
	}

	for _, collector := range collectors {
		err := registerer.Register(collector)
		if err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return metrics, nil
}

// Handler serves the metrics gathered by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordCacheLookup counts one lookup against a cache tier.
func (m *Metrics) RecordCacheLookup(tier, result string) {
	if m == nil {
		return
	}

	m.cacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordSynthesis counts one backend call and its latency.
func (m *Metrics) RecordSynthesis(backend string, succeeded bool, seconds float64) {
	if m == nil {
		return
	}

	status := statusSuccess
	if !succeeded {
		status = statusFailed
	}

	m.synthesisRequests.WithLabelValues(backend, status).Inc()
	m.synthesisDuration.WithLabelValues(backend).Observe(seconds)
}

// RecordDocumentJob counts a finished document job.
func (m *Metrics) RecordDocumentJob(state string) {
	if m == nil {
		return
	}

	m.documentJobs.WithLabelValues(state).Inc()
}

// RecordRateLimited counts a rejected utterance.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}

	m.rateLimited.Inc()
}

// RecordCharacters adds the size of an accepted utterance.
func (m *Metrics) RecordCharacters(count int) {
	if m == nil {
		return
	}

	m.charactersConsumed.Add(float64(count))
}
