package tts_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/metrics"
	"github.com/book-expert/speech-service/internal/storetest"
	"github.com/book-expert/speech-service/internal/tts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	return log
}

func voicePrefix(prefix string) func(core.SynthesisRequest) bool {
	return func(req core.SynthesisRequest) bool {
		return strings.HasPrefix(req.VoiceID, prefix)
	}
}

func TestRegistry_SelectFirstMatchWins(t *testing.T) {
	t.Parallel()

	first := storetest.NewBackend("first", voicePrefix("openai-"), nil, nil)
	second := storetest.NewBackend("second", storetest.Always, nil, nil)
	third := storetest.NewBackend("third", storetest.Always, nil, nil)

	registry := tts.NewRegistry(newTestLogger(t), nil, first, nil, second, third)

	assert.Equal(t, []string{"first", "second", "third"}, registry.Names())

	backend, err := registry.Select(core.SynthesisRequest{VoiceID: "openai-alloy"})
	require.NoError(t, err)
	assert.Equal(t, "first", backend.Name())

	backend, err = registry.Select(core.SynthesisRequest{VoiceID: "en-US-JennyNeural"})
	require.NoError(t, err)
	assert.Equal(t, "second", backend.Name(), "ties go to the earlier backend")
}

func TestRegistry_SelectNoBackend(t *testing.T) {
	t.Parallel()

	registry := tts.NewRegistry(newTestLogger(t), nil, storetest.NewBackend("never", storetest.Never, nil, nil))

	_, err := registry.Select(core.SynthesisRequest{})
	require.ErrorIs(t, err, core.ErrNoBackendAvailable)

	_, err = tts.NewRegistry(newTestLogger(t), nil).Select(core.SynthesisRequest{})
	require.ErrorIs(t, err, core.ErrNoBackendAvailable)
}

func TestRegistry_DispatchSuccess(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	recorder, err := metrics.New(registry)
	require.NoError(t, err)

	backend := storetest.NewBackend("edge", storetest.Always, &core.SynthesisResult{Audio: []byte("a"), SpeechMarks: nil}, nil)
	dispatcher := tts.NewRegistry(newTestLogger(t), recorder, backend)

	result, err := dispatcher.Dispatch(context.Background(), core.SynthesisRequest{Text: "hi", Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), result.Audio)
	assert.Equal(t, "hi", backend.Requests()[0].Text)

	count, err := testutil.GatherAndCount(registry, "speech_synthesis_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegistry_DispatchFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	cause := errors.New("upstream 503")
	failing := storetest.NewBackend("openai", storetest.Always, nil, cause)
	fallback := storetest.NewBackend("edge", storetest.Always, nil, nil)

	dispatcher := tts.NewRegistry(newTestLogger(t), nil, failing, fallback)

	_, err := dispatcher.Dispatch(context.Background(), core.SynthesisRequest{Text: "hi"})
	require.ErrorIs(t, err, core.ErrSynthesisFailed)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "openai")
	assert.Equal(t, 1, failing.Calls())
	assert.Equal(t, 0, fallback.Calls())
}

func TestRegistry_DispatchNoBackendNeverInvokes(t *testing.T) {
	t.Parallel()

	never := storetest.NewBackend("never", storetest.Never, nil, nil)

	_, err := tts.NewRegistry(newTestLogger(t), nil, never).Dispatch(context.Background(), core.SynthesisRequest{})
	require.ErrorIs(t, err, core.ErrNoBackendAvailable)
	assert.False(t, errors.Is(err, core.ErrSynthesisFailed))
	assert.Equal(t, 0, never.Calls())
}
