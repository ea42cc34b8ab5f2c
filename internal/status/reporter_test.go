package status_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReporter(t *testing.T, handler http.HandlerFunc) *status.Reporter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log, err := logger.New(t.TempDir(), "status-test.log")
	require.NoError(t, err)

	reporter, err := status.New(server.URL+"/", 0, log)
	require.NoError(t, err)

	return reporter
}

func TestReporter_ReportCompleted(t *testing.T) {
	t.Parallel()

	reporter := newReporter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/text-to-speech", r.URL.Path)
		assert.Equal(t, "a b&c", r.URL.Query().Get("token"))

		var payload status.Payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, status.Payload{
			SpeechID:            "job-1",
			AudioFileName:       "speech/job-1.mp3",
			SpeechMarksFileName: "speech/job-1.json",
			State:               core.JobCompleted,
		}, payload)

		w.WriteHeader(http.StatusOK)
	})

	ok, err := reporter.Report(context.Background(), core.StatusReport{
		JobID:          "job-1",
		Token:          "a b&c",
		State:          core.JobCompleted,
		AudioKey:       "speech/job-1.mp3",
		SpeechMarksKey: "speech/job-1.json",
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReporter_NonOKIsNegativeAck(t *testing.T) {
	t.Parallel()

	reporter := newReporter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ok, err := reporter.Report(context.Background(), core.StatusReport{JobID: "j", State: core.JobFailed})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReporter_TransportError(t *testing.T) {
	t.Parallel()

	log, err := logger.New(t.TempDir(), "status-test.log")
	require.NoError(t, err)

	reporter, err := status.New("http://127.0.0.1:1", 0, log)
	require.NoError(t, err)

	_, err = reporter.Report(context.Background(), core.StatusReport{JobID: "j", State: core.JobFailed})
	require.Error(t, err)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := status.New("", 0, nil)
	require.ErrorIs(t, err, status.ErrEndpointEmpty)
}
