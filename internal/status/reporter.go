// Package status reports document job outcomes to the REST backend that
// owns the speech records.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
)

const (
	statusPath     = "/text-to-speech"
	defaultTimeout = 10 * time.Second
)

// ErrEndpointEmpty is returned by New without an endpoint.
var ErrEndpointEmpty = errors.New("status endpoint cannot be empty")

// Payload is the body posted for each report.
type Payload struct {
	SpeechID            string        `json:"speechId"`
	AudioFileName       string        `json:"audioFileName"`
	SpeechMarksFileName string        `json:"speechMarksFileName"`
	State               core.JobState `json:"state"`
}

// Reporter implements core.StatusReporter over HTTP.
type Reporter struct {
	httpClient *http.Client
	endpoint   string
	log        *logger.Logger
}

// New creates a Reporter posting to endpoint + "/text-to-speech".
func New(endpoint string, timeout time.Duration, log *logger.Logger) (*Reporter, error) {
	if endpoint == "" {
		return nil, ErrEndpointEmpty
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Reporter{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimRight(endpoint, "/") + statusPath,
		log:        log,
	}, nil
}

// Report posts report and returns true when the backend answered 200.
// Transport failures are returned as errors; any other status is a
// negative acknowledgement.
func (r *Reporter) Report(ctx context.Context, report core.StatusReport) (bool, error) {
	body, err := json.Marshal(Payload{
		SpeechID:            report.JobID,
		AudioFileName:       report.AudioKey,
		SpeechMarksFileName: report.SpeechMarksKey,
		State:               report.State,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal status: %w", err)
	}

	target := r.endpoint + "?token=" + url.QueryEscape(report.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create status request: %w", err)
	}

	req.Header.Set("Content-Type", core.ContentTypeJSON)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to post status for %s: %w", report.JobID, err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		r.log.Warn("Status update for %s answered %s", report.JobID, resp.Status)

		return false, nil
	}

	return true, nil
}
