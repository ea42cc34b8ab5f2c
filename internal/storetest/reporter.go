package storetest

import (
	"context"
	"sync"

	"github.com/book-expert/speech-service/internal/core"
)

// Reporter is a core.StatusReporter that records reports. It acknowledges
// every report unless Reject is set and fails with Err when set.
type Reporter struct {
	mu      sync.Mutex
	reports []core.StatusReport

	Reject bool
	Err    error
}

// Report implements core.StatusReporter.
func (r *Reporter) Report(_ context.Context, report core.StatusReport) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports = append(r.reports, report)

	if r.Err != nil {
		return false, r.Err
	}

	return !r.Reject, nil
}

// Reports returns the recorded reports.
func (r *Reporter) Reports() []core.StatusReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]core.StatusReport(nil), r.reports...)
}
