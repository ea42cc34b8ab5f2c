// Package worker consumes document jobs from NATS and answers each request
// with the location of the synthesized audio.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const defaultJobTimeout = 10 * time.Minute

var (
	// ErrTextKeyEmpty indicates an event without a source document.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrWorkflowIDEmpty indicates an event without a workflow id.
	ErrWorkflowIDEmpty = errors.New("workflow id cannot be empty")
	// ErrPageNumberNegative indicates a negative page number.
	ErrPageNumberNegative = errors.New("page number must be non-negative")
)

// DocumentSynthesizer runs one document job to completion.
type DocumentSynthesizer interface {
	SynthesizeDocument(ctx context.Context, job core.DocumentJob, reporter core.StatusReporter) error
}

// Options configures a NatsWorker.
type Options struct {
	Subject    string
	QueueGroup string
	Voice      string
	Language   string
	Rate       string
	JobTimeout time.Duration
}

// NatsWorker listens for TextProcessedEvents and synthesizes the referenced
// HTML document.
type NatsWorker struct {
	natsConnection *nats.Conn
	opts           Options
	store          core.ObjectStore
	synthesizer    DocumentSynthesizer
	log            *logger.Logger
}

// NewNatsWorker creates a worker bound to natsConnection. A zero JobTimeout
// uses the package default. Nothing is subscribed until Subscribe or Run is
// called.
func NewNatsWorker(
	natsConnection *nats.Conn,
	opts Options,
	store core.ObjectStore,
	synthesizer DocumentSynthesizer,
	log *logger.Logger,
) *NatsWorker {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		opts:           opts,
		store:          store,
		synthesizer:    synthesizer,
		log:            log,
	}
}

// Subscribe registers the message handler and waits until the server has
// seen the subscription.
func (w *NatsWorker) Subscribe() (*nats.Subscription, error) {
	sub, err := w.natsConnection.QueueSubscribe(w.opts.Subject, w.opts.QueueGroup, w.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject %s: %w", w.opts.Subject, err)
	}

	err = w.natsConnection.Flush()
	if err != nil {
		return nil, fmt.Errorf("failed to flush subscription: %w", err)
	}

	return sub, nil
}

// Run subscribes and processes messages until ctx is done. On shutdown the
// subscription is drained, so jobs already delivered finish before Run
// returns nil.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.Subscribe()
	if err != nil {
		return err
	}

	w.log.Info("Worker listening on %s", w.opts.Subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.JobTimeout)
	defer cancel()

	event, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	job, err := w.buildJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to prepare document job for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	reporter := &replyReporter{worker: w, msg: msg, event: event}

	err = w.synthesizer.SynthesizeDocument(ctx, job, reporter)
	if err != nil {
		w.log.Error("Document job %s for workflow %s failed: %v", job.ID, event.Header.WorkflowID, err)
	}
}

// buildJob downloads the page's HTML and turns the event into a job.
func (w *NatsWorker) buildJob(ctx context.Context, event *events.TextProcessedEvent) (core.DocumentJob, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return core.DocumentJob{}, fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	voice := event.Voice
	if voice == "" {
		voice = w.opts.Voice
	}

	return core.DocumentJob{
		ID:    JobID(event),
		Token: "",
		Request: core.SynthesisRequest{
			Text:             string(textData),
			VoiceID:          voice,
			SecondaryVoiceID: voice,
			Rate:             w.opts.Rate,
			Language:         w.opts.Language,
			IsHighFidelity:   false,
			InputKind:        core.InputHTML,
			Key:              "",
		},
	}, nil
}

// JobID names the artifacts of a page: "<workflow>-<page>".
func JobID(event *events.TextProcessedEvent) string {
	return fmt.Sprintf("%s-%04d", event.Header.WorkflowID, event.PageNumber)
}

// replyReporter answers the originating request when the job completes.
type replyReporter struct {
	worker *NatsWorker
	msg    *nats.Msg
	event  *events.TextProcessedEvent
}

// Report implements core.StatusReporter.
func (r *replyReporter) Report(_ context.Context, report core.StatusReport) (bool, error) {
	if report.State != core.JobCompleted {
		r.worker.log.Warn("Workflow %s page %d ended %s", r.event.Header.WorkflowID, r.event.PageNumber, report.State)

		return true, nil
	}

	if r.msg.Reply == "" {
		r.worker.log.Info("Workflow %s page %d synthesized to %s", r.event.Header.WorkflowID, r.event.PageNumber, report.AudioKey)

		return true, nil
	}

	header := r.event.Header
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now().UTC()

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     header,
		AudioKey:   report.AudioKey,
		PageNumber: r.event.PageNumber,
		TotalPages: r.event.TotalPages,
	}

	err := publishReplyEvent(r.msg, replyEvent)
	if err != nil {
		return false, err
	}

	return true, nil
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	switch {
	case event.Header.WorkflowID == "":
		return nil, ErrWorkflowIDEmpty
	case event.TextKey == "":
		return nil, ErrTextKeyEmpty
	case event.PageNumber < 0:
		return nil, fmt.Errorf("%w: got %d", ErrPageNumberNegative, event.PageNumber)
	default:
		return &event, nil
	}
}
