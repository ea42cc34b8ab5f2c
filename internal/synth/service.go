// Package synth orchestrates the two request shapes: cached utterances and
// whole-document jobs.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/cache"
	"github.com/book-expert/speech-service/internal/cachekey"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/metrics"
	"github.com/book-expert/speech-service/internal/ratelimit"
	"github.com/book-expert/speech-service/internal/ssml"
	"github.com/book-expert/speech-service/internal/tts"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Registry    *tts.Registry
	Coordinator *cache.Coordinator
	Limiter     *ratelimit.Limiter
	Durable     core.ObjectStore
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

// Service is the synthesis orchestrator. It holds no per-request state and
// is safe for concurrent use by the HTTP handlers and the document worker.
type Service struct {
	registry    *tts.Registry
	coordinator *cache.Coordinator
	limiter     *ratelimit.Limiter
	durable     core.ObjectStore
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{
		registry:    deps.Registry,
		coordinator: deps.Coordinator,
		limiter:     deps.Limiter,
		durable:     deps.Durable,
		metrics:     deps.Metrics,
		log:         deps.Logger,
	}
}

// SynthesizeUtterance returns audio and speech marks for a short text,
// served from cache when possible.
//
// The user's character budget is checked before any tier is consulted. It is
// committed only when the entry came from the durable store or a backend; an
// ephemeral hit and an empty synthesis leave the counter untouched.
// Errors wrap core.ErrRateLimited, core.ErrInvalidInput,
// core.ErrNoBackendAvailable, core.ErrSynthesisFailed or core.ErrInternalCache.
func (s *Service) SynthesizeUtterance(ctx context.Context, req core.SynthesisRequest, userID string) (*core.CacheEntry, error) {
	if req.Text == "" {
		return core.EmptyEntry(), nil
	}

	characters := utf8.RuneCountInString(req.Text)

	decision, err := s.limiter.CheckAndReserve(ctx, userID, characters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}

	if !decision.Allowed {
		s.metrics.RecordRateLimited()
		s.log.Warn("User %s over character budget (%d)", userID, decision.NewTotal)

		return nil, core.ErrRateLimited
	}

	synthReq := utteranceRequest(req)
	key := cachekey.Derive(synthReq.Text)
	synthReq.Key = key.String()

	resolution, err := s.coordinator.Resolve(ctx, key, func(ctx context.Context) (*core.SynthesisResult, error) {
		return s.registry.Dispatch(ctx, synthReq)
	})
	if err != nil {
		return nil, err
	}

	if resolution.Source == cache.SourceDurable || resolution.Source == cache.SourceSynthesized {
		s.metrics.RecordCharacters(characters)

		commitErr := s.limiter.Commit(ctx, userID, decision.NewTotal)
		if commitErr != nil {
			s.log.Warn("Failed to record character count for user %s: %v", userID, commitErr)
		}
	}

	s.log.Info("Utterance %s served from %s", key, resolution.Source)

	entry := resolution.Entry

	return &entry, nil
}

// utteranceRequest wraps the text in SSML. The primary voice also reads
// quoted passages.
func utteranceRequest(req core.SynthesisRequest) core.SynthesisRequest {
	secondary := req.SecondaryVoiceID
	if secondary == "" {
		secondary = req.VoiceID
	}

	req.Text = ssml.Assemble(req.Text, ssml.Options{
		PrimaryVoice:   req.VoiceID,
		SecondaryVoice: secondary,
		Language:       req.Language,
		Rate:           req.Rate,
	})
	req.InputKind = core.InputSSML

	return req
}

// SynthesizeDocument synthesizes a whole document into speech/<id>.mp3 (and
// speech/<id>.json when there are marks) and reports the outcome. Failures
// are reported as FAILED on a best-effort basis and returned.
func (s *Service) SynthesizeDocument(ctx context.Context, job core.DocumentJob, reporter core.StatusReporter) error {
	if job.ID == "" {
		return fmt.Errorf("%w: document job id is empty", core.ErrInvalidInput)
	}

	started := time.Now()

	report, err := s.produceDocument(ctx, job)
	if err != nil {
		s.log.Error("Document job %s failed: %v", job.ID, err)
		s.metrics.RecordDocumentJob(string(core.JobFailed))
		s.reportFailure(ctx, job, reporter)

		return err
	}

	acknowledged, err := reporter.Report(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to report document job %s: %w", job.ID, err)
	}

	if !acknowledged {
		return fmt.Errorf("%w: document job %s", core.ErrStatusNotAcknowledged, job.ID)
	}

	s.metrics.RecordDocumentJob(string(core.JobCompleted))
	s.log.Info("Document job %s completed in %s", job.ID, time.Since(started))

	return nil
}

func (s *Service) produceDocument(ctx context.Context, job core.DocumentJob) (core.StatusReport, error) {
	req, err := documentRequest(job)
	if err != nil {
		return core.StatusReport{}, err
	}

	backend, err := s.registry.Select(req)
	if err != nil {
		return core.StatusReport{}, err
	}

	audioKey := cachekey.AudioPath(job.ID)

	var marks []core.SpeechMark

	if streaming, ok := backend.(core.StreamingBackend); ok {
		marks, err = s.streamDocument(ctx, streaming, req, audioKey)
	} else {
		marks, err = s.bufferDocument(ctx, req, audioKey)
	}

	if err != nil {
		return core.StatusReport{}, err
	}

	report := core.StatusReport{
		JobID:          job.ID,
		Token:          job.Token,
		State:          core.JobCompleted,
		AudioKey:       audioKey,
		SpeechMarksKey: "",
	}

	if len(marks) > 0 {
		report.SpeechMarksKey = cachekey.MarksPath(job.ID)

		data, marshalErr := json.Marshal(marks)
		if marshalErr != nil {
			return core.StatusReport{}, fmt.Errorf("failed to encode speech marks: %w", marshalErr)
		}

		err = s.durable.Upload(ctx, report.SpeechMarksKey, data, core.ContentTypeJSON)
		if err != nil {
			return core.StatusReport{}, fmt.Errorf("failed to save speech marks: %w", err)
		}
	}

	return report, nil
}

// documentRequest converts HTML input into a single SSML document.
func documentRequest(job core.DocumentJob) (core.SynthesisRequest, error) {
	req := job.Request
	req.Key = job.ID

	if req.InputKind != core.InputHTML {
		return req, nil
	}

	markup, err := ssml.FromHTML(req.Text, ssml.Options{
		PrimaryVoice:   req.VoiceID,
		SecondaryVoice: req.SecondaryVoiceID,
		Language:       req.Language,
		Rate:           req.Rate,
	})
	if err != nil {
		return core.SynthesisRequest{}, fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}

	req.Text = markup
	req.InputKind = core.InputSSML

	return req, nil
}

// streamDocument pipes backend output straight into the durable store.
// Whichever side fails first is the reported cause: a backend failure aborts
// the upload and a store failure aborts the backend. A backend that finishes
// without writing any audio fails the job.
func (s *Service) streamDocument(
	ctx context.Context,
	backend core.StreamingBackend,
	req core.SynthesisRequest,
	audioKey string,
) ([]core.SpeechMark, error) {
	reader, writer := io.Pipe()
	group, groupCtx := errgroup.WithContext(ctx)

	var (
		marks     []core.SpeechMark
		cause     error
		causeOnce sync.Once
	)

	// fail records err as the cause and reports whether it was the first.
	fail := func(err error) bool {
		first := false

		causeOnce.Do(func() {
			cause = err
			first = true
		})

		return first
	}

	group.Go(func() error {
		started := time.Now()
		sink := &countingWriter{w: writer, n: 0}

		produced, err := backend.SynthesizeTo(groupCtx, req, sink)
		if err == nil && sink.n == 0 {
			err = errors.New("backend wrote no audio")
		}

		if err != nil {
			err = fmt.Errorf("%w: backend %s: %w", core.ErrSynthesisFailed, backend.Name(), err)
			if fail(err) {
				s.metrics.RecordSynthesis(backend.Name(), false, time.Since(started).Seconds())
			}

			writer.CloseWithError(err)

			return err
		}

		s.metrics.RecordSynthesis(backend.Name(), true, time.Since(started).Seconds())

		marks = produced

		return writer.Close()
	})

	group.Go(func() error {
		err := s.durable.UploadStream(groupCtx, audioKey, reader, core.ContentTypeMP3)
		if err != nil {
			err = fmt.Errorf("failed to save audio: %w", err)
			fail(err)
			reader.CloseWithError(err)

			return err
		}

		return nil
	})

	err := group.Wait()
	if cause != nil {
		return nil, cause
	}

	if err != nil {
		return nil, err
	}

	return marks, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}

func (s *Service) bufferDocument(ctx context.Context, req core.SynthesisRequest, audioKey string) ([]core.SpeechMark, error) {
	result, err := s.registry.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	if result == nil || len(result.Audio) == 0 {
		return nil, fmt.Errorf("%w: backend returned no audio", core.ErrSynthesisFailed)
	}

	err = s.durable.Upload(ctx, audioKey, result.Audio, core.ContentTypeMP3)
	if err != nil {
		return nil, fmt.Errorf("failed to save audio: %w", err)
	}

	return result.SpeechMarks, nil
}

func (s *Service) reportFailure(ctx context.Context, job core.DocumentJob, reporter core.StatusReporter) {
	_, err := reporter.Report(context.WithoutCancel(ctx), core.StatusReport{
		JobID:          job.ID,
		Token:          job.Token,
		State:          core.JobFailed,
		AudioKey:       "",
		SpeechMarksKey: "",
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("Failed to report failure of document job %s: %v", job.ID, err)
	}
}
