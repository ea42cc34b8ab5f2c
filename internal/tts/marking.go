package tts

import (
	"context"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/ssml"
)

// Aligner derives word speech marks for audio of the reference text.
type Aligner interface {
	Align(ctx context.Context, audio []byte, reference, language string) ([]core.SpeechMark, error)
}

// HealthChecker is implemented by backends that can check their upstream.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// MarkingBackend adds aligned speech marks to a backend that produces none.
// Alignment failures are logged and the audio is returned without marks.
type MarkingBackend struct {
	core.Backend

	aligner Aligner
	log     *logger.Logger
}

// WithSpeechMarks wraps backend with aligner. A nil aligner returns backend
// unchanged.
func WithSpeechMarks(backend core.Backend, aligner Aligner, log *logger.Logger) core.Backend {
	if aligner == nil {
		return backend
	}

	return &MarkingBackend{Backend: backend, aligner: aligner, log: log}
}

// Synthesize implements core.Backend.
func (b *MarkingBackend) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	result, err := b.Backend.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	if result == nil || len(result.Audio) == 0 || len(result.SpeechMarks) > 0 {
		return result, nil
	}

	language := baseLanguage(req.Language)

	marks, err := b.aligner.Align(ctx, result.Audio, ssml.PlainText(req.Text), language)
	if err != nil {
		b.log.Warn("Speech mark alignment failed for %s via %s: %v", req.Key, b.Name(), err)

		return result, nil
	}

	return &core.SynthesisResult{Audio: result.Audio, SpeechMarks: marks}, nil
}

// Health forwards to the wrapped backend when it can check its upstream.
func (b *MarkingBackend) Health(ctx context.Context) error {
	checker, ok := b.Backend.(HealthChecker)
	if !ok {
		return nil
	}

	return checker.Health(ctx)
}
