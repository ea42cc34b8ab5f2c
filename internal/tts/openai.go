package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/ssml"
	"github.com/sashabaranov/go-openai"
)

// OpenAIVoicePrefix marks voice ids served by the OpenAI backend. The rest
// of the id is the OpenAI voice name, e.g. "openai-alloy".
const OpenAIVoicePrefix = "openai-"

const (
	openAIName     = "openai"
	minOpenAISpeed = 0.25
	maxOpenAISpeed = 4.0
)

// OpenAIOptions configures the OpenAI speech backend.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIBackend synthesizes with the OpenAI speech endpoint. The endpoint
// takes plain text, so markup is stripped first; it returns no speech marks.
type OpenAIBackend struct {
	client *openai.Client
	model  openai.SpeechModel
	log    *logger.Logger
}

// NewOpenAIBackend creates the backend.
func NewOpenAIBackend(opts OpenAIOptions, log *logger.Logger) *OpenAIBackend {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	model := openai.TTSModel1
	if opts.Model != "" {
		model = openai.SpeechModel(opts.Model)
	}

	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg), model: model, log: log}
}

// Name implements core.Backend.
func (b *OpenAIBackend) Name() string {
	return openAIName
}

// Supports accepts requests for openai- prefixed voices.
func (b *OpenAIBackend) Supports(req core.SynthesisRequest) bool {
	return strings.HasPrefix(req.VoiceID, OpenAIVoicePrefix)
}

// Synthesize implements core.Backend.
func (b *OpenAIBackend) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	var audio bytes.Buffer

	_, err := b.SynthesizeTo(ctx, req, &audio)
	if err != nil {
		return nil, err
	}

	return &core.SynthesisResult{Audio: audio.Bytes(), SpeechMarks: nil}, nil
}

// SynthesizeTo streams the MP3 response body into sink.
func (b *OpenAIBackend) SynthesizeTo(ctx context.Context, req core.SynthesisRequest, sink io.Writer) ([]core.SpeechMark, error) {
	input := ssml.PlainText(req.Text)
	if input == "" {
		return nil, fmt.Errorf("%w: nothing to speak", core.ErrInvalidInput)
	}

	response, err := b.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          b.model,
		Input:          input,
		Voice:          openai.SpeechVoice(strings.TrimPrefix(req.VoiceID, OpenAIVoicePrefix)),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          openAISpeed(req.Rate),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech: %w", err)
	}
	defer response.Close()

	written, err := io.Copy(sink, response)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}

	b.log.Info("OpenAI produced %d bytes for %s", written, req.Key)

	return nil, nil
}

// openAISpeed maps a prosody rate onto the endpoint's speed range. Values
// that do not parse leave the speed unset.
func openAISpeed(rate string) float64 {
	speed, err := strconv.ParseFloat(strings.TrimSuffix(rate, "x"), 64)
	if err != nil || speed <= 0 {
		return 0
	}

	return min(max(speed, minOpenAISpeed), maxOpenAISpeed)
}
