package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/ssml"
	"github.com/book-expert/speech-service/internal/tts/text"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
)

const (
	realisticName              = "realistic"
	defaultBaseLanguage        = "en"
	defaultRealisticTemp       = 0.75
	defaultRealisticTimeout    = 120 * time.Second
	errFmtServiceErrorWithCode = "speech service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "speech service returned non-OK status: %s, body: %s"
)

// RealisticOptions configures the ultra-realistic voice service client.
type RealisticOptions struct {
	BaseURL        string
	Timeout        time.Duration
	Temperature    float64
	SpeakerRefPath string
}

// RealisticBackend calls the self-hosted ultra-realistic voice service for
// high-fidelity requests. That model reads its input literally, so text is
// normalized before it is sent.
type RealisticBackend struct {
	httpClient *http.Client
	baseURL    string
	opts       RealisticOptions
	normalizer *text.Normalizer
	log        *logger.Logger
}

// RealisticRequest is the JSON payload of a generation request.
type RealisticRequest struct {
	Text           string  `json:"text"`
	Voice          string  `json:"voice,omitempty"`
	SpeakerRefPath string  `json:"speaker_ref_path,omitempty"`
	Language       string  `json:"language"`
	Temperature    float64 `json:"temperature"`
}

// RealisticErrorResponse is the structured error body of the service.
type RealisticErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewRealisticBackend creates the backend. A zero Timeout falls back to the
// package default, and the base URL is used without its trailing slash.
func NewRealisticBackend(opts RealisticOptions, log *logger.Logger) *RealisticBackend {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRealisticTimeout
	}

	if opts.Temperature == 0 {
		opts.Temperature = defaultRealisticTemp
	}

	return &RealisticBackend{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		opts:       opts,
		normalizer: text.NewNormalizer(),
		log:        log,
	}
}

// Name implements core.Backend.
func (b *RealisticBackend) Name() string {
	return realisticName
}

// Supports accepts high-fidelity requests.
func (b *RealisticBackend) Supports(req core.SynthesisRequest) bool {
	return req.IsHighFidelity
}

// Synthesize implements core.Backend. It strips the markup, normalizes the
// remaining text and posts it to /v1/generate/speech. A non-200 answer is
// returned as an error carrying the service's detail and error code when the
// body parses, or the raw body when it does not. Anything but MP3 back is
// rejected.
func (b *RealisticBackend) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	spoken := b.normalizer.Normalize(ssml.PlainText(req.Text))
	if spoken == "" {
		return nil, fmt.Errorf("%w: nothing to speak", core.ErrInvalidInput)
	}

	body, err := json.Marshal(RealisticRequest{
		Text:           spoken,
		Voice:          req.VoiceID,
		SpeakerRefPath: b.opts.SpeakerRefPath,
		Language:       baseLanguage(req.Language),
		Temperature:    b.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+apiGenerateSpeech, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, core.ContentTypeJSON)
	httpReq.Header.Set(headerAccept, core.ContentTypeMP3)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to speech service at %s: %w", b.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseRealisticError(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != core.ContentTypeMP3 {
		return nil, fmt.Errorf("unexpected content type: expected %s, got %s", core.ContentTypeMP3, contentType)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	b.log.Info("Realistic voice produced %d bytes for %s", len(audio), req.Key)

	return &core.SynthesisResult{Audio: audio, SpeechMarks: nil}, nil
}

// Health verifies that the voice service is up.
func (b *RealisticBackend) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", b.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// baseLanguage reduces a BCP-47 tag to its bare language ("en-US" -> "en").
func baseLanguage(tag string) string {
	language, _, _ := strings.Cut(tag, "-")
	if language == "" {
		return defaultBaseLanguage
	}

	return strings.ToLower(language)
}

// parseRealisticError decodes the structured error body, falling back to
// the raw body.
func parseRealisticError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errorResp RealisticErrorResponse

	err := json.Unmarshal(raw, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, strings.TrimSpace(string(raw)))
}
