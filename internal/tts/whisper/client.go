// Package whisper derives word-level speech marks from synthesized audio by
// transcribing it with the Whisper transcription API.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/book-expert/speech-service/internal/core"
	"github.com/sashabaranov/go-openai"
)

// Defaults for Options fields left empty.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = openai.Whisper1
	DefaultTimeout = 60 * time.Second
)

const (
	audioFileName = "speech.mp3"
	markTypeWord  = "word"
)

var (
	// ErrAPIKeyEmpty is returned by New without an API key.
	ErrAPIKeyEmpty = errors.New("whisper api key cannot be empty")
	// ErrAudioEmpty is returned when there is nothing to transcribe.
	ErrAudioEmpty = errors.New("audio cannot be empty")
	// ErrRequestFailed is returned when the transcription call fails.
	ErrRequestFailed = errors.New("transcription request failed")
)

// Options configures a Client. BaseURL points at any OpenAI-compatible
// endpoint serving /audio/transcriptions; Model and Timeout fall back to
// DefaultModel and DefaultTimeout.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client requests word-timestamped transcriptions of synthesized audio and
// aligns the transcribed words with the text that was spoken. It is safe for
// concurrent use.
type Client struct {
	api   *openai.Client
	model string
}

// Word is one transcribed word with its offsets in seconds.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcription is the text of a transcription and its timed words.
type Transcription struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

// New creates a Client.
//
// The API key is required; every other option has a default.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrAPIKeyEmpty
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{api: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Transcribe returns the transcription of audio with word-level timestamps.
// The audio is sent as MP3 in verbose_json mode; language is an optional
// ISO-639-1 hint.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (*Transcription, error) {
	if len(audio) == 0 {
		return nil, ErrAudioEmpty
	}

	response, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:       c.model,
		FilePath:    audioFileName,
		Reader:      bytes.NewReader(audio),
		Prompt:      "",
		Temperature: 0,
		Language:    language,
		Format:      openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	words := make([]Word, 0, len(response.Words))
	for _, word := range response.Words {
		words = append(words, Word{Word: word.Word, Start: word.Start, End: word.End})
	}

	return &Transcription{Text: response.Text, Words: words}, nil
}

// Align transcribes audio and turns the words into speech marks whose
// character offsets point into reference, the text that was spoken.
func (c *Client) Align(ctx context.Context, audio []byte, reference, language string) ([]core.SpeechMark, error) {
	transcription, err := c.Transcribe(ctx, audio, language)
	if err != nil {
		return nil, err
	}

	return Marks(transcription.Words, reference), nil
}

// Marks maps transcribed words onto reference. Words are matched in order,
// case-insensitively; a word missing from reference is anchored at the end
// of the previous match.
func Marks(words []Word, reference string) []core.SpeechMark {
	marks := make([]core.SpeechMark, 0, len(words))
	lower := strings.ToLower(reference)
	cursor := 0

	for _, word := range words {
		value := strings.TrimFunc(word.Word, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r)
		})
		if value == "" {
			continue
		}

		start, end := cursor, cursor

		offset := strings.Index(lower[cursor:], strings.ToLower(value))
		if offset >= 0 {
			start = cursor + offset
			end = start + len(value)
			cursor = end
		}

		marks = append(marks, core.SpeechMark{
			Type:  markTypeWord,
			Time:  int64(math.Round(word.Start * 1000)),
			Value: value,
			Start: start,
			End:   end,
		})
	}

	return marks
}
