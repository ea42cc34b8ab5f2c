// Package client converts batches of text into audio files by calling the
// speech service's streaming endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// HealthCheckTimeout bounds the pre-flight health check.
	HealthCheckTimeout = 10 * time.Second

	defaultWorkers = 4
	defaultTimeout = 2 * time.Minute

	filePermissions = 0o600
	dirPermissions  = 0o750

	audioFileFormat = "chunk_%04d.mp3"
	marksFileFormat = "chunk_%04d.json"

	streamPath = "/text-to-speech/stream"
	healthPath = "/health"
)

// Static errors.
var (
	ErrBaseURLEmpty    = errors.New("service url cannot be empty")
	ErrTokenEmpty      = errors.New("token cannot be empty")
	ErrChunksPathEmpty = errors.New("chunks path cannot be empty")
	ErrOutputDirEmpty  = errors.New("output directory cannot be empty")
	ErrTextEmpty       = errors.New("text cannot be empty")
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	ErrNoChunksFound   = errors.New("no chunks found")
	ErrRequestFailed   = errors.New("speech request failed")
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	Token          string
	Voice          string
	Language       string
	Rate           string
	UltraRealistic bool
	Workers        int
	Timeout        time.Duration
}

// Chunk is the decoded result of one streaming request.
type Chunk struct {
	Audio       []byte
	SpeechMarks []core.SpeechMark
}

type streamRequest struct {
	Text                  string `json:"text"`
	Idx                   string `json:"idx"`
	IsUltraRealisticVoice bool   `json:"isUltraRealisticVoice"`
	Voice                 string `json:"voice,omitempty"`
	Rate                  string `json:"rate,omitempty"`
	Language              string `json:"language,omitempty"`
}

type streamResponse struct {
	Idx         string            `json:"idx"`
	AudioData   string            `json:"audioData"`
	SpeechMarks []core.SpeechMark `json:"speechMarks"`
}

// Client posts text chunks to the speech service.
type Client struct {
	opts       Options
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a Client.
func New(opts Options, log *logger.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ErrBaseURLEmpty
	}

	if opts.Token == "" {
		return nil, ErrTokenEmpty
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		log:        log,
	}, nil
}

// HealthCheck returns an error unless the service answers 200 on /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach speech service: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrRequestFailed, resp.StatusCode)
	}

	return nil
}

// Synthesize requests speech for one piece of text.
func (c *Client) Synthesize(ctx context.Context, idx, text string) (*Chunk, error) {
	body, err := json.Marshal(streamRequest{
		Text:                  text,
		Idx:                   idx,
		IsUltraRealisticVoice: c.opts.UltraRealistic,
		Voice:                 c.opts.Voice,
		Rate:                  c.opts.Rate,
		Language:              c.opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := c.opts.BaseURL + streamPath + "?token=" + url.QueryEscape(c.opts.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded streamResponse

	err = json.Unmarshal(raw, &decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	audio, err := hex.DecodeString(decoded.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	return &Chunk{Audio: audio, SpeechMarks: decoded.SpeechMarks}, nil
}

// ProcessSingleChunk synthesizes text into outputPath. Speech marks, when
// present, are written next to it with a .json extension.
func (c *Client) ProcessSingleChunk(ctx context.Context, text, outputPath string) error {
	if text == "" {
		return ErrTextEmpty
	}

	if outputPath == "" {
		return ErrOutputPathEmpty
	}

	err := os.MkdirAll(filepath.Dir(outputPath), dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	chunk, err := c.Synthesize(ctx, "0", text)
	if err != nil {
		return err
	}

	marksPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".json"

	return c.writeChunk(chunk, outputPath, marksPath)
}

// ProcessChunks reads a JSON array of strings from chunksPath and writes
// chunk_NNNN.mp3 (and chunk_NNNN.json) into outputDir. Failing chunks do not
// stop the others; the first failure is returned.
func (c *Client) ProcessChunks(ctx context.Context, chunksPath, outputDir string) error {
	if chunksPath == "" {
		return ErrChunksPathEmpty
	}

	if outputDir == "" {
		return ErrOutputDirEmpty
	}

	chunks, err := readChunksFile(chunksPath)
	if err != nil {
		return err
	}

	err = os.MkdirAll(outputDir, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err = c.HealthCheck(healthCtx)
	if err != nil {
		return fmt.Errorf("speech service health check failed: %w", err)
	}

	c.log.Info("Speech service is healthy, processing %d chunks", len(chunks))

	var group errgroup.Group

	group.SetLimit(c.opts.Workers)

	for index, text := range chunks {
		number := index + 1

		group.Go(func() error {
			chunk, synthErr := c.Synthesize(ctx, strconv.Itoa(index), text)
			if synthErr == nil {
				synthErr = c.writeChunk(chunk,
					filepath.Join(outputDir, fmt.Sprintf(audioFileFormat, number)),
					filepath.Join(outputDir, fmt.Sprintf(marksFileFormat, number)))
			}

			if synthErr != nil {
				c.log.Error("Failed to process chunk %d: %v", number, synthErr)

				return fmt.Errorf("chunk %d failed: %w", number, synthErr)
			}

			c.log.Info("Processed chunk %d/%d", number, len(chunks))

			return nil
		})
	}

	return group.Wait()
}

func (c *Client) writeChunk(chunk *Chunk, audioPath, marksPath string) error {
	err := os.WriteFile(audioPath, chunk.Audio, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	c.log.Info("Generated audio: %s (%d bytes)", audioPath, len(chunk.Audio))

	if len(chunk.SpeechMarks) == 0 {
		return nil
	}

	data, err := json.Marshal(chunk.SpeechMarks)
	if err != nil {
		return fmt.Errorf("failed to encode speech marks: %w", err)
	}

	err = os.WriteFile(marksPath, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write speech marks file: %w", err)
	}

	return nil
}

func readChunksFile(chunksPath string) ([]string, error) {
	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	var chunks []string

	err = json.Unmarshal(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks JSON: %w", err)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChunksFound, chunksPath)
	}

	return chunks, nil
}
