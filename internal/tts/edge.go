package tts

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/ssml"
	"github.com/wujunwei928/edge-tts-go/edge_tts"
)

const (
	edgeName = "edge"

	// Edge accepts relative rates; multipliers outside these bounds are clamped.
	minEdgeRatePercent = -50
	maxEdgeRatePercent = 100
	defaultEdgeRate    = "+0%"
)

// EdgeOutputFunc synthesizes text and returns MP3 audio. Rate is already in
// Edge's signed percentage form.
type EdgeOutputFunc func(text, voice, rate string) ([]byte, error)

// EdgeBackend synthesizes with the Edge read-aloud service, which serves the
// Azure neural voices. It handles every request that is not high fidelity.
type EdgeBackend struct {
	output       EdgeOutputFunc
	defaultVoice string
	log          *logger.Logger
}

// NewEdgeBackend creates the backend. A nil output uses the Edge service.
func NewEdgeBackend(output EdgeOutputFunc, defaultVoice string, log *logger.Logger) *EdgeBackend {
	if output == nil {
		output = edgeOutput
	}

	if defaultVoice == "" {
		defaultVoice = ssml.DefaultVoice
	}

	return &EdgeBackend{output: output, defaultVoice: defaultVoice, log: log}
}

// Name implements core.Backend.
func (b *EdgeBackend) Name() string {
	return edgeName
}

// Supports accepts standard-fidelity requests.
func (b *EdgeBackend) Supports(req core.SynthesisRequest) bool {
	return !req.IsHighFidelity
}

// Synthesize implements core.Backend. The Edge client has no cancellation,
// so a cancelled ctx abandons the call rather than stopping it.
func (b *EdgeBackend) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	text := ssml.PlainText(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: nothing to speak", core.ErrInvalidInput)
	}

	voice := req.VoiceID
	if voice == "" {
		voice = b.defaultVoice
	}

	type outcome struct {
		audio []byte
		err   error
	}

	done := make(chan outcome, 1)

	go func() {
		audio, err := b.output(text, voice, EdgeRate(req.Rate))
		done <- outcome{audio: audio, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("edge synthesis abandoned: %w", ctx.Err())
	case result := <-done:
		if result.err != nil {
			return nil, fmt.Errorf("edge synthesis failed: %w", result.err)
		}

		b.log.Info("Edge produced %d bytes for %s", len(result.audio), req.Key)

		return &core.SynthesisResult{Audio: result.audio, SpeechMarks: nil}, nil
	}
}

// EdgeOptions builds the communicator options for voice and a prosody rate
// such as "1.25". The rate becomes Edge's relative form ("+25%").
func EdgeOptions(voice, rate string) []edge_tts.CommunicateOption {
	return []edge_tts.CommunicateOption{
		edge_tts.SetVoice(voice),
		edge_tts.SetRate(EdgeRate(rate)),
	}
}

// EdgeRate converts a prosody rate into a signed percentage. A value already
// in that form is kept; anything that does not parse is read as normal speed.
func EdgeRate(rate string) string {
	rate = strings.TrimSpace(rate)

	if strings.HasSuffix(rate, "%") && (strings.HasPrefix(rate, "+") || strings.HasPrefix(rate, "-")) {
		percent, err := strconv.Atoi(rate[1 : len(rate)-1])
		if err == nil && percent >= 0 {
			return rate
		}
	}

	multiplier, err := strconv.ParseFloat(strings.TrimSuffix(rate, "x"), 64)
	if err != nil || multiplier <= 0 {
		return defaultEdgeRate
	}

	percent := int(math.Round((multiplier - 1) * 100))
	percent = min(max(percent, minEdgeRatePercent), maxEdgeRatePercent)

	return fmt.Sprintf("%+d%%", percent)
}

func edgeOutput(text, voice, rate string) ([]byte, error) {
	communicate, err := edge_tts.NewCommunicate(text, EdgeOptions(voice, rate)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create edge communicator: %w", err)
	}

	audio, err := communicate.Stream()
	if err != nil {
		return nil, fmt.Errorf("failed to stream edge audio: %w", err)
	}

	return audio, nil
}
