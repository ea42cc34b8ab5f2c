package tts

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/ssml"
	"github.com/googleapis/gax-go/v2"
)

// GoogleVoicePrefix marks voice ids served by Google Cloud Text-to-Speech.
// The rest of the id is the Google voice name, e.g. "google-en-US-Neural2-C".
const GoogleVoicePrefix = "google-"

const googleName = "google"

// GoogleSynthesizer is the part of the Cloud Text-to-Speech client the
// backend uses. *texttospeech.Client satisfies it.
type GoogleSynthesizer interface {
	SynthesizeSpeech(
		ctx context.Context,
		req *texttospeechpb.SynthesizeSpeechRequest,
		opts ...gax.CallOption,
	) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// GoogleBackend synthesizes with Google Cloud Text-to-Speech.
type GoogleBackend struct {
	client GoogleSynthesizer
	log    *logger.Logger
}

// NewGoogleBackend creates the backend over client.
func NewGoogleBackend(client GoogleSynthesizer, log *logger.Logger) *GoogleBackend {
	return &GoogleBackend{client: client, log: log}
}

// Name implements core.Backend.
func (b *GoogleBackend) Name() string {
	return googleName
}

// Supports accepts requests for google- prefixed voices.
func (b *GoogleBackend) Supports(req core.SynthesisRequest) bool {
	return strings.HasPrefix(req.VoiceID, GoogleVoicePrefix)
}

// Synthesize implements core.Backend.
func (b *GoogleBackend) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	text := ssml.PlainText(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: nothing to speak", core.ErrInvalidInput)
	}

	language := req.Language
	if language == "" {
		language = ssml.DefaultLanguage
	}

	resp, err := b.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Ssml{Ssml: googleSSML(text)},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: language,
			Name:         strings.TrimPrefix(req.VoiceID, GoogleVoicePrefix),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  googleRate(req.Rate),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	b.log.Info("Google produced %d bytes for %s", len(resp.GetAudioContent()), req.Key)

	return &core.SynthesisResult{Audio: resp.GetAudioContent(), SpeechMarks: nil}, nil
}

// googleSSML wraps plain text in the SSML dialect Cloud Text-to-Speech
// accepts; the Azure voice and prosody elements are not understood there.
func googleSSML(text string) string {
	return "<speak>" + html.EscapeString(text) + "</speak>"
}

// googleRate returns the speaking rate, or 0 (server default) when rate is
// unset or outside [0.25, 4.0].
func googleRate(rate string) float64 {
	value, err := strconv.ParseFloat(rate, 64)
	if err != nil || value < 0.25 || value > 4.0 {
		return 0
	}

	return value
}
