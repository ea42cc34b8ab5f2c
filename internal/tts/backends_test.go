package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/ssml"
	"github.com/book-expert/speech-service/internal/storetest"
	"github.com/book-expert/speech-service/internal/tts"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wujunwei928/edge-tts-go/edge_tts"
)

const testAudio = "ID3-fake-mp3"

func utterance(voice, text string) core.SynthesisRequest {
	return core.SynthesisRequest{
		Text:             ssml.Assemble(text, ssml.Options{PrimaryVoice: voice, SecondaryVoice: "", Language: "en-US", Rate: "1.0"}),
		VoiceID:          voice,
		SecondaryVoiceID: "",
		Rate:             "1.0",
		Language:         "en-US",
		IsHighFidelity:   false,
		InputKind:        core.InputSSML,
		Key:              "test-key",
	}
}

func TestOpenAIBackend_Synthesize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tts-1", body["model"])
		assert.Equal(t, "alloy", body["voice"])
		assert.Equal(t, "Hello there.", body["input"])
		assert.Equal(t, "mp3", body["response_format"])

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, testAudio)
	}))
	t.Cleanup(server.Close)

	backend := tts.NewOpenAIBackend(tts.OpenAIOptions{APIKey: "sk-test", BaseURL: server.URL + "/v1", Model: ""}, newTestLogger(t))

	assert.Equal(t, "openai", backend.Name())
	assert.True(t, backend.Supports(utterance("openai-alloy", "x")))
	assert.False(t, backend.Supports(utterance("en-US-JennyNeural", "x")))

	result, err := backend.Synthesize(context.Background(), utterance("openai-alloy", "Hello there."))
	require.NoError(t, err)
	assert.Equal(t, []byte(testAudio), result.Audio)
	assert.Empty(t, result.SpeechMarks)

	var sink strings.Builder

	_, err = backend.SynthesizeTo(context.Background(), utterance("openai-alloy", "Hello there."), &sink)
	require.NoError(t, err)
	assert.Equal(t, testAudio, sink.String())
}

func TestOpenAIBackend_UpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(server.Close)

	backend := tts.NewOpenAIBackend(tts.OpenAIOptions{APIKey: "bad", BaseURL: server.URL + "/v1", Model: ""}, newTestLogger(t))

	_, err := backend.Synthesize(context.Background(), utterance("openai-alloy", "Hello"))
	require.Error(t, err)

	_, err = backend.Synthesize(context.Background(), utterance("openai-alloy", ""))
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

type fakeGoogle struct {
	mu       sync.Mutex
	requests []*texttospeechpb.SynthesizeSpeechRequest
	err      error
}

func (f *fakeGoogle) SynthesizeSpeech(
	_ context.Context,
	req *texttospeechpb.SynthesizeSpeechRequest,
	_ ...gax.CallOption,
) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}

	return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: []byte(testAudio)}, nil
}

func TestGoogleBackend_Synthesize(t *testing.T) {
	t.Parallel()

	fake := &fakeGoogle{}
	backend := tts.NewGoogleBackend(fake, newTestLogger(t))

	assert.True(t, backend.Supports(utterance("google-en-US-Neural2-C", "x")))
	assert.False(t, backend.Supports(utterance("openai-alloy", "x")))

	req := utterance("google-en-US-Neural2-C", "Fish & chips")
	req.Rate = "1.25"

	result, err := backend.Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte(testAudio), result.Audio)

	require.Len(t, fake.requests, 1)
	sent := fake.requests[0]
	assert.Equal(t, "<speak>Fish &amp; chips</speak>", sent.GetInput().GetSsml())
	assert.Equal(t, "en-US-Neural2-C", sent.GetVoice().GetName())
	assert.Equal(t, "en-US", sent.GetVoice().GetLanguageCode())
	assert.Equal(t, texttospeechpb.AudioEncoding_MP3, sent.GetAudioConfig().GetAudioEncoding())
	assert.InDelta(t, 1.25, sent.GetAudioConfig().GetSpeakingRate(), 0.0001)
}

func TestGoogleBackend_Error(t *testing.T) {
	t.Parallel()

	cause := errors.New("permission denied")
	backend := tts.NewGoogleBackend(&fakeGoogle{err: cause}, newTestLogger(t))

	_, err := backend.Synthesize(context.Background(), utterance("google-x", "hi"))
	require.ErrorIs(t, err, cause)
}

func TestEdgeBackend_Synthesize(t *testing.T) {
	t.Parallel()

	var gotVoice, gotText, gotRate string

	backend := tts.NewEdgeBackend(func(text, voice, rate string) ([]byte, error) {
		gotVoice, gotText, gotRate = voice, text, rate

		return []byte(testAudio), nil
	}, "", newTestLogger(t))

	assert.True(t, backend.Supports(utterance("en-US-GuyNeural", "x")))

	highFidelity := utterance("en-US-GuyNeural", "x")
	highFidelity.IsHighFidelity = true
	assert.False(t, backend.Supports(highFidelity))

	result, err := backend.Synthesize(context.Background(), utterance("en-US-GuyNeural", "Good   morning"))
	require.NoError(t, err)
	assert.Equal(t, []byte(testAudio), result.Audio)
	assert.Equal(t, "en-US-GuyNeural", gotVoice)
	assert.Equal(t, "Good morning", gotText)
	assert.Equal(t, "+0%", gotRate)

	req := utterance("", "Default voice")
	req.VoiceID = ""
	req.Rate = "1.5"

	_, err = backend.Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ssml.DefaultVoice, gotVoice)
	assert.Equal(t, "+50%", gotRate)
}

func TestEdgeRate(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":      "+0%",
		"1.0":   "+0%",
		"1.25":  "+25%",
		"0.8":   "-20%",
		"0.1":   "-50%",
		"3":     "+100%",
		"1.5x":  "+50%",
		"+10%":  "+10%",
		"-15%":  "-15%",
		"fast":  "+0%",
		"-1":    "+0%",
		"+-5%":  "+0%",
		" 1.1 ": "+10%",
	}

	for input, want := range cases {
		assert.Equal(t, want, tts.EdgeRate(input), "rate %q", input)
	}
}

func TestEdgeOptions_BuildCommunicator(t *testing.T) {
	t.Parallel()

	for _, rate := range []string{"", "1.0", "0.75", "2.5", "+20%", "garbage"} {
		communicate, err := edge_tts.NewCommunicate("hello", tts.EdgeOptions("en-US-JennyNeural", rate)...)
		require.NoError(t, err, "rate %q", rate)
		assert.NotNil(t, communicate)
	}
}

func TestEdgeBackend_ContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	backend := tts.NewEdgeBackend(func(string, string, string) ([]byte, error) {
		<-release

		return nil, nil
	}, "", newTestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := backend.Synthesize(ctx, utterance("v", "hello"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRealisticBackend_Synthesize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/v1/generate/speech":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

			var req tts.RealisticRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "Doctor Who has two hearts.", req.Text)
			assert.Equal(t, "en", req.Language)
			assert.InDelta(t, 0.75, req.Temperature, 0.0001)
			assert.Equal(t, "narrator", req.Voice)

			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = io.WriteString(w, testAudio)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	backend := tts.NewRealisticBackend(tts.RealisticOptions{
		BaseURL:        server.URL + "/",
		Timeout:        5 * time.Second,
		Temperature:    0,
		SpeakerRefPath: "",
	}, newTestLogger(t))

	req := utterance("narrator", "Dr. Who has 2 hearts")
	req.IsHighFidelity = true

	assert.True(t, backend.Supports(req))
	assert.False(t, backend.Supports(utterance("narrator", "x")))

	result, err := backend.Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte(testAudio), result.Audio)

	require.NoError(t, backend.Health(context.Background()))
}

func TestRealisticBackend_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "structured error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"detail":"Invalid speaker reference path","error_code":"INVALID_SPEAKER_PATH"}`)
			},
			want: "INVALID_SPEAKER_PATH",
		},
		{
			name: "raw error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, "upstream down")
			},
			want: "upstream down",
		},
		{
			name: "wrong content type",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "audio/wav")
				_, _ = io.WriteString(w, "RIFF")
			},
			want: "unexpected content type",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(testCase.handler)
			t.Cleanup(server.Close)

			backend := tts.NewRealisticBackend(tts.RealisticOptions{
				BaseURL:        server.URL,
				Timeout:        time.Second,
				Temperature:    0.5,
				SpeakerRefPath: "",
			}, newTestLogger(t))

			req := utterance("v", "hello")
			req.IsHighFidelity = true

			_, err := backend.Synthesize(context.Background(), req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.want)
		})
	}
}

type fakeAligner struct {
	marks     []core.SpeechMark
	err       error
	reference string
	language  string
}

func (f *fakeAligner) Align(_ context.Context, _ []byte, reference, language string) ([]core.SpeechMark, error) {
	f.reference, f.language = reference, language

	return f.marks, f.err
}

func TestMarkingBackend(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	mark := core.SpeechMark{Type: "word", Time: 0, Value: "Hello", Start: 0, End: 5}

	inner := storetest.NewBackend("openai", storetest.Always, &core.SynthesisResult{Audio: []byte("a"), SpeechMarks: nil}, nil)
	aligner := &fakeAligner{marks: []core.SpeechMark{mark}}

	backend := tts.WithSpeechMarks(inner, aligner, log)
	assert.Equal(t, "openai", backend.Name())

	result, err := backend.Synthesize(context.Background(), utterance("openai-alloy", "Hello world"))
	require.NoError(t, err)
	assert.Equal(t, []core.SpeechMark{mark}, result.SpeechMarks)
	assert.Equal(t, "Hello world", aligner.reference)
	assert.Equal(t, "en", aligner.language)

	failing := tts.WithSpeechMarks(inner, &fakeAligner{err: errors.New("whisper down")}, log)

	result, err = failing.Synthesize(context.Background(), utterance("openai-alloy", "Hello"))
	require.NoError(t, err, "alignment failure never fails synthesis")
	assert.Equal(t, []byte("a"), result.Audio)
	assert.Empty(t, result.SpeechMarks)

	assert.Same(t, inner, tts.WithSpeechMarks(inner, nil, log))
}

func TestRegistry_Health(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	log := newTestLogger(t)
	realistic := tts.NewRealisticBackend(tts.RealisticOptions{BaseURL: server.URL, Timeout: time.Second, Temperature: 0, SpeakerRefPath: ""}, log)
	registry := tts.NewRegistry(log, nil, tts.NewEdgeBackend(nil, "", log), tts.WithSpeechMarks(realistic, &fakeAligner{}, log))

	err := registry.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "realistic")
}
