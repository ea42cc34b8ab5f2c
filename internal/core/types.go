package core

// InputKind tells a backend how to interpret SynthesisRequest.Text.
type InputKind string

// Supported input kinds.
const (
	InputHTML InputKind = "html"
	InputSSML InputKind = "ssml"
)

// Content types of the stored artifacts.
const (
	ContentTypeMP3  = "audio/mpeg"
	ContentTypeJSON = "application/json"
)

// SynthesisRequest is a single request for speech. It is passed by value and
// never modified once built.
type SynthesisRequest struct {
	Text             string    `json:"text"`
	VoiceID          string    `json:"voice,omitempty"`
	SecondaryVoiceID string    `json:"secondaryVoice,omitempty"`
	Rate             string    `json:"rate,omitempty"`
	Language         string    `json:"language,omitempty"`
	IsHighFidelity   bool      `json:"isHighFidelity,omitempty"`
	InputKind        InputKind `json:"inputKind"`
	// Key is the cache key or job id the artifacts are stored under.
	Key string `json:"key,omitempty"`
}

// SpeechMark aligns a unit of synthesized audio with the source text.
type SpeechMark struct {
	Type  string `json:"type"`
	Time  int64  `json:"time"`
	Value string `json:"value"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// SynthesisResult is the complete output of one synthesis call.
type SynthesisResult struct {
	Audio       []byte
	SpeechMarks []SpeechMark
}

// CacheEntry is the value held in the ephemeral store for a cache key.
type CacheEntry struct {
	AudioHex    string       `json:"audioDataString"`
	SpeechMarks []SpeechMark `json:"speechMarks"`
}

// EmptyEntry is returned when there is nothing to synthesize.
func EmptyEntry() *CacheEntry {
	return &CacheEntry{AudioHex: "", SpeechMarks: []SpeechMark{}}
}

// JobState is the terminal state of a document job.
type JobState string

// Document job states.
const (
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
)

// StatusReport describes the outcome of a document job.
type StatusReport struct {
	JobID          string
	Token          string
	State          JobState
	AudioKey       string
	SpeechMarksKey string
}

// DocumentJob is a whole-document synthesis request.
type DocumentJob struct {
	ID      string
	Token   string
	Request SynthesisRequest
}
