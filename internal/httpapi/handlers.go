package httpapi

import (
	"errors"
	"net/http"

	"github.com/book-expert/speech-service/internal/core"
	"github.com/gin-gonic/gin"
)

// documentInput is the body of a document request.
type documentInput struct {
	ID                 string `json:"id"`
	Text               string `json:"text"`
	Voice              string `json:"voice"`
	Language           string `json:"language"`
	Rate               string `json:"rate"`
	ComplimentaryVoice string `json:"complimentaryVoice"`
	Bucket             string `json:"bucket"`
}

// utteranceInput is the body of a streaming request.
type utteranceInput struct {
	Text                  string `json:"text"`
	Idx                   string `json:"idx"`
	IsUltraRealisticVoice bool   `json:"isUltraRealisticVoice"`
	Voice                 string `json:"voice"`
	Rate                  string `json:"rate"`
	Language              string `json:"language"`
}

// utteranceOutput is the body of a successful streaming response.
type utteranceOutput struct {
	Idx         string            `json:"idx"`
	AudioData   string            `json:"audioData"`
	SpeechMarks []core.SpeechMark `json:"speechMarks"`
}

func (s *Server) handleDocument(c *gin.Context) {
	token := c.GetString(tokenQueryParam)

	_, err := s.opts.Verifier.Verify(token)
	if err != nil {
		s.log.Warn("Document request rejected: %v", err)
		c.String(http.StatusOK, codeUnauthenticated)

		return
	}

	var input documentInput

	err = c.ShouldBindJSON(&input)
	if err != nil || input.ID == "" || input.Bucket == "" {
		c.String(http.StatusOK, codeInvalidInput)

		return
	}

	if s.opts.StatusReporter == nil {
		s.log.Error("Document %s rejected: no status endpoint configured", input.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"errorCodes": codeSynthesizerError})

		return
	}

	job := core.DocumentJob{
		ID:    input.ID,
		Token: token,
		Request: core.SynthesisRequest{
			Text:             input.Text,
			VoiceID:          input.Voice,
			SecondaryVoiceID: input.ComplimentaryVoice,
			Rate:             input.Rate,
			Language:         input.Language,
			IsHighFidelity:   false,
			InputKind:        core.InputHTML,
			Key:              input.ID,
		},
	}

	err = s.opts.Synthesizer.SynthesizeDocument(c.Request.Context(), job, s.opts.StatusReporter)
	if errors.Is(err, core.ErrStatusNotAcknowledged) {
		c.JSON(http.StatusInternalServerError, gin.H{"errorCodes": codeDatabaseError})

		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"errorCodes": codeSynthesizerError})

		return
	}

	c.String(http.StatusOK, codeDocumentAccepted)
}

func (s *Server) handleUtterance(c *gin.Context) {
	claims, err := s.opts.Verifier.VerifyIgnoringExpiry(c.GetString(tokenQueryParam))
	if err != nil {
		s.log.Warn("Streaming request rejected: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"errorCode": codeUnauthenticated})

		return
	}

	var input utteranceInput

	err = c.ShouldBindJSON(&input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errorCodes": codeInvalidInput})

		return
	}

	if input.Text == "" {
		c.JSON(http.StatusOK, utteranceOutput{Idx: input.Idx, AudioData: "", SpeechMarks: []core.SpeechMark{}})

		return
	}

	if input.IsUltraRealisticVoice && !claims.HasUltraRealisticVoice() {
		c.String(http.StatusForbidden, codeUnauthorized)

		return
	}

	req := core.SynthesisRequest{
		Text:             input.Text,
		VoiceID:          input.Voice,
		SecondaryVoiceID: input.Voice,
		Rate:             input.Rate,
		Language:         input.Language,
		IsHighFidelity:   input.IsUltraRealisticVoice,
		InputKind:        core.InputSSML,
		Key:              "",
	}

	entry, err := s.opts.Synthesizer.SynthesizeUtterance(c.Request.Context(), req, claims.UID)
	if errors.Is(err, core.ErrRateLimited) {
		c.String(http.StatusTooManyRequests, codeRateLimited)

		return
	}

	if err != nil {
		s.log.Error("Utterance %s failed: %v", input.Idx, err)

		status, code := synthesisFailure(err)
		c.JSON(status, gin.H{"errorCodes": code})

		return
	}

	c.JSON(http.StatusOK, utteranceOutput{Idx: input.Idx, AudioData: entry.AudioHex, SpeechMarks: entry.SpeechMarks})
}
