// Package ssml builds the speech markup sent to synthesis backends.
//
// Assemble wraps an utterance between a fixed opening and closing tag pair.
// Its output feeds the cache key, so it must stay byte-for-byte stable for
// identical options.
package ssml

import (
	"strings"

	"golang.org/x/net/html"
)

// Defaults applied to empty options.
const (
	DefaultVoice    = "en-US-JennyNeural"
	DefaultLanguage = "en-US"
	DefaultRate     = "1.0"
)

const (
	speakOpenFormat = `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" ` +
		`xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="`
	voiceOpenFormat   = `<voice name="`
	prosodyOpenFormat = `<prosody rate="`
	prosodyOpenTail   = `" pitch="default">`
	voiceClose        = `</prosody></voice>`
	speakClose        = `</speak>`
)

// Options selects voice, rate and language of the generated markup.
type Options struct {
	PrimaryVoice   string
	SecondaryVoice string
	Language       string
	Rate           string
}

func (o Options) primary() string {
	return valueOr(o.PrimaryVoice, DefaultVoice)
}

func (o Options) secondary() string {
	return valueOr(o.SecondaryVoice, o.primary())
}

// Start returns the opening markup for the primary voice.
func Start(opts Options) string {
	var builder strings.Builder

	writeSpeakOpen(&builder, opts)
	writeVoiceOpen(&builder, opts.primary(), opts)

	return builder.String()
}

// End returns the markup closing what Start opened.
func End() string {
	return voiceClose + speakClose
}

// Assemble wraps text with Start and End. The text is inserted verbatim.
func Assemble(text string, opts Options) string {
	return Start(opts) + text + End()
}

func writeSpeakOpen(builder *strings.Builder, opts Options) {
	builder.WriteString(speakOpenFormat)
	builder.WriteString(html.EscapeString(valueOr(opts.Language, DefaultLanguage)))
	builder.WriteString(`">`)
}

func writeVoiceOpen(builder *strings.Builder, voice string, opts Options) {
	builder.WriteString(voiceOpenFormat)
	builder.WriteString(html.EscapeString(voice))
	builder.WriteString(`">`)
	builder.WriteString(prosodyOpenFormat)
	builder.WriteString(html.EscapeString(valueOr(opts.Rate, DefaultRate)))
	builder.WriteString(prosodyOpenTail)
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
