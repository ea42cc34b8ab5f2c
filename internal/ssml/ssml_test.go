package ssml_test

import (
	"strings"
	"testing"

	"github.com/book-expert/speech-service/internal/ssml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemble_Defaults(t *testing.T) {
	t.Parallel()

	got := ssml.Assemble("Hello there.", ssml.Options{})

	want := `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" ` +
		`xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="en-US">` +
		`<voice name="en-US-JennyNeural"><prosody rate="1.0" pitch="default">` +
		`Hello there.</prosody></voice></speak>`
	assert.Equal(t, want, got)
}

func TestAssemble_UsesOptions(t *testing.T) {
	t.Parallel()

	got := ssml.Assemble("Hola", ssml.Options{
		PrimaryVoice:   "es-ES-ElviraNeural",
		SecondaryVoice: "",
		Language:       "es-ES",
		Rate:           "1.5",
	})

	assert.Contains(t, got, `xml:lang="es-ES"`)
	assert.Contains(t, got, `<voice name="es-ES-ElviraNeural">`)
	assert.Contains(t, got, `<prosody rate="1.5" pitch="default">Hola</prosody>`)
	assert.True(t, strings.HasSuffix(got, ssml.End()))
}

func TestAssemble_Deterministic(t *testing.T) {
	t.Parallel()

	opts := ssml.Options{PrimaryVoice: "v", SecondaryVoice: "", Language: "en-GB", Rate: "0.9"}

	assert.Equal(t, ssml.Assemble("same", opts), ssml.Assemble("same", opts))
	assert.NotEqual(t, ssml.Assemble("same", opts), ssml.Assemble("same", ssml.Options{}))
}

func TestAssemble_EscapesAttributes(t *testing.T) {
	t.Parallel()

	got := ssml.Start(ssml.Options{PrimaryVoice: `a"b`, SecondaryVoice: "", Language: "", Rate: ""})

	assert.Contains(t, got, `<voice name="a&#34;b">`)
}

func TestFromHTML_SplitsBlocksAndQuotes(t *testing.T) {
	t.Parallel()

	doc := `<html><head><title>skip me</title></head><body>
<h1>Title</h1>
<p>First   paragraph &amp; more.</p>
<blockquote><p>Quoted words.</p></blockquote>
<script>var x = 1;</script>
</body></html>`

	got, err := ssml.FromHTML(doc, ssml.Options{
		PrimaryVoice:   "primary",
		SecondaryVoice: "secondary",
		Language:       "",
		Rate:           "",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(got, "<speak "))
	assert.Equal(t, 3, strings.Count(got, "<voice "))
	assert.Contains(t, got, `<voice name="primary"><prosody rate="1.0" pitch="default">Title</prosody></voice>`)
	assert.Contains(t, got, `First paragraph &amp; more.`)
	assert.Contains(t, got, `<voice name="secondary"><prosody rate="1.0" pitch="default">Quoted words.</prosody></voice>`)
	assert.NotContains(t, got, "skip me")
	assert.NotContains(t, got, "var x")
}

func TestFromHTML_EmptyDocument(t *testing.T) {
	t.Parallel()

	_, err := ssml.FromHTML("<html><body>   </body></html>", ssml.Options{})
	require.ErrorIs(t, err, ssml.ErrEmptyDocument)
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "ssml", input: ssml.Assemble("Hello   world", ssml.Options{}), want: "Hello world"},
		{name: "html entities", input: "<p>Fish &amp; chips</p><p>next</p>", want: "Fish & chips next"},
		{name: "script skipped", input: "<p>a</p><script>alert(1)</script><p>b</p>", want: "a b"},
		{name: "plain", input: "just text", want: "just text"},
		{name: "empty", input: "", want: ""},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, ssml.PlainText(testCase.input))
		})
	}
}
