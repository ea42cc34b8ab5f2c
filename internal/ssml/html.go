package ssml

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrEmptyDocument is returned when an HTML document has no speakable text.
var ErrEmptyDocument = errors.New("document has no speakable text")

type section struct {
	secondary bool
	text      string
}

type sectionBuilder struct {
	sections  []section
	current   strings.Builder
	secondary bool
}

// FromHTML converts an HTML document into a single SSML document. Every
// block element becomes its own voice section; blockquotes are read with
// the secondary voice.
func FromHTML(document string, opts Options) (string, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	builder := &sectionBuilder{}
	builder.walk(root, false)
	builder.flush()

	if len(builder.sections) == 0 {
		return "", ErrEmptyDocument
	}

	var out strings.Builder

	writeSpeakOpen(&out, opts)

	for _, sec := range builder.sections {
		voice := opts.primary()
		if sec.secondary {
			voice = opts.secondary()
		}

		writeVoiceOpen(&out, voice, opts)
		out.WriteString(html.EscapeString(sec.text))
		out.WriteString(voiceClose)
	}

	out.WriteString(speakClose)

	return out.String(), nil
}

// PlainText strips HTML or SSML tags from markup and collapses whitespace.
func PlainText(markup string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))

	var (
		builder strings.Builder
		skip    int
	)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapse(builder.String())
		case html.TextToken:
			if skip == 0 {
				builder.Write(tokenizer.Text())
			}
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isSkipped(atom.Lookup(name)) {
				skip++
			}

			builder.WriteByte(' ')
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isSkipped(atom.Lookup(name)) && skip > 0 {
				skip--
			}

			builder.WriteByte(' ')
		case html.SelfClosingTagToken, html.CommentToken, html.DoctypeToken:
			builder.WriteByte(' ')
		}
	}
}

func (b *sectionBuilder) walk(node *html.Node, inQuote bool) {
	switch node.Type {
	case html.TextNode:
		b.write(node.Data, inQuote)

		return
	case html.ElementNode:
		if isSkipped(node.DataAtom) {
			return
		}
	default:
	}

	block := node.Type == html.ElementNode && isBlock(node.DataAtom)
	if block {
		b.flush()
	}

	childQuote := inQuote || node.DataAtom == atom.Blockquote

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		b.walk(child, childQuote)
	}

	if block {
		b.flush()
	}
}

func (b *sectionBuilder) write(text string, inQuote bool) {
	if inQuote != b.secondary && b.current.Len() > 0 {
		b.flush()
	}

	b.secondary = inQuote
	b.current.WriteString(text)
}

func (b *sectionBuilder) flush() {
	text := collapse(b.current.String())
	b.current.Reset()

	if text == "" {
		return
	}

	b.sections = append(b.sections, section{secondary: b.secondary, text: text})
}

func isSkipped(tag atom.Atom) bool {
	switch tag {
	case atom.Script, atom.Style, atom.Head, atom.Noscript, atom.Template:
		return true
	default:
		return false
	}
}

func isBlock(tag atom.Atom) bool {
	switch tag {
	case atom.P, atom.Div, atom.Li, atom.Blockquote, atom.Section, atom.Article,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Pre, atom.Br:
		return true
	default:
		return false
	}
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
