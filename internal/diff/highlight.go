package diff

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultStyle is the chroma style used by the text renderer and the TUI.
const DefaultStyle = "dracula"

// Token is a highlighted chunk of text with a hex colour, or "" for the
// terminal default.
type Token struct {
	Text  string
	Color string
}

// HighlightedLine is one source line split into coloured tokens.
type HighlightedLine struct {
	Tokens []Token
}

// Plain returns the line without colour.
func (hl HighlightedLine) Plain() string {
	var b strings.Builder
	for _, t := range hl.Tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// Highlighter tokenises source lines with a fixed chroma style.
type Highlighter struct {
	style *chroma.Style
}

// NewHighlighter returns a Highlighter for the named style, falling back
// to chroma's default when the name is unknown.
func NewHighlighter(styleName string) *Highlighter {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return &Highlighter{style: style}
}

// Lines highlights lines as the language inferred from filename. It always
// returns exactly len(lines) entries; unknown languages pass through plain.
func (h *Highlighter) Lines(filename string, lines []string) []HighlightedLine {
	lexer := lexerFor(filename)
	if lexer == nil || len(lines) == 0 {
		return plainLines(lines)
	}

	iter, err := lexer.Tokenise(nil, strings.Join(lines, "\n"))
	if err != nil {
		return plainLines(lines)
	}

	out := make([]HighlightedLine, 0, len(lines))
	cur := HighlightedLine{}
	for _, tok := range iter.Tokens() {
		color := h.color(tok.Type)
		for i, part := range strings.Split(tok.Value, "\n") {
			if i > 0 {
				out = append(out, cur)
				cur = HighlightedLine{}
			}
			if part != "" {
				cur.Tokens = append(cur.Tokens, Token{Text: part, Color: color})
			}
		}
	}
	out = append(out, cur)

	// chroma appends a trailing newline token for some lexers.
	if len(out) > len(lines) {
		out = out[:len(lines)]
	}
	for len(out) < len(lines) {
		out = append(out, HighlightedLine{})
	}
	return out
}

// HighlightLines highlights with DefaultStyle.
func HighlightLines(filename string, lines []string) []HighlightedLine {
	return NewHighlighter(DefaultStyle).Lines(filename, lines)
}

func (h *Highlighter) color(tt chroma.TokenType) string {
	entry := h.style.Get(tt)
	if entry.Colour.IsSet() {
		return entry.Colour.String()
	}
	return ""
}

func plainLines(lines []string) []HighlightedLine {
	out := make([]HighlightedLine, len(lines))
	for i, l := range lines {
		out[i] = HighlightedLine{Tokens: []Token{{Text: l}}}
	}
	return out
}

func lexerFor(filename string) chroma.Lexer {
	lexer := lexers.Match(filepath.Base(filename))
	if lexer == nil {
		if ext := filepath.Ext(filename); ext != "" {
			lexer = lexers.Match("file" + ext)
		}
	}
	if lexer == nil {
		return nil
	}
	return chroma.Coalesce(lexer)
}
