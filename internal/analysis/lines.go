package analysis

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// isComment reports whether a line holds only a comment.
func isComment(text string) bool {
	t := strings.TrimSpace(text)
	for _, p := range []string{"//", "#", "/*", "*", "--"} {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

// window returns up to n added or context lines following index idx in the
// hunk. Removed lines are skipped since they are not part of the new file.
func window(h *diff.Hunk, idx, n int) []diff.Line {
	var out []diff.Line
	for i := idx + 1; i < len(h.Lines) && len(out) < n; i++ {
		if h.Lines[i].Kind == diff.LineRemoved {
			continue
		}
		out = append(out, h.Lines[i])
	}
	return out
}

// preceding returns the added or context lines before index idx.
func preceding(h *diff.Hunk, idx int) []diff.Line {
	var out []diff.Line
	for i := 0; i < idx && i < len(h.Lines); i++ {
		if h.Lines[i].Kind != diff.LineRemoved {
			out = append(out, h.Lines[i])
		}
	}
	return out
}

// lang returns a coarse language tag from the file extension.
func lang(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		return "js"
	case ".rs":
		return "rust"
	case ".rb":
		return "ruby"
	case ".java", ".kt":
		return "java"
	default:
		return ""
	}
}

func indentOf(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

func finding(line diff.Line, title, desc string, fix *model.Fix, refs ...string) model.Finding {
	return model.Finding{
		Title:       title,
		Line:        line.NewNum,
		Description: desc,
		Fix:         fix,
		References:  refs,
	}
}

// readStringLiteral reads a double-quoted or backtick literal starting at
// s[i] and returns its contents and the index just past the closing quote.
func readStringLiteral(s string, i int) (string, int, bool) {
	if i >= len(s) {
		return "", i, false
	}
	q := s[i]
	if q != '"' && q != '`' {
		return "", i, false
	}
	var b strings.Builder
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		if q == '"' && c == '\\' && j+1 < len(s) {
			b.WriteByte(c)
			b.WriteByte(s[j+1])
			j++
			continue
		}
		if c == q {
			return b.String(), j + 1, true
		}
		b.WriteByte(c)
	}
	return "", i, false
}

// closingParen returns the index of the parenthesis closing the one at
// s[open], or -1. Quoted sections are skipped.
func closingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '"', '`':
			_, next, ok := readStringLiteral(s, i)
			if !ok {
				return -1
			}
			i = next - 1
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitArgs splits a call's argument list on top-level commas.
func splitArgs(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '`':
			if _, next, ok := readStringLiteral(s, i); ok {
				i = next - 1
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

var wordRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// containsWord reports whether ident appears in s as a whole identifier.
func containsWord(s, ident string) bool {
	for _, loc := range wordRe.FindAllStringIndex(s, -1) {
		if s[loc[0]:loc[1]] == ident {
			return true
		}
	}
	return false
}
