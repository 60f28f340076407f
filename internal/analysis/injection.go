package analysis

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

var (
	sqlTextRe = regexp.MustCompile(`(?i)\bselect\b.*\bfrom\b|\binsert\s+into\b|\bupdate\b.*\bset\b|\bdelete\s+from\b|\bwhere\b`)

	// Calls that execute a query. The first argument may be a context.
	querySinkRe = regexp.MustCompile(`\.(?:Query|QueryRow|QueryContext|QueryRowContext|Exec|ExecContext|Prepare|PrepareContext|Raw|execute|executemany|query|raw)\(`)

	assignTargetRe = regexp.MustCompile(`^\s*(?:var\s+|let\s+|const\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*(?::=|\+=|=)[^=]`)
	sprintfRe      = regexp.MustCompile(`\bfmt\.Sprintf\(`)
	fstringRe      = regexp.MustCompile(`\bf"([^"]*)"`)
	templateLitRe  = regexp.MustCompile("`([^`]*\\$\\{[^`]*)`")
	formatVerbRe   = regexp.MustCompile(`'?%[-+# 0-9.]*[svdqx]'?`)
	interpRe       = regexp.MustCompile(`'?\$?\{([^{}]+)\}'?`)
)

// queryExpr is a dynamically built query found on a line.
type queryExpr struct {
	start, end int      // span of the expression within the line
	text       string   // query with ? placeholders
	args       []string // non-literal operands, in order
}

type injectionScanner struct{}

func (injectionScanner) ID() string                      { return "injection" }
func (injectionScanner) Title() string                   { return "Query built from dynamic input" }
func (injectionScanner) DefaultSeverity() model.Severity { return model.SeverityHigh }

func (s injectionScanner) Evaluate(file *diff.File, hunk *diff.Hunk) []model.Finding {
	var out []model.Finding
	for i, l := range hunk.Lines {
		if l.Kind != diff.LineAdded || isComment(l.Text) {
			continue
		}
		expr, ok := findQueryExpr(l.Text)
		if !ok {
			continue
		}
		if f, ok := s.checkSink(hunk, i, l, expr); ok {
			out = append(out, f)
		}
	}
	return out
}

// checkSink confirms that the built query reaches an execution call,
// either on the same line or through the assigned variable within the
// context window.
func (injectionScanner) checkSink(h *diff.Hunk, idx int, l diff.Line, expr queryExpr) (model.Finding, bool) {
	text := l.Text
	quoted := strconv.Quote(expr.text)
	args := strings.Join(expr.args, ", ")
	const title = "SQL built by string concatenation"
	const desc = "A query is assembled from a non-literal value and executed. Use a parameterized query and pass the values as arguments."

	if loc := querySinkRe.FindStringIndex(text); loc != nil && loc[1] <= expr.start {
		after := text[:expr.start] + quoted + ", " + args + text[expr.end:]
		return finding(l, title, desc, &model.Fix{
			Before: strings.TrimSpace(text),
			After:  strings.TrimSpace(after),
		}, "CWE-89"), true
	}

	m := assignTargetRe.FindStringSubmatch(text)
	if m == nil {
		return model.Finding{}, false
	}
	name := m[1]
	sinkArgRe := regexp.MustCompile(`\(\s*(?:ctx\s*,\s*)?` + regexp.QuoteMeta(name) + `\b`)
	for _, next := range window(h, idx, ContextWindow) {
		loc := querySinkRe.FindStringIndex(next.Text)
		if loc == nil || !sinkArgRe.MatchString(next.Text[loc[1]-1:]) {
			continue
		}
		build := strings.TrimSpace(text[:expr.start] + quoted + text[expr.end:])
		call := strings.TrimSpace(next.Text)
		callAfter := regexp.MustCompile(`\b`+regexp.QuoteMeta(name)+`\s*\)`).ReplaceAllLiteralString(call, name+", "+args+")")
		return finding(l, title, desc, &model.Fix{
			Before: strings.TrimSpace(text) + "\n" + call,
			After:  build + "\n" + callAfter,
		}, "CWE-89"), true
	}
	return model.Finding{}, false
}

// findQueryExpr looks for SQL text combined with a non-literal operand by
// concatenation, Sprintf, f-strings or template literals.
func findQueryExpr(text string) (queryExpr, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '"' && text[i] != '`' {
			continue
		}
		if e, ok := parseConcat(text, i); ok {
			return e, true
		}
		// skip past this literal so its closing quote is not retried
		if _, next, ok := readStringLiteral(text, i); ok {
			i = next - 1
		}
	}
	if loc := sprintfRe.FindStringIndex(text); loc != nil {
		if e, ok := parseSprintf(text, loc[0], loc[1]-1); ok {
			return e, true
		}
	}
	if m := fstringRe.FindStringSubmatchIndex(text); m != nil {
		if e, ok := parseInterpolated(text, m[0], m[1], text[m[2]:m[3]]); ok {
			return e, true
		}
	}
	if m := templateLitRe.FindStringSubmatchIndex(text); m != nil {
		if e, ok := parseInterpolated(text, m[0], m[1], text[m[2]:m[3]]); ok {
			return e, true
		}
	}
	return queryExpr{}, false
}

// parseConcat reads `"lit" + operand + "lit" ...` starting at a quote.
func parseConcat(text string, start int) (queryExpr, bool) {
	var b strings.Builder
	var args []string
	literals := 0
	p := start
	end := start

	for {
		p = skipSpace(text, p)
		if p >= len(text) {
			break
		}
		if lit, next, ok := readStringLiteral(text, p); ok {
			b.WriteString(lit)
			literals++
			p, end = next, next
		} else if op, next := readOperand(text, p); op != "" {
			b.WriteString("?")
			args = append(args, op)
			p, end = next, next
		} else {
			break
		}
		p = skipSpace(text, p)
		if p < len(text) && text[p] == '+' && (p+1 >= len(text) || text[p+1] != '=') {
			p++
			continue
		}
		break
	}

	q := strings.ReplaceAll(b.String(), "'?'", "?")
	if literals == 0 || len(args) == 0 || !sqlTextRe.MatchString(q) {
		return queryExpr{}, false
	}
	return queryExpr{start: start, end: end, text: q, args: args}, true
}

// readOperand reads a non-literal operand up to the next top-level
// `+`, `,`, `)` or `;`.
func readOperand(text string, p int) (string, int) {
	c := text[p]
	if !(c == '_' || c == '(' || c == '$' || c == '&' || c == '*' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return "", p
	}
	depth := 0
	i := p
	for ; i < len(text); i++ {
		switch text[i] {
		case '"', '`':
			if depth == 0 {
				return strings.TrimSpace(text[p:i]), i
			}
			if _, next, ok := readStringLiteral(text, i); ok {
				i = next - 1
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 {
				return strings.TrimSpace(text[p:i]), i
			}
			depth--
		case '+', ',', ';':
			if depth == 0 {
				return strings.TrimSpace(text[p:i]), i
			}
		}
	}
	return strings.TrimSpace(text[p:i]), i
}

func parseSprintf(text string, start, open int) (queryExpr, bool) {
	closeIdx := closingParen(text, open)
	if closeIdx < 0 {
		return queryExpr{}, false
	}
	parts := splitArgs(text[open+1 : closeIdx])
	if len(parts) < 2 {
		return queryExpr{}, false
	}
	format, _, ok := readStringLiteral(parts[0], 0)
	if !ok || !sqlTextRe.MatchString(format) {
		return queryExpr{}, false
	}
	q := formatVerbRe.ReplaceAllString(format, "?")
	return queryExpr{start: start, end: closeIdx + 1, text: q, args: parts[1:]}, true
}

func parseInterpolated(text string, start, end int, body string) (queryExpr, bool) {
	if !sqlTextRe.MatchString(body) {
		return queryExpr{}, false
	}
	var args []string
	q := interpRe.ReplaceAllStringFunc(body, func(m string) string {
		sub := interpRe.FindStringSubmatch(m)
		args = append(args, strings.TrimSpace(sub[1]))
		return "?"
	})
	if len(args) == 0 {
		return queryExpr{}, false
	}
	return queryExpr{start: start, end: end, text: q, args: args}, true
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}
