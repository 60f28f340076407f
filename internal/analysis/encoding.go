package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

var (
	textTemplateImportRe = regexp.MustCompile(`"text/template"`)
	templateHTMLRe       = regexp.MustCompile(`\btemplate\.HTML\(`)

	// Expressions whose value comes straight from the HTTP request.
	requestSourceRe = regexp.MustCompile(`\b[A-Za-z_]\w*\.(?:FormValue|PostFormValue|PathValue)\("[^"]*"\)|\b[A-Za-z_]\w*\.URL\.Query\(\)(?:\.Get\("[^"]*"\))?|\b[A-Za-z_]\w*\.URL\.RawQuery\b|\b[A-Za-z_]\w*\.(?:Form|PostForm|Header)\.Get\("[^"]*"\)`)

	responseSinkRe  = regexp.MustCompile(`\bfmt\.Fprint(?:f|ln)?\(\s*(?:w|rw|resp|writer)\s*,|\b(?:w|rw|resp|writer)\.Write(?:String)?\(|\bio\.WriteString\(\s*(?:w|rw|resp|writer)\s*,`)
	escapedRe       = regexp.MustCompile(`\bhtml\.EscapeString\(|\btemplate\.HTMLEscape(?:String|er)?\(|\burl\.QueryEscape\(|\bhtml\.escape\(`)
	taintAssignRe   = regexp.MustCompile(`^\s*(?:var\s+)?([A-Za-z_]\w*)(?:\s*,\s*[A-Za-z_]\w*)?\s*:?=\s*(.+)$`)
	htmlConcatRe    = regexp.MustCompile(`"[^"]*<[A-Za-z/][^"]*"\s*\+\s*[A-Za-z_]|[A-Za-z_)\]]\s*\+\s*"[^"]*<[A-Za-z/]`)
	concatOperandRe = regexp.MustCompile(`\+\s*([A-Za-z_][\w.]*)\b`)
)

type encodingScanner struct{}

func (encodingScanner) ID() string                      { return "output-encoding" }
func (encodingScanner) Title() string                   { return "Unescaped output" }
func (encodingScanner) DefaultSeverity() model.Severity { return model.SeverityHigh }

func (s encodingScanner) Evaluate(file *diff.File, hunk *diff.Hunk) []model.Finding {
	var out []model.Finding
	for i, l := range hunk.Lines {
		if l.Kind != diff.LineAdded || isComment(l.Text) {
			continue
		}
		if f, ok := s.evaluateLine(hunk, i, l); ok {
			out = append(out, f)
		}
	}
	return out
}

func (encodingScanner) evaluateLine(h *diff.Hunk, idx int, l diff.Line) (model.Finding, bool) {
	text := l.Text
	trimmed := strings.TrimSpace(text)

	if textTemplateImportRe.MatchString(text) {
		return finding(l,
			"Non-escaping template package",
			"text/template does not escape its output. Rendering HTML with it allows cross-site scripting; use html/template.",
			&model.Fix{Before: trimmed, After: strings.Replace(trimmed, `"text/template"`, `"html/template"`, 1)},
			"CWE-79",
		), true
	}

	tainted := taintedIdents(h, idx)

	if loc := templateHTMLRe.FindStringIndex(text); loc != nil {
		closeIdx := closingParen(text, loc[1]-1)
		if closeIdx > 0 {
			inner := text[loc[1]:closeIdx]
			if requestSourceRe.MatchString(inner) || mentionsAny(inner, tainted) {
				after := strings.TrimSpace(text[:loc[0]] + inner + text[closeIdx+1:])
				return finding(l,
					"Request data marked as safe HTML",
					"template.HTML disables escaping for request-derived data. Pass the plain string and let html/template escape it.",
					&model.Fix{Before: trimmed, After: after},
					"CWE-79",
				), true
			}
		}
	}

	if !responseSinkRe.MatchString(text) || escapedRe.MatchString(text) {
		return model.Finding{}, false
	}
	direct := requestSourceRe.MatchString(text)
	viaVar := mentionsAny(text, tainted)
	htmlConcat := htmlConcatRe.MatchString(text)
	if !direct && !viaVar && !htmlConcat {
		return model.Finding{}, false
	}
	return finding(l,
		"Unescaped request data written to response",
		"Request-derived input is written to the response without HTML escaping, which allows cross-site scripting.",
		&model.Fix{Before: trimmed, After: escapeOperands(trimmed, tainted, htmlConcat)},
		"CWE-79",
	), true
}

// taintedIdents collects identifiers assigned from request sources on the
// lines of the hunk before idx.
func taintedIdents(h *diff.Hunk, idx int) []string {
	seen := make(map[string]bool)
	for _, l := range preceding(h, idx) {
		m := taintAssignRe.FindStringSubmatch(l.Text)
		if m == nil {
			continue
		}
		if requestSourceRe.MatchString(m[2]) && !escapedRe.MatchString(m[2]) {
			seen[m[1]] = true
		} else {
			delete(seen, m[1])
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// mentionsAny reports whether any ident is used as code in s.
func mentionsAny(s string, idents []string) bool {
	var code strings.Builder
	replaceOutsideLiterals(s, func(seg string) string {
		code.WriteString(seg)
		code.WriteByte(' ')
		return seg
	})
	for _, id := range idents {
		if containsWord(code.String(), id) {
			return true
		}
	}
	return false
}

// escapeOperands wraps request sources, tainted identifiers and, for HTML
// concatenation, the concatenated operands in html.EscapeString. Text
// inside string literals is never rewritten.
func escapeOperands(line string, tainted []string, htmlConcat bool) string {
	wrap := func(s string) string { return "html.EscapeString(" + s + ")" }

	out := requestSourceRe.ReplaceAllStringFunc(line, wrap)
	for _, id := range tainted {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(id) + `\b`)
		out = replaceOutsideLiterals(out, func(code string) string {
			return re.ReplaceAllStringFunc(code, wrap)
		})
	}
	if htmlConcat && len(tainted) == 0 && out == line {
		out = replaceOutsideLiterals(line, func(code string) string {
			return concatOperandRe.ReplaceAllStringFunc(code, func(m string) string {
				sub := concatOperandRe.FindStringSubmatch(m)
				return "+ " + wrap(sub[1])
			})
		})
	}
	return out
}

// replaceOutsideLiterals applies fn to the code between string literals
// and copies the literals unchanged. An unterminated quote ends the walk
// and the rest of the line is treated as a literal.
func replaceOutsideLiterals(line string, fn func(string) string) string {
	var b strings.Builder
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] != '"' && line[i] != '`' {
			continue
		}
		b.WriteString(fn(line[start:i]))
		_, next, ok := readStringLiteral(line, i)
		if !ok {
			b.WriteString(line[i:])
			return b.String()
		}
		b.WriteString(line[i:next])
		start = next
		i = next - 1
	}
	b.WriteString(fn(line[start:]))
	return b.String()
}
