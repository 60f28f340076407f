package conventions

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Pattern categories.
const (
	CategoryLogging       = "logging"
	CategoryErrorReturn   = "error-return"
	CategoryErrorHandling = "error-handling"
	CategoryContextParam  = "context-param"
)

// Idioms per category.
const (
	IdiomStructured   = "structured"
	IdiomUnstructured = "unstructured"
	IdiomReturnsError = "returns-error"
	IdiomNoError      = "no-error"
	IdiomPropagate    = "propagate"
	IdiomAbort        = "abort"
	IdiomContextFirst = "context-first"
	IdiomNoContext    = "no-context"
)

const maxExampleText = 120

// Occurrence is one idiom observed on a line.
type Occurrence struct {
	Category string `json:"category"`
	Idiom    string `json:"idiom"`
	Line     int    `json:"line"`
	Text     string `json:"text"`
}

var (
	goFuncRe    = regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)\s*(?:\[[^\]]*\])?\(([^)]*)\)\s*(.*?)\s*\{?\s*$`)
	rustFnRe    = regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+([A-Za-z_]\w*)\s*(?:<[^>]*>)?\(([^)]*)\)\s*(?:->\s*(.*?))?\s*(?:where\b.*)?\{?\s*$`)
	errorWordRe = regexp.MustCompile(`\berror\b|\bResult<`)

	structuredLogRes = []*regexp.Regexp{
		regexp.MustCompile(`\bslog\.(?:Debug|Info|Warn|Error|Log)(?:Context)?\(`),
		regexp.MustCompile(`\b(?:logger|log|l)\.(?:Debug|Info|Warn|Error)(?:Context)?\(\s*"[^"]*"\s*,`),
		regexp.MustCompile(`\bzap\.(?:String|Int|Error|Any)\(`),
		regexp.MustCompile(`\.With(?:Field|Fields)?\(`),
		regexp.MustCompile(`\b(?:tracing|log)::(?:debug|info|warn|error)!\(`),
		regexp.MustCompile(`\blogging\.getLogger\(|\blogger\.(?:debug|info|warning|error)\(`),
	}
	unstructuredLogRes = []*regexp.Regexp{
		regexp.MustCompile(`\bfmt\.(?:Print|Println|Printf)\(`),
		regexp.MustCompile(`\blog\.(?:Print|Println|Printf)\(`),
		regexp.MustCompile(`^\s*print(?:ln)?!?\(`),
		regexp.MustCompile(`\bconsole\.(?:log|error|warn)\(`),
		regexp.MustCompile(`\bSystem\.out\.print`),
	}
	abortRes = []*regexp.Regexp{
		regexp.MustCompile(`\bpanic!?\(`),
		regexp.MustCompile(`\blog\.Fatal(?:f|ln)?\(`),
		regexp.MustCompile(`\bos\.Exit\(`),
		regexp.MustCompile(`\.unwrap\(\)`),
		regexp.MustCompile(`\.expect\(`),
	}
	propagateRes = []*regexp.Regexp{
		regexp.MustCompile(`^\s*return\b.*\berr\b`),
		regexp.MustCompile(`\bfmt\.Errorf\(`),
		regexp.MustCompile(`\berrors\.(?:New|Join)\(`),
		regexp.MustCompile(`\breturn\s+Err\(`),
		regexp.MustCompile(`\)\?;?\s*$`),
	}
)

// language returns a coarse language tag for path, or "" when no idiom
// patterns apply to it.
func language(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".py":
		return "python"
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		return "js"
	case ".java", ".kt":
		return "java"
	default:
		return ""
	}
}

// Extract returns the idiom occurrences in a file's content, in line order.
func Extract(path string, content []byte) []Occurrence {
	lang := language(path)
	if lang == "" {
		return nil
	}
	var out []Occurrence
	for i, line := range strings.Split(string(content), "\n") {
		out = append(out, classifyLine(lang, strings.TrimRight(line, "\r"), i+1)...)
	}
	return out
}

// ClassifyLine returns the occurrences on a single line of path.
func ClassifyLine(path, text string, line int) []Occurrence {
	lang := language(path)
	if lang == "" {
		return nil
	}
	return classifyLine(lang, text, line)
}

func classifyLine(lang, text string, line int) []Occurrence {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || isComment(trimmed) {
		return nil
	}
	var out []Occurrence
	add := func(category, idiom string) {
		out = append(out, Occurrence{Category: category, Idiom: idiom, Line: line, Text: clip(trimmed)})
	}

	switch lang {
	case "go":
		if m := goFuncRe.FindStringSubmatch(text); m != nil && countedFunc(m[1]) {
			if errorWordRe.MatchString(m[3]) {
				add(CategoryErrorReturn, IdiomReturnsError)
			} else {
				add(CategoryErrorReturn, IdiomNoError)
			}
			if params := strings.TrimSpace(m[2]); params != "" {
				if strings.Contains(firstParam(params), "context.Context") {
					add(CategoryContextParam, IdiomContextFirst)
				} else {
					add(CategoryContextParam, IdiomNoContext)
				}
			}
			return out
		}
	case "rust":
		if m := rustFnRe.FindStringSubmatch(text); m != nil && countedFunc(m[1]) {
			if errorWordRe.MatchString(m[3]) {
				add(CategoryErrorReturn, IdiomReturnsError)
			} else {
				add(CategoryErrorReturn, IdiomNoError)
			}
			return out
		}
	}

	switch {
	case matchAny(structuredLogRes, text):
		add(CategoryLogging, IdiomStructured)
	case matchAny(unstructuredLogRes, text):
		add(CategoryLogging, IdiomUnstructured)
	}
	switch {
	case matchAny(abortRes, text):
		add(CategoryErrorHandling, IdiomAbort)
	case matchAny(propagateRes, text):
		add(CategoryErrorHandling, IdiomPropagate)
	}
	return out
}

// countedFunc excludes entry points and tests from signature statistics.
func countedFunc(name string) bool {
	switch {
	case name == "main", name == "init":
		return false
	case strings.HasPrefix(name, "Test"), strings.HasPrefix(name, "Benchmark"), strings.HasPrefix(name, "Fuzz"):
		return false
	}
	return true
}

func firstParam(params string) string {
	if i := strings.IndexByte(params, ','); i >= 0 {
		return params[:i]
	}
	return params
}

func isComment(t string) bool {
	for _, p := range []string{"//", "#", "/*", "*", "--"} {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func clip(s string) string {
	if len(s) <= maxExampleText {
		return s
	}
	return s[:maxExampleText-3] + "..."
}
