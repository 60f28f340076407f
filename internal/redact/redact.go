// Package redact masks credentials in text that leaves the process, such as
// report output and summarizer prompts.
package redact

import (
	"fmt"
	"regexp"
)

// Placeholder replaces every redacted match.
const Placeholder = "[REDACTED]"

// builtin are heuristics for common secret shapes.
var builtin = []*regexp.Regexp{
	// generic API keys after common key names
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_.-]{16,})["']?`),
	// AWS access key ids
	regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	// AWS secret access keys
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	// secrets, tokens and passwords in assignments
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*:?[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(?:[A-Z]+\s+)?PRIVATE KEY-----`),
	// GitHub, Slack, Anthropic and OpenAI tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	// long hex strings assigned to key-like names
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Redactor masks the built-in patterns plus any configured ones.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles the extra patterns on top of the built-in set.
func New(extra []string) (*Redactor, error) {
	r := &Redactor{patterns: append([]*regexp.Regexp(nil), builtin...)}
	for _, p := range extra {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Redact replaces every match in text with Placeholder. A nil Redactor
// returns text unchanged.
func (r *Redactor) Redact(text string) string {
	if r == nil || text == "" {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllLiteralString(text, Placeholder)
	}
	return text
}
