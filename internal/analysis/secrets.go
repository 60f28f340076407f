package analysis

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

const (
	minSecretLength  = 16
	minSecretEntropy = 3.0
)

var (
	// name = "value", name := "value", "name": "value", name => 'value'
	secretAssignRe = regexp.MustCompile(`(?i)([A-Za-z0-9_.\-]*(?:api[_-]?key|secret|token|passw(?:or)?d|pwd|access[_-]?key|private[_-]?key|credential|auth[_-]?key)[A-Za-z0-9_\-]*)["']?\s*(?::=|=>|=|:)\s*(["'` + "`" + `])([^"'` + "`" + `\s]{16,})["'` + "`" + `]`)

	awsKeyIDRe     = regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)
	privateKeyRe   = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)
	// SCREAMING_SNAKE words are variable names, not values.
	envNameRe      = regexp.MustCompile(`^[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+$`)
	placeholderRes = compilePatterns(
		`(?i)example|changeme|change_me|placeholder|dummy|redacted|your[_-]`,
		`(?i)^x+$|^\*+$|^0+$`,
		`\$\{|\{\{|<[A-Za-z_]+>|%\(`,
	)
)

type secretsScanner struct{}

func (secretsScanner) ID() string                      { return "secrets" }
func (secretsScanner) Title() string                   { return "Hardcoded credential" }
func (secretsScanner) DefaultSeverity() model.Severity { return model.SeverityHigh }

func (s secretsScanner) Evaluate(file *diff.File, hunk *diff.Hunk) []model.Finding {
	var out []model.Finding
	for _, l := range hunk.Lines {
		if l.Kind != diff.LineAdded {
			continue
		}
		if f, ok := s.evaluateLine(file.Path, l); ok {
			out = append(out, f)
		}
	}
	return out
}

func (secretsScanner) evaluateLine(path string, l diff.Line) (model.Finding, bool) {
	text := l.Text
	trimmed := strings.TrimSpace(text)

	if m := secretAssignRe.FindStringSubmatchIndex(text); m != nil {
		name := text[m[2]:m[3]]
		value := text[m[6]:m[7]]
		if looksLikeSecret(value) {
			literal := text[m[4]:m[7]+1]
			after := strings.Replace(trimmed, literal, envLookup(path, name), 1)
			return finding(l,
				"Hardcoded credential",
				fmt.Sprintf("%q is assigned a credential-shaped literal. Secrets committed to source control must be rotated; load them from the environment or a secret store instead.", name),
				&model.Fix{Before: trimmed, After: after},
				"CWE-798",
			), true
		}
	}

	if loc := awsKeyIDRe.FindStringIndex(text); loc != nil {
		after := trimmed
		id := text[loc[0]:loc[1]]
		for _, q := range []string{`"`, `'`, "`"} {
			if quoted := q + id + q; strings.Contains(after, quoted) {
				after = strings.Replace(after, quoted, envLookup(path, "AWS_ACCESS_KEY_ID"), 1)
				break
			}
		}
		if after == trimmed {
			after = strings.Replace(trimmed, id, "$AWS_ACCESS_KEY_ID", 1)
		}
		return finding(l,
			"Hardcoded AWS access key",
			"An AWS access key id is committed in source. Revoke the key and read it from the environment.",
			&model.Fix{Before: trimmed, After: after},
			"CWE-798",
		), true
	}

	if privateKeyRe.MatchString(text) {
		return finding(l,
			"Private key committed",
			"A PEM private key block is committed in source. Remove it and load the key from a file outside the repository.",
			&model.Fix{Before: trimmed, After: "<load the private key from a secret store>"},
			"CWE-321",
		), true
	}
	return model.Finding{}, false
}

// looksLikeSecret applies the length, placeholder and entropy gates.
func looksLikeSecret(v string) bool {
	if len(v) < minSecretLength {
		return false
	}
	if envNameRe.MatchString(v) || matchAny(placeholderRes, v) {
		return false
	}
	return shannonEntropy(v) >= minSecretEntropy
}

// shannonEntropy returns bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	n := 0
	for _, r := range s {
		counts[r]++
		n++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

// envLookup renders an environment read of the variable derived from name
// in the file's language.
func envLookup(path, name string) string {
	env := envName(name)
	switch lang(path) {
	case "python":
		return fmt.Sprintf("os.environ[%q]", env)
	case "js":
		return "process.env." + env
	case "rust":
		return fmt.Sprintf("std::env::var(%q)?", env)
	case "ruby":
		return fmt.Sprintf("ENV[%q]", env)
	case "java":
		return fmt.Sprintf("System.getenv(%q)", env)
	default:
		return fmt.Sprintf("os.Getenv(%q)", env)
	}
}

// envName turns apiKey, api-key or client.api_key into API_KEY style.
func envName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	prevLower := false
	for _, r := range name {
		switch {
		case r == '-' || r == '_' || r == ' ':
			b.WriteByte('_')
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			prevLower = false
		default:
			b.WriteRune(unicode.ToUpper(r))
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}
