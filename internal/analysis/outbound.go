package analysis

import (
	"regexp"
	"strings"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

const defaultTimeout = "10 * time.Second"

var (
	defaultClientCallRe = regexp.MustCompile(`\bhttp\.(?:DefaultClient\.)?(Get|Post|Head|PostForm|Do)\(`)
	clientLiteralRe     = regexp.MustCompile(`\bhttp\.Client\s*\{`)
	timeoutFieldRe      = regexp.MustCompile(`\bTimeout\s*:`)
	newRequestRe        = regexp.MustCompile(`\bhttp\.NewRequest\(`)
	netDialRe           = regexp.MustCompile(`\bnet\.Dial\(`)
	pyRequestsRe        = regexp.MustCompile(`\brequests\.(get|post|put|patch|delete|head|request)\(`)
	pyTimeoutRe         = regexp.MustCompile(`\btimeout\s*=`)
)

type outboundScanner struct{}

func (outboundScanner) ID() string                      { return "outbound-io" }
func (outboundScanner) Title() string                   { return "Outbound call without timeout" }
func (outboundScanner) DefaultSeverity() model.Severity { return model.SeverityMedium }

func (s outboundScanner) Evaluate(file *diff.File, hunk *diff.Hunk) []model.Finding {
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

func (outboundScanner) evaluateLine(h *diff.Hunk, idx int, l diff.Line) (model.Finding, bool) {
	text := l.Text
	trimmed := strings.TrimSpace(text)

	if m := defaultClientCallRe.FindStringSubmatchIndex(text); m != nil {
		call := text[m[2]:m[3]]
		after := "client := &http.Client{Timeout: " + defaultTimeout + "}\n" +
			strings.TrimSpace(text[:m[0]]+"client."+call+"("+text[m[1]:])
		return finding(l,
			"HTTP call on the default client",
			"http."+call+" uses http.DefaultClient, which has no timeout. A slow server can block this call indefinitely.",
			&model.Fix{Before: trimmed, After: after},
		), true
	}

	if loc := clientLiteralRe.FindStringIndex(text); loc != nil {
		body := clientLiteralBody(h, idx, text[loc[1]-1:])
		if !timeoutFieldRe.MatchString(body) {
			var after string
			if strings.HasPrefix(strings.TrimSpace(text[loc[1]:]), "}") {
				after = strings.TrimSpace(text[:loc[1]] + "Timeout: " + defaultTimeout + strings.TrimLeft(text[loc[1]:], " "))
			} else {
				after = trimmed + "\n\tTimeout: " + defaultTimeout + ","
			}
			return finding(l,
				"HTTP client without timeout",
				"This http.Client sets no Timeout, so requests through it can hang forever.",
				&model.Fix{Before: trimmed, After: after},
			), true
		}
	}

	if loc := newRequestRe.FindStringIndex(text); loc != nil {
		after := strings.TrimSpace(text[:loc[0]] + "http.NewRequestWithContext(ctx, " + text[loc[1]:])
		return finding(l,
			"Request without a context",
			"http.NewRequest builds a request that cannot be cancelled. Use NewRequestWithContext so callers can bound it with a deadline.",
			&model.Fix{Before: trimmed, After: after},
		), true
	}

	if loc := netDialRe.FindStringIndex(text); loc != nil {
		closeIdx := closingParen(text, loc[1]-1)
		if closeIdx > 0 {
			after := strings.TrimSpace(text[:loc[0]] + "net.DialTimeout(" + text[loc[1]:closeIdx] + ", " + defaultTimeout + text[closeIdx:])
			return finding(l,
				"Dial without timeout",
				"net.Dial waits on the operating system connect timeout. Use net.DialTimeout or a net.Dialer with a deadline.",
				&model.Fix{Before: trimmed, After: after},
			), true
		}
	}

	if loc := pyRequestsRe.FindStringIndex(text); loc != nil {
		call := text[loc[0]:]
		for _, next := range window(h, idx, ContextWindow) {
			if closingParen(call, strings.IndexByte(call, '(')) >= 0 {
				break
			}
			call += "\n" + next.Text
		}
		if !pyTimeoutRe.MatchString(call) {
			after := trimmed
			if closeIdx := closingParen(text, loc[1]-1); closeIdx > 0 {
				after = strings.TrimSpace(text[:closeIdx] + ", timeout=10" + text[closeIdx:])
			}
			return finding(l,
				"HTTP request without timeout",
				"requests calls block forever by default. Pass timeout= explicitly.",
				&model.Fix{Before: trimmed, After: after},
			), true
		}
	}
	return model.Finding{}, false
}

// clientLiteralBody returns the composite literal text starting at its
// opening brace, following the hunk until the braces balance or the
// context window ends.
func clientLiteralBody(h *diff.Hunk, idx int, first string) string {
	body := first
	if balanced(body) {
		return body
	}
	for _, next := range window(h, idx, ContextWindow) {
		body += "\n" + next.Text
		if balanced(body) {
			break
		}
	}
	return body
}

func balanced(s string) bool {
	depth := 0
	for _, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
		}
	}
	return depth <= 0
}
