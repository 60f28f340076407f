// Package suppress removes findings silenced by inline reviewlens:ignore
// directives.
package suppress

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
	"github.com/reviewlens/reviewlens/internal/source"
)

// Marker introduces a directive inside a comment.
const Marker = "reviewlens:ignore"

// Wildcard matches every rule.
const Wildcard = "*"

var directiveRe = regexp.MustCompile(`(?://|#|--|/\*)\s*` + regexp.QuoteMeta(Marker) + `\s+([A-Za-z0-9_*\-]+(?:\s*,\s*[A-Za-z0-9_*\-]+)*),?(?:[ \t]+(.*?))?\s*(?:\*/)?\s*$`)

// Directive is a parsed ignore comment.
type Directive struct {
	Rules  []string
	Reason string
	Line   int
}

// Matches reports whether the directive names ruleID exactly.
func (d Directive) Matches(ruleID string) bool {
	for _, r := range d.Rules {
		if r == ruleID {
			return true
		}
	}
	return false
}

func (d Directive) wildcard() bool {
	for _, r := range d.Rules {
		if r == Wildcard {
			return true
		}
	}
	return false
}

// ParseDirective extracts a directive from one line of source.
func ParseDirective(text string, line int) (Directive, bool) {
	m := directiveRe.FindStringSubmatch(text)
	if m == nil {
		return Directive{}, false
	}
	var rules []string
	for _, r := range strings.Split(m[1], ",") {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, r)
		}
	}
	if len(rules) == 0 {
		return Directive{}, false
	}
	return Directive{Rules: rules, Reason: strings.TrimSpace(m[2]), Line: line}, true
}

// Resolver filters findings against directives on the flagged line and the
// line above it. Line text comes from the diff, falling back to Source.
type Resolver struct {
	Diff   *diff.Set
	Source source.Accessor
	Logger *slog.Logger
}

// Resolve returns the findings that survive and one Suppression for every
// distinct finding removed.
func (r *Resolver) Resolve(findings []model.Finding) ([]model.Finding, []model.Suppression) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	kept := make([]model.Finding, 0, len(findings))
	var records []model.Suppression
	recorded := make(map[string]bool)

	for _, f := range findings {
		d, ok := r.match(f)
		if !ok {
			kept = append(kept, f)
			continue
		}
		if recorded[f.Key()] {
			continue
		}
		recorded[f.Key()] = true
		rec := model.Suppression{
			RuleID:        f.RuleID,
			File:          f.File,
			Line:          f.Line,
			DirectiveLine: d.Line,
			Reason:        d.Reason,
		}
		records = append(records, rec)
		logger.Info("finding suppressed",
			"rule", rec.RuleID,
			"file", rec.File,
			"line", rec.Line,
			"directive_line", rec.DirectiveLine,
			"reason", rec.Reason)
	}
	return kept, records
}

// DeviationRule is the rule id directives use to silence convention
// deviations.
const DeviationRule = "conventions"

// ResolveDeviations applies the same directives to convention deviations.
func (r *Resolver) ResolveDeviations(devs []model.Deviation) ([]model.Deviation, []model.Suppression) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	kept := make([]model.Deviation, 0, len(devs))
	var records []model.Suppression
	recorded := make(map[string]bool)

	for _, dev := range devs {
		f := model.Finding{RuleID: DeviationRule, File: dev.File, Line: dev.Line}
		d, ok := r.match(f)
		if !ok {
			kept = append(kept, dev)
			continue
		}
		if recorded[f.Key()] {
			continue
		}
		recorded[f.Key()] = true
		records = append(records, model.Suppression{
			RuleID:        DeviationRule,
			File:          dev.File,
			Line:          dev.Line,
			DirectiveLine: d.Line,
			Reason:        d.Reason,
		})
		logger.Info("deviation suppressed", "category", dev.Category, "file", dev.File, "line", dev.Line)
	}
	return kept, records
}

// match finds the directive silencing f. With directives on both lines
// only an exact rule id counts; a wildcard applies only when it is the
// sole directive in reach.
func (r *Resolver) match(f model.Finding) (Directive, bool) {
	var found []Directive
	for _, n := range []int{f.Line, f.Line - 1} {
		text, ok := r.lineText(f.File, n)
		if !ok {
			continue
		}
		if d, ok := ParseDirective(text, n); ok {
			found = append(found, d)
		}
	}
	for _, d := range found {
		if d.Matches(f.RuleID) {
			return d, true
		}
	}
	if len(found) == 1 && found[0].wildcard() {
		return found[0], true
	}
	return Directive{}, false
}

func (r *Resolver) lineText(path string, n int) (string, bool) {
	if n < 1 {
		return "", false
	}
	if r.Diff != nil {
		if f := r.Diff.File(path); f != nil {
			if l, ok := f.LineAt(n); ok {
				return l.Text, true
			}
		}
	}
	return source.Line(r.Source, path, n)
}
