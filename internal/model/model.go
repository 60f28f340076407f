// Package model defines the value types exchanged between the review
// pipeline stages and the renderers.
package model

import (
	"fmt"
	"strings"
)

// Severity ranks how serious a finding is. The zero value is invalid so a
// missing severity never sorts above a real one.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity accepts the lower-case names used in config files and flags.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q (want critical, high, medium or low)", s)
	}
}

// Valid reports whether s is one of the four defined levels.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// AtLeast reports whether s meets or exceeds threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s >= threshold
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Fix is a deterministic textual rewrite of the flagged code.
type Fix struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Finding is a single rule-triggered issue at a file and line.
type Finding struct {
	RuleID      string   `json:"rule_id"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Description string   `json:"description"`
	Fix         *Fix     `json:"suggested_fix,omitempty"`
	References  []string `json:"references,omitempty"`
}

// Key is the identity used for suppression and deduplication.
func (f Finding) Key() string {
	return fmt.Sprintf("%s|%s|%d", f.RuleID, f.File, f.Line)
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s:%d: %s", f.RuleID, f.File, f.Line, f.Title)
}

// Example is a concrete in-repo occurrence of an idiom.
type Example struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Deviation is a changed line that departs from the dominant idiom of its
// category in the conventions index.
type Deviation struct {
	Category    string    `json:"category"`
	Expected    string    `json:"expected"`
	Observed    string    `json:"observed"`
	Severity    Severity  `json:"severity"`
	Confidence  float64   `json:"confidence"`
	File        string    `json:"file"`
	Line        int       `json:"line"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Examples    []Example `json:"examples"`
}

// Hotspot is a changed file scored by findings and churn.
type Hotspot struct {
	Path     string  `json:"path"`
	Findings int     `json:"findings"`
	Churn    int     `json:"churn"`
	Score    float64 `json:"score"`
}

// Diagram is an optional rendered artifact describing cross-file references.
type Diagram struct {
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

// Suppression records a finding removed by an inline directive.
type Suppression struct {
	RuleID        string `json:"rule_id"`
	File          string `json:"file"`
	Line          int    `json:"line"`
	DirectiveLine int    `json:"directive_line"`
	Reason        string `json:"reason,omitempty"`
}

// Warning is a recoverable condition recorded during a run.
type Warning struct {
	Kind    string `json:"kind"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// Warning kinds.
const (
	WarnScanner       = "scanner_error"
	WarnIndex         = "index_error"
	WarnSummary       = "summarization_unavailable"
	WarnBudget        = "budget_exceeded"
	WarnLineOutOfDiff = "line_out_of_diff"
)

// Timings records per-stage wall-clock durations in milliseconds.
type Timings struct {
	TotalMs  int64 `json:"total_ms"`
	DiffMs   int64 `json:"diff_ms"`
	RulesMs  int64 `json:"rules_ms"`
	IndexMs  int64 `json:"index_ms"`
	ReportMs int64 `json:"report_ms"`
}

// Metadata describes how a report was produced.
type Metadata struct {
	RulesetVersion string        `json:"ruleset_version"`
	Driver         string        `json:"driver"`
	Model          string        `json:"model,omitempty"`
	IndexWarm      bool          `json:"index_warm"`
	FilesReviewed  int           `json:"files_reviewed"`
	Timings        Timings       `json:"timings"`
	Suppressions   []Suppression `json:"suppressions"`
	Warnings       []Warning     `json:"warnings"`
}

// Report is the immutable handoff artifact from the pipeline to renderers.
type Report struct {
	Tool       string      `json:"tool"`
	Version    string      `json:"version"`
	RunID      string      `json:"run_id"`
	Complete   bool        `json:"complete"`
	Incomplete string      `json:"incomplete_reason,omitempty"`
	Findings   []Finding   `json:"findings"`
	Deviations []Deviation `json:"deviations"`
	Hotspots   []Hotspot   `json:"hotspots"`
	Summary    string      `json:"summary,omitempty"`
	Diagram    *Diagram    `json:"diagram,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// MaxSeverity returns the highest severity among surfaced findings, or 0
// when there are none.
func (r *Report) MaxSeverity() Severity {
	var max Severity
	for _, f := range r.Findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}

// Counts returns the number of findings per severity.
func (r *Report) Counts() map[Severity]int {
	m := make(map[Severity]int)
	for _, f := range r.Findings {
		m[f.Severity]++
	}
	return m
}

// SummaryLine returns a one-line summary of finding counts.
func (r *Report) SummaryLine() string {
	if len(r.Findings) == 0 {
		return "No issues found"
	}
	counts := r.Counts()
	var parts []string
	for _, s := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow} {
		if c := counts[s]; c > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c, s))
		}
	}
	return strings.Join(parts, ", ")
}
