// Package report assembles the review report handed to renderers.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
	"github.com/reviewlens/reviewlens/internal/redact"
)

// Tool is the report's tool name.
const Tool = "reviewlens"

// DefaultSummaryTimeout bounds the summarizer call.
const DefaultSummaryTimeout = 20 * time.Second

// Input is the raw material of a report.
type Input struct {
	RunID        string
	Version      string
	Diff         *diff.Set
	Findings     []model.Finding
	Deviations   []model.Deviation
	Hotspots     []model.Hotspot
	Suppressions []model.Suppression
	Warnings     []model.Warning
	Complete     bool
	Incomplete   string
	IndexWarm    bool
	Timings      model.Timings
}

// Options configures Assemble.
type Options struct {
	Summarizer     Summarizer
	SummaryTimeout time.Duration
	// Redactor masks secrets in report text. Nil leaves text as is.
	Redactor *redact.Redactor
	Logger   *slog.Logger
}

// Assemble orders and deduplicates the input, attaches the optional
// diagram and summary and redacts report text.
func Assemble(ctx context.Context, in Input, opts Options) *model.Report {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := &model.Report{
		Tool:       Tool,
		Version:    in.Version,
		RunID:      runID,
		Complete:   in.Complete,
		Incomplete: in.Incomplete,
		Findings:   SortFindings(in.Findings),
		Deviations: SortDeviations(in.Deviations),
		Hotspots:   orEmpty(in.Hotspots),
		Diagram:    buildDiagram(in.Diff),
		Metadata: model.Metadata{
			RulesetVersion: analysis.RulesetVersion,
			Driver:         "none",
			IndexWarm:      in.IndexWarm,
			Timings:        in.Timings,
			Suppressions:   append([]model.Suppression{}, in.Suppressions...),
			Warnings:       append([]model.Warning{}, in.Warnings...),
		},
	}
	if r.Complete {
		r.Incomplete = ""
	}
	if in.Diff != nil {
		r.Metadata.FilesReviewed = len(in.Diff.Files)
	}

	redactReport(r, opts.Redactor)

	if opts.Summarizer != nil {
		r.Metadata.Driver = opts.Summarizer.Name()
		r.Metadata.Model = opts.Summarizer.Model()
		summary, err := summarize(ctx, opts.Summarizer, factsFor(r, in.Diff), opts.SummaryTimeout)
		if err != nil {
			logger.Warn("summary unavailable", "driver", r.Metadata.Driver, "error", err)
			r.Metadata.Warnings = append(r.Metadata.Warnings, model.Warning{
				Kind:    model.WarnSummary,
				Message: err.Error(),
			})
		} else {
			r.Summary = opts.Redactor.Redact(summary)
		}
	}
	return r
}

// summarize calls s once, bounded by the smaller of timeout and the time
// left on ctx.
func summarize(ctx context.Context, s Summarizer, facts Facts, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultSummaryTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return "", fmt.Errorf("no time left in the run budget")
		}
		if left < timeout {
			timeout = left
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := s.Summarize(ctx, facts)
		done <- result{text, err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%s: %w", s.Name(), res.err)
		}
		if res.text == "" {
			return "", fmt.Errorf("%s: empty summary", s.Name())
		}
		return res.text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", s.Name(), ctx.Err())
	}
}

func factsFor(r *model.Report, set *diff.Set) Facts {
	f := Facts{
		Findings:   r.Findings,
		Deviations: r.Deviations,
		Hotspots:   r.Hotspots,
	}
	if set != nil {
		f.Files = set.Paths()
		_, f.Added, f.Deleted = set.Stats()
	}
	return f
}

// SortFindings returns the findings ordered by severity desc, file, line,
// rule and title, keeping the first of each identity.
func SortFindings(in []model.Finding) []model.Finding {
	out := append([]model.Finding{}, in...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Title < b.Title
	})
	seen := make(map[string]bool, len(out))
	deduped := out[:0]
	for _, f := range out {
		if seen[f.Key()] {
			continue
		}
		seen[f.Key()] = true
		deduped = append(deduped, f)
	}
	return deduped
}

// SortDeviations orders deviations like findings and drops repeats of the
// same category at the same place.
func SortDeviations(in []model.Deviation) []model.Deviation {
	out := append([]model.Deviation{}, in...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Category < b.Category
	})
	seen := make(map[string]bool, len(out))
	deduped := out[:0]
	for _, d := range out {
		key := fmt.Sprintf("%s|%s|%d", d.Category, d.File, d.Line)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, d)
	}
	return deduped
}

func redactReport(r *model.Report, red *redact.Redactor) {
	if red == nil {
		return
	}
	for i := range r.Findings {
		r.Findings[i] = RedactFinding(r.Findings[i], red)
	}
	for i := range r.Deviations {
		d := &r.Deviations[i]
		d.Description = red.Redact(d.Description)
		examples := make([]model.Example, len(d.Examples))
		for j, ex := range d.Examples {
			ex.Text = red.Redact(ex.Text)
			examples[j] = ex
		}
		d.Examples = examples
	}
	for i := range r.Metadata.Suppressions {
		r.Metadata.Suppressions[i].Reason = red.Redact(r.Metadata.Suppressions[i].Reason)
	}
}

// RedactFinding returns f with its text fields redacted. The fix is
// copied, never modified in place.
func RedactFinding(f model.Finding, red *redact.Redactor) model.Finding {
	if red == nil {
		return f
	}
	f.Title = red.Redact(f.Title)
	f.Description = red.Redact(f.Description)
	if f.Fix != nil {
		f.Fix = &model.Fix{Before: red.Redact(f.Fix.Before), After: red.Redact(f.Fix.After)}
	}
	return f
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
