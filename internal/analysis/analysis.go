// Package analysis implements the rule engine: a fixed table of line
// scanners evaluated over the added lines of each hunk.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

// RulesetVersion identifies the scanner table. Bump it whenever a scanner's
// matching policy changes.
const RulesetVersion = "2024.2"

// ContextWindow is how many following lines of the same hunk a scanner may
// inspect to recognise multi-line constructs.
const ContextWindow = 5

// Scanner examines one hunk of one file and reports findings on its added
// lines. Implementations must be safe for concurrent use.
type Scanner interface {
	ID() string
	Title() string
	DefaultSeverity() model.Severity
	Evaluate(file *diff.File, hunk *diff.Hunk) []model.Finding
}

// Registry returns every scanner in a stable order.
func Registry() []Scanner {
	return []Scanner{
		secretsScanner{},
		injectionScanner{},
		outboundScanner{},
		encodingScanner{},
	}
}

// RuleIDs returns the identifiers of every registered scanner.
func RuleIDs() []string {
	var ids []string
	for _, s := range Registry() {
		ids = append(ids, s.ID())
	}
	return ids
}

// Lookup returns the scanner with the given id.
func Lookup(id string) (Scanner, bool) {
	for _, s := range Registry() {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// RuleSetting is the resolved configuration for one rule.
type RuleSetting struct {
	Enabled  bool
	Severity model.Severity // zero keeps the scanner default
}

// Options configures an Engine.
type Options struct {
	Rules   map[string]RuleSetting // missing rules are enabled at their default severity
	Allow   func(path string) bool // nil allows every path
	Workers int                    // <= 0 means runtime.NumCPU()
	Logger  *slog.Logger
}

// ScannerError records a scanner that panicked on a file.
type ScannerError struct {
	RuleID string
	File   string
	Cause  any
}

func (e *ScannerError) Error() string {
	return fmt.Sprintf("scanner %s failed on %s: %v", e.RuleID, e.File, e.Cause)
}

// Result is the outcome of an engine run.
type Result struct {
	Findings []model.Finding
	Warnings []model.Warning
	Complete bool
	Scanned  int // files evaluated
}

// Engine runs the enabled scanners over a diff.
type Engine struct {
	scanners []Scanner
	opts     Options
	logger   *slog.Logger
}

// New builds an engine from the registry filtered by opts.Rules.
func New(opts Options) *Engine {
	e := &Engine{opts: opts, logger: opts.Logger}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	for _, s := range Registry() {
		if rs, ok := opts.Rules[s.ID()]; ok && !rs.Enabled {
			continue
		}
		e.scanners = append(e.scanners, s)
	}
	return e
}

// Eligible reports whether the engine would scan f.
func (e *Engine) Eligible(f *diff.File) bool {
	if f.Kind == diff.KindBinary || f.Kind == diff.KindDeleted {
		return false
	}
	return e.opts.Allow == nil || e.opts.Allow(f.Path)
}

type job struct {
	scanner Scanner
	file    *diff.File
}

type jobResult struct {
	findings []model.Finding
	warnings []model.Warning
}

// Run evaluates every enabled scanner against every eligible file on a
// bounded worker pool. When ctx is done, no further jobs are dispatched
// and the partial result is returned with Complete set to false.
func (e *Engine) Run(ctx context.Context, files []*diff.File) *Result {
	var jobs []job
	res := &Result{Complete: true}
	for _, f := range files {
		if !e.Eligible(f) {
			continue
		}
		res.Scanned++
		for _, s := range e.scanners {
			jobs = append(jobs, job{scanner: s, file: f})
		}
	}

	workers := e.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]jobResult, len(jobs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

dispatch:
	for i, j := range jobs {
		select {
		case <-ctx.Done():
			res.Complete = false
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.runJob(ctx, j)
		}(i, j)
	}
	wg.Wait()

	if ctx.Err() != nil {
		res.Complete = false
	}
	for _, r := range results {
		res.Findings = append(res.Findings, r.findings...)
		res.Warnings = append(res.Warnings, r.warnings...)
	}
	return res
}

// runJob evaluates one scanner over one file. A panic drops that
// scanner's findings for the file and becomes a warning.
func (e *Engine) runJob(ctx context.Context, j job) (out jobResult) {
	id := j.scanner.ID()
	defer func() {
		if r := recover(); r != nil {
			serr := &ScannerError{RuleID: id, File: j.file.Path, Cause: r}
			e.logger.Warn("scanner failed", "rule", id, "file", j.file.Path, "error", serr)
			out = jobResult{warnings: []model.Warning{{
				Kind:    model.WarnScanner,
				File:    j.file.Path,
				Message: serr.Error(),
			}}}
		}
	}()

	severity := j.scanner.DefaultSeverity()
	if rs, ok := e.opts.Rules[id]; ok && rs.Severity.Valid() {
		severity = rs.Severity
	}

	for _, h := range j.file.Hunks {
		if ctx.Err() != nil {
			return out
		}
		for _, f := range j.scanner.Evaluate(j.file, h) {
			if _, ok := h.LineAt(f.Line); !ok {
				out.warnings = append(out.warnings, model.Warning{
					Kind:    model.WarnLineOutOfDiff,
					File:    j.file.Path,
					Message: fmt.Sprintf("%s reported line %d outside its hunk", id, f.Line),
				})
				continue
			}
			f.RuleID = id
			f.File = j.file.Path
			f.Severity = severity
			out.findings = append(out.findings, f)
		}
	}
	return out
}
