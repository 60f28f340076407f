// Package pipeline runs a review end to end: diff, rules, suppression,
// conventions, hotspots and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/conventions"
	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/hotspot"
	"github.com/reviewlens/reviewlens/internal/model"
	"github.com/reviewlens/reviewlens/internal/redact"
	"github.com/reviewlens/reviewlens/internal/report"
	"github.com/reviewlens/reviewlens/internal/source"
	"github.com/reviewlens/reviewlens/internal/suppress"
	"github.com/reviewlens/reviewlens/internal/telemetry"
)

// Incomplete reasons.
const (
	ReasonBudget    = "budget exceeded"
	ReasonCancelled = "cancelled"
)

// Pipeline holds everything a review run needs. The zero value of every
// optional field disables that stage's extra.
type Pipeline struct {
	Config config.Config
	// Source is the repository tree. Nil skips the conventions index and
	// the source fallback for directives.
	Source     source.Lister
	Summarizer report.Summarizer
	Telemetry  *telemetry.Emitter
	Logger     *slog.Logger
	Version    string
	// IndexPath is where the conventions snapshot is stored. Empty keeps
	// the index in memory for this run only.
	IndexPath string
	NoIndex   bool

	// OnParsed and OnFinding observe the run as it progresses.
	OnParsed  func(*diff.Set)
	OnFinding func(model.Finding)
}

// Run reviews rawDiff within the configured budget. A budget overrun is
// not an error: the partial report is returned marked incomplete.
func (p *Pipeline) Run(ctx context.Context, rawDiff string) (*model.Report, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := p.Config
	start := time.Now()
	runID := uuid.NewString()
	p.Telemetry.RunStarted(runID)
	logger.Debug("review started", "run_id", runID, "budget", cfg.Budget)

	var red *redact.Redactor
	if cfg.Privacy.Redaction {
		r, err := redact.New(cfg.Privacy.Patterns)
		if err != nil {
			return nil, &config.Error{Key: "privacy.patterns", Msg: "invalid pattern", Err: err}
		}
		red = r
	}

	if cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Budget)
		defer cancel()
	}

	var timings model.Timings
	stage := time.Now()
	set, err := diff.Parse(rawDiff)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}
	timings.DiffMs = time.Since(stage).Milliseconds()
	files, added, deleted := set.Stats()
	logger.Info("diff parsed", "files", files, "added", added, "deleted", deleted)
	if p.OnParsed != nil {
		p.OnParsed(set)
	}

	stage = time.Now()
	engine := analysis.New(analysis.Options{
		Rules:   cfg.RuleSettings(),
		Allow:   cfg.Allow,
		Workers: cfg.Workers,
		Logger:  logger,
	})
	res := engine.Run(ctx, set.Files)
	timings.RulesMs = time.Since(stage).Milliseconds()
	logger.Debug("rules evaluated", "scanned", res.Scanned, "findings", len(res.Findings), "complete", res.Complete)

	complete := res.Complete
	warnings := append([]model.Warning{}, res.Warnings...)

	resolver := &suppress.Resolver{Diff: set, Source: p.Source, Logger: logger}
	findings, suppressions := resolver.Resolve(res.Findings)
	if p.OnFinding != nil {
		for _, f := range report.SortFindings(findings) {
			p.OnFinding(report.RedactFinding(f, red))
		}
	}

	stage = time.Now()
	var deviations []model.Deviation
	indexWarm := false
	if !p.NoIndex && p.Source != nil && ctx.Err() == nil {
		idx, err := conventions.Refresh(ctx, p.Source, conventions.RefreshOptions{
			Path:    p.IndexPath,
			Allow:   cfg.Allow,
			Workers: cfg.Workers,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("conventions index unavailable", "error", err)
			warnings = append(warnings, model.Warning{Kind: model.WarnIndex, Message: err.Error()})
		} else {
			warnings = append(warnings, idx.Warnings...)
			indexWarm = idx.Warm
			if !idx.Stats.Complete {
				complete = false
			}
			changed := make(map[string]bool, len(set.Files))
			for _, f := range set.Files {
				changed[f.Path] = true
				if f.OldPath != "" {
					changed[f.OldPath] = true
				}
			}
			profile := idx.Snapshot.Profile(func(path string) bool { return changed[path] })
			devs := conventions.Detect(profile, set.Files, conventions.DetectOptions{
				Threshold:  cfg.Conventions.DominanceThreshold,
				MinSamples: cfg.Conventions.MinSamples,
				Allow:      cfg.Allow,
			})
			var devSuppressions []model.Suppression
			deviations, devSuppressions = resolver.ResolveDeviations(devs)
			suppressions = append(suppressions, devSuppressions...)
		}
	}
	timings.IndexMs = time.Since(stage).Milliseconds()

	churn := make(map[string]int)
	for path, n := range set.Churn() {
		if cfg.Allow(path) {
			churn[path] = n
		}
	}
	hotspots := hotspot.Rank(findings, churn, hotspot.Weights{
		Severity: cfg.Hotspots.SeverityWeight,
		Churn:    cfg.Hotspots.ChurnWeight,
	}, cfg.Hotspots.TopK)

	reason := ""
	if ctx.Err() != nil {
		complete = false
	}
	if !complete {
		reason = ReasonCancelled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = ReasonBudget
		}
		logger.Warn("review incomplete", "reason", reason, "budget", cfg.Budget)
		warnings = append(warnings, model.Warning{
			Kind:    model.WarnBudget,
			Message: fmt.Sprintf("%s after %s; results are partial", reason, time.Since(start).Round(time.Millisecond)),
		})
	}

	stage = time.Now()
	r := report.Assemble(ctx, report.Input{
		RunID:        runID,
		Version:      p.Version,
		Diff:         set,
		Findings:     findings,
		Deviations:   deviations,
		Hotspots:     hotspots,
		Suppressions: suppressions,
		Warnings:     warnings,
		Complete:     complete,
		Incomplete:   reason,
		IndexWarm:    indexWarm,
		Timings:      timings,
	}, report.Options{
		Summarizer:     p.Summarizer,
		SummaryTimeout: cfg.Summary.Timeout,
		Redactor:       red,
		Logger:         logger,
	})
	r.Metadata.Timings.ReportMs = time.Since(stage).Milliseconds()
	r.Metadata.Timings.TotalMs = time.Since(start).Milliseconds()

	for _, f := range r.Findings {
		p.Telemetry.Finding(runID, f.File, f.Line, f.RuleID, f.Severity.String())
	}
	for _, s := range r.Metadata.Suppressions {
		p.Telemetry.Suppressed(runID, s.File, s.Line, s.RuleID)
	}
	p.Telemetry.RunFinished(runID, len(r.Findings), time.Since(start), r.Complete)
	logger.Info("review finished",
		"run_id", runID,
		"findings", len(r.Findings),
		"deviations", len(r.Deviations),
		"suppressed", len(r.Metadata.Suppressions),
		"complete", r.Complete,
		"duration", time.Since(start))
	return r, nil
}
