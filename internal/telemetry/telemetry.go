// Package telemetry writes newline-delimited JSON run events.
package telemetry

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/reviewlens/reviewlens/internal/config"
)

// Event names.
const (
	EventRunStarted  = "run_started"
	EventFinding     = "finding"
	EventSuppressed  = "suppressed"
	EventRunFinished = "run_finished"
)

// Event is one JSONL record. Unused fields are omitted.
type Event struct {
	Event       string `json:"event"`
	TimestampMs int64  `json:"timestamp_ms,omitempty"`
	RunID       string `json:"run_id,omitempty"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
	Rule        string `json:"rule,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Findings    *int   `json:"findings,omitempty"`
	DurationMs  *int64 `json:"duration_ms,omitempty"`
	Complete    *bool  `json:"complete,omitempty"`
}

// Emitter serialises events to a writer. A nil *Emitter drops every event.
type Emitter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// New returns an emitter writing to w.
func New(w io.Writer) *Emitter {
	return &Emitter{w: w, now: time.Now}
}

// FromConfig opens the configured sink. It returns nil when telemetry is
// disabled and stdout when no file is set.
func FromConfig(cfg config.TelemetryConfig) (*Emitter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.File == "" {
		return New(os.Stdout), nil
	}
	f, err := os.Create(cfg.File)
	if err != nil {
		return nil, &config.Error{Key: "telemetry.file", Msg: "cannot open", Err: err}
	}
	e := New(f)
	e.closer = f
	return e, nil
}

// Close closes the underlying file, if the emitter opened one.
func (e *Emitter) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

func (e *Emitter) emit(ev Event) {
	if e == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.w.Write(append(data, '\n'))
}

func (e *Emitter) RunStarted(runID string) {
	if e == nil {
		return
	}
	e.emit(Event{Event: EventRunStarted, RunID: runID, TimestampMs: e.now().UnixMilli()})
}

func (e *Emitter) Finding(runID, file string, line int, rule, severity string) {
	e.emit(Event{Event: EventFinding, RunID: runID, File: file, Line: line, Rule: rule, Severity: severity})
}

func (e *Emitter) Suppressed(runID, file string, line int, rule string) {
	e.emit(Event{Event: EventSuppressed, RunID: runID, File: file, Line: line, Rule: rule})
}

func (e *Emitter) RunFinished(runID string, findings int, duration time.Duration, complete bool) {
	ms := duration.Milliseconds()
	e.emit(Event{Event: EventRunFinished, RunID: runID, Findings: &findings, DurationMs: &ms, Complete: &complete})
}
