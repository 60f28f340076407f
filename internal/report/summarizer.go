package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewlens/reviewlens/internal/model"
)

// Summarizer turns the facts of a run into a short prose summary.
type Summarizer interface {
	Summarize(ctx context.Context, facts Facts) (string, error)
	Name() string
	Model() string
}

// Facts is everything a summarizer may see. Text fields are redacted
// before the call when redaction is enabled.
type Facts struct {
	Files      []string
	Added      int
	Deleted    int
	Findings   []model.Finding
	Deviations []model.Deviation
	Hotspots   []model.Hotspot
}

// SystemPrompt instructs the model how to summarise.
const SystemPrompt = `You summarise automated code review results for a pull request.
Write three to six sentences of plain prose. Mention the most severe findings first,
name the files involved, and note convention deviations briefly. Do not invent
findings that are not listed. Do not use markdown headings.`

// Prompt renders the facts as the user message.
func (f Facts) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Changed files (%d, +%d -%d):\n", len(f.Files), f.Added, f.Deleted)
	for _, p := range f.Files {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	if len(f.Findings) == 0 {
		b.WriteString("\nFindings: none\n")
	} else {
		b.WriteString("\nFindings:\n")
		for _, fd := range f.Findings {
			fmt.Fprintf(&b, "- [%s] %s at %s:%d (%s)\n", fd.Severity, fd.Title, fd.File, fd.Line, fd.RuleID)
		}
	}
	if len(f.Deviations) > 0 {
		b.WriteString("\nConvention deviations:\n")
		for _, d := range f.Deviations {
			fmt.Fprintf(&b, "- %s:%d %s\n", d.File, d.Line, d.Description)
		}
	}
	if len(f.Hotspots) > 0 {
		b.WriteString("\nHotspots:\n")
		for _, h := range f.Hotspots {
			fmt.Fprintf(&b, "- %s (score %.1f, %d findings, %d changed lines)\n", h.Path, h.Score, h.Findings, h.Churn)
		}
	}
	return b.String()
}
