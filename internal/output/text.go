package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

const ruleWidth = 60

// TextWriter outputs a human-readable report. Colour is used only when w
// is a terminal.
type TextWriter struct{}

type textStyles struct {
	header   lipgloss.Style
	dim      lipgloss.Style
	critical lipgloss.Style
	high     lipgloss.Style
	medium   lipgloss.Style
	low      lipgloss.Style
	added    lipgloss.Style
	removed  lipgloss.Style
	r        *lipgloss.Renderer
}

func newTextStyles(w io.Writer) textStyles {
	r := lipgloss.NewRenderer(w)
	return textStyles{
		header:   r.NewStyle().Foreground(lipgloss.Color("#8be9fd")).Bold(true),
		dim:      r.NewStyle().Foreground(lipgloss.Color("#6272a4")),
		critical: r.NewStyle().Foreground(lipgloss.Color("#ff5555")).Bold(true),
		high:     r.NewStyle().Foreground(lipgloss.Color("#ffb86c")).Bold(true),
		medium:   r.NewStyle().Foreground(lipgloss.Color("#f1fa8c")),
		low:      r.NewStyle().Foreground(lipgloss.Color("#f8f8f2")),
		added:    r.NewStyle().Foreground(lipgloss.Color("#50fa7b")),
		removed:  r.NewStyle().Foreground(lipgloss.Color("#ff5555")),
		r:        r,
	}
}

func (s textStyles) severity(sev model.Severity) lipgloss.Style {
	switch sev {
	case model.SeverityCritical:
		return s.critical
	case model.SeverityHigh:
		return s.high
	case model.SeverityMedium:
		return s.medium
	default:
		return s.low
	}
}

func (t *TextWriter) Write(w io.Writer, report *model.Report) error {
	ew := &errWriter{w: w}
	st := newTextStyles(w)

	ew.println(st.header.Render(fmt.Sprintf("%s %s", report.Tool, report.Version)))
	ew.println(st.dim.Render(fmt.Sprintf("run %s, ruleset %s, %d file(s) reviewed",
		report.RunID, report.Metadata.RulesetVersion, report.Metadata.FilesReviewed)))
	ew.println(strings.Repeat("─", ruleWidth))
	ew.printf("Findings: %d", len(report.Findings))
	if len(report.Findings) > 0 {
		ew.printf(" (%s)", report.SummaryLine())
	}
	ew.println("")
	ew.println(strings.Repeat("─", ruleWidth))

	if !report.Complete {
		ew.println(st.critical.Render("Incomplete: " + report.Incomplete))
	}

	if len(report.Findings) == 0 {
		ew.println("\nNo issues found.")
	}
	grouped := groupBySeverity(report.Findings)
	for _, sev := range severityOrder {
		findings := grouped[sev]
		if len(findings) == 0 {
			continue
		}
		ew.printf("\n%s\n", st.severity(sev).Render(fmt.Sprintf("%s %s", severityIcon(sev), strings.ToUpper(sev.String()))))
		ew.println(strings.Repeat("─", 40))
		for _, f := range findings {
			ew.printf("\n  %s:%d  %s  %s\n", f.File, f.Line, f.Title, st.dim.Render("("+f.RuleID+")"))
			for _, line := range wrapText(f.Description, 70) {
				ew.printf("    %s\n", line)
			}
			if f.Fix != nil {
				ew.println("  Suggested fix:")
				before, after := highlightFix(st, f.File, f.Fix)
				ew.printf("    %s %s\n", st.removed.Render("-"), before)
				ew.printf("    %s %s\n", st.added.Render("+"), after)
			}
		}
	}

	if len(report.Deviations) > 0 {
		ew.printf("\n%s\n", st.header.Render(fmt.Sprintf("Convention deviations (%d)", len(report.Deviations))))
		ew.println(strings.Repeat("─", 40))
		for _, d := range report.Deviations {
			ew.printf("\n  %s:%d  %s  %s\n", d.File, d.Line, d.Title,
				st.dim.Render(fmt.Sprintf("(%s, %.0f%%)", d.Severity, d.Confidence*100)))
			for _, line := range wrapText(d.Description, 70) {
				ew.printf("    %s\n", line)
			}
			for _, ex := range d.Examples {
				ew.printf("    %s %s:%d  %s\n", st.dim.Render("e.g."), ex.Path, ex.Line, ex.Text)
			}
		}
	}

	if len(report.Hotspots) > 0 {
		ew.printf("\n%s\n", st.header.Render("Hotspots"))
		ew.println(strings.Repeat("─", 40))
		for i, h := range report.Hotspots {
			ew.printf("  %d. %-40s score %5.1f  (%d findings, %d changed lines)\n", i+1, h.Path, h.Score, h.Findings, h.Churn)
		}
	}

	if report.Summary != "" {
		ew.printf("\n%s\n", st.header.Render("Summary"))
		for _, line := range wrapText(report.Summary, 72) {
			ew.printf("  %s\n", line)
		}
	}

	if n := len(report.Metadata.Suppressions); n > 0 {
		ew.printf("\n%s\n", st.dim.Render(fmt.Sprintf("%d finding(s) suppressed by reviewlens:ignore", n)))
	}
	if len(report.Metadata.Warnings) > 0 {
		ew.printf("\n%s\n", st.header.Render("Warnings"))
		for _, wr := range report.Metadata.Warnings {
			loc := ""
			if wr.File != "" {
				loc = " " + wr.File + ":"
			}
			ew.printf("  - [%s]%s %s\n", wr.Kind, loc, wr.Message)
		}
	}

	tm := report.Metadata.Timings
	ew.printf("\n%s\n", strings.Repeat("─", ruleWidth))
	ew.printf("Completed in %dms (diff: %dms, rules: %dms, index: %dms, report: %dms)\n",
		tm.TotalMs, tm.DiffMs, tm.RulesMs, tm.IndexMs, tm.ReportMs)
	return ew.err
}

// highlightFix colours both sides of a fix with the file's syntax.
func highlightFix(st textStyles, path string, fix *model.Fix) (string, string) {
	lines := diff.HighlightLines(path, []string{fix.Before, fix.After})
	render := func(hl diff.HighlightedLine) string {
		var b strings.Builder
		for _, tok := range hl.Tokens {
			if tok.Color == "" {
				b.WriteString(tok.Text)
				continue
			}
			b.WriteString(st.r.NewStyle().Foreground(lipgloss.Color(tok.Color)).Render(tok.Text))
		}
		return b.String()
	}
	return render(lines[0]), render(lines[1])
}

func severityIcon(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "[!!!]"
	case model.SeverityHigh:
		return "[!!]"
	case model.SeverityMedium:
		return "[!]"
	case model.SeverityLow:
		return "[-]"
	default:
		return "[?]"
	}
}
