package output

import (
	"io"
	"strings"

	"github.com/reviewlens/reviewlens/internal/model"
)

// MarkdownWriter outputs a PR-comment-friendly markdown report.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *model.Report) error {
	ew := &errWriter{w: w}
	counts := report.Counts()

	ew.printf("## reviewlens review\n\n")
	if !report.Complete {
		ew.printf("> :warning: **Incomplete:** %s. Results below are partial.\n\n", report.Incomplete)
	}

	ew.printf("| Severity | Count |\n")
	ew.printf("|----------|-------|\n")
	for _, sev := range severityOrder {
		ew.printf("| %s | %d |\n", strings.ToUpper(sev.String()[:1])+sev.String()[1:], counts[sev])
	}
	ew.printf("| **Total** | **%d** |\n\n", len(report.Findings))

	if report.Summary != "" {
		ew.printf("%s\n\n", report.Summary)
	}

	if len(report.Findings) == 0 {
		ew.println("No issues found. :white_check_mark:\n")
	}
	grouped := groupBySeverity(report.Findings)
	for _, sev := range severityOrder {
		findings := grouped[sev]
		if len(findings) == 0 {
			continue
		}
		ew.printf("<details>\n<summary>%s %s (%d)</summary>\n\n", mdSeverityIcon(sev), strings.ToUpper(sev.String()), len(findings))
		for _, f := range findings {
			ew.printf("### %s\n\n", f.Title)
			ew.printf("**`%s:%d`** | `%s`\n\n", f.File, f.Line, f.RuleID)
			ew.printf("%s\n\n", f.Description)
			if f.Fix != nil {
				ew.printf("**Suggested fix:**\n\n```diff\n- %s\n+ %s\n```\n\n", f.Fix.Before, f.Fix.After)
			}
			for _, ref := range f.References {
				ew.printf("- %s\n", ref)
			}
			if len(f.References) > 0 {
				ew.printf("\n")
			}
			ew.printf("---\n\n")
		}
		ew.printf("</details>\n\n")
	}

	if len(report.Deviations) > 0 {
		ew.printf("### Convention deviations\n\n")
		for _, d := range report.Deviations {
			ew.printf("- **`%s:%d`** %s (%s, %.0f%% of the codebase)\n", d.File, d.Line, d.Description, d.Severity, d.Confidence*100)
			for _, ex := range d.Examples {
				ew.printf("  - e.g. `%s:%d`: `%s`\n", ex.Path, ex.Line, strings.ReplaceAll(ex.Text, "`", "'"))
			}
		}
		ew.printf("\n")
	}

	if len(report.Hotspots) > 0 {
		ew.printf("### Hotspots\n\n")
		ew.printf("| File | Score | Findings | Changed lines |\n")
		ew.printf("|------|-------|----------|---------------|\n")
		for _, h := range report.Hotspots {
			ew.printf("| `%s` | %.1f | %d | %d |\n", h.Path, h.Score, h.Findings, h.Churn)
		}
		ew.printf("\n")
	}

	if report.Diagram != nil {
		ew.printf("### Cross-file interactions\n\n```%s\n%s```\n\n", report.Diagram.Kind, report.Diagram.Source)
	}

	if n := len(report.Metadata.Suppressions); n > 0 {
		ew.printf("<details>\n<summary>Suppressed (%d)</summary>\n\n", n)
		for _, s := range report.Metadata.Suppressions {
			reason := ""
			if s.Reason != "" {
				reason = ": " + s.Reason
			}
			ew.printf("- `%s` at `%s:%d`%s\n", s.RuleID, s.File, s.Line, reason)
		}
		ew.printf("\n</details>\n\n")
	}

	if len(report.Metadata.Warnings) > 0 {
		ew.printf("**Warnings:**\n\n")
		for _, wr := range report.Metadata.Warnings {
			ew.printf("- `%s` %s\n", wr.Kind, wr.Message)
		}
		ew.printf("\n")
	}

	ew.printf("*Reviewed %d file(s) in %dms with ruleset %s*\n",
		report.Metadata.FilesReviewed, report.Metadata.Timings.TotalMs, report.Metadata.RulesetVersion)
	return ew.err
}

func mdSeverityIcon(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return ":rotating_light:"
	case model.SeverityHigh:
		return ":red_circle:"
	case model.SeverityMedium:
		return ":orange_circle:"
	case model.SeverityLow:
		return ":yellow_circle:"
	default:
		return ":white_circle:"
	}
}
