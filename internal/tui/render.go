package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

// renderedLine is a single line of the file view ready for display.
type renderedLine struct {
	OldNum  int // 0 for added lines
	NewNum  int // 0 for removed lines
	Kind    diff.LineKind
	Content string
	IsHunk  bool

	// Syntax highlighting tokens (nil = no highlighting)
	Tokens []diff.Token

	// Annotations sit below the line they refer to.
	Finding   *model.Finding
	Deviation *model.Deviation
	IsFix     bool
}

func (rl renderedLine) annotation() bool {
	return rl.Finding != nil || rl.Deviation != nil || rl.IsFix
}

// renderFile produces the lines for one file with its findings, fixes and
// deviations attached after the lines they flag.
func renderFile(f *diff.File, findings []model.Finding, devs []model.Deviation) []renderedLine {
	byLine := map[int][]model.Finding{}
	for _, fd := range findings {
		byLine[fd.Line] = append(byLine[fd.Line], fd)
	}
	devByLine := map[int][]model.Deviation{}
	for _, d := range devs {
		devByLine[d.Line] = append(devByLine[d.Line], d)
	}

	var contentLines []string
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			contentLines = append(contentLines, l.Text)
		}
	}
	highlighted := diff.HighlightLines(f.Path, contentLines)
	hlIdx := 0

	var lines []renderedLine
	for i, h := range f.Hunks {
		lines = append(lines, renderedLine{IsHunk: true, Content: h.Header()})
		for _, l := range h.Lines {
			rl := renderedLine{Kind: l.Kind, Content: l.Text, OldNum: l.OldNum, NewNum: l.NewNum}
			if hlIdx < len(highlighted) {
				rl.Tokens = highlighted[hlIdx].Tokens
				hlIdx++
			}
			lines = append(lines, rl)
			if l.Kind == diff.LineRemoved {
				continue
			}
			for _, fd := range byLine[l.NewNum] {
				lines = append(lines, findingLines(fd)...)
			}
			delete(byLine, l.NewNum)
			for _, d := range devByLine[l.NewNum] {
				lines = append(lines, renderedLine{Deviation: &d, Content: fmt.Sprintf("≈ %s (expected %s)", d.Title, d.Expected)})
			}
			delete(devByLine, l.NewNum)
		}
		if i < len(f.Hunks)-1 {
			lines = append(lines, renderedLine{})
		}
	}

	// Findings on lines outside every hunk still need a home.
	var rest []int
	for n := range byLine {
		rest = append(rest, n)
	}
	sort.Ints(rest)
	for _, n := range rest {
		for _, fd := range byLine[n] {
			lines = append(lines, findingLines(fd)...)
		}
	}
	return lines
}

func findingLines(fd model.Finding) []renderedLine {
	out := []renderedLine{{
		Finding: &fd,
		Content: fmt.Sprintf("▲ [%s] %s (%s)", fd.Severity, fd.Title, fd.RuleID),
	}}
	if fd.Fix == nil {
		return out
	}
	for _, l := range strings.Split(fd.Fix.Before, "\n") {
		out = append(out, renderedLine{IsFix: true, Kind: diff.LineRemoved, Content: l})
	}
	for _, l := range strings.Split(fd.Fix.After, "\n") {
		out = append(out, renderedLine{IsFix: true, Kind: diff.LineAdded, Content: l})
	}
	return out
}

// renderHighlightedContent renders line content with syntax tokens.
func renderHighlightedContent(rl renderedLine, prefix string) string {
	if len(rl.Tokens) == 0 {
		return prefix + rl.Content
	}

	var b strings.Builder
	b.WriteString(prefix)
	for _, tok := range rl.Tokens {
		if tok.Color != "" {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(tok.Color)).Render(tok.Text))
		} else {
			b.WriteString(tok.Text)
		}
	}
	return b.String()
}

// styleLine applies styling to a rendered line.
func styleLine(rl renderedLine, width int, ignored bool) string {
	switch {
	case rl.Finding != nil:
		style := severityStyle(rl.Finding.Severity)
		if ignored {
			style = ignoredStyle
		}
		return "          " + style.Render(truncate(rl.Content, width-12))
	case rl.Deviation != nil:
		return "          " + deviationStyle.Render(truncate(rl.Content, width-12))
	case rl.IsFix:
		prefix, style := "    - ", deletedLineStyle
		if rl.Kind == diff.LineAdded {
			prefix, style = "    + ", addedLineStyle
		}
		return "          " + style.Render(truncate(prefix+rl.Content, width-12))
	case rl.IsHunk:
		return hunkHeaderStyle.Width(width).Render(rl.Content)
	}

	oldNum, newNum := "    ", "    "
	if rl.OldNum > 0 {
		oldNum = fmt.Sprintf("%4d", rl.OldNum)
	}
	if rl.NewNum > 0 {
		newNum = fmt.Sprintf("%4d", rl.NewNum)
	}
	lineNums := lineNumberStyle.Render(oldNum) + " " + lineNumberStyle.Render(newNum)

	maxContent := width - 12
	var content string
	switch rl.Kind {
	case diff.LineAdded:
		content = addedLineStyle.Render(truncate("+"+rl.Content, maxContent))
	case diff.LineRemoved:
		content = deletedLineStyle.Render(truncate("-"+rl.Content, maxContent))
	default:
		content = renderHighlightedContent(rl, " ")
		if maxContent > 0 && lipgloss.Width(content) > maxContent {
			content = truncate(" "+rl.Content, maxContent)
		}
	}
	return lineNums + " " + content
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
