// Package tui implements the Bubble Tea report browser.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

// Model is the top-level Bubble Tea model for the report browser.
type Model struct {
	report *model.Report
	set    *diff.Set

	findings   map[string][]model.Finding
	deviations map[string][]model.Deviation

	// files is the visible file list; it shrinks when onlyFindings is set.
	files        []*diff.File
	onlyFindings bool

	width  int
	height int

	fileIndex    int
	scrollOffset int
	viewHeight   int

	lines []renderedLine

	ignored map[string]model.Finding

	showHelp bool
}

// New creates a browser over a parsed diff and the report produced from it.
func New(set *diff.Set, report *model.Report) Model {
	if set == nil {
		set = &diff.Set{}
	}
	if report == nil {
		report = &model.Report{}
	}
	m := Model{
		report:     report,
		set:        set,
		findings:   map[string][]model.Finding{},
		deviations: map[string][]model.Deviation{},
		ignored:    map[string]model.Finding{},
	}
	for _, f := range report.Findings {
		m.findings[f.File] = append(m.findings[f.File], f)
	}
	for _, d := range report.Deviations {
		m.deviations[d.File] = append(m.deviations[d.File], d)
	}
	m.refreshFiles()
	return m
}

// refreshFiles rebuilds the visible file list, staying on the current
// file when it is still listed.
func (m *Model) refreshFiles() {
	var current string
	if m.fileIndex < len(m.files) {
		current = m.files[m.fileIndex].Path
	}
	m.files = nil
	m.fileIndex = 0
	for _, f := range m.set.Files {
		if m.onlyFindings && len(m.findings[f.Path]) == 0 && len(m.deviations[f.Path]) == 0 {
			continue
		}
		if f.Path == current {
			m.fileIndex = len(m.files)
		}
		m.files = append(m.files, f)
	}
	m.scrollOffset = 0
	m.updateLines()
}

func (m *Model) updateLines() {
	if len(m.files) == 0 {
		m.lines = nil
		return
	}
	f := m.files[m.fileIndex]
	m.lines = renderFile(f, m.findings[f.Path], m.deviations[f.Path])
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewHeight = m.height - 4 // status bar + borders
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Down):
			if m.scrollOffset < len(m.lines)-1 {
				m.scrollOffset++
			}

		case key.Matches(msg, keys.Up):
			if m.scrollOffset > 0 {
				m.scrollOffset--
			}

		case key.Matches(msg, keys.NextFile):
			if m.fileIndex < len(m.files)-1 {
				m.fileIndex++
				m.scrollOffset = 0
				m.updateLines()
			}

		case key.Matches(msg, keys.PrevFile):
			if m.fileIndex > 0 {
				m.fileIndex--
				m.scrollOffset = 0
				m.updateLines()
			}

		case key.Matches(msg, keys.NextFinding):
			m.jumpToNextFinding()

		case key.Matches(msg, keys.PrevFinding):
			m.jumpToPrevFinding()

		case key.Matches(msg, keys.Filter):
			m.onlyFindings = !m.onlyFindings
			m.refreshFiles()

		case key.Matches(msg, keys.Ignore):
			m.toggleIgnore()

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}
	}

	return m, nil
}

// jumpToNextFinding moves to the next finding, crossing into later files
// when the current one has no more.
func (m *Model) jumpToNextFinding() {
	for i := m.scrollOffset + 1; i < len(m.lines); i++ {
		if m.lines[i].Finding != nil {
			m.scrollOffset = i
			return
		}
	}
	for fi := m.fileIndex + 1; fi < len(m.files); fi++ {
		if len(m.findings[m.files[fi].Path]) == 0 {
			continue
		}
		m.fileIndex = fi
		m.updateLines()
		for i, rl := range m.lines {
			if rl.Finding != nil {
				m.scrollOffset = i
				return
			}
		}
	}
}

func (m *Model) jumpToPrevFinding() {
	for i := m.scrollOffset - 1; i >= 0; i-- {
		if m.lines[i].Finding != nil {
			m.scrollOffset = i
			return
		}
	}
}

// currentFinding is the first finding at or below the top visible line.
func (m *Model) currentFinding() (model.Finding, bool) {
	for i := m.scrollOffset; i < len(m.lines); i++ {
		if f := m.lines[i].Finding; f != nil {
			return *f, true
		}
	}
	return model.Finding{}, false
}

func (m *Model) toggleIgnore() {
	f, ok := m.currentFinding()
	if !ok {
		return
	}
	if _, done := m.ignored[f.Key()]; done {
		delete(m.ignored, f.Key())
		return
	}
	m.ignored[f.Key()] = f
}

// Result returns the triage decisions made so far.
func (m Model) Result() *Result {
	r := &Result{}
	for _, f := range m.ignored {
		r.Ignored = append(r.Ignored, f)
	}
	r.sort()
	return r
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	fileListWidth := m.fileListWidth()
	diffWidth := m.width - fileListWidth - 1

	fileList := m.renderFileList(fileListWidth, m.height-2)
	diffView := m.renderDiffView(diffWidth, m.height-2)

	main := lipgloss.JoinHorizontal(lipgloss.Top, fileList, " ", diffView)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) fileListWidth() int {
	maxLen := 20
	for _, f := range m.files {
		if n := len(f.Name()); n > maxLen {
			maxLen = n
		}
	}
	w := maxLen + 10
	if w > m.width/3 {
		w = m.width / 3
	}
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) renderFileList(width, height int) string {
	var b strings.Builder

	for i, f := range m.files {
		name := f.Name()
		maxName := width - 8
		if maxName > 0 && len(name) > maxName {
			name = "…" + name[len(name)-maxName+1:]
		}

		marker := " "
		if n := len(m.findings[f.Path]); n > 0 {
			marker = fmt.Sprintf("%d", min(n, 9))
		}
		line := fmt.Sprintf("%-*s %s", maxName, name, marker)

		var style lipgloss.Style
		switch {
		case i == m.fileIndex:
			style = fileItemSelectedStyle
		case len(m.findings[f.Path]) > 0:
			style = severityStyle(maxSeverity(m.findings[f.Path]))
		case len(m.deviations[f.Path]) > 0:
			style = deviationStyle
		case f.Kind == diff.KindDeleted || f.Kind == diff.KindBinary:
			style = fileItemCleanStyle
		default:
			style = fileItemStyle
		}

		b.WriteString(style.Width(width - 4).Render(line))
		if i < len(m.files)-1 {
			b.WriteByte('\n')
		}
	}

	return fileListStyle.Width(width).Height(height - 2).Render(b.String())
}

func maxSeverity(fs []model.Finding) model.Severity {
	var s model.Severity
	for _, f := range fs {
		if f.Severity > s {
			s = f.Severity
		}
	}
	return s
}

func (m Model) renderDiffView(width, height int) string {
	innerHeight := height - 2
	if len(m.files) == 0 {
		msg := "No changes"
		if m.onlyFindings {
			msg = "No files with findings"
		}
		return diffViewStyle.Width(width).Height(innerHeight).Render(msg)
	}

	f := m.files[m.fileIndex]
	innerWidth := width - 4

	visibleLines := innerHeight - 2
	if visibleLines < 1 {
		visibleLines = 1
	}

	var b strings.Builder
	b.WriteString(fileHeaderStyle.Render(f.Name()))
	b.WriteByte('\n')

	end := min(m.scrollOffset+visibleLines, len(m.lines))
	for i := m.scrollOffset; i < end; i++ {
		rl := m.lines[i]
		ignored := false
		if rl.Finding != nil {
			_, ignored = m.ignored[rl.Finding.Key()]
		}
		b.WriteString(styleLine(rl, innerWidth, ignored))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}

	return diffViewStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderStatusBar() string {
	left := fmt.Sprintf(" File %d/%d", min(m.fileIndex+1, len(m.files)), len(m.files))
	if len(m.lines) > 0 {
		left += fmt.Sprintf("  Line %d/%d", m.scrollOffset+1, len(m.lines))
	}

	right := m.report.SummaryLine()
	if len(m.ignored) > 0 {
		right += fmt.Sprintf("  %d ignored", len(m.ignored))
	}
	if !m.report.Complete && m.report.Incomplete != "" {
		right += "  incomplete: " + m.report.Incomplete
	}
	right += "  ? help "

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(fileHeaderStyle.Render("reviewlens: keyboard shortcuts"))
	b.WriteString("\n\n")

	for _, k := range []key.Binding{
		keys.Up, keys.Down, keys.NextFile, keys.PrevFile,
		keys.NextFinding, keys.PrevFinding, keys.Filter, keys.Ignore,
		keys.Help, keys.Quit,
	} {
		h := k.Help()
		fmt.Fprintf(&b, "  %s  %s\n", helpKeyStyle.Width(12).Render(h.Key), h.Desc)
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))
	return b.String()
}

// Run opens the browser and returns the triage result when it closes.
func Run(set *diff.Set, report *model.Report) (*Result, error) {
	p := tea.NewProgram(New(set, report), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	if m, ok := final.(Model); ok {
		return m.Result(), nil
	}
	return &Result{}, nil
}
