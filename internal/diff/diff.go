// Package diff parses unified diffs into files, hunks and numbered lines.
package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// ChangeKind describes what happened to a file.
type ChangeKind int

const (
	KindModified ChangeKind = iota
	KindAdded
	KindDeleted
	KindRenamed
	KindBinary
)

func (k ChangeKind) String() string {
	switch k {
	case KindAdded:
		return "added"
	case KindDeleted:
		return "deleted"
	case KindRenamed:
		return "renamed"
	case KindBinary:
		return "binary"
	default:
		return "modified"
	}
}

// LineKind classifies a line within a hunk.
type LineKind int

const (
	LineContext LineKind = iota
	LineAdded
	LineRemoved
)

// Line is one line of a hunk. NewNum is 0 for removed lines and OldNum is
// 0 for added lines.
type Line struct {
	Kind   LineKind
	Text   string
	NewNum int
	OldNum int
}

// Hunk is a contiguous block of changes with its old and new ranges.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Comment  string
	Lines    []Line
}

// Header renders the @@ line for the hunk.
func (h *Hunk) Header() string {
	old := fmt.Sprintf("-%d", h.OldStart)
	if h.OldLines != 1 {
		old += fmt.Sprintf(",%d", h.OldLines)
	}
	nw := fmt.Sprintf("+%d", h.NewStart)
	if h.NewLines != 1 {
		nw += fmt.Sprintf(",%d", h.NewLines)
	}
	header := fmt.Sprintf("@@ %s %s @@", old, nw)
	if h.Comment != "" {
		header += " " + h.Comment
	}
	return header
}

// LineAt returns the added or context line carrying new-file number n.
func (h *Hunk) LineAt(n int) (Line, bool) {
	for _, l := range h.Lines {
		if l.NewNum == n && l.Kind != LineRemoved {
			return l, true
		}
	}
	return Line{}, false
}

// File is a single file in a diff.
type File struct {
	Path         string
	OldPath      string // set for renames
	Kind         ChangeKind
	Hunks        []*Hunk
	AddedLines   int
	DeletedLines int
}

// Name returns the display name for the file.
func (f *File) Name() string {
	if f.Kind == KindRenamed && f.OldPath != "" {
		return fmt.Sprintf("%s → %s", f.OldPath, f.Path)
	}
	return f.Path
}

// Churn is the number of added plus deleted lines.
func (f *File) Churn() int {
	return f.AddedLines + f.DeletedLines
}

// LineAt returns the added or context line carrying new-file number n.
func (f *File) LineAt(n int) (Line, bool) {
	for _, h := range f.Hunks {
		if n < h.NewStart || n >= h.NewStart+h.NewLines {
			continue
		}
		if l, ok := h.LineAt(n); ok {
			return l, true
		}
	}
	return Line{}, false
}

// Set holds every file of a parsed diff.
type Set struct {
	Files []*File
	Raw   string
}

// Stats returns aggregate statistics.
func (s *Set) Stats() (files, added, deleted int) {
	files = len(s.Files)
	for _, f := range s.Files {
		added += f.AddedLines
		deleted += f.DeletedLines
	}
	return
}

// Churn returns changed line counts keyed by path.
func (s *Set) Churn() map[string]int {
	m := make(map[string]int, len(s.Files))
	for _, f := range s.Files {
		m[f.Path] += f.Churn()
	}
	return m
}

// Paths returns the path of every file in diff order.
func (s *Set) Paths() []string {
	out := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		out = append(out, f.Path)
	}
	return out
}

// File returns the file with the given path, or nil.
func (s *Set) File(path string) *File {
	for _, f := range s.Files {
		if f.Path == path {
			return f
		}
	}
	return nil
}

// ParseError reports malformed diff input.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed diff at line %d (%q): %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("malformed diff: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var gitdiffLineRe = regexp.MustCompile(`line (\d+)`)

// Parse reads a unified diff. Empty input yields an empty Set; input that
// is not empty but contains no file headers is a ParseError.
func Parse(raw string) (*Set, error) {
	s := &Set{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return s, nil
	}

	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, newParseError(raw, err)
	}
	if len(parsed) == 0 {
		return nil, &ParseError{Line: 1, Text: firstLine(raw), Err: fmt.Errorf("no file headers found")}
	}

	for _, gf := range parsed {
		s.Files = append(s.Files, convertFile(gf))
	}
	return s, nil
}

func convertFile(gf *gitdiff.File) *File {
	f := &File{Path: gf.NewName}
	switch {
	case gf.IsBinary:
		f.Kind = KindBinary
	case gf.IsNew:
		f.Kind = KindAdded
	case gf.IsDelete:
		f.Kind = KindDeleted
		f.Path = gf.OldName
	case gf.IsRename:
		f.Kind = KindRenamed
		f.OldPath = gf.OldName
	}
	if f.Path == "" {
		f.Path = gf.OldName
	}
	if f.Kind == KindBinary {
		if gf.IsDelete {
			f.Path = gf.OldName
		}
		return f
	}

	for _, frag := range gf.TextFragments {
		h := &Hunk{
			OldStart: int(frag.OldPosition),
			OldLines: int(frag.OldLines),
			NewStart: int(frag.NewPosition),
			NewLines: int(frag.NewLines),
			Comment:  frag.Comment,
		}
		oldNum := int(frag.OldPosition)
		newNum := int(frag.NewPosition)
		for _, gl := range frag.Lines {
			l := Line{Text: strings.TrimRight(gl.Line, "\r\n")}
			switch gl.Op {
			case gitdiff.OpAdd:
				l.Kind = LineAdded
				l.NewNum = newNum
				newNum++
				f.AddedLines++
			case gitdiff.OpDelete:
				l.Kind = LineRemoved
				l.OldNum = oldNum
				oldNum++
				f.DeletedLines++
			default:
				l.Kind = LineContext
				l.OldNum = oldNum
				l.NewNum = newNum
				oldNum++
				newNum++
			}
			h.Lines = append(h.Lines, l)
		}
		f.Hunks = append(f.Hunks, h)
	}
	return f
}

func newParseError(raw string, err error) *ParseError {
	pe := &ParseError{Err: err}
	if m := gitdiffLineRe.FindStringSubmatch(err.Error()); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			pe.Line = n
			lines := strings.Split(raw, "\n")
			if n >= 1 && n <= len(lines) {
				pe.Text = lines[n-1]
			}
		}
	}
	return pe
}

func firstLine(raw string) string {
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		return raw[:i]
	}
	return raw
}
