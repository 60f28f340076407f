package tui

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/reviewlens/reviewlens/internal/model"
	"github.com/reviewlens/reviewlens/internal/suppress"
)

// Result holds the outcome of an interactive session.
type Result struct {
	Ignored []model.Finding
}

func (r *Result) sort() {
	sort.Slice(r.Ignored, func(i, j int) bool {
		a, b := r.Ignored[i], r.Ignored[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.RuleID < b.RuleID
	})
}

// Directives returns one suggested ignore comment per marked finding, as
// "file:line: comment", to be inserted above the flagged line.
func (r *Result) Directives() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, f := range r.Ignored {
		out = append(out, fmt.Sprintf("%s:%d: %s", f.File, f.Line, directive(f)))
	}
	return out
}

func directive(f model.Finding) string {
	text := fmt.Sprintf("%s %s reviewed: %s", suppress.Marker, f.RuleID, strings.ToLower(f.Title))
	prefix := commentPrefix(f.File)
	if prefix == "/*" {
		return "/* " + text + " */"
	}
	return prefix + " " + text
}

// commentPrefix picks a line comment style the directive parser accepts.
func commentPrefix(file string) string {
	switch strings.ToLower(path.Ext(file)) {
	case ".py", ".rb", ".sh", ".bash", ".yaml", ".yml", ".toml", ".pl", ".r", ".ex", ".exs":
		return "#"
	case ".sql", ".lua", ".hs":
		return "--"
	case ".css":
		return "/*"
	default:
		return "//"
	}
}
