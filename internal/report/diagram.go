package report

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

// MinDiagramFiles is the number of interacting files needed for a diagram.
const MinDiagramFiles = 3

const minStemLength = 3

var funcDefRes = []*regexp.Regexp{
	regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)\s*[\[(]`),
	regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`),
	regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$][\w$]*)\s*\(`),
	regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+([A-Za-z_]\w*)`),
}

type edge struct {
	from, to string
	via      string
}

// buildDiagram returns a mermaid sequence diagram of the changed files
// whose added lines mention each other's file stems or newly defined
// functions, or nil when fewer than MinDiagramFiles files take part.
func buildDiagram(set *diff.Set) *model.Diagram {
	if set == nil {
		return nil
	}
	var files []*diff.File
	for _, f := range set.Files {
		if f.Kind != diff.KindBinary && f.Kind != diff.KindDeleted {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	defined := make(map[string][]string, len(files))
	for _, f := range files {
		defined[f.Path] = definedFuncs(f)
	}

	var edges []edge
	for _, from := range files {
		text := addedText(from)
		for _, to := range files {
			if to == from {
				continue
			}
			if via, ok := references(text, to.Path, defined[to.Path]); ok {
				edges = append(edges, edge{from: from.Path, to: to.Path, via: via})
			}
		}
	}

	participants := map[string]bool{}
	for _, e := range edges {
		participants[e.from] = true
		participants[e.to] = true
	}
	if len(participants) < MinDiagramFiles {
		return nil
	}

	alias := map[string]string{}
	var b strings.Builder
	b.WriteString("sequenceDiagram\n")
	n := 0
	for _, f := range files {
		if !participants[f.Path] {
			continue
		}
		n++
		alias[f.Path] = fmt.Sprintf("F%d", n)
		fmt.Fprintf(&b, "    participant %s as %s\n", alias[f.Path], f.Path)
	}
	for _, e := range edges {
		fmt.Fprintf(&b, "    %s->>%s: %s\n", alias[e.from], alias[e.to], e.via)
	}
	return &model.Diagram{Kind: "mermaid", Source: b.String()}
}

func definedFuncs(f *diff.File) []string {
	var out []string
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			if l.Kind != diff.LineAdded {
				continue
			}
			for _, re := range funcDefRes {
				if m := re.FindStringSubmatch(l.Text); m != nil {
					out = append(out, m[1])
					break
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// addedText joins the added lines that do not define functions, so a
// definition never counts as a reference to itself.
func addedText(f *diff.File) string {
	var b strings.Builder
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			if l.Kind == diff.LineAdded && !isDefinition(l.Text) {
				b.WriteString(l.Text)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

func isDefinition(line string) bool {
	for _, re := range funcDefRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func references(text, target string, funcs []string) (string, bool) {
	for _, fn := range funcs {
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(fn) + `\s*\(`).MatchString(text) {
			return fn + "()", true
		}
	}
	stem := strings.TrimSuffix(path.Base(target), path.Ext(target))
	if len(stem) >= minStemLength && regexp.MustCompile(`\b`+regexp.QuoteMeta(stem)+`\b`).MatchString(text) {
		return stem, true
	}
	return "", false
}
