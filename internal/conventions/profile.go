package conventions

import (
	"sort"

	"github.com/reviewlens/reviewlens/internal/model"
)

// MaxExamples bounds the examples kept per idiom.
const MaxExamples = 3

// IdiomStats counts one idiom and keeps a few places it was seen.
type IdiomStats struct {
	Count    int             `json:"count"`
	Examples []model.Example `json:"examples"`
}

// CategoryProfile aggregates the idioms of one category.
type CategoryProfile struct {
	Total  int                   `json:"total"`
	Idioms map[string]IdiomStats `json:"idioms"`
}

// Profile is the aggregate of a snapshot's contributions.
type Profile struct {
	Files      int                        `json:"files"`
	Categories map[string]CategoryProfile `json:"categories"`
}

// Profile aggregates the snapshot in path order, leaving out the paths
// for which exclude returns true.
func (s *Snapshot) Profile(exclude func(path string) bool) *Profile {
	p := &Profile{Categories: map[string]CategoryProfile{}}
	if s == nil {
		return p
	}
	paths := make([]string, 0, len(s.Files))
	for path := range s.Files {
		if exclude == nil || !exclude(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		p.Files++
		for _, o := range s.Files[path].Occurrences {
			cat := p.Categories[o.Category]
			if cat.Idioms == nil {
				cat.Idioms = map[string]IdiomStats{}
			}
			st := cat.Idioms[o.Idiom]
			st.Count++
			if len(st.Examples) < MaxExamples {
				st.Examples = append(st.Examples, model.Example{Path: path, Line: o.Line, Text: o.Text})
			}
			cat.Idioms[o.Idiom] = st
			cat.Total++
			p.Categories[o.Category] = cat
		}
	}
	return p
}

// Dominant returns the idiom of category holding at least threshold of the
// samples and a strict majority, provided there are minSamples samples.
func (p *Profile) Dominant(category string, threshold float64, minSamples int) (string, float64, bool) {
	cat, ok := p.Categories[category]
	if !ok || cat.Total == 0 || cat.Total < minSamples {
		return "", 0, false
	}
	var best string
	bestCount := 0
	for idiom, st := range cat.Idioms {
		if st.Count > bestCount || (st.Count == bestCount && idiom < best) {
			best, bestCount = idiom, st.Count
		}
	}
	share := float64(bestCount) / float64(cat.Total)
	if share < threshold || bestCount*2 <= cat.Total {
		return "", share, false
	}
	return best, share, true
}
