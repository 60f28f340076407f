// Package hotspot ranks changed files by finding count and churn.
package hotspot

import (
	"sort"

	"github.com/reviewlens/reviewlens/internal/model"
)

// Defaults.
const (
	DefaultSeverityWeight = 3.0
	DefaultChurnWeight    = 1.0
	DefaultTopK           = 5
)

// Weights scales the two score components.
type Weights struct {
	Severity float64
	Churn    float64
}

// DefaultWeights returns the default weights.
func DefaultWeights() Weights {
	return Weights{Severity: DefaultSeverityWeight, Churn: DefaultChurnWeight}
}

// Rank scores every changed file as
//
//	Severity*findings + Churn*changed lines
//
// and returns the topK highest, ties broken by path. A topK of zero or less
// keeps every file. Findings on files outside churn still produce an entry.
func Rank(findings []model.Finding, churn map[string]int, w Weights, topK int) []model.Hotspot {
	counts := make(map[string]int, len(churn))
	for _, f := range findings {
		counts[f.File]++
	}
	paths := make(map[string]bool, len(churn)+len(counts))
	for p := range churn {
		paths[p] = true
	}
	for p := range counts {
		paths[p] = true
	}

	out := make([]model.Hotspot, 0, len(paths))
	for p := range paths {
		out = append(out, model.Hotspot{
			Path:     p,
			Findings: counts[p],
			Churn:    churn[p],
			Score:    w.Severity*float64(counts[p]) + w.Churn*float64(churn[p]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Path < out[j].Path
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
