package conventions

import (
	"fmt"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

// Defaults for deviation detection.
const (
	DefaultThreshold  = 0.5
	DefaultMinSamples = 3

	strongShare = 0.9
)

// RuleID is attached to deviations surfaced alongside findings.
const RuleID = "conventions"

var idiomLabels = map[string]string{
	IdiomStructured:   "structured logging",
	IdiomUnstructured: "unstructured print output",
	IdiomReturnsError: "an explicit error result",
	IdiomNoError:      "no error result",
	IdiomPropagate:    "returned errors",
	IdiomAbort:        "process-aborting error handling",
	IdiomContextFirst: "a leading context.Context parameter",
	IdiomNoContext:    "no context parameter",
}

var categoryNouns = map[string]string{
	CategoryLogging:       "log calls",
	CategoryErrorReturn:   "functions",
	CategoryErrorHandling: "error-handling sites",
	CategoryContextParam:  "functions with parameters",
}

// DetectOptions configures Detect.
type DetectOptions struct {
	Threshold  float64
	MinSamples int
	Allow      func(path string) bool
}

// Detect compares every added line of files with the profile and returns a
// Deviation for each occurrence of a non-dominant idiom.
func Detect(p *Profile, files []*diff.File, opts DetectOptions) []model.Deviation {
	if p == nil {
		return nil
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	minSamples := opts.MinSamples
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}

	var out []model.Deviation
	for _, f := range files {
		if f.Kind == diff.KindBinary || f.Kind == diff.KindDeleted {
			continue
		}
		if opts.Allow != nil && !opts.Allow(f.Path) {
			continue
		}
		for _, h := range f.Hunks {
			for _, l := range h.Lines {
				if l.Kind != diff.LineAdded {
					continue
				}
				for _, o := range ClassifyLine(f.Path, l.Text, l.NewNum) {
					if d, ok := deviation(p, f.Path, o, threshold, minSamples); ok {
						out = append(out, d)
					}
				}
			}
		}
	}
	return out
}

func deviation(p *Profile, path string, o Occurrence, threshold float64, minSamples int) (model.Deviation, bool) {
	dominant, share, ok := p.Dominant(o.Category, threshold, minSamples)
	if !ok || dominant == o.Idiom {
		return model.Deviation{}, false
	}
	cat := p.Categories[o.Category]
	examples := cat.Idioms[dominant].Examples
	if len(examples) == 0 {
		return model.Deviation{}, false
	}
	sev := model.SeverityLow
	if share >= strongShare {
		sev = model.SeverityMedium
	}
	desc := fmt.Sprintf("%.0f%% of %d indexed %s use %s; this change uses %s.",
		share*100, cat.Total, categoryNouns[o.Category], idiomLabels[dominant], idiomLabels[o.Idiom])
	return model.Deviation{
		Category:    o.Category,
		Expected:    dominant,
		Observed:    o.Idiom,
		Severity:    sev,
		Confidence:  share,
		File:        path,
		Line:        o.Line,
		Title:       "Departs from codebase convention: " + o.Category,
		Description: desc,
		Examples:    append([]model.Example(nil), examples...),
	}, true
}
