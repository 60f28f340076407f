package pipeline

import (
	"errors"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/model"
)

// Outcome is the process exit status of a review.
type Outcome int

const (
	OutcomePass         Outcome = 0
	OutcomeFindings     Outcome = 1
	OutcomeConfigError  Outcome = 2
	OutcomeRuntimeError Outcome = 3
)

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeFindings:
		return "findings"
	case OutcomeConfigError:
		return "config error"
	case OutcomeRuntimeError:
		return "runtime error"
	default:
		return "unknown"
	}
}

// Classify maps the result of a run to its outcome.
func Classify(r *model.Report, err error, failOn string) Outcome {
	if err != nil {
		var cerr *config.Error
		if errors.As(err, &cerr) {
			return OutcomeConfigError
		}
		return OutcomeRuntimeError
	}
	if r == nil {
		return OutcomeRuntimeError
	}
	if Passed(r, failOn) {
		return OutcomePass
	}
	return OutcomeFindings
}

// Passed reports whether every surfaced finding is below failOn. An
// unrecognised threshold behaves like "high".
func Passed(r *model.Report, failOn string) bool {
	if failOn == config.FailOnNone {
		return true
	}
	threshold, err := model.ParseSeverity(failOn)
	if err != nil {
		threshold = model.SeverityHigh
	}
	return !r.MaxSeverity().AtLeast(threshold)
}
