// Package providers implements report summarizers backed by hosted
// language models.
package providers

import (
	"fmt"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/report"
)

const maxSummaryTokens = 512

// New returns the summarizer selected by cfg, or nil when summaries are
// disabled.
func New(cfg config.SummaryConfig) (report.Summarizer, error) {
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.Model, cfg.BaseURL)
	case config.ProviderAnthropic:
		return NewAnthropic(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown summary provider: %s", cfg.Provider)
	}
}
