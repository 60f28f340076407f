package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/conventions"
	"github.com/reviewlens/reviewlens/internal/model"
)

// SARIFWriter outputs findings in SARIF v2.1.0 format.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *model.Report) error {
	data, err := json.MarshalIndent(buildSARIF(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
	Fixes     []sarifFix      `json:"fixes,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

type sarifFix struct {
	Description sarifMessage `json:"description"`
}

// buildSARIF lists every registered rule, then the findings and
// deviations as results.
func buildSARIF(report *model.Report) sarifLog {
	var rules []sarifRule
	for _, s := range analysis.Registry() {
		rules = append(rules, sarifRule{
			ID:               s.ID(),
			Name:             s.ID(),
			ShortDescription: sarifMessage{Text: s.Title()},
			DefaultConfig:    sarifDefaultConfig{Level: severityToLevel(s.DefaultSeverity())},
		})
	}
	rules = append(rules, sarifRule{
		ID:               conventions.RuleID,
		Name:             conventions.RuleID,
		ShortDescription: sarifMessage{Text: "Departs from codebase convention"},
		DefaultConfig:    sarifDefaultConfig{Level: "note"},
	})

	results := []sarifResult{}
	for _, f := range report.Findings {
		r := sarifResult{
			RuleID:    f.RuleID,
			Level:     severityToLevel(f.Severity),
			Message:   sarifMessage{Text: f.Title + ": " + f.Description},
			Locations: []sarifLocation{location(f.File, f.Line)},
		}
		if f.Fix != nil {
			r.Fixes = []sarifFix{{Description: sarifMessage{Text: fmt.Sprintf("Replace %q with %q", f.Fix.Before, f.Fix.After)}}}
		}
		results = append(results, r)
	}
	for _, d := range report.Deviations {
		results = append(results, sarifResult{
			RuleID:    conventions.RuleID,
			Level:     severityToLevel(d.Severity),
			Message:   sarifMessage{Text: d.Description},
			Locations: []sarifLocation{location(d.File, d.Line)},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    report.Tool,
				Version: report.Version,
				Rules:   rules,
			}},
			Results: results,
		}},
	}
}

func location(file string, line int) sarifLocation {
	return sarifLocation{PhysicalLocation: sarifPhysicalLocation{
		ArtifactLocation: sarifArtifactLocation{URI: file},
		Region:           sarifRegion{StartLine: line},
	}}
}

func severityToLevel(s model.Severity) string {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
