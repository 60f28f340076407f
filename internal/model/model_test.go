package model

import (
	"encoding/json"
	"testing"
)

func TestSeverityString(t *testing.T) {
	tests := []struct {
		level Severity
		want  string
	}{
		{SeverityLow, "low"},
		{SeverityMedium, "medium"},
		{SeverityHigh, "high"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"low", SeverityLow, false},
		{"MEDIUM", SeverityMedium, false},
		{" high ", SeverityHigh, false},
		{"critical", SeverityCritical, false},
		{"info", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSeverity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSeverity(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Error("critical should meet a high threshold")
	}
	if SeverityMedium.AtLeast(SeverityHigh) {
		t.Error("medium should not meet a high threshold")
	}
	if !SeverityLow.AtLeast(SeverityLow) {
		t.Error("a severity should meet its own threshold")
	}
}

func TestFindingJSONUsesSeverityNames(t *testing.T) {
	f := Finding{RuleID: "secrets", Severity: SeverityHigh, File: "a.go", Line: 3}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["severity"] != "high" {
		t.Errorf("severity = %v, want \"high\"", raw["severity"])
	}

	var back Finding
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal finding: %v", err)
	}
	if back.Severity != SeverityHigh {
		t.Errorf("round trip severity = %v", back.Severity)
	}
}

func TestReportMaxSeverityAndSummary(t *testing.T) {
	r := &Report{}
	if r.MaxSeverity() != 0 {
		t.Errorf("empty report max severity = %v, want 0", r.MaxSeverity())
	}
	if r.SummaryLine() != "No issues found" {
		t.Errorf("empty summary = %q", r.SummaryLine())
	}

	r.Findings = []Finding{
		{Severity: SeverityLow},
		{Severity: SeverityHigh},
		{Severity: SeverityHigh},
	}
	if r.MaxSeverity() != SeverityHigh {
		t.Errorf("max severity = %v, want high", r.MaxSeverity())
	}
	if got := r.SummaryLine(); got != "2 high, 1 low" {
		t.Errorf("summary = %q, want %q", got, "2 high, 1 low")
	}
}

func TestFindingKey(t *testing.T) {
	a := Finding{RuleID: "secrets", File: "a.go", Line: 1, Title: "x"}
	b := Finding{RuleID: "secrets", File: "a.go", Line: 1, Title: "y"}
	if a.Key() != b.Key() {
		t.Error("findings with the same rule, file and line should share a key")
	}
}
