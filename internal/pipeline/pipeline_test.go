package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
	"github.com/reviewlens/reviewlens/internal/source"
	"github.com/reviewlens/reviewlens/internal/telemetry"
)

// newFile renders a unified diff that creates path with lines.
func newFile(path string, lines ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\nnew file mode 100644\n--- /dev/null\n+++ b/%s\n", path, path, path)
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, l := range lines {
		b.WriteString("+" + l + "\n")
	}
	return b.String()
}

func run(t *testing.T, p *Pipeline, raw string) *model.Report {
	t.Helper()
	if p.Config.FailOn == "" {
		p.Config = config.Default()
	}
	r, err := p.Run(context.Background(), raw)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return r
}

func TestHardcodedSecret(t *testing.T) {
	r := run(t, &Pipeline{}, newFile("app/keys.go",
		`package app`,
		``,
		`apiKey = "AKIA...1234567890ABCD"`,
	))
	if len(r.Findings) != 1 {
		t.Fatalf("findings = %v", r.Findings)
	}
	f := r.Findings[0]
	if f.RuleID != "secrets" || f.Severity != model.SeverityHigh || f.File != "app/keys.go" || f.Line != 3 {
		t.Errorf("finding = %+v", f)
	}
	if !r.Complete || r.Incomplete != "" {
		t.Errorf("complete = %v %q", r.Complete, r.Incomplete)
	}
	if got := Classify(r, nil, "high"); got != OutcomeFindings {
		t.Errorf("Classify = %v", got)
	}
}

func TestConcatenatedQuery(t *testing.T) {
	r := run(t, &Pipeline{}, newFile("store/find.go",
		`query := "SELECT * FROM t WHERE id='" + id + "'"`,
		`rows, err := db.Query(query)`,
	))
	if len(r.Findings) != 1 {
		t.Fatalf("findings = %v", r.Findings)
	}
	f := r.Findings[0]
	if f.RuleID != "injection" || f.Line != 1 {
		t.Errorf("finding = %+v", f)
	}
	if !strings.Contains(f.Description, "parameterized") {
		t.Errorf("description does not mention parameterization: %q", f.Description)
	}
}

func TestSuppressedSecret(t *testing.T) {
	r := run(t, &Pipeline{}, newFile("app/keys.go",
		`package app`,
		`// reviewlens:ignore secrets`,
		`apiKey = "AKIA...1234567890ABCD"`,
	))
	if len(r.Findings) != 0 {
		t.Errorf("findings = %v", r.Findings)
	}
	want := []model.Suppression{{RuleID: "secrets", File: "app/keys.go", Line: 3, DirectiveLine: 2}}
	if diff := cmp.Diff(want, r.Metadata.Suppressions); diff != "" {
		t.Errorf("suppressions mismatch (-want +got):\n%s", diff)
	}
	if got := Classify(r, nil, "high"); got != OutcomePass {
		t.Errorf("Classify = %v", got)
	}
}

func TestHotspotsByChurnOnly(t *testing.T) {
	raw := newFile("pkg/a.go", "x := 1", "y := 2", "z := 3") +
		newFile("pkg/b.go", "w := 4") +
		newFile("docs/c.md", "# Title", "Body text.")
	r := run(t, &Pipeline{}, raw)

	if len(r.Findings) != 0 || len(r.Deviations) != 0 {
		t.Fatalf("findings = %v deviations = %v", r.Findings, r.Deviations)
	}
	want := []model.Hotspot{
		{Path: "pkg/a.go", Churn: 3, Score: 3},
		{Path: "docs/c.md", Churn: 2, Score: 2},
		{Path: "pkg/b.go", Churn: 1, Score: 1},
	}
	if diff := cmp.Diff(want, r.Hotspots); diff != "" {
		t.Errorf("hotspots mismatch (-want +got):\n%s", diff)
	}
	if r.Metadata.FilesReviewed != 3 {
		t.Errorf("files reviewed = %d", r.Metadata.FilesReviewed)
	}
}

func errorReturningTree() source.Map {
	var b strings.Builder
	b.WriteString("package store\n\n")
	for i := 0; i < 9; i++ {
		fmt.Fprintf(&b, "func Load%d(id string) (*Record, error) {\n\treturn nil, nil\n}\n\n", i)
	}
	b.WriteString("func size(id string) int {\n\treturn len(id)\n}\n")
	return source.Map{"store/store.go": []byte(b.String())}
}

func TestConventionDeviation(t *testing.T) {
	r := run(t, &Pipeline{Source: errorReturningTree()}, newFile("store/names.go",
		`package store`,
		``,
		`func formatName(name string) string {`,
		`	return strings.TrimSpace(name)`,
		`}`,
	))
	if len(r.Deviations) != 1 {
		t.Fatalf("deviations = %+v", r.Deviations)
	}
	d := r.Deviations[0]
	if d.File != "store/names.go" || d.Line != 3 || d.Expected != "returns-error" {
		t.Errorf("deviation = %+v", d)
	}
	if len(d.Examples) == 0 || d.Examples[0].Path != "store/store.go" {
		t.Errorf("examples = %+v", d.Examples)
	}
	if d.Confidence < 0.9 || d.Severity != model.SeverityMedium {
		t.Errorf("confidence = %v severity = %v", d.Confidence, d.Severity)
	}
}

func TestIndexPersistsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.zst")
	p := &Pipeline{Source: errorReturningTree(), IndexPath: path}
	raw := newFile("store/x.go", "package store")
	if r := run(t, p, raw); r.Metadata.IndexWarm {
		t.Error("first run should start cold")
	}
	if r := run(t, p, raw); !r.Metadata.IndexWarm {
		t.Error("second run should reuse the stored index")
	}

	p.NoIndex = true
	r := run(t, p, newFile("store/names.go", "func formatName(name string) string {"))
	if len(r.Deviations) != 0 {
		t.Errorf("--no-index still produced deviations: %v", r.Deviations)
	}
}

func TestBudgetExceededYieldsPartialReport(t *testing.T) {
	cfg := config.Default()
	cfg.Budget = time.Nanosecond
	r := run(t, &Pipeline{Config: cfg, Source: errorReturningTree()}, newFile("app/keys.go", `apiKey = "AKIA...1234567890ABCD"`))

	if r.Complete || r.Incomplete != ReasonBudget {
		t.Errorf("complete = %v reason = %q", r.Complete, r.Incomplete)
	}
	var found bool
	for _, w := range r.Metadata.Warnings {
		if w.Kind == model.WarnBudget {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v", r.Metadata.Warnings)
	}
	if Classify(r, nil, "none") != OutcomePass {
		t.Error("a partial report is not an error")
	}
}

func TestMalformedDiff(t *testing.T) {
	p := &Pipeline{Config: config.Default()}
	r, err := p.Run(context.Background(), "diff --git a/a.go b/a.go\n--- a/a.go\n+++ b/a.go\n@@ -1,5 +1,5 @@\n package a\n")
	var perr *diff.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *diff.ParseError", err)
	}
	if got := Classify(r, err, "high"); got != OutcomeRuntimeError {
		t.Errorf("Classify = %v", got)
	}
}

func TestTelemetryEvents(t *testing.T) {
	var buf bytes.Buffer
	p := &Pipeline{Telemetry: telemetry.New(&buf)}
	run(t, p, newFile("secret.txt", `api_key = "ABCDEFGHIJKLMNOP"`))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("events:\n%s", buf.String())
	}
	for i, want := range []string{`"event":"run_started"`, `"event":"finding"`, `"event":"run_finished"`} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("event %d = %s, want %s", i, lines[i], want)
		}
	}
}

func TestClassify(t *testing.T) {
	high := &model.Report{Findings: []model.Finding{{Severity: model.SeverityHigh}}}
	medium := &model.Report{Findings: []model.Finding{{Severity: model.SeverityMedium}}}
	empty := &model.Report{}

	tests := []struct {
		name   string
		r      *model.Report
		err    error
		failOn string
		want   Outcome
	}{
		{"high at high", high, nil, "high", OutcomeFindings},
		{"high at critical", high, nil, "critical", OutcomePass},
		{"medium at low", medium, nil, "low", OutcomeFindings},
		{"none never fails", high, nil, "none", OutcomePass},
		{"empty", empty, nil, "low", OutcomePass},
		{"config error", nil, fmt.Errorf("loading: %w", &config.Error{Key: "fail_on", Msg: "bad"}), "high", OutcomeConfigError},
		{"runtime error", nil, errors.New("git failed"), "high", OutcomeRuntimeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.r, tt.err, tt.failOn); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}
