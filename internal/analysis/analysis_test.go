package analysis

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
)

// addedDiff builds a diff that adds lines to a new file.
func addedDiff(path string, lines ...string) string {
	var b strings.Builder
	b.WriteString("diff --git a/" + path + " b/" + path + "\n")
	b.WriteString("new file mode 100644\n")
	b.WriteString("--- /dev/null\n")
	b.WriteString("+++ b/" + path + "\n")
	b.WriteString("@@ -0,0 +1," + strconv.Itoa(len(lines)) + " @@\n")
	for _, l := range lines {
		b.WriteString("+" + l + "\n")
	}
	return b.String()
}

func mustParse(t *testing.T, raw string) *diff.Set {
	t.Helper()
	s, err := diff.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return s
}

func runAll(t *testing.T, raw string) *Result {
	t.Helper()
	s := mustParse(t, raw)
	return New(Options{}).Run(context.Background(), s.Files)
}

func TestRegistryIsStable(t *testing.T) {
	want := []string{"secrets", "injection", "outbound-io", "output-encoding"}
	got := RuleIDs()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("RuleIDs() = %v, want %v", got, want)
	}
	if _, ok := Lookup("injection"); !ok {
		t.Error("Lookup(injection) failed")
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup(nope) should fail")
	}
}

func TestEngineSecretScenario(t *testing.T) {
	res := runAll(t, addedDiff("config.go",
		"package config",
		"",
		`var apiKey = "AKIA...1234567890ABCD"`,
	))
	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d: %v", len(res.Findings), res.Findings)
	}
	f := res.Findings[0]
	if f.RuleID != "secrets" || f.Severity != model.SeverityHigh || f.Line != 3 || f.File != "config.go" {
		t.Errorf("unexpected finding %+v", f)
	}
	if !res.Complete {
		t.Error("run should be complete")
	}
}

func TestEngineBinaryFilesNeverScanned(t *testing.T) {
	raw := `diff --git a/key.bin b/key.bin
index 1111111..2222222 100644
Binary files a/key.bin and b/key.bin differ
`
	res := runAll(t, raw)
	if len(res.Findings) != 0 {
		t.Errorf("binary file produced findings: %v", res.Findings)
	}
	if res.Scanned != 0 {
		t.Errorf("binary file was scanned")
	}
}

func TestEngineSeverityOverrideAndDisable(t *testing.T) {
	s := mustParse(t, addedDiff("main.go",
		`token := "Zx9Qm2Lp7Rt4Vb8Nc3Kd"`,
		`resp, err := http.Get(url)`,
	))

	e := New(Options{Rules: map[string]RuleSetting{
		"secrets":     {Enabled: true, Severity: model.SeverityCritical},
		"outbound-io": {Enabled: false},
	}})
	res := e.Run(context.Background(), s.Files)
	if len(res.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d: %v", len(res.Findings), res.Findings)
	}
	if res.Findings[0].Severity != model.SeverityCritical {
		t.Errorf("severity = %v, want critical", res.Findings[0].Severity)
	}
}

func TestEngineAllowFilter(t *testing.T) {
	s := mustParse(t, addedDiff("vendor/x.go", `token := "Zx9Qm2Lp7Rt4Vb8Nc3Kd"`))
	e := New(Options{Allow: func(p string) bool { return !strings.HasPrefix(p, "vendor/") }})
	res := e.Run(context.Background(), s.Files)
	if len(res.Findings) != 0 {
		t.Errorf("denied path produced findings: %v", res.Findings)
	}
}

type panicScanner struct{}

func (panicScanner) ID() string                      { return "boom" }
func (panicScanner) Title() string                   { return "boom" }
func (panicScanner) DefaultSeverity() model.Severity { return model.SeverityLow }
func (panicScanner) Evaluate(*diff.File, *diff.Hunk) []model.Finding {
	panic("malformed input")
}

type strayScanner struct{}

func (strayScanner) ID() string                      { return "stray" }
func (strayScanner) Title() string                   { return "stray" }
func (strayScanner) DefaultSeverity() model.Severity { return model.SeverityLow }
func (strayScanner) Evaluate(*diff.File, *diff.Hunk) []model.Finding {
	return []model.Finding{{Title: "out of range", Line: 999}}
}

func TestEngineIsolatesScannerPanics(t *testing.T) {
	s := mustParse(t, addedDiff("a.go", `token := "Zx9Qm2Lp7Rt4Vb8Nc3Kd"`))
	e := New(Options{})
	e.scanners = append(e.scanners, panicScanner{}, strayScanner{})

	res := e.Run(context.Background(), s.Files)
	if len(res.Findings) != 1 || res.Findings[0].RuleID != "secrets" {
		t.Fatalf("expected only the secrets finding, got %v", res.Findings)
	}

	kinds := map[string]int{}
	for _, w := range res.Warnings {
		kinds[w.Kind]++
	}
	if kinds[model.WarnScanner] != 1 {
		t.Errorf("expected 1 scanner warning, got %v", res.Warnings)
	}
	if kinds[model.WarnLineOutOfDiff] != 1 {
		t.Errorf("expected 1 out-of-diff warning, got %v", res.Warnings)
	}
}

func TestEngineCancelledContextIsPartial(t *testing.T) {
	s := mustParse(t, addedDiff("a.go", `token := "Zx9Qm2Lp7Rt4Vb8Nc3Kd"`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(Options{Workers: 1}).Run(ctx, s.Files)
	if res.Complete {
		t.Error("cancelled run should be incomplete")
	}
}

func TestFindingLinesAreInDiff(t *testing.T) {
	raw := `diff --git a/srv.go b/srv.go
--- a/srv.go
+++ b/srv.go
@@ -10,3 +10,6 @@ func handler(w http.ResponseWriter, r *http.Request) {
 	user := r.URL.Query().Get("name")
-	fmt.Fprintf(w, "hi")
+	fmt.Fprintf(w, "<p>"+user+"</p>")
+	q := "SELECT * FROM users WHERE name='" + user + "'"
+	rows, _ := db.Query(q)
+	_ = rows
 }
`
	s := mustParse(t, raw)
	res := New(Options{}).Run(context.Background(), s.Files)
	if len(res.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %v", res.Findings)
	}
	for _, f := range res.Findings {
		l, ok := s.Files[0].LineAt(f.Line)
		if !ok || l.Kind == diff.LineRemoved {
			t.Errorf("finding %v is not on an added or context line", f)
		}
	}
}
