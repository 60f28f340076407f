package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reviewlens/reviewlens/internal/conventions"
	"github.com/reviewlens/reviewlens/internal/model"
	"github.com/reviewlens/reviewlens/internal/pipeline"
)

func newFileDiff(path string, lines ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\nnew file mode 100644\n--- /dev/null\n+++ b/%s\n", path, path, path)
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, l := range lines {
		b.WriteString("+" + l + "\n")
	}
	return b.String()
}

// runCLI executes a fresh command tree against a temporary repository.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), newRootCmd(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeDiff(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "change.diff")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommandHasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"check", "review", "index", "print-config", "serve", "version"} {
		if !names[want] {
			t.Errorf("root command missing subcommand %q", want)
		}
	}
}

func TestVersionOutput(t *testing.T) {
	// version vars are set via ldflags; in tests they have their defaults
	if version != "dev" {
		t.Errorf("expected default version %q, got %q", "dev", version)
	}
	code, out, _ := runCLI(t, "version")
	if code != 0 || !strings.HasPrefix(out, "reviewlens dev (") {
		t.Errorf("version: code %d output %q", code, out)
	}
}

func TestCheckExitCodes(t *testing.T) {
	repo := t.TempDir()
	secret := writeDiff(t, repo, newFileDiff("app/keys.go",
		`package app`,
		``,
		`apiKey = "AKIA...1234567890ABCD"`,
	))
	clean := filepath.Join(t.TempDir(), "clean.diff")
	if err := os.WriteFile(clean, []byte(newFileDiff("app/sum.go", `package app`, `func sum(a, b int) int { return a + b }`)), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want pipeline.Outcome
	}{
		{"findings", []string{"--diff", secret}, pipeline.OutcomeFindings},
		{"clean", []string{"--diff", clean}, pipeline.OutcomePass},
		{"fail-on none", []string{"--diff", secret, "--fail-on", "none"}, pipeline.OutcomePass},
		{"bad fail-on", []string{"--diff", secret, "--fail-on", "severe"}, pipeline.OutcomeConfigError},
		{"bad format", []string{"--diff", secret, "--format", "html"}, pipeline.OutcomeConfigError},
		{"unknown flag", []string{"--diff", secret, "--frobnicate"}, pipeline.OutcomeConfigError},
		{"missing diff", []string{"--diff", filepath.Join(repo, "nope.diff")}, pipeline.OutcomeRuntimeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"check", "--path", repo, "--no-index"}, tt.args...)
			code, _, stderr := runCLI(t, args...)
			if code != int(tt.want) {
				t.Errorf("exit code = %d, want %d (stderr %q)", code, tt.want, stderr)
			}
		})
	}
}

func TestCheckMalformedDiffIsRuntimeError(t *testing.T) {
	repo := t.TempDir()
	bad := writeDiff(t, repo, "diff --git a/a.go b/a.go\n--- a/a.go\n+++ b/a.go\n@@ -1,5 +1,5 @@\n package a\n")
	code, _, stderr := runCLI(t, "check", "--path", repo, "--no-index", "--diff", bad)
	if code != int(pipeline.OutcomeRuntimeError) {
		t.Errorf("exit code = %d, want 3", code)
	}
	if !strings.Contains(stderr, "parsing diff") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestUnopenableTelemetryFileIsConfigError(t *testing.T) {
	repo := t.TempDir()
	cfg := fmt.Sprintf("telemetry:\n  enabled: true\n  file: %s\n", filepath.Join(repo, "missing", "events.jsonl"))
	if err := os.WriteFile(filepath.Join(repo, ".reviewlens.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	d := writeDiff(t, repo, newFileDiff("app/sum.go", `package app`))

	code, _, stderr := runCLI(t, "check", "--path", repo, "--no-index", "--diff", d)
	if code != int(pipeline.OutcomeConfigError) {
		t.Errorf("exit code = %d, want %d (stderr %q)", code, pipeline.OutcomeConfigError, stderr)
	}
	if !strings.Contains(stderr, "telemetry.file") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestCheckJSONReport(t *testing.T) {
	repo := t.TempDir()
	secret := writeDiff(t, repo, newFileDiff("app/keys.go", `apiKey = "AKIA...1234567890ABCD"`))

	code, out, _ := runCLI(t, "check", "--path", repo, "--no-index", "--diff", secret, "--format", "json")
	if code != int(pipeline.OutcomeFindings) {
		t.Fatalf("exit code = %d", code)
	}
	var r model.Report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, out)
	}
	if len(r.Findings) != 1 || r.Findings[0].RuleID != "secrets" {
		t.Errorf("findings = %+v", r.Findings)
	}
	if strings.Contains(out, "1234567890ABCD") {
		t.Error("report leaks the secret")
	}
}

func TestCheckWritesOutputFile(t *testing.T) {
	repo := t.TempDir()
	d := writeDiff(t, repo, newFileDiff("app/keys.go", `apiKey = "AKIA...1234567890ABCD"`))
	outPath := filepath.Join(t.TempDir(), "report.md")

	code, stdout, _ := runCLI(t, "check", "--path", repo, "--no-index", "--diff", d, "--format", "markdown", "-o", outPath)
	if code != int(pipeline.OutcomeFindings) {
		t.Fatalf("exit code = %d", code)
	}
	if stdout != "" {
		t.Errorf("stdout should be empty when writing to a file, got %q", stdout)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "## reviewlens review") {
		t.Errorf("markdown report missing header:\n%s", data)
	}
}

func TestPrintConfig(t *testing.T) {
	repo := t.TempDir()
	if err := os.WriteFile(filepath.Join(repo, ".reviewlens.yaml"), []byte("fail_on: medium\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out, _ := runCLI(t, "print-config", "--path", repo)
	if code != 0 || !strings.Contains(out, "fail_on: medium") {
		t.Errorf("print-config: code %d\n%s", code, out)
	}

	code, out, _ = runCLI(t, "print-config", "--path", repo, "--fail-on", "critical")
	if code != 0 || !strings.Contains(out, "fail_on: critical") {
		t.Errorf("override not applied: code %d\n%s", code, out)
	}
}

func TestIndexCommand(t *testing.T) {
	repo := t.TempDir()
	for name, body := range map[string]string{
		"a.go": "package a\n\nfunc A() error { return nil }\n",
		"b.go": "package a\n\nfunc B() error { return nil }\n",
	} {
		if err := os.WriteFile(filepath.Join(repo, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	code, out, stderr := runCLI(t, "index", "--path", repo)
	if code != 0 {
		t.Fatalf("index: code %d stderr %q", code, stderr)
	}
	if !strings.Contains(out, "2 extracted") || !strings.Contains(out, "Snapshot written") {
		t.Errorf("first run output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(repo, conventions.DefaultPath)); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}

	_, out, _ = runCLI(t, "index", "--path", repo)
	if !strings.Contains(out, "2 reused, 0 extracted") {
		t.Errorf("second run should reuse every file:\n%s", out)
	}

	_, out, _ = runCLI(t, "index", "--path", repo, "--force")
	if !strings.Contains(out, "0 reused, 2 extracted") {
		t.Errorf("--force should re-extract:\n%s", out)
	}
}

func TestPathMustBeDirectory(t *testing.T) {
	code, _, _ := runCLI(t, "print-config", "--path", filepath.Join(t.TempDir(), "missing"))
	if code != int(pipeline.OutcomeConfigError) {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestNewLoggerCIIsJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false, true).Info("hello", "k", "v")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("ci log line is not JSON: %q", buf.String())
	}
	if rec["msg"] != "hello" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	newLogger(&buf, false, false).Debug("hidden")
	if buf.Len() != 0 {
		t.Error("debug should be off without --verbose")
	}
}

func TestCheckReviewsOnlyChangedLines(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", repo, "-c", "user.email=dev@example.com", "-c", "user.name=dev"}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	git("init", "-q")
	if err := os.WriteFile(filepath.Join(repo, "unchanged.txt"), []byte(`api_key = "ABCDEFGHIJKLMNOPQRSTUVWX"`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, "changed.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	git("add", ".")
	git("commit", "-q", "-m", "init")
	if err := os.WriteFile(filepath.Join(repo, "changed.txt"), []byte("hello world\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out, stderr := runCLI(t, "check", "--path", repo, "--base-ref", "HEAD", "--fail-on", "low", "--no-index")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr %q)", code, stderr)
	}
	if !strings.Contains(out, "No issues found.") {
		t.Errorf("output:\n%s", out)
	}
}
