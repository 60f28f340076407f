package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestDirFilesSkipsVendoredAndHidden(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.go":                 "package main\n",
		"pkg/util.go":             "package pkg\n",
		"web/app.ts":              "export {}\n",
		"README.md":               "# hi\n",
		"vendor/dep/dep.go":       "package dep\n",
		"node_modules/x/index.js": "module.exports = {}\n",
		".git/hooks/pre.py":       "pass\n",
	})

	got, err := Dir(dir).Files(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"main.go", "pkg/util.go", "web/app.ts"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
}

func TestDirReadFile(t *testing.T) {
	dir := writeTree(t, map[string]string{"a/b.go": "line1\nline2\r\n"})
	d := Dir(dir)

	if _, err := d.ReadFile("missing.go"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file error = %v, want ErrNotFound", err)
	}
	if _, err := d.ReadFile("../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("escaping path error = %v, want ErrNotFound", err)
	}

	l, ok := Line(d, "a/b.go", 2)
	if !ok || l != "line2" {
		t.Errorf("Line(2) = %q, %v", l, ok)
	}
	if _, ok := Line(d, "a/b.go", 9); ok {
		t.Error("Line past end should fail")
	}
}

func TestMap(t *testing.T) {
	m := Map{"b.go": []byte("x"), "a.py": []byte("y"), "notes.txt": []byte("z")}
	got, _ := m.Files(context.Background())
	if diff := cmp.Diff([]string{"a.py", "b.go"}, got); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
	if _, err := m.ReadFile("c.go"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}
