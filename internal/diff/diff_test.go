package diff

import (
	"errors"
	"testing"
)

const sampleDiff = `diff --git a/hello.go b/hello.go
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/hello.go
@@ -0,0 +1,7 @@
+package main
+
+import "fmt"
+
+func main() {
+	fmt.Println("hello")
+}
diff --git a/readme.md b/readme.md
index abc1234..def5678 100644
--- a/readme.md
+++ b/readme.md
@@ -1,3 +1,4 @@
 # Project

-Old description
+New description
+Added line
`

func TestParse(t *testing.T) {
	s, err := Parse(sampleDiff)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(s.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(s.Files))
	}

	f0 := s.Files[0]
	if f0.Kind != KindAdded {
		t.Errorf("hello.go kind = %v, want added", f0.Kind)
	}
	if f0.Path != "hello.go" {
		t.Errorf("path = %q, want hello.go", f0.Path)
	}
	if f0.AddedLines != 7 {
		t.Errorf("expected 7 added lines, got %d", f0.AddedLines)
	}

	f1 := s.Files[1]
	if f1.Kind != KindModified {
		t.Errorf("readme.md kind = %v, want modified", f1.Kind)
	}
	if f1.AddedLines != 2 || f1.DeletedLines != 1 {
		t.Errorf("readme.md +%d -%d, want +2 -1", f1.AddedLines, f1.DeletedLines)
	}

	files, added, deleted := s.Stats()
	if files != 2 || added != 9 || deleted != 1 {
		t.Errorf("stats = %d files +%d -%d, want 2 +9 -1", files, added, deleted)
	}
}

func TestParseLineNumbers(t *testing.T) {
	s, err := Parse(sampleDiff)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	h := s.Files[1].Hunks[0]

	want := []struct {
		kind   LineKind
		newNum int
		oldNum int
		text   string
	}{
		{LineContext, 1, 1, "# Project"},
		{LineContext, 2, 2, ""},
		{LineRemoved, 0, 3, "Old description"},
		{LineAdded, 3, 0, "New description"},
		{LineAdded, 4, 0, "Added line"},
	}
	if len(h.Lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(h.Lines))
	}
	for i, w := range want {
		got := h.Lines[i]
		if got.Kind != w.kind || got.NewNum != w.newNum || got.OldNum != w.oldNum || got.Text != w.text {
			t.Errorf("line %d = %+v, want %+v", i, got, w)
		}
	}

	if l, ok := s.Files[1].LineAt(4); !ok || l.Text != "Added line" {
		t.Errorf("LineAt(4) = %+v, %v", l, ok)
	}
	if _, ok := s.Files[1].LineAt(9); ok {
		t.Error("LineAt(9) should be outside the diff")
	}
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind ChangeKind
		wantPath string
		wantOld  string
		hunks    int
	}{
		{
			name: "rename with edit",
			input: `diff --git a/old.go b/new.go
similarity index 90%
rename from old.go
rename to new.go
--- a/old.go
+++ b/new.go
@@ -1 +1 @@
-package old
+package new
`,
			wantKind: KindRenamed,
			wantPath: "new.go",
			wantOld:  "old.go",
			hunks:    1,
		},
		{
			name: "deleted file",
			input: `diff --git a/gone.go b/gone.go
deleted file mode 100644
--- a/gone.go
+++ /dev/null
@@ -1,2 +0,0 @@
-package gone
-var x = 1
`,
			wantKind: KindDeleted,
			wantPath: "gone.go",
			hunks:    1,
		},
		{
			name: "binary",
			input: `diff --git a/logo.png b/logo.png
index 1111111..2222222 100644
Binary files a/logo.png and b/logo.png differ
`,
			wantKind: KindBinary,
			wantPath: "logo.png",
			hunks:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(s.Files) != 1 {
				t.Fatalf("expected 1 file, got %d", len(s.Files))
			}
			f := s.Files[0]
			if f.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", f.Kind, tt.wantKind)
			}
			if f.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", f.Path, tt.wantPath)
			}
			if f.OldPath != tt.wantOld {
				t.Errorf("old path = %q, want %q", f.OldPath, tt.wantOld)
			}
			if len(f.Hunks) != tt.hunks {
				t.Errorf("hunks = %d, want %d", len(f.Hunks), tt.hunks)
			}
		})
	}
}

func TestParseMultipleHunks(t *testing.T) {
	input := `diff --git a/a.go b/a.go
--- a/a.go
+++ b/a.go
@@ -1,2 +1,3 @@
 package a
+// one
 var x = 1
@@ -10,2 +11,3 @@
 func f() {
+	g()
 }
`
	s, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	f := s.Files[0]
	if len(f.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(f.Hunks))
	}
	if l, ok := f.LineAt(12); !ok || l.Kind != LineAdded {
		t.Errorf("LineAt(12) = %+v, %v; want the added g() call", l, ok)
	}
	if got := f.Hunks[1].Header(); got != "@@ -10,2 +11,3 @@" {
		t.Errorf("header = %q", got)
	}
	if s.Churn()["a.go"] != 2 {
		t.Errorf("churn = %d, want 2", s.Churn()["a.go"])
	}
}

func TestParseEmpty(t *testing.T) {
	s, err := Parse("  \n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(s.Files) != 0 {
		t.Errorf("expected no files, got %d", len(s.Files))
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not a diff", "this is not a diff\nat all\n"},
		{"miscounted hunk", `diff --git a/a.go b/a.go
--- a/a.go
+++ b/a.go
@@ -1,5 +1,5 @@
 package a
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Fatal("expected an error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not a *ParseError", err)
			}
		})
	}
}
