// Package source gives read access to the files of the repository under
// review.
package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a path is not part of the source tree.
var ErrNotFound = errors.New("source: file not found")

// Accessor reads files by repository-relative, slash-separated path.
type Accessor interface {
	ReadFile(path string) ([]byte, error)
}

// Lister is an Accessor that can also enumerate its source files.
type Lister interface {
	Accessor
	// Files returns every source file path in sorted order.
	Files(ctx context.Context) ([]string, error)
}

// Dir is a Lister backed by a directory on disk.
type Dir string

// ReadFile reads path relative to the directory. Paths escaping the root are
// rejected.
func (d Dir) ReadFile(path string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(filepath.Join(string(d), clean))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Files walks the directory and returns every source file. Hidden
// directories and vendored or built output are skipped.
func (d Dir) Files(ctx context.Context) ([]string, error) {
	var out []string
	root := string(d)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if path != root && skipDir(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsSourceFile(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func skipDir(base string) bool {
	if strings.HasPrefix(base, ".") {
		return true
	}
	switch base {
	case "vendor", "node_modules", "dist", "build", "target", "__pycache__":
		return true
	}
	return false
}

// IsSourceFile reports whether path has a recognised source extension.
func IsSourceFile(path string) bool {
	switch filepath.Ext(path) {
	case ".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".mjs", ".cjs", ".rb", ".rs",
		".java", ".kt", ".scala", ".c", ".cpp", ".h", ".hpp",
		".cs", ".ex", ".exs", ".erl", ".hs", ".ml", ".swift", ".php":
		return true
	}
	return false
}

// Map is an in-memory Lister, used when file contents arrive with a request.
type Map map[string][]byte

func (m Map) ReadFile(path string) ([]byte, error) {
	b, ok := m[path]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m Map) Files(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(m))
	for p := range m {
		if IsSourceFile(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Line returns the 1-based line n of path, or false when either is missing.
func Line(a Accessor, path string, n int) (string, bool) {
	if a == nil || n < 1 {
		return "", false
	}
	b, err := a.ReadFile(path)
	if err != nil {
		return "", false
	}
	lines := strings.Split(string(b), "\n")
	if n > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[n-1], "\r"), true
}
