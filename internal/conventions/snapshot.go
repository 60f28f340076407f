package conventions

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// Version is the snapshot format and extraction version. Snapshots written
// by any other version are rebuilt from scratch.
const Version = 3

// DefaultPath is where the snapshot lives relative to the repository root.
const DefaultPath = ".reviewlens/index.zst"

// FileEntry is one file's stored contribution.
type FileEntry struct {
	Hash        string       `json:"hash"`
	Occurrences []Occurrence `json:"occurrences"`
}

// Snapshot is the persisted state of the index.
type Snapshot struct {
	Version   int                  `json:"version"`
	FileCount int                  `json:"file_count"`
	TreeHash  string               `json:"tree_hash"`
	Files     map[string]FileEntry `json:"files"`
}

// IndexError reports an unusable snapshot.
type IndexError struct {
	Path   string
	Reason string
	Err    error
}

func (e *IndexError) Error() string {
	msg := fmt.Sprintf("conventions index %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IndexError) Unwrap() error { return e.Err }

// newSnapshot seals files into a snapshot with its count and tree hash.
func newSnapshot(files map[string]FileEntry) *Snapshot {
	if files == nil {
		files = map[string]FileEntry{}
	}
	return &Snapshot{
		Version:   Version,
		FileCount: len(files),
		TreeHash:  treeHash(files),
		Files:     files,
	}
}

func treeHash(files map[string]FileEntry) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	h := sha256.New()
	for _, p := range paths {
		fmt.Fprintf(h, "%s\x00%s\n", p, files[p].Hash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Encode serialises the snapshot as zstd-compressed JSON. Map keys are
// written in sorted order, so equal snapshots encode to equal bytes.
func (s *Snapshot) Encode() ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// Decode parses and validates an encoded snapshot. Any problem is an
// *IndexError.
func Decode(path string, data []byte) (*Snapshot, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, &IndexError{Path: path, Reason: "creating decoder", Err: err}
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, &IndexError{Path: path, Reason: "corrupt data", Err: err}
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &IndexError{Path: path, Reason: "corrupt data", Err: err}
	}
	if s.Version != Version {
		return nil, &IndexError{Path: path, Reason: fmt.Sprintf("version %d, want %d", s.Version, Version)}
	}
	if s.FileCount != len(s.Files) {
		return nil, &IndexError{Path: path, Reason: fmt.Sprintf("file count %d does not match %d entries", s.FileCount, len(s.Files))}
	}
	if s.Files == nil {
		s.Files = map[string]FileEntry{}
	}
	return &s, nil
}

// Load reads the snapshot at path. A missing file returns (nil, nil).
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &IndexError{Path: path, Reason: "unreadable", Err: err}
	}
	return Decode(path, data)
}

// Save writes the snapshot atomically.
func Save(path string, s *Snapshot) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("creating temp index: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing index: %w", err)
	}
	return nil
}
