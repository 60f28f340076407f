// Package conventions builds an index of the idioms a codebase already
// uses and flags changes that depart from them.
package conventions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/reviewlens/reviewlens/internal/model"
	"github.com/reviewlens/reviewlens/internal/source"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// Allow filters repository paths. Nil allows everything.
	Allow func(path string) bool
	// Previous supplies contributions to reuse for unchanged files.
	Previous *Snapshot
	Workers  int
	Logger   *slog.Logger
}

// BuildStats describes a build.
type BuildStats struct {
	Files     int
	Reused    int
	Extracted int
	Complete  bool
}

type fileResult struct {
	path   string
	entry  FileEntry
	reused bool
	err    error
}

// Build indexes every eligible file of src. Files whose content hash
// matches the previous snapshot keep their stored contribution. When ctx
// ends early the returned snapshot covers only the files processed and
// stats.Complete is false.
func Build(ctx context.Context, src source.Lister, opts BuildOptions) (*Snapshot, BuildStats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	paths, err := src.Files(ctx)
	if err != nil && ctx.Err() == nil {
		return nil, BuildStats{}, fmt.Errorf("listing source files: %w", err)
	}
	var eligible []string
	for _, p := range paths {
		if opts.Allow == nil || opts.Allow(p) {
			eligible = append(eligible, p)
		}
	}

	results := make(chan fileResult)
	files := make(map[string]FileEntry, len(eligible))
	stats := BuildStats{}

	// single accumulator
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			if r.err != nil {
				logger.Debug("skipping unreadable file", "path", r.path, "error", r.err)
				continue
			}
			files[r.path] = r.entry
			if r.reused {
				stats.Reused++
			} else {
				stats.Extracted++
			}
		}
	}()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	cancelled := false
dispatch:
	for _, p := range eligible {
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- indexFile(src, path, opts.Previous)
		}(p)
	}
	wg.Wait()
	close(results)
	<-done

	stats.Files = len(files)
	stats.Complete = !cancelled && ctx.Err() == nil
	return newSnapshot(files), stats, nil
}

func indexFile(src source.Accessor, path string, prev *Snapshot) fileResult {
	content, err := src.ReadFile(path)
	if err != nil {
		return fileResult{path: path, err: err}
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if prev != nil {
		if old, ok := prev.Files[path]; ok && old.Hash == hash {
			return fileResult{path: path, entry: old, reused: true}
		}
	}
	return fileResult{path: path, entry: FileEntry{Hash: hash, Occurrences: Extract(path, content)}}
}

// RefreshOptions configures Refresh.
type RefreshOptions struct {
	Path    string
	Allow   func(path string) bool
	Workers int
	// Force discards any stored snapshot.
	Force  bool
	Logger *slog.Logger
}

// RefreshResult is the outcome of Refresh.
type RefreshResult struct {
	Snapshot *Snapshot
	Stats    BuildStats
	// Warm is set when a valid stored snapshot was loaded.
	Warm     bool
	Saved    bool
	Warnings []model.Warning
}

// Refresh loads the stored snapshot, brings it up to date with src and
// persists it when the build completed. An unusable snapshot is logged,
// reported as a warning and rebuilt in full.
func Refresh(ctx context.Context, src source.Lister, opts RefreshOptions) (*RefreshResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	res := &RefreshResult{}

	var prev *Snapshot
	if !opts.Force && opts.Path != "" {
		s, err := Load(opts.Path)
		var ie *IndexError
		switch {
		case errors.As(err, &ie):
			logger.Warn("rebuilding conventions index", "path", opts.Path, "reason", ie.Error())
			res.Warnings = append(res.Warnings, model.Warning{
				Kind:    model.WarnIndex,
				File:    opts.Path,
				Message: ie.Error() + "; rebuilt from scratch",
			})
		case err != nil:
			return nil, err
		default:
			prev = s
			res.Warm = s != nil
		}
	}

	snap, stats, err := Build(ctx, src, BuildOptions{
		Allow:    opts.Allow,
		Previous: prev,
		Workers:  opts.Workers,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	res.Snapshot, res.Stats = snap, stats
	logger.Debug("conventions index built",
		"files", stats.Files, "reused", stats.Reused, "extracted", stats.Extracted, "complete", stats.Complete)

	if !stats.Complete || opts.Path == "" {
		return res, nil
	}
	if prev != nil && prev.TreeHash == snap.TreeHash {
		return res, nil
	}
	if err := Save(opts.Path, snap); err != nil {
		logger.Warn("saving conventions index", "path", opts.Path, "error", err)
		res.Warnings = append(res.Warnings, model.Warning{Kind: model.WarnIndex, File: opts.Path, Message: err.Error()})
		return res, nil
	}
	res.Saved = true
	return res, nil
}
