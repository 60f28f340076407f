package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/providers"
	"github.com/reviewlens/reviewlens/internal/report"
	"github.com/reviewlens/reviewlens/internal/source"
	"github.com/reviewlens/reviewlens/internal/telemetry"
)

const contextLines = 3

// flagOverrides maps command flags onto config keys.
var flagOverrides = map[string]string{
	"fail-on": "fail_on",
	"budget":  "budget",
}

func addRepoFlags(cmd *cobra.Command) {
	cmd.Flags().String("path", ".", "repository to review")
}

func addDiffFlags(cmd *cobra.Command) {
	addRepoFlags(cmd)
	cmd.Flags().String("base-ref", "", "diff the working tree against this ref (default HEAD)")
	cmd.Flags().String("diff", "", "read a unified diff from this file, or - for stdin")
	cmd.Flags().String("budget", "", "wall-clock budget for the run, e.g. 30s (0 disables)")
	cmd.Flags().Bool("no-index", false, "skip the conventions index")
}

// repoRoot resolves --path to the enclosing repository, falling back to
// the directory itself outside git.
func repoRoot(ctx context.Context, cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("path")
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
		return "", &config.Error{Key: "path", Msg: fmt.Sprintf("%s is not a directory", path)}
	}
	if root, err := diff.RepoRoot(ctx, abs); err == nil {
		return root, nil
	}
	return abs, nil
}

// readDiff returns the diff named by --diff, or asks git for one.
func readDiff(ctx context.Context, cmd *cobra.Command, repo string) (string, error) {
	path, _ := cmd.Flags().GetString("diff")
	switch path {
	case "":
		baseRef, _ := cmd.Flags().GetString("base-ref")
		return diff.GitDiff(ctx, repo, baseRef, contextLines)
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading diff: %w", err)
		}
		return string(data), nil
	}
}

// loadConfig merges the config file, environment and the flags the user set.
func loadConfig(cmd *cobra.Command, repo string) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	overrides := map[string]string{}
	for flag, key := range flagOverrides {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	cfg, err := config.Load(path, repo, overrides)
	if err != nil {
		var cerr *config.Error
		if !errors.As(err, &cerr) {
			err = &config.Error{Msg: "loading config", Err: err}
		}
		return config.Config{}, err
	}
	return cfg, nil
}

// summarizer builds the configured summarizer. A provider that cannot be
// set up only costs the summary.
func summarizer(cfg config.Config, logger *slog.Logger) report.Summarizer {
	s, err := providers.New(cfg.Summary)
	if err != nil {
		logger.Warn("summary disabled", "provider", cfg.Summary.Provider, "error", err)
		return nil
	}
	return s
}

// newPipeline wires a pipeline for repo. The returned cleanup closes the
// telemetry sink.
func newPipeline(cmd *cobra.Command, cfg config.Config, repo string, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	tel, err := telemetry.FromConfig(cfg.Telemetry)
	if err != nil {
		return nil, nil, err
	}
	noIndex, _ := cmd.Flags().GetBool("no-index")
	p := &pipeline.Pipeline{
		Config:     cfg,
		Source:     source.Dir(repo),
		Summarizer: summarizer(cfg, logger),
		Telemetry:  tel,
		Logger:     logger,
		Version:    version,
		IndexPath:  cfg.ResolveIndexPath(repo),
		NoIndex:    noIndex,
	}
	cleanup := func() {
		if err := tel.Close(); err != nil {
			logger.Warn("closing telemetry", "error", err)
		}
	}
	return p, cleanup, nil
}
