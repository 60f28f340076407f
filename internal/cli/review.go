package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/tui"
)

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Browse the review of a diff interactively",
		Long: `Run the review and open a terminal browser over the changed files,
with findings, suggested fixes and convention deviations shown inline.
Findings marked with "i" are printed as reviewlens:ignore directives on exit.

Examples:
  reviewlens review                         # working tree vs HEAD
  reviewlens review --base-ref main         # branch vs main
  git diff | reviewlens review --diff -     # pipe any diff`,
		Args: cobra.NoArgs,
		RunE: runReview,
	}
	addDiffFlags(cmd)
	return cmd
}

func runReview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := commandLogger(cmd)

	repo, err := repoRoot(ctx, cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, repo)
	if err != nil {
		return err
	}
	raw, err := readDiff(ctx, cmd, repo)
	if err != nil {
		return err
	}

	p, cleanup, err := newPipeline(cmd, cfg, repo, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var set *diff.Set
	p.OnParsed = func(s *diff.Set) { set = s }

	r, err := p.Run(ctx, raw)
	if err != nil {
		return &exitError{code: pipeline.Classify(r, err, cfg.FailOn), err: err}
	}
	if set == nil || len(set.Files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No changes to review.")
		return nil
	}

	result, err := tui.Run(set, r)
	if err != nil {
		return err
	}
	if directives := result.Directives(); len(directives) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Add these directives above the flagged lines:")
		for _, d := range directives {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", d)
		}
	}
	return nil
}
