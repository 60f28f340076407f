package cli

import (
	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/output"
	"github.com/reviewlens/reviewlens/internal/pipeline"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Review a diff and write a report (non-interactive)",
		Long: `Review the working tree against a base ref, or a diff read from a
file or stdin, and write the report. Useful for CI and pre-commit hooks.

Examples:
  reviewlens check                         # working tree vs HEAD
  reviewlens check --base-ref origin/main  # branch vs main
  git diff | reviewlens check --diff -     # pipe any diff
  reviewlens check --format sarif -o out.sarif`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
	addDiffFlags(cmd)
	cmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown, sarif")
	cmd.Flags().StringP("output", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().String("fail-on", "", "lowest severity that fails the run: low, medium, high, critical or none")
	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := commandLogger(cmd)

	format, _ := cmd.Flags().GetString("format")
	if _, err := output.GetWriter(format); err != nil {
		return &config.Error{Key: "format", Msg: err.Error()}
	}
	outPath, _ := cmd.Flags().GetString("output")

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

	r, err := p.Run(ctx, raw)
	outcome := pipeline.Classify(r, err, cfg.FailOn)
	if err != nil {
		return &exitError{code: outcome, err: err}
	}

	if outPath == "" || outPath == "-" {
		w, _ := output.GetWriter(format)
		if err := w.Write(cmd.OutOrStdout(), r); err != nil {
			return err
		}
	} else if err := output.WriteReport(r, format, outPath); err != nil {
		return err
	}

	if outcome != pipeline.OutcomePass {
		logger.Debug("failing run", "fail_on", cfg.FailOn, "max_severity", r.MaxSeverity().String())
		return &exitError{code: outcome}
	}
	return nil
}
