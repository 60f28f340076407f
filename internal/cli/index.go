package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/conventions"
	"github.com/reviewlens/reviewlens/internal/source"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the conventions index",
		Long: `Scan the allow-listed source files of the repository and update the
conventions snapshot. Unchanged files are reused from the stored snapshot
unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: runIndex,
	}
	addRepoFlags(cmd)
	cmd.Flags().Bool("force", false, "discard the stored snapshot and rebuild from scratch")
	return cmd
}

func runIndex(cmd *cobra.Command, _ []string) error {
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
	path := cfg.ResolveIndexPath(repo)
	if path == "" {
		return &config.Error{Key: "index_path", Msg: "no index path configured"}
	}
	force, _ := cmd.Flags().GetBool("force")

	if cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Budget)
		defer cancel()
	}

	res, err := conventions.Refresh(ctx, source.Dir(repo), conventions.RefreshOptions{
		Path:    path,
		Allow:   cfg.Allow,
		Workers: cfg.Workers,
		Force:   force,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("building conventions index: %w", err)
	}
	for _, w := range res.Warnings {
		logger.Warn(w.Message, "kind", w.Kind)
	}

	out := cmd.OutOrStdout()
	st := res.Stats
	fmt.Fprintf(out, "Indexed %d file(s): %d reused, %d extracted\n", st.Files, st.Reused, st.Extracted)
	switch {
	case !st.Complete:
		fmt.Fprintln(out, "Index incomplete (budget exceeded); snapshot not saved.")
	case res.Saved:
		fmt.Fprintf(out, "Snapshot written to %s\n", path)
	default:
		fmt.Fprintf(out, "Snapshot at %s is up to date\n", path)
	}
	return nil
}
