package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/api"
	"github.com/reviewlens/reviewlens/internal/source"
	"github.com/reviewlens/reviewlens/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start an HTTP server that reviews diffs against the repository at --path.

Endpoints:
  GET  /health       Health check
  GET  /api/rules    Registered rules
  POST /api/review   Review a diff and return the report
  POST /api/parse    Parse a diff into structured files
  GET  /api/ws       WebSocket streaming review sessions`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	addRepoFlags(cmd)
	cmd.Flags().StringP("addr", "a", "127.0.0.1", "address to listen on")
	cmd.Flags().IntP("port", "p", 6142, "port to listen on")
	cmd.Flags().Bool("no-index", false, "skip the conventions index")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := commandLogger(cmd)
	repo, err := repoRoot(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, repo)
	if err != nil {
		return err
	}
	tel, err := telemetry.FromConfig(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer tel.Close()

	opts := api.Options{
		Config:     cfg,
		Source:     source.Dir(repo),
		IndexPath:  cfg.ResolveIndexPath(repo),
		Summarizer: summarizer(cfg, logger),
		Telemetry:  tel,
		Logger:     logger,
		Version:    version,
	}
	if noIndex, _ := cmd.Flags().GetBool("no-index"); noIndex {
		opts.Source = nil
	}

	addr, _ := cmd.Flags().GetString("addr")
	port, _ := cmd.Flags().GetInt("port")
	listen := fmt.Sprintf("%s:%d", addr, port)
	logger.Info("serving", "addr", listen, "repo", repo)
	return api.New(listen, opts).ListenAndServe(cmd.Context())
}
