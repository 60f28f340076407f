// Package cli implements the reviewlens command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/pipeline"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviewlens",
		Short: "Review a diff for security issues and convention drift",
		Long: `reviewlens reviews the changed lines of a diff with high-precision
security rules, compares them against the conventions of the rest of the
repository and ranks the riskiest files.

Exit codes:
  0  pass
  1  findings at or above the fail-on threshold
  2  configuration or usage error
  3  runtime failure`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "", "path to a config file (default: <repo>/"+config.FileName+")")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().Bool("ci", false, "CI mode: JSON logs on stderr")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &config.Error{Key: "flags", Msg: err.Error()}
	})

	cmd.AddCommand(
		newCheckCmd(),
		newReviewCmd(),
		newIndexCmd(),
		newPrintConfigCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return cmd
}

// exitError carries an exit code out of a command. A nil err means the
// command already reported everything it had to say.
type exitError struct {
	code pipeline.Outcome
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return e.code.String()
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Run executes the command line and returns the process exit code.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, rootCmd, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	code := exitCode(err)
	var ee *exitError
	if err != nil && (!errors.As(err, &ee) || ee.err != nil) {
		fmt.Fprintf(stderr, "reviewlens: %v\n", err)
	}
	return int(code)
}

func exitCode(err error) pipeline.Outcome {
	if err == nil {
		return pipeline.OutcomePass
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var cerr *config.Error
	if errors.As(err, &cerr) {
		return pipeline.OutcomeConfigError
	}
	return pipeline.OutcomeRuntimeError
}

// commandLogger builds the run's logger from the persistent flags.
func commandLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	ci, _ := cmd.Flags().GetBool("ci")
	return newLogger(cmd.ErrOrStderr(), verbose, ci)
}

func newLogger(w io.Writer, verbose, ci bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if ci {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
