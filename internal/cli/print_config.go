package cli

import (
	"github.com/spf13/cobra"
)

func newPrintConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print-config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := repoRoot(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, repo)
			if err != nil {
				return err
			}
			out, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	addRepoFlags(cmd)
	cmd.Flags().String("fail-on", "", "override fail_on")
	cmd.Flags().String("budget", "", "override budget")
	return cmd
}
