package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/promptgrid/internal/config"
)

func newConfigCommand(s *streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")

			if err := config.WriteDefaultFile(path, force); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Wrote %s. Set api_key there or export PROMPTGRID_API_KEY.\n", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, s, nil)
			if err != nil {
				return err
			}

			shown := *cfg
			if shown.APIKey != "" {
				shown.APIKey = mask(shown.APIKey)
			}
			return config.WriteYAML(s.out, shown)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

// mask keeps the first four characters of a secret.
func mask(secret string) string {
	const keep = 4
	if len(secret) <= keep {
		return "****"
	}
	return secret[:keep] + "****"
}
