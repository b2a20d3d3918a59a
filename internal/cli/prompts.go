package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/promptgrid/pkg/prompts"
)

func newPromptsCommand(s *streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Print the generated prompts without sending them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, s, nil)
			if err != nil {
				return err
			}

			dims := cfg.PromptDimensions()
			if err := dims.Validate(); err != nil {
				return fmt.Errorf("%w: %w", errConfig, err)
			}

			limit, _ := cmd.Flags().GetInt("limit")
			list := prompts.Generate(dims, cfg.PromptTemplate())
			for i, p := range list {
				if limit > 0 && i >= limit {
					fmt.Fprintf(s.out, "... %d more\n", len(list)-limit)
					break
				}
				fmt.Fprintf(s.out, "%d\t%s\t%s\t%s\n", i+1, dims.A[i/len(dims.B)], dims.B[i%len(dims.B)], p)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 0, "Print at most this many prompts (0 = all)")
	return cmd
}
