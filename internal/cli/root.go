// Package cli implements the promptgrid command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sternrassler/promptgrid/internal/config"
	"github.com/Sternrassler/promptgrid/pkg/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// streams carries the I/O of one invocation.
type streams struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// NewRootCommand builds the command tree.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	s := &streams{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "promptgrid",
		Short: "Batch LLM prompts over a grid of two label sets",
		Long: "promptgrid expands two label sets into one prompt per pair, sends them to a\n" +
			"chat completions endpoint in small paced groups under a consecutive-failure\n" +
			"budget, and writes the answers as a table.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().String("config", "", "Path to config file (default ./"+config.DefaultFileName+" if present)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().Bool("pretty", false, "Human-readable log output")

	root.AddCommand(newRunCommand(s))
	root.AddCommand(newPromptsCommand(s))
	root.AddCommand(newConfigCommand(s))

	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	root := NewRootCommand(in, out, errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	code := ExitCode(err)
	if err != nil && code != ExitOK {
		fmt.Fprintln(errOut, "Error:", err)
	}
	return code
}

// loadConfig loads the configuration and sets up logging. bindings maps
// config keys to flag names of cmd.
func loadConfig(cmd *cobra.Command, s *streams, bindings map[string]string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	flags := map[string]*pflag.Flag{
		"log.level":  cmd.Flags().Lookup("log-level"),
		"log.pretty": cmd.Flags().Lookup("pretty"),
	}
	for key, name := range bindings {
		flags[key] = cmd.Flags().Lookup(name)
	}

	cfg, err := config.Load(path, flags)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = s.errOut
	logging.Setup(logCfg)

	return cfg, nil
}
