package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/promptgrid/internal/config"
	"github.com/Sternrassler/promptgrid/pkg/batch"
	"github.com/Sternrassler/promptgrid/pkg/client"
	"github.com/Sternrassler/promptgrid/pkg/metrics"
	"github.com/Sternrassler/promptgrid/pkg/prompts"
	"github.com/Sternrassler/promptgrid/pkg/status"
	"github.com/Sternrassler/promptgrid/pkg/table"
)

const redisConnectTimeout = 3 * time.Second

func newRunCommand(s *streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send every prompt and write the result table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, s)
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Start without asking for confirmation")
	cmd.Flags().String("output-dir", "", "Directory for the result file")
	cmd.Flags().String("format", "", "Result format: xlsx, csv, json")
	cmd.Flags().Int("max-failures", 0, "Consecutive failures tolerated before the run is aborted")
	cmd.Flags().Int("group-size", 0, "Prompts sent concurrently per group")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	cmd.Flags().String("redis-addr", "", "Mirror run status to this Redis server")

	return cmd
}

var runBindings = map[string]string{
	"output.dir":       "output-dir",
	"output.format":    "format",
	"run.max_failures": "max-failures",
	"run.group_size":   "group-size",
	"metrics.addr":     "metrics-addr",
	"redis.addr":       "redis-addr",
}

func runPipeline(cmd *cobra.Command, s *streams) error {
	ctx := cmd.Context()
	logger := log.With().Str("component", "cli").Logger()

	cfg, err := loadConfig(cmd, s, runBindings)
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		logger.Error().Err(err).Msg("Missing credential")
		return err
	}

	dims := cfg.PromptDimensions()
	if err := dims.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	format, err := cfg.OutputFormat()
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	promptList := prompts.Generate(dims, cfg.PromptTemplate())
	runID := uuid.New()

	configPath, _ := cmd.Flags().GetString("config")
	printBanner(s.out, cfg, config.ConfigFileUsed(configPath), len(promptList), runID)

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		if err := confirm(ctx, s.in, s.out); err != nil {
			return err
		}
	}

	reporter := newReporter(ctx, cfg, runID)
	defer reporter.Close()

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Start(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	c, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	defer c.Close()

	scheduler := batch.NewScheduler(c, cfg.SchedulerConfig())
	progress := &progressObserver{out: s.out, next: reporter}
	scheduler.SetObserver(progress)

	fmt.Fprintf(s.out, "Generating answers with %s...\n", cfg.LLM.Model)
	reporter.Start(batch.Progress{
		Groups: batch.GroupCount(len(promptList), scheduler.Config().GroupSize),
		Total:  len(promptList),
	})

	start := time.Now()
	responses, runErr := scheduler.Run(ctx, promptList)
	elapsed := time.Since(start)

	reporter.Finish(status.StateFor(runErr), progress.last)

	switch {
	case errors.Is(runErr, batch.ErrBudgetExhausted):
		fmt.Fprintf(s.out, "\nAborted: %d consecutive request failures. No result file was written.\n", c.Failures())
		return runErr
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintln(s.out, "\n\nCancelled by user.")
		return runErr
	case runErr != nil:
		return runErr
	}

	fmt.Fprintf(s.out, "\nDone in %.1f seconds.\n", elapsed.Seconds())

	result := table.Assemble(dims, responses)
	path, err := table.WriteFile(result, cfg.Output.Dir, cfg.Output.Prefix, format, time.Now())
	if err != nil {
		logger.Error().Err(err).Msg("Writing result table failed")
		return err
	}
	fmt.Fprintf(s.out, "Results saved to: %s\n", path)

	stats := result.Stats()
	fmt.Fprintf(s.out, "Successful answers: %d/%d\n", stats.Successful, stats.Total)

	logger.Info().
		Str("run_id", runID.String()).
		Str("path", path).
		Int("successful", stats.Successful).
		Int("failed", stats.Failed).
		Dur("duration", elapsed).
		Msg("Run complete")

	return nil
}

func printBanner(out io.Writer, cfg *config.Config, source string, count int, runID uuid.UUID) {
	if source == "" {
		source = "(defaults)"
	}
	fmt.Fprintln(out, "promptgrid "+Version)
	fmt.Fprintln(out, strings.Repeat("=", 40))
	fmt.Fprintf(out, "Config:       %s\n", source)
	fmt.Fprintf(out, "Model:        %s\n", cfg.LLM.Model)
	fmt.Fprintf(out, "Endpoint:     %s\n", cfg.LLM.Endpoint)
	fmt.Fprintf(out, "Max failures: %d\n", cfg.Run.MaxFailures)
	fmt.Fprintf(out, "Prompts:      %d (%d x %d)\n", count, len(cfg.Dimensions.A), len(cfg.Dimensions.B))
	fmt.Fprintf(out, "Groups:       %d of %d, %s apart\n",
		batch.GroupCount(count, cfg.Run.GroupSize), cfg.Run.GroupSize, cfg.Run.GroupPause)
	fmt.Fprintf(out, "Run id:       %s\n", runID)
}

// confirm waits for Enter. "n"/"no" or end of input declines.
func confirm(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprint(out, "\nPress Enter to start (n to abort)... ")

	answer := make(chan string, 1)
	failed := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			failed <- err
			return
		}
		answer <- line
	}()

	// On cancellation the reader goroutine stays blocked on stdin; the
	// process exits right after, so it is not joined.
	select {
	case <-ctx.Done():
		fmt.Fprintln(out)
		return ctx.Err()
	case <-failed:
		fmt.Fprintln(out)
		return ErrDeclined
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "n", "no":
			return ErrDeclined
		}
		return nil
	}
}

// newReporter returns a Redis status reporter, or a no-op one when Redis
// is not configured or unreachable.
func newReporter(ctx context.Context, cfg *config.Config, runID uuid.UUID) status.Reporter {
	if cfg.Redis.Addr == "" {
		return status.Nop{ID: runID.String()}
	}

	connectCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	rdb, err := status.Connect(connectCtx, cfg.Redis.Addr)
	if err != nil {
		log.Warn().Str("component", "cli").Err(err).Msg("Run status mirror disabled")
		return status.Nop{ID: runID.String()}
	}
	return status.NewRedisReporter(rdb, cfg.Redis.KeyPrefix, runID)
}

// progressObserver prints group progress and forwards events.
type progressObserver struct {
	out  io.Writer
	next batch.Observer
	last batch.Progress
}

func (p *progressObserver) GroupStarted(pr batch.Progress) {
	fmt.Fprintf(p.out, "Group %d/%d...\n", pr.Group, pr.Groups)
	p.last = pr
	p.next.GroupStarted(pr)
}

func (p *progressObserver) GroupFinished(pr batch.Progress) {
	fmt.Fprintf(p.out, "Completed %d/%d prompts\n", pr.Done, pr.Total)
	p.last = pr
	p.next.GroupFinished(pr)
}
