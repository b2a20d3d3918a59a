// Package batch drives a prompt list through a request client in fixed-size,
// paced groups while preserving input order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/Sternrassler/promptgrid/pkg/client"
)

// ErrBudgetExhausted is returned by Run once the caller's failure budget is
// exhausted. No responses are returned with it.
var ErrBudgetExhausted = errors.New("failure budget exhausted")

// Defaults for the group pacing.
const (
	DefaultGroupSize  = 3
	DefaultGroupPause = 2 * time.Second
)

var (
	groupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptgrid_groups_total",
		Help: "Total number of dispatched prompt groups",
	})

	groupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptgrid_group_duration_seconds",
		Help:    "Time from dispatching a group until all of its calls returned",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	promptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptgrid_prompts_total",
		Help: "Total prompts processed by result",
	}, []string{"result"})

	runAbortsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptgrid_run_aborts_total",
		Help: "Runs stopped before completion by reason",
	}, []string{"reason"})

	callPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptgrid_call_panics_total",
		Help: "Calls that panicked and were converted to failure results",
	})
)

// Caller performs one request. *client.Client implements it.
type Caller interface {
	// Call returns model output or a failure placeholder; it never fails.
	Call(ctx context.Context, prompt string) string

	// Exhausted is closed once no further requests may be issued.
	Exhausted() <-chan struct{}
}

// Config holds scheduler configuration.
type Config struct {
	// GroupSize is the number of prompts dispatched concurrently.
	GroupSize int

	// GroupPause is the delay between two consecutive groups.
	GroupPause time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		GroupSize:  DefaultGroupSize,
		GroupPause: DefaultGroupPause,
	}
}

// Progress is a snapshot of a run, passed to an Observer.
type Progress struct {
	Group    int // 1-based index of the current group
	Groups   int
	Done     int // prompts with a result
	Total    int
	Failures int // failure placeholders among Done
}

// Observer receives group events. Calls happen on the goroutine running Run.
type Observer interface {
	GroupStarted(p Progress)
	GroupFinished(p Progress)
}

type nopObserver struct{}

func (nopObserver) GroupStarted(Progress)  {}
func (nopObserver) GroupFinished(Progress) {}

// Scheduler dispatches prompts group by group.
type Scheduler struct {
	caller   Caller
	config   Config
	observer Observer
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler. Invalid sizes fall back to the defaults.
func NewScheduler(caller Caller, config Config) *Scheduler {
	if config.GroupSize <= 0 {
		config.GroupSize = DefaultGroupSize
	}
	if config.GroupPause < 0 {
		config.GroupPause = 0
	}

	return &Scheduler{
		caller:   caller,
		config:   config,
		observer: nopObserver{},
		logger:   log.With().Str("component", "batch-scheduler").Logger(),
	}
}

// SetObserver registers an observer for group events. nil removes it.
func (s *Scheduler) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.config
}

// GroupCount returns the number of groups n prompts are split into.
func GroupCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Run sends every prompt through the caller and returns the results in
// input order. Groups never overlap; between two groups the scheduler
// pauses for GroupPause.
//
// Run returns ErrBudgetExhausted as soon as the caller signals exhaustion,
// and a wrapped ctx.Err() if ctx is cancelled. In both cases no results are
// returned.
func (s *Scheduler) Run(ctx context.Context, prompts []string) ([]string, error) {
	start := time.Now()
	total := len(prompts)
	size := s.config.GroupSize
	progress := Progress{Groups: GroupCount(total, size), Total: total}
	results := make([]string, total)

	s.logger.Info().
		Int("prompts", total).
		Int("groups", progress.Groups).
		Int("group_size", size).
		Dur("group_pause", s.config.GroupPause).
		Msg("Starting batch run")

	for lo := 0; lo < total; lo += size {
		hi := min(lo+size, total)
		progress.Group++

		if err := s.halted(ctx); err != nil {
			return nil, s.abort(err, progress)
		}

		s.observer.GroupStarted(progress)
		groupStart := time.Now()

		s.dispatch(ctx, prompts[lo:hi], results[lo:hi])

		groupsTotal.Inc()
		groupDuration.Observe(time.Since(groupStart).Seconds())

		failed := 0
		for _, r := range results[lo:hi] {
			if client.IsFailure(r) {
				failed++
			}
		}
		promptsTotal.WithLabelValues("success").Add(float64(hi - lo - failed))
		promptsTotal.WithLabelValues("failure").Add(float64(failed))

		progress.Done = hi
		progress.Failures += failed
		s.observer.GroupFinished(progress)

		s.logger.Info().
			Int("group", progress.Group).
			Int("groups", progress.Groups).
			Int("done", progress.Done).
			Int("total", total).
			Int("failed", failed).
			Dur("duration", time.Since(groupStart)).
			Msg("Group complete")

		if err := s.halted(ctx); err != nil {
			return nil, s.abort(err, progress)
		}

		if hi < total {
			if err := s.pause(ctx); err != nil {
				return nil, s.abort(err, progress)
			}
		}
	}

	s.logger.Info().
		Int("prompts", total).
		Int("failures", progress.Failures).
		Dur("duration", time.Since(start)).
		Msg("Batch run complete")

	return results, nil
}

// dispatch runs one goroutine per prompt and writes each result into its slot.
func (s *Scheduler) dispatch(ctx context.Context, prompts, results []string) {
	var wg conc.WaitGroup
	for i, prompt := range prompts {
		wg.Go(func() {
			results[i] = s.call(ctx, prompt)
		})
	}
	wg.Wait()
}

// call invokes the caller, converting a panic into a failure placeholder.
func (s *Scheduler) call(ctx context.Context, prompt string) (result string) {
	var pc panics.Catcher
	pc.Try(func() {
		result = s.caller.Call(ctx, prompt)
	})

	if r := pc.Recovered(); r != nil {
		callPanicsTotal.Inc()
		s.logger.Warn().
			Str("panic", fmt.Sprint(r.Value)).
			Msg("Call panicked")
		return client.GenerationFailed(r.Value)
	}
	return result
}

// halted reports whether the run must stop. Exhaustion wins over cancellation.
func (s *Scheduler) halted(ctx context.Context) error {
	select {
	case <-s.caller.Exhausted():
		return ErrBudgetExhausted
	default:
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	return nil
}

// pause waits GroupPause unless the run is halted first.
func (s *Scheduler) pause(ctx context.Context) error {
	if s.config.GroupPause <= 0 {
		return s.halted(ctx)
	}

	s.logger.Debug().Dur("pause", s.config.GroupPause).Msg("Pausing before next group")

	timer := time.NewTimer(s.config.GroupPause)
	defer timer.Stop()

	select {
	case <-timer.C:
		return s.halted(ctx)
	case <-s.caller.Exhausted():
		return ErrBudgetExhausted
	case <-ctx.Done():
		return s.halted(ctx)
	}
}

func (s *Scheduler) abort(err error, p Progress) error {
	reason := "canceled"
	if errors.Is(err, ErrBudgetExhausted) {
		reason = "budget_exhausted"
		s.logger.Error().
			Int("group", p.Group).
			Int("done", p.Done).
			Int("total", p.Total).
			Msg("Failure budget exhausted - stopping before next group")
	} else {
		s.logger.Warn().
			Err(err).
			Int("done", p.Done).
			Int("total", p.Total).
			Msg("Batch run interrupted")
	}
	runAbortsTotal.WithLabelValues(reason).Inc()
	return err
}
