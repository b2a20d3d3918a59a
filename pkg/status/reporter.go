package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/promptgrid/pkg/batch"
)

// State is the lifecycle state of a run.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateExhausted State = "exhausted"
	StateCanceled  State = "canceled"
	StateFailed    State = "failed"
)

// StateFor maps the outcome of batch.Scheduler.Run to a final state.
func StateFor(err error) State {
	switch {
	case err == nil:
		return StateCompleted
	case errors.Is(err, batch.ErrBudgetExhausted):
		return StateExhausted
	case errors.Is(err, context.Canceled):
		return StateCanceled
	default:
		return StateFailed
	}
}

const (
	// DefaultTTL is how long a run hash survives its last update.
	DefaultTTL = 24 * time.Hour

	writeTimeout = 2 * time.Second
)

// Reporter publishes run progress. It receives group events as a
// batch.Observer.
type Reporter interface {
	batch.Observer

	// Start publishes the initial state of the run.
	Start(p batch.Progress)

	// Finish publishes the final state of the run.
	Finish(state State, p batch.Progress)

	// RunID returns the id the run is published under.
	RunID() string

	// Close releases the underlying connection.
	Close() error
}

// Nop is a Reporter that publishes nothing.
type Nop struct {
	ID string
}

func (n Nop) Start(batch.Progress)         {}
func (n Nop) GroupStarted(batch.Progress)  {}
func (n Nop) GroupFinished(batch.Progress) {}
func (n Nop) Finish(State, batch.Progress) {}
func (n Nop) RunID() string                { return n.ID }
func (n Nop) Close() error                 { return nil }

// RedisReporter mirrors run progress into a Redis hash.
type RedisReporter struct {
	redis  *redis.Client
	key    RunKey
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewRedisReporter creates a reporter for the run id under prefix.
func NewRedisReporter(redisClient *redis.Client, prefix string, runID uuid.UUID) *RedisReporter {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisReporter{
		redis:  redisClient,
		key:    RunKey{Prefix: prefix, RunID: runID.String()},
		ttl:    DefaultTTL,
		logger: log.With().Str("component", "status").Str("run_id", runID.String()).Logger(),
		now:    time.Now,
	}
}

// RunID implements Reporter.
func (r *RedisReporter) RunID() string {
	return r.key.RunID
}

// Close closes the Redis client.
func (r *RedisReporter) Close() error {
	return r.redis.Close()
}

// Key returns the hash key of this run.
func (r *RedisReporter) Key() string {
	return r.key.String()
}

// Start implements Reporter.
func (r *RedisReporter) Start(p batch.Progress) {
	r.publish(StateRunning, p)
}

// GroupStarted implements batch.Observer.
func (r *RedisReporter) GroupStarted(p batch.Progress) {
	r.publish(StateRunning, p)
}

// GroupFinished implements batch.Observer.
func (r *RedisReporter) GroupFinished(p batch.Progress) {
	r.publish(StateRunning, p)
}

// Finish implements Reporter.
func (r *RedisReporter) Finish(state State, p batch.Progress) {
	r.publish(state, p)
}

func (r *RedisReporter) publish(state State, p batch.Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.Publish(ctx, state, p); err != nil {
		r.logger.Warn().Err(err).Str("state", string(state)).Msg("Status write failed")
	}
}

// Publish writes the run hash, refreshes its TTL and registers the run id
// in one transaction.
func (r *RedisReporter) Publish(ctx context.Context, state State, p batch.Progress) error {
	key := r.key.String()

	pipe := r.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"state":      string(state),
		"group":      p.Group,
		"groups":     p.Groups,
		"done":       p.Done,
		"total":      p.Total,
		"failures":   p.Failures,
		"updated_at": r.now().UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, key, r.ttl)
	pipe.SAdd(ctx, RunsKey(r.key.Prefix), r.key.RunID)

	if _, err := pipe.Exec(ctx); err != nil {
		StatusWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("redis status write: %w", err)
	}

	StatusWrites.WithLabelValues("ok").Inc()
	r.logger.Debug().
		Str("state", string(state)).
		Int("group", p.Group).
		Int("done", p.Done).
		Msg("Status published")
	return nil
}

// Connect opens a Redis client and verifies it with PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
