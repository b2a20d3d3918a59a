// Package client provides the chat completion request client with a
// shared consecutive-failure budget.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Prometheus metrics for chat requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptgrid_requests_total",
		Help: "Total chat completion calls by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptgrid_request_duration_seconds",
		Help:    "Chat completion request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	consecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptgrid_consecutive_failures",
		Help: "Current consecutive-failure count of the request client",
	})

	budgetExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptgrid_failure_budget_exhausted_total",
		Help: "Total number of times the failure budget was exhausted",
	})
)

// Defaults taken from the SiliconFlow setup the tool was built for.
const (
	DefaultEndpoint    = "https://api.siliconflow.com/v1/chat/completions"
	DefaultModel       = "Qwen/Qwen2.5-32B-Instruct"
	DefaultMaxTokens   = 50
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second

	// PlaceholderAPIKey is the value shipped in sample configs; it counts as unset.
	PlaceholderAPIKey = "your_api_key_here"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as a bearer token. Empty or PlaceholderAPIKey
	// means not configured.
	APIKey string

	// Endpoint is the full chat completions URL.
	Endpoint string

	// Model is the model identifier sent with every request.
	Model string

	// Generation parameters
	MaxTokens   int
	Temperature float32

	// Timeout bounds a single request.
	Timeout time.Duration

	// MaxFailures is the consecutive-failure ceiling.
	MaxFailures int

	// RateLimit caps requests per second. 0 disables the limiter.
	RateLimit float64
}

// DefaultConfig returns the default configuration for the given API key.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:      apiKey,
		Endpoint:    DefaultEndpoint,
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		Timeout:     DefaultTimeout,
		MaxFailures: DefaultMaxFailures,
	}
}

// Configured reports whether a usable API key is set.
func (c Config) Configured() bool {
	key := strings.TrimSpace(c.APIKey)
	return key != "" && key != PlaceholderAPIKey
}

// Client performs chat completion calls and converts every failure into a
// placeholder string. It owns the HTTP session and the failure budget.
type Client struct {
	httpClient *http.Client
	config     Config
	budget     *FailureBudget
	limiter    *rate.Limiter
	logger     zerolog.Logger

	// ctx lives as long as the client; it is cancelled on Close and on
	// budget exhaustion, which aborts every in-flight request.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a new request client. A missing API key is not an error
// here: Call reports it per call without touching the network.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}

	logger := log.With().Str("component", "request-client").Logger()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 8

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		httpClient: &http.Client{Transport: transport},
		config:     cfg,
		budget:     NewFailureBudget(cfg.MaxFailures),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// Call sends prompt as a single user message and returns the trimmed
// completion text. It never returns an error: failures come back as
// placeholder strings (see FailurePrefixes) and are counted against the
// failure budget.
func (c *Client) Call(ctx context.Context, prompt string) string {
	if !c.config.Configured() {
		requestsTotal.WithLabelValues("not_configured").Inc()
		return NotConfiguredMessage
	}
	if c.budget.IsExhausted() {
		requestsTotal.WithLabelValues("skipped").Inc()
		return BudgetExhaustedMessage
	}

	start := time.Now()
	text, err := c.complete(ctx, prompt)
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return c.fail(err)
	}

	c.budget.Succeed()
	consecutiveFailures.Set(0)
	requestsTotal.WithLabelValues("success").Inc()
	c.logger.Debug().
		Dur("duration", time.Since(start)).
		Int("chars", len([]rune(text))).
		Msg("Completion received")
	return text
}

// complete executes one chat completion request.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.ctx.Err() != nil {
		return "", &RequestError{Class: ErrorClassCanceled, Err: ErrClientClosed}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", c.classifyTransport(ctx, err)
		}
	}

	reqCtx, cancelReq := context.WithTimeout(ctx, c.config.Timeout)
	defer cancelReq()

	payload, err := json.Marshal(openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: wireTemperature(c.config.Temperature),
	})
	if err != nil {
		return "", &RequestError{Class: ErrorClassProtocol, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &RequestError{Class: ErrorClassProtocol, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.classifyTransport(reqCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", c.classifyTransport(reqCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RequestError{
			Class:      classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       snippet(body),
		}
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", &RequestError{
			Class:      ErrorClassProtocol,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode completion: %w", err),
		}
	}
	if len(completion.Choices) == 0 {
		return "", &RequestError{
			Class:      ErrorClassProtocol,
			StatusCode: resp.StatusCode,
			Err:        errors.New("no choices in completion"),
		}
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// wireTemperature maps 0 to the smallest positive float32. The request type
// omits a zero temperature, which would leave the server default in effect.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// classifyTransport categorizes an error raised before a status code was seen.
func (c *Client) classifyTransport(ctx context.Context, err error) *RequestError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &RequestError{Class: ErrorClassTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &RequestError{Class: ErrorClassTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &RequestError{Class: ErrorClassCanceled, Err: err}
	default:
		return &RequestError{Class: ErrorClassNetwork, Err: err}
	}
}

// fail accounts for a failed request and returns its placeholder.
func (c *Client) fail(err error) string {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		reqErr = &RequestError{Class: ErrorClassNetwork, Err: err}
	}

	// Siblings aborted by exhaustion or Close are not failures of the remote.
	if c.budget.IsExhausted() {
		requestsTotal.WithLabelValues("skipped").Inc()
		return BudgetExhaustedMessage
	}
	if !reqErr.Class.ConsumesBudget() {
		requestsTotal.WithLabelValues(string(reqErr.Class)).Inc()
		c.logger.Debug().Err(reqErr).Msg("Request canceled")
		return reqErr.Result()
	}

	failures, tripped := c.budget.Fail()
	requestsTotal.WithLabelValues(string(reqErr.Class)).Inc()
	consecutiveFailures.Set(float64(failures))

	c.logger.Warn().
		Err(reqErr).
		Str("error_class", string(reqErr.Class)).
		Int("status_code", reqErr.StatusCode).
		Int("failures", failures).
		Int("ceiling", c.budget.Ceiling()).
		Int("remaining", c.budget.Remaining()).
		Msg("Request failed")

	if tripped {
		budgetExhaustedTotal.Inc()
		c.logger.Error().
			Int("failures", failures).
			Int("ceiling", c.budget.Ceiling()).
			Msg("Failure budget exhausted - aborting run")
		c.cancel()
	}

	return reqErr.Result()
}

// Exhausted returns a channel that is closed once the failure budget is exhausted.
func (c *Client) Exhausted() <-chan struct{} {
	return c.budget.Exhausted()
}

// Failures returns the current consecutive-failure count.
func (c *Client) Failures() int {
	return c.budget.Failures()
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Close aborts in-flight requests and releases pooled connections.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.httpClient.CloseIdleConnections()
	})
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
