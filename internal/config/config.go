// Package config loads the promptgrid configuration from defaults, an
// optional YAML file, PROMPTGRID_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Sternrassler/promptgrid/pkg/batch"
	"github.com/Sternrassler/promptgrid/pkg/client"
	"github.com/Sternrassler/promptgrid/pkg/logging"
	"github.com/Sternrassler/promptgrid/pkg/prompts"
	"github.com/Sternrassler/promptgrid/pkg/status"
	"github.com/Sternrassler/promptgrid/pkg/table"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no usable credential is set.
var ErrMissingAPIKey = errors.New("api_key is not configured (set it in the config file or PROMPTGRID_API_KEY)")

// Config holds all promptgrid configuration.
type Config struct {
	APIKey     string           `mapstructure:"api_key" yaml:"api_key"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Run        RunConfig        `mapstructure:"run" yaml:"run"`
	Dimensions DimensionsConfig `mapstructure:"dimensions" yaml:"dimensions"`
	Prompt     PromptConfig     `mapstructure:"prompt" yaml:"prompt"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// LLMConfig describes the chat completions endpoint.
type LLMConfig struct {
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint" validate:"required,url"`
	Model       string        `mapstructure:"model" yaml:"model" validate:"required"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gt=0"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	// RateLimit caps requests per second; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
}

// RunConfig controls batching and the failure budget.
type RunConfig struct {
	MaxFailures int           `mapstructure:"max_failures" yaml:"max_failures" validate:"gt=0"`
	GroupSize   int           `mapstructure:"group_size" yaml:"group_size" validate:"gt=0"`
	GroupPause  time.Duration `mapstructure:"group_pause" yaml:"group_pause" validate:"gte=0"`
}

// DimensionsConfig holds the two label sets.
type DimensionsConfig struct {
	A []string `mapstructure:"a" yaml:"a" validate:"required,min=1,unique,dive,required"`
	B []string `mapstructure:"b" yaml:"b" validate:"required,min=1,unique,dive,required"`
}

// PromptConfig holds the prompt template.
type PromptConfig struct {
	Template string `mapstructure:"template" yaml:"template" validate:"required"`
	MaxChars int    `mapstructure:"max_chars" yaml:"max_chars" validate:"gt=0"`
}

// OutputConfig controls where the result table is written.
type OutputConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir" validate:"required"`
	Prefix string `mapstructure:"prefix" yaml:"prefix" validate:"required"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=xlsx csv json"`
}

// RedisConfig enables the run status mirror when Addr is set.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix" validate:"required"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// Default returns the built-in configuration. The API key is left empty.
func Default() Config {
	dims := prompts.DefaultDimensions()
	return Config{
		LLM: LLMConfig{
			Endpoint:    client.DefaultEndpoint,
			Model:       client.DefaultModel,
			MaxTokens:   client.DefaultMaxTokens,
			Temperature: client.DefaultTemperature,
			Timeout:     client.DefaultTimeout,
		},
		Run: RunConfig{
			MaxFailures: client.DefaultMaxFailures,
			GroupSize:   batch.DefaultGroupSize,
			GroupPause:  batch.DefaultGroupPause,
		},
		Dimensions: DimensionsConfig{A: dims.A, B: dims.B},
		Prompt: PromptConfig{
			Template: prompts.DefaultTemplateText,
			MaxChars: prompts.DefaultMaxChars,
		},
		Output: OutputConfig{
			Dir:    ".",
			Prefix: table.DefaultPrefix,
			Format: string(table.FormatXLSX),
		},
		Redis: RedisConfig{KeyPrefix: status.DefaultKeyPrefix},
		Log:   LogConfig{Level: string(logging.LevelInfo)},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks ranges and formats of all fields. It does not require an
// API key; see RequireAPIKey.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireAPIKey returns ErrMissingAPIKey unless a usable credential is set.
func (c *Config) RequireAPIKey() error {
	if !c.ClientConfig().Configured() {
		return ErrMissingAPIKey
	}
	return nil
}

// ClientConfig returns the request client configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		APIKey:      c.APIKey,
		Endpoint:    c.LLM.Endpoint,
		Model:       c.LLM.Model,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout,
		MaxFailures: c.Run.MaxFailures,
		RateLimit:   c.LLM.RateLimit,
	}
}

// SchedulerConfig returns the batch scheduler configuration.
func (c *Config) SchedulerConfig() batch.Config {
	return batch.Config{
		GroupSize:  c.Run.GroupSize,
		GroupPause: c.Run.GroupPause,
	}
}

// PromptDimensions returns the label sets.
func (c *Config) PromptDimensions() prompts.Dimensions {
	return prompts.Dimensions{A: c.Dimensions.A, B: c.Dimensions.B}
}

// PromptTemplate returns the prompt template.
func (c *Config) PromptTemplate() prompts.Template {
	return prompts.Template{Text: c.Prompt.Template, MaxChars: c.Prompt.MaxChars}
}

// OutputFormat returns the parsed output format.
func (c *Config) OutputFormat() (table.Format, error) {
	return table.ParseFormat(c.Output.Format)
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
