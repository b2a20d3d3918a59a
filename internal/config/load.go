package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes all environment variables, e.g. PROMPTGRID_LLM_MODEL.
const EnvPrefix = "PROMPTGRID"

// DefaultFileName is looked up in the working directory when no config
// path is given.
const DefaultFileName = "promptgrid.yaml"

// Load builds the configuration. path may be empty, in which case
// DefaultFileName is used if it exists. flags maps config keys to
// command-line flags; a flag overrides the key only when it was set.
func Load(path string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigFile(DefaultFileName)
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", DefaultFileName, err)
		}
	}

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ConfigFileUsed reports which file Load would read for path.
func ConfigFileUsed(path string) string {
	if path != "" {
		return path
	}
	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName
	}
	return ""
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

// setDefaults registers every key so that environment variables are
// picked up by Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("api_key", d.APIKey)

	v.SetDefault("llm.endpoint", d.LLM.Endpoint)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.rate_limit", d.LLM.RateLimit)

	v.SetDefault("run.max_failures", d.Run.MaxFailures)
	v.SetDefault("run.group_size", d.Run.GroupSize)
	v.SetDefault("run.group_pause", d.Run.GroupPause)

	v.SetDefault("dimensions.a", d.Dimensions.A)
	v.SetDefault("dimensions.b", d.Dimensions.B)

	v.SetDefault("prompt.template", d.Prompt.Template)
	v.SetDefault("prompt.max_chars", d.Prompt.MaxChars)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.prefix", d.Output.Prefix)
	v.SetDefault("output.format", d.Output.Format)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}

// fileConfig is the YAML shape written by WriteDefault. Durations are
// rendered as strings so that the file reads back through viper.
type fileConfig struct {
	APIKey string `yaml:"api_key"`
	LLM    struct {
		Endpoint    string  `yaml:"endpoint"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		Timeout     string  `yaml:"timeout"`
		RateLimit   float64 `yaml:"rate_limit"`
	} `yaml:"llm"`
	Run struct {
		MaxFailures int    `yaml:"max_failures"`
		GroupSize   int    `yaml:"group_size"`
		GroupPause  string `yaml:"group_pause"`
	} `yaml:"run"`
	Dimensions DimensionsConfig `yaml:"dimensions"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Output     OutputConfig     `yaml:"output"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// WriteYAML writes c as a YAML config file.
func WriteYAML(w io.Writer, c Config) error {
	var fc fileConfig
	fc.APIKey = c.APIKey
	fc.LLM.Endpoint = c.LLM.Endpoint
	fc.LLM.Model = c.LLM.Model
	fc.LLM.MaxTokens = c.LLM.MaxTokens
	fc.LLM.Temperature = c.LLM.Temperature
	fc.LLM.Timeout = c.LLM.Timeout.String()
	fc.LLM.RateLimit = c.LLM.RateLimit
	fc.Run.MaxFailures = c.Run.MaxFailures
	fc.Run.GroupSize = c.Run.GroupSize
	fc.Run.GroupPause = c.Run.GroupPause.String()
	fc.Dimensions = c.Dimensions
	fc.Prompt = c.Prompt
	fc.Output = c.Output
	fc.Redis = c.Redis
	fc.Metrics = c.Metrics
	fc.Log = c.Log

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(fc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// WriteDefaultFile writes the default configuration to path. An existing
// file is only replaced when force is set.
func WriteDefaultFile(path string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := WriteYAML(f, Default()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
