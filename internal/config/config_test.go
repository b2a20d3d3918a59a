package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/promptgrid/pkg/client"
	"github.com/Sternrassler/promptgrid/pkg/table"
)

// isolate runs the test in an empty directory without PROMPTGRID_* variables.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"PROMPTGRID_API_KEY", "PROMPTGRID_LLM_MODEL", "PROMPTGRID_RUN_GROUP_SIZE",
		"PROMPTGRID_DIMENSIONS_A", "PROMPTGRID_OUTPUT_FORMAT", "PROMPTGRID_RUN_GROUP_PAUSE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, client.DefaultEndpoint, cfg.LLM.Endpoint)
	assert.Equal(t, "Qwen/Qwen2.5-32B-Instruct", cfg.LLM.Model)
	assert.Equal(t, 10, cfg.Run.MaxFailures)
	assert.Equal(t, 3, cfg.Run.GroupSize)
	assert.Equal(t, 2*time.Second, cfg.Run.GroupPause)
	assert.Len(t, cfg.Dimensions.A, 44)
	assert.Len(t, cfg.Dimensions.B, 8)
	assert.Equal(t, "xlsx", cfg.Output.Format)
	assert.ErrorIs(t, cfg.RequireAPIKey(), ErrMissingAPIKey)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Empty(t, ConfigFileUsed(""))
}

func TestLoad_FromFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, `
api_key: sk-file
llm:
  model: test-model
  timeout: 5s
run:
  max_failures: 4
  group_size: 2
  group_pause: 500ms
dimensions:
  a: [north, south]
  b: [travel, work]
output:
  format: csv
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "sk-file", cfg.APIKey)
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 4, cfg.Run.MaxFailures)
	assert.Equal(t, 2, cfg.Run.GroupSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Run.GroupPause)
	assert.Equal(t, []string{"north", "south"}, cfg.Dimensions.A)
	assert.Equal(t, "csv", cfg.Output.Format)
	// untouched keys keep their defaults
	assert.Equal(t, client.DefaultEndpoint, cfg.LLM.Endpoint)
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, DefaultFileName), "llm:\n  model: from-cwd\n")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "from-cwd", cfg.LLM.Model)
	assert.Equal(t, DefaultFileName, ConfigFileUsed(""))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "c.yaml")
	writeFile(t, path, "api_key: sk-file\nllm:\n  model: file-model\n")

	t.Setenv("PROMPTGRID_API_KEY", "sk-env")
	t.Setenv("PROMPTGRID_LLM_MODEL", "env-model")
	t.Setenv("PROMPTGRID_RUN_GROUP_SIZE", "5")
	t.Setenv("PROMPTGRID_DIMENSIONS_A", "x,y,z")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.APIKey)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Run.GroupSize)
	assert.Equal(t, []string{"x", "y", "z"}, cfg.Dimensions.A)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	isolate(t)
	t.Setenv("PROMPTGRID_OUTPUT_FORMAT", "csv")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("format", "xlsx", "")
	fs.Int("group-size", 3, "")
	require.NoError(t, fs.Parse([]string{"--format=json"}))

	cfg, err := Load("", map[string]*pflag.Flag{
		"output.format":  fs.Lookup("format"),
		"run.group_size": fs.Lookup("group-size"),
	})
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Output.Format)
	// unset flag does not shadow the default
	assert.Equal(t, 3, cfg.Run.GroupSize)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero group size", "run:\n  group_size: 0\n"},
		{"zero ceiling", "run:\n  max_failures: 0\n"},
		{"unknown format", "output:\n  format: pdf\n"},
		{"bad endpoint", "llm:\n  endpoint: not a url\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"duplicate labels", "dimensions:\n  b: [x, x]\n"},
		{"bad redis addr", "redis:\n  addr: nope\n"},
		{"temperature out of range", "llm:\n  temperature: 3.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, "c.yaml")
			writeFile(t, path, tt.content)

			_, err := Load(path, nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"", true},
		{client.PlaceholderAPIKey, true},
		{"sk-live", false},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.APIKey = tt.key
		err := cfg.RequireAPIKey()
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrMissingAPIKey, "key %q", tt.key)
		} else {
			assert.NoError(t, err, "key %q", tt.key)
		}
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "sk"
	cfg.LLM.RateLimit = 2.5
	cfg.Output.Format = "json"

	cc := cfg.ClientConfig()
	assert.Equal(t, "sk", cc.APIKey)
	assert.Equal(t, 10, cc.MaxFailures)
	assert.Equal(t, 2.5, cc.RateLimit)
	assert.Equal(t, float32(0.7), cc.Temperature)

	sc := cfg.SchedulerConfig()
	assert.Equal(t, 3, sc.GroupSize)
	assert.Equal(t, 2*time.Second, sc.GroupPause)

	assert.Equal(t, 352, cfg.PromptDimensions().Size())
	assert.Equal(t, 20, cfg.PromptTemplate().MaxChars)

	format, err := cfg.OutputFormat()
	require.NoError(t, err)
	assert.Equal(t, table.FormatJSON, format)

	lc := cfg.LoggingConfig()
	assert.Equal(t, "info", string(lc.Level))
}

func TestWriteDefaultFile_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "promptgrid.yaml")

	require.NoError(t, WriteDefaultFile(path, false))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)

	// existing file is kept unless forced
	assert.Error(t, WriteDefaultFile(path, false))
	assert.NoError(t, WriteDefaultFile(path, true))
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, Default()))

	out := buf.String()
	assert.Contains(t, out, "group_pause: 2s")
	assert.Contains(t, out, "timeout: 30s")
	assert.Contains(t, out, "format: xlsx")
	assert.Contains(t, out, "休门")
}
