package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/mcphost/internal/dispatch"
	"github.com/dusk-indust/mcphost/internal/session"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcphost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("TEST_AZ_KEY", "k-123")
	path := writeConfig(t, `
servers:
  - id: file_system
    command: mcphost
    args: [serve, filesys, --root, /srv]
  - id: slack
    command: python
    args: [servers/slack_server.py]
    env:
      SLACK_TOKEN: xoxb-test
  - id: weather
    command: weather-mcp
    disabled: true

reasoning:
  endpoint: https://example.openai.azure.com
  api_key: "${TEST_AZ_KEY}"
  deployment: gpt-4o
  temperature: 0.3
  max_tokens: 512
  timeout: 45s

prompts:
  decision: "Choose a tool."

dispatch:
  tool_timeout: 5s
  catalog_timeout: 2s
  connect_timeout: 1m
  max_parallel_connects: 2

transcript:
  path: /tmp/mcphost-test.db

logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 3)
	assert.Equal(t, "xoxb-test", cfg.Servers[1].Env["SLACK_TOKEN"])

	assert.Equal(t, "k-123", cfg.Reasoning.APIKey)
	assert.Equal(t, "azure-openai", cfg.Reasoning.Provider)
	assert.Equal(t, 45*time.Second, cfg.Reasoning.Timeout)
	assert.Equal(t, float32(0.3), cfg.Reasoning.Temperature)
	assert.Equal(t, int32(512), cfg.Reasoning.MaxTokens)

	assert.Equal(t, "Choose a tool.", cfg.Prompts.Decision)
	assert.Equal(t, dispatch.DefaultSynthesisInstruction, cfg.Prompts.SynthesisInstruction)

	assert.Equal(t, 5*time.Second, cfg.Dispatch.ToolTimeout)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.CatalogTimeout)
	assert.Equal(t, time.Minute, cfg.Dispatch.ConnectTimeout)
	assert.Equal(t, 2, cfg.Dispatch.MaxParallelConnects)

	assert.Equal(t, "/tmp/mcphost-test.db", cfg.Transcript.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	specs := cfg.LaunchSpecs()
	require.Len(t, specs, 2, "disabled servers are not launched")
	assert.Equal(t, session.LaunchSpec{ID: "file_system", Command: "mcphost", Args: []string{"serve", "filesys", "--root", "/srv"}}, specs[0])
	assert.Equal(t, "slack", specs[1].ID)

	rs := cfg.ReasoningSettings()
	assert.Equal(t, "gpt-4o", rs.Deployment)
	assert.Equal(t, 45*time.Second, rs.Timeout)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Servers)
	assert.Equal(t, dispatch.DefaultDecisionTemplate, cfg.Prompts.Decision)
	assert.Equal(t, dispatch.DefaultToolTimeout, cfg.Dispatch.ToolTimeout)
	assert.Equal(t, session.DefaultConnectTimeout, cfg.Dispatch.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.CatalogTimeout)
	assert.Equal(t, 4, cfg.Dispatch.MaxParallelConnects)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.NotEmpty(t, cfg.Transcript.Path)
}

// TestLoad_ReasoningFallsBackToAzureEnv verifies that unset reasoning
// settings are read from AZURE_OPENAI_* variables.
func TestLoad_ReasoningFallsBackToAzureEnv(t *testing.T) {
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://env.openai.azure.com")
	t.Setenv("AZURE_OPENAI_KEY", "env-key")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "env-deploy")

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://env.openai.azure.com", cfg.Reasoning.Endpoint)
	assert.Equal(t, "env-key", cfg.Reasoning.APIKey)
	assert.Equal(t, "env-deploy", cfg.Reasoning.Deployment)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing id", "servers:\n  - command: x\n", "servers[0].id is required"},
		{"duplicate id", "servers:\n  - {id: fs, command: a}\n  - {id: fs, command: b}\n", `"fs" is declared twice`},
		{"empty command", "servers:\n  - {id: fs}\n", "command is required"},
		{"bad duration", "dispatch:\n  tool_timeout: soon\n", "dispatch.tool_timeout"},
		{"negative duration", "reasoning:\n  timeout: -1s\n", "must not be negative"},
		{"provider", "reasoning:\n  provider: carrier-pigeon\n", "not supported"},
		{"temperature", "reasoning:\n  temperature: 3\n", "outside [0, 2]"},
		{"log level", "logging:\n  level: loud\n", "logging.level"},
		{"log format", "logging:\n  format: xml\n", "logging.format"},
		{"not yaml", "servers: [", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestParse_TranscriptDisabledKeepsEmptyPath verifies that no default
// database path is filled in when the transcript is off.
func TestParse_TranscriptDisabledKeepsEmptyPath(t *testing.T) {
	cfg, err := Parse([]byte("transcript:\n  disabled: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Transcript.Disabled)
	assert.Empty(t, cfg.Transcript.Path)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MCPHOST_TEST_VAR", "value")
	assert.Equal(t, "a value b", expandEnvVars("a ${MCPHOST_TEST_VAR} b"))
	assert.Equal(t, "a  b", expandEnvVars("a ${MCPHOST_TEST_UNSET_VAR} b"))
	assert.Equal(t, "$PLAIN", expandEnvVars("$PLAIN"))
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/mcphost.yaml")
	assert.Equal(t, "/etc/mcphost.yaml", DefaultPath())

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/home/u/.config")
	assert.Equal(t, filepath.Join("/home/u/.config", "mcphost", "mcphost.yaml"), DefaultPath())
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MCPHOST_DOTENV_A=from-file\nMCPHOST_DOTENV_B=from-file\n"), 0o644))

	t.Setenv("MCPHOST_DOTENV_B", "from-shell")
	t.Cleanup(func() { os.Unsetenv("MCPHOST_DOTENV_A") })

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-file", os.Getenv("MCPHOST_DOTENV_A"))
	assert.Equal(t, "from-shell", os.Getenv("MCPHOST_DOTENV_B"), "existing variables win")
}
