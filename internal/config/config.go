package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/mcphost/internal/dispatch"
	"github.com/dusk-indust/mcphost/internal/reasoning"
	"github.com/dusk-indust/mcphost/internal/session"
)

// EnvConfigPath names the variable that overrides the default config path.
const EnvConfigPath = "MCPHOST_CONFIG"

// Config holds the host settings loaded from mcphost.yaml.
type Config struct {
	Servers    []ServerConfig   `yaml:"servers"`
	Reasoning  ReasoningConfig  `yaml:"reasoning"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig declares one capability server to launch.
type ServerConfig struct {
	ID       string            `yaml:"id"`
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Disabled bool              `yaml:"disabled,omitempty"`
}

// ReasoningConfig holds reasoning engine connection parameters.
type ReasoningConfig struct {
	Provider    string        `yaml:"provider"`
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"api_key"`
	Deployment  string        `yaml:"deployment"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int32         `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// PromptsConfig holds the fixed prompt texts.
type PromptsConfig struct {
	Decision             string `yaml:"decision"`
	SynthesisInstruction string `yaml:"synthesis_instruction"`
}

// DispatchConfig holds timing for connecting, listing and invoking.
type DispatchConfig struct {
	ToolTimeout         time.Duration `yaml:"-"`
	CatalogTimeout      time.Duration `yaml:"-"`
	ConnectTimeout      time.Duration `yaml:"-"`
	MaxParallelConnects int           `yaml:"max_parallel_connects"`

	ToolTimeoutRaw    string `yaml:"tool_timeout"`
	CatalogTimeoutRaw string `yaml:"catalog_timeout"`
	ConnectTimeoutRaw string `yaml:"connect_timeout"`
}

// TranscriptConfig locates the answered-query log.
type TranscriptConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPath returns $MCPHOST_CONFIG, else mcphost/mcphost.yaml under the
// user config directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "mcphost.yaml"
	}
	return filepath.Join(dir, "mcphost", "mcphost.yaml")
}

// LoadEnv loads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := gotenv.Load(f); err != nil {
			return fmt.Errorf("config: loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the config file at path. A missing file yields the defaults,
// which declare no servers.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data = nil
	} else if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML after expanding ${VAR} references, then fills
// defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating: %w", err)
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value, or the empty
// string when unset.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envRef.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"reasoning.timeout", cfg.Reasoning.TimeoutRaw, &cfg.Reasoning.Timeout},
		{"dispatch.tool_timeout", cfg.Dispatch.ToolTimeoutRaw, &cfg.Dispatch.ToolTimeout},
		{"dispatch.catalog_timeout", cfg.Dispatch.CatalogTimeoutRaw, &cfg.Dispatch.CatalogTimeout},
		{"dispatch.connect_timeout", cfg.Dispatch.ConnectTimeoutRaw, &cfg.Dispatch.ConnectTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("%s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s %q: must not be negative", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Reasoning.Provider == "" {
		c.Reasoning.Provider = reasoning.ProviderAzureOpenAI
	}
	if c.Reasoning.Endpoint == "" {
		c.Reasoning.Endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}
	if c.Reasoning.APIKey == "" {
		c.Reasoning.APIKey = os.Getenv("AZURE_OPENAI_KEY")
	}
	if c.Reasoning.Deployment == "" {
		c.Reasoning.Deployment = os.Getenv("AZURE_OPENAI_DEPLOYMENT")
	}
	if c.Reasoning.Timeout == 0 {
		c.Reasoning.Timeout = 2 * time.Minute
	}

	if c.Prompts.Decision == "" {
		c.Prompts.Decision = dispatch.DefaultDecisionTemplate
	}
	if c.Prompts.SynthesisInstruction == "" {
		c.Prompts.SynthesisInstruction = dispatch.DefaultSynthesisInstruction
	}

	if c.Dispatch.ToolTimeout == 0 {
		c.Dispatch.ToolTimeout = dispatch.DefaultToolTimeout
	}
	if c.Dispatch.CatalogTimeout == 0 {
		c.Dispatch.CatalogTimeout = 10 * time.Second
	}
	if c.Dispatch.ConnectTimeout == 0 {
		c.Dispatch.ConnectTimeout = session.DefaultConnectTimeout
	}
	if c.Dispatch.MaxParallelConnects == 0 {
		c.Dispatch.MaxParallelConnects = 4
	}

	if c.Transcript.Path == "" && !c.Transcript.Disabled {
		c.Transcript.Path = defaultTranscriptPath()
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func defaultTranscriptPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".mcphost", "transcript.db")
	}
	return filepath.Join(dir, "mcphost", "transcript.db")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("servers[%d].id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("servers[%d].id %q is declared twice", i, s.ID)
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Command) == "" {
			return fmt.Errorf("servers[%d] (%s): command is required", i, s.ID)
		}
	}

	if !strings.EqualFold(c.Reasoning.Provider, reasoning.ProviderAzureOpenAI) {
		return fmt.Errorf("reasoning.provider %q is not supported", c.Reasoning.Provider)
	}
	if c.Reasoning.Temperature < 0 || c.Reasoning.Temperature > 2 {
		return fmt.Errorf("reasoning.temperature %v is outside [0, 2]", c.Reasoning.Temperature)
	}
	if c.Reasoning.MaxTokens < 0 {
		return fmt.Errorf("reasoning.max_tokens must not be negative")
	}
	if c.Dispatch.MaxParallelConnects < 0 {
		return fmt.Errorf("dispatch.max_parallel_connects must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

// LaunchSpecs returns the enabled servers in declaration order.
func (c *Config) LaunchSpecs() []session.LaunchSpec {
	specs := make([]session.LaunchSpec, 0, len(c.Servers))
	for _, s := range c.Servers {
		if s.Disabled {
			continue
		}
		specs = append(specs, session.LaunchSpec{
			ID:      s.ID,
			Command: s.Command,
			Args:    append([]string(nil), s.Args...),
			Env:     s.Env,
		})
	}
	return specs
}

// ReasoningSettings converts the reasoning section for reasoning.New.
func (c *Config) ReasoningSettings() reasoning.Settings {
	return reasoning.Settings{
		Provider:    c.Reasoning.Provider,
		Endpoint:    c.Reasoning.Endpoint,
		APIKey:      c.Reasoning.APIKey,
		Deployment:  c.Reasoning.Deployment,
		Temperature: c.Reasoning.Temperature,
		MaxTokens:   c.Reasoning.MaxTokens,
		Timeout:     c.Reasoning.Timeout,
	}
}
