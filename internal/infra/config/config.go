package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// BrowserConfig holds settings for the local browser-control surface.
type BrowserConfig struct {
	// RemoteURL is the CDP WebSocket endpoint of an already-running
	// browser. If empty, a local instance is launched.
	RemoteURL string `yaml:"remote_url"`
	Headless  bool   `yaml:"headless"`
	// Timeout is the per-action timeout (duration string, default "30s").
	Timeout string `yaml:"timeout"`
	// ExtensionID identifies the companion extension whose service worker
	// the dormancy waker probes.
	ExtensionID string `yaml:"extension_id"`
}

// BridgeServer describes one remote tool provider reachable over the
// MCP stdio bridge.
type BridgeServer struct {
	// Name doubles as the provider alias in qualified tool names.
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	// CallTimeout bounds a single tools/call (duration string, default "30s").
	CallTimeout string `yaml:"call_timeout"`
	// MaxRestarts bounds process restarts on transport failure (default 2).
	MaxRestarts int `yaml:"max_restarts"`
}

// OrchestratorConfig holds task execution settings.
type OrchestratorConfig struct {
	// DefaultTimeout is the wall-clock task budget when the caller does not
	// supply one (duration string, default "2m").
	DefaultTimeout string `yaml:"default_timeout"`
	// StepDelay is the pause between consecutive steps (default "100ms").
	StepDelay string `yaml:"step_delay"`
}

// HealthConfig holds health checker settings.
type HealthConfig struct {
	// TTL is how long a cached snapshot is served (default "30s").
	TTL string `yaml:"ttl"`
	// ProbeTimeout bounds each component probe (default "5s").
	ProbeTimeout string `yaml:"probe_timeout"`
	// RefreshSchedule is a cron expression for background cache refresh.
	// Empty disables the background job.
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// GatewayConfig holds the HTTP facade settings.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // default "127.0.0.1:8750"
	// RateLimit is requests per second allowed per gateway (default 10).
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"` // default 20
}

// Config is the top-level application configuration.
type Config struct {
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Browser      BrowserConfig      `yaml:"browser"`
	Bridges      []BridgeServer     `yaml:"bridges"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Health       HealthConfig       `yaml:"health"`
	Gateway      GatewayConfig      `yaml:"gateway"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the YAML config file at path. A missing file is
// not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}
	if c.Browser.Timeout == "" {
		c.Browser.Timeout = "30s"
	}
	if c.Orchestrator.DefaultTimeout == "" {
		c.Orchestrator.DefaultTimeout = "2m"
	}
	if c.Orchestrator.StepDelay == "" {
		c.Orchestrator.StepDelay = "100ms"
	}
	if c.Health.TTL == "" {
		c.Health.TTL = "30s"
	}
	if c.Health.ProbeTimeout == "" {
		c.Health.ProbeTimeout = "5s"
	}
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = "127.0.0.1:8750"
	}
	if c.Gateway.RateLimit <= 0 {
		c.Gateway.RateLimit = 10
	}
	if c.Gateway.RateBurst <= 0 {
		c.Gateway.RateBurst = 20
	}
	for i := range c.Bridges {
		if c.Bridges[i].CallTimeout == "" {
			c.Bridges[i].CallTimeout = "30s"
		}
		if c.Bridges[i].MaxRestarts == 0 {
			c.Bridges[i].MaxRestarts = 2
		}
	}
}

func (c *Config) validate() error {
	durations := map[string]string{
		"browser.timeout":              c.Browser.Timeout,
		"orchestrator.default_timeout": c.Orchestrator.DefaultTimeout,
		"orchestrator.step_delay":      c.Orchestrator.StepDelay,
		"health.ttl":                   c.Health.TTL,
		"health.probe_timeout":         c.Health.ProbeTimeout,
	}
	for field, v := range durations {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config %s: %w", field, err)
		}
	}
	seen := make(map[string]bool, len(c.Bridges))
	for _, b := range c.Bridges {
		if b.Name == "" {
			return fmt.Errorf("config bridges: name is required")
		}
		if seen[b.Name] {
			return fmt.Errorf("config bridges: duplicate name %q", b.Name)
		}
		seen[b.Name] = true
		if b.Command == "" {
			return fmt.Errorf("config bridges[%s]: command is required", b.Name)
		}
		if _, err := time.ParseDuration(b.CallTimeout); err != nil {
			return fmt.Errorf("config bridges[%s].call_timeout: %w", b.Name, err)
		}
	}
	return nil
}

// Duration parses a duration string with a fallback for invalid values.
// Config validation rejects bad values at load time; the fallback guards
// zero-value structs built in tests.
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
