// Package config loads the dispatch service configuration from YAML or
// JSON5 files, expands ${ENV} references, applies defaults, and validates
// the result before any component starts.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration for the dispatch service.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	ServiceNow ServiceNowConfig `yaml:"servicenow"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Routing    RoutingConfig    `yaml:"routing"`
	Health     HealthConfig     `yaml:"health"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Loop       LoopConfig       `yaml:"loop"`
	Standards  StandardsConfig  `yaml:"standards"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ProviderConfig selects and configures the LLM backend.
type ProviderConfig struct {
	// Name is the active provider: "anthropic" or "openai".
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ServiceNowConfig holds credentials for the ServiceNow REST API.
type ServiceNowConfig struct {
	InstanceURL string        `yaml:"instance_url"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MonitoringConfig holds the network monitoring backend connection.
type MonitoringConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// RoutingConfig tunes handler scoring and shortlist assembly.
type RoutingConfig struct {
	ShortlistSize             int     `yaml:"shortlist_size"`
	KeywordWeight             float64 `yaml:"keyword_weight"`
	UtteranceWeight           float64 `yaml:"utterance_weight"`
	DegradedDamping           float64 `yaml:"degraded_damping"`
	MissingSignalPenalty      float64 `yaml:"missing_signal_penalty"`
	SignalBonus               float64 `yaml:"signal_bonus"`
	MissingRequirementPenalty float64 `yaml:"missing_requirement_penalty"`
	RequirementBonus          float64 `yaml:"requirement_bonus"`
}

// HealthConfig tunes the TTL health cache and its background sweep.
type HealthConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`

	// FailClosed controls how a cache miss reads. The default treats
	// unprobed handlers as healthy; setting this damps them instead.
	FailClosed bool `yaml:"fail_closed"`
}

// BreakerConfig tunes the per-dependency circuit breakers.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	HalfOpenCooldown time.Duration `yaml:"half_open_cooldown"`
}

// LoopConfig tunes the tool-calling control loop.
type LoopConfig struct {
	MaxSteps        int           `yaml:"max_steps"`
	MaxTokens       int           `yaml:"max_tokens"`
	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	ToolConcurrency int           `yaml:"tool_concurrency"`
}

// StandardsConfig points the standards updater at its issue log and the
// documents it maintains.
type StandardsConfig struct {
	// IssueLog is a JSON Lines file of recorded validation failures.
	IssueLog       string `yaml:"issue_log"`
	CommonMistakes string `yaml:"common_mistakes"`
	StandardsDoc   string `yaml:"standards_doc"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads the configuration file at path, resolves includes, expands
// environment variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := loadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no
// credentials set. Useful for tests and the route CLI.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = "anthropic"
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Provider.RetryDelay == 0 {
		c.Provider.RetryDelay = time.Second
	}
	if c.ServiceNow.Timeout == 0 {
		c.ServiceNow.Timeout = 30 * time.Second
	}
	if c.Monitoring.Timeout == 0 {
		c.Monitoring.Timeout = 15 * time.Second
	}
	if c.Routing.ShortlistSize == 0 {
		c.Routing.ShortlistSize = 4
	}
	if c.Health.TTL == 0 {
		c.Health.TTL = 5 * time.Minute
	}
	if c.Health.SweepInterval == 0 {
		c.Health.SweepInterval = time.Minute
	}
	if c.Health.ProbeTimeout == 0 {
		c.Health.ProbeTimeout = 10 * time.Second
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 3
	}
	if c.Breaker.ResetTimeout == 0 {
		c.Breaker.ResetTimeout = time.Minute
	}
	if c.Breaker.HalfOpenCooldown == 0 {
		c.Breaker.HalfOpenCooldown = 30 * time.Second
	}
	if c.Loop.MaxSteps == 0 {
		c.Loop.MaxSteps = 6
	}
	if c.Loop.ToolTimeout == 0 {
		c.Loop.ToolTimeout = 30 * time.Second
	}
	if c.Loop.ToolConcurrency == 0 {
		c.Loop.ToolConcurrency = 4
	}
	if c.Standards.CommonMistakes == "" {
		c.Standards.CommonMistakes = "common_mistakes.md"
	}
	if c.Standards.StandardsDoc == "" {
		c.Standards.StandardsDoc = "standards.md"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	if c.Loop.MaxSteps < 1 {
		return fmt.Errorf("loop.max_steps must be at least 1")
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1")
	}
	if c.ServiceNow.InstanceURL != "" && !strings.HasPrefix(c.ServiceNow.InstanceURL, "http") {
		return fmt.Errorf("servicenow.instance_url must be an http(s) URL")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	return nil
}
