// ABOUTME: Configuration loading and parsing for the director
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete director configuration
type Config struct {
	Director  DirectorConfig  `yaml:"director"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Health    HealthConfig    `yaml:"health"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DirectorConfig holds request-admission and command timing configuration
type DirectorConfig struct {
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`

	CommandTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	CommandTimeoutRaw string `yaml:"command_timeout"`
}

// ChannelsConfig holds per-agent channel configuration
type ChannelsConfig struct {
	SocketDir string `yaml:"socket_dir"`

	ConnectTimeout time.Duration `yaml:"-"`

	ConnectTimeoutRaw string `yaml:"connect_timeout"`
}

// HealthConfig holds health sweep timing configuration
type HealthConfig struct {
	SweepInterval time.Duration `yaml:"-"`
	PingTimeout   time.Duration `yaml:"-"`

	SweepIntervalRaw string `yaml:"sweep_interval"`
	PingTimeoutRaw   string `yaml:"ping_timeout"`
}

// WorkflowsConfig points at workflow definition files
type WorkflowsConfig struct {
	// Paths are YAML files each holding one workflow definition
	Paths []string `yaml:"paths"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Channels.SocketDir == "" {
		return fmt.Errorf("channels.socket_dir is required")
	}

	if c.Director.MaxConcurrentRequests < 0 {
		return fmt.Errorf("director.max_concurrent_requests must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Director.CommandTimeoutRaw != "" {
		cfg.Director.CommandTimeout, err = time.ParseDuration(cfg.Director.CommandTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing command_timeout %q: %w", cfg.Director.CommandTimeoutRaw, err)
		}
	}

	if cfg.Channels.ConnectTimeoutRaw != "" {
		cfg.Channels.ConnectTimeout, err = time.ParseDuration(cfg.Channels.ConnectTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_timeout %q: %w", cfg.Channels.ConnectTimeoutRaw, err)
		}
	}

	if cfg.Health.SweepIntervalRaw != "" {
		cfg.Health.SweepInterval, err = time.ParseDuration(cfg.Health.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Health.SweepIntervalRaw, err)
		}
	}

	if cfg.Health.PingTimeoutRaw != "" {
		cfg.Health.PingTimeout, err = time.ParseDuration(cfg.Health.PingTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing ping_timeout %q: %w", cfg.Health.PingTimeoutRaw, err)
		}
	}

	return nil
}
