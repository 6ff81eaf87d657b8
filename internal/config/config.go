// ABOUTME: Configuration loading and parsing for coven-routes
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/coven-routes/internal/route"
)

// Config represents the complete coven-routes configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Balancer  BalancerConfig  `yaml:"balancer"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Peers     []PeerConfig    `yaml:"peers"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// ProtocolConfig holds the routing protocol parameters
type ProtocolConfig struct {
	LocalASN        uint32 `yaml:"local_asn"`
	MaxASPathLength int    `yaml:"max_as_path_length"`

	HoldTime          time.Duration `yaml:"-"`
	KeepaliveInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HoldTimeRaw          string `yaml:"hold_time"`
	KeepaliveIntervalRaw string `yaml:"keepalive_interval"`
}

// DiscoveryConfig holds AS-path discovery tuning
type DiscoveryConfig struct {
	LocalRegion   string `yaml:"local_region"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	MaxAttempts   int    `yaml:"max_attempts"`

	QueryTimeout time.Duration `yaml:"-"`

	QueryTimeoutRaw string `yaml:"query_timeout"`
}

// BalancerConfig holds load-balancer tuning
type BalancerConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Strategy          string  `yaml:"strategy"`
	MaxPaths          int     `yaml:"max_paths"`
	DegradedLatencyMs float64 `yaml:"degraded_latency_ms"`

	HealthInterval time.Duration `yaml:"-"`

	HealthIntervalRaw string `yaml:"health_interval"`
}

// AuthConfig holds authentication configuration.
// An empty secret disables bearer auth on the control surface.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PeerConfig describes a statically configured peer routing server
type PeerConfig struct {
	ASN      uint32 `yaml:"asn"`
	Address  string `yaml:"address"`
	Region   string `yaml:"region"`
	Priority string `yaml:"priority"`
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

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the config file path.
// Priority: COVEN_ROUTES_CONFIG env var > XDG_CONFIG_HOME/coven/routes.yaml > ~/.config/coven/routes.yaml
func DefaultPath() string {
	if envPath := os.Getenv("COVEN_ROUTES_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "routes.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "coven", "routes.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset fields with operational defaults.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:8179"
	}
	if c.Protocol.MaxASPathLength == 0 {
		c.Protocol.MaxASPathLength = route.DefaultMaxASPathLength
	}
	if c.Protocol.HoldTime == 0 {
		c.Protocol.HoldTime = 90 * time.Second
	}
	if c.Protocol.KeepaliveInterval == 0 {
		c.Protocol.KeepaliveInterval = 30 * time.Second
	}
	if c.Discovery.MaxConcurrent == 0 {
		c.Discovery.MaxConcurrent = 4
	}
	if c.Discovery.MaxAttempts == 0 {
		c.Discovery.MaxAttempts = 3
	}
	if c.Discovery.QueryTimeout == 0 {
		c.Discovery.QueryTimeout = 5 * time.Second
	}
	if c.Balancer.Strategy == "" {
		c.Balancer.Strategy = "round-robin"
	}
	if c.Balancer.MaxPaths == 0 {
		c.Balancer.MaxPaths = 64
	}
	if c.Balancer.DegradedLatencyMs == 0 {
		c.Balancer.DegradedLatencyMs = 1000
	}
	if c.Balancer.HealthInterval == 0 {
		c.Balancer.HealthInterval = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Protocol.LocalASN == 0 {
		return fmt.Errorf("protocol.local_asn is required")
	}
	if c.Protocol.MaxASPathLength < 1 {
		return fmt.Errorf("protocol.max_as_path_length must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	for i, peer := range c.Peers {
		if peer.ASN == 0 {
			return fmt.Errorf("peers[%d].asn is required", i)
		}
		if peer.ASN == c.Protocol.LocalASN {
			return fmt.Errorf("peers[%d].asn %d conflicts with protocol.local_asn", i, peer.ASN)
		}
		if peer.Address == "" {
			return fmt.Errorf("peers[%d].address is required", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Protocol.HoldTimeRaw != "" {
		cfg.Protocol.HoldTime, err = time.ParseDuration(cfg.Protocol.HoldTimeRaw)
		if err != nil {
			return fmt.Errorf("parsing hold_time %q: %w", cfg.Protocol.HoldTimeRaw, err)
		}
	}

	if cfg.Protocol.KeepaliveIntervalRaw != "" {
		cfg.Protocol.KeepaliveInterval, err = time.ParseDuration(cfg.Protocol.KeepaliveIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing keepalive_interval %q: %w", cfg.Protocol.KeepaliveIntervalRaw, err)
		}
	}

	if cfg.Discovery.QueryTimeoutRaw != "" {
		cfg.Discovery.QueryTimeout, err = time.ParseDuration(cfg.Discovery.QueryTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing query_timeout %q: %w", cfg.Discovery.QueryTimeoutRaw, err)
		}
	}

	if cfg.Balancer.HealthIntervalRaw != "" {
		cfg.Balancer.HealthInterval, err = time.ParseDuration(cfg.Balancer.HealthIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing health_interval %q: %w", cfg.Balancer.HealthIntervalRaw, err)
		}
	}

	return nil
}
