package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dsbridge/dsbridge/pkg/invoke"
	"github.com/dsbridge/dsbridge/pkg/retry"
	"github.com/dsbridge/dsbridge/pkg/synology"
)

// Config is the root configuration for dsbridge.
type Config struct {
	Server ServerConfig `yaml:"server,omitempty"`
	Bridge BridgeConfig `yaml:"bridge,omitempty"`
	Log    LogConfig    `yaml:"log,omitempty"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Address           string        `yaml:"address,omitempty"` // Default: ":8470"
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout,omitempty"`
	RelayHeaders      *bool         `yaml:"relay_headers,omitempty"` // Default: true
	RequireAdmin      bool          `yaml:"require_admin,omitempty"` // Restrict /users to administrators
}

// BridgeConfig configures the commands run against the appliance.
type BridgeConfig struct {
	Shell           string        `yaml:"shell,omitempty"`
	LoginCGI        string        `yaml:"login_cgi,omitempty"`
	LogoutCGI       string        `yaml:"logout_cgi,omitempty"`
	AuthenticateCGI string        `yaml:"authenticate_cgi,omitempty"`
	IDCommand       string        `yaml:"id_command,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	Retry           RetryConfig   `yaml:"retry,omitempty"`
}

// RetryConfig configures retries of read-only lookups that time out.
type RetryConfig struct {
	Attempts int           `yaml:"attempts,omitempty"` // Default: 1 (no retries)
	Delay    time.Duration `yaml:"delay,omitempty"`    // Default: 200ms
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // json, text
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Bridge.Timeout < 0 {
		return fmt.Errorf("bridge: timeout must be >= 0")
	}
	if c.Bridge.Retry.Attempts < 0 {
		return fmt.Errorf("bridge: retry attempts must be >= 0")
	}
	if c.Bridge.Retry.Delay < 0 {
		return fmt.Errorf("bridge: retry delay must be >= 0")
	}
	if c.Server.ReadHeaderTimeout < 0 {
		return fmt.Errorf("server: read_header_timeout must be >= 0")
	}
	for name, path := range map[string]string{
		"shell":            c.Bridge.Shell,
		"login_cgi":        c.Bridge.LoginCGI,
		"logout_cgi":       c.Bridge.LogoutCGI,
		"authenticate_cgi": c.Bridge.AuthenticateCGI,
	} {
		if path != "" && !strings.HasPrefix(path, "/") {
			return fmt.Errorf("bridge: %s must be an absolute path, got %q", name, path)
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8470"
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if c.Server.RelayHeaders == nil {
		relay := true
		c.Server.RelayHeaders = &relay
	}

	d := synology.DefaultConfig()
	if c.Bridge.Shell == "" {
		c.Bridge.Shell = invoke.DefaultShell
	}
	if c.Bridge.LoginCGI == "" {
		c.Bridge.LoginCGI = d.LoginCGI
	}
	if c.Bridge.LogoutCGI == "" {
		c.Bridge.LogoutCGI = d.LogoutCGI
	}
	if c.Bridge.AuthenticateCGI == "" {
		c.Bridge.AuthenticateCGI = d.AuthenticateCGI
	}
	if c.Bridge.IDCommand == "" {
		c.Bridge.IDCommand = d.IDCommand
	}
	if c.Bridge.Timeout == 0 {
		c.Bridge.Timeout = invoke.DefaultTimeout
	}
	if c.Bridge.Retry.Attempts == 0 {
		c.Bridge.Retry.Attempts = 1
	}
	if c.Bridge.Retry.Delay == 0 {
		c.Bridge.Retry.Delay = retry.Default().Delay
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Relay reports whether DSM response headers are relayed to clients.
func (s ServerConfig) Relay() bool {
	return s.RelayHeaders == nil || *s.RelayHeaders
}

// SynologyConfig converts the bridge section for synology.New.
func (b BridgeConfig) SynologyConfig() synology.Config {
	return synology.Config{
		LoginCGI:        b.LoginCGI,
		LogoutCGI:       b.LogoutCGI,
		AuthenticateCGI: b.AuthenticateCGI,
		IDCommand:       b.IDCommand,
	}
}

// LookupRetry returns the retry policy for read-only lookups.
func (b BridgeConfig) LookupRetry() retry.Policy {
	p := retry.Default()
	p.Attempts = b.Retry.Attempts
	p.Delay = b.Retry.Delay
	return p
}

// ParseLevel converts a level name to a slog.Level. An empty name is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", s)
	}
}
