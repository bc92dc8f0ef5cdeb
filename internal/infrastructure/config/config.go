package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/localwebapp/internal/shared/paths"
)

// Config holds all host configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Host      HostConfig
	Trust     TrustConfig
	Bridge    BridgeConfig
	Update    UpdateConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// StoreConfig holds the persisted state root.
type StoreConfig struct {
	// Root is the parent of the LocalWebApp directory; empty means the user config dir
	Root string `envconfig:"WEBAPP_ROOT"`
}

// HostConfig holds load and verification settings.
type HostConfig struct {
	Verify       bool   `envconfig:"WEBAPP_VERIFY" default:"true"`
	DigestPolicy string `envconfig:"WEBAPP_DIGEST_POLICY" default:"all"`
	OutputDir    string `envconfig:"WEBAPP_OUTPUT_DIR" default:"dist"`
	Compression  string `envconfig:"WEBAPP_COMPRESSION" default:"deflate"`
}

// TrustConfig scopes capabilities for unverified applications.
type TrustConfig struct {
	Policy string   `envconfig:"WEBAPP_TRUST_POLICY" default:"full"`
	Allow  []string `envconfig:"WEBAPP_TRUST_ALLOW" default:"text,crypto,hostapp"`
}

// BridgeConfig holds command protocol settings.
type BridgeConfig struct {
	Timeout       time.Duration `envconfig:"BRIDGE_TIMEOUT" default:"30s"`
	MaxConcurrent int64         `envconfig:"BRIDGE_MAX_CONCURRENT" default:"64"`
}

// UpdateConfig holds update feed settings.
type UpdateConfig struct {
	FeedURL string        `envconfig:"UPDATE_FEED_URL"`
	FeedDir string        `envconfig:"UPDATE_FEED_DIR"`
	Timeout time.Duration `envconfig:"UPDATE_TIMEOUT" default:"10s"`
	Retries int           `envconfig:"UPDATE_RETRIES" default:"3"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.resolve()
	return &cfg, nil
}

// Default returns the configuration Load yields with an empty environment.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "127.0.0.1",
		},
		Host: HostConfig{
			Verify:       true,
			DigestPolicy: "all",
			OutputDir:    "dist",
			Compression:  "deflate",
		},
		Trust: TrustConfig{
			Policy: "full",
			Allow:  []string{"text", "crypto", "hostapp"},
		},
		Bridge: BridgeConfig{
			Timeout:       30 * time.Second,
			MaxConcurrent: 64,
		},
		Update: UpdateConfig{
			Timeout: 10 * time.Second,
			Retries: 3,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
	cfg.resolve()
	return cfg
}

// Validate rejects values no component can act on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Host.DigestPolicy) {
	case "all", "any":
	default:
		return fmt.Errorf("invalid WEBAPP_DIGEST_POLICY %q (want all or any)", c.Host.DigestPolicy)
	}
	switch strings.ToLower(c.Trust.Policy) {
	case "full", "restricted":
	default:
		return fmt.Errorf("invalid WEBAPP_TRUST_POLICY %q (want full or restricted)", c.Trust.Policy)
	}
	switch strings.ToLower(c.Host.Compression) {
	case "deflate", "zstd", "store":
	default:
		return fmt.Errorf("invalid WEBAPP_COMPRESSION %q (want deflate, zstd or store)", c.Host.Compression)
	}
	if c.Bridge.Timeout <= 0 {
		return fmt.Errorf("BRIDGE_TIMEOUT must be positive")
	}
	if c.Bridge.MaxConcurrent <= 0 {
		return fmt.Errorf("BRIDGE_MAX_CONCURRENT must be positive")
	}
	return nil
}

func (c *Config) resolve() {
	if c.Store.Root == "" {
		c.Store.Root = paths.DefaultRoot()
	}
}
