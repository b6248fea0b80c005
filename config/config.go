// ABOUTME: Server and CLI configuration loaded from BUILDR_* environment variables via envconfig.
// ABOUTME: Validates the loaded values and derives store paths, thresholds, and provider selection.

package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389-research/buildr/build"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment key.
const Prefix = "BUILDR"

// Config holds all application configuration loaded from environment variables.
// Tagged keys also fall back to the unprefixed name (ANTHROPIC_API_KEY, etc.).
type Config struct {
	// General
	Bind        string `envconfig:"BIND" default:"127.0.0.1:2389"`
	Home        string // BUILDR_HOME only; a bare HOME is never used as the data dir
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Providers
	DefaultProvider  string `envconfig:"DEFAULT_PROVIDER"`
	Model            string `envconfig:"MODEL"`
	MaxTokens        int    `envconfig:"MAX_TOKENS" default:"16000"`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `envconfig:"ANTHROPIC_BASE_URL"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL"`

	// Storage and auth
	DatabaseURL string `envconfig:"DATABASE_URL"`
	JWTSecret   string `envconfig:"JWT_SECRET"`
	DebugSecret string `envconfig:"DEBUG_SECRET"`

	// Images
	UnsplashAccessKey string `envconfig:"UNSPLASH_ACCESS_KEY"`
	PexelsAPIKey      string `envconfig:"PEXELS_API_KEY"`

	// Publishing (optional; off when the endpoint is empty)
	PublishEndpoint  string `envconfig:"PUBLISH_ENDPOINT"`
	PublishAccessKey string `envconfig:"PUBLISH_ACCESS_KEY"`
	PublishSecretKey string `envconfig:"PUBLISH_SECRET_KEY"`
	PublishBucket    string `envconfig:"PUBLISH_BUCKET" default:"buildr-sites"`
	PublishUseSSL    bool   `envconfig:"PUBLISH_USE_SSL" default:"true"`
	PublishPublicURL string `envconfig:"PUBLISH_PUBLIC_URL"`

	// Tuning
	SaveDebounce        time.Duration `envconfig:"SAVE_DEBOUNCE" default:"2s"`
	WorkspaceTTL        time.Duration `envconfig:"WORKSPACE_TTL" default:"30m"`
	PartialMinChars     int           `envconfig:"PARTIAL_MIN_CHARS" default:"500"`
	FailureMinChars     int           `envconfig:"FAILURE_MIN_CHARS" default:"100"`
	SaturationThreshold float64       `envconfig:"SATURATION_THRESHOLD" default:"0.3"`
}

// Load reads .env files (without overriding the environment), then the
// BUILDR_* variables, resolves the data directory, and validates.
func Load() (*Config, error) {
	LoadDotEnv()
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.Home == "" {
		home, err := DefaultHome()
		if err != nil {
			return nil, err
		}
		c.Home = home
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("BUILDR_BIND %q: %w", c.Bind, err))
	} else if !c.IsLoopback() && c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("BUILDR_JWT_SECRET is required when binding to non-loopback address %s", c.Bind))
	}
	if c.PartialMinChars <= 0 {
		errs = append(errs, errors.New("BUILDR_PARTIAL_MIN_CHARS must be positive"))
	}
	if c.FailureMinChars <= 0 {
		errs = append(errs, errors.New("BUILDR_FAILURE_MIN_CHARS must be positive"))
	}
	if c.SaturationThreshold <= 0 || c.SaturationThreshold >= 1 {
		errs = append(errs, errors.New("BUILDR_SATURATION_THRESHOLD must be between 0 and 1"))
	}
	if c.SaveDebounce <= 0 {
		errs = append(errs, errors.New("BUILDR_SAVE_DEBOUNCE must be positive"))
	}
	if c.WorkspaceTTL <= 0 {
		errs = append(errs, errors.New("BUILDR_WORKSPACE_TTL must be positive"))
	}
	switch c.DefaultProvider {
	case "", "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("BUILDR_DEFAULT_PROVIDER %q: want anthropic or openai", c.DefaultProvider))
	}
	return errors.Join(errs...)
}

// IsLoopback reports whether Bind only accepts local connections.
func (c *Config) IsLoopback() bool {
	host, _, err := net.SplitHostPort(c.Bind)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsDevelopment reports whether the environment is development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Provider returns the effective default provider: the configured one, else
// the first with a key (anthropic before openai), else empty.
func (c *Config) Provider() string {
	if c.DefaultProvider != "" {
		return c.DefaultProvider
	}
	switch {
	case c.AnthropicAPIKey != "":
		return "anthropic"
	case c.OpenAIAPIKey != "":
		return "openai"
	}
	return ""
}

// Thresholds returns the orchestrator heuristics.
func (c *Config) Thresholds() build.Thresholds {
	return build.Thresholds{
		PartialMinChars: c.PartialMinChars,
		FailureMinChars: c.FailureMinChars,
		Saturation:      c.SaturationThreshold,
	}
}

// ProjectsDB is the sqlite path used when DatabaseURL is empty.
func (c *Config) ProjectsDB() string { return filepath.Join(c.Home, "projects.db") }

// EventsDB is the sqlite path of the event log.
func (c *Config) EventsDB() string { return filepath.Join(c.Home, "events.db") }

// SessionsDir holds recovery and snapshot files.
func (c *Config) SessionsDir() string { return filepath.Join(c.Home, "sessions") }
