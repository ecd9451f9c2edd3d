// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Policies applied to connection attempts whose source address is unknown.
const (
	AnonymousBypass = "bypass"
	AnonymousShared = "shared"
	AnonymousDeny   = "deny"
)

var validate = validator.New()

// RateLimitConfig defines the per-address connection admission ceiling.
type RateLimitConfig struct {
	Ceiling   int           `env:"CEILING" envDefault:"10" validate:"gt=0"`
	Window    time.Duration `env:"WINDOW" envDefault:"60s" validate:"gt=0"`
	Anonymous string        `env:"ANONYMOUS" envDefault:"bypass" validate:"oneof=bypass shared deny"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Host            string          `env:"HOST" envDefault:"0.0.0.0"`
	Port            string          `env:"PORT" envDefault:"8000" validate:"required,numeric"`
	AllowedOrigins  []string        `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize  int64           `env:"MAX_MESSAGE_SIZE" envDefault:"1048576" validate:"gt=0"`
	SendBufferSize  int             `env:"SEND_BUFFER_SIZE" envDefault:"256" validate:"gt=0"`
	RateLimit       RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	LogLevel        string          `env:"LOG_LEVEL" envDefault:"error" validate:"oneof=debug info warn error"`
	StaticDir       string          `env:"STATIC_DIR"`
	ShutdownTimeout time.Duration   `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg, err := parseConfig(map[string]string{})
	if err != nil {
		// Defaults are static; a failure here is a broken struct tag.
		panic(err)
	}
	return cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables fall back to their defaults; the result is validated.
func NewConfigFromEnv() (*Config, error) {
	cfg, err := parseConfig(nil)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseConfig(environment map[string]string) (*Config, error) {
	var cfg Config
	opts := env.Options{Environment: environment}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
