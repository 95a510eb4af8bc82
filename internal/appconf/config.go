// Package appconf holds the process configuration. Values are layered:
// built-in defaults, then an optional YAML file, then environment variables
// (optionally seeded from a .env file), then command-line flags.
package appconf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultPort         = 3001
	DefaultDataDir      = "data"
	DefaultFeedURL      = "https://api.nationaltransport.ie/gtfsr/v2/Vehicles"
	DefaultAuthHeader   = "x-api-key"
	DefaultPollInterval = 30 * time.Second
	DefaultFeedTimeout  = 15 * time.Second
	DefaultRateLimit    = 100
	DefaultNATSSubject  = "busrt"
)

// Config is the complete process configuration.
type Config struct {
	Port           int             `yaml:"port" validate:"gte=0,lte=65535"`
	Env            Environment     `yaml:"env" validate:"oneof=development test production"`
	ApiKeys        []string        `yaml:"api-keys"`
	RateLimit      int             `yaml:"rate-limit" validate:"gte=0"`
	Verbose        bool            `yaml:"verbose"`
	LogFormat      string          `yaml:"log-format" validate:"omitempty,oneof=text json"`
	LogLevel       string          `yaml:"log-level" validate:"omitempty,oneof=debug info warn error"`
	AllowedOrigins []string        `yaml:"allowed-origins"`
	ClockOverride  string          `yaml:"clock-override"`
	Reference      ReferenceConfig `yaml:"reference"`
	Feed           FeedConfig      `yaml:"feed"`
	NATS           NATSConfig      `yaml:"nats"`
}

// ReferenceConfig locates the static timetable. Archive, when set, is a
// zip path or URL and takes precedence over DataDir.
type ReferenceConfig struct {
	DataDir string `yaml:"data-dir" validate:"required_without=Archive"`
	Archive string `yaml:"archive"`
}

// FeedConfig configures the realtime vehicle positions feed. An empty URL
// disables polling unless Synthetic is set, in which case generated vehicles
// are polled instead of the endpoint.
type FeedConfig struct {
	URL          string        `yaml:"url" validate:"omitempty,url"`
	Synthetic    bool          `yaml:"synthetic"`
	APIKey       string        `yaml:"api-key"`
	AuthHeader   string        `yaml:"auth-header" validate:"required"`
	Interval     time.Duration `yaml:"interval" validate:"gte=1s"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=1s"`
	MaxBodyBytes int64         `yaml:"max-body-bytes" validate:"gte=0"`
}

// NATSConfig configures snapshot fan-out. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url" validate:"omitempty,url"`
	SubjectPrefix string `yaml:"subject-prefix" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:      DefaultPort,
		Env:       Development,
		RateLimit: DefaultRateLimit,
		LogFormat: "text",
		LogLevel:  "info",
		Reference: ReferenceConfig{DataDir: DefaultDataDir},
		Feed: FeedConfig{
			URL:        DefaultFeedURL,
			AuthHeader: DefaultAuthHeader,
			Interval:   DefaultPollInterval,
			Timeout:    DefaultFeedTimeout,
		},
		NATS: NATSConfig{SubjectPrefix: DefaultNATSSubject},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and returns a single error naming every
// offending field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// FeedEnabled reports whether the realtime feed should be polled.
func (c Config) FeedEnabled() bool {
	return c.Feed.URL != "" || c.Feed.Synthetic
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
