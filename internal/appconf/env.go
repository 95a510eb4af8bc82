package appconf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto cfg. A nil lookup reads the
// process environment.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := envReader{lookup: lookup}

	e.int("PORT", &cfg.Port)
	if v, ok := e.get("ENV"); ok {
		env, err := ParseEnvironment(v)
		if err != nil {
			e.fail("ENV", err)
		} else {
			cfg.Env = env
		}
	}
	e.list("API_KEYS", &cfg.ApiKeys)
	e.int("RATE_LIMIT", &cfg.RateLimit)
	e.bool("VERBOSE", &cfg.Verbose)
	e.str("LOG_FORMAT", &cfg.LogFormat)
	e.str("LOG_LEVEL", &cfg.LogLevel)
	e.list("ALLOWED_ORIGINS", &cfg.AllowedOrigins)
	e.str("CLOCK_OVERRIDE", &cfg.ClockOverride)

	e.str("GTFS_DATA_DIR", &cfg.Reference.DataDir)
	e.str("GTFS_ARCHIVE", &cfg.Reference.Archive)

	e.str("FEED_URL", &cfg.Feed.URL)
	e.bool("FEED_SYNTHETIC", &cfg.Feed.Synthetic)
	e.str("NTA_API_KEY", &cfg.Feed.APIKey)
	e.str("FEED_AUTH_HEADER", &cfg.Feed.AuthHeader)
	e.duration("POLL_INTERVAL", &cfg.Feed.Interval)
	e.duration("FEED_TIMEOUT", &cfg.Feed.Timeout)

	e.str("NATS_URL", &cfg.NATS.URL)
	e.str("NATS_SUBJECT_PREFIX", &cfg.NATS.SubjectPrefix)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = n
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = b
}

// duration accepts Go duration strings or a bare number of seconds.
func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		*dst = ParseList(v)
	}
}

// ParseList splits a comma-separated value and trims each element.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
