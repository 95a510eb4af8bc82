package appconf

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Load builds the configuration from defaults, the YAML file named by
// -config, the environment and the remaining flags, in that order. lookup
// may be nil to read the process environment.
func Load(name string, args []string, lookup LookupFunc, output io.Writer) (Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	// Flags parse into their own copy so that only the ones given on the
	// command line are laid over the file and environment values.
	fv := Default()
	var (
		configPath string
		envName    string
		apiKeys    string
	)
	fs.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	fs.IntVar(&fv.Port, "port", fv.Port, "API server port")
	fs.StringVar(&envName, "env", "", "Environment (development|test|production)")
	fs.StringVar(&apiKeys, "api-keys", "", "Comma separated client API keys; empty leaves the API open")
	fs.IntVar(&fv.RateLimit, "rate-limit", fv.RateLimit, "Requests per second per client, 0 disables limiting")
	fs.BoolVar(&fv.Verbose, "verbose", fv.Verbose, "Enable debug logging")
	fs.StringVar(&fv.LogFormat, "log-format", fv.LogFormat, "Log format (text|json)")
	fs.StringVar(&fv.ClockOverride, "clock-override", fv.ClockOverride, "Serve the timetable as of this instant")
	fs.StringVar(&fv.Reference.DataDir, "gtfs-dir", fv.Reference.DataDir, "Directory holding the static GTFS text files")
	fs.StringVar(&fv.Reference.Archive, "gtfs-archive", fv.Reference.Archive, "GTFS zip path or URL, overrides -gtfs-dir")
	fs.StringVar(&fv.Feed.URL, "feed-url", fv.Feed.URL, "Vehicle positions feed URL, empty disables polling")
	fs.BoolVar(&fv.Feed.Synthetic, "synthetic-feed", fv.Feed.Synthetic, "Poll generated vehicles around Dublin instead of the feed URL")
	fs.DurationVar(&fv.Feed.Interval, "poll-interval", fv.Feed.Interval, "Feed poll interval")
	fs.StringVar(&fv.NATS.URL, "nats-url", fv.NATS.URL, "NATS server URL, empty disables publishing")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if configPath != "" {
		fileCfg, err := LoadFromFile(configPath, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	if err := ApplyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	var errs []error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = fv.Port
		case "env":
			env, err := ParseEnvironment(envName)
			if err != nil {
				errs = append(errs, err)
				return
			}
			cfg.Env = env
		case "api-keys":
			cfg.ApiKeys = ParseList(apiKeys)
		case "rate-limit":
			cfg.RateLimit = fv.RateLimit
		case "verbose":
			cfg.Verbose = fv.Verbose
		case "log-format":
			cfg.LogFormat = fv.LogFormat
		case "clock-override":
			cfg.ClockOverride = fv.ClockOverride
		case "gtfs-dir":
			cfg.Reference.DataDir = fv.Reference.DataDir
		case "gtfs-archive":
			cfg.Reference.Archive = fv.Reference.Archive
		case "feed-url":
			cfg.Feed.URL = fv.Feed.URL
		case "synthetic-feed":
			cfg.Feed.Synthetic = fv.Feed.Synthetic
		case "poll-interval":
			cfg.Feed.Interval = fv.Feed.Interval
		case "nats-url":
			cfg.NATS.URL = fv.NATS.URL
		}
	})
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid flags: %w", err)
	}

	cfg.ApiKeys = dropEmpty(cfg.ApiKeys)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func dropEmpty(keys []string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if strings.TrimSpace(k) != "" {
			out = append(out, k)
		}
	}
	return out
}
