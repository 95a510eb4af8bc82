// Command feed-inspect fetches the vehicle positions feed once and prints
// what the poller would publish. With -watch it keeps polling and prints the
// interpolated frames a client would draw.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/LabartaPablo/BUS-REALTIME/internal/appconf"
	"github.com/LabartaPablo/BUS-REALTIME/internal/logging"
	"github.com/LabartaPablo/BUS-REALTIME/internal/motion"
	"github.com/LabartaPablo/BUS-REALTIME/internal/realtime"
	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
)

type options struct {
	feed      realtime.Config
	synthetic bool
	gtfsDir   string
	gtfsZip   string
	format    string
	sample    int
	watch     time.Duration
	fps       int
	window    time.Duration
	verbose   bool
}

// summary is the one-shot report.
type summary struct {
	Seq       uint64                     `json:"seq"`
	Timestamp time.Time                  `json:"timestamp"`
	Vehicles  int                        `json:"vehicles"`
	Routes    map[string]int             `json:"routes"`
	Reference *reference.Counts          `json:"reference,omitempty"`
	Sample    []snapshot.VehiclePosition `json:"sample"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseOptions(args []string, stderr io.Writer, lookup appconf.LookupFunc) (options, error) {
	fs := flag.NewFlagSet("feed-inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	apiKey, _ := lookup("NTA_API_KEY")
	var o options
	fs.StringVar(&o.feed.URL, "feed-url", appconf.DefaultFeedURL, "Vehicle positions feed URL")
	fs.StringVar(&o.feed.APIKey, "api-key", apiKey, "Feed API key (default $NTA_API_KEY)")
	fs.StringVar(&o.feed.AuthHeader, "auth-header", appconf.DefaultAuthHeader, "Header carrying the API key")
	fs.DurationVar(&o.feed.Timeout, "timeout", appconf.DefaultFeedTimeout, "Fetch timeout")
	fs.BoolVar(&o.synthetic, "synthetic", false, "Inspect generated vehicles instead of fetching -feed-url")
	fs.DurationVar(&o.feed.Interval, "poll-interval", appconf.DefaultPollInterval, "Poll interval in watch mode")
	fs.StringVar(&o.gtfsDir, "gtfs-dir", "", "Static GTFS directory used to resolve routes")
	fs.StringVar(&o.gtfsZip, "gtfs-archive", "", "Static GTFS zip path or URL, overrides -gtfs-dir")
	fs.StringVar(&o.format, "format", "json", "Output format (json|dump)")
	fs.IntVar(&o.sample, "sample", 5, "Number of vehicles to include in the report")
	fs.DurationVar(&o.watch, "watch", 0, "Keep polling for this long and print interpolated frames")
	fs.IntVar(&o.fps, "fps", 2, "Frames per second in watch mode")
	fs.DurationVar(&o.window, "window", motion.DefaultWindow, "Transition length between snapshots")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.format != "json" && o.format != "dump" {
		return o, fmt.Errorf("unknown format %q", o.format)
	}
	if o.watch > 0 && o.fps <= 0 {
		return o, fmt.Errorf("fps must be positive, got %d", o.fps)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookup appconf.LookupFunc) error {
	o, err := parseOptions(args, stderr, lookup)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewStructuredLogger(stderr, logging.FormatText, level)

	idx, err := loadIndex(ctx, o)
	if err != nil {
		return err
	}

	cache := snapshot.NewCache()
	popts := []realtime.Option{realtime.WithLogger(logger)}
	if o.synthetic {
		o.feed.URL = realtime.SyntheticFeedURL
		o.feed.APIKey = ""
		popts = append(popts, realtime.WithHTTPClient(realtime.NewSyntheticClient(idx, nil)))
	}
	poller := realtime.NewPoller(o.feed, idx, cache, popts...)

	if o.watch > 0 {
		return watch(ctx, o, poller, cache, stdout)
	}

	if err := poller.RunOnce(ctx); err != nil {
		return err
	}
	return report(stdout, o, summarize(cache.Current(), idx, o.sample))
}

func loadIndex(ctx context.Context, o options) (*reference.Index, error) {
	switch {
	case o.gtfsZip != "":
		return reference.LoadArchive(ctx, o.gtfsZip)
	case o.gtfsDir != "":
		return reference.Load(ctx, reference.Sources{Dir: o.gtfsDir})
	default:
		return nil, nil
	}
}

func summarize(s snapshot.Snapshot, idx *reference.Index, sample int) summary {
	out := summary{
		Seq:       s.Seq,
		Timestamp: s.Timestamp,
		Vehicles:  s.Len(),
		Routes:    make(map[string]int),
	}
	for _, p := range s.Positions {
		out.Routes[p.RouteName]++
	}
	if idx != nil {
		counts := idx.Counts()
		out.Reference = &counts
	}

	positions := append([]snapshot.VehiclePosition(nil), s.Positions...)
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	if sample >= 0 && sample < len(positions) {
		positions = positions[:sample]
	}
	out.Sample = positions
	return out
}

func report(w io.Writer, o options, s summary) error {
	if o.format == "dump" {
		cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
		cfg.Fdump(w, s)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// watch polls in the background and renders frames until o.watch elapses
// or ctx is done.
func watch(ctx context.Context, o options, poller *realtime.Poller, cache *snapshot.Cache, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, o.watch)
	defer cancel()

	poller.Start(ctx)
	defer poller.Stop()

	ticker := time.NewTicker(time.Second / time.Duration(o.fps))
	defer ticker.Stop()

	ip := motion.NewInterpolator(motion.WithWindow(o.window), motion.WithBaseline(motion.BaselineObserved))
	err := ip.Run(ctx, ticker.C, cache, func(frames []motion.Frame) {
		if len(frames) == 0 {
			return
		}
		sort.Slice(frames, func(i, j int) bool { return frames[i].ID < frames[j].ID })
		fmt.Fprintf(w, "frames=%d progress=%.2f\n", len(frames), frames[0].Progress)
		if o.verbose {
			for _, f := range frames {
				fmt.Fprintf(w, "  %s %s %.5f,%.5f %.0f\n", f.ID, f.Vehicle.RouteName, f.Latitude, f.Longitude, f.Bearing)
			}
		}
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
