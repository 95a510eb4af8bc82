package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LabartaPablo/BUS-REALTIME/internal/app"
	"github.com/LabartaPablo/BUS-REALTIME/internal/appconf"
	"github.com/LabartaPablo/BUS-REALTIME/internal/clock"
	"github.com/LabartaPablo/BUS-REALTIME/internal/logging"
	"github.com/LabartaPablo/BUS-REALTIME/internal/metrics"
	"github.com/LabartaPablo/BUS-REALTIME/internal/publisher"
	"github.com/LabartaPablo/BUS-REALTIME/internal/realtime"
	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
	"github.com/LabartaPablo/BUS-REALTIME/internal/restapi"
	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
	"github.com/LabartaPablo/BUS-REALTIME/internal/transit"
	"github.com/LabartaPablo/BUS-REALTIME/internal/webui"
)

const (
	serviceZone         = "Europe/Dublin"
	shutdownTimeout     = 30 * time.Second
	ageCollectorPeriod  = 5 * time.Second
	defaultLogOutputEnv = "LOG_OUTPUT"
)

// BuildApplication wires the long-lived components. Reference data and the
// feed poller are started later by Run so the server can listen first.
func BuildApplication(cfg appconf.Config, logOutput io.Writer) (*app.Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewStructuredLogger(logOutput, logging.Format(cfg.LogFormat), level)
	slog.SetDefault(logger)

	loc, err := time.LoadLocation(serviceZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load service time zone: %w", err)
	}
	clk, err := clock.FromOverride(cfg.ClockOverride, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid clock override: %w", err)
	}
	if _, replay := clk.(*clock.ReplayClock); replay {
		logger.Info("serving timetable from clock override", "override", cfg.ClockOverride)
	}

	cache := snapshot.NewCache()

	return &app.Application{
		Config:  cfg,
		Logger:  logger,
		Clock:   clk,
		Metrics: metrics.NewWithLogger(logger),
		Cache:   cache,
		Service: transit.NewService(cache, transit.WithClock(clk)),
	}, nil
}

// CreateServer builds the HTTP server with the API and debug routes.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	webui.NewWebUI(coreApp).SetWebUIRoutes(mux)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.Handler(mux),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}

	return srv, api
}

// loadReference reads the static GTFS from the archive when one is
// configured, otherwise from the data directory.
func loadReference(ctx context.Context, cfg appconf.Config) (*reference.Index, error) {
	if cfg.Reference.Archive != "" {
		return reference.LoadArchive(ctx, cfg.Reference.Archive)
	}
	return reference.Load(ctx, reference.Sources{Dir: cfg.Reference.DataDir})
}

// startFeed builds the poller, and the NATS sink when configured, and starts
// polling. The returned closer releases the sink.
func startFeed(ctx context.Context, coreApp *app.Application, idx *reference.Index) (*realtime.Poller, func(), error) {
	cfg := coreApp.Config
	logger := coreApp.Logger

	opts := []realtime.Option{
		realtime.WithClock(coreApp.Clock),
		realtime.WithLogger(logger),
		realtime.WithRecorder(coreApp.Metrics),
	}

	closeSink := func() {}
	if cfg.NATS.URL != "" {
		nc, err := publisher.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		sink := publisher.NewNATSSink(nc, cfg.NATS.SubjectPrefix, publisher.WithLogger(logger))
		opts = append(opts, realtime.WithSinks(sink))
		closeSink = func() { logging.SafeCloseWithLogging(sink, logger, "nats sink") }
		logging.LogOperation(logger, "nats_sink_enabled", "subject", sink.PositionsSubject())
	}

	feedCfg := realtime.Config{
		URL:          cfg.Feed.URL,
		APIKey:       cfg.Feed.APIKey,
		AuthHeader:   cfg.Feed.AuthHeader,
		Interval:     cfg.Feed.Interval,
		Timeout:      cfg.Feed.Timeout,
		MaxBodyBytes: cfg.Feed.MaxBodyBytes,
	}
	if cfg.Feed.Synthetic {
		feedCfg.URL = realtime.SyntheticFeedURL
		feedCfg.APIKey = ""
		opts = append(opts, realtime.WithHTTPClient(realtime.NewSyntheticClient(idx, coreApp.Clock)))
		logger.Warn("polling synthetic vehicle positions",
			"vehicles", realtime.DefaultSyntheticVehicles,
			"interval", feedCfg.Interval)
	}

	poller := realtime.NewPoller(feedCfg, idx, coreApp.Cache, opts...)

	coreApp.Service.SetPoller(poller)
	poller.Start(ctx)

	return poller, closeSink, nil
}

// Run serves HTTP until ctx is done. The reference index is loaded after the
// listener starts; the poller starts once it is available. A reference load
// failure stops the server.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	logger := logging.FromContext(ctx)
	if coreApp.Logger != nil {
		logger = coreApp.Logger
	}
	defer api.Shutdown()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr, "env", coreApp.Config.Env.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.LogError(logger, "server forced to shutdown", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		idx, err := loadReference(gctx, coreApp.Config)
		if err != nil {
			logging.LogError(logger, "failed to load reference data", err)
			return fmt.Errorf("failed to load reference data: %w", err)
		}
		coreApp.Service.SetReference(idx)
		counts := idx.Counts()
		logging.LogOperation(logger, "reference_loaded",
			"routes", counts.Routes,
			"stops", counts.Stops,
			"trips", counts.Trips,
			"duration_ms", time.Since(start).Milliseconds())

		coreApp.Metrics.StartSnapshotAgeCollector(
			func() time.Time { return coreApp.Cache.Current().Timestamp },
			coreApp.Clock.Now,
			ageCollectorPeriod)
		defer coreApp.Metrics.Shutdown()

		if !coreApp.Config.FeedEnabled() {
			logger.Warn("feed not configured, live positions disabled")
			<-gctx.Done()
			return nil
		}

		poller, closeSink, err := startFeed(gctx, coreApp, idx)
		if err != nil {
			return err
		}
		defer closeSink()

		<-gctx.Done()
		poller.Stop()
		logger.Info("feed polling stopped")
		return nil
	})

	return g.Wait()
}

// logOutput returns the writer named by LOG_OUTPUT ("stderr" or "stdout").
func logOutput() io.Writer {
	if os.Getenv(defaultLogOutputEnv) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}
