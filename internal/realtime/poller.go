// Package realtime polls the GTFS-Realtime vehicle positions feed, joins each
// vehicle against the reference index and publishes the result into the
// snapshot cache. A failed cycle leaves the cache untouched; the next tick is
// the retry.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LabartaPablo/BUS-REALTIME/internal/clock"
	"github.com/LabartaPablo/BUS-REALTIME/internal/logging"
	"github.com/LabartaPablo/BUS-REALTIME/internal/metrics"
	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
)

const (
	DefaultInterval   = 30 * time.Second
	DefaultTimeout    = 15 * time.Second
	DefaultAuthHeader = "x-api-key"
)

// Config describes the feed endpoint and the poll cadence.
type Config struct {
	URL          string
	APIKey       string
	AuthHeader   string
	Interval     time.Duration
	Timeout      time.Duration
	MaxBodyBytes int64
}

func (c Config) withDefaults() Config {
	if c.AuthHeader == "" {
		c.AuthHeader = DefaultAuthHeader
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

// Recorder receives cycle metrics. *metrics.Metrics implements it.
type Recorder interface {
	ObserveCycle(outcome string, d time.Duration)
	ObserveSnapshot(vehicles, unresolved int, capturedAt time.Time)
	ObserveSinkFailure(sink string)
}

// Sink is notified with every published snapshot. Failures are logged and
// never affect the cache.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, s snapshot.Snapshot) error
}

// Poller is the single writer of a snapshot cache.
type Poller struct {
	cfg      Config
	index    *reference.Index
	cache    *snapshot.Cache
	client   *http.Client
	clock    clock.Clock
	logger   *slog.Logger
	recorder Recorder
	sinks    []Sink

	state     atomic.Int32
	lastErr   atomic.Pointer[cycleError]
	lastCycle atomic.Pointer[time.Time]
	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex
}

type cycleError struct {
	err error
}

// Option configures a Poller.
type Option func(*Poller)

// WithHTTPClient replaces the dedicated feed client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) { p.client = c }
}

// WithClock sets the clock used for capture timestamps.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithRecorder reports cycle metrics to r.
func WithRecorder(r Recorder) Option {
	return func(p *Poller) { p.recorder = r }
}

// WithSinks adds snapshot sinks notified after every publish.
func WithSinks(sinks ...Sink) Option {
	return func(p *Poller) { p.sinks = append(p.sinks, sinks...) }
}

// NewPoller returns a Poller publishing into cache. index may be nil, in
// which case every route is passed through unresolved.
func NewPoller(cfg Config, index *reference.Index, cache *snapshot.Cache, opts ...Option) *Poller {
	p := &Poller{
		cfg:   cfg.withDefaults(),
		index: index,
		cache: cache,
		clock: clock.RealClock{},
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewHTTPClient(p.cfg.Timeout)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With(slog.String("component", "feed_poller"))
	return p
}

// State returns the current phase of the poll cycle.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// LastError returns the error of the most recent cycle, or nil if it
// succeeded.
func (p *Poller) LastError() error {
	if ce := p.lastErr.Load(); ce != nil {
		return ce.err
	}
	return nil
}

// LastCycle returns when the most recent cycle finished.
func (p *Poller) LastCycle() (time.Time, bool) {
	if t := p.lastCycle.Load(); t != nil {
		return *t, true
	}
	return time.Time{}, false
}

// Interval returns the configured poll period.
func (p *Poller) Interval() time.Duration {
	return p.cfg.Interval
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
}

// Start launches the poll loop. The first cycle runs immediately, then once
// per interval until ctx is done or Stop is called. Later calls are no-ops.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		p.mu.Lock()
		p.cancel = cancel
		p.mu.Unlock()

		logging.LogOperation(p.logger, "feed_poller_started",
			slog.String("url", p.cfg.URL),
			slog.Duration("interval", p.cfg.Interval))
		go p.loop(ctx)
	})
}

// Stop cancels the in-flight cycle, whose result is discarded, and returns
// once the loop has exited. No cycle begins after Stop returns. It is safe to
// call more than once, and before Start.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		// Consume startOnce so a later Start cannot launch the loop.
		started := true
		p.startOnce.Do(func() { started = false })

		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()

		if !started || cancel == nil {
			close(p.done)
			return
		}
		cancel()
		<-p.done
		logging.LogOperation(p.logger, "feed_poller_stopped")
	})
}

// Done is closed when the poll loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	_ = p.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			_ = p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single fetch, decode, join and publish cycle. Errors are
// logged and returned; the cache only changes when the cycle publishes.
func (p *Poller) RunOnce(ctx context.Context) (err error) {
	started := p.clock.Now()
	outcome := metrics.OutcomePublished

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	defer func() {
		p.setState(StateIdle)
		finished := p.clock.Now()
		p.lastCycle.Store(&finished)
		if err != nil {
			p.lastErr.Store(&cycleError{err: err})
		} else {
			p.lastErr.Store(nil)
		}
		if p.recorder != nil {
			p.recorder.ObserveCycle(outcome, finished.Sub(started))
		}
	}()

	p.setState(StateFetching)
	body, err := p.fetch(ctx)
	if err != nil {
		outcome = metrics.OutcomeFetchError
		if errors.Is(ctx.Err(), context.Canceled) {
			outcome = metrics.OutcomeCanceled
			return err
		}
		logging.LogWarn(p.logger, "feed fetch failed, keeping last snapshot", err)
		return err
	}

	p.setState(StateDecoding)
	feed, err := DecodeFeed(body)
	if err != nil {
		outcome = metrics.OutcomeDecodeError
		logging.LogWarn(p.logger, "feed decode failed, keeping last snapshot", err,
			slog.Int("bytes", len(body)))
		return err
	}

	p.setState(StateJoining)
	capturedAt := p.clock.Now()
	positions, stats := Join(feed, p.index, capturedAt, p.logger)

	if err := ctx.Err(); err != nil {
		outcome = metrics.OutcomeCanceled
		return err
	}

	p.setState(StatePublished)
	p.cache.Publish(snapshot.Snapshot{Positions: positions, Timestamp: capturedAt})
	published := p.cache.Current()

	if p.recorder != nil {
		p.recorder.ObserveSnapshot(len(positions), stats.Unresolved, published.Timestamp)
	}
	logging.LogOperation(p.logger, "snapshot_published",
		slog.Int("vehicles", len(positions)),
		slog.Int("entities", stats.Entities),
		slog.Int("dropped", stats.Dropped),
		slog.Int("unresolved", stats.Unresolved),
		slog.Uint64("seq", published.Seq))

	p.notify(ctx, published)
	return nil
}

func (p *Poller) notify(ctx context.Context, s snapshot.Snapshot) {
	for _, sink := range p.sinks {
		if err := sink.Deliver(ctx, s); err != nil {
			logging.LogError(p.logger, "snapshot sink failed", err, slog.String("sink", sink.Name()))
			if p.recorder != nil {
				p.recorder.ObserveSinkFailure(sink.Name())
			}
		}
	}
}
