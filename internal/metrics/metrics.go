// Package metrics provides Prometheus metrics for the bus-realtime service.
package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll cycle outcomes used as the "outcome" label.
const (
	OutcomePublished   = "published"
	OutcomeFetchError  = "fetch_error"
	OutcomeDecodeError = "decode_error"
	OutcomeCanceled    = "canceled"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPResponseSize     *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Feed metrics
	PollCyclesTotal       *prometheus.CounterVec
	PollCycleDuration     prometheus.Histogram
	VehiclesInSnapshot    prometheus.Gauge
	UnresolvedRoutesTotal prometheus.Counter
	SnapshotTimestamp     prometheus.Gauge
	SnapshotAgeSeconds    prometheus.Gauge

	// Fan-out metrics
	SinkFailuresTotal *prometheus.CounterVec

	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "busrt_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "busrt_http_request_duration_seconds",
				Help:    "HTTP request latency distribution",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "busrt_http_response_size_bytes",
				Help:    "Size of HTTP response bodies",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busrt_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
		PollCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "busrt_feed_poll_cycles_total",
				Help: "Feed poll cycles by outcome",
			},
			[]string{"outcome"},
		),
		PollCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "busrt_feed_poll_cycle_duration_seconds",
			Help:    "Duration of a fetch, decode and join cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}),
		VehiclesInSnapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busrt_snapshot_vehicles",
			Help: "Number of vehicle positions in the current snapshot",
		}),
		UnresolvedRoutesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busrt_feed_unresolved_routes_total",
			Help: "Vehicle positions whose route id was not found in the reference data",
		}),
		SnapshotTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busrt_snapshot_timestamp_seconds",
			Help: "Unix time at which the current snapshot was captured",
		}),
		SnapshotAgeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busrt_snapshot_age_seconds",
			Help: "Seconds since the current snapshot was captured",
		}),
		SinkFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "busrt_snapshot_sink_failures_total",
				Help: "Failed snapshot deliveries by sink",
			},
			[]string{"sink"},
		),
		logger: logger,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.HTTPRequestsInFlight,
		m.PollCyclesTotal,
		m.PollCycleDuration,
		m.VehiclesInSnapshot,
		m.UnresolvedRoutesTotal,
		m.SnapshotTimestamp,
		m.SnapshotAgeSeconds,
		m.SinkFailuresTotal,
	)

	return m
}

// ObserveHTTPRequest records one served request. path is the route pattern,
// never the raw URL, to bound label cardinality.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, d time.Duration, bytes int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
	m.HTTPResponseSize.WithLabelValues(path).Observe(float64(bytes))
}

// ObserveCycle records the outcome and duration of one poll cycle.
func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	m.PollCyclesTotal.WithLabelValues(outcome).Inc()
	m.PollCycleDuration.Observe(d.Seconds())
}

// ObserveSnapshot records the shape of a freshly published snapshot.
func (m *Metrics) ObserveSnapshot(vehicles, unresolved int, capturedAt time.Time) {
	m.VehiclesInSnapshot.Set(float64(vehicles))
	if unresolved > 0 {
		m.UnresolvedRoutesTotal.Add(float64(unresolved))
	}
	m.SnapshotTimestamp.Set(float64(capturedAt.Unix()))
}

// ObserveSinkFailure counts a failed delivery to the named sink.
func (m *Metrics) ObserveSinkFailure(sink string) {
	m.SinkFailuresTotal.WithLabelValues(sink).Inc()
}

// StartSnapshotAgeCollector periodically sets SnapshotAgeSeconds from the
// capture time reported by captured. A zero capture time leaves the gauge
// untouched. The method is idempotent; call Shutdown to stop the collector.
func (m *Metrics) StartSnapshotAgeCollector(captured func() time.Time, now func() time.Time, interval time.Duration) {
	if captured == nil || now == nil {
		return
	}

	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in snapshot age collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ts := captured()
				if ts.IsZero() {
					continue
				}
				m.SnapshotAgeSeconds.Set(now().Sub(ts).Seconds())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
