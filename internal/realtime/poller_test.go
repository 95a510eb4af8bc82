package realtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/LabartaPablo/BUS-REALTIME/internal/clock"
	"github.com/LabartaPablo/BUS-REALTIME/internal/metrics"
	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
)

var captureTime = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func testIndex(t *testing.T) *reference.Index {
	t.Helper()
	fsys := fstest.MapFS{
		"agency.txt": {Data: []byte("agency_id,agency_name,agency_url,agency_timezone\n" +
			"978,Dublin Bus,https://www.dublinbus.ie,Europe/Dublin\n")},
		"routes.txt": {Data: []byte("route_id,agency_id,route_short_name,route_long_name,route_type,route_color\n" +
			"4622_46A,978,46A,Phoenix Park - Dun Laoghaire,3,\n" +
			"C1_route,978,C1,Adamstown - Sandymount,3,\n")},
		"trips.txt": {Data: []byte("route_id,service_id,trip_id,trip_headsign,direction_id\n" +
			"C1_route,wk,trip-c1,Sandymount,1\n")},
		"stops.txt":      {Data: []byte("stop_id,stop_name,stop_lat,stop_lon\n")},
		"stop_times.txt": {Data: []byte("trip_id,arrival_time,departure_time,stop_id,stop_sequence\n")},
	}
	idx, err := reference.Load(context.Background(), reference.Sources{FS: fsys})
	require.NoError(t, err)
	return idx
}

type entitySpec struct {
	id        string
	routeID   string
	tripID    string
	direction *uint32
	lat, lon  float32
	bearing   *float32
	timestamp uint64
	noVehicle bool
}

func feedBytes(t *testing.T, headerTS uint64, entities ...entitySpec) []byte {
	t.Helper()
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
	}
	if headerTS > 0 {
		fm.Header.Timestamp = proto.Uint64(headerTS)
	}
	for _, e := range entities {
		entity := &gtfsrtpb.FeedEntity{Id: proto.String(e.id)}
		if !e.noVehicle {
			vp := &gtfsrtpb.VehiclePosition{
				Position: &gtfsrtpb.Position{
					Latitude:  proto.Float32(e.lat),
					Longitude: proto.Float32(e.lon),
					Bearing:   e.bearing,
				},
				Trip: &gtfsrtpb.TripDescriptor{DirectionId: e.direction},
			}
			if e.routeID != "" {
				vp.Trip.RouteId = proto.String(e.routeID)
			}
			if e.tripID != "" {
				vp.Trip.TripId = proto.String(e.tripID)
			}
			if e.timestamp > 0 {
				vp.Timestamp = proto.Uint64(e.timestamp)
			}
			entity.Vehicle = vp
		}
		fm.Entity = append(fm.Entity, entity)
	}
	b, err := proto.Marshal(fm)
	require.NoError(t, err)
	return b
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRecorder struct {
	mu           sync.Mutex
	outcomes     []string
	vehicles     int
	unresolved   int
	sinkFailures []string
}

func (f *fakeRecorder) ObserveCycle(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeRecorder) ObserveSnapshot(vehicles, unresolved int, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicles, f.unresolved = vehicles, unresolved
}

func (f *fakeRecorder) ObserveSinkFailure(sink string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinkFailures = append(f.sinkFailures, sink)
}

func newTestPoller(t *testing.T, url string, cache *snapshot.Cache, opts ...Option) *Poller {
	t.Helper()
	base := []Option{
		WithClock(clock.NewMockClock(captureTime)),
		WithLogger(discardLogger()),
	}
	return NewPoller(Config{URL: url, APIKey: "secret"}, testIndex(t), cache, append(base, opts...)...)
}

func TestRunOnce_JoinsKnownAndUnknownRoutes(t *testing.T) {
	dir0 := uint32(0)
	payload := feedBytes(t, 0,
		entitySpec{id: "v1", routeID: "4622_46A", lat: 53.35, lon: -6.26, bearing: proto.Float32(45), direction: &dir0, timestamp: 1748851195},
		entitySpec{id: "v2", routeID: "ZZZ", lat: 53.30, lon: -6.20},
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cache := snapshot.NewCache()
	rec := &fakeRecorder{}
	p := newTestPoller(t, srv.URL, cache, WithRecorder(rec))

	require.NoError(t, p.RunOnce(context.Background()))

	cur := cache.Current()
	assert.Equal(t, captureTime, cur.Timestamp)
	require.Len(t, cur.Positions, 2)
	byID := cur.ByID()

	known := byID["v1"]
	assert.Equal(t, "46A", known.RouteName)
	assert.Equal(t, reference.DublinBusColor, known.RouteColor)
	assert.Equal(t, "978", known.AgencyID)
	assert.Equal(t, 45.0, known.Bearing)
	assert.Equal(t, "Inbound", known.Headsign)
	require.NotNil(t, known.DirectionID)
	assert.Equal(t, 0, *known.DirectionID)
	assert.Equal(t, time.Unix(1748851195, 0), known.Timestamp)
	assert.True(t, known.Resolved)

	unknown := byID["v2"]
	assert.Equal(t, "ZZZ", unknown.RouteID)
	assert.Equal(t, "ZZZ", unknown.RouteName)
	assert.Equal(t, reference.DefaultRouteColor, unknown.RouteColor)
	assert.Equal(t, 0.0, unknown.Bearing)
	assert.Equal(t, "Outbound", unknown.Headsign)
	assert.Nil(t, unknown.DirectionID)
	assert.Equal(t, captureTime, unknown.Timestamp)
	assert.False(t, unknown.Resolved)

	assert.Equal(t, []string{metrics.OutcomePublished}, rec.outcomes)
	assert.Equal(t, 2, rec.vehicles)
	assert.Equal(t, 1, rec.unresolved)
	assert.Equal(t, StateIdle, p.State())
	assert.NoError(t, p.LastError())
}

func TestRunOnce_SendsAuthHeaders(t *testing.T) {
	payload := feedBytes(t, 0)
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	p := newTestPoller(t, srv.URL, snapshot.NewCache())
	require.NoError(t, p.RunOnce(context.Background()))
	got := <-headers

	assert.Equal(t, "secret", got.Get("x-api-key"))
	assert.Equal(t, "no-cache", got.Get("Cache-Control"))
	assert.Equal(t, "gzip", got.Get("Accept-Encoding"))
}

func TestRunOnce_CustomAuthHeader(t *testing.T) {
	payload := feedBytes(t, 0)
	keys := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Ocp-Apim-Subscription-Key")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	p := NewPoller(Config{URL: srv.URL, APIKey: "k", AuthHeader: "Ocp-Apim-Subscription-Key"}, nil, snapshot.NewCache(),
		WithLogger(discardLogger()))
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, "k", <-keys)
}

func TestRunOnce_FetchFailureKeepsCache(t *testing.T) {
	var fail atomic.Bool
	payload := feedBytes(t, 0, entitySpec{id: "v1", routeID: "4622_46A", lat: 53.35, lon: -6.26})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "upstream down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cache := snapshot.NewCache()
	rec := &fakeRecorder{}
	p := newTestPoller(t, srv.URL, cache, WithRecorder(rec))
	require.NoError(t, p.RunOnce(context.Background()))
	before := cache.Pair()

	fail.Store(true)
	err := p.RunOnce(context.Background())

	var fetchErr *FeedFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Equal(t, before, cache.Pair())
	assert.Equal(t, err, p.LastError())
	assert.Equal(t, []string{metrics.OutcomePublished, metrics.OutcomeFetchError}, rec.outcomes)
}

func TestRunOnce_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cache := snapshot.NewCache()
	err := newTestPoller(t, url, cache).RunOnce(context.Background())

	var fetchErr *FeedFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
	assert.True(t, cache.Current().IsZero())
}

func TestRunOnce_DecodeFailureKeepsCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	cache := snapshot.NewCache()
	rec := &fakeRecorder{}
	err := newTestPoller(t, srv.URL, cache, WithRecorder(rec)).RunOnce(context.Background())

	var decodeErr *FeedDecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.True(t, cache.Current().IsZero())
	assert.Equal(t, []string{metrics.OutcomeDecodeError}, rec.outcomes)
}

func TestRunOnce_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{0}, 2048))
	}))
	defer srv.Close()

	p := NewPoller(Config{URL: srv.URL, MaxBodyBytes: 1024}, nil, snapshot.NewCache(), WithLogger(discardLogger()))
	err := p.RunOnce(context.Background())

	var fetchErr *FeedFetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestRunOnce_GzipBody(t *testing.T) {
	payload := feedBytes(t, 0, entitySpec{id: "v1", routeID: "4622_46A", lat: 53.35, lon: -6.26})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write(payload)
		_ = zw.Close()
	}))
	defer srv.Close()

	cache := snapshot.NewCache()
	require.NoError(t, newTestPoller(t, srv.URL, cache).RunOnce(context.Background()))
	require.Len(t, cache.Current().Positions, 1)
	assert.Equal(t, "46A", cache.Current().Positions[0].RouteName)
}

func TestRunOnce_TimestampAndBearingFallbacks(t *testing.T) {
	payload := feedBytes(t, 1748851100,
		entitySpec{id: "v1", routeID: "4622_46A", lat: 53.35, lon: -6.26, bearing: proto.Float32(-90)},
		entitySpec{id: "gone", noVehicle: true},
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cache := snapshot.NewCache()
	require.NoError(t, newTestPoller(t, srv.URL, cache).RunOnce(context.Background()))

	cur := cache.Current()
	require.Len(t, cur.Positions, 1)
	assert.Equal(t, time.Unix(1748851100, 0), cur.Positions[0].Timestamp)
	assert.Equal(t, 270.0, cur.Positions[0].Bearing)
	assert.Equal(t, captureTime, cur.Timestamp)
}

func TestRunOnce_RouteFromReferenceTrip(t *testing.T) {
	payload := feedBytes(t, 0, entitySpec{id: "v1", tripID: "trip-c1", lat: 53.35, lon: -6.26})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cache := snapshot.NewCache()
	require.NoError(t, newTestPoller(t, srv.URL, cache).RunOnce(context.Background()))

	vp := cache.Current().Positions[0]
	assert.Equal(t, "C1", vp.RouteName)
	assert.Equal(t, reference.AccentRouteColor, vp.RouteColor)
	require.NotNil(t, vp.DirectionID)
	assert.Equal(t, 1, *vp.DirectionID)
}

func TestRunOnce_MissingRouteIsUnknown(t *testing.T) {
	payload := feedBytes(t, 0, entitySpec{id: "v1", lat: 53.35, lon: -6.26})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cache := snapshot.NewCache()
	require.NoError(t, newTestPoller(t, srv.URL, cache).RunOnce(context.Background()))
	assert.Equal(t, UnknownRouteID, cache.Current().Positions[0].RouteID)
}

type recordingSink struct {
	name string
	err  error
	got  []snapshot.Snapshot
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, snap snapshot.Snapshot) error {
	s.got = append(s.got, snap)
	return s.err
}

func TestRunOnce_NotifiesSinks(t *testing.T) {
	payload := feedBytes(t, 0, entitySpec{id: "v1", routeID: "4622_46A", lat: 53.35, lon: -6.26})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	ok := &recordingSink{name: "ok"}
	broken := &recordingSink{name: "broken", err: errors.New("no route to broker")}
	rec := &fakeRecorder{}
	cache := snapshot.NewCache()
	p := newTestPoller(t, srv.URL, cache, WithSinks(ok, broken), WithRecorder(rec))

	require.NoError(t, p.RunOnce(context.Background()))
	require.Len(t, ok.got, 1)
	assert.Equal(t, uint64(1), ok.got[0].Seq)
	assert.Len(t, broken.got, 1)
	assert.Equal(t, []string{"broken"}, rec.sinkFailures)
	assert.Len(t, cache.Current().Positions, 1)
}

func TestStartStop(t *testing.T) {
	var requests atomic.Int32
	payload := feedBytes(t, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	p := NewPoller(Config{URL: srv.URL, Interval: 20 * time.Millisecond}, nil, snapshot.NewCache(),
		WithLogger(discardLogger()))
	p.Start(context.Background())
	p.Start(context.Background())

	assert.Eventually(t, func() bool { return requests.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	seen := requests.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, seen, requests.Load(), "no cycle may start after Stop")
	assert.Equal(t, StateIdle, p.State())

	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestStop_AbandonsInFlightRequest(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cache := snapshot.NewCache()
	p := NewPoller(Config{URL: srv.URL, Timeout: time.Minute}, nil, cache, WithLogger(discardLogger()))
	p.Start(context.Background())
	<-entered

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop waited for the in-flight request")
	}
	assert.True(t, cache.Current().IsZero())
}

func TestStop_BeforeStart(t *testing.T) {
	p := NewPoller(Config{URL: "http://127.0.0.1:1"}, nil, snapshot.NewCache(), WithLogger(discardLogger()))
	p.Stop()
	p.Start(context.Background())

	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "decoding", StateDecoding.String())
	assert.Equal(t, "joining", StateJoining.String())
	assert.Equal(t, "published", StatePublished.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestConfigDefaults(t *testing.T) {
	p := NewPoller(Config{URL: "http://example.invalid"}, nil, snapshot.NewCache())
	assert.Equal(t, DefaultInterval, p.Interval())
	assert.Equal(t, DefaultAuthHeader, p.cfg.AuthHeader)
	assert.Equal(t, DefaultTimeout, p.cfg.Timeout)
	assert.Equal(t, int64(DefaultMaxBodyBytes), p.cfg.MaxBodyBytes)
}
