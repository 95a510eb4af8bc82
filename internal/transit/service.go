// Package transit is the query surface over the reference index, the
// schedule engine and the snapshot cache. Every read is lock-free: the
// reference data is swapped in once through an atomic pointer and snapshots
// come straight from the cache.
package transit

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/LabartaPablo/BUS-REALTIME/internal/clock"
	"github.com/LabartaPablo/BUS-REALTIME/internal/realtime"
	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
	"github.com/LabartaPablo/BUS-REALTIME/internal/schedule"
	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
)

// DefaultStopLimit is used when ListStops is called with a non-positive limit.
const DefaultStopLimit = 1000

// ErrNotReady is returned by reference-backed queries before the reference
// index has been loaded.
var ErrNotReady = errors.New("reference data not loaded yet")

// NotFoundError reports an unknown stop or route.
type NotFoundError = schedule.NotFoundError

// PollerStatus is the view of the feed poller reported by Status.
type PollerStatus interface {
	State() realtime.State
	LastError() error
	LastCycle() (time.Time, bool)
	Interval() time.Duration
}

type loadedReference struct {
	index  *reference.Index
	engine *schedule.Engine
}

// Service answers the served queries.
type Service struct {
	ref    atomic.Pointer[loadedReference]
	cache  *snapshot.Cache
	clock  clock.Clock
	poller atomic.Pointer[pollerBox]
	delays schedule.DelaySource
}

type pollerBox struct {
	PollerStatus
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for schedule cursors and snapshot ages.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithDelays merges realtime delays into stop schedules.
func WithDelays(src schedule.DelaySource) Option {
	return func(s *Service) { s.delays = src }
}

// NewService returns a Service reading live positions from cache. Reference
// queries return ErrNotReady until SetReference is called.
func NewService(cache *snapshot.Cache, opts ...Option) *Service {
	s := &Service{cache: cache, clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetReference installs the reference index.
func (s *Service) SetReference(idx *reference.Index) {
	var opts []schedule.Option
	if s.delays != nil {
		opts = append(opts, schedule.WithDelays(s.delays))
	}
	s.ref.Store(&loadedReference{index: idx, engine: schedule.NewEngine(idx, opts...)})
}

// SetPoller registers the poller whose state Status reports.
func (s *Service) SetPoller(p PollerStatus) {
	s.poller.Store(&pollerBox{p})
}

// Reference returns the installed index, or nil before SetReference.
func (s *Service) Reference() *reference.Index {
	if r := s.ref.Load(); r != nil {
		return r.index
	}
	return nil
}

// Cache returns the snapshot cache backing live positions.
func (s *Service) Cache() *snapshot.Cache {
	return s.cache
}

// ListLivePositions returns the positions of the current snapshot.
func (s *Service) ListLivePositions() []snapshot.VehiclePosition {
	positions := s.cache.Current().Positions
	if positions == nil {
		return []snapshot.VehiclePosition{}
	}
	return positions
}

// ListStops returns up to limit located stops, restricted to bounds when it
// is not nil.
func (s *Service) ListStops(bounds *reference.Bounds, limit int) ([]reference.Stop, error) {
	r := s.ref.Load()
	if r == nil {
		return nil, ErrNotReady
	}
	if limit <= 0 {
		limit = DefaultStopLimit
	}
	if bounds == nil {
		return r.index.Stops(limit), nil
	}
	return r.index.StopsInBounds(*bounds, limit), nil
}

// ListStopsNear returns up to limit stops within radius meters of the point,
// nearest first.
func (s *Service) ListStopsNear(lat, lon, radius float64, limit int) ([]reference.NearbyStop, error) {
	r := s.ref.Load()
	if r == nil {
		return nil, ErrNotReady
	}
	if limit <= 0 {
		limit = DefaultStopLimit
	}
	return r.index.StopsNear(lat, lon, radius, limit), nil
}

// StopSchedule is a stop with its upcoming departures.
type StopSchedule struct {
	Stop     reference.Stop `json:"stop"`
	Schedule []schedule.Row `json:"schedule"`
	Now      string         `json:"now"`
}

// GetStopSchedule returns up to limit departures at stopID from the current
// service time onwards. Unknown stops return a *NotFoundError.
func (s *Service) GetStopSchedule(stopID string, limit int) (StopSchedule, error) {
	r := s.ref.Load()
	if r == nil {
		return StopSchedule{}, ErrNotReady
	}

	stop, ok := r.index.StopByID(stopID)
	if !ok {
		return StopSchedule{}, &NotFoundError{Kind: "stop", ID: stopID}
	}

	now := schedule.ClockTimeOf(s.clock.Now(), r.index.Location())
	rows, err := r.engine.UpcomingDepartures(stopID, now, limit)
	if err != nil {
		return StopSchedule{}, err
	}
	return StopSchedule{Stop: stop, Schedule: rows, Now: now.String()}, nil
}

// RouteInfo is a route with the headsign of its sample trip.
type RouteInfo struct {
	reference.Route
	Headsign string `json:"trip_headsign"`
}

// RouteStop is a stop of the sample trip with its scheduled times.
type RouteStop struct {
	reference.Stop
	StopSequence  int    `json:"stop_sequence"`
	ArrivalTime   string `json:"arrival_time"`
	DepartureTime string `json:"departure_time"`
}

// RouteDetails describes a route through its first trip.
type RouteDetails struct {
	Route    RouteInfo              `json:"route"`
	Stops    []RouteStop            `json:"stops"`
	Shape    []reference.ShapePoint `json:"shape"`
	Polyline string                 `json:"polyline"`
}

// GetRouteDetails returns the route with the given short name, the stops of
// its first trip in sequence and the trip's shape. It returns false for an
// unknown route or before the reference index is loaded.
func (s *Service) GetRouteDetails(shortName string) (*RouteDetails, bool) {
	r := s.ref.Load()
	if r == nil {
		return nil, false
	}

	route, ok := r.index.RouteByShortName(shortName)
	if !ok {
		return nil, false
	}

	details := &RouteDetails{
		Route: RouteInfo{Route: route},
		Stops: []RouteStop{},
		Shape: []reference.ShapePoint{},
	}

	trip, ok := r.index.FirstTripForRoute(route.ID)
	if !ok {
		return details, true
	}
	details.Route.Headsign = trip.Headsign

	for _, st := range r.index.StopTimesForTrip(trip.ID) {
		stop, ok := r.index.StopByID(st.StopID)
		if !ok {
			continue
		}
		details.Stops = append(details.Stops, RouteStop{
			Stop:          stop,
			StopSequence:  st.StopSequence,
			ArrivalTime:   schedule.ClockTime(st.Arrival / time.Second).String(),
			DepartureTime: schedule.ClockTime(st.Departure / time.Second).String(),
		})
	}

	if trip.ShapeID != "" {
		pts := r.index.ShapePoints(trip.ShapeID)
		details.Shape = append(details.Shape, pts...)
		coords := make([][]float64, 0, len(pts))
		for _, p := range pts {
			coords = append(coords, []float64{p.Latitude, p.Longitude})
		}
		details.Polyline = string(polyline.EncodeCoords(coords))
	}

	return details, true
}
