// Package schedule answers timetable queries against the reference index.
package schedule

import (
	"sort"
	"time"

	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
)

// DefaultLimit is used when a query passes a non-positive limit.
const DefaultLimit = 20

// Row is one upcoming departure at a stop.
type Row struct {
	TripID         string `json:"trip_id"`
	RouteID        string `json:"route_id"`
	RouteShortName string `json:"route_short_name"`
	RouteColor     string `json:"route_color"`
	Headsign       string `json:"trip_headsign"`
	DirectionID    int    `json:"direction_id"`
	StopSequence   int    `json:"stop_sequence"`
	ArrivalTime    string `json:"arrival_time"`
	DepartureTime  string `json:"departure_time"`
	ScheduledTime  string `json:"scheduled_time"`
	EstimatedTime  string `json:"estimated_time"`
	DelaySeconds   int    `json:"delay_seconds"`

	scheduled ClockTime
	estimated ClockTime
}

// Scheduled returns the scheduled time of the row.
func (r Row) Scheduled() ClockTime {
	return r.scheduled
}

// Estimated returns the scheduled time shifted by the row's delay.
func (r Row) Estimated() ClockTime {
	return r.estimated
}

// DelaySource supplies realtime delays keyed by trip and stop.
type DelaySource interface {
	Delay(tripID, stopID string) (time.Duration, bool)
}

// Engine answers upcoming-departure queries.
type Engine struct {
	index  *reference.Index
	delays DelaySource
}

// Option configures an Engine.
type Option func(*Engine)

// WithDelays merges delays from src into query results.
func WithDelays(src DelaySource) Option {
	return func(e *Engine) { e.delays = src }
}

// NewEngine returns an Engine reading from index.
func NewEngine(index *reference.Index, opts ...Option) *Engine {
	e := &Engine{index: index}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpcomingDepartures returns up to limit rows at stopID whose estimated
// arrival is at or after now, ordered by estimated time. Without a delay
// source the estimate equals the scheduled time. An unknown stop returns a
// *NotFoundError; a known stop with nothing left returns an empty slice.
func (e *Engine) UpcomingDepartures(stopID string, now ClockTime, limit int) ([]Row, error) {
	if _, ok := e.index.StopByID(stopID); !ok {
		return nil, &NotFoundError{Kind: "stop", ID: stopID}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	sts := e.index.StopTimesForStop(stopID)
	if e.delays == nil {
		// Stop times are sorted by arrival, so the scheduled order is final.
		cursor := now.Duration()
		start := sort.Search(len(sts), func(i int) bool { return sts[i].Arrival >= cursor })

		rows := make([]Row, 0, min(limit, len(sts)-start))
		for _, st := range sts[start:] {
			if len(rows) == limit {
				break
			}
			rows = append(rows, e.row(st))
		}
		return rows, nil
	}

	rows := make([]Row, 0, len(sts))
	for _, st := range sts {
		r := e.row(st)
		if r.estimated >= now {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].estimated < rows[j].estimated })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (e *Engine) row(st reference.StopTime) Row {
	scheduled := clockTimeFromDuration(st.Arrival)
	r := Row{
		TripID:        st.TripID,
		StopSequence:  st.StopSequence,
		ArrivalTime:   scheduled.String(),
		DepartureTime: clockTimeFromDuration(st.Departure).String(),
		ScheduledTime: scheduled.String(),
		EstimatedTime: scheduled.String(),
		RouteColor:    reference.DefaultRouteColor,
		scheduled:     scheduled,
		estimated:     scheduled,
	}

	if trip, ok := e.index.TripByID(st.TripID); ok {
		r.Headsign = trip.Headsign
		r.DirectionID = trip.DirectionID
		r.RouteID = trip.RouteID
		r.RouteShortName = e.index.RouteDisplayName(trip.RouteID)
		r.RouteColor = e.index.RouteDisplayColor(trip.RouteID)
	}

	if e.delays != nil {
		if d, ok := e.delays.Delay(st.TripID, st.StopID); ok {
			r.DelaySeconds = int(d / time.Second)
			r.estimated = max(scheduled+ClockTime(r.DelaySeconds), 0)
			r.EstimatedTime = r.estimated.String()
		}
	}
	return r
}
