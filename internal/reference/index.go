// Package reference holds the static network data (agencies, routes, trips,
// stops, stop times and shapes) used to enrich realtime vehicle positions and
// answer timetable queries. An Index is built once at startup and is
// read-only afterwards, so it is safe for concurrent use without locking.
package reference

import (
	"sort"
	"strings"
	"time"

	"github.com/tidwall/rtree"
)

const (
	// DefaultRouteColor is used when nothing more specific applies.
	DefaultRouteColor = "#007bff"
	// AccentRouteColor marks the C, G and N route families.
	AccentRouteColor = "#00D06E"
	// DublinBusColor is the override for DublinBusAgencyID.
	DublinBusColor = "#FFD700"
	// DublinBusAgencyID is the agency whose routes get DublinBusColor.
	DublinBusAgencyID = "978"
)

// Index is the in-memory reference data.
type Index struct {
	agencies     map[string]Agency
	routes       map[string]Route
	shortNames   map[string]string
	trips        map[string]Trip
	tripsByRoute map[string][]string
	stops        map[string]Stop
	stopList     []Stop
	byStop       map[string][]StopTime
	byTrip       map[string][]StopTime
	shapes       map[string][]ShapePoint
	tree         rtree.RTreeG[int]
	region       Bounds
	location     *time.Location
	stats        map[string]FileStats
}

// RouteByID returns the route with the given id.
func (x *Index) RouteByID(id string) (Route, bool) {
	r, ok := x.routes[id]
	return r, ok
}

// RouteByShortName returns the first route, in file order, with the given
// short name.
func (x *Index) RouteByShortName(shortName string) (Route, bool) {
	id, ok := x.shortNames[shortName]
	if !ok {
		return Route{}, false
	}
	return x.RouteByID(id)
}

// AgencyByID returns the agency with the given id.
func (x *Index) AgencyByID(id string) (Agency, bool) {
	a, ok := x.agencies[id]
	return a, ok
}

// TripByID returns the trip with the given id.
func (x *Index) TripByID(id string) (Trip, bool) {
	t, ok := x.trips[id]
	return t, ok
}

// StopByID returns the stop with the given id.
func (x *Index) StopByID(id string) (Stop, bool) {
	s, ok := x.stops[id]
	return s, ok
}

// RouteDisplayName returns the short name of the route, or the raw id when
// the route is unknown or has no short name.
func (x *Index) RouteDisplayName(routeID string) string {
	if r, ok := x.routes[routeID]; ok && r.ShortName != "" {
		return r.ShortName
	}
	return routeID
}

// RouteDisplayColor returns the resolved color of the route, or
// DefaultRouteColor when the route is unknown.
func (x *Index) RouteDisplayColor(routeID string) string {
	if r, ok := x.routes[routeID]; ok {
		return r.Color
	}
	return DefaultRouteColor
}

// ResolveRoute looks up routeID and returns an *UnknownReferenceError when it
// is not in the index.
func (x *Index) ResolveRoute(routeID string) (Route, error) {
	r, ok := x.routes[routeID]
	if !ok {
		return Route{}, &UnknownReferenceError{Kind: "route", ID: routeID}
	}
	return r, nil
}

// StopTimesForStop returns the stop times at stopID ordered by arrival. The
// returned slice is shared and must not be modified.
func (x *Index) StopTimesForStop(stopID string) []StopTime {
	return x.byStop[stopID]
}

// StopTimesForTrip returns the stop times of tripID ordered by stop
// sequence. The returned slice is shared and must not be modified.
func (x *Index) StopTimesForTrip(tripID string) []StopTime {
	return x.byTrip[tripID]
}

// FirstTripForRoute returns the first trip, in file order, that serves
// routeID.
func (x *Index) FirstTripForRoute(routeID string) (Trip, bool) {
	ids := x.tripsByRoute[routeID]
	if len(ids) == 0 {
		return Trip{}, false
	}
	return x.TripByID(ids[0])
}

// TripsForRoute returns the ids of the trips serving routeID in file order.
func (x *Index) TripsForRoute(routeID string) []string {
	return x.tripsByRoute[routeID]
}

// ShapePoints returns the points of shapeID ordered by sequence.
func (x *Index) ShapePoints(shapeID string) []ShapePoint {
	return x.shapes[shapeID]
}

// Stops returns up to limit located stops in file order. A limit of zero or
// less returns all of them.
func (x *Index) Stops(limit int) []Stop {
	n := len(x.stopList)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Stop, n)
	copy(out, x.stopList[:n])
	return out
}

// StopsInBounds returns up to limit located stops inside b, in file order. A
// limit of zero or less returns every match.
func (x *Index) StopsInBounds(b Bounds, limit int) []Stop {
	var hits []int
	x.tree.Search(
		[2]float64{b.MinLon, b.MinLat},
		[2]float64{b.MaxLon, b.MaxLat},
		func(_, _ [2]float64, i int) bool {
			hits = append(hits, i)
			return true
		},
	)
	sort.Ints(hits)

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Stop, 0, len(hits))
	for _, i := range hits {
		out = append(out, x.stopList[i])
	}
	return out
}

// RegionBounds returns the smallest box containing every located stop.
func (x *Index) RegionBounds() Bounds {
	return x.region
}

// RouteIDs returns every route id in ascending order.
func (x *Index) RouteIDs() []string {
	ids := make([]string, 0, len(x.routes))
	for id := range x.routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Location returns the time zone of the first agency, or UTC.
func (x *Index) Location() *time.Location {
	return x.location
}

// Stats returns per-file row counts gathered while loading.
func (x *Index) Stats() map[string]FileStats {
	out := make(map[string]FileStats, len(x.stats))
	for k, v := range x.stats {
		out[k] = v
	}
	return out
}

// Counts reports the number of entities of each kind.
func (x *Index) Counts() Counts {
	var stopTimes int
	for _, sts := range x.byTrip {
		stopTimes += len(sts)
	}
	return Counts{
		Agencies:  len(x.agencies),
		Routes:    len(x.routes),
		Trips:     len(x.trips),
		Stops:     len(x.stops),
		StopTimes: stopTimes,
		Shapes:    len(x.shapes),
	}
}

// Counts is a summary of an Index.
type Counts struct {
	Agencies  int `json:"agencies"`
	Routes    int `json:"routes"`
	Trips     int `json:"trips"`
	Stops     int `json:"stops"`
	StopTimes int `json:"stopTimes"`
	Shapes    int `json:"shapes"`
}

// ResolveColor picks the display color of a route: the explicit color when
// set, the accent color for the C, G and N families, the Dublin Bus color for
// that agency, and DefaultRouteColor otherwise.
func ResolveColor(explicit, shortName, agencyID string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if !strings.HasPrefix(explicit, "#") {
			explicit = "#" + explicit
		}
		return explicit
	}

	if strings.HasPrefix(shortName, "C") || strings.HasPrefix(shortName, "G") || strings.HasPrefix(shortName, "N") {
		return AccentRouteColor
	}

	if agencyID == DublinBusAgencyID {
		return DublinBusColor
	}

	return DefaultRouteColor
}
