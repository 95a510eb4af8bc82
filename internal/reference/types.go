package reference

import "time"

// Route is a row of routes.txt with its display color already resolved.
type Route struct {
	ID        string `json:"route_id"`
	AgencyID  string `json:"agency_id"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`
	Type      int    `json:"route_type"`
	Color     string `json:"route_color"`
	TextColor string `json:"route_text_color,omitempty"`
}

// Agency is a row of agency.txt.
type Agency struct {
	ID       string `json:"agency_id"`
	Name     string `json:"agency_name"`
	URL      string `json:"agency_url,omitempty"`
	Timezone string `json:"agency_timezone"`
}

// Stop is a row of stops.txt. Stops without coordinates are not indexed.
type Stop struct {
	ID        string  `json:"stop_id"`
	Code      string  `json:"stop_code,omitempty"`
	Name      string  `json:"stop_name"`
	Latitude  float64 `json:"stop_lat"`
	Longitude float64 `json:"stop_lon"`
	Located   bool    `json:"-"`
}

// Trip is a row of trips.txt. DirectionID is 0 or 1.
type Trip struct {
	ID          string `json:"trip_id"`
	RouteID     string `json:"route_id"`
	ServiceID   string `json:"service_id,omitempty"`
	Headsign    string `json:"trip_headsign"`
	DirectionID int    `json:"direction_id"`
	ShapeID     string `json:"shape_id,omitempty"`
}

// StopTime is a row of stop_times.txt. Arrival and Departure are offsets from
// service-day midnight and may exceed 24h.
type StopTime struct {
	TripID       string
	StopID       string
	Arrival      time.Duration
	Departure    time.Duration
	StopSequence int
}

// ShapePoint is a row of shapes.txt.
type ShapePoint struct {
	Latitude  float64 `json:"shape_pt_lat"`
	Longitude float64 `json:"shape_pt_lon"`
	Sequence  int     `json:"shape_pt_sequence"`
}

// Bounds is a latitude/longitude rectangle, inclusive on all edges.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Contains reports whether the point lies within b.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// DublinBounds is the service area box used when serving stops.
var DublinBounds = Bounds{MinLat: 53.2, MaxLat: 53.5, MinLon: -6.5, MaxLon: -6.0}
