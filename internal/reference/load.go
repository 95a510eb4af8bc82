package reference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
)

// Sources locates the reference files. FS takes precedence over Dir.
type Sources struct {
	Dir string
	FS  fs.FS
}

func (s Sources) fsys() (fs.FS, error) {
	if s.FS != nil {
		return s.FS, nil
	}
	if s.Dir == "" {
		return nil, errors.New("no reference data directory configured")
	}
	return os.DirFS(s.Dir), nil
}

type tableLoader struct {
	file     string
	required bool
	handle   func(b *builder, r row) error
}

var tables = []tableLoader{
	{file: "agency.txt", required: true, handle: agencyRow},
	{file: "routes.txt", required: true, handle: routeRow},
	{file: "trips.txt", required: true, handle: tripRow},
	{file: "stops.txt", required: true, handle: stopRow},
	{file: "stop_times.txt", required: true, handle: stopTimeRow},
	{file: "shapes.txt", required: false, handle: shapeRow},
}

// Load reads the reference files from src and builds an Index. A missing
// required file or an unreadable file returns a *LoadError; malformed rows are
// skipped and reported through Index.Stats.
func Load(ctx context.Context, src Sources) (*Index, error) {
	fsys, err := src.fsys()
	if err != nil {
		return nil, &LoadError{File: src.Dir, Err: err}
	}

	b := newBuilder()
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := fsys.Open(t.file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && !t.required {
				continue
			}
			return nil, &LoadError{File: t.file, Err: err}
		}

		stats, err := readTable(f, func(r row) error { return t.handle(b, r) })
		_ = f.Close()
		if err != nil {
			return nil, &LoadError{File: t.file, Err: err}
		}
		b.stats[t.file] = stats
	}

	return b.build(), nil
}

func agencyRow(b *builder, r row) error {
	b.addAgency(Agency{
		ID:       r.Get("agency_id"),
		Name:     r.Get("agency_name"),
		URL:      r.Get("agency_url"),
		Timezone: r.Get("agency_timezone"),
	})
	return nil
}

func routeRow(b *builder, r row) error {
	id := r.Get("route_id")
	if id == "" {
		return errSkipRow
	}
	routeType, _ := strconv.Atoi(r.Get("route_type"))
	b.addRoute(Route{
		ID:        id,
		AgencyID:  r.Get("agency_id"),
		ShortName: r.Get("route_short_name"),
		LongName:  r.Get("route_long_name"),
		Type:      routeType,
		Color:     r.Get("route_color"),
		TextColor: prefixHash(r.Get("route_text_color")),
	})
	return nil
}

func tripRow(b *builder, r row) error {
	id := r.Get("trip_id")
	if id == "" {
		return errSkipRow
	}
	direction := 0
	if r.Get("direction_id") == "1" {
		direction = 1
	}
	b.addTrip(Trip{
		ID:          id,
		RouteID:     r.Get("route_id"),
		ServiceID:   r.Get("service_id"),
		Headsign:    r.Get("trip_headsign"),
		DirectionID: direction,
		ShapeID:     r.Get("shape_id"),
	})
	return nil
}

func stopRow(b *builder, r row) error {
	id := r.Get("stop_id")
	if id == "" {
		return errSkipRow
	}
	s := Stop{
		ID:   id,
		Code: r.Get("stop_code"),
		Name: r.Get("stop_name"),
	}
	if lat, lon, err := parseCoord(r.Get("stop_lat"), r.Get("stop_lon")); err == nil {
		s.Latitude, s.Longitude, s.Located = lat, lon, true
	}
	b.addStop(s)
	return nil
}

func stopTimeRow(b *builder, r row) error {
	seq, err := strconv.Atoi(r.Get("stop_sequence"))
	if err != nil {
		return fmt.Errorf("%w: stop_sequence", errSkipRow)
	}

	arrival, aerr := ParseServiceTime(r.Get("arrival_time"))
	departure, derr := ParseServiceTime(r.Get("departure_time"))
	switch {
	case aerr != nil && derr != nil:
		return fmt.Errorf("%w: no valid time", errSkipRow)
	case aerr != nil:
		arrival = departure
	case derr != nil:
		departure = arrival
	}

	b.addStopTime(StopTime{
		TripID:       r.Get("trip_id"),
		StopID:       r.Get("stop_id"),
		Arrival:      arrival,
		Departure:    departure,
		StopSequence: seq,
	})
	return nil
}

func shapeRow(b *builder, r row) error {
	lat, lon, err := parseCoord(r.Get("shape_pt_lat"), r.Get("shape_pt_lon"))
	if err != nil {
		return fmt.Errorf("%w: shape point", errSkipRow)
	}
	seq, err := strconv.Atoi(r.Get("shape_pt_sequence"))
	if err != nil {
		return fmt.Errorf("%w: shape_pt_sequence", errSkipRow)
	}
	b.addShapePoint(r.Get("shape_id"), ShapePoint{Latitude: lat, Longitude: lon, Sequence: seq})
	return nil
}

func prefixHash(color string) string {
	if color == "" || color[0] == '#' {
		return color
	}
	return "#" + color
}
