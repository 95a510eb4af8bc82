package reference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/OneBusAway/go-gtfs"
)

// maxArchiveSize bounds a downloaded static GTFS archive.
const maxArchiveSize = 200 * 1024 * 1024

// LoadArchive builds an Index from a zipped GTFS feed. source is either a
// local path or an http(s) URL.
func LoadArchive(ctx context.Context, source string) (*Index, error) {
	b, err := rawArchive(ctx, source)
	if err != nil {
		return nil, &LoadError{File: source, Err: err}
	}

	static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, &LoadError{File: source, Err: fmt.Errorf("parsing GTFS archive: %w", err)}
	}

	return fromStatic(static), nil
}

func rawArchive(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading local GTFS archive: %w", err)
		}
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("creating GTFS request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading GTFS archive: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading GTFS archive: received HTTP status %s", resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading GTFS archive: %w", err)
	}
	if len(b) > maxArchiveSize {
		return nil, fmt.Errorf("static GTFS archive exceeds size limit of %d bytes", maxArchiveSize)
	}
	return b, nil
}

func fromStatic(static *gtfs.Static) *Index {
	b := newBuilder()

	for _, a := range static.Agencies {
		b.addAgency(Agency{ID: a.Id, Name: a.Name, URL: a.Url, Timezone: a.Timezone})
	}

	singleAgencyID := ""
	if len(static.Agencies) == 1 {
		singleAgencyID = static.Agencies[0].Id
	}

	for _, r := range static.Routes {
		agencyID := singleAgencyID
		if r.Agency != nil && r.Agency.Id != "" {
			agencyID = r.Agency.Id
		}
		b.addRoute(Route{
			ID:        r.Id,
			AgencyID:  agencyID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Type:      int(r.Type),
			Color:     r.Color,
			TextColor: prefixHash(r.TextColor),
		})
	}

	for _, s := range static.Stops {
		stop := Stop{ID: s.Id, Code: s.Code, Name: s.Name}
		if s.Latitude != nil && s.Longitude != nil {
			stop.Latitude, stop.Longitude, stop.Located = *s.Latitude, *s.Longitude, true
		}
		b.addStop(stop)
	}

	var stopTimes int
	for _, t := range static.Trips {
		trip := Trip{ID: t.ID, Headsign: t.Headsign}
		if t.Route != nil {
			trip.RouteID = t.Route.Id
		}
		if t.Service != nil {
			trip.ServiceID = t.Service.Id
		}
		if t.Shape != nil {
			trip.ShapeID = t.Shape.ID
		}
		if int(t.DirectionId) == 1 {
			trip.DirectionID = 1
		}
		b.addTrip(trip)

		for _, st := range t.StopTimes {
			if st.Stop == nil {
				continue
			}
			b.addStopTime(StopTime{
				TripID:       t.ID,
				StopID:       st.Stop.Id,
				Arrival:      st.ArrivalTime,
				Departure:    st.DepartureTime,
				StopSequence: int(st.StopSequence),
			})
			stopTimes++
		}
	}

	var shapePoints int
	for _, s := range static.Shapes {
		for i, pt := range s.Points {
			b.addShapePoint(s.ID, ShapePoint{Latitude: pt.Latitude, Longitude: pt.Longitude, Sequence: i})
			shapePoints++
		}
	}

	b.stats["agency.txt"] = FileStats{Loaded: len(static.Agencies)}
	b.stats["routes.txt"] = FileStats{Loaded: len(static.Routes)}
	b.stats["trips.txt"] = FileStats{Loaded: len(static.Trips)}
	b.stats["stops.txt"] = FileStats{Loaded: len(static.Stops)}
	b.stats["stop_times.txt"] = FileStats{Loaded: stopTimes}
	b.stats["shapes.txt"] = FileStats{Loaded: shapePoints}

	return b.build()
}
