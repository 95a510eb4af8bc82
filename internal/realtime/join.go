package realtime

import (
	"errors"
	"log/slog"
	"math"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/LabartaPablo/BUS-REALTIME/internal/motion"
	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
)

// UnknownRouteID is reported for vehicles whose trip carries no route id.
const UnknownRouteID = "Unknown"

// DecodeFeed parses a GTFS-Realtime FeedMessage.
func DecodeFeed(body []byte) (*gtfsrtpb.FeedMessage, error) {
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(body, &fm); err != nil {
		return nil, &FeedDecodeError{Size: len(body), Err: err}
	}
	return &fm, nil
}

// JoinStats summarizes one join pass.
type JoinStats struct {
	Entities   int
	Dropped    int
	Unresolved int
}

// Join converts the vehicle entities of feed into positions enriched from
// idx. Entities without a position or an identifier are dropped. Unknown
// route ids keep the raw id and the default color. capturedAt is the
// timestamp of last resort after the vehicle and header timestamps.
func Join(feed *gtfsrtpb.FeedMessage, idx *reference.Index, capturedAt time.Time, logger *slog.Logger) ([]snapshot.VehiclePosition, JoinStats) {
	stats := JoinStats{Entities: len(feed.GetEntity())}

	fallback := capturedAt
	if ts := feed.GetHeader().GetTimestamp(); ts > 0 {
		fallback = time.Unix(int64(ts), 0)
	}

	positions := make([]snapshot.VehiclePosition, 0, len(feed.GetEntity()))
	for _, entity := range feed.GetEntity() {
		vp, err := joinEntity(entity, idx, fallback)
		if err != nil {
			var unknown *reference.UnknownReferenceError
			if !errors.As(err, &unknown) {
				stats.Dropped++
				continue
			}
			stats.Unresolved++
			if logger != nil {
				logger.Debug("unresolved route in feed",
					slog.String("entity_id", vp.ID),
					slog.String("route_id", unknown.ID))
			}
		}
		positions = append(positions, vp)
	}
	return positions, stats
}

var (
	errNoPosition = errors.New("entity carries no vehicle position")
	errNoID       = errors.New("entity carries no identifier")
)

// joinEntity returns an *reference.UnknownReferenceError together with a
// usable position when only the route lookup failed.
func joinEntity(entity *gtfsrtpb.FeedEntity, idx *reference.Index, fallback time.Time) (snapshot.VehiclePosition, error) {
	vehicle := entity.GetVehicle()
	pos := vehicle.GetPosition()
	if vehicle == nil || pos == nil || pos.Latitude == nil || pos.Longitude == nil {
		return snapshot.VehiclePosition{}, errNoPosition
	}

	lat, lon := float64(pos.GetLatitude()), float64(pos.GetLongitude())
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return snapshot.VehiclePosition{}, errNoPosition
	}

	id := entity.GetId()
	if id == "" {
		id = vehicle.GetVehicle().GetId()
	}
	if id == "" {
		return snapshot.VehiclePosition{}, errNoID
	}

	trip := vehicle.GetTrip()
	vp := snapshot.VehiclePosition{
		ID:        id,
		Latitude:  lat,
		Longitude: lon,
		Bearing:   motion.NormalizeBearing(float64(pos.GetBearing())),
		TripID:    trip.GetTripId(),
		Timestamp: fallback,
	}
	if ts := vehicle.GetTimestamp(); ts > 0 {
		vp.Timestamp = time.Unix(int64(ts), 0)
	}

	var refTrip reference.Trip
	var tripKnown bool
	if vp.TripID != "" && idx != nil {
		refTrip, tripKnown = idx.TripByID(vp.TripID)
	}

	switch {
	case trip != nil && trip.DirectionId != nil:
		d := int(trip.GetDirectionId())
		vp.DirectionID = &d
	case tripKnown:
		d := refTrip.DirectionID
		vp.DirectionID = &d
	}
	vp.Headsign = "Outbound"
	if vp.DirectionID != nil && *vp.DirectionID == 0 {
		vp.Headsign = "Inbound"
	}

	vp.RouteID = trip.GetRouteId()
	if vp.RouteID == "" && tripKnown {
		vp.RouteID = refTrip.RouteID
	}
	if vp.RouteID == "" {
		vp.RouteID = UnknownRouteID
	}

	vp.RouteName = vp.RouteID
	vp.RouteColor = reference.DefaultRouteColor
	if idx == nil {
		return vp, &reference.UnknownReferenceError{Kind: "route", ID: vp.RouteID}
	}

	route, err := idx.ResolveRoute(vp.RouteID)
	if err != nil {
		return vp, err
	}
	vp.Resolved = true
	vp.RouteName = idx.RouteDisplayName(route.ID)
	vp.RouteColor = route.Color
	vp.AgencyID = route.AgencyID
	return vp, nil
}
