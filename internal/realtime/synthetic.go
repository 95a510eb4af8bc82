package realtime

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/LabartaPablo/BUS-REALTIME/internal/clock"
	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
)

const (
	// SyntheticFeedURL is the feed URL polled through a SyntheticTransport.
	SyntheticFeedURL = "http://synthetic.invalid/vehicles"
	// DefaultSyntheticVehicles is the fleet size of a synthetic feed.
	DefaultSyntheticVehicles = 50

	syntheticLatSpread = 0.05
	syntheticLonSpread = 0.08
	// syntheticStep is the distance in degrees a vehicle moves per request.
	syntheticStep = 0.0008

	syntheticCenterLat = 53.3498
	syntheticCenterLon = -6.2603
)

// syntheticRoutes is used when no reference routes are available.
var syntheticRoutes = []string{
	"1", "4", "7", "9", "11", "13", "14", "15", "16", "26", "27", "33", "37", "38", "39",
	"40", "41", "46A", "122", "123", "145", "155", "C1", "C2", "C3", "C4", "G1", "G2", "N4", "N6",
}

type syntheticVehicle struct {
	id        string
	routeID   string
	direction uint32
	lat, lon  float64
	bearing   float64
}

// SyntheticTransport is an http.RoundTripper that answers every request with
// a GTFS-Realtime vehicle positions feed of buses wandering around Dublin
// city centre. Each request moves every vehicle one step along its bearing.
type SyntheticTransport struct {
	clock clock.Clock

	mu       sync.Mutex
	rng      *rand.Rand
	vehicles []syntheticVehicle
}

// NewSyntheticTransport returns a transport with n vehicles assigned to
// routeIDs, or to a fixed list of Dublin routes when routeIDs is empty. The
// same seed produces the same fleet.
func NewSyntheticTransport(routeIDs []string, n int, seed uint64, clk clock.Clock) *SyntheticTransport {
	if len(routeIDs) == 0 {
		routeIDs = syntheticRoutes
	}
	if n <= 0 {
		n = DefaultSyntheticVehicles
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	vehicles := make([]syntheticVehicle, n)
	for i := range vehicles {
		vehicles[i] = syntheticVehicle{
			id:        "bus-" + strconv.Itoa(i),
			routeID:   routeIDs[rng.IntN(len(routeIDs))],
			direction: uint32(rng.IntN(2)),
			lat:       syntheticCenterLat + (rng.Float64()-0.5)*syntheticLatSpread,
			lon:       syntheticCenterLon + (rng.Float64()-0.5)*syntheticLonSpread,
			bearing:   float64(rng.IntN(360)),
		}
	}

	return &SyntheticTransport{clock: clk, rng: rng, vehicles: vehicles}
}

// NewSyntheticClient returns an http.Client serving a synthetic feed built
// from the routes of idx. idx may be nil.
func NewSyntheticClient(idx *reference.Index, clk clock.Clock) *http.Client {
	var routeIDs []string
	if idx != nil {
		routeIDs = idx.RouteIDs()
	}
	return &http.Client{
		Transport: NewSyntheticTransport(routeIDs, DefaultSyntheticVehicles, uint64(time.Now().UnixNano()), clk),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *SyntheticTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	body, err := proto.Marshal(t.next())
	if err != nil {
		return nil, fmt.Errorf("encoding synthetic feed: %w", err)
	}

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/x-protobuf"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// next advances the fleet one step and renders it as a feed message.
func (t *SyntheticTransport) next() *gtfsrtpb.FeedMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := uint64(t.clock.Now().Unix())
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(now),
		},
		Entity: make([]*gtfsrtpb.FeedEntity, 0, len(t.vehicles)),
	}

	for i := range t.vehicles {
		v := &t.vehicles[i]
		t.step(v)
		fm.Entity = append(fm.Entity, &gtfsrtpb.FeedEntity{
			Id: proto.String(v.id),
			Vehicle: &gtfsrtpb.VehiclePosition{
				Trip: &gtfsrtpb.TripDescriptor{
					RouteId:     proto.String(v.routeID),
					DirectionId: proto.Uint32(v.direction),
				},
				Vehicle: &gtfsrtpb.VehicleDescriptor{Id: proto.String(v.id)},
				Position: &gtfsrtpb.Position{
					Latitude:  proto.Float32(float32(v.lat)),
					Longitude: proto.Float32(float32(v.lon)),
					Bearing:   proto.Float32(float32(v.bearing)),
				},
				Timestamp: proto.Uint64(now),
			},
		})
	}
	return fm
}

// step moves v along its bearing with a small random turn, turning back when
// it would leave the service box.
func (t *SyntheticTransport) step(v *syntheticVehicle) {
	v.bearing = math.Mod(v.bearing+float64(t.rng.IntN(31)-15)+360, 360)

	rad := v.bearing * math.Pi / 180
	lat := v.lat + syntheticStep*math.Cos(rad)
	lon := v.lon + syntheticStep*math.Sin(rad)/math.Cos(v.lat*math.Pi/180)

	if math.Abs(lat-syntheticCenterLat) > syntheticLatSpread/2 || math.Abs(lon-syntheticCenterLon) > syntheticLonSpread/2 {
		v.bearing = math.Mod(v.bearing+180, 360)
		return
	}
	v.lat, v.lon = lat, lon
}
