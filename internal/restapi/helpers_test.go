package restapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LabartaPablo/BUS-REALTIME/internal/app"
	"github.com/LabartaPablo/BUS-REALTIME/internal/appconf"
	"github.com/LabartaPablo/BUS-REALTIME/internal/clock"
	"github.com/LabartaPablo/BUS-REALTIME/internal/metrics"
	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
	"github.com/LabartaPablo/BUS-REALTIME/internal/transit"
)

// 07:00 UTC is 08:00 in Dublin during summer time.
var testNow = time.Date(2025, 7, 1, 7, 0, 0, 0, time.UTC)

var testFeed = fstest.MapFS{
	"agency.txt": {Data: []byte("agency_id,agency_name,agency_url,agency_timezone\n" +
		"978,Dublin Bus,https://www.dublinbus.ie,Europe/Dublin\n")},
	"routes.txt": {Data: []byte("route_id,agency_id,route_short_name,route_long_name,route_type,route_color\n" +
		"r46a,978,46A,Phoenix Park - Dun Laoghaire,3,\n" +
		"rc1,978,C1,Adamstown - Sandymount,3,\n")},
	"trips.txt": {Data: []byte("route_id,service_id,trip_id,trip_headsign,direction_id,shape_id\n" +
		"r46a,wk,t1,Dun Laoghaire,0,s1\n" +
		"rc1,wk,t2,Sandymount,1,\n")},
	"stops.txt": {Data: []byte("stop_id,stop_name,stop_lat,stop_lon\n" +
		"a,O'Connell St,53.3498,-6.2603\n" +
		"b,Donnybrook,53.3180,-6.2330\n" +
		"g,Galway,53.2707,-9.0568\n")},
	"stop_times.txt": {Data: []byte("trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"t1,07:50:00,07:50:00,a,1\n" +
		"t1,08:20:00,08:20:00,b,2\n" +
		"t2,08:05:00,08:05:00,a,1\n" +
		"t2,25:10:00,25:10:00,b,2\n")},
	"shapes.txt": {Data: []byte("shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
		"s1,53.3498,-6.2603,1\n" +
		"s1,53.3180,-6.2330,2\n")},
}

type testOptions struct {
	clock     clock.Clock
	apiKeys   []string
	rateLimit int
	noRef     bool
}

func createTestApi(t *testing.T) *RestAPI {
	return createTestApiWith(t, testOptions{})
}

func createTestApiWithClock(t *testing.T, c clock.Clock) *RestAPI {
	return createTestApiWith(t, testOptions{clock: c})
}

func createTestApiWith(t *testing.T, opts testOptions) *RestAPI {
	t.Helper()

	if opts.clock == nil {
		opts.clock = clock.NewMockClock(testNow)
	}
	if opts.rateLimit == 0 {
		opts.rateLimit = 100
	}

	cache := snapshot.NewCache()
	svc := transit.NewService(cache, transit.WithClock(opts.clock))
	if !opts.noRef {
		idx, err := reference.Load(context.Background(), reference.Sources{FS: testFeed})
		require.NoError(t, err)
		svc.SetReference(idx)
	}

	a := &app.Application{
		Config: appconf.Config{
			Env:       appconf.Test,
			ApiKeys:   opts.apiKeys,
			RateLimit: opts.rateLimit,
		},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:   opts.clock,
		Metrics: metrics.New(),
		Cache:   cache,
		Service: svc,
	}

	api := NewRestAPI(a)
	t.Cleanup(api.Shutdown)
	return api
}

func publishTestSnapshot(api *RestAPI) {
	api.Cache.Publish(snapshot.Snapshot{
		Timestamp: testNow,
		Positions: []snapshot.VehiclePosition{
			{ID: "v1", Latitude: 53.34, Longitude: -6.26, Bearing: 90, RouteID: "r46a", RouteName: "46A", RouteColor: reference.DublinBusColor, Headsign: "Inbound", Timestamp: testNow},
			{ID: "v2", Latitude: 53.30, Longitude: -6.20, RouteID: "Unknown", RouteName: "Unknown", RouteColor: reference.DefaultRouteColor, Headsign: "Outbound", Timestamp: testNow},
		},
	})
}

// serveApiAndRetrieveEndpoint serves the API with its full middleware chain
// and decodes the JSON body into out when it is not nil.
func serveApiAndRetrieveEndpoint(t *testing.T, api *RestAPI, endpoint string, out any) *http.Response {
	t.Helper()

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(api.Handler(mux))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + endpoint)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func doRequest(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}
