package restapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LabartaPablo/BUS-REALTIME/internal/clock"
)

func TestLivePositionsHandler(t *testing.T) {
	api := createTestApi(t)

	var empty []map[string]any
	resp := serveApiAndRetrieveEndpoint(t, api, "/api/live-positions", &empty)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)

	publishTestSnapshot(api)

	var positions []map[string]any
	resp = serveApiAndRetrieveEndpoint(t, api, "/api/live-positions", &positions)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, noCacheValue, resp.Header.Get("Cache-Control"))

	require.Len(t, positions, 2)
	first := positions[0]
	assert.Equal(t, "v1", first["id"])
	assert.Equal(t, 53.34, first["lat"])
	assert.Equal(t, -6.26, first["lng"])
	assert.Equal(t, "46A", first["route_short_name"])
	assert.Equal(t, "#FFD700", first["route_color"])
	assert.Equal(t, "Inbound", first["headsign"])
	assert.Equal(t, "Unknown", positions[1]["route_id"])
}

func TestStopsHandler(t *testing.T) {
	api := createTestApi(t)

	tests := []struct {
		name     string
		endpoint string
		wantIDs  []string
	}{
		{name: "default dublin area", endpoint: "/api/stops", wantIDs: []string{"a", "b"}},
		{name: "all stops", endpoint: "/api/stops?area=all", wantIDs: []string{"a", "b", "g"}},
		{name: "limit", endpoint: "/api/stops?limit=1", wantIDs: []string{"a"}},
		{name: "explicit box", endpoint: "/api/stops?minLat=53.3&maxLat=53.33&minLon=-6.3&maxLon=-6.2", wantIDs: []string{"b"}},
		{name: "galway box", endpoint: "/api/stops?minLat=53.2&maxLat=53.3&minLon=-9.1&maxLon=-9.0", wantIDs: []string{"g"}},
		{name: "nearby default radius", endpoint: "/api/stops?lat=53.349&lon=-6.26", wantIDs: []string{"a"}},
		{name: "nearby wide radius", endpoint: "/api/stops?lat=53.318&lon=-6.233&radius=5000", wantIDs: []string{"b", "a"}},
		{name: "nearby nothing", endpoint: "/api/stops?lat=53.0&lon=-7.0", wantIDs: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stops []map[string]any
			resp := serveApiAndRetrieveEndpoint(t, api, tt.endpoint, &stops)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "public, max-age=300", resp.Header.Get("Cache-Control"))

			ids := make([]string, 0, len(stops))
			for _, s := range stops {
				ids = append(ids, s["stop_id"].(string))
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestStopsHandler_BadRequests(t *testing.T) {
	api := createTestApi(t)

	for _, endpoint := range []string{
		"/api/stops?limit=abc",
		"/api/stops?limit=-1",
		"/api/stops?minLat=53.2",
		"/api/stops?minLat=x&maxLat=53.5&minLon=-6.5&maxLon=-6",
		"/api/stops?minLat=53.5&maxLat=53.2&minLon=-6.5&maxLon=-6",
		"/api/stops?minLat=-100&maxLat=53.2&minLon=-6.5&maxLon=-6",
		"/api/stops?lat=53.3",
		"/api/stops?lat=95&lon=-6.2",
		"/api/stops?lat=53.3&lon=-6.2&radius=0",
		"/api/stops?lat=53.3&lon=-6.2&radius=9000",
	} {
		var body ErrorResponse
		resp := serveApiAndRetrieveEndpoint(t, api, endpoint, &body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, endpoint)
		assert.Equal(t, http.StatusBadRequest, body.Code, endpoint)
		assert.Equal(t, noCacheValue, resp.Header.Get("Cache-Control"), endpoint)
	}
}

func TestScheduleHandler(t *testing.T) {
	api := createTestApi(t)

	var body struct {
		Stop     map[string]any   `json:"stop"`
		Schedule []map[string]any `json:"schedule"`
		Now      string           `json:"now"`
	}
	resp := serveApiAndRetrieveEndpoint(t, api, "/api/schedule/a", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=30", resp.Header.Get("Cache-Control"))

	assert.Equal(t, "08:00:00", body.Now)
	assert.Equal(t, "O'Connell St", body.Stop["stop_name"])
	require.Len(t, body.Schedule, 1, "07:50 has already departed")

	row := body.Schedule[0]
	assert.Equal(t, "t2", row["trip_id"])
	assert.Equal(t, "C1", row["route_short_name"])
	assert.Equal(t, "#00D06E", row["route_color"])
	assert.Equal(t, "08:05:00", row["scheduled_time"])
	assert.Equal(t, row["scheduled_time"], row["estimated_time"])
	assert.Equal(t, float64(0), row["delay_seconds"])
}

func TestScheduleHandler_PastMidnightAndLimit(t *testing.T) {
	api := createTestApi(t)

	var body struct {
		Schedule []map[string]any `json:"schedule"`
	}
	serveApiAndRetrieveEndpoint(t, api, "/api/schedule/b", &body)
	require.Len(t, body.Schedule, 2)
	assert.Equal(t, "08:20:00", body.Schedule[0]["scheduled_time"])
	assert.Equal(t, "25:10:00", body.Schedule[1]["scheduled_time"])

	serveApiAndRetrieveEndpoint(t, api, "/api/schedule/b?limit=1", &body)
	assert.Len(t, body.Schedule, 1)
}

func TestScheduleHandler_Errors(t *testing.T) {
	t.Run("unknown stop", func(t *testing.T) {
		var body ErrorResponse
		resp := serveApiAndRetrieveEndpoint(t, createTestApi(t), "/api/schedule/nope", &body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, http.StatusNotFound, body.Code)
		assert.Contains(t, body.Text, "nope")
		assert.Equal(t, testNow.UnixMilli(), body.CurrentTime)
	})

	t.Run("bad limit", func(t *testing.T) {
		resp := serveApiAndRetrieveEndpoint(t, createTestApi(t), "/api/schedule/a?limit=many", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("reference not loaded", func(t *testing.T) {
		api := createTestApiWith(t, testOptions{noRef: true})
		var body ErrorResponse
		resp := serveApiAndRetrieveEndpoint(t, api, "/api/schedule/a", &body)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, http.StatusServiceUnavailable, body.Code)
	})
}

func TestRouteDetailsHandler(t *testing.T) {
	api := createTestApi(t)

	var body struct {
		Route    map[string]any   `json:"route"`
		Stops    []map[string]any `json:"stops"`
		Shape    []map[string]any `json:"shape"`
		Polyline string           `json:"polyline"`
	}
	resp := serveApiAndRetrieveEndpoint(t, api, "/api/routes/46A", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "r46a", body.Route["route_id"])
	assert.Equal(t, "Dun Laoghaire", body.Route["trip_headsign"])
	require.Len(t, body.Stops, 2)
	assert.Equal(t, "a", body.Stops[0]["stop_id"])
	assert.Equal(t, "b", body.Stops[1]["stop_id"])
	assert.Len(t, body.Shape, 2)
	assert.NotEmpty(t, body.Polyline)
}

func TestRouteDetailsHandler_NoShape(t *testing.T) {
	var body struct {
		Shape []map[string]any `json:"shape"`
	}
	resp := serveApiAndRetrieveEndpoint(t, createTestApi(t), "/api/routes/C1", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, body.Shape)
	assert.Empty(t, body.Shape)
}

func TestRouteDetailsHandler_Errors(t *testing.T) {
	resp := serveApiAndRetrieveEndpoint(t, createTestApi(t), "/api/routes/ZZZ", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = serveApiAndRetrieveEndpoint(t, createTestApiWith(t, testOptions{noRef: true}), "/api/routes/46A", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAPIKeys(t *testing.T) {
	api := createTestApiWith(t, testOptions{apiKeys: []string{"TEST"}})

	var body ErrorResponse
	resp := serveApiAndRetrieveEndpoint(t, api, "/api/live-positions", &body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "permission denied", body.Text)

	resp = serveApiAndRetrieveEndpoint(t, api, "/api/live-positions?key=TEST", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = serveApiAndRetrieveEndpoint(t, api, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health checks need no key")
}

func TestStatusHandler(t *testing.T) {
	mock := clock.NewMockClock(testNow)
	api := createTestApiWithClock(t, mock)
	publishTestSnapshot(api)
	mock.Advance(10 * time.Second)

	var body map[string]any
	resp := serveApiAndRetrieveEndpoint(t, api, "/api/health", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["gtfsLoaded"])
	assert.Equal(t, false, body["ntaConnected"])
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(10), body["snapshotAgeSeconds"])
	assert.Equal(t, "2025-07-01T07:00:10Z", body["timestamp"])
	assert.Contains(t, body, "lastUpdate")
}

func TestMetricsEndpoint(t *testing.T) {
	api := createTestApi(t)

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	handler := api.Handler(mux)

	rec := doRequest(handler, "/api/live-positions")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `busrt_http_requests_total{method="GET",path="GET /api/live-positions",status="200"} 1`)
}
