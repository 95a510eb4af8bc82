package restapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
)

const (
	defaultNearbyRadius = 500.0
	maxNearbyRadius     = 5000.0
)

// stopsHandler lists stops inside a bounding box. Without minLat, maxLat,
// minLon and maxLon it uses the Dublin service area; area=all lifts the box.
// lat and lon switch to a radius search ordered by distance.
func (api *RestAPI) stopsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		api.badRequestResponse(w, r, err.Error())
		return
	}

	if q.Get("lat") != "" || q.Get("lon") != "" {
		api.nearbyStops(w, r, q, limit)
		return
	}

	bounds, err := parseBounds(q)
	if err != nil {
		api.badRequestResponse(w, r, err.Error())
		return
	}

	stops, err := api.Service.ListStops(bounds, limit)
	if err != nil {
		api.errorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, stops)
}

func (api *RestAPI) nearbyStops(w http.ResponseWriter, r *http.Request, q url.Values, limit int) {
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		api.badRequestResponse(w, r, "lat and lon must be valid coordinates")
		return
	}

	radius := defaultNearbyRadius
	if v := q.Get("radius"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed > maxNearbyRadius {
			api.badRequestResponse(w, r, fmt.Sprintf("invalid radius: %q", v))
			return
		}
		radius = parsed
	}

	stops, err := api.Service.ListStopsNear(lat, lon, radius, limit)
	if err != nil {
		api.errorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, stops)
}

func parseBounds(q url.Values) (*reference.Bounds, error) {
	keys := []string{"minLat", "maxLat", "minLon", "maxLon"}
	given := 0
	for _, k := range keys {
		if q.Get(k) != "" {
			given++
		}
	}

	switch {
	case given == 0 && q.Get("area") == "all":
		return nil, nil
	case given == 0:
		b := reference.DublinBounds
		return &b, nil
	case given != len(keys):
		return nil, fmt.Errorf("minLat, maxLat, minLon and maxLon must be given together")
	}

	vals := make([]float64, len(keys))
	for i, k := range keys {
		v, err := strconv.ParseFloat(q.Get(k), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", k, q.Get(k))
		}
		vals[i] = v
	}

	b := reference.Bounds{MinLat: vals[0], MaxLat: vals[1], MinLon: vals[2], MaxLon: vals[3]}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return nil, fmt.Errorf("bounding box minimum exceeds maximum")
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return nil, fmt.Errorf("bounding box out of range")
	}
	return &b, nil
}

// parseLimit accepts an empty value as the service default.
func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit: %q", s)
	}
	return n, nil
}
