package restapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache tiers in seconds.
const (
	cacheLive      = 0
	cacheReference = 300
	cacheSchedule  = 30
)

// SetRoutes registers every endpoint on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/live-positions", api.public(cacheLive, api.livePositionsHandler))
	mux.Handle("GET /api/stops", api.public(cacheReference, api.stopsHandler))
	mux.Handle("GET /api/schedule/{stopId}", api.public(cacheSchedule, api.scheduleHandler))
	mux.Handle("GET /api/routes/{shortName}", api.public(cacheReference, api.routeDetailsHandler))
	mux.Handle("GET /api/health", CacheControlMiddleware(cacheLive, http.HandlerFunc(api.statusHandler)))

	mux.HandleFunc("GET /healthz", api.healthHandler)
	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// public wraps a data endpoint with key checks, rate limiting and caching.
func (api *RestAPI) public(cacheSeconds int, h http.HandlerFunc) http.Handler {
	var next http.Handler = CacheControlMiddleware(cacheSeconds, api.requireAPIKey(h))
	if api.rateLimiter != nil {
		next = api.rateLimiter.Handler()(next)
	}
	return next
}

func (api *RestAPI) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns mux wrapped in the global middleware chain.
func (api *RestAPI) Handler(mux http.Handler) http.Handler {
	h := MetricsHandler(api.Metrics)(mux)
	h = NewCORSMiddleware(api.Config.AllowedOrigins)(h)
	h = NewRequestLoggingMiddleware(api.Logger)(h)
	return RequestIDMiddleware(h)
}
