package restapi

import (
	"net/http"
	"time"

	"github.com/LabartaPablo/BUS-REALTIME/internal/metrics"
)

// unmatchedRoute labels requests no route pattern accepted.
const unmatchedRoute = "unmatched"

// MetricsHandler records request counts, latency, response size and the
// in-flight gauge. A nil m disables it.
func MetricsHandler(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			// The mux fills in r.Pattern on the request it receives, which
			// is this one as long as nothing in between copies it.
			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			m.ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start), rec.bytes)
		})
	}
}
