// Package restapi is the thin HTTP surface over transit.Service.
package restapi

import (
	"time"

	"github.com/LabartaPablo/BUS-REALTIME/internal/app"
)

// RestAPI serves the JSON endpoints. It embeds the Application for access to
// the service, clock, logger and metrics.
type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

// NewRestAPI builds the API and its rate limiter.
func NewRestAPI(a *app.Application) *RestAPI {
	return &RestAPI{
		Application: a,
		rateLimiter: NewRateLimitMiddleware(a.Config.RateLimit, time.Second, a.Config.ApiKeys, a.Clock),
	}
}

// Shutdown stops background work owned by the API.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}
