package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/LabartaPablo/BUS-REALTIME/internal/transit"
)

// HealthResponse represents the JSON response from the readiness endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// StatusResponse is the body of /api/health.
type StatusResponse struct {
	Health    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	transit.Status
}

// healthHandler reports readiness: 503 until the reference index is loaded.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if api.Application == nil || api.Service == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "service not initialized",
		})
		return
	}

	if api.Service.Reference() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "starting",
			Detail: "reference data is being loaded",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status: "ok",
	})
}

// statusHandler always answers 200 with the freshness report; status is
// "degraded" while the snapshot is stale.
func (api *RestAPI) statusHandler(w http.ResponseWriter, r *http.Request) {
	now := api.Clock.Now()
	st := api.Service.Status(now)

	health := "ok"
	if st.Stale {
		health = "degraded"
	}
	api.sendJSON(w, r, StatusResponse{Health: health, Timestamp: now.UTC(), Status: st})
}
