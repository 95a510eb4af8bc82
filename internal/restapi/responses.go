package restapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/LabartaPablo/BUS-REALTIME/internal/logging"
	"github.com/LabartaPablo/BUS-REALTIME/internal/transit"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code        int    `json:"code"`
	Text        string `json:"text"`
	CurrentTime int64  `json:"currentTime"`
}

func setJSONResponseType(w *http.ResponseWriter) {
	(*w).Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, data any) {
	setJSONResponseType(&w)
	b, err := json.Marshal(data)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	setJSONResponseType(&w)
	w.WriteHeader(code)

	response := ErrorResponse{
		Code:        code,
		Text:        message,
		CurrentTime: api.currentTime(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode error response", err)
	}
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusNotFound, "resource not found")
}

func (api *RestAPI) sendUnauthorized(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusUnauthorized, "permission denied")
}

func (api *RestAPI) badRequestResponse(w http.ResponseWriter, r *http.Request, message string) {
	api.sendError(w, r, http.StatusBadRequest, message)
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(logging.FromContext(r.Context()), "request failed", err,
		"method", r.Method,
		"path", r.URL.Path)
	api.sendError(w, r, http.StatusInternalServerError, "internal server error")
}

// errorResponse maps service errors onto status codes.
func (api *RestAPI) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var nf *transit.NotFoundError
	switch {
	case errors.As(err, &nf):
		api.sendError(w, r, http.StatusNotFound, nf.Error())
	case errors.Is(err, transit.ErrNotReady):
		api.sendError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		api.serverErrorResponse(w, r, err)
	}
}

func (api *RestAPI) currentTime() int64 {
	if api.Application == nil || api.Clock == nil {
		return 0
	}
	return api.Clock.NowUnixMilli()
}
