package restapi

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

const maxRequestIDLength = 128

var validRequestIDRegex = regexp.MustCompile(`^[a-zA-Z0-9-._:]+$`)

// requestIDHeaders are checked in order for a caller supplied id.
var requestIDHeaders = []string{"X-Request-ID", "X-Correlation-ID"}

// RequestIDMiddleware propagates a valid caller supplied request id, or
// assigns a fresh UUID, and echoes it in the X-Request-ID response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := incomingRequestID(r)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), RequestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func incomingRequestID(r *http.Request) string {
	for _, h := range requestIDHeaders {
		id := r.Header.Get(h)
		if id == "" {
			continue
		}
		if len(id) <= maxRequestIDLength && validRequestIDRegex.MatchString(id) {
			return id
		}
		return ""
	}
	return ""
}

// GetRequestID allows other packages to retrieve the ID without importing restapi.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
