package restapi

import (
	"fmt"
	"net/http"
)

const noCacheValue = "no-cache, no-store, must-revalidate"

// CacheControlMiddleware sets Cache-Control on successful responses to a
// public max-age of durationSeconds, or no-cache when it is zero. Error
// responses are never cached. A value set by the handler is left alone.
func CacheControlMiddleware(durationSeconds int, next http.Handler) http.Handler {
	headerValue := noCacheValue
	if durationSeconds > 0 {
		headerValue = fmt.Sprintf("public, max-age=%d", durationSeconds)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cacheControlWriter{ResponseWriter: w, headerValue: headerValue}, r)
	})
}

type cacheControlWriter struct {
	http.ResponseWriter
	headerValue   string
	headerWritten bool
}

func (w *cacheControlWriter) WriteHeader(code int) {
	if !w.headerWritten {
		w.headerWritten = true
		h := w.ResponseWriter.Header()
		switch {
		case code < 200 || code >= 300:
			h.Set("Cache-Control", noCacheValue)
		case h.Get("Cache-Control") == "":
			h.Set("Cache-Control", w.headerValue)
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *cacheControlWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
