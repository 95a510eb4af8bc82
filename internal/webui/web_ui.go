// Package webui serves the developer debug pages.
package webui

import (
	"net/http"

	"github.com/LabartaPablo/BUS-REALTIME/internal/app"
)

type WebUI struct {
	*app.Application
}

func NewWebUI(a *app.Application) *WebUI {
	return &WebUI{Application: a}
}

// SetWebUIRoutes registers the debug pages on mux.
func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/", webUI.debugIndexHandler)
}
