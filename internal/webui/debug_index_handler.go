package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"github.com/LabartaPablo/BUS-REALTIME/internal/appconf"
	"github.com/LabartaPablo/BUS-REALTIME/internal/logging"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

// debugStopLimit caps the stop dump; the full list is tens of thousands.
const debugStopLimit = 200

type debugData struct {
	Title string
	Pre   string
}

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func writeDebugData(w http.ResponseWriter, r *http.Request, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Pre:   dumpConfig.Sdump(data),
	})
	if err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to execute debug template", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production || webUI.Service == nil {
		http.NotFound(w, r)
		return
	}

	dataType := r.URL.Query().Get("dataType")
	idx := webUI.Service.Reference()

	var data any
	var title string

	switch dataType {
	case "counts":
		title = "Reference - Counts"
		if idx != nil {
			data = idx.Counts()
		}
	case "stats":
		title = "Reference - Load Stats"
		if idx != nil {
			data = idx.Stats()
		}
	case "stops":
		title = "Reference - Stops"
		if idx != nil {
			data = idx.Stops(debugStopLimit)
		}
	case "current":
		title = "Snapshot - Current"
		data = webUI.Service.Cache().Current()
	case "previous":
		title = "Snapshot - Previous"
		data = webUI.Service.Cache().Previous()
	case "status":
		title = "Service - Status"
		data = webUI.Service.Status(webUI.Clock.Now())
	default:
		data = map[string]string{
			"error": "Please use one of the following: counts, stats, stops, current, previous, status.",
		}
		title = "Choose a data type"
	}

	if data == nil {
		slog.Debug("debug page requested before reference load", "dataType", dataType)
		data = map[string]string{"error": "reference data not loaded yet"}
	}

	writeDebugData(w, r, title, data)
}
