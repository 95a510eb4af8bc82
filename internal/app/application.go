package app

import (
	"log/slog"

	"github.com/LabartaPablo/BUS-REALTIME/internal/appconf"
	"github.com/LabartaPablo/BUS-REALTIME/internal/clock"
	"github.com/LabartaPablo/BUS-REALTIME/internal/metrics"
	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
	"github.com/LabartaPablo/BUS-REALTIME/internal/transit"
)

// Application holds the dependencies shared by the HTTP handlers, the
// debug pages and the background workers.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Cache   *snapshot.Cache
	Service *transit.Service
}
