package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vendsight/vendsight/internal/product"
	"github.com/vendsight/vendsight/internal/report"
	"github.com/vendsight/vendsight/internal/snapshot"
	"github.com/vendsight/vendsight/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Config          *Config
	MW              MiddlewareConfig
	ReportHandler   *report.Handler
	ProductHandler  *product.Handler
	SnapshotHandler *snapshot.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(params.MW) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.ReportHandler != nil {
		params.ReportHandler.MountRoutes(r)
	}
	if params.ProductHandler != nil {
		params.ProductHandler.MountRoutes(r)
	}
	if params.SnapshotHandler != nil {
		params.SnapshotHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
