package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/smt-trading/crm/internal/observability"
	"github.com/smt-trading/crm/internal/sales/conversion"
	"github.com/smt-trading/crm/internal/sales/orders"
	"github.com/smt-trading/crm/internal/sales/pipeline"
	"github.com/smt-trading/crm/internal/sales/quotations"
	"github.com/smt-trading/crm/internal/sales/sequence"
	"github.com/smt-trading/crm/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error

	SequenceHandler   *sequence.Handler
	QuotationHandler  *quotations.Handler
	OrderHandler      *orders.Handler
	PipelineHandler   *pipeline.Handler
	ConversionHandler *conversion.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with the CRM defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Ready != nil {
			if err := params.Ready(r.Context()); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/sales", func(r chi.Router) {
		if params.SequenceHandler != nil {
			params.SequenceHandler.MountRoutes(r)
		}
		if params.QuotationHandler != nil {
			params.QuotationHandler.MountRoutes(r)
		}
		if params.OrderHandler != nil {
			params.OrderHandler.MountRoutes(r)
		}
		if params.PipelineHandler != nil {
			params.PipelineHandler.MountRoutes(r)
		}
		if params.ConversionHandler != nil {
			params.ConversionHandler.MountRoutes(r)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
