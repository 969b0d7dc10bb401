package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dependable-calls/dce/internal/auth"
	"github.com/dependable-calls/dce/internal/billing"
	"github.com/dependable-calls/dce/internal/blog"
	"github.com/dependable-calls/dce/internal/calls"
	"github.com/dependable-calls/dce/internal/campaigns"
	"github.com/dependable-calls/dce/internal/health"
	"github.com/dependable-calls/dce/internal/observability"
	"github.com/dependable-calls/dce/internal/security"
	"github.com/dependable-calls/dce/internal/shared"
	"github.com/dependable-calls/dce/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	AuthHandler     *auth.Handler
	CampaignHandler *campaigns.Handler
	CallHandler     *calls.Handler
	BillingHandler  *billing.Handler
	BlogHandler     *blog.Handler
	SecurityHandler *security.Handler
	HealthHandler   *health.Handler
	JobsHandler     *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with platform defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	if params.HealthHandler != nil {
		r.Get("/healthz", params.HealthHandler.Liveness)
		r.Get("/health", params.HealthHandler.Readiness)
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.CampaignHandler != nil {
		r.Route("/campaigns", func(r chi.Router) {
			params.CampaignHandler.MountRoutes(r)
			if params.CallHandler != nil {
				params.CallHandler.MountCampaignRoutes(r)
			}
		})
	}
	if params.CallHandler != nil {
		r.Route("/calls", params.CallHandler.MountRoutes)
	}
	if params.BillingHandler != nil {
		r.Route("/billing", params.BillingHandler.MountRoutes)
	}
	if params.BlogHandler != nil {
		r.Route("/blog", params.BlogHandler.MountRoutes)
	}
	if params.SecurityHandler != nil {
		r.Route("/security", params.SecurityHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
