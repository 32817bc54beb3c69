package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/kiranshivaraju/hyroxreport/internal/api/middleware"
	"github.com/kiranshivaraju/hyroxreport/internal/api/response"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	CreateReport  http.HandlerFunc
	ListReports   http.HandlerFunc
	GetReport     http.HandlerFunc
	TriggerReport http.HandlerFunc
	ReportStatus  http.HandlerFunc
	ReportEvents  http.HandlerFunc
	ListSnapshots http.HandlerFunc
	GetSnapshot   http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Route("/api/v1/reports", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.CreateReport))
			r.Get("/", orNotImplemented(deps.ListReports))
			r.Get("/{reportID}", orNotImplemented(deps.GetReport))
			r.Post("/{reportID}/generate", orNotImplemented(deps.TriggerReport))
			r.Get("/{reportID}/status", orNotImplemented(deps.ReportStatus))
			r.Get("/{reportID}/events", orNotImplemented(deps.ReportEvents))
			r.Get("/{reportID}/snapshots", orNotImplemented(deps.ListSnapshots))
		})
		r.Get("/api/v1/snapshots/{dataID}", orNotImplemented(deps.GetSnapshot))

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
