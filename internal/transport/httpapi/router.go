// Package httpapi exposes the application operations over JSON/HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"applicant-portal/internal/common/auth"
	"applicant-portal/internal/common/logger"
	"applicant-portal/internal/models"
	"applicant-portal/pkg/catalog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operations is the service surface the handlers call.
type Operations interface {
	GetApplication(ctx context.Context, owner string) (*models.Application, error)
	SaveApplication(ctx context.Context, owner string, fields models.Fields) (*models.Application, error)
	SubmitApplication(ctx context.Context, owner string, fields models.Fields, consentGiven bool) (*models.Application, error)
	ConfirmAttendance(ctx context.Context, owner string) (*models.Application, error)
	DeclineAttendance(ctx context.Context, owner string) (*models.Application, error)
	Catalog() *catalog.Catalog
}

type Config struct {
	Identity auth.IdentityProvider
	// CredentialHeader names the header carrying the owner id in header
	// mode. Empty means a bearer token in Authorization.
	CredentialHeader string
	Ready            func(ctx context.Context) error
	Version          string
}

type Handler struct {
	ops    Operations
	cfg    Config
	logger logger.Logger
}

func NewRouter(ops Operations, cfg Config, log logger.Logger) http.Handler {
	h := &Handler{
		ops:    ops,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "httpapi"}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/catalog", h.getCatalog)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Get("/application", h.getApplication)
			r.Put("/application", h.saveApplication)
			r.Post("/application/submit", h.submitApplication)
			r.Post("/application/confirm", h.confirmAttendance)
			r.Post("/application/decline", h.declineAttendance)
		})
	})

	return r
}
