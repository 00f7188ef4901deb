// Package router assembles the HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/handlers"
	"github.com/amerfu/aigw/internal/middleware"
)

type Dependencies struct {
	Auth        *middleware.Authenticator
	Completions *handlers.CompletionsHandler
	Providers   *handlers.ProvidersHandler
	Budget      *handlers.BudgetHandler
	Audit       *handlers.AuditHandler
	Health      *handlers.HealthHandler
}

func New(cfg *config.Config, deps Dependencies, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(logger))

	r.Get("/health", deps.Health.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Tenant endpoints.
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireTeam)
			r.Post("/complete", deps.Completions.Complete)
			r.Get("/providers/status", deps.Providers.Status)
			r.Get("/budget", deps.Budget.Get)
		})

		// Admin endpoints.
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)
			r.Get("/budget/all", deps.Budget.List)
			r.Post("/budget/limits", deps.Budget.SetLimits)
			r.Get("/audit/recent", deps.Audit.Recent)
		})
	})

	return r
}
