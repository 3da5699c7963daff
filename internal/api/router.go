// Package api provides the HTTP API for VoyaAI.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/voyaai/voyaai/internal/api/handler"
	"github.com/voyaai/voyaai/internal/api/middleware"
	"github.com/voyaai/voyaai/internal/plan"
	"github.com/voyaai/voyaai/internal/provider/resilience"
	"github.com/voyaai/voyaai/internal/session"
	"github.com/voyaai/voyaai/internal/ticket"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Tokens validates bearer tokens and yields the editing subject.
	Tokens     middleware.TokenValidator
	RequireTLS bool

	Sessions   *session.Manager
	Repository plan.Repository
	Resolver   ticket.Resolver

	RecognizeTimeout time.Duration
	CalendarLocation *time.Location
	CanvasWidth      float64

	// Database and Registry feed the ops endpoints (optional).
	Database handler.Pinger
	Registry *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "voyaai-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Database:  cfg.Database,
		Registry:  cfg.Registry,
		Sessions:  cfg.Sessions,
	})
	plans := handler.NewPlanHandler(handler.PlanHandlerConfig{
		Sessions:         cfg.Sessions,
		Repository:       cfg.Repository,
		Resolver:         cfg.Resolver,
		RecognizeTimeout: cfg.RecognizeTimeout,
		CalendarLocation: cfg.CalendarLocation,
		CanvasWidth:      cfg.CanvasWidth,
		Logger:           cfg.Logger,
	})

	authMiddleware := middleware.Auth(cfg.Tokens)
	publicRateLimit := middleware.RateLimitByIP(middleware.PublicRateLimit)
	expensiveRateLimit := middleware.RateLimitBySubject(middleware.ExpensiveRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public except status)
		r.Route("/ops", func(r chi.Router) {
			r.Use(publicRateLimit)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitBySubject(middleware.EditRateLimit))
			r.Use(middleware.RequireJSON)

			r.Get("/", plans.ListPlans)
			r.Post("/", plans.CreatePlan)

			r.Route("/{planId}", func(r chi.Router) {
				r.Get("/", plans.GetPlan)
				r.Delete("/", plans.DeletePlan)
				r.Put("/title", plans.SetTitle)
				r.Post("/release", plans.ReleasePlan)
				r.With(expensiveRateLimit).Post("/repair", plans.Repair)
				r.Get("/calendar.ics", plans.GetCalendar)

				r.Post("/days", plans.AddDay)
				r.Route("/days/{day}", func(r chi.Router) {
					r.Delete("/", plans.DeleteDay)
					r.Put("/start-time", plans.SetStartTime)
					r.Get("/schedule", plans.GetSchedule)
					r.Get("/layout", plans.GetLayout)
					r.Post("/layout:reset", plans.ResetLayout)

					r.Post("/waypoints", plans.AddWaypoint)
					r.Post("/waypoints:reorder", plans.ReorderWaypoints)
					r.Route("/waypoints/{index}", func(r chi.Router) {
						r.Delete("/", plans.DeleteWaypoint)
						r.Put("/stay", plans.SetStay)
						r.Put("/position", plans.SetPosition)
					})

					r.Route("/segments/{segment}", func(r chi.Router) {
						r.Put("/mode", plans.SetMode)
						r.With(expensiveRateLimit).Put("/ticket", plans.SetTicket)
					})
				})
			})
		})
	})

	return r
}
