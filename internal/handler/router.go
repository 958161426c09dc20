package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/guided-resolution/internal/middleware"
	natsclient "github.com/capitalize-ai/guided-resolution/internal/nats"
	"github.com/capitalize-ai/guided-resolution/internal/service"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

// RouterConfig carries everything the API routes need.
type RouterConfig struct {
	Flows         *service.FlowService
	Sessions      *service.SessionService
	Escalations   *service.EscalationService
	Continuations *service.ContinuationService
	DB            Pinger
	NATS          *natsclient.Client
	JWTSecret     string
	RateLimit     int
	RateWindow    time.Duration
	DraftLimit    int
	Logger        *logger.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	healthHandler := NewHealthHandler(cfg.DB, cfg.NATS)
	flowHandler := NewFlowHandler(cfg.Flows, log.Named("flows"))
	sessionHandler := NewSessionHandler(cfg.Sessions, log.Named("sessions"))
	escalationHandler := NewEscalationHandler(cfg.Escalations, log.Named("escalations"))
	continuationHandler := NewContinuationHandler(cfg.Continuations, log.Named("continuations"))

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log.Named("http")))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateWindow))
		}

		// Flow definitions
		r.Route("/flows", func(r chi.Router) {
			r.Get("/", flowHandler.List)
			r.With(middleware.RequireScope(middleware.ScopeFlowsAdmin)).Post("/", flowHandler.Register)

			r.Route("/{flowID}/versions/{version}", func(r chi.Router) {
				r.Get("/", flowHandler.Get)
				r.With(middleware.RequireScope(middleware.ScopeFlowsAdmin)).Post("/activate", flowHandler.Activate)
			})
		})
		r.Get("/categories/{category}/active", flowHandler.GetActive)

		// Threads
		r.Route("/threads/{threadID}", func(r chi.Router) {
			r.Get("/", escalationHandler.GetThread)
			r.With(middleware.RequireScope(middleware.ScopeEscalationsAdmin)).Put("/assignment", escalationHandler.AssignThread)

			r.Post("/sessions", sessionHandler.Start)
			r.Get("/sessions", sessionHandler.ListByThread)

			r.Get("/suggestions", continuationHandler.Suggestions)
			r.Get("/continuations", continuationHandler.List)
			r.Post("/continuations", continuationHandler.Record)

			r.Route("/escalations", func(r chi.Router) {
				r.Get("/", escalationHandler.List)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireScope(middleware.ScopeEscalationsAdmin))
					r.Post("/acknowledge", escalationHandler.Acknowledge)
					r.Post("/investigate", escalationHandler.Investigate)
					r.Post("/resolve", escalationHandler.Resolve)
				})
			})
		})

		// Sessions
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Post("/responses", sessionHandler.SubmitResponse)
			r.Post("/attachments", sessionHandler.SubmitAttachments)
			r.Post("/advance", sessionHandler.Advance)
			r.Post("/pause", sessionHandler.Pause)
			r.Post("/resume", sessionHandler.Resume)
			r.Post("/abandon", sessionHandler.Abandon)
			r.Group(func(r chi.Router) {
				if cfg.DraftLimit > 0 {
					r.Use(middleware.UserRateLimit(cfg.DraftLimit, cfg.RateWindow))
				}
				r.Post("/draft", sessionHandler.Draft)
			})
		})
	})

	return r
}
