package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/observability"
	"github.com/dmbot/dmbot/internal/server/handlers"
	servermw "github.com/dmbot/dmbot/internal/server/middleware"
)

func (s *Server) registerRoutes() {
	health := s.deps.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", s.metricsHandler)
	if s.deps.BotMetrics != nil {
		s.router.Method("GET", "/metrics/bot", s.deps.BotMetrics.Handler())
	}

	s.registerAPI()
	s.registerAdminEndpoint()
}

// registerAPI mounts the dashboard API. Reads are open; anything that
// changes bot state or streams events requires the admin token when set.
func (s *Server) registerAPI() {
	api := s.deps.API
	if api == nil {
		return
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", api.Status)
		r.Get("/activity", api.Activity)

		r.Group(func(r chi.Router) {
			r.Use(servermw.AdminToken(s.cfg.AdminToken))
			r.Post("/authenticate", api.Authenticate)
			r.Post("/start", api.Start)
			r.Post("/stop", api.Stop)
			r.Post("/set-target", api.SetTarget)
			r.Post("/update-dnd", api.UpdateProtectedUsers)
			if s.deps.Events != nil {
				r.Get("/ws", s.deps.Events.ServeHTTP)
			}
		})
	})
}

func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.cfg.AdminToken == "" {
		if logger != nil {
			logger.Warn("Admin token not set; dashboard control API is unauthenticated and /admin/signal is disabled")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.cfg.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
