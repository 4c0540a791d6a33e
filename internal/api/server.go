package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/safehouse/internal/api/handler"
	mw "github.com/edvin/safehouse/internal/api/middleware"
	"github.com/edvin/safehouse/internal/core"
)

type Server struct {
	router        chi.Router
	logger        zerolog.Logger
	services      *core.Services
	keys          mw.KeyStore
	ready         func(ctx context.Context) error
	callbackToken string
}

// NewServer wires the routes. keys resolves API keys (the core pool in
// production); ready backs /readyz.
func NewServer(logger zerolog.Logger, services *core.Services, keys mw.KeyStore, ready func(ctx context.Context) error, callbackToken string) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		logger:        logger,
		services:      services,
		keys:          keys,
		ready:         ready,
		callbackToken: callbackToken,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	backupJob := handler.NewBackupJob(s.services.Backup)
	settings := handler.NewSettings(s.services.Settings, s.services.Security)
	security := handler.NewSecurity(s.services.Security)
	callback := handler.NewExecutorCallback(s.services.Backup)

	s.router.Route("/api/v1/tenants/{tenantID}", func(r chi.Router) {
		r.Use(mw.Auth(s.keys))
		r.Use(mw.RequireTenantAccess)

		// Settings
		r.Get("/backup-settings", settings.GetBackup)
		r.Put("/backup-settings", settings.UpdateBackup)
		r.Get("/security-settings", settings.GetSecurity)
		r.Put("/security-settings", settings.UpdateSecurity)

		// Backup jobs
		r.Get("/backup-jobs", backupJob.List)
		r.Post("/backup-jobs", backupJob.Create)
		r.Post("/backup-jobs/emergency", backupJob.Emergency)
		r.Post("/backup-jobs/upload", backupJob.Upload)
		r.Get("/backup-jobs/{id}", backupJob.Get)
		r.Delete("/backup-jobs/{id}", backupJob.Delete)
		r.Post("/backup-jobs/{id}/test", backupJob.Test)
		r.Post("/backup-jobs/{id}/restore", backupJob.Restore)
		r.Post("/backup-jobs/{id}/cancel", backupJob.Cancel)
		r.Post("/backup-jobs/{id}/retry", backupJob.Retry)
		r.Get("/backup-jobs/{id}/download", backupJob.Download)

		// Security
		r.Get("/security-logs", security.ListLogs)
		r.Post("/security-logs/{id}/resolve", security.Resolve)
		r.Post("/security/scan", security.Scan)
		r.Get("/security/score", security.Score)

		r.Get("/statistics", security.Statistics)
	})

	s.router.Route("/internal/v1", func(r chi.Router) {
		r.Use(mw.ExecutorToken(s.callbackToken))
		r.Post("/backup-jobs/{id}/events", callback.Event)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"core_db": "ok"}
	status := http.StatusOK
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["core_db"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
