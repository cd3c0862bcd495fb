package api

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hangarhq/hangar/pkg/config"
	"github.com/hangarhq/hangar/pkg/httputil"
	"github.com/hangarhq/hangar/pkg/middleware"
	"github.com/hangarhq/hangar/pkg/observability"
)

// Server ties the HTTP surface together: the API server and a separate ops
// server for probes and metrics.
type Server struct {
	cfg    config.ServerConfig
	logger *logrus.Logger

	httpServer *http.Server
	opsServer  *http.Server
}

// NewServer builds the routing tree and both listeners.
func NewServer(
	cfg config.ServerConfig,
	logger *logrus.Logger,
	sessions *middleware.Auth,
	authHandler *AuthHandler,
	userHandler *UserHandler,
	appHandler *AppHandler,
	metrics *observability.Metrics,
	health *observability.HealthChecker,
) *Server {
	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.MaxBytesMiddleware(1<<20),
		metrics.Middleware,
	)

	public := router.PathPrefix("/api").Subrouter()
	authHandler.RegisterPublicRoutes(public)

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(sessions.Authenticate)
	authHandler.RegisterRoutes(protected)
	userHandler.RegisterRoutes(protected)
	appHandler.RegisterRoutes(protected)

	admin := router.PathPrefix("/api").Subrouter()
	admin.Use(sessions.Authenticate, sessions.RequireAdmin)
	userHandler.RegisterAdminRoutes(admin)
	appHandler.RegisterAdminRoutes(admin)

	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/healthz", health.Liveness)
	opsMux.HandleFunc("/readyz", health.Readiness)
	opsMux.Handle("/metrics", metrics.Handler())

	return &Server{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		opsServer: &http.Server{
			Addr:    net.JoinHostPort(cfg.Host, cfg.OpsPort),
			Handler: opsMux,
		},
	}
}

// Start runs both listeners. It blocks until the API server stops.
func (s *Server) Start() error {
	go func() {
		s.logger.WithField("addr", s.opsServer.Addr).Info("ops server listening")
		if err := s.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("ops server failed")
		}
	}()

	s.logger.WithField("addr", s.httpServer.Addr).Info("api server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.opsServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("ops server shutdown failed")
	}
	return s.httpServer.Shutdown(ctx)
}
