package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hangarhq/hangar/pkg/api"
	"github.com/hangarhq/hangar/pkg/authn"
	"github.com/hangarhq/hangar/pkg/authz"
	"github.com/hangarhq/hangar/pkg/config"
	"github.com/hangarhq/hangar/pkg/mailer"
	"github.com/hangarhq/hangar/pkg/middleware"
	"github.com/hangarhq/hangar/pkg/observability"
	"github.com/hangarhq/hangar/pkg/orgs"
	"github.com/hangarhq/hangar/pkg/storage/postgres"
	"github.com/hangarhq/hangar/pkg/users"

	appstore "github.com/hangarhq/hangar/pkg/apps"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger("info", os.Stderr).WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	health := observability.NewHealthChecker(db)

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			}
		}
	}()

	userStore := users.NewStore(db)
	orgStore := orgs.NewStore(db)
	appStore := appstore.NewStore(db)

	var m mailer.Mailer
	if cfg.Mailer.SMTPHost != "" {
		m = mailer.NewSMTPMailer(cfg.Mailer)
	} else {
		logger.Warn("no SMTP host configured, mail is logged instead of sent")
		m = mailer.NewLogMailer(logger, cfg.Mailer.ExternalOrigin)
	}

	signer := authn.NewJWTSigner(cfg.Auth.JWTSecret)
	hasher := authn.NewBcryptHasher(0)
	authService := authn.NewService(db, userStore, orgStore, hasher, signer, m, logger, metrics, cfg.Auth.SignupsDisabled)
	checker := authz.NewChecker(userStore, appStore, metrics)
	sessions := middleware.NewAuth(signer, userStore, orgStore, logger)

	server := api.NewServer(
		cfg.Server,
		logger,
		sessions,
		api.NewAuthHandler(authService, logger),
		api.NewUserHandler(userStore, orgStore, logger),
		api.NewAppHandler(appStore, checker, logger),
		metrics,
		health,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Fatal("server failed")
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("shutdown failed")
		}
	}
}
