package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gatekeeper-iam/gatekeeper/internal/app"
	"github.com/gatekeeper-iam/gatekeeper/internal/notify"
	"github.com/gatekeeper-iam/gatekeeper/internal/platform/cache"
	"github.com/gatekeeper-iam/gatekeeper/internal/platform/db"
	"github.com/gatekeeper-iam/gatekeeper/internal/principals"
	"github.com/gatekeeper-iam/gatekeeper/internal/rbac"
	"github.com/gatekeeper-iam/gatekeeper/internal/session"
	"github.com/gatekeeper-iam/gatekeeper/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	notifier := notify.NewQueueNotifier(jobClient)

	principalRepo := principals.NewRepository(dbpool)
	principalService := principals.NewService(principalRepo, notifier, logger, cfg.ResetTTL)
	principalHandler := principals.NewHandler(logger, principalService)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, principalService, logger)
	if err := rbacService.SeedCatalog(ctx); err != nil {
		logger.Error("seed role catalog", slog.Any("error", err))
		os.Exit(1)
	}
	rbacHandler := rbac.NewHandler(logger, rbacService)
	guards := rbac.NewMiddleware(rbacService, logger)

	issuer, err := session.NewIssuer(session.IssuerConfig{
		Secret:    []byte(cfg.JWTSecret),
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		AccessTTL: cfg.AccessTTL,
	})
	if err != nil {
		logger.Error("token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	ledger := session.NewLedger(redisClient, cfg.RefreshTTL)
	sessionService := session.NewService(principalService, rbacService, issuer, ledger, notifier, logger, cfg.ResetLinkBase)
	sessionHandler := session.NewHandler(logger, sessionService, cfg.RefreshTTL, cfg.IsProduction())

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionHandler:    sessionHandler,
		PrincipalsHandler: principalHandler,
		RBACHandler:       rbacHandler,
		Authenticator:     session.Authenticator(issuer),
		Guards:            guards,
		JobHandler:        jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
