package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/d60-Lab/attribution/internal/api/handler"
	"github.com/d60-Lab/attribution/internal/api/router"
	"github.com/d60-Lab/attribution/internal/config"
	"github.com/d60-Lab/attribution/internal/model"
	"github.com/d60-Lab/attribution/internal/queue"
	"github.com/d60-Lab/attribution/internal/repository"
	"github.com/d60-Lab/attribution/internal/service"
	"github.com/d60-Lab/attribution/pkg/logger"
	"github.com/d60-Lab/attribution/pkg/redisx"
	"github.com/d60-Lab/attribution/pkg/tracing"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}

	logger.Init(cfg.Server.Mode)
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "attribution", cfg.Tracing.Endpoint)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without traces", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	db := mustOpenDB(cfg)
	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer cache.Close()

	sessionRepo := repository.NewSessionRepository(db)
	fallbackRepo := repository.NewFallbackRepository(db)
	dlqRepo := repository.NewDeadLetterRepository(db)

	publisher := queue.NewPublisher(cfg.Broker.Endpoint, cfg.Broker.Token,
		cfg.Broker.Retries, cfg.Broker.PublishTimeout, fallbackRepo)

	stats := service.NewStatsRecorder(cache, 10000)
	stopStats := stats.Start(2)

	reconciler := service.NewReconciler(sessionRepo, dlqRepo, stats, cfg.Pipeline.DefaultDealValue)
	replaySvc := service.NewReplayService(dlqRepo, publisher,
		cfg.Broker.CallbackBaseURL+handler.SyncCallbackPath)
	sweeper := service.NewFallbackSweeper(redisx.NewLock(cache), fallbackRepo, publisher,
		cfg.Pipeline.SweepRatePerSec, cfg.Pipeline.SweepBatchSize, cfg.Pipeline.SweepLockTTL)
	reporting := service.NewReportingService(cache, sessionRepo, cfg.Pipeline.ReportTimeout)

	h := handler.New(publisher, reconciler, replaySvc, sweeper, reporting,
		redisx.NewSemaphore(cache), cfg.Broker.CallbackBaseURL,
		cfg.Pipeline.SemaphoreLimit, cfg.Pipeline.SemaphoreTTL)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(cfg, h),
	}

	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown not clean", zap.Error(err))
	}
	if err := stopStats(shutdownCtx); err != nil {
		logger.Warn("stats drain not clean", zap.Error(err))
	}
}

func mustOpenDB(cfg *config.Config) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		logger.Error("db open failed", zap.Error(err))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("db handle failed", zap.Error(err))
		os.Exit(1)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := db.AutoMigrate(
		&model.Session{},
		&model.Signal{},
		&model.FallbackMessage{},
		&model.DeadLetter{},
		&model.ReplayAudit{},
	); err != nil {
		logger.Error("migrate failed", zap.Error(err))
		os.Exit(1)
	}
	return db
}
