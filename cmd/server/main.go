package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"intakeservice/internal/cache"
	"intakeservice/internal/config"
	"intakeservice/internal/data"
	"intakeservice/internal/db"
	"intakeservice/internal/handler"
	"intakeservice/internal/middleware"
	"intakeservice/internal/notify"
	"intakeservice/internal/s3client"
	"intakeservice/internal/service"
	"intakeservice/internal/storage"
	"intakeservice/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	logger := logging.New(zapLogger)
	ctx = logging.ContextWithLogger(ctx, logger)

	cfg, err := config.New()
	if err != nil {
		logger.Fatal(ctx, "cannot create config", zap.Error(err))
	}

	database, err := db.New(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "cannot create db", zap.Error(err))
	}
	defer database.Close()

	records := data.NewRecordRepository(database)

	s3Client, err := s3client.New(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "cannot create S3 client", zap.Error(err))
	}

	objectStorage, err := storage.New(ctx, s3Client, cfg.S3Bucket, cfg.AttachmentURLBase())
	if err != nil {
		logger.Fatal(ctx, "cannot create object storage", zap.Error(err))
	}

	notifier := notify.NewEventSender(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() { _ = notifier.Close() }()

	redisConn := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	recordCache := cache.NewRecordCache(redisConn, cfg.CacheTTL)

	intakeService := service.NewIntakeService(objectStorage, records, notifier, cfg.StageTimeout)
	intakeHandler := handler.NewIntakeHandler(intakeService, records, recordCache)

	r := chi.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, cfg.MaxRequestBytes)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	intakeHandler.RegisterRoutes(r)

	port := fmt.Sprintf(":%d", cfg.HTTPPort)
	logger.Info(ctx, "Starting server", zap.String("port", port))

	srv := &http.Server{
		Addr:    port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "cannot start http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal(ctx, "server forced to shutdown", zap.Error(err))
	}
	logger.Info(ctx, "Server stopped")
}
