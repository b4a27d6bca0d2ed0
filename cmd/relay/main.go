package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"

	"github.com/tanmaydg/bazario/internal/auth"
	"github.com/tanmaydg/bazario/internal/config"
	"github.com/tanmaydg/bazario/internal/messaging"
	"github.com/tanmaydg/bazario/internal/relay"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	hub := relay.NewHub(rdb, logger)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("hub error", "error", err)
			cancel()
		}
	}()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.OrderTopic, "relay")
	defer func() { _ = consumer.Close() }()

	intake := relay.NewIntake(hub, logger)
	go func() {
		if err := consumer.Consume(ctx, intake.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer error", "error", err)
			cancel()
		}
	}()

	authmw := auth.NewMiddleware(cfg.JWTSecret)
	sse := relay.NewSSEHandler(hub, logger)
	legacy := relay.NewLegacyHandler(hub, logger)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(authmw.Authenticate)
		r.Method(http.MethodGet, "/events", sse)
	})
	r.Post("/update-user-order-status", legacy.HandleStatusUpdate)
	r.Post("/order-cancelled", legacy.HandleOrderCancelled)
	r.Post("/order-returned", legacy.HandleOrderReturned)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// No write timeout: /events streams until the client leaves.
	}

	go func() {
		logger.Info("starting relay service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()
	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
