package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tanmaydg/bazario/internal/auth"
	"github.com/tanmaydg/bazario/internal/cart"
	"github.com/tanmaydg/bazario/internal/catalog"
	"github.com/tanmaydg/bazario/internal/config"
	"github.com/tanmaydg/bazario/internal/domain"
	"github.com/tanmaydg/bazario/internal/orders"
	"github.com/tanmaydg/bazario/internal/outbox"
	"github.com/tanmaydg/bazario/internal/payments"
	"github.com/tanmaydg/bazario/internal/telemetry"
)

const (
	serviceName    = "bazario-api"
	serviceVersion = "0.1.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter provider", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(db)
	orderRepo := orders.NewOrderRepository(db, outboxRepo)
	cartRepo := cart.NewCartRepository(db)
	productRepo := catalog.NewProductRepository(db)

	checkout := payments.NewCheckoutClient(
		cfg.CheckoutBaseURL, cfg.GatewaySecretKey, cfg.SuccessURL, cfg.CancelURL,
		&http.Client{Timeout: 10 * time.Second},
	)

	orderHandler := orders.NewHandler(orderRepo, checkout, logger)
	cartHandler := cart.NewHandler(cartRepo, logger)
	catalogHandler := catalog.NewHandler(productRepo, logger)
	webhookHandler := payments.NewWebhookHandler(orderRepo, cfg.WebhookSecret, logger)
	authmw := auth.NewMiddleware(cfg.JWTSecret)

	r := chi.NewRouter()
	r.Use(telemetry.RouteAttribute)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metricsHandler)
	r.Method(http.MethodPost, "/webhooks/payment-gateway", webhookHandler)

	r.Get("/products", catalogHandler.HandleListPublic)
	r.Get("/products/search", catalogHandler.HandleSearch)
	r.Get("/products/{id}", catalogHandler.HandleGet)

	r.Group(func(r chi.Router) {
		r.Use(authmw.Authenticate)

		r.Post("/products/{id}/reviews", catalogHandler.HandleAddReview)

		r.Get("/cart", cartHandler.HandleList)
		r.Post("/cart/items", cartHandler.HandleAdd)
		r.Delete("/cart/items/{productId}", cartHandler.HandleRemove)

		r.Post("/orders", orderHandler.HandlePlace)
		r.Get("/orders", orderHandler.HandleListMine)
		r.Get("/orders/{id}", orderHandler.HandleGet)
		r.Post("/orders/{id}/cancel", orderHandler.HandleCancel)
		r.Post("/orders/{id}/return", orderHandler.HandleReturn)
		r.Get("/orders/{id}/return-eligibility", orderHandler.HandleReturnEligibility)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleVendor, domain.RoleAdmin))
			r.Patch("/orders/{id}/status", orderHandler.HandleUpdateStatus)
			r.Post("/orders/{id}/verify-delivery", orderHandler.HandleVerifyDelivery)
			r.Get("/vendor/orders", orderHandler.HandleListVendor)
			r.Get("/vendor/products", catalogHandler.HandleListVendorProducts)
			r.Post("/vendor/products", catalogHandler.HandleCreate)
			r.Put("/vendor/products/{id}", catalogHandler.HandleUpdate)
			r.Post("/vendor/products/{id}/active", catalogHandler.HandleSetActive)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleAdmin))
			r.Get("/admin/products/pending", catalogHandler.HandleListPending)
			r.Post("/admin/products/{id}/approval", catalogHandler.HandleProductApproval)
			r.Get("/admin/vendors", catalogHandler.HandleListVendors)
			r.Post("/admin/vendors/{id}/approval", catalogHandler.HandleVendorApproval)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(r, "api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting api service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := shutdownMeter(shutdownCtx); err != nil {
		logger.Error("meter shutdown error", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}
}
