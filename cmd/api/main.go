// Package main is the entry point for the queue API server.
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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumichat/agent-queue/internal/config"
	"github.com/lumichat/agent-queue/internal/handler"
	"github.com/lumichat/agent-queue/internal/middleware"
	"github.com/lumichat/agent-queue/internal/natsbus"
	"github.com/lumichat/agent-queue/internal/service"
	"github.com/lumichat/agent-queue/internal/snapshot"
	"github.com/lumichat/agent-queue/pkg/logger"
	"github.com/lumichat/agent-queue/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting queue API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "agent-queue", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := natsbus.Connect(natsbus.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	// Ensure the audit stream exists
	bus := natsbus.NewBus(natsClient)
	if err := bus.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", "error", err)
		os.Exit(1)
	}

	// Platform backend client (snapshots + actions)
	backend := snapshot.New(cfg.BackendBaseURL, cfg.BackendToken,
		snapshot.WithTimeout(cfg.BackendTimeout))

	// Queue service: table, ingestor, event subscription, refresh loops
	queueSvc := service.NewQueueService(backend, bus, log)
	if err := queueSvc.Start(ctx, cfg.SnapshotInterval, cfg.LikesInterval); err != nil {
		log.Error("failed to start queue service", "error", err)
		os.Exit(1)
	}
	defer queueSvc.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	queueHandler := handler.NewQueueHandler(queueSvc, log)
	actionHandler := handler.NewActionHandler(queueSvc, log)
	streamHandler := handler.NewStreamHandler(queueSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Queue views
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", queueHandler.List)
			r.Get("/counts", queueHandler.Counts)
			r.Get("/stream", streamHandler.Stream)
			r.Post("/refresh", queueHandler.Refresh)
		})

		r.Get("/likes", queueHandler.Likes)
		r.Get("/notifications", queueHandler.Notifications)
		r.Get("/presence/{customerID}", queueHandler.Presence)

		// Per-conversation actions
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Post("/read", actionHandler.MarkRead)
			r.Post("/assign", actionHandler.Assign)
			r.Post("/panic-room", actionHandler.PanicRoom)
			r.Post("/push-back", actionHandler.PushBack)
			r.Post("/outgoing", actionHandler.Outgoing)
			r.Delete("/", actionHandler.Remove)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
