package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charruabus/booking-agent/internal/config"
	"github.com/charruabus/booking-agent/internal/database"
	"github.com/charruabus/booking-agent/internal/handlers"
	"github.com/charruabus/booking-agent/internal/middleware"
	"github.com/charruabus/booking-agent/internal/services"
	"github.com/charruabus/booking-agent/pkg/busapi"
	"github.com/charruabus/booking-agent/pkg/jwt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting CharruaBus booking agent")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Payment journal is optional; without DATABASE_URL attempts live in memory only
	var (
		journal services.PaymentJournal
		history handlers.AttemptHistory
		pinger  handlers.Pinger
	)
	if cfg.JournalEnabled() {
		logger.Info("Connecting to payment journal database...")
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		repo := database.NewPaymentAttemptRepository(db, logger)
		schemaCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		err = repo.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			logger.Fatalf("Failed to prepare payment journal: %v", err)
		}

		journal, history, pinger = repo, repo, db
		logger.Info("Payment journal enabled")
	} else {
		logger.Info("DATABASE_URL not set, payment journal disabled")
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret)
	if !jwtService.Verifies() {
		logger.Warn("JWT_SECRET not set, bearer tokens are decoded without signature checks")
	}

	apiClient := busapi.NewClient(busapi.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
	}, logger)

	registry := services.NewBookingRegistry(
		rootCtx,
		apiClient,
		jwtService,
		journal,
		services.NewDeepLinkParser(cfg.DeepLink.Scheme, cfg.DeepLink.Host),
		services.RegistryConfig{
			Orchestrator: services.OrchestratorConfig{
				DefaultPassengerLimit: cfg.Booking.DefaultPassengerLimit,
			},
			Reconciler: services.ReconcilerConfig{
				ForegroundGrace: cfg.Reconciler.ForegroundGrace,
				NavigationDelay: cfg.Reconciler.NavigationDelay,
				CallTimeout:     cfg.Reconciler.BestEffortTimeout,
			},
		},
		logger,
	)

	// Initialize and start cron service
	cronService := services.NewCronService(registry, cfg.Sessions.SweepSchedule, cfg.Sessions.IdleTimeout, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("Services initialized")

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(logger)
	resumptionHandler := handlers.NewResumptionHandler(history, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	if cfg.Server.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.SessionExpiresHeader},
		AllowCredentials: !allowsAnyOrigin(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck(pinger, version))

	// API v1 routes, all bound to the caller's booking session
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtService, registry, logger))
	handlers.RegisterRoutes(v1, bookingHandler, resumptionHandler)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // navigation long-polls up to 30s
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron service
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Stop reconcilers once no request can reach them
	logger.WithField("sessions", registry.Len()).Info("Stopping booking sessions...")
	registry.Close()

	logger.Info("Server exited successfully")
}

// browsers reject credentialed requests to a wildcard origin
func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
