package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jmcoleman/codescribe-backend/internal/api/handlers"
	"github.com/jmcoleman/codescribe-backend/internal/api/middleware"
	"github.com/jmcoleman/codescribe-backend/internal/api/routes"
	"github.com/jmcoleman/codescribe-backend/internal/domain/analytics"
	"github.com/jmcoleman/codescribe-backend/internal/domain/billing"
	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
	"github.com/jmcoleman/codescribe-backend/internal/domain/user"
	"github.com/jmcoleman/codescribe-backend/internal/infrastructure/cache"
	"github.com/jmcoleman/codescribe-backend/internal/infrastructure/persistence/postgres/connection"
	"github.com/jmcoleman/codescribe-backend/internal/infrastructure/persistence/postgres/migrations"
	"github.com/jmcoleman/codescribe-backend/pkg/config"
	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

// RequestLoggerMiddleware logs all incoming HTTP requests
func RequestLoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("Request completed",
			zap.String("path", path),
			zap.String("method", method),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("") // Empty string will make it search in default locations
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	log := logger.NewLogger(cfg.Logging.Level)
	defer log.Sync()

	log.Info("Configuration loaded successfully")
	log.Info("Server mode: " + cfg.Server.Mode)

	// Set up Gin
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	gin.DefaultWriter = os.Stdout

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(RequestLoggerMiddleware(log))
	router.Use(middleware.NewMetricsMiddleware().CollectMetrics())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORS.AllowedOrigins,
		AllowMethods: cfg.CORS.AllowedMethods,
		AllowHeaders: append(cfg.CORS.AllowedHeaders,
			"Accept-Encoding",
			"Content-Encoding",
			"Content-Type",
		),
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Encoding",
			"Content-Type",
			"Content-Disposition",
		},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	// Add Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Connect to database
	db, err := connection.NewDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if err := migrations.AutoMigrate(db, log.Logger); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize Redis. The read cache degrades to direct queries when
	// Redis is unreachable, so a failure here is not fatal.
	var redisClient *cache.RedisClient
	redisConfig := cache.NewConfigFromEnv(cfg)
	redisClient, err = cache.NewRedisClient(redisConfig, log)
	if err != nil {
		log.Warn("Redis unavailable, analytics reads will be uncached", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Initialize repositories
	eventsRepo := events.NewRepository(db)
	analyticsRepo := analytics.NewRepository(db)
	billingRepo := billing.NewRepository(db)
	userStore := user.NewReadStore(db)

	// Initialize services
	trustClassifier := events.NewTrustClassifier(userStore, log)
	eventsService := events.NewService(eventsRepo, trustClassifier, log)
	exporter := analytics.NewExporter(eventsRepo, analytics.ExportConfig{
		MaxRows:       cfg.Analytics.ExportMaxRows,
		BatchSize:     cfg.Analytics.ExportBatchSize,
		MaxWindowDays: cfg.Analytics.ExportMaxWindowDays,
	}, log)
	analyticsService := analytics.NewService(analyticsRepo, billingRepo, exporter, log)

	// Initialize handlers
	eventsHandler := handlers.NewEventsHandler(eventsService, log)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, redisClient, log)

	// Set up routes
	routes.SetupHealthRoutes(router, db, redisClient)
	analyticsRoutes := routes.NewAnalyticsRoutes(eventsHandler, analyticsHandler)
	analyticsRoutes.RegisterRoutes(router)
	log.Info("Registered analytics routes at /api/analytics")

	// Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info(fmt.Sprintf("Server starting on port %d", cfg.Server.Port))
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info("Shutting down server...")
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
