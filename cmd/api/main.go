package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"settlement-service/internal/auth"
	"settlement-service/internal/cache"
	"settlement-service/internal/config"
	"settlement-service/internal/events"
	"settlement-service/internal/handlers"
	"settlement-service/internal/ledger"
	"settlement-service/internal/metrics"
	"settlement-service/internal/repository"
	"settlement-service/internal/settlement"
	"settlement-service/pkg/logger"
	"settlement-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "settlement-service/docs" // Import docs for Swagger
)

// @title           Settlement Service API
// @version         1.0
// @description     Order settlement and stock ledger for multi-tenant point of sale
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	appLogger := logger.New(cfg.Environment)
	defer appLogger.Sync()

	appLogger.Info("🚀 Starting Settlement Service",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
	)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Storage
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." && !strings.HasPrefix(cfg.SQLitePath, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			appLogger.Fatal("Failed to create data directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	db, err := repository.NewDB(cfg.SQLitePath, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open database", zap.String("path", cfg.SQLitePath), zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("✅ Database ready", zap.String("path", cfg.SQLitePath))

	sharedCache := cache.NewCache(cfg, appLogger)
	if closer, ok := sharedCache.(io.Closer); ok {
		defer closer.Close()
	}

	// Events
	var publisher events.EventPublisher = events.NewEventPublisher(appLogger)
	if cfg.KafkaEnabled {
		appLogger.Info("📡 Kafka Configuration",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic_orders", cfg.KafkaTopicOrders),
			zap.String("topic_stock", cfg.KafkaTopicStock),
			zap.String("client_id", cfg.KafkaClientID),
			zap.String("acks", cfg.KafkaAcks),
		)
		kafkaPublisher, err := events.NewKafkaEventPublisher(cfg, appLogger)
		if err != nil {
			appLogger.Warn("Failed to initialize Kafka publisher, using in-memory fallback", zap.Error(err))
		} else {
			defer kafkaPublisher.Close()
			publisher = kafkaPublisher
		}
	}

	// Domain
	appMetrics := metrics.New()
	stockLedger := ledger.NewLedger(
		repository.NewStockRepository(db),
		sharedCache,
		cfg.AvailabilityCacheTTL,
		publisher,
		appMetrics,
		appLogger,
	)
	if err := stockLedger.FlushHints(context.Background()); err != nil {
		appLogger.Warn("Failed to flush availability hints", zap.Error(err))
	}
	settlementService := settlement.NewService(
		stockLedger,
		repository.NewOrderRepository(db),
		repository.NewRevenueRepository(db),
		publisher,
		appMetrics,
		appLogger,
	)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL, appLogger)
	authHandler := auth.NewAuthHandler(jwtManager, nil, appLogger)
	orderHandler := handlers.NewOrderHandler(appLogger, settlementService)
	inventoryHandler := handlers.NewInventoryHandler(appLogger, stockLedger)
	healthHandler := handlers.NewHealthHandler(appLogger, map[string]handlers.Pinger{"database": db})

	requestIDStore := middleware.NewCacheRequestIDStore(sharedCache)

	router := gin.New()
	// CORS middleware (must be first to handle preflight requests)
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RecoveryHandler(appLogger))
	router.Use(middleware.RequestIDMiddleware(appLogger))
	router.Use(logger.GinMiddleware(appLogger))
	if cfg.MetricsEnabled {
		router.Use(appMetrics.GinMiddleware())
		router.GET("/metrics", gin.WrapH(appMetrics.Handler()))
	}
	router.Use(middleware.ErrorHandler(appLogger))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
		}

		// Protected endpoints; idempotency keys are scoped to the token subject
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtManager, appLogger))
		protected.Use(middleware.IdempotencyMiddleware(requestIDStore, appLogger))
		protected.Use(middleware.StoreResponseMiddleware(requestIDStore, appLogger, cfg.IdempotencyTTL))
		{
			orders := protected.Group("/orders")
			{
				orders.POST("", orderHandler.CreateOrder)
				orders.GET("", orderHandler.ListOrders)
				orders.GET("/:id", orderHandler.GetOrder)
				orders.POST("/:id/cancel", orderHandler.CancelOrder)
				orders.DELETE("/:id", orderHandler.DeleteOrder)
			}

			inventory := protected.Group("/inventory")
			{
				inventory.GET("/:product_id", inventoryHandler.GetAvailable)
				inventory.PUT("/:product_id", inventoryHandler.SetLevel)
				inventory.GET("/:product_id/movements", inventoryHandler.ListMovements)
				inventory.GET("/:product_id/reconcile", inventoryHandler.Reconcile)
			}
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Starting settlement service", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	appLogger.Info("Server exited")
}
