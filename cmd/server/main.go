package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appbilling "github.com/commledger/backend/internal/application/billing"
	"github.com/commledger/backend/internal/application/importapp"
	apppenalty "github.com/commledger/backend/internal/application/penalty"
	"github.com/commledger/backend/internal/infrastructure/cache"
	"github.com/commledger/backend/internal/infrastructure/config"
	"github.com/commledger/backend/internal/infrastructure/logger"
	"github.com/commledger/backend/internal/infrastructure/persistence"
	"github.com/commledger/backend/internal/interfaces/http/handler"
	"github.com/commledger/backend/internal/interfaces/http/middleware"
	"github.com/commledger/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting billing reconciliation service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	gormLogLevel := gormlogger.Silent
	if cfg.Log.Level == "debug" {
		gormLogLevel = gormlogger.Info
	}
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Repositories
	propertyRepo := persistence.NewGormPropertyRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	accrualRepo := persistence.NewGormAccrualRepository(db.DB)
	allocationRepo := persistence.NewGormAllocationRepository(db.DB)
	penaltyRepo := persistence.NewGormPenaltyRepository(db.DB)
	jobRepo := persistence.NewGormImportJobRepository(db.DB)
	reportRepo := persistence.NewGormReportRepository(db.DB)

	// Report summary cache is optional; without Redis every summary read
	// recomputes from the database.
	var reportCache *cache.ReportCache
	if cfg.Redis.Enabled {
		reportCache, err = cache.NewReportCache(&cfg.Redis, cache.WithCacheLogger(log))
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := reportCache.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		log.Info("Report summary cache connected")
	}
	var summaryCache appbilling.SummaryCache
	var invalidator appbilling.ReportInvalidator
	if reportCache != nil {
		summaryCache = reportCache
		invalidator = reportCache
	}

	defaultRate, err := decimal.NewFromString(cfg.Penalty.DefaultAnnualRate)
	if err != nil {
		log.Fatal("Invalid penalty.default_annual_rate", zap.Error(err))
	}

	// Application services
	importService := importapp.NewPaymentImportService(paymentRepo, propertyRepo, jobRepo, cfg.Import.MaxErrorsKept, log)
	paymentService := appbilling.NewPaymentService(paymentRepo, accrualRepo, allocationRepo, propertyRepo, log)
	allocationService := appbilling.NewAllocationService(paymentRepo, accrualRepo, allocationRepo, invalidator, log)
	reportingService := appbilling.NewReportingService(reportRepo, summaryCache, log)
	penaltyService := apppenalty.NewService(penaltyRepo, reportRepo, accrualRepo, defaultRate, log)

	// HTTP handlers
	importHandler := handler.NewImportHandler(importService, allocationService, cfg.Import.MaxFileBytes)
	billingHandler := handler.NewBillingHandler(paymentService, allocationService)
	reportHandler := handler.NewReportHandler(reportingService)
	penaltyHandler := handler.NewPenaltyHandler(penaltyService)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig()))
	engine.Use(middleware.BodyLimit(cfg.Import.MaxFileBytes + 1<<20))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(importHandler).
		Register(billingHandler).
		Register(reportHandler).
		Register(penaltyHandler)
	r.Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
