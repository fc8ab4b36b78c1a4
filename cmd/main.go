package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adserver/internal/config"
	"adserver/internal/delivery/router"
	"adserver/internal/infrastructure/cache"
	"adserver/internal/infrastructure/geoip"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/pricing"
	"adserver/internal/repository"
	"adserver/internal/service"
	"adserver/migrations"
	"adserver/pkg/database"
	"adserver/pkg/logger"
	"adserver/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	cfg := config.MustLoadConfig()

	loggers, err := logger.SetupLogger(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	loggers.InfoLogger.Info("Logger initialized")

	db, cleanupDB := setupDatabase(cfg, loggers)
	defer cleanupDB()

	redisCache, cleanupRedis := setupRedis(cfg, loggers)
	defer cleanupRedis()

	tracerProvider := setupTracer(cfg, loggers)
	defer shutdownTracer(tracerProvider, loggers)

	handlerMetrics := metrics.NewHandlerMetrics()
	serviceMetrics := metrics.NewServiceMetrics()
	repositoryMetrics := metrics.NewRepositoryMetrics()
	loggers.InfoLogger.Info("Prometheus metrics initialized")

	rateCard, err := pricing.NewManager(cfg.Pricing.Path)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to load rate card", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Rate card loaded", "minimum_payout", rateCard.MinimumPayout())

	geoClient := geoip.NewClient(geoip.WithDebug(cfg.Debug))

	userRepo := repository.NewMysqlUserRepository(db, repositoryMetrics)
	adRepo := repository.NewMysqlAdRepository(db, redisCache, repositoryMetrics)
	campaignRepo := repository.NewMysqlCampaignRepository(db, repositoryMetrics)
	billingRepo := repository.NewMysqlBillingRepository(db, repositoryMetrics)
	publisherRepo := repository.NewMysqlPublisherRepository(db, redisCache, repositoryMetrics)
	sessionRepo := repository.NewMysqlSessionRepository(db, repositoryMetrics)
	eventRepo := repository.NewMysqlEventRepository(db, repositoryMetrics)
	earningsRepo := repository.NewMysqlEarningsRepository(db, repositoryMetrics)
	auditRepo := repository.NewMysqlSystemLogRepository(db, repositoryMetrics)

	services := router.Services{
		Auth:       service.NewAuthService(userRepo, cfg.Auth, serviceMetrics),
		Ads:        service.NewAdService(adRepo, serviceMetrics),
		Campaigns:  service.NewCampaignService(campaignRepo, adRepo, billingRepo, serviceMetrics),
		Billing:    service.NewBillingService(billingRepo, serviceMetrics),
		Publishers: service.NewPublisherService(publisherRepo, eventRepo, rateCard, serviceMetrics),
		Earnings:   service.NewEarningsService(earningsRepo, publisherRepo, rateCard, serviceMetrics),
		Tracking: service.NewTrackingService(sessionRepo, eventRepo, campaignRepo, publisherRepo,
			earningsRepo, auditRepo, rateCard, geoClient, cfg.Auth, serviceMetrics),
	}
	loggers.InfoLogger.Info("Service and repository layers initialized")

	scheduler := startScheduler(services.Tracking, loggers)
	defer scheduler.Stop()

	r := router.Setup(db, services, loggers, handlerMetrics, cfg.Debug)
	loggers.InfoLogger.Info("Router and routes initialized")

	server := startServer(cfg, r, loggers)

	waitForShutdown(server, loggers)
}

func setupDatabase(cfg *config.Config, loggers *logger.Loggers) (*sql.DB, func()) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name)

	db, err := database.NewDatabase(dsn)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to connect to database", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to database")

	if err := database.Migrate(db, migrations.FS, cfg.Database.Name); err != nil {
		loggers.ErrorLogger.Error("Failed to apply migrations", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Database schema up to date")

	cleanup := func() {
		if err := db.Close(); err != nil {
			loggers.ErrorLogger.Error("Failed to close database connection", utils.Err(err))
		}
	}

	return db, cleanup
}

func setupRedis(cfg *config.Config, loggers *logger.Loggers) (cache.Cache, func()) {
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		loggers.ErrorLogger.Error("Failed to connect to Redis", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to Redis")

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			loggers.ErrorLogger.Error("Failed to close Redis client", utils.Err(err))
		}
	}

	return cache.NewRedisCache(rdb), cleanup
}

func setupTracer(cfg *config.Config, loggers *logger.Loggers) *sdktrace.TracerProvider {
	tracerProvider, err := metrics.InitTracer(
		cfg.Tracing.ServiceName,
		cfg.Tracing.Environment,
		cfg.Tracing.Version,
		cfg.Tracing.Endpoint,
	)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to initialize tracer", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("OpenTelemetry Tracer initialized")
	return tracerProvider
}

func shutdownTracer(tp *sdktrace.TracerProvider, loggers *logger.Loggers) {
	if err := tp.Shutdown(context.Background()); err != nil {
		loggers.ErrorLogger.Error("Failed to shut down tracer provider", utils.Err(err))
	}
}

// startScheduler runs the hourly blacklist sweep that lifts expired
// session blacklist entries.
func startScheduler(tracking service.TrackingService, loggers *logger.Loggers) *cron.Cron {
	scheduler := cron.New()
	_, err := scheduler.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		cleaned, err := tracking.CleanupBlacklist(ctx)
		if err != nil {
			loggers.ErrorLogger.Error("Blacklist cleanup failed", utils.Err(err))
			return
		}
		if cleaned > 0 {
			loggers.InfoLogger.Info("Blacklist cleanup finished", "sessions", cleaned)
		}
	})
	if err != nil {
		loggers.ErrorLogger.Error("Failed to schedule blacklist cleanup", utils.Err(err))
		os.Exit(1)
	}
	scheduler.Start()
	loggers.InfoLogger.Info("Blacklist cleanup scheduled")
	return scheduler
}

func startServer(cfg *config.Config, handler http.Handler, loggers *logger.Loggers) *http.Server {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
	}

	go func() {
		loggers.InfoLogger.Info("Starting server", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			loggers.ErrorLogger.Error("Failed to start server", utils.Err(err))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(server *http.Server, loggers *logger.Loggers) {
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	<-shutdownCh
	loggers.InfoLogger.Info("Shutdown signal received, shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		loggers.ErrorLogger.Error("Server forced to shutdown", utils.Err(err))
	} else {
		loggers.InfoLogger.Info("Server shutdown gracefully")
	}
}
