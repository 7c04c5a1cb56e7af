package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"climacaribe/internal/cache"
	"climacaribe/internal/config"
	"climacaribe/internal/engine"
	"climacaribe/internal/handlers"
	"climacaribe/internal/models"
	"climacaribe/internal/queue"
	"climacaribe/internal/repository"
	"climacaribe/internal/scheduler"
	"climacaribe/pkg/database"
	"climacaribe/pkg/logging"
	"climacaribe/pkg/metrics"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}

	logger := logging.NewStructuredLogger("climacaribe-engine", version, logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting ClimaCaribe analytics engine", logging.Fields{
		"version":           version,
		"window_minutes":    cfg.Engine.WindowMinutes,
		"zone_filter":       cfg.Engine.ZoneFilter,
		"anomaly_threshold": cfg.Engine.AnomalyThreshold,
		"refresh_interval":  cfg.Engine.RefreshInterval.String(),
	})

	metricsCollector := metrics.NewCollector("climacaribe")

	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	streamRepo := repository.NewStreamRepository(db, logger, metricsCollector)

	classifier := engine.NewZoneClassifier(cfg.Engine.CoastalRegions)

	var zoneFilter *engine.ZoneFilter
	switch cfg.Engine.ZoneFilter {
	case "coastal":
		zoneFilter = engine.NewZoneFilter(models.ZoneCoastal, classifier)
	case "interior":
		zoneFilter = engine.NewZoneFilter(models.ZoneInterior, classifier)
	}

	var sinks []scheduler.SnapshotSink

	if cfg.Redis.Enabled {
		snapshotCache := cache.NewSnapshotCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
		defer snapshotCache.Close()
		sinks = append(sinks, snapshotCache)

		logger.Info(ctx, "[STARTUP] Redis snapshot mirror enabled", logging.Fields{
			"addr": cfg.Redis.Addr,
		})
	}

	if cfg.Kafka.Enabled {
		anomalyPublisher := queue.NewAnomalyPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicAnomalies)
		defer anomalyPublisher.Close()
		sinks = append(sinks, anomalyPublisher)

		logger.Info(ctx, "[STARTUP] Kafka anomaly publisher enabled", logging.Fields{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.TopicAnomalies,
		})
	}

	sched := scheduler.New(
		scheduler.Config{
			Window:           cfg.WindowDuration(),
			ZoneFilter:       zoneFilter,
			AnomalyThreshold: cfg.Engine.AnomalyThreshold,
			RefreshInterval:  cfg.Engine.RefreshInterval,
			FailureBackoff:   cfg.Engine.FailureBackoff,
			FetchTimeout:     cfg.Engine.FetchTimeout,
			AlertLimit:       cfg.Engine.AlertLimit,
		},
		streamRepo,
		classifier,
		logger,
		metricsCollector,
		sinks...,
	)

	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()

	go func() {
		if err := sched.Run(schedCtx); err != nil && err != context.Canceled {
			logger.Error(ctx, "[SCHEDULER_ERROR] Refresh loop exited", logging.Fields{}, err)
		}
	}()

	dashboardHandler := handlers.NewDashboardHandler(sched, streamRepo, logger, metricsCollector)

	router := mux.NewRouter()
	dashboardHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down...", logging.Fields{})

	// Stop the refresh loop before tearing down its dependencies
	stopSched()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Engine stopped", logging.Fields{})
}
