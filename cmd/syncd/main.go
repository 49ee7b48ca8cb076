package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/api"
	"github.com/NicholasBarkolias/job-booking-expo/internal/config"
	"github.com/NicholasBarkolias/job-booking-expo/internal/database"
	"github.com/NicholasBarkolias/job-booking-expo/internal/events"
	"github.com/NicholasBarkolias/job-booking-expo/internal/logging"
	"github.com/NicholasBarkolias/job-booking-expo/internal/metrics"
	"github.com/NicholasBarkolias/job-booking-expo/internal/service"
	syncengine "github.com/NicholasBarkolias/job-booking-expo/internal/sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	// A schema failure here is unrecoverable; refuse to start.
	db, err := database.New(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics.Register()
	eventBus := events.NewEventBus()

	connector := syncengine.NewHTTPConnector(cfg.Remote)
	engine := syncengine.NewEngine(db, connector, eventBus, redisClient, syncengine.Options{
		UploadLimit:   cfg.Sync.UploadLimit,
		DownloadLimit: cfg.Sync.DownloadLimit,
		PollInterval:  cfg.Sync.PollInterval(),
		Retry: syncengine.RetryPolicy{
			InitialDelay:  cfg.Sync.BackoffMin(),
			MaxDelay:      cfg.Sync.BackoffMax(),
			BackoffFactor: cfg.Sync.BackoffFactor,
		},
	}, logger)

	dataService := service.NewDataService(db, eventBus, engine.Nudge, logger)

	engine.Start(ctx)
	defer engine.Stop()

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, dataService, logger)
		go func() {
			if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			logger.Info().Str("addr", addr).Msg("Prometheus endpoint listening")
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("Prometheus endpoint error")
			}
		}()
	}

	logger.Info().
		Str("database", cfg.Database.Path).
		Bool("api", cfg.API.Enabled).
		Msg("syncd started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := baseLogger.With().Str("component", "syncd").Logger()
	return cfg, &logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		logger.Info().Msg("Redis not configured, dead-letter queue disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, dead-letter queue disabled")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("Redis connected")
	return client
}
