package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulsewire/client"
	"pulsewire/internal/api"
	"pulsewire/internal/config"
	"pulsewire/internal/metrics"
	"pulsewire/internal/netmon"
	"pulsewire/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("agent startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// 2. Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Infrastructure
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// 4. Build the pipeline
	clientCfg, err := pipelineConfig(cfg.Pipeline)
	if err != nil {
		return err
	}

	monitor := netmon.NewManual()
	pipeline, err := client.New(clientCfg,
		client.WithRedis(rdb),
		client.WithMonitor(monitor),
		client.WithObserver(metrics.NewPrometheusObserver()),
	)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	// 5. Setup HTTP Server
	r := api.RegisterRoutes(
		api.NewTelemetryHandler(pipeline, monitor),
		rdb,
		cfg.Ingest.APIKey,
		cfg.Ingest.RequestsPerSecond,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	// 6. Start Server
	go func() {
		logger.Info("agent starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown Signal Wait
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Push out anything urgent before the process dies; the remainder is
	// persisted for the next run.
	if err := pipeline.Flush(shutdownCtx); err != nil {
		logger.Warn("final flush incomplete", zap.Error(err))
	}
	pipeline.Destroy()
	cancel()

	logger.Info("agent exited properly")
	return nil
}

// -- Infrastructure Initializers --

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func pipelineConfig(p config.PipelineConfig) (client.Config, error) {
	cfg := client.Config{
		Endpoint:             p.Endpoint,
		AuthToken:            p.AuthToken,
		MaxRetries:           p.MaxRetries,
		BaseRetryDelay:       p.BaseRetryDelay,
		BatchSize:            p.BatchSize,
		TargetRate:           p.TargetRate,
		RateCeiling:          p.RateCeiling,
		RequestTimeout:       p.RequestTimeout,
		TickInterval:         p.TickInterval,
		DispatchWorkers:      p.DispatchWorkers,
		BoostWindow:          p.BoostWindow,
		CompressionEnabled:   p.Compression.Enabled,
		CompressionThreshold: p.Compression.Threshold,
		EncryptionEnabled:    p.Encryption.Enabled,
		PersistenceEnabled:   p.Persistence.Enabled,
		StoreKey:             p.Persistence.Key,
		MaxStoredItems:       p.Persistence.MaxItems,
	}

	if p.Encryption.Key != "" {
		key, err := hex.DecodeString(p.Encryption.Key)
		if err != nil {
			return cfg, fmt.Errorf("encryption key must be hex encoded: %w", err)
		}
		cfg.EncryptionKey = key
	}
	return cfg, nil
}
