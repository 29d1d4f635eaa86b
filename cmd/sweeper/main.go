package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invest-engine-go/internal/common"
	"invest-engine-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting expiry sweeper")

	services, err := common.InitializeServices(ctx, cfg, common.Collaborators{})
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	services.Sweeper.Start(ctx)

	zap.L().Info("Sweeper running",
		zap.Duration("interval", cfg.Sweeper.Interval),
		zap.Int("batch_size", cfg.Sweeper.BatchSize),
		zap.Int("concurrency", cfg.Sweeper.Concurrency))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping sweeper...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		services.Sweeper.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Sweeper stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
