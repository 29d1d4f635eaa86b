package main

import (
	"context"
	"flag"

	"invest-engine-go/internal/common"
	"invest-engine-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	seedFlag := flag.Bool("seed", false, "Seed demo opportunities, investors, and funded wallets")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg, common.Collaborators{})
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	zap.L().Info("Database initialized", zap.String("path", cfg.Database.Path))

	if *seedFlag || cfg.Database.SeedDemoData {
		if err := common.SeedDemoData(ctx, services); err != nil {
			zap.L().Fatal("Failed to seed demo data", zap.Error(err))
		}
		zap.L().Info("Demo data seeded")
	}

	zap.L().Info("Setup complete")
}
