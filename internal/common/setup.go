package common

import (
	"context"
	"log"
	"strings"

	"invest-engine-go/internal/compliance"
	"invest-engine-go/internal/database"
	"invest-engine-go/internal/engine"
	"invest-engine-go/internal/exchange"
	"invest-engine-go/internal/ledger"
	"invest-engine-go/internal/models"
	"invest-engine-go/internal/notify"
	"invest-engine-go/internal/payments"
	"invest-engine-go/internal/webhook"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can be set via other means (shell export,
	// docker, etc.), so a missing .env file is fine.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

// Collaborators are the externally owned dependencies each binary chooses
// for itself: which processors to charge through, where investor profiles
// come from, where rates come from, and where notifications go. Nil
// fields fall back to demo implementations.
type Collaborators struct {
	Profiles   compliance.ProfileSource
	Processors []payments.Processor
	Rates      exchange.RateSource
	Notifier   notify.Notifier
}

type Services struct {
	DbService     *database.Service
	Wallets       *ledger.WalletLedger
	Opportunities *ledger.OpportunityLedger
	Exchange      *exchange.Adapter
	Gateway       *payments.Gateway
	Engine        *engine.Engine
	Webhook       *webhook.Processor
	Sweeper       *engine.Sweeper
	Profiles      compliance.ProfileSource
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config, collab Collaborators) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	policy, err := compliance.LoadPolicy(cfg.Compliance.PolicyFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	feeTable, err := payments.LoadFeeTable(cfg.Gateway.FeesFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	rates := collab.Rates
	if rates == nil {
		if cfg.Exchange.RatesURL != "" {
			rates = exchange.NewHTTPSource(cfg.Exchange.RatesURL)
		} else {
			rates = exchange.NewStaticSource()
		}
	}

	var cache exchange.RateCache
	if cfg.Exchange.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Exchange.RedisAddr,
			DB:   cfg.Exchange.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			dbService.Close()
			return nil, err
		}
		cache = exchange.NewRedisCache(rdb, cfg.Exchange.FreshnessWindow)
		zap.L().Info("Using Redis rate cache", zap.String("addr", cfg.Exchange.RedisAddr))
	} else {
		cache = exchange.NewMemoryCache()
	}
	exchangeAdapter := exchange.NewAdapter(rates, cache, cfg.Exchange.FreshnessWindow)

	profiles := collab.Profiles
	if profiles == nil {
		profiles = compliance.NewStaticProfiles()
	}
	notifier := collab.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	processors := collab.Processors
	if len(processors) == 0 {
		processors = []payments.Processor{payments.NewSandboxProcessor("sandbox", "USD", "EUR")}
		zap.L().Info("No processors configured, using sandbox")
	}

	wallets := ledger.NewWalletLedger(dbService, cfg.Ledger)
	opportunities := ledger.NewOpportunityLedger(dbService, cfg.Ledger)
	gateway := payments.NewGateway(processors, feeTable, exchangeAdapter, dbService, cfg.Gateway.IntentTTL)
	gate := compliance.NewGate(profiles, policy, dbService)
	eng := engine.NewEngine(dbService, wallets, opportunities, gate, gateway, notifier, cfg.Gateway.IntentTTL)
	hook := webhook.NewProcessor(dbService, eng, gateway, cfg.Gateway.WebhookSecret)
	sweeper := engine.NewSweeper(eng, cfg.Sweeper)

	return &Services{
		DbService:     dbService,
		Wallets:       wallets,
		Opportunities: opportunities,
		Exchange:      exchangeAdapter,
		Gateway:       gateway,
		Engine:        eng,
		Webhook:       hook,
		Sweeper:       sweeper,
		Profiles:      profiles,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like querying balances.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
