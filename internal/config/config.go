package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"invest-engine-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	retryBase, err := getEnvDuration("LEDGER_RETRY_BASE", 10*time.Millisecond)
	if err != nil {
		return nil, err
	}

	freshnessWindow, err := getEnvDuration("EXCHANGE_FRESHNESS_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	intentTTL, err := getEnvDuration("PAYMENT_INTENT_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	sweepInterval, err := getEnvDuration("SWEEP_INTERVAL", 1*time.Minute)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "invest.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			SeedDemoData:    getEnvBool("SEED_DEMO_DATA", false),
		},
		Ledger: models.LedgerConfig{
			MaxAttempts: getEnvInt("LEDGER_MAX_ATTEMPTS", 5),
			RetryBase:   retryBase,
		},
		Exchange: models.ExchangeConfig{
			FreshnessWindow: freshnessWindow,
			RatesURL:        getEnvString("EXCHANGE_RATES_URL", ""),
			RedisAddr:       getEnvString("EXCHANGE_REDIS_ADDR", ""),
			RedisDB:         getEnvInt("EXCHANGE_REDIS_DB", 0),
		},
		Gateway: models.GatewayConfig{
			FeesFile:      getEnvString("FEES_FILE", "fees.yaml"),
			WebhookSecret: getEnvString("WEBHOOK_SECRET", ""),
			IntentTTL:     intentTTL,
		},
		Compliance: models.ComplianceConfig{
			PolicyFile: getEnvString("COMPLIANCE_POLICY_FILE", "compliance.yaml"),
		},
		Sweeper: models.SweeperConfig{
			Interval:    sweepInterval,
			BatchSize:   getEnvInt("SWEEP_BATCH_SIZE", 100),
			Concurrency: getEnvInt("SWEEP_CONCURRENCY", 4),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
