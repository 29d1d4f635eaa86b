package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Ledger     LedgerConfig
	Exchange   ExchangeConfig
	Gateway    GatewayConfig
	Compliance ComplianceConfig
	Sweeper    SweeperConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	SeedDemoData    bool
}

// LedgerConfig bounds the retry loop around contended ledger transactions.
type LedgerConfig struct {
	MaxAttempts int
	RetryBase   time.Duration
}

// ExchangeConfig holds currency conversion settings. When RedisAddr is
// empty the in-memory rate cache is used; when RatesURL is empty the
// static demo rate table is served instead of a live provider.
type ExchangeConfig struct {
	FreshnessWindow time.Duration
	RatesURL        string
	RedisAddr       string
	RedisDB         int
}

// GatewayConfig holds payment gateway settings
type GatewayConfig struct {
	FeesFile      string
	WebhookSecret string
	IntentTTL     time.Duration
}

// ComplianceConfig points at the eligibility policy file
type ComplianceConfig struct {
	PolicyFile string
}

// SweeperConfig holds expiry sweep settings
type SweeperConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}
