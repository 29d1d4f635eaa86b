package database

import (
	"context"
	"database/sql"
	"fmt"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.EngineStore.
var _ store.EngineStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema() error {
	schema := `
	-- Opportunities: funding counters, mutated only via reserve/release
	CREATE TABLE IF NOT EXISTS opportunities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		currency TEXT NOT NULL,
		target_amount TEXT NOT NULL,
		current_amount TEXT NOT NULL DEFAULT '0',
		minimum_ticket TEXT NOT NULL,
		maximum_ticket TEXT NOT NULL,
		accredited_only INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities(status);

	-- Wallets: per (user, currency) available/locked split
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		available TEXT NOT NULL DEFAULT '0',
		locked TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, currency)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_wallets_user_currency ON wallets(user_id, currency);

	-- Investments
	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		investor_id TEXT NOT NULL,
		opportunity_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		equity_percent TEXT,
		interest_rate TEXT,
		term_months INTEGER,
		revenue_share_percent TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_transaction_id TEXT,
		risk_snapshot_id TEXT,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_investments_investor ON investments(investor_id);
	CREATE INDEX IF NOT EXISTS idx_investments_opportunity ON investments(opportunity_id);
	CREATE INDEX IF NOT EXISTS idx_investments_status_expiry ON investments(status, expires_at);

	-- Payment transactions (one per investment)
	CREATE TABLE IF NOT EXISTS payment_transactions (
		id TEXT PRIMARY KEY,
		investment_id TEXT NOT NULL UNIQUE,
		processor TEXT NOT NULL,
		intent_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		platform_fee TEXT NOT NULL DEFAULT '0',
		processor_fee TEXT NOT NULL DEFAULT '0',
		net_amount TEXT NOT NULL DEFAULT '0',
		fee_version TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL,
		sequence INTEGER NOT NULL DEFAULT 0,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payments_intent ON payment_transactions(intent_id);
	CREATE INDEX IF NOT EXISTS idx_payments_idempotency ON payment_transactions(idempotency_key);

	-- Risk snapshots: immutable, one per investment attempt
	CREATE TABLE IF NOT EXISTS risk_snapshots (
		id TEXT PRIMARY KEY,
		investor_id TEXT NOT NULL,
		opportunity_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		level TEXT NOT NULL,
		score INTEGER NOT NULL,
		flags TEXT NOT NULL DEFAULT '',
		manual_review INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_investor ON risk_snapshots(investor_id);

	-- Permanent webhook de-duplication records; never swept
	CREATE TABLE IF NOT EXISTS processed_events (
		event_id TEXT PRIMARY KEY,
		investment_id TEXT NOT NULL,
		canonical_status TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Investor portfolio aggregates
	CREATE TABLE IF NOT EXISTS investor_portfolios (
		id TEXT PRIMARY KEY,
		investor_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		total_invested TEXT NOT NULL DEFAULT '0',
		active_investments INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(investor_id, currency)
	);

	-- Append-only audit trail. ref carries the idempotency reference for
	-- balance mutations; the partial unique index closes the replay window.
	CREATE TABLE IF NOT EXISTS activity_log (
		id TEXT PRIMARY KEY,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		ref TEXT,
		before TEXT NOT NULL DEFAULT '',
		after TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_activity_ref ON activity_log(ref) WHERE ref IS NOT NULL AND ref != '';
	CREATE INDEX IF NOT EXISTS idx_activity_entity ON activity_log(entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// beginTx starts a short-lived local transaction. All ledger mutations are
// single-entity read-modify-write cycles; external I/O never happens while
// one of these is open.
func (s *Service) beginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}
