package store

import (
	"context"
	"errors"
	"time"

	"invest-engine-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrDuplicateRef           = errors.New("duplicate mutation reference")
	ErrDuplicateEvent         = errors.New("event already processed")
	ErrInsufficientFunds      = errors.New("insufficient available funds")
	ErrInsufficientLocked     = errors.New("insufficient locked funds")
	ErrCapacityExceeded       = errors.New("opportunity capacity exceeded")
	ErrOpportunityNotActive   = errors.New("opportunity not active")
	ErrInvalidTransition      = errors.New("invalid status transition")
)

// WalletMutationParams describes one atomic wallet balance mutation.
// Ref is the idempotency reference written to the activity log inside the
// same transaction; replaying the same ref fails with ErrDuplicateRef and
// leaves balances untouched.
type WalletMutationParams struct {
	UserId   string
	Currency string
	Amount   decimal.Decimal
	Ref      string
	Actor    string
}

// StatusUpdateParams describes a guarded investment status transition.
type StatusUpdateParams struct {
	InvestmentId string
	From         models.InvestmentStatus
	To           models.InvestmentStatus
	Actor        string
	Ref          string
}

// PaymentStatusUpdateParams advances a payment transaction's canonical
// status and applied event sequence.
type PaymentStatusUpdateParams struct {
	PaymentId string
	Status    models.PaymentStatus
	Sequence  int64
}

// PortfolioDeltaParams adjusts an investor's completed-investment
// aggregate.
type PortfolioDeltaParams struct {
	InvestorId  string
	Currency    string
	AmountDelta decimal.Decimal
	ActiveDelta int
}

// EngineStore defines the persistence contract for the transaction
// engine. Every balance-affecting method is a single short-lived atomic
// transaction scoped to one entity key; callers wanting bounded retries
// wrap these in the ledger package.
type EngineStore interface {
	// --- Opportunities ---
	CreateOpportunity(ctx context.Context, o *models.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error)
	ReserveOpportunityCapacity(ctx context.Context, opportunityId string, amount decimal.Decimal, ref, actor string) error
	ReleaseOpportunityCapacity(ctx context.Context, opportunityId string, amount decimal.Decimal, reopen bool, ref, actor string) error

	// --- Wallets ---
	GetWallet(ctx context.Context, userId, currency string) (*models.Wallet, error)
	ListWallets(ctx context.Context, userId string) ([]models.Wallet, error)
	DepositFunds(ctx context.Context, p WalletMutationParams) error
	ReserveFunds(ctx context.Context, p WalletMutationParams) error
	CommitFunds(ctx context.Context, p WalletMutationParams) error
	ReleaseFunds(ctx context.Context, p WalletMutationParams) error
	RefundFunds(ctx context.Context, p WalletMutationParams) error

	// --- Investments ---
	CreateInvestment(ctx context.Context, inv *models.Investment) error
	GetInvestment(ctx context.Context, id string) (*models.Investment, error)
	UpdateInvestmentStatus(ctx context.Context, p StatusUpdateParams) error
	LinkPaymentTransaction(ctx context.Context, investmentId, paymentId string) error
	ListExpiredPending(ctx context.Context, asOf time.Time, limit int) ([]models.Investment, error)

	// --- Payment transactions ---
	CreatePaymentTransaction(ctx context.Context, pt *models.PaymentTransaction) error
	GetPaymentTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error)
	GetPaymentByInvestment(ctx context.Context, investmentId string) (*models.PaymentTransaction, error)
	GetPaymentByIntent(ctx context.Context, intentId string) (*models.PaymentTransaction, error)
	UpdatePaymentStatus(ctx context.Context, p PaymentStatusUpdateParams) error

	// --- Risk snapshots ---
	SaveRiskSnapshot(ctx context.Context, snap *models.RiskSnapshot) error
	GetRiskSnapshot(ctx context.Context, id string) (*models.RiskSnapshot, error)

	// --- Webhook de-duplication ---
	RecordProcessedEvent(ctx context.Context, ev *models.ProcessedEvent) error
	GetProcessedEvent(ctx context.Context, eventId string) (*models.ProcessedEvent, error)

	// --- Portfolio aggregates ---
	ApplyPortfolioDelta(ctx context.Context, p PortfolioDeltaParams) error
	GetPortfolio(ctx context.Context, investorId string) ([]models.PortfolioAggregate, error)

	// --- Audit ---
	AppendActivity(ctx context.Context, entry *models.ActivityEntry) error
	ListActivity(ctx context.Context, entityType, entityId string, limit int) ([]models.ActivityEntry, error)

	// --- Lifecycle ---
	Close()
}
