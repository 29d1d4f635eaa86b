package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityStatus is the lifecycle state of a fundraising opportunity.
type OpportunityStatus string

const (
	OpportunityDraft     OpportunityStatus = "draft"
	OpportunityActive    OpportunityStatus = "active"
	OpportunityCompleted OpportunityStatus = "completed"
	OpportunityCancelled OpportunityStatus = "cancelled"
	OpportunityExpired   OpportunityStatus = "expired"
)

// Terminal reports whether the opportunity can no longer accept reservations.
// A completed opportunity is terminal for new money but may reopen if a
// refund frees capacity.
func (s OpportunityStatus) Terminal() bool {
	return s == OpportunityCancelled || s == OpportunityExpired
}

// OpportunityType determines which branch of Terms an investment must carry.
type OpportunityType string

const (
	OpportunityEquity       OpportunityType = "equity"
	OpportunityDebt         OpportunityType = "debt"
	OpportunityRevenueShare OpportunityType = "revenue_share"
)

// Opportunity is a fundraising campaign with a target amount and
// ticket-size bounds. current_amount only moves through the opportunity
// ledger's reserve/release operations.
type Opportunity struct {
	Id             string
	Name           string
	Type           OpportunityType
	Currency       string
	TargetAmount   decimal.Decimal
	CurrentAmount  decimal.Decimal
	MinimumTicket  decimal.Decimal
	MaximumTicket  decimal.Decimal
	AccreditedOnly bool
	Status         OpportunityStatus
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RemainingCapacity returns how much funding the opportunity can still accept.
func (o *Opportunity) RemainingCapacity() decimal.Decimal {
	return o.TargetAmount.Sub(o.CurrentAmount)
}

// InvestmentStatus is the lifecycle state of a single investment.
type InvestmentStatus string

const (
	InvestmentPending    InvestmentStatus = "pending"
	InvestmentProcessing InvestmentStatus = "processing"
	InvestmentCompleted  InvestmentStatus = "completed"
	InvestmentFailed     InvestmentStatus = "failed"
	InvestmentCancelled  InvestmentStatus = "cancelled"
	InvestmentRefunded   InvestmentStatus = "refunded"
	InvestmentDisputed   InvestmentStatus = "disputed"
)

// investmentTransitions is the closed transition table for investments.
// completed is terminal for settlement but may move to refunded/disputed
// via a compensating event.
var investmentTransitions = map[InvestmentStatus][]InvestmentStatus{
	InvestmentPending:    {InvestmentProcessing, InvestmentCompleted, InvestmentFailed, InvestmentCancelled},
	InvestmentProcessing: {InvestmentCompleted, InvestmentFailed},
	InvestmentCompleted:  {InvestmentRefunded, InvestmentDisputed},
	InvestmentFailed:     {},
	InvestmentCancelled:  {},
	InvestmentRefunded:   {},
	InvestmentDisputed:   {},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s InvestmentStatus) CanTransitionTo(next InvestmentStatus) bool {
	for _, allowed := range investmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s InvestmentStatus) Terminal() bool {
	return len(investmentTransitions[s]) == 0
}

// Valid reports whether s is a known investment status.
func (s InvestmentStatus) Valid() bool {
	_, ok := investmentTransitions[s]
	return ok
}

// Terms carries the economics of an investment. Exactly one branch must be
// populated and it must match the opportunity type.
type Terms struct {
	EquityPercent       *decimal.Decimal
	InterestRate        *decimal.Decimal
	TermMonths          *int
	RevenueSharePercent *decimal.Decimal
}

// Validate checks that the populated branch of t matches the opportunity type.
func (t Terms) Validate(typ OpportunityType) error {
	switch typ {
	case OpportunityEquity:
		if t.EquityPercent == nil || t.InterestRate != nil || t.TermMonths != nil || t.RevenueSharePercent != nil {
			return fmt.Errorf("equity opportunity requires equity percent terms only")
		}
	case OpportunityDebt:
		if t.InterestRate == nil || t.TermMonths == nil || t.EquityPercent != nil || t.RevenueSharePercent != nil {
			return fmt.Errorf("debt opportunity requires interest rate and term months only")
		}
	case OpportunityRevenueShare:
		if t.RevenueSharePercent == nil || t.EquityPercent != nil || t.InterestRate != nil || t.TermMonths != nil {
			return fmt.Errorf("revenue share opportunity requires revenue share percent only")
		}
	default:
		return fmt.Errorf("unknown opportunity type: %s", typ)
	}
	return nil
}

// Investment is a single investor's commitment against an opportunity.
// Status is mutated exclusively by the engine's state machine.
type Investment struct {
	Id                   string
	InvestorId           string
	OpportunityId        string
	Amount               decimal.Decimal
	Currency             string
	Terms                Terms
	Status               InvestmentStatus
	PaymentTransactionId string
	RiskSnapshotId       string
	ExpiresAt            time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Wallet is a per-user, per-currency balance split into available and
// locked funds. Both are always non-negative.
type Wallet struct {
	Id        string
	UserId    string
	Currency  string
	Available decimal.Decimal
	Locked    decimal.Decimal
	Version   int64
	UpdatedAt time.Time
}

// Total returns available + locked.
func (w *Wallet) Total() decimal.Decimal {
	return w.Available.Add(w.Locked)
}

// PaymentStatus is the canonical processor-agnostic status enum. All
// provider-specific statuses are mapped onto it before touching the
// state machine.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// Terminal reports whether the payment can no longer change status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// Valid reports whether s is a known canonical status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

// FeeBreakdown records how the gross amount splits between the platform,
// the processor, and the net amount forwarded to the opportunity.
type FeeBreakdown struct {
	PlatformFee  decimal.Decimal
	ProcessorFee decimal.Decimal
	NetAmount    decimal.Decimal
	RateVersion  string
}

// PaymentTransaction is the one-to-one processor-side record for an
// investment. Its canonical status is the sole input driving the owning
// investment's state machine. Sequence is the highest event order marker
// applied so far.
type PaymentTransaction struct {
	Id             string
	InvestmentId   string
	Processor      string
	IntentId       string
	Status         PaymentStatus
	Amount         decimal.Decimal
	Currency       string
	Fees           FeeBreakdown
	IdempotencyKey string
	Sequence       int64
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RiskLevel buckets a numeric risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskSnapshot is the immutable eligibility/risk verdict captured at the
// moment of an investment attempt. Re-evaluation creates a new snapshot,
// never an edit.
type RiskSnapshot struct {
	Id                   string
	InvestorId           string
	OpportunityId        string
	Amount               decimal.Decimal
	Level                RiskLevel
	Score                int
	Flags                []string
	ManualReviewRequired bool
	CreatedAt            time.Time
}

// ActivityEntry is one append-only audit record. Ref, when set, is a
// caller-chosen idempotency reference: a second append with the same ref
// is rejected as a duplicate instead of recorded twice.
type ActivityEntry struct {
	Id         string
	Actor      string
	Action     string
	EntityType string
	EntityId   string
	Ref        string
	Before     string
	After      string
	CreatedAt  time.Time
}

// InvestorProfile is the externally supplied identity/KYC view of an
// investor. The engine consumes it; it never owns or mutates it.
type InvestorProfile struct {
	InvestorId     string
	Verified       bool
	Accredited     bool
	Country        string
	AnnualInvested decimal.Decimal
}

// PortfolioAggregate is the running total of completed investments for an
// investor in one currency.
type PortfolioAggregate struct {
	InvestorId        string
	Currency          string
	TotalInvested     decimal.Decimal
	ActiveInvestments int
	UpdatedAt         time.Time
}

// ProcessedEvent is the permanent webhook de-duplication record.
type ProcessedEvent struct {
	EventId         string
	InvestmentId    string
	CanonicalStatus PaymentStatus
	Sequence        int64
	Outcome         string
	ProcessedAt     time.Time
}

// Webhook event outcomes recorded in the dedup table.
const (
	EventOutcomeApplied  = "applied"
	EventOutcomeStale    = "rejected_stale"
	EventOutcomeRejected = "rejected"
)

// WebhookEvent is the inbound processor callback payload.
type WebhookEvent struct {
	EventId   string `json:"event_id"`
	Type      string `json:"type"`
	SubjectId string `json:"subject_id"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Sequence  int64  `json:"sequence"`
	Signature string `json:"signature"`
}
