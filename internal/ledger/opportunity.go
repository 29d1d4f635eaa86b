package ledger

import (
	"context"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/shopspring/decimal"
)

// OpportunityLedger is the single permitted mutation path for opportunity
// funding counters.
type OpportunityLedger struct {
	store store.EngineStore
	cfg   models.LedgerConfig
}

// NewOpportunityLedger creates an opportunity ledger over the given store.
func NewOpportunityLedger(s store.EngineStore, cfg models.LedgerConfig) *OpportunityLedger {
	return &OpportunityLedger{store: s, cfg: cfg}
}

// Reserve claims amount of funding capacity on the opportunity.
func (o *OpportunityLedger) Reserve(ctx context.Context, opportunityId string, amount decimal.Decimal, ref, actor string) error {
	return withRetry(ctx, o.cfg.MaxAttempts, o.cfg.RetryBase, func() error {
		return o.store.ReserveOpportunityCapacity(ctx, opportunityId, amount, ref, actor)
	})
}

// Release returns amount of capacity after a failed or cancelled attempt.
func (o *OpportunityLedger) Release(ctx context.Context, opportunityId string, amount decimal.Decimal, ref, actor string) error {
	return withRetry(ctx, o.cfg.MaxAttempts, o.cfg.RetryBase, func() error {
		return o.store.ReleaseOpportunityCapacity(ctx, opportunityId, amount, false, ref, actor)
	})
}

// ReleaseAndReopen returns capacity freed by a refund; a completed
// opportunity with capacity available again goes back to active.
func (o *OpportunityLedger) ReleaseAndReopen(ctx context.Context, opportunityId string, amount decimal.Decimal, ref, actor string) error {
	return withRetry(ctx, o.cfg.MaxAttempts, o.cfg.RetryBase, func() error {
		return o.store.ReleaseOpportunityCapacity(ctx, opportunityId, amount, true, ref, actor)
	})
}

// Get returns the opportunity by id.
func (o *OpportunityLedger) Get(ctx context.Context, id string) (*models.Opportunity, error) {
	return o.store.GetOpportunity(ctx, id)
}
