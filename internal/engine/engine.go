package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invest-engine-go/internal/compliance"
	"invest-engine-go/internal/ledger"
	"invest-engine-go/internal/models"
	"invest-engine-go/internal/notify"
	"invest-engine-go/internal/payments"
	"invest-engine-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Engine is the investment state machine: it orchestrates the compliance
// gate, both ledgers, and the payment gateway to move an investment from
// intent to settlement. All investment status mutation flows through it.
type Engine struct {
	store         store.EngineStore
	wallets       *ledger.WalletLedger
	opportunities *ledger.OpportunityLedger
	gate          *compliance.Gate
	gateway       *payments.Gateway
	notifier      notify.Notifier
	intentTTL     time.Duration
}

// NewEngine wires the engine over its collaborators.
func NewEngine(s store.EngineStore, wallets *ledger.WalletLedger, opportunities *ledger.OpportunityLedger,
	gate *compliance.Gate, gateway *payments.Gateway, notifier notify.Notifier, intentTTL time.Duration) *Engine {
	return &Engine{
		store:         s,
		wallets:       wallets,
		opportunities: opportunities,
		gate:          gate,
		gateway:       gateway,
		notifier:      notifier,
		intentTTL:     intentTTL,
	}
}

// InvestParams is one investment attempt.
type InvestParams struct {
	InvestorId    string
	OpportunityId string
	Amount        decimal.Decimal
	Terms         models.Terms
}

// InvestResult is the outcome of a successful attempt: the pending
// investment, its payment record, and the caller-facing action needed to
// complete the charge.
type InvestResult struct {
	Investment   *models.Investment
	Payment      *models.PaymentTransaction
	ClientAction string
	Snapshot     *models.RiskSnapshot
}

// Invest runs the full admission sequence: compliance gate, charge quote,
// opportunity capacity reservation, wallet funds reservation, processor
// intent. The gate and the quote come first so a failure there has zero
// side effects; any failure after a reservation releases everything taken
// for this attempt before the error is returned.
func (e *Engine) Invest(ctx context.Context, p InvestParams) (*InvestResult, error) {
	opp, err := e.store.GetOpportunity(ctx, p.OpportunityId)
	if err != nil {
		return nil, err
	}
	if err := e.validate(p, opp); err != nil {
		return nil, err
	}

	snapshot, err := e.gate.Evaluate(ctx, p.InvestorId, opp, p.Amount)
	if err != nil {
		return nil, err
	}

	// Conversion and fee computation resolve before any reservation, so a
	// missing rate or an unpublishable fee never leaves state to unwind.
	quote, err := e.gateway.PrepareQuote(ctx, p.Amount, opp.Currency)
	if err != nil {
		return nil, err
	}

	inv := &models.Investment{
		Id:             uuid.New().String(),
		InvestorId:     p.InvestorId,
		OpportunityId:  p.OpportunityId,
		Amount:         p.Amount,
		Currency:       opp.Currency,
		Terms:          p.Terms,
		Status:         models.InvestmentPending,
		RiskSnapshotId: snapshot.Id,
		ExpiresAt:      time.Now().UTC().Add(e.intentTTL),
	}
	if err := e.store.CreateInvestment(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create investment: %w", err)
	}

	if err := e.opportunities.Reserve(ctx, opp.Id, p.Amount, oppReserveRef(inv.Id), p.InvestorId); err != nil {
		return nil, multierr.Append(err, e.abandon(ctx, inv, false, false))
	}

	if err := e.wallets.Reserve(ctx, store.WalletMutationParams{
		UserId:   p.InvestorId,
		Currency: opp.Currency,
		Amount:   p.Amount,
		Ref:      walletReserveRef(inv.Id),
		Actor:    p.InvestorId,
	}); err != nil {
		return nil, multierr.Append(err, e.abandon(ctx, inv, true, false))
	}

	pt, clientAction, err := e.gateway.CreateIntent(ctx, inv.Id, quote)
	if err != nil {
		return nil, multierr.Append(err, e.abandon(ctx, inv, true, true))
	}
	inv.PaymentTransactionId = pt.Id
	// Best-effort bookkeeping: the unique payment_transactions.investment_id
	// index is the authoritative link, so a failure here never unwinds a
	// live intent.
	if err := e.store.LinkPaymentTransaction(ctx, inv.Id, pt.Id); err != nil {
		zap.L().Warn("Failed to record payment link on investment",
			zap.String("investment_id", inv.Id),
			zap.String("payment_id", pt.Id),
			zap.Error(err))
	}

	zap.L().Info("Investment created",
		zap.String("investment_id", inv.Id),
		zap.String("investor_id", p.InvestorId),
		zap.String("opportunity_id", opp.Id),
		zap.String("amount", p.Amount.String()),
		zap.String("currency", opp.Currency),
		zap.String("intent_id", pt.IntentId))

	return &InvestResult{
		Investment:   inv,
		Payment:      pt,
		ClientAction: clientAction,
		Snapshot:     snapshot,
	}, nil
}

func (e *Engine) validate(p InvestParams, opp *models.Opportunity) error {
	if p.InvestorId == "" {
		return fmt.Errorf("%w: investor id required", ErrValidation)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if p.Amount.LessThan(opp.MinimumTicket) {
		return fmt.Errorf("%w: amount %s below minimum ticket %s",
			ErrValidation, p.Amount, opp.MinimumTicket)
	}
	if p.Amount.GreaterThan(opp.MaximumTicket) {
		return fmt.Errorf("%w: amount %s above maximum ticket %s",
			ErrValidation, p.Amount, opp.MaximumTicket)
	}
	if err := p.Terms.Validate(opp.Type); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// abandon is the compensation path for a failed attempt: it releases
// whatever reservations were already taken and marks the investment
// failed. Errors are aggregated, not short-circuited, so every release is
// attempted.
func (e *Engine) abandon(ctx context.Context, inv *models.Investment, oppReserved, walletReserved bool) error {
	var errs error
	if walletReserved {
		if err := e.wallets.Release(ctx, store.WalletMutationParams{
			UserId:   inv.InvestorId,
			Currency: inv.Currency,
			Amount:   inv.Amount,
			Ref:      walletReleaseRef(inv.Id),
			Actor:    "engine",
		}); err != nil && !errors.Is(err, store.ErrDuplicateRef) {
			errs = multierr.Append(errs, fmt.Errorf("failed to release wallet reservation: %w", err))
		}
	}
	if oppReserved {
		if err := e.opportunities.Release(ctx, inv.OpportunityId, inv.Amount, oppReleaseRef(inv.Id), "engine"); err != nil &&
			!errors.Is(err, store.ErrDuplicateRef) {
			errs = multierr.Append(errs, fmt.Errorf("failed to release opportunity capacity: %w", err))
		}
	}
	if err := e.store.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: inv.Id,
		From:         models.InvestmentPending,
		To:           models.InvestmentFailed,
		Actor:        "engine",
		Ref:          transitionRef(inv.Id, models.InvestmentFailed),
	}); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to mark investment failed: %w", err))
	}
	if errs != nil {
		zap.L().Error("Compensation incomplete for abandoned investment",
			zap.String("investment_id", inv.Id),
			zap.Error(errs))
	}
	return errs
}

// Cancel abandons a pending investment on the investor's request,
// releasing both reservations.
func (e *Engine) Cancel(ctx context.Context, investmentId, actor string) error {
	inv, err := e.store.GetInvestment(ctx, investmentId)
	if err != nil {
		return err
	}
	if inv.Status != models.InvestmentPending {
		return fmt.Errorf("%w: cannot cancel investment in status %s", store.ErrInvalidTransition, inv.Status)
	}

	if err := e.store.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: inv.Id,
		From:         models.InvestmentPending,
		To:           models.InvestmentCancelled,
		Actor:        actor,
		Ref:          transitionRef(inv.Id, models.InvestmentCancelled),
	}); err != nil {
		return err
	}
	previous := inv.Status
	inv.Status = models.InvestmentCancelled

	if err := e.releaseReservations(ctx, inv, actor); err != nil {
		return err
	}
	e.deliver(ctx, inv, previous)
	return nil
}

// Refund compensates a completed investment: previously committed funds
// go back into the investor's available balance, the opportunity's
// funding counter is decremented, and a completed opportunity with
// capacity freed reopens to active.
func (e *Engine) Refund(ctx context.Context, investmentId, actor string) error {
	inv, err := e.store.GetInvestment(ctx, investmentId)
	if err != nil {
		return err
	}
	if inv.Status != models.InvestmentCompleted {
		return fmt.Errorf("%w: cannot refund investment in status %s", store.ErrInvalidTransition, inv.Status)
	}

	if err := e.store.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: inv.Id,
		From:         models.InvestmentCompleted,
		To:           models.InvestmentRefunded,
		Actor:        actor,
		Ref:          transitionRef(inv.Id, models.InvestmentRefunded),
	}); err != nil {
		return err
	}
	previous := inv.Status
	inv.Status = models.InvestmentRefunded

	var errs error
	if err := e.wallets.Refund(ctx, store.WalletMutationParams{
		UserId:   inv.InvestorId,
		Currency: inv.Currency,
		Amount:   inv.Amount,
		Ref:      walletRefundRef(inv.Id),
		Actor:    actor,
	}); err != nil && !errors.Is(err, store.ErrDuplicateRef) {
		errs = multierr.Append(errs, fmt.Errorf("failed to refund wallet: %w", err))
	}
	if err := e.opportunities.ReleaseAndReopen(ctx, inv.OpportunityId, inv.Amount, oppReleaseRef(inv.Id), actor); err != nil &&
		!errors.Is(err, store.ErrDuplicateRef) {
		errs = multierr.Append(errs, fmt.Errorf("failed to release opportunity capacity: %w", err))
	}
	if err := e.store.ApplyPortfolioDelta(ctx, store.PortfolioDeltaParams{
		InvestorId:  inv.InvestorId,
		Currency:    inv.Currency,
		AmountDelta: inv.Amount.Neg(),
		ActiveDelta: -1,
	}); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to update portfolio: %w", err))
	}
	if errs != nil {
		return errs
	}
	e.deliver(ctx, inv, previous)
	return nil
}

// Dispute marks a completed investment disputed. Funds stay committed
// while the dispute is investigated; resolution is an operator action
// outside the engine.
func (e *Engine) Dispute(ctx context.Context, investmentId, actor string) error {
	inv, err := e.store.GetInvestment(ctx, investmentId)
	if err != nil {
		return err
	}
	if inv.Status != models.InvestmentCompleted {
		return fmt.Errorf("%w: cannot dispute investment in status %s", store.ErrInvalidTransition, inv.Status)
	}

	if err := e.store.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: inv.Id,
		From:         models.InvestmentCompleted,
		To:           models.InvestmentDisputed,
		Actor:        actor,
		Ref:          transitionRef(inv.Id, models.InvestmentDisputed),
	}); err != nil {
		return err
	}
	previous := inv.Status
	inv.Status = models.InvestmentDisputed
	e.deliver(ctx, inv, previous)
	return nil
}

// releaseReservations returns both the wallet and opportunity holds taken
// for an attempt that will not settle. Duplicate refs mean the release
// already happened and are not errors.
func (e *Engine) releaseReservations(ctx context.Context, inv *models.Investment, actor string) error {
	var errs error
	if err := e.wallets.Release(ctx, store.WalletMutationParams{
		UserId:   inv.InvestorId,
		Currency: inv.Currency,
		Amount:   inv.Amount,
		Ref:      walletReleaseRef(inv.Id),
		Actor:    actor,
	}); err != nil && !errors.Is(err, store.ErrDuplicateRef) {
		errs = multierr.Append(errs, fmt.Errorf("failed to release wallet reservation: %w", err))
	}
	if err := e.opportunities.Release(ctx, inv.OpportunityId, inv.Amount, oppReleaseRef(inv.Id), actor); err != nil &&
		!errors.Is(err, store.ErrDuplicateRef) {
		errs = multierr.Append(errs, fmt.Errorf("failed to release opportunity capacity: %w", err))
	}
	return errs
}

// deliver pushes a lifecycle notification; failures are logged and never
// block the transition that produced them.
func (e *Engine) deliver(ctx context.Context, inv *models.Investment, previous models.InvestmentStatus) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.InvestmentChanged(ctx, inv, previous); err != nil {
		zap.L().Warn("Notification delivery failed",
			zap.String("investment_id", inv.Id),
			zap.Error(err))
	}
}

// Idempotency references. Each money-moving step of an investment's
// lifecycle has one stable ref, so a replayed step is rejected by the
// activity log instead of applied twice.
func oppReserveRef(investmentId string) string    { return "opp:reserve:" + investmentId }
func oppReleaseRef(investmentId string) string    { return "opp:release:" + investmentId }
func walletReserveRef(investmentId string) string { return "wallet:reserve:" + investmentId }
func walletReleaseRef(investmentId string) string { return "wallet:release:" + investmentId }
func walletCommitRef(investmentId string) string  { return "wallet:commit:" + investmentId }
func walletRefundRef(investmentId string) string  { return "wallet:refund:" + investmentId }

func transitionRef(investmentId string, to models.InvestmentStatus) string {
	return "inv:" + string(to) + ":" + investmentId
}
