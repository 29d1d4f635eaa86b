package engine

import (
	"context"
	"errors"
	"fmt"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ApplyPaymentStatus is the single mutation path from a canonical payment
// status into the investment state machine. The sequence guard on the
// payment row rejects out-of-order events; the guarded investment
// transition and the per-step idempotency refs make replays harmless.
func (e *Engine) ApplyPaymentStatus(ctx context.Context, investmentId string, status models.PaymentStatus, sequence int64, actor string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown payment status %s", ErrValidation, status)
	}

	inv, err := e.store.GetInvestment(ctx, investmentId)
	if err != nil {
		return err
	}
	pt, err := e.store.GetPaymentByInvestment(ctx, investmentId)
	if err != nil {
		return err
	}

	if err := e.store.UpdatePaymentStatus(ctx, store.PaymentStatusUpdateParams{
		PaymentId: pt.Id,
		Status:    status,
		Sequence:  sequence,
	}); err != nil {
		return err
	}

	switch status {
	case models.PaymentPending:
		return nil
	case models.PaymentProcessing:
		return e.markProcessing(ctx, inv, actor)
	case models.PaymentCompleted:
		return e.settle(ctx, inv, actor)
	case models.PaymentFailed:
		return e.fail(ctx, inv, models.InvestmentFailed, actor)
	case models.PaymentCancelled:
		// A charge cancelled before anything moved maps to an investment
		// cancellation. Once the charge is in flight, a processor-side
		// cancellation is a rejection: processing has no cancelled arc, and
		// the reservations must still come back.
		to := models.InvestmentCancelled
		if inv.Status != models.InvestmentPending {
			to = models.InvestmentFailed
		}
		return e.fail(ctx, inv, to, actor)
	}
	return nil
}

func (e *Engine) markProcessing(ctx context.Context, inv *models.Investment, actor string) error {
	if inv.Status != models.InvestmentPending {
		// Already past pending; the payment row carries the sequence, the
		// investment stays where it is.
		return nil
	}
	if err := e.store.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: inv.Id,
		From:         models.InvestmentPending,
		To:           models.InvestmentProcessing,
		Actor:        actor,
		Ref:          transitionRef(inv.Id, models.InvestmentProcessing),
	}); err != nil {
		return err
	}
	previous := inv.Status
	inv.Status = models.InvestmentProcessing
	e.deliver(ctx, inv, previous)
	return nil
}

// settle completes the investment: the wallet's locked funds are spent
// exactly once, and the investor's portfolio aggregate grows. Both steps
// are ref-guarded so a crash-and-retry between them cannot double-apply.
func (e *Engine) settle(ctx context.Context, inv *models.Investment, actor string) error {
	from := inv.Status
	if from != models.InvestmentPending && from != models.InvestmentProcessing {
		return fmt.Errorf("%w: cannot complete investment in status %s", store.ErrInvalidTransition, from)
	}

	if err := e.store.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: inv.Id,
		From:         from,
		To:           models.InvestmentCompleted,
		Actor:        actor,
		Ref:          transitionRef(inv.Id, models.InvestmentCompleted),
	}); err != nil {
		return err
	}
	inv.Status = models.InvestmentCompleted

	var errs error
	if err := e.wallets.Commit(ctx, store.WalletMutationParams{
		UserId:   inv.InvestorId,
		Currency: inv.Currency,
		Amount:   inv.Amount,
		Ref:      walletCommitRef(inv.Id),
		Actor:    actor,
	}); err != nil {
		if errors.Is(err, store.ErrDuplicateRef) {
			zap.L().Info("Wallet commit already applied",
				zap.String("investment_id", inv.Id))
		} else {
			errs = multierr.Append(errs, fmt.Errorf("failed to commit wallet funds: %w", err))
		}
	}
	if err := e.store.ApplyPortfolioDelta(ctx, store.PortfolioDeltaParams{
		InvestorId:  inv.InvestorId,
		Currency:    inv.Currency,
		AmountDelta: inv.Amount,
		ActiveDelta: 1,
	}); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to update portfolio: %w", err))
	}
	if errs != nil {
		return errs
	}

	zap.L().Info("Investment settled",
		zap.String("investment_id", inv.Id),
		zap.String("investor_id", inv.InvestorId),
		zap.String("amount", inv.Amount.String()),
		zap.String("currency", inv.Currency))
	e.deliver(ctx, inv, from)
	return nil
}

// fail moves a live investment to failed or cancelled and returns both
// reservations.
func (e *Engine) fail(ctx context.Context, inv *models.Investment, to models.InvestmentStatus, actor string) error {
	from := inv.Status
	if from.Terminal() {
		return fmt.Errorf("%w: investment already in terminal status %s", store.ErrInvalidTransition, from)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, from, to)
	}

	if err := e.store.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: inv.Id,
		From:         from,
		To:           to,
		Actor:        actor,
		Ref:          transitionRef(inv.Id, to),
	}); err != nil {
		return err
	}
	inv.Status = to

	if err := e.releaseReservations(ctx, inv, actor); err != nil {
		return err
	}
	e.deliver(ctx, inv, from)
	return nil
}

// Expire fails an investment whose intent deadline passed without the
// processor ever settling it. Called only by the sweep, after the
// processor has been consulted as the source of truth.
func (e *Engine) Expire(ctx context.Context, investmentId string) error {
	inv, err := e.store.GetInvestment(ctx, investmentId)
	if err != nil {
		return err
	}
	if inv.Status != models.InvestmentPending && inv.Status != models.InvestmentProcessing {
		return nil
	}

	// Record the expiry on the payment row when one exists; the sweep may
	// run before an intent was ever created.
	if pt, err := e.store.GetPaymentByInvestment(ctx, investmentId); err == nil {
		if err := e.store.UpdatePaymentStatus(ctx, store.PaymentStatusUpdateParams{
			PaymentId: pt.Id,
			Status:    models.PaymentFailed,
			Sequence:  pt.Sequence + 1,
		}); err != nil && !errors.Is(err, store.ErrConcurrentModification) {
			return err
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := e.fail(ctx, inv, models.InvestmentFailed, "sweeper"); err != nil {
		return err
	}
	zap.L().Info("Expired investment failed by sweep",
		zap.String("investment_id", inv.Id),
		zap.Time("expires_at", inv.ExpiresAt))
	return nil
}
