package database

import (
	"context"
	"database/sql"
	"fmt"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreatePaymentTransaction persists the processor-side record for an
// investment. The unique investment_id index enforces the one-to-one
// relationship.
func (s *Service) CreatePaymentTransaction(ctx context.Context, pt *models.PaymentTransaction) error {
	_, err := s.db.ExecContext(ctx, queryInsertPayment,
		pt.Id, pt.InvestmentId, pt.Processor, pt.IntentId, string(pt.Status),
		pt.Amount.String(), pt.Currency,
		pt.Fees.PlatformFee.String(), pt.Fees.ProcessorFee.String(), pt.Fees.NetAmount.String(),
		pt.Fees.RateVersion, pt.IdempotencyKey, pt.Sequence, pt.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment transaction: %w", err)
	}
	return nil
}

// GetPaymentTransaction returns a payment transaction by id.
func (s *Service) GetPaymentTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	return s.getPayment(ctx, queryGetPayment, id)
}

// GetPaymentByInvestment returns the payment transaction owned by the
// given investment. Used as the gateway's idempotency lookup.
func (s *Service) GetPaymentByInvestment(ctx context.Context, investmentId string) (*models.PaymentTransaction, error) {
	return s.getPayment(ctx, queryGetPaymentByInvestment, investmentId)
}

// GetPaymentByIntent resolves a processor intent id to its payment record.
func (s *Service) GetPaymentByIntent(ctx context.Context, intentId string) (*models.PaymentTransaction, error) {
	return s.getPayment(ctx, queryGetPaymentByIntent, intentId)
}

func (s *Service) getPayment(ctx context.Context, query, key string) (*models.PaymentTransaction, error) {
	pt, err := scanPayment(s.db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payment transaction for %s", store.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return pt, nil
}

func scanPayment(row rowScanner) (*models.PaymentTransaction, error) {
	var pt models.PaymentTransaction
	var amountStr, platformStr, processorStr, netStr, status string
	var expiresAt sql.NullTime
	err := row.Scan(&pt.Id, &pt.InvestmentId, &pt.Processor, &pt.IntentId, &status,
		&amountStr, &pt.Currency, &platformStr, &processorStr, &netStr,
		&pt.Fees.RateVersion, &pt.IdempotencyKey, &pt.Sequence, &expiresAt,
		&pt.CreatedAt, &pt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	pt.Status = models.PaymentStatus(status)
	if expiresAt.Valid {
		pt.ExpiresAt = expiresAt.Time
	}
	if pt.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse payment amount %q: %w", amountStr, err)
	}
	if pt.Fees.PlatformFee, err = decimal.NewFromString(platformStr); err != nil {
		return nil, fmt.Errorf("failed to parse platform fee %q: %w", platformStr, err)
	}
	if pt.Fees.ProcessorFee, err = decimal.NewFromString(processorStr); err != nil {
		return nil, fmt.Errorf("failed to parse processor fee %q: %w", processorStr, err)
	}
	if pt.Fees.NetAmount, err = decimal.NewFromString(netStr); err != nil {
		return nil, fmt.Errorf("failed to parse net amount %q: %w", netStr, err)
	}
	return &pt, nil
}

// UpdatePaymentStatus advances the canonical status, guarded by the event
// sequence: an update bearing an order marker at or below the applied one
// does not land. Terminal states never regress.
func (s *Service) UpdatePaymentStatus(ctx context.Context, p store.PaymentStatusUpdateParams) error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: unknown canonical status %s", store.ErrInvalidTransition, p.Status)
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := scanPayment(tx.QueryRowContext(ctx, queryGetPayment, p.PaymentId))
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: payment transaction %s", store.ErrNotFound, p.PaymentId)
	}
	if err != nil {
		return fmt.Errorf("failed to read payment transaction: %w", err)
	}

	if p.Sequence <= current.Sequence {
		return fmt.Errorf("%w: sequence %d already applied (current %d)",
			store.ErrConcurrentModification, p.Sequence, current.Sequence)
	}
	if current.Status.Terminal() && current.Status != p.Status {
		return fmt.Errorf("%w: payment %s is terminal in %s, refusing %s",
			store.ErrInvalidTransition, p.PaymentId, current.Status, p.Status)
	}

	result, err := tx.ExecContext(ctx, queryUpdatePaymentStatus,
		string(p.Status), p.Sequence, p.PaymentId, p.Sequence)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payment update failed - %w", store.ErrConcurrentModification)
	}

	if err := appendActivityTx(ctx, tx, &models.ActivityEntry{
		Actor:      "processor",
		Action:     "payment.status",
		EntityType: "payment",
		EntityId:   p.PaymentId,
		Before:     string(current.Status),
		After:      string(p.Status),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Payment status updated",
		zap.String("payment_id", p.PaymentId),
		zap.String("from", string(current.Status)),
		zap.String("to", string(p.Status)),
		zap.Int64("sequence", p.Sequence))
	return nil
}
