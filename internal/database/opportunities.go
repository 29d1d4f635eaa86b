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

// CreateOpportunity persists a new opportunity.
func (s *Service) CreateOpportunity(ctx context.Context, o *models.Opportunity) error {
	if o.TargetAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("target amount must be positive, got %s", o.TargetAmount.String())
	}
	if o.MinimumTicket.LessThanOrEqual(decimal.Zero) || o.MaximumTicket.LessThan(o.MinimumTicket) {
		return fmt.Errorf("invalid ticket bounds [%s, %s]", o.MinimumTicket.String(), o.MaximumTicket.String())
	}
	if o.CurrentAmount.IsNegative() {
		return fmt.Errorf("current amount cannot be negative")
	}

	accredited := 0
	if o.AccreditedOnly {
		accredited = 1
	}
	_, err := s.db.ExecContext(ctx, queryInsertOpportunity,
		o.Id, o.Name, string(o.Type), o.Currency,
		o.TargetAmount.String(), o.CurrentAmount.String(),
		o.MinimumTicket.String(), o.MaximumTicket.String(),
		accredited, string(o.Status))
	if err != nil {
		return fmt.Errorf("failed to insert opportunity: %w", err)
	}
	return nil
}

// GetOpportunity returns an opportunity by id.
func (s *Service) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	o, err := scanOpportunity(s.db.QueryRowContext(ctx, queryGetOpportunity, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: opportunity %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}
	return o, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (*models.Opportunity, error) {
	var o models.Opportunity
	var targetStr, currentStr, minStr, maxStr, typ, status string
	var accredited int
	err := row.Scan(&o.Id, &o.Name, &typ, &o.Currency, &targetStr, &currentStr,
		&minStr, &maxStr, &accredited, &status, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Type = models.OpportunityType(typ)
	o.Status = models.OpportunityStatus(status)
	o.AccreditedOnly = accredited != 0
	if o.TargetAmount, err = decimal.NewFromString(targetStr); err != nil {
		return nil, fmt.Errorf("failed to parse target amount %q: %w", targetStr, err)
	}
	if o.CurrentAmount, err = decimal.NewFromString(currentStr); err != nil {
		return nil, fmt.Errorf("failed to parse current amount %q: %w", currentStr, err)
	}
	if o.MinimumTicket, err = decimal.NewFromString(minStr); err != nil {
		return nil, fmt.Errorf("failed to parse minimum ticket %q: %w", minStr, err)
	}
	if o.MaximumTicket, err = decimal.NewFromString(maxStr); err != nil {
		return nil, fmt.Errorf("failed to parse maximum ticket %q: %w", maxStr, err)
	}
	return &o, nil
}

// ReserveOpportunityCapacity atomically re-reads the funding counter and
// status, validates capacity, and increments current_amount. Reaching the
// target transitions the opportunity to completed in the same transaction.
// The check-and-increment never happens outside the transaction; that is
// the race this method exists to close.
func (s *Service) ReserveOpportunityCapacity(ctx context.Context, opportunityId string, amount decimal.Decimal, ref, actor string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("reserve amount must be positive, got %s", amount.String())
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkRefTx(ctx, tx, ref); err != nil {
		return err
	}

	o, err := scanOpportunity(tx.QueryRowContext(ctx, queryGetOpportunity, opportunityId))
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: opportunity %s", store.ErrNotFound, opportunityId)
	}
	if err != nil {
		return fmt.Errorf("failed to read opportunity: %w", err)
	}

	if o.Status != models.OpportunityActive {
		return fmt.Errorf("%w: opportunity %s is %s", store.ErrOpportunityNotActive, opportunityId, o.Status)
	}

	newAmount := o.CurrentAmount.Add(amount)
	if newAmount.GreaterThan(o.TargetAmount) {
		return fmt.Errorf("%w: current %s + %s exceeds target %s",
			store.ErrCapacityExceeded, o.CurrentAmount.String(), amount.String(), o.TargetAmount.String())
	}

	newStatus := o.Status
	if newAmount.Equal(o.TargetAmount) {
		newStatus = models.OpportunityCompleted
	}

	if err := updateFundingTx(ctx, tx, opportunityId, newAmount, newStatus, o.Version); err != nil {
		return err
	}

	if err := appendActivityTx(ctx, tx, &models.ActivityEntry{
		Actor:      actor,
		Action:     "opportunity.reserve",
		EntityType: "opportunity",
		EntityId:   opportunityId,
		Ref:        ref,
		Before:     fundingSnapshot(o.CurrentAmount, o.Status),
		After:      fundingSnapshot(newAmount, newStatus),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if newStatus == models.OpportunityCompleted {
		zap.L().Info("Opportunity fully funded",
			zap.String("opportunity_id", opportunityId),
			zap.String("target", o.TargetAmount.String()))
	}
	return nil
}

// ReleaseOpportunityCapacity decrements current_amount after a failed,
// cancelled, or refunded investment. When reopen is set, a completed
// opportunity whose capacity becomes available again returns to active;
// refunds opt in, failure compensation of a still-active opportunity
// does not need to.
func (s *Service) ReleaseOpportunityCapacity(ctx context.Context, opportunityId string, amount decimal.Decimal, reopen bool, ref, actor string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("release amount must be positive, got %s", amount.String())
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkRefTx(ctx, tx, ref); err != nil {
		return err
	}

	o, err := scanOpportunity(tx.QueryRowContext(ctx, queryGetOpportunity, opportunityId))
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: opportunity %s", store.ErrNotFound, opportunityId)
	}
	if err != nil {
		return fmt.Errorf("failed to read opportunity: %w", err)
	}

	newAmount := o.CurrentAmount.Sub(amount)
	if newAmount.IsNegative() {
		return fmt.Errorf("release of %s would drive opportunity %s below zero (current %s)",
			amount.String(), opportunityId, o.CurrentAmount.String())
	}

	newStatus := o.Status
	if reopen && o.Status == models.OpportunityCompleted && newAmount.LessThan(o.TargetAmount) {
		newStatus = models.OpportunityActive
	}

	if err := updateFundingTx(ctx, tx, opportunityId, newAmount, newStatus, o.Version); err != nil {
		return err
	}

	if err := appendActivityTx(ctx, tx, &models.ActivityEntry{
		Actor:      actor,
		Action:     "opportunity.release",
		EntityType: "opportunity",
		EntityId:   opportunityId,
		Ref:        ref,
		Before:     fundingSnapshot(o.CurrentAmount, o.Status),
		After:      fundingSnapshot(newAmount, newStatus),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if newStatus != o.Status {
		zap.L().Info("Opportunity reopened after release",
			zap.String("opportunity_id", opportunityId),
			zap.String("current", newAmount.String()))
	}
	return nil
}

func updateFundingTx(ctx context.Context, tx *sql.Tx, opportunityId string, newAmount decimal.Decimal, newStatus models.OpportunityStatus, version int64) error {
	result, err := tx.ExecContext(ctx, queryUpdateOpportunityFunding,
		newAmount.String(), string(newStatus), opportunityId, version)
	if err != nil {
		return fmt.Errorf("failed to update opportunity funding: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("opportunity update failed - %w", store.ErrConcurrentModification)
	}
	return nil
}

func checkRefTx(ctx context.Context, tx *sql.Tx, ref string) error {
	if ref == "" {
		return nil
	}
	var existingId string
	err := tx.QueryRowContext(ctx, queryCheckActivityRef, ref).Scan(&existingId)
	if err == nil {
		zap.L().Warn("Duplicate mutation ref detected, skipping",
			zap.String("ref", ref),
			zap.String("existing_entry_id", existingId))
		return fmt.Errorf("%w: ref %s already applied", store.ErrDuplicateRef, ref)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check mutation ref: %w", err)
	}
	return nil
}

func fundingSnapshot(amount decimal.Decimal, status models.OpportunityStatus) string {
	return fmt.Sprintf(`{"current_amount":"%s","status":"%s"}`, amount.String(), status)
}
