package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateInvestment persists a new investment record in its initial state.
func (s *Service) CreateInvestment(ctx context.Context, inv *models.Investment) error {
	if inv.Status != models.InvestmentPending {
		return fmt.Errorf("investment must be created in pending status, got %s", inv.Status)
	}

	var equity, rate, revShare sql.NullString
	var termMonths sql.NullInt64
	if inv.Terms.EquityPercent != nil {
		equity = sql.NullString{String: inv.Terms.EquityPercent.String(), Valid: true}
	}
	if inv.Terms.InterestRate != nil {
		rate = sql.NullString{String: inv.Terms.InterestRate.String(), Valid: true}
	}
	if inv.Terms.TermMonths != nil {
		termMonths = sql.NullInt64{Int64: int64(*inv.Terms.TermMonths), Valid: true}
	}
	if inv.Terms.RevenueSharePercent != nil {
		revShare = sql.NullString{String: inv.Terms.RevenueSharePercent.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, queryInsertInvestment,
		inv.Id, inv.InvestorId, inv.OpportunityId, inv.Amount.String(), inv.Currency,
		equity, rate, termMonths, revShare,
		string(inv.Status), inv.PaymentTransactionId, inv.RiskSnapshotId, inv.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert investment: %w", err)
	}
	return nil
}

// GetInvestment returns an investment by id.
func (s *Service) GetInvestment(ctx context.Context, id string) (*models.Investment, error) {
	inv, err := scanInvestment(s.db.QueryRowContext(ctx, queryGetInvestment, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: investment %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return inv, nil
}

func scanInvestment(row rowScanner) (*models.Investment, error) {
	var inv models.Investment
	var amountStr, status string
	var equity, rate, revShare sql.NullString
	var termMonths sql.NullInt64
	var paymentId, snapshotId sql.NullString
	var expiresAt sql.NullTime
	err := row.Scan(&inv.Id, &inv.InvestorId, &inv.OpportunityId, &amountStr, &inv.Currency,
		&equity, &rate, &termMonths, &revShare,
		&status, &paymentId, &snapshotId, &expiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Status = models.InvestmentStatus(status)
	inv.PaymentTransactionId = paymentId.String
	inv.RiskSnapshotId = snapshotId.String
	if expiresAt.Valid {
		inv.ExpiresAt = expiresAt.Time
	}
	if inv.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse investment amount %q: %w", amountStr, err)
	}
	if equity.Valid {
		d, err := decimal.NewFromString(equity.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse equity percent %q: %w", equity.String, err)
		}
		inv.Terms.EquityPercent = &d
	}
	if rate.Valid {
		d, err := decimal.NewFromString(rate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse interest rate %q: %w", rate.String, err)
		}
		inv.Terms.InterestRate = &d
	}
	if termMonths.Valid {
		months := int(termMonths.Int64)
		inv.Terms.TermMonths = &months
	}
	if revShare.Valid {
		d, err := decimal.NewFromString(revShare.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse revenue share %q: %w", revShare.String, err)
		}
		inv.Terms.RevenueSharePercent = &d
	}
	return &inv, nil
}

// LinkPaymentTransaction records which payment transaction carries the
// investment's charge. Idempotent; re-linking the same payment is a
// no-op.
func (s *Service) LinkPaymentTransaction(ctx context.Context, investmentId, paymentId string) error {
	result, err := s.db.ExecContext(ctx, queryLinkInvestmentPayment, paymentId, investmentId)
	if err != nil {
		return fmt.Errorf("failed to link payment transaction: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: investment %s", store.ErrNotFound, investmentId)
	}
	return nil
}

// UpdateInvestmentStatus performs a guarded transition: the update only
// lands if the row is still in the expected source state and the move is
// allowed by the closed transition table. The audit entry is written in
// the same transaction.
func (s *Service) UpdateInvestmentStatus(ctx context.Context, p store.StatusUpdateParams) error {
	if !p.From.Valid() || !p.To.Valid() {
		return fmt.Errorf("%w: unknown status %s -> %s", store.ErrInvalidTransition, p.From, p.To)
	}
	if !p.From.CanTransitionTo(p.To) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, p.From, p.To)
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkRefTx(ctx, tx, p.Ref); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, queryUpdateInvestmentStatus,
		string(p.To), p.InvestmentId, string(p.From))
	if err != nil {
		return fmt.Errorf("failed to update investment status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either the row moved on concurrently or never was in p.From.
		return fmt.Errorf("investment %s not in state %s - %w",
			p.InvestmentId, p.From, store.ErrConcurrentModification)
	}

	if err := appendActivityTx(ctx, tx, &models.ActivityEntry{
		Actor:      p.Actor,
		Action:     "investment.transition",
		EntityType: "investment",
		EntityId:   p.InvestmentId,
		Ref:        p.Ref,
		Before:     string(p.From),
		After:      string(p.To),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Investment transitioned",
		zap.String("investment_id", p.InvestmentId),
		zap.String("from", string(p.From)),
		zap.String("to", string(p.To)),
		zap.String("actor", p.Actor))
	return nil
}

// ListExpiredPending returns pending/processing investments whose intent
// expiry has passed, oldest first. Used only by the sweep, never by the
// request path.
func (s *Service) ListExpiredPending(ctx context.Context, asOf time.Time, limit int) ([]models.Investment, error) {
	rows, err := s.db.QueryContext(ctx, queryListExpiredPending, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired investments: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var investments []models.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investment rows: %w", err)
	}
	return investments, nil
}
