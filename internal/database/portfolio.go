package database

import (
	"context"
	"database/sql"
	"fmt"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApplyPortfolioDelta adjusts one investor's completed-investment
// aggregate for a currency. Positive deltas come from settlement,
// negative ones from refunds.
func (s *Service) ApplyPortfolioDelta(ctx context.Context, p store.PortfolioDeltaParams) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rowId, totalStr string
	var active int
	err = tx.QueryRowContext(ctx, queryGetPortfolioRow, p.InvestorId, p.Currency).
		Scan(&rowId, &totalStr, &active)

	var total decimal.Decimal
	if err == sql.ErrNoRows {
		rowId = uuid.New().String()
		total = decimal.Zero
		active = 0
		if _, err := tx.ExecContext(ctx, queryInsertPortfolioRow,
			rowId, p.InvestorId, p.Currency, "0", 0); err != nil {
			return fmt.Errorf("failed to create portfolio row: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to read portfolio row: %w", err)
	} else {
		if total, err = decimal.NewFromString(totalStr); err != nil {
			return fmt.Errorf("failed to parse portfolio total %q: %w", totalStr, err)
		}
	}

	newTotal := total.Add(p.AmountDelta)
	newActive := active + p.ActiveDelta
	if newTotal.IsNegative() || newActive < 0 {
		return fmt.Errorf("portfolio delta would drive aggregate negative (total %s, active %d)",
			newTotal.String(), newActive)
	}

	if _, err := tx.ExecContext(ctx, queryUpdatePortfolioRow,
		newTotal.String(), newActive, rowId); err != nil {
		return fmt.Errorf("failed to update portfolio row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Debug("Portfolio aggregate updated",
		zap.String("investor_id", p.InvestorId),
		zap.String("currency", p.Currency),
		zap.String("total_invested", newTotal.String()),
		zap.Int("active_investments", newActive))
	return nil
}

// GetPortfolio returns all per-currency aggregates for an investor.
func (s *Service) GetPortfolio(ctx context.Context, investorId string) ([]models.PortfolioAggregate, error) {
	rows, err := s.db.QueryContext(ctx, queryGetPortfolio, investorId)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var aggregates []models.PortfolioAggregate
	for rows.Next() {
		var agg models.PortfolioAggregate
		var totalStr string
		err := rows.Scan(&agg.InvestorId, &agg.Currency, &totalStr,
			&agg.ActiveInvestments, &agg.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio row: %w", err)
		}
		if agg.TotalInvested, err = decimal.NewFromString(totalStr); err != nil {
			return nil, fmt.Errorf("failed to parse portfolio total %q: %w", totalStr, err)
		}
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio rows: %w", err)
	}
	return aggregates, nil
}
