package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/shopspring/decimal"
)

// SaveRiskSnapshot persists an immutable risk snapshot. There is no
// update path: re-evaluation creates a new row.
func (s *Service) SaveRiskSnapshot(ctx context.Context, snap *models.RiskSnapshot) error {
	manual := 0
	if snap.ManualReviewRequired {
		manual = 1
	}
	_, err := s.db.ExecContext(ctx, queryInsertSnapshot,
		snap.Id, snap.InvestorId, snap.OpportunityId, snap.Amount.String(),
		string(snap.Level), snap.Score, strings.Join(snap.Flags, ","), manual)
	if err != nil {
		return fmt.Errorf("failed to insert risk snapshot: %w", err)
	}
	return nil
}

// GetRiskSnapshot returns a snapshot by id.
func (s *Service) GetRiskSnapshot(ctx context.Context, id string) (*models.RiskSnapshot, error) {
	var snap models.RiskSnapshot
	var amountStr, level, flags string
	var manual int
	err := s.db.QueryRowContext(ctx, queryGetSnapshot, id).
		Scan(&snap.Id, &snap.InvestorId, &snap.OpportunityId, &amountStr,
			&level, &snap.Score, &flags, &manual, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: risk snapshot %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk snapshot: %w", err)
	}
	snap.Level = models.RiskLevel(level)
	snap.ManualReviewRequired = manual != 0
	if flags != "" {
		snap.Flags = strings.Split(flags, ",")
	}
	if snap.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot amount %q: %w", amountStr, err)
	}
	return &snap, nil
}
