package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"go.uber.org/zap"
)

// RecordProcessedEvent inserts the permanent de-duplication record for a
// webhook event. A second insert with the same event id fails with
// ErrDuplicateEvent; the handler treats that as an idempotent no-op.
func (s *Service) RecordProcessedEvent(ctx context.Context, ev *models.ProcessedEvent) error {
	_, err := s.db.ExecContext(ctx, queryInsertProcessedEvent,
		ev.EventId, ev.InvestmentId, string(ev.CanonicalStatus), ev.Sequence, ev.Outcome)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			zap.L().Warn("Duplicate webhook event id",
				zap.String("event_id", ev.EventId))
			return fmt.Errorf("%w: event %s", store.ErrDuplicateEvent, ev.EventId)
		}
		return fmt.Errorf("failed to record processed event: %w", err)
	}
	return nil
}

// GetProcessedEvent returns the recorded outcome for an event id, or
// ErrNotFound when the event has not been seen.
func (s *Service) GetProcessedEvent(ctx context.Context, eventId string) (*models.ProcessedEvent, error) {
	var ev models.ProcessedEvent
	var status string
	err := s.db.QueryRowContext(ctx, queryGetProcessedEvent, eventId).
		Scan(&ev.EventId, &ev.InvestmentId, &status, &ev.Sequence, &ev.Outcome, &ev.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: event %s", store.ErrNotFound, eventId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processed event: %w", err)
	}
	ev.CanonicalStatus = models.PaymentStatus(status)
	return &ev, nil
}
