package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// appendActivityTx writes one audit entry inside an open transaction so
// the entry commits or rolls back together with the mutation it records.
func appendActivityTx(ctx context.Context, tx *sql.Tx, entry *models.ActivityEntry) error {
	if entry.Id == "" {
		entry.Id = uuid.New().String()
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	var ref any
	if entry.Ref != "" {
		ref = entry.Ref
	}
	_, err := tx.ExecContext(ctx, queryInsertActivity,
		entry.Id, entry.Actor, entry.Action, entry.EntityType, entry.EntityId,
		ref, entry.Before, entry.After)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: ref %s", store.ErrDuplicateRef, entry.Ref)
		}
		return fmt.Errorf("failed to append activity entry: %w", err)
	}
	return nil
}

// AppendActivity records a standalone audit entry (compliance decisions,
// notifications, sweep actions). Ledger mutations write theirs inside the
// mutation transaction instead.
func (s *Service) AppendActivity(ctx context.Context, entry *models.ActivityEntry) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := appendActivityTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListActivity returns the newest audit entries for one entity. Read for
// audit and reconciliation only; no component makes live decisions on it.
func (s *Service) ListActivity(ctx context.Context, entityType, entityId string, limit int) ([]models.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryListActivity, entityType, entityId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		err := rows.Scan(&e.Id, &e.Actor, &e.Action, &e.EntityType, &e.EntityId,
			&e.Ref, &e.Before, &e.After, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return entries, nil
}
