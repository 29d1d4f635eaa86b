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

// walletOp identifies one of the wallet ledger's atomic operations.
type walletOp string

const (
	walletDeposit walletOp = "wallet.deposit"
	walletReserve walletOp = "wallet.reserve"
	walletCommit  walletOp = "wallet.commit"
	walletRelease walletOp = "wallet.release"
	walletRefund  walletOp = "wallet.refund"
)

// GetWallet returns the wallet for (userId, currency). A missing row is a
// zero-balance wallet, mirroring how balances behave before first funding.
func (s *Service) GetWallet(ctx context.Context, userId, currency string) (*models.Wallet, error) {
	var w models.Wallet
	var availableStr, lockedStr string
	err := s.db.QueryRowContext(ctx, queryGetWallet, userId, currency).
		Scan(&w.Id, &w.UserId, &w.Currency, &availableStr, &lockedStr, &w.Version, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return &models.Wallet{
			UserId:    userId,
			Currency:  currency,
			Available: decimal.Zero,
			Locked:    decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	if w.Available, err = decimal.NewFromString(availableStr); err != nil {
		return nil, fmt.Errorf("failed to parse available balance %q: %w", availableStr, err)
	}
	if w.Locked, err = decimal.NewFromString(lockedStr); err != nil {
		return nil, fmt.Errorf("failed to parse locked balance %q: %w", lockedStr, err)
	}
	return &w, nil
}

// ListWallets returns all wallets a user holds, ordered by currency.
func (s *Service) ListWallets(ctx context.Context, userId string) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryListWallets, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var wallets []models.Wallet
	for rows.Next() {
		var w models.Wallet
		var availableStr, lockedStr string
		if err := rows.Scan(&w.Id, &w.UserId, &w.Currency, &availableStr, &lockedStr, &w.Version, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		if w.Available, err = decimal.NewFromString(availableStr); err != nil {
			return nil, fmt.Errorf("failed to parse available balance %q: %w", availableStr, err)
		}
		if w.Locked, err = decimal.NewFromString(lockedStr); err != nil {
			return nil, fmt.Errorf("failed to parse locked balance %q: %w", lockedStr, err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	return wallets, nil
}

// DepositFunds credits available funds. Creates the wallet row on first use.
func (s *Service) DepositFunds(ctx context.Context, p store.WalletMutationParams) error {
	return s.mutateWallet(ctx, p, walletDeposit)
}

// ReserveFunds atomically moves amount from available to locked, failing
// with ErrInsufficientFunds when available < amount.
func (s *Service) ReserveFunds(ctx context.Context, p store.WalletMutationParams) error {
	return s.mutateWallet(ctx, p, walletReserve)
}

// CommitFunds removes amount from locked permanently (funds spent).
func (s *Service) CommitFunds(ctx context.Context, p store.WalletMutationParams) error {
	return s.mutateWallet(ctx, p, walletCommit)
}

// ReleaseFunds moves amount back from locked to available (reservation
// abandoned).
func (s *Service) ReleaseFunds(ctx context.Context, p store.WalletMutationParams) error {
	return s.mutateWallet(ctx, p, walletRelease)
}

// RefundFunds re-credits previously committed funds into available.
func (s *Service) RefundFunds(ctx context.Context, p store.WalletMutationParams) error {
	return s.mutateWallet(ctx, p, walletRefund)
}

// mutateWallet runs one atomic balance mutation on a single (user, currency)
// key: duplicate-ref check, read with version, balance math, optimistic
// update, and the audit entry, all inside the same transaction.
func (s *Service) mutateWallet(ctx context.Context, p store.WalletMutationParams, op walletOp) error {
	if p.UserId == "" || p.Currency == "" {
		return fmt.Errorf("wallet mutation requires user id and currency")
	}
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("wallet mutation amount must be positive, got %s", p.Amount.String())
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkRefTx(ctx, tx, p.Ref); err != nil {
		return err
	}

	// Read current balances, creating the row on first touch.
	var walletId, availableStr, lockedStr string
	var version int64
	var updatedAt sql.NullTime
	err = tx.QueryRowContext(ctx, queryGetWallet, p.UserId, p.Currency).
		Scan(&walletId, new(string), new(string), &availableStr, &lockedStr, &version, &updatedAt)

	var available, locked decimal.Decimal
	if err == sql.ErrNoRows {
		walletId = uuid.New().String()
		available, locked = decimal.Zero, decimal.Zero
		version = 1
		if _, err := tx.ExecContext(ctx, queryInsertWallet, walletId, p.UserId, p.Currency); err != nil {
			return fmt.Errorf("failed to create wallet: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to read wallet: %w", err)
	} else {
		if available, err = decimal.NewFromString(availableStr); err != nil {
			return fmt.Errorf("failed to parse available balance %q: %w", availableStr, err)
		}
		if locked, err = decimal.NewFromString(lockedStr); err != nil {
			return fmt.Errorf("failed to parse locked balance %q: %w", lockedStr, err)
		}
	}

	newAvailable, newLocked := available, locked
	switch op {
	case walletDeposit, walletRefund:
		newAvailable = available.Add(p.Amount)
	case walletReserve:
		if available.LessThan(p.Amount) {
			return fmt.Errorf("%w: available %s, requested %s",
				store.ErrInsufficientFunds, available.String(), p.Amount.String())
		}
		newAvailable = available.Sub(p.Amount)
		newLocked = locked.Add(p.Amount)
	case walletCommit:
		if locked.LessThan(p.Amount) {
			return fmt.Errorf("%w: locked %s, requested %s",
				store.ErrInsufficientLocked, locked.String(), p.Amount.String())
		}
		newLocked = locked.Sub(p.Amount)
	case walletRelease:
		if locked.LessThan(p.Amount) {
			return fmt.Errorf("%w: locked %s, requested %s",
				store.ErrInsufficientLocked, locked.String(), p.Amount.String())
		}
		newLocked = locked.Sub(p.Amount)
		newAvailable = available.Add(p.Amount)
	default:
		return fmt.Errorf("unknown wallet operation: %s", op)
	}

	result, err := tx.ExecContext(ctx, queryUpdateWalletBalances,
		newAvailable.String(), newLocked.String(), p.UserId, p.Currency, version)
	if err != nil {
		return fmt.Errorf("failed to update wallet balances: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet update failed - %w", store.ErrConcurrentModification)
	}

	if err := appendActivityTx(ctx, tx, &models.ActivityEntry{
		Actor:      p.Actor,
		Action:     string(op),
		EntityType: "wallet",
		EntityId:   walletId,
		Ref:        p.Ref,
		Before:     balanceSnapshot(available, locked),
		After:      balanceSnapshot(newAvailable, newLocked),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Wallet mutation applied",
		zap.String("op", string(op)),
		zap.String("user_id", p.UserId),
		zap.String("currency", p.Currency),
		zap.String("amount", p.Amount.String()),
		zap.String("available", newAvailable.String()),
		zap.String("locked", newLocked.String()))

	return nil
}

func balanceSnapshot(available, locked decimal.Decimal) string {
	return fmt.Sprintf(`{"available":"%s","locked":"%s"}`, available.String(), locked.String())
}
