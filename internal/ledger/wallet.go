package ledger

import (
	"context"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/shopspring/decimal"
)

// WalletLedger is the single permitted mutation path for (user, currency)
// wallet balances. Each operation is one atomic store transaction wrapped
// in the bounded retry loop.
type WalletLedger struct {
	store store.EngineStore
	cfg   models.LedgerConfig
}

// NewWalletLedger creates a wallet ledger over the given store.
func NewWalletLedger(s store.EngineStore, cfg models.LedgerConfig) *WalletLedger {
	return &WalletLedger{store: s, cfg: cfg}
}

// Deposit credits available funds (external funding completed).
func (w *WalletLedger) Deposit(ctx context.Context, p store.WalletMutationParams) error {
	return withRetry(ctx, w.cfg.MaxAttempts, w.cfg.RetryBase, func() error {
		return w.store.DepositFunds(ctx, p)
	})
}

// Reserve moves amount from available to locked.
func (w *WalletLedger) Reserve(ctx context.Context, p store.WalletMutationParams) error {
	return withRetry(ctx, w.cfg.MaxAttempts, w.cfg.RetryBase, func() error {
		return w.store.ReserveFunds(ctx, p)
	})
}

// Commit removes amount from locked permanently.
func (w *WalletLedger) Commit(ctx context.Context, p store.WalletMutationParams) error {
	return withRetry(ctx, w.cfg.MaxAttempts, w.cfg.RetryBase, func() error {
		return w.store.CommitFunds(ctx, p)
	})
}

// Release moves amount back from locked to available.
func (w *WalletLedger) Release(ctx context.Context, p store.WalletMutationParams) error {
	return withRetry(ctx, w.cfg.MaxAttempts, w.cfg.RetryBase, func() error {
		return w.store.ReleaseFunds(ctx, p)
	})
}

// Refund re-credits previously committed funds into available.
func (w *WalletLedger) Refund(ctx context.Context, p store.WalletMutationParams) error {
	return withRetry(ctx, w.cfg.MaxAttempts, w.cfg.RetryBase, func() error {
		return w.store.RefundFunds(ctx, p)
	})
}

// Balance returns the current wallet for (userId, currency).
func (w *WalletLedger) Balance(ctx context.Context, userId, currency string) (*models.Wallet, error) {
	return w.store.GetWallet(ctx, userId, currency)
}

// Available returns just the spendable balance.
func (w *WalletLedger) Available(ctx context.Context, userId, currency string) (decimal.Decimal, error) {
	wallet, err := w.store.GetWallet(ctx, userId, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Available, nil
}
