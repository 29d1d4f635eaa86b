package engine

import (
	"context"
	"errors"
	"time"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sweeper periodically scans pending investments past their intent expiry
// and resolves them. A timeout on the request path never fails an
// investment by itself; the sweep consults the processor as the source of
// truth before deciding, because the processor may still have completed
// the charge asynchronously.
type Sweeper struct {
	engine *Engine
	cfg    models.SweeperConfig
	stop   chan struct{}
	done   chan struct{}
}

// NewSweeper creates a sweeper over the engine.
func NewSweeper(e *Engine, cfg models.SweeperConfig) *Sweeper {
	return &Sweeper{
		engine: e,
		cfg:    cfg,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs one immediate pass to catch anything that expired while the
// process was down, then sweeps on the configured interval until Stop.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		zap.L().Info("Expiry sweeper started",
			zap.Duration("interval", s.cfg.Interval),
			zap.Int("batch_size", s.cfg.BatchSize))

		s.sweep(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				zap.L().Info("Expiry sweeper stopping")
				return
			case <-ctx.Done():
				zap.L().Info("Expiry sweeper context cancelled")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop signals the sweeper and waits for the in-flight pass to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.engine.store.ListExpiredPending(ctx, time.Now().UTC(), s.cfg.BatchSize)
	if err != nil {
		zap.L().Error("Failed to list expired investments", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	zap.L().Info("Sweeping expired investments", zap.Int("count", len(expired)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, inv := range expired {
		inv := inv
		g.Go(func() error {
			if err := s.resolve(gctx, &inv); err != nil {
				zap.L().Error("Failed to resolve expired investment",
					zap.String("investment_id", inv.Id),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// resolve decides one expired investment: apply the processor's terminal
// status if it has one, otherwise expire the attempt and release its
// reservations. A processor that cannot be reached leaves the investment
// for the next pass.
func (s *Sweeper) resolve(ctx context.Context, inv *models.Investment) error {
	pt, err := s.engine.store.GetPaymentByInvestment(ctx, inv.Id)
	if errors.Is(err, store.ErrNotFound) {
		// No intent was ever opened; nothing to verify.
		return s.engine.Expire(ctx, inv.Id)
	}
	if err != nil {
		return err
	}

	status, err := s.engine.gateway.Verify(ctx, pt.IntentId)
	if err != nil {
		zap.L().Warn("Processor unreachable during sweep, deferring",
			zap.String("investment_id", inv.Id),
			zap.String("intent_id", pt.IntentId),
			zap.Error(err))
		return nil
	}

	if status.Terminal() {
		return s.engine.ApplyPaymentStatus(ctx, inv.Id, status, pt.Sequence+1, "sweeper")
	}
	return s.engine.Expire(ctx, inv.Id)
}
