package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invest-engine-go/internal/exchange"
	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Gateway abstracts the external payment processors behind one surface:
// processor selection, currency-conversion fallback, versioned fee
// computation, and idempotent intent creation.
type Gateway struct {
	processors []Processor
	fees       *FeeTable
	exchange   *exchange.Adapter
	store      store.EngineStore
	intentTTL  time.Duration
}

// NewGateway creates a gateway over the given processor adapters.
func NewGateway(processors []Processor, fees *FeeTable, ex *exchange.Adapter, s store.EngineStore, intentTTL time.Duration) *Gateway {
	return &Gateway{
		processors: processors,
		fees:       fees,
		exchange:   ex,
		store:      s,
		intentTTL:  intentTTL,
	}
}

// Quote is the resolved charge plan for an investment amount: which
// processor, what amount in which currency after any conversion, and the
// full fee breakdown. Quoting is resolved before any ledger reservation
// so a conversion failure never leaves state to unwind.
type Quote struct {
	Processor      Processor
	GrossAmount    decimal.Decimal
	ChargeAmount   decimal.Decimal
	ChargeCurrency string
	Rate           decimal.Decimal
	Fees           models.FeeBreakdown
}

// PrepareQuote selects a processor for the requested currency, falling
// back to conversion into the first processor's settlement currency when
// none supports it directly, and computes fees from the published table.
func (g *Gateway) PrepareQuote(ctx context.Context, amount decimal.Decimal, currency string) (*Quote, error) {
	if len(g.processors) == 0 {
		return nil, fmt.Errorf("%w: no processors configured", ErrProcessor)
	}

	for _, p := range g.processors {
		if !p.Supports(currency) {
			continue
		}
		fees, err := g.fees.Compute(p.Name(), amount)
		if err != nil {
			return nil, err
		}
		return &Quote{
			Processor:      p,
			GrossAmount:    amount,
			ChargeAmount:   amount,
			ChargeCurrency: currency,
			Rate:           decimal.NewFromInt(1),
			Fees:           fees,
		}, nil
	}

	// No processor takes the requested currency: convert into the first
	// processor's settlement currency.
	fallback := g.processors[0]
	settlement := settlementCurrency(fallback)
	if settlement == "" {
		return nil, fmt.Errorf("%w: processor %s declares no currencies", ErrProcessor, fallback.Name())
	}

	converted, rate, err := g.exchange.Convert(ctx, amount, currency, settlement)
	if err != nil {
		return nil, err
	}
	converted = converted.Round(2)

	fees, err := g.fees.Compute(fallback.Name(), converted)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Quoting with currency conversion fallback",
		zap.String("processor", fallback.Name()),
		zap.String("from", currency),
		zap.String("to", settlement),
		zap.String("rate", rate.String()),
		zap.String("charge_amount", converted.String()))

	return &Quote{
		Processor:      fallback,
		GrossAmount:    amount,
		ChargeAmount:   converted,
		ChargeCurrency: settlement,
		Rate:           rate,
		Fees:           fees,
	}, nil
}

// CreateIntent opens a processor intent for the investment and persists
// the payment transaction record. Idempotent on the investment id: a
// retried call returns the already-created record without opening a
// second intent.
func (g *Gateway) CreateIntent(ctx context.Context, investmentId string, q *Quote) (*models.PaymentTransaction, string, error) {
	existing, err := g.store.GetPaymentByInvestment(ctx, investmentId)
	if err == nil {
		zap.L().Info("Reusing existing payment intent for investment",
			zap.String("investment_id", investmentId),
			zap.String("intent_id", existing.IntentId))
		return existing, "", nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, "", fmt.Errorf("failed idempotency lookup: %w", err)
	}

	intent, err := q.Processor.CreateIntent(ctx, CreateIntentParams{
		Amount:         q.ChargeAmount,
		Currency:       q.ChargeCurrency,
		IdempotencyKey: investmentId,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrProcessor, q.Processor.Name(), err)
	}

	expiresAt := intent.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().UTC().Add(g.intentTTL)
	}

	pt := &models.PaymentTransaction{
		Id:             uuid.New().String(),
		InvestmentId:   investmentId,
		Processor:      q.Processor.Name(),
		IntentId:       intent.IntentId,
		Status:         models.PaymentPending,
		Amount:         q.ChargeAmount,
		Currency:       q.ChargeCurrency,
		Fees:           q.Fees,
		IdempotencyKey: investmentId,
		ExpiresAt:      expiresAt,
	}
	if err := g.store.CreatePaymentTransaction(ctx, pt); err != nil {
		return nil, "", fmt.Errorf("failed to persist payment transaction: %w", err)
	}

	zap.L().Info("Payment intent created",
		zap.String("investment_id", investmentId),
		zap.String("processor", q.Processor.Name()),
		zap.String("intent_id", intent.IntentId),
		zap.String("amount", q.ChargeAmount.String()),
		zap.String("currency", q.ChargeCurrency),
		zap.String("fee_version", q.Fees.RateVersion))

	return pt, intent.ClientAction, nil
}

// Verify performs a synchronous status lookup against the processor that
// owns the intent and returns the canonical status. Used for polling when
// webhook delivery is delayed or missing.
func (g *Gateway) Verify(ctx context.Context, intentId string) (models.PaymentStatus, error) {
	pt, err := g.store.GetPaymentByIntent(ctx, intentId)
	if err != nil {
		return "", err
	}
	p, err := g.ProcessorByName(pt.Processor)
	if err != nil {
		return "", err
	}
	status, err := p.Verify(ctx, intentId)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProcessor, pt.Processor, err)
	}
	return status, nil
}

// ProcessorByName resolves a configured processor adapter.
func (g *Gateway) ProcessorByName(name string) (Processor, error) {
	for _, p := range g.processors {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown processor %s", ErrProcessor, name)
}

// settlementCurrency is the first currency a processor declares, used as
// the conversion target in the fallback path.
func settlementCurrency(p Processor) string {
	currencies := p.Currencies()
	if len(currencies) == 0 {
		return ""
	}
	return currencies[0]
}
