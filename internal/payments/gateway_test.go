package payments

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"invest-engine-go/internal/database"
	"invest-engine-go/internal/exchange"
	"invest-engine-go/internal/models"

	"github.com/shopspring/decimal"
)

func setupGateway(t *testing.T, processors ...Processor) (*Gateway, *database.Service) {
	t.Helper()

	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "gateway_test.db"),
		MaxOpenConns:    2,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { service.Close() })

	source := exchange.NewStaticSource()
	source.SetRate("EUR", "USD", decimal.RequireFromString("1.10"))
	adapter := exchange.NewAdapter(source, exchange.NewMemoryCache(), 5*time.Minute)

	return NewGateway(processors, loadTestFeeTable(t), adapter, service, 30*time.Minute), service
}

func TestPrepareQuoteDirect(t *testing.T) {
	gateway, _ := setupGateway(t, NewSandboxProcessor("sandbox", "USD"))

	q, err := gateway.PrepareQuote(context.Background(), decimal.NewFromInt(1000), "USD")
	if err != nil {
		t.Fatalf("PrepareQuote failed: %v", err)
	}
	if q.Processor.Name() != "sandbox" {
		t.Errorf("Expected sandbox processor, got %s", q.Processor.Name())
	}
	if !q.ChargeAmount.Equal(decimal.NewFromInt(1000)) || q.ChargeCurrency != "USD" {
		t.Errorf("Direct quote must not convert: %s %s", q.ChargeAmount.String(), q.ChargeCurrency)
	}
	if !q.Rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected rate 1, got %s", q.Rate.String())
	}
	if !q.Fees.NetAmount.Equal(decimal.RequireFromString("955.70")) {
		t.Errorf("Expected net 955.70, got %s", q.Fees.NetAmount.String())
	}
}

func TestPrepareQuoteConversionFallback(t *testing.T) {
	gateway, _ := setupGateway(t, NewSandboxProcessor("sandbox", "USD"))

	// No processor takes EUR: the charge converts into the first
	// processor's settlement currency.
	q, err := gateway.PrepareQuote(context.Background(), decimal.NewFromInt(1000), "EUR")
	if err != nil {
		t.Fatalf("PrepareQuote failed: %v", err)
	}
	if q.ChargeCurrency != "USD" {
		t.Errorf("Expected charge in USD, got %s", q.ChargeCurrency)
	}
	if !q.ChargeAmount.Equal(decimal.RequireFromString("1100")) {
		t.Errorf("Expected 1100, got %s", q.ChargeAmount.String())
	}
	if !q.Rate.Equal(decimal.RequireFromString("1.10")) {
		t.Errorf("Expected rate 1.10, got %s", q.Rate.String())
	}
	if !q.GrossAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Gross amount must stay in the requested currency: %s", q.GrossAmount.String())
	}
	// Fees are computed on the charged amount, not the gross.
	if !q.Fees.ProcessorFee.Equal(decimal.RequireFromString("32.20")) {
		t.Errorf("Expected processor fee 32.20, got %s", q.Fees.ProcessorFee.String())
	}
}

func TestPrepareQuoteNoRateFailsClosed(t *testing.T) {
	gateway, _ := setupGateway(t, NewSandboxProcessor("sandbox", "USD"))

	// GBP has no published rate; quoting must fail before anything is
	// reserved or persisted.
	if _, err := gateway.PrepareQuote(context.Background(), decimal.NewFromInt(1000), "GBP"); err == nil {
		t.Fatal("Expected quote failure for unconvertible currency")
	}
}

func TestCreateIntentIdempotent(t *testing.T) {
	gateway, _ := setupGateway(t, NewSandboxProcessor("sandbox", "USD"))
	ctx := context.Background()

	q, err := gateway.PrepareQuote(ctx, decimal.NewFromInt(1000), "USD")
	if err != nil {
		t.Fatalf("PrepareQuote failed: %v", err)
	}

	first, action, err := gateway.CreateIntent(ctx, "inv1", q)
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}
	if action == "" {
		t.Error("Expected a client action on first creation")
	}
	if first.Status != models.PaymentPending {
		t.Errorf("Expected pending, got %s", first.Status)
	}

	second, _, err := gateway.CreateIntent(ctx, "inv1", q)
	if err != nil {
		t.Fatalf("Retried CreateIntent failed: %v", err)
	}
	if second.Id != first.Id || second.IntentId != first.IntentId {
		t.Errorf("Retry opened a second intent: %s vs %s", second.IntentId, first.IntentId)
	}
}

func TestGatewayVerify(t *testing.T) {
	sandbox := NewSandboxProcessor("sandbox", "USD")
	gateway, _ := setupGateway(t, sandbox)
	ctx := context.Background()

	q, err := gateway.PrepareQuote(ctx, decimal.NewFromInt(1000), "USD")
	if err != nil {
		t.Fatalf("PrepareQuote failed: %v", err)
	}
	pt, _, err := gateway.CreateIntent(ctx, "inv1", q)
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	status, err := gateway.Verify(ctx, pt.IntentId)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if status != models.PaymentPending {
		t.Errorf("Expected pending, got %s", status)
	}

	if err := sandbox.Complete(pt.IntentId); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	status, err = gateway.Verify(ctx, pt.IntentId)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if status != models.PaymentCompleted {
		t.Errorf("Expected completed, got %s", status)
	}
}

func TestSandboxIntentDedup(t *testing.T) {
	sandbox := NewSandboxProcessor("sandbox", "USD")
	ctx := context.Background()

	first, err := sandbox.CreateIntent(ctx, CreateIntentParams{
		Amount: decimal.NewFromInt(100), Currency: "USD", IdempotencyKey: "key1",
	})
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}
	second, err := sandbox.CreateIntent(ctx, CreateIntentParams{
		Amount: decimal.NewFromInt(100), Currency: "USD", IdempotencyKey: "key1",
	})
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}
	if second.IntentId != first.IntentId {
		t.Errorf("Same key must return the same intent: %s vs %s", second.IntentId, first.IntentId)
	}
}
