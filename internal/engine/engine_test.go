package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"invest-engine-go/internal/compliance"
	"invest-engine-go/internal/database"
	"invest-engine-go/internal/exchange"
	"invest-engine-go/internal/ledger"
	"invest-engine-go/internal/models"
	"invest-engine-go/internal/notify"
	"invest-engine-go/internal/payments"
	"invest-engine-go/internal/store"

	"github.com/shopspring/decimal"
)

const harnessFees = `version: "2025-08-01"
platform:
  percent: "1.5"
  minimum: "2.00"
processors:
  - name: sandbox
    percent: "2.9"
    fixed: "0.30"
  - name: broken
    percent: "2.9"
    fixed: "0.30"
`

const harnessPolicy = `version: "2025-08-01"
large_transaction_threshold: "50000"
per_investment_limit: "100000"
annual_investment_limit: "500000"
restricted_countries:
  - KP
`

type harness struct {
	service  *database.Service
	profiles *compliance.StaticProfiles
	sandbox  *payments.SandboxProcessor
	engine   *Engine
}

// setupEngine wires a full engine over a throwaway database, a sandbox
// processor, and static collaborators. ttl controls how far in the
// future new intents expire; negative values make everything eligible
// for the sweep immediately.
func setupEngine(t *testing.T, ttl time.Duration, processors ...payments.Processor) *harness {
	t.Helper()
	dir := t.TempDir()

	feesPath := filepath.Join(dir, "fees.yaml")
	if err := os.WriteFile(feesPath, []byte(harnessFees), 0o644); err != nil {
		t.Fatalf("Failed to write fee table: %v", err)
	}
	policyPath := filepath.Join(dir, "compliance.yaml")
	if err := os.WriteFile(policyPath, []byte(harnessPolicy), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:            filepath.Join(dir, "engine_test.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { service.Close() })

	fees, err := payments.LoadFeeTable(feesPath)
	if err != nil {
		t.Fatalf("LoadFeeTable failed: %v", err)
	}
	policy, err := compliance.LoadPolicy(policyPath)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}

	source := exchange.NewStaticSource()
	source.SetRate("EUR", "USD", decimal.RequireFromString("1.10"))
	adapter := exchange.NewAdapter(source, exchange.NewMemoryCache(), 5*time.Minute)

	profiles := compliance.NewStaticProfiles()
	gate := compliance.NewGate(profiles, policy, service)

	sandbox := payments.NewSandboxProcessor("sandbox", "USD")
	if len(processors) == 0 {
		processors = []payments.Processor{sandbox}
	}
	gateway := payments.NewGateway(processors, fees, adapter, service, 30*time.Minute)

	ledgerCfg := models.LedgerConfig{MaxAttempts: 5, RetryBase: 2 * time.Millisecond}
	wallets := ledger.NewWalletLedger(service, ledgerCfg)
	opportunities := ledger.NewOpportunityLedger(service, ledgerCfg)

	eng := NewEngine(service, wallets, opportunities, gate, gateway, notify.NewLogNotifier(), ttl)
	return &harness{service: service, profiles: profiles, sandbox: sandbox, engine: eng}
}

// seedInvestor registers a verified profile and deposits funds.
func (h *harness) seedInvestor(t *testing.T, investorId string, available decimal.Decimal) {
	t.Helper()
	h.profiles.Put(models.InvestorProfile{
		InvestorId:     investorId,
		Verified:       true,
		Accredited:     true,
		Country:        "US",
		AnnualInvested: decimal.NewFromInt(10000),
	})
	if available.IsPositive() {
		if err := h.engine.wallets.Deposit(context.Background(), store.WalletMutationParams{
			UserId: investorId, Currency: "USD",
			Amount: available, Ref: "deposit:" + investorId, Actor: "test",
		}); err != nil {
			t.Fatalf("Deposit failed: %v", err)
		}
	}
}

func (h *harness) seedOpportunity(t *testing.T, id string, target decimal.Decimal) {
	t.Helper()
	if err := h.service.CreateOpportunity(context.Background(), &models.Opportunity{
		Id:            id,
		Name:          "Test Raise",
		Type:          models.OpportunityEquity,
		Currency:      "USD",
		TargetAmount:  target,
		MinimumTicket: decimal.NewFromInt(100),
		MaximumTicket: decimal.NewFromInt(50000),
		Status:        models.OpportunityActive,
	}); err != nil {
		t.Fatalf("CreateOpportunity failed: %v", err)
	}
}

func equityTerms() models.Terms {
	pct := decimal.RequireFromString("0.5")
	return models.Terms{EquityPercent: &pct}
}

func investParams(amount int64) InvestParams {
	return InvestParams{
		InvestorId:    "u1",
		OpportunityId: "opp1",
		Amount:        decimal.NewFromInt(amount),
		Terms:         equityTerms(),
	}
}

func TestInvestHappyPath(t *testing.T) {
	h := setupEngine(t, 30*time.Minute)
	h.seedInvestor(t, "u1", decimal.NewFromInt(10000))
	h.seedOpportunity(t, "opp1", decimal.NewFromInt(100000))
	ctx := context.Background()

	res, err := h.engine.Invest(ctx, investParams(1000))
	if err != nil {
		t.Fatalf("Invest failed: %v", err)
	}
	if res.Investment.Status != models.InvestmentPending {
		t.Errorf("Expected pending, got %s", res.Investment.Status)
	}
	if res.Payment.Status != models.PaymentPending {
		t.Errorf("Expected pending payment, got %s", res.Payment.Status)
	}
	if res.ClientAction == "" {
		t.Error("Expected a client action for the caller")
	}
	if res.Snapshot == nil || res.Investment.RiskSnapshotId != res.Snapshot.Id {
		t.Error("Investment must carry its risk snapshot")
	}

	// The payment link is persisted, not just set on the returned struct.
	stored, err := h.service.GetInvestment(ctx, res.Investment.Id)
	if err != nil {
		t.Fatalf("GetInvestment failed: %v", err)
	}
	if stored.PaymentTransactionId != res.Payment.Id {
		t.Errorf("Expected persisted payment link %s, got %q", res.Payment.Id, stored.PaymentTransactionId)
	}

	w, err := h.engine.wallets.Balance(ctx, "u1", "USD")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !w.Available.Equal(decimal.NewFromInt(9000)) || !w.Locked.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected 9000/1000, got %s/%s", w.Available.String(), w.Locked.String())
	}

	opp, err := h.service.GetOpportunity(ctx, "opp1")
	if err != nil {
		t.Fatalf("GetOpportunity failed: %v", err)
	}
	if !opp.CurrentAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected reserved 1000, got %s", opp.CurrentAmount.String())
	}
}

func TestInvestValidation(t *testing.T) {
	h := setupEngine(t, 30*time.Minute)
	h.seedInvestor(t, "u1", decimal.NewFromInt(10000))
	h.seedOpportunity(t, "opp1", decimal.NewFromInt(100000))
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*InvestParams)
	}{
		{"zero amount", func(p *InvestParams) { p.Amount = decimal.Zero }},
		{"below minimum ticket", func(p *InvestParams) { p.Amount = decimal.NewFromInt(50) }},
		{"above maximum ticket", func(p *InvestParams) { p.Amount = decimal.NewFromInt(60000) }},
		{"missing investor", func(p *InvestParams) { p.InvestorId = "" }},
		{"wrong terms branch", func(p *InvestParams) {
			months := 12
			p.Terms = models.Terms{TermMonths: &months}
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := investParams(1000)
			c.mutate(&p)
			if _, err := h.engine.Invest(ctx, p); !errors.Is(err, ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestInvestGateFailureHasNoSideEffects(t *testing.T) {
	h := setupEngine(t, 30*time.Minute)
	h.seedOpportunity(t, "opp1", decimal.NewFromInt(100000))
	h.profiles.Put(models.InvestorProfile{
		InvestorId: "u1", Verified: false, Country: "US",
		AnnualInvested: decimal.Zero,
	})
	ctx := context.Background()

	_, err := h.engine.Invest(ctx, investParams(1000))
	if !errors.Is(err, compliance.ErrNotEligible) {
		t.Fatalf("Expected ErrNotEligible, got %v", err)
	}

	opp, err := h.service.GetOpportunity(ctx, "opp1")
	if err != nil {
		t.Fatalf("GetOpportunity failed: %v", err)
	}
	if !opp.CurrentAmount.IsZero() {
		t.Errorf("Gate failure must not reserve capacity, got %s", opp.CurrentAmount.String())
	}
}

func TestInvestInsufficientFundsCompensates(t *testing.T) {
	h := setupEngine(t, 30*time.Minute)
	h.seedInvestor(t, "u1", decimal.NewFromInt(500))
	h.seedOpportunity(t, "opp1", decimal.NewFromInt(100000))
	ctx := context.Background()

	_, err := h.engine.Invest(ctx, investParams(1000))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	// The opportunity reservation taken before the wallet failure is
	// released again.
	opp, err := h.service.GetOpportunity(ctx, "opp1")
	if err != nil {
		t.Fatalf("GetOpportunity failed: %v", err)
	}
	if !opp.CurrentAmount.IsZero() {
		t.Errorf("Expected capacity released, got %s", opp.CurrentAmount.String())
	}

	w, err := h.engine.wallets.Balance(ctx, "u1", "USD")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !w.Available.Equal(decimal.NewFromInt(500)) || !w.Locked.IsZero() {
		t.Errorf("Expected 500/0, got %s/%s", w.Available.String(), w.Locked.String())
	}
}

// brokenProcessor accepts quotes but cannot open intents. Verify always
// errors, modelling an unreachable upstream.
type brokenProcessor struct{}

func (brokenProcessor) Name() string           { return "broken" }
func (brokenProcessor) Currencies() []string   { return []string{"USD"} }
func (brokenProcessor) Supports(c string) bool { return c == "USD" }
func (brokenProcessor) CreateIntent(context.Context, payments.CreateIntentParams) (*payments.Intent, error) {
	return nil, fmt.Errorf("connection refused")
}
func (brokenProcessor) Verify(context.Context, string) (models.PaymentStatus, error) {
	return "", fmt.Errorf("connection refused")
}
func (brokenProcessor) MapStatus(raw string) (models.PaymentStatus, bool) {
	status := models.PaymentStatus(raw)
	return status, status.Valid()
}

func TestInvestProcessorFailureCompensates(t *testing.T) {
	h := setupEngine(t, 30*time.Minute, brokenProcessor{})
	h.seedInvestor(t, "u1", decimal.NewFromInt(10000))
	h.seedOpportunity(t, "opp1", decimal.NewFromInt(100000))
	ctx := context.Background()

	_, err := h.engine.Invest(ctx, investParams(1000))
	if !errors.Is(err, payments.ErrProcessor) {
		t.Fatalf("Expected ErrProcessor, got %v", err)
	}

	// Both reservations unwound, nothing stranded.
	opp, err := h.service.GetOpportunity(ctx, "opp1")
	if err != nil {
		t.Fatalf("GetOpportunity failed: %v", err)
	}
	if !opp.CurrentAmount.IsZero() {
		t.Errorf("Expected capacity released, got %s", opp.CurrentAmount.String())
	}
	w, err := h.engine.wallets.Balance(ctx, "u1", "USD")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !w.Available.Equal(decimal.NewFromInt(10000)) || !w.Locked.IsZero() {
		t.Errorf("Expected 10000/0, got %s/%s", w.Available.String(), w.Locked.String())
	}
}

func TestCancelReleasesReservations(t *testing.T) {
	h := setupEngine(t, 30*time.Minute)
	h.seedInvestor(t, "u1", decimal.NewFromInt(10000))
	h.seedOpportunity(t, "opp1", decimal.NewFromInt(100000))
	ctx := context.Background()

	res, err := h.engine.Invest(ctx, investParams(1000))
	if err != nil {
		t.Fatalf("Invest failed: %v", err)
	}

	if err := h.engine.Cancel(ctx, res.Investment.Id, "u1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	inv, err := h.service.GetInvestment(ctx, res.Investment.Id)
	if err != nil {
		t.Fatalf("GetInvestment failed: %v", err)
	}
	if inv.Status != models.InvestmentCancelled {
		t.Errorf("Expected cancelled, got %s", inv.Status)
	}

	w, _ := h.engine.wallets.Balance(ctx, "u1", "USD")
	if !w.Available.Equal(decimal.NewFromInt(10000)) || !w.Locked.IsZero() {
		t.Errorf("Expected 10000/0, got %s/%s", w.Available.String(), w.Locked.String())
	}
	opp, _ := h.service.GetOpportunity(ctx, "opp1")
	if !opp.CurrentAmount.IsZero() {
		t.Errorf("Expected capacity released, got %s", opp.CurrentAmount.String())
	}

	// A second cancel is refused: the investment is already terminal.
	if err := h.engine.Cancel(ctx, res.Investment.Id, "u1"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

// settleInvestment drives a fresh investment to completed through the
// canonical payment-status path.
func settleInvestment(t *testing.T, h *harness) *models.Investment {
	t.Helper()
	ctx := context.Background()

	res, err := h.engine.Invest(ctx, investParams(1000))
	if err != nil {
		t.Fatalf("Invest failed: %v", err)
	}
	if err := h.sandbox.Complete(res.Payment.IntentId); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := h.engine.ApplyPaymentStatus(ctx, res.Investment.Id, models.PaymentCompleted, 1, "webhook"); err != nil {
		t.Fatalf("ApplyPaymentStatus failed: %v", err)
	}
	inv, err := h.service.GetInvestment(ctx, res.Investment.Id)
	if err != nil {
		t.Fatalf("GetInvestment failed: %v", err)
	}
	return inv
}

func TestRefundCompletedInvestment(t *testing.T) {
	h := setupEngine(t, 30*time.Minute)
	h.seedInvestor(t, "u1", decimal.NewFromInt(10000))
	h.seedOpportunity(t, "opp1", decimal.NewFromInt(100000))
	ctx := context.Background()

	inv := settleInvestment(t, h)
	if inv.Status != models.InvestmentCompleted {
		t.Fatalf("Expected completed, got %s", inv.Status)
	}

	if err := h.engine.Refund(ctx, inv.Id, "operator"); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	got, _ := h.service.GetInvestment(ctx, inv.Id)
	if got.Status != models.InvestmentRefunded {
		t.Errorf("Expected refunded, got %s", got.Status)
	}

	// Committed funds come back as available, the funding counter drops,
	// and the portfolio aggregate is reversed.
	w, _ := h.engine.wallets.Balance(ctx, "u1", "USD")
	if !w.Available.Equal(decimal.NewFromInt(10000)) || !w.Locked.IsZero() {
		t.Errorf("Expected 10000/0, got %s/%s", w.Available.String(), w.Locked.String())
	}
	opp, _ := h.service.GetOpportunity(ctx, "opp1")
	if !opp.CurrentAmount.IsZero() {
		t.Errorf("Expected funding released, got %s", opp.CurrentAmount.String())
	}
	aggs, err := h.service.GetPortfolio(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPortfolio failed: %v", err)
	}
	for _, a := range aggs {
		if !a.TotalInvested.IsZero() || a.ActiveInvestments != 0 {
			t.Errorf("Expected empty portfolio, got %+v", a)
		}
	}
}

func TestRefundRequiresCompleted(t *testing.T) {
	h := setupEngine(t, 30*time.Minute)
	h.seedInvestor(t, "u1", decimal.NewFromInt(10000))
	h.seedOpportunity(t, "opp1", decimal.NewFromInt(100000))
	ctx := context.Background()

	res, err := h.engine.Invest(ctx, investParams(1000))
	if err != nil {
		t.Fatalf("Invest failed: %v", err)
	}
	if err := h.engine.Refund(ctx, res.Investment.Id, "operator"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for pending refund, got %v", err)
	}
}

func TestDisputeKeepsFundsCommitted(t *testing.T) {
	h := setupEngine(t, 30*time.Minute)
	h.seedInvestor(t, "u1", decimal.NewFromInt(10000))
	h.seedOpportunity(t, "opp1", decimal.NewFromInt(100000))
	ctx := context.Background()

	inv := settleInvestment(t, h)
	if err := h.engine.Dispute(ctx, inv.Id, "u1"); err != nil {
		t.Fatalf("Dispute failed: %v", err)
	}

	got, _ := h.service.GetInvestment(ctx, inv.Id)
	if got.Status != models.InvestmentDisputed {
		t.Errorf("Expected disputed, got %s", got.Status)
	}

	// Unlike a refund, disputed funds stay spent until resolution.
	w, _ := h.engine.wallets.Balance(ctx, "u1", "USD")
	if !w.Available.Equal(decimal.NewFromInt(9000)) || !w.Locked.IsZero() {
		t.Errorf("Expected 9000/0, got %s/%s", w.Available.String(), w.Locked.String())
	}
	opp, _ := h.service.GetOpportunity(ctx, "opp1")
	if !opp.CurrentAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected funding kept, got %s", opp.CurrentAmount.String())
	}
}
