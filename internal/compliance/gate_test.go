package compliance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"invest-engine-go/internal/database"
	"invest-engine-go/internal/models"

	"github.com/shopspring/decimal"
)

const testPolicy = `version: "2025-08-01"
large_transaction_threshold: "50000"
per_investment_limit: "100000"
annual_investment_limit: "500000"
restricted_countries:
  - KP
  - IR
`

func loadTestPolicy(t *testing.T) *Policy {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compliance.yaml")
	if err := os.WriteFile(path, []byte(testPolicy), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}
	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	return policy
}

func setupGate(t *testing.T) (*Gate, *StaticProfiles, *database.Service) {
	t.Helper()

	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "gate_test.db"),
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

	profiles := NewStaticProfiles()
	return NewGate(profiles, loadTestPolicy(t), service), profiles, service
}

func equityOpportunity(accreditedOnly bool) *models.Opportunity {
	return &models.Opportunity{
		Id:             "opp1",
		Name:           "Test Raise",
		Type:           models.OpportunityEquity,
		Currency:       "USD",
		TargetAmount:   decimal.NewFromInt(1000000),
		MinimumTicket:  decimal.NewFromInt(100),
		MaximumTicket:  decimal.NewFromInt(200000),
		Status:         models.OpportunityActive,
		AccreditedOnly: accreditedOnly,
	}
}

func TestEvaluatePasses(t *testing.T) {
	gate, profiles, _ := setupGate(t)
	profiles.Put(models.InvestorProfile{
		InvestorId: "u1", Verified: true, Country: "US",
		AnnualInvested: decimal.NewFromInt(10000),
	})

	snap, err := gate.Evaluate(context.Background(), "u1", equityOpportunity(false), decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if snap.Level != models.RiskLow || snap.Score != 0 {
		t.Errorf("Expected low/0, got %s/%d", snap.Level, snap.Score)
	}
	if snap.ManualReviewRequired {
		t.Error("Small amount must not require manual review")
	}
}

func TestEvaluateAccreditedOnlyRejectsUnaccredited(t *testing.T) {
	gate, profiles, service := setupGate(t)
	profiles.Put(models.InvestorProfile{
		InvestorId: "u1", Verified: true, Accredited: false, Country: "US",
		AnnualInvested: decimal.Zero,
	})

	snap, err := gate.Evaluate(context.Background(), "u1", equityOpportunity(true), decimal.NewFromInt(1000))
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("Expected ErrNotEligible, got %v", err)
	}
	if !strings.Contains(err.Error(), "accreditation_required") {
		t.Errorf("Expected accreditation_required in %v", err)
	}

	// The failed attempt still leaves an immutable snapshot on record.
	if snap == nil {
		t.Fatal("Expected a snapshot alongside the rejection")
	}
	if snap.Level != models.RiskCritical {
		t.Errorf("Expected critical, got %s", snap.Level)
	}
	stored, err := service.GetRiskSnapshot(context.Background(), snap.Id)
	if err != nil {
		t.Fatalf("GetRiskSnapshot failed: %v", err)
	}
	if !stored.ManualReviewRequired {
		t.Error("Blocked attempts must be flagged for manual review")
	}
}

func TestEvaluateUnverified(t *testing.T) {
	gate, profiles, _ := setupGate(t)
	profiles.Put(models.InvestorProfile{
		InvestorId: "u1", Verified: false, Country: "US",
		AnnualInvested: decimal.Zero,
	})

	_, err := gate.Evaluate(context.Background(), "u1", equityOpportunity(false), decimal.NewFromInt(1000))
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("Expected ErrNotEligible, got %v", err)
	}
	if !strings.Contains(err.Error(), "identity_unverified") {
		t.Errorf("Expected identity_unverified in %v", err)
	}
}

func TestEvaluateRestrictedGeography(t *testing.T) {
	gate, profiles, _ := setupGate(t)
	profiles.Put(models.InvestorProfile{
		InvestorId: "u1", Verified: true, Country: "kp",
		AnnualInvested: decimal.Zero,
	})

	_, err := gate.Evaluate(context.Background(), "u1", equityOpportunity(false), decimal.NewFromInt(1000))
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("Expected ErrNotEligible, got %v", err)
	}
	if !strings.Contains(err.Error(), "restricted_geography") {
		t.Errorf("Expected restricted_geography in %v", err)
	}
}

func TestEvaluateLimits(t *testing.T) {
	gate, profiles, _ := setupGate(t)
	profiles.Put(models.InvestorProfile{
		InvestorId: "u1", Verified: true, Country: "US",
		AnnualInvested: decimal.NewFromInt(490000),
	})

	// 100001 breaks the per-investment limit; 490000 + 20000 breaks the
	// annual one.
	_, err := gate.Evaluate(context.Background(), "u1", equityOpportunity(false), decimal.NewFromInt(100001))
	if !errors.Is(err, ErrNotEligible) || !strings.Contains(err.Error(), "per_investment_limit_exceeded") {
		t.Errorf("Expected per_investment_limit_exceeded, got %v", err)
	}
	_, err = gate.Evaluate(context.Background(), "u1", equityOpportunity(false), decimal.NewFromInt(20000))
	if !errors.Is(err, ErrNotEligible) || !strings.Contains(err.Error(), "annual_limit_exceeded") {
		t.Errorf("Expected annual_limit_exceeded, got %v", err)
	}
}

func TestEvaluateLargeAmountForcesReview(t *testing.T) {
	gate, profiles, _ := setupGate(t)
	profiles.Put(models.InvestorProfile{
		InvestorId: "u1", Verified: true, Accredited: true, Country: "US",
		AnnualInvested: decimal.NewFromInt(10000),
	})

	snap, err := gate.Evaluate(context.Background(), "u1", equityOpportunity(false), decimal.NewFromInt(60000))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !snap.ManualReviewRequired {
		t.Error("Amounts above the threshold must require manual review")
	}
	if snap.Score < 30 {
		t.Errorf("Expected large-amount points, got score %d", snap.Score)
	}
	found := false
	for _, f := range snap.Flags {
		if f == "large_amount" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected large_amount flag, got %v", snap.Flags)
	}
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	gate, profiles, _ := setupGate(t)
	profiles.Put(models.InvestorProfile{
		InvestorId: "u1", Verified: true, Accredited: true, Country: "US",
		AnnualInvested: decimal.NewFromInt(10000),
	})

	// The threshold itself is not "large"; only amounts beyond it are.
	snap, err := gate.Evaluate(context.Background(), "u1", equityOpportunity(false), decimal.NewFromInt(50000))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if snap.ManualReviewRequired {
		t.Error("Exact threshold amount must not force manual review")
	}
	for _, f := range snap.Flags {
		if f == "large_amount" {
			t.Errorf("Exact threshold amount must not carry the large_amount flag: %v", snap.Flags)
		}
	}

	snap, err = gate.Evaluate(context.Background(), "u1", equityOpportunity(false), decimal.NewFromInt(50001))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !snap.ManualReviewRequired {
		t.Error("Amount just above the threshold must force manual review")
	}
}

func TestLevelForScore(t *testing.T) {
	cases := []struct {
		score int
		level models.RiskLevel
	}{
		{0, models.RiskLow},
		{19, models.RiskLow},
		{20, models.RiskMedium},
		{39, models.RiskMedium},
		{40, models.RiskHigh},
		{59, models.RiskHigh},
		{60, models.RiskCritical},
	}
	for _, c := range cases {
		if got := levelForScore(c.score); got != c.level {
			t.Errorf("levelForScore(%d) = %s, expected %s", c.score, got, c.level)
		}
	}
}

func TestLoadPolicyValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("large_transaction_threshold: \"50000\"\n"), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}
	if _, err := LoadPolicy(path); err == nil {
		t.Error("Expected error for missing version")
	}
	if _, err := LoadPolicy(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
