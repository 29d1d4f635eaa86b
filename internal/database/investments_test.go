package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/shopspring/decimal"
)

func testInvestment(id string) *models.Investment {
	equity := decimal.NewFromFloat(0.5)
	return &models.Investment{
		Id:            id,
		InvestorId:    "u1",
		OpportunityId: "opp1",
		Amount:        decimal.NewFromInt(1000),
		Currency:      "USD",
		Terms:         models.Terms{EquityPercent: &equity},
		Status:        models.InvestmentPending,
		ExpiresAt:     time.Now().UTC().Add(30 * time.Minute),
	}
}

func TestCreateAndGetInvestment(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.CreateInvestment(ctx, testInvestment("inv1")); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}

	inv, err := service.GetInvestment(ctx, "inv1")
	if err != nil {
		t.Fatalf("GetInvestment failed: %v", err)
	}
	if inv.Status != models.InvestmentPending {
		t.Errorf("Expected pending, got %s", inv.Status)
	}
	if inv.Terms.EquityPercent == nil || !inv.Terms.EquityPercent.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("Equity percent not round-tripped: %+v", inv.Terms)
	}
	if inv.Terms.InterestRate != nil || inv.Terms.TermMonths != nil {
		t.Errorf("Unset term branches should stay nil: %+v", inv.Terms)
	}
}

func TestLinkPaymentTransaction(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.CreateInvestment(ctx, testInvestment("inv1")); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}

	if err := service.LinkPaymentTransaction(ctx, "inv1", "pay1"); err != nil {
		t.Fatalf("LinkPaymentTransaction failed: %v", err)
	}
	inv, err := service.GetInvestment(ctx, "inv1")
	if err != nil {
		t.Fatalf("GetInvestment failed: %v", err)
	}
	if inv.PaymentTransactionId != "pay1" {
		t.Errorf("Expected pay1, got %q", inv.PaymentTransactionId)
	}

	// Relinking the same payment is harmless.
	if err := service.LinkPaymentTransaction(ctx, "inv1", "pay1"); err != nil {
		t.Fatalf("Relink failed: %v", err)
	}

	if err := service.LinkPaymentTransaction(ctx, "missing", "pay1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreateInvestmentDebtTerms(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rate := decimal.NewFromFloat(7.25)
	months := 36
	inv := testInvestment("inv1")
	inv.Terms = models.Terms{InterestRate: &rate, TermMonths: &months}

	if err := service.CreateInvestment(ctx, inv); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}
	got, err := service.GetInvestment(ctx, "inv1")
	if err != nil {
		t.Fatalf("GetInvestment failed: %v", err)
	}
	if got.Terms.InterestRate == nil || !got.Terms.InterestRate.Equal(rate) {
		t.Errorf("Interest rate not round-tripped: %+v", got.Terms)
	}
	if got.Terms.TermMonths == nil || *got.Terms.TermMonths != 36 {
		t.Errorf("Term months not round-tripped: %+v", got.Terms)
	}
}

func TestCreateInvestmentRequiresPending(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	inv := testInvestment("inv1")
	inv.Status = models.InvestmentCompleted
	if err := service.CreateInvestment(context.Background(), inv); err == nil {
		t.Fatal("Expected error creating non-pending investment")
	}
}

func TestUpdateInvestmentStatus(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.CreateInvestment(ctx, testInvestment("inv1")); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}

	err := service.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: "inv1",
		From:         models.InvestmentPending,
		To:           models.InvestmentProcessing,
		Actor:        "test",
	})
	if err != nil {
		t.Fatalf("UpdateInvestmentStatus failed: %v", err)
	}

	inv, _ := service.GetInvestment(ctx, "inv1")
	if inv.Status != models.InvestmentProcessing {
		t.Errorf("Expected processing, got %s", inv.Status)
	}
}

func TestUpdateInvestmentStatusInvalidTransition(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.CreateInvestment(ctx, testInvestment("inv1")); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}

	err := service.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: "inv1",
		From:         models.InvestmentPending,
		To:           models.InvestmentRefunded,
		Actor:        "test",
	})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateInvestmentStatusStaleSource(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.CreateInvestment(ctx, testInvestment("inv1")); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}

	// The row is pending; claiming it is processing must not land.
	err := service.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: "inv1",
		From:         models.InvestmentProcessing,
		To:           models.InvestmentCompleted,
		Actor:        "test",
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification, got %v", err)
	}

	inv, _ := service.GetInvestment(ctx, "inv1")
	if inv.Status != models.InvestmentPending {
		t.Errorf("Expected status untouched at pending, got %s", inv.Status)
	}
}

func TestListExpiredPending(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	expired := testInvestment("inv-old")
	expired.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	if err := service.CreateInvestment(ctx, expired); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}

	live := testInvestment("inv-live")
	live.ExpiresAt = time.Now().UTC().Add(time.Hour)
	if err := service.CreateInvestment(ctx, live); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}

	terminal := testInvestment("inv-done")
	terminal.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	if err := service.CreateInvestment(ctx, terminal); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}
	if err := service.UpdateInvestmentStatus(ctx, store.StatusUpdateParams{
		InvestmentId: "inv-done",
		From:         models.InvestmentPending,
		To:           models.InvestmentCancelled,
		Actor:        "test",
	}); err != nil {
		t.Fatalf("UpdateInvestmentStatus failed: %v", err)
	}

	list, err := service.ListExpiredPending(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ListExpiredPending failed: %v", err)
	}
	if len(list) != 1 || list[0].Id != "inv-old" {
		t.Fatalf("Expected only inv-old, got %+v", list)
	}
}
