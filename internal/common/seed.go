package common

import (
	"context"
	"errors"
	"fmt"

	"invest-engine-go/internal/compliance"
	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Demo investors seeded by cmd/setup. The accredited investor carries a
// funded wallet; the unverified one exists to exercise the compliance
// gate.
var demoInvestors = []struct {
	Id         string
	Verified   bool
	Accredited bool
	Country    string
	Deposit    string
	Currency   string
}{
	{Id: "inv-alice", Verified: true, Accredited: true, Country: "US", Deposit: "50000", Currency: "USD"},
	{Id: "inv-bob", Verified: true, Accredited: false, Country: "DE", Deposit: "10000", Currency: "USD"},
	{Id: "inv-carol", Verified: false, Accredited: false, Country: "US", Deposit: "0", Currency: "USD"},
}

var demoOpportunities = []models.Opportunity{
	{
		Id:            "opp-solar",
		Name:          "Solar Farm Expansion",
		Type:          models.OpportunityEquity,
		Currency:      "USD",
		TargetAmount:  decimal.NewFromInt(100000),
		MinimumTicket: decimal.NewFromInt(100),
		MaximumTicket: decimal.NewFromInt(25000),
		Status:        models.OpportunityActive,
	},
	{
		Id:             "opp-bridge",
		Name:           "Bridge Loan Facility",
		Type:           models.OpportunityDebt,
		Currency:       "USD",
		TargetAmount:   decimal.NewFromInt(250000),
		MinimumTicket:  decimal.NewFromInt(1000),
		MaximumTicket:  decimal.NewFromInt(50000),
		AccreditedOnly: true,
		Status:         models.OpportunityActive,
	},
}

// SeedDemoData creates the demo opportunities, investor profiles, and
// funded wallets. Safe to run repeatedly: existing records are skipped.
func SeedDemoData(ctx context.Context, services *Services) error {
	profiles, ok := services.Profiles.(*compliance.StaticProfiles)
	if !ok {
		return fmt.Errorf("demo seeding requires the static profile source")
	}

	for _, opp := range demoOpportunities {
		o := opp
		if _, err := services.DbService.GetOpportunity(ctx, o.Id); err == nil {
			zap.L().Info("Opportunity already seeded", zap.String("id", o.Id))
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := services.DbService.CreateOpportunity(ctx, &o); err != nil {
			return fmt.Errorf("failed to seed opportunity %s: %w", o.Id, err)
		}
		zap.L().Info("Seeded opportunity",
			zap.String("id", o.Id),
			zap.String("name", o.Name),
			zap.String("target", o.TargetAmount.String()))
	}

	for _, inv := range demoInvestors {
		profiles.Put(models.InvestorProfile{
			InvestorId:     inv.Id,
			Verified:       inv.Verified,
			Accredited:     inv.Accredited,
			Country:        inv.Country,
			AnnualInvested: decimal.Zero,
		})

		deposit, err := decimal.NewFromString(inv.Deposit)
		if err != nil {
			return fmt.Errorf("invalid demo deposit for %s: %w", inv.Id, err)
		}
		if deposit.IsZero() {
			continue
		}
		err = services.Wallets.Deposit(ctx, store.WalletMutationParams{
			UserId:   inv.Id,
			Currency: inv.Currency,
			Amount:   deposit,
			Ref:      "seed:deposit:" + inv.Id,
			Actor:    "setup",
		})
		if errors.Is(err, store.ErrDuplicateRef) {
			zap.L().Info("Wallet already funded", zap.String("investor_id", inv.Id))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fund demo wallet for %s: %w", inv.Id, err)
		}
		zap.L().Info("Funded demo wallet",
			zap.String("investor_id", inv.Id),
			zap.String("amount", deposit.String()),
			zap.String("currency", inv.Currency))
	}

	return nil
}
