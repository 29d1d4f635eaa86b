package main

import (
	"context"
	"flag"

	"invest-engine-go/internal/common"
	"invest-engine-go/internal/config"
	"invest-engine-go/internal/engine"
	"invest-engine-go/internal/models"
	"invest-engine-go/internal/payments"
	"invest-engine-go/internal/webhook"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Drives one end-to-end investment against the sandbox processor:
// compliance gate, reservations, intent, then the settlement webhook.
func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	investorFlag := flag.String("investor", "inv-alice", "Investor id")
	opportunityFlag := flag.String("opportunity", "opp-solar", "Opportunity id")
	amountFlag := flag.String("amount", "1000", "Investment amount")
	equityFlag := flag.String("equity", "0.5", "Equity percent for equity opportunities")
	settleFlag := flag.Bool("settle", true, "Deliver the completion webhook after creating the intent")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	sandbox := payments.NewSandboxProcessor("sandbox", "USD", "EUR")
	services, err := common.InitializeServices(ctx, cfg, common.Collaborators{
		Processors: []payments.Processor{sandbox},
	})
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := common.SeedDemoData(ctx, services); err != nil {
		zap.L().Fatal("Failed to seed demo data", zap.Error(err))
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		zap.L().Fatal("Invalid amount", zap.String("amount", *amountFlag), zap.Error(err))
	}
	equity, err := decimal.NewFromString(*equityFlag)
	if err != nil {
		zap.L().Fatal("Invalid equity percent", zap.String("equity", *equityFlag), zap.Error(err))
	}

	result, err := services.Engine.Invest(ctx, engine.InvestParams{
		InvestorId:    *investorFlag,
		OpportunityId: *opportunityFlag,
		Amount:        amount,
		Terms:         models.Terms{EquityPercent: &equity},
	})
	if err != nil {
		zap.L().Fatal("Investment failed", zap.Error(err))
	}

	zap.L().Info("Investment pending",
		zap.String("investment_id", result.Investment.Id),
		zap.String("intent_id", result.Payment.IntentId),
		zap.String("client_action", result.ClientAction),
		zap.String("risk_level", string(result.Snapshot.Level)),
		zap.Bool("manual_review", result.Snapshot.ManualReviewRequired))

	if !*settleFlag {
		return
	}

	// Simulate the processor settling the charge and calling back.
	if err := sandbox.Complete(result.Payment.IntentId); err != nil {
		zap.L().Fatal("Failed to settle sandbox intent", zap.Error(err))
	}
	ev := &models.WebhookEvent{
		EventId:   uuid.New().String(),
		Type:      "payment.updated",
		SubjectId: result.Payment.IntentId,
		Status:    string(models.PaymentCompleted),
		Amount:    result.Payment.Amount.String(),
		Currency:  result.Payment.Currency,
		Sequence:  1,
	}
	ev.Signature = webhook.SignHex([]byte(cfg.Gateway.WebhookSecret), ev)

	outcome, err := services.Webhook.Handle(ctx, ev)
	if err != nil {
		zap.L().Fatal("Webhook processing failed", zap.Error(err))
	}

	inv, err := services.DbService.GetInvestment(ctx, result.Investment.Id)
	if err != nil {
		zap.L().Fatal("Failed to reload investment", zap.Error(err))
	}

	zap.L().Info("Investment settled",
		zap.String("investment_id", inv.Id),
		zap.String("status", string(inv.Status)),
		zap.String("webhook_outcome", outcome.Outcome))
}
