package main

import (
	"context"
	"flag"
	"fmt"

	"invest-engine-go/internal/common"
	"invest-engine-go/internal/config"
	"invest-engine-go/internal/database"
	"invest-engine-go/internal/models"

	"go.uber.org/zap"
)

func printWallet(w models.Wallet, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	fmt.Printf("%s %-8s available: %18s  locked: %18s  (v%d, updated: %s)\n",
		symbol,
		w.Currency,
		w.Available.String(),
		w.Locked.String(),
		w.Version,
		w.UpdatedAt.Format(common.ReportTimeFormat))
}

func printPortfolio(p models.PortfolioAggregate, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	fmt.Printf("%s %-8s invested:  %18s  active investments: %d\n",
		symbol, p.Currency, p.TotalInvested.String(), p.ActiveInvestments)
}

func printInvestorReport(ctx context.Context, dbService *database.Service, investorId string, activityLimit int) error {
	wallets, err := dbService.ListWallets(ctx, investorId)
	if err != nil {
		return fmt.Errorf("failed to list wallets: %w", err)
	}
	portfolio, err := dbService.GetPortfolio(ctx, investorId)
	if err != nil {
		return fmt.Errorf("failed to get portfolio: %w", err)
	}

	fmt.Printf("\n┌─ Investor: %s\n", investorId)
	fmt.Printf("│  Wallets: %d, portfolio currencies: %d\n", len(wallets), len(portfolio))
	common.PrintBoxSeparator(common.BoxInnerWidth)

	if len(wallets) == 0 {
		fmt.Println(common.BoxPrefix(len(portfolio) == 0) + " no wallets")
	}
	for i, w := range wallets {
		printWallet(w, len(portfolio) == 0 && i == len(wallets)-1)
	}
	for i, p := range portfolio {
		printPortfolio(p, i == len(portfolio)-1)
	}

	if activityLimit > 0 {
		for _, w := range wallets {
			entries, err := dbService.ListActivity(ctx, "wallet", w.Id, activityLimit)
			if err != nil {
				return fmt.Errorf("failed to list activity: %w", err)
			}
			if len(entries) == 0 {
				continue
			}
			fmt.Printf("\n   Recent %s wallet activity:\n", w.Currency)
			for _, e := range entries {
				fmt.Printf("   %s  %-18s %-10s %s -> %s\n",
					e.CreatedAt.Format(common.ReportTimeFormat),
					e.Action, e.Actor, e.Before, e.After)
			}
		}
	}
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	investorFlag := flag.String("investor", "", "Investor id to report on (required)")
	activityFlag := flag.Int("activity", 0, "Also print the last N wallet activity entries")
	flag.Parse()

	if *investorFlag == "" {
		logger.Fatal("Missing required -investor flag")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	common.PrintHeader("INVESTOR BALANCE REPORT", common.ReportWidth)

	if err := printInvestorReport(ctx, dbService, *investorFlag, *activityFlag); err != nil {
		logger.Fatal("Failed to generate report", zap.Error(err))
	}

	common.PrintFooter("Report complete", common.ReportWidth)
}
