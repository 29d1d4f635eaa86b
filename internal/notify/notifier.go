package notify

import (
	"context"

	"invest-engine-go/internal/models"

	"go.uber.org/zap"
)

// Notifier receives investment lifecycle notifications. Delivery is
// fire-and-forget: a failed notification is logged and never blocks or
// rolls back the transition that produced it.
type Notifier interface {
	InvestmentChanged(ctx context.Context, inv *models.Investment, previous models.InvestmentStatus) error
}

// LogNotifier writes notifications to the structured log. It is the
// default sink; a real delivery channel slots in behind the same
// interface.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) InvestmentChanged(_ context.Context, inv *models.Investment, previous models.InvestmentStatus) error {
	zap.L().Info("Investment status notification",
		zap.String("investment_id", inv.Id),
		zap.String("investor_id", inv.InvestorId),
		zap.String("opportunity_id", inv.OpportunityId),
		zap.String("from", string(previous)),
		zap.String("to", string(inv.Status)),
		zap.String("amount", inv.Amount.String()),
		zap.String("currency", inv.Currency))
	return nil
}
