package payments

import (
	"context"
	"errors"
	"time"

	"invest-engine-go/internal/models"

	"github.com/shopspring/decimal"
)

// ErrProcessor wraps any upstream payment-processor failure.
var ErrProcessor = errors.New("payment processor failure")

// CreateIntentParams is the uniform request every processor adapter
// accepts. IdempotencyKey is caller-supplied (the investment id) so a
// retried request never opens two intents.
type CreateIntentParams struct {
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// Intent is the opaque handle a processor returns for an opened payment,
// plus any caller-facing action (redirect URL or confirmation secret).
type Intent struct {
	IntentId     string
	ClientAction string
	Status       models.PaymentStatus
	ExpiresAt    time.Time
}

// Processor is the adapter contract implemented once per supported
// payment processor and consumed uniformly by the gateway. MapStatus
// normalizes the processor's own status vocabulary onto the canonical
// enum; unknown values map to false.
type Processor interface {
	Name() string
	Currencies() []string
	Supports(currency string) bool
	CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error)
	Verify(ctx context.Context, intentId string) (models.PaymentStatus, error)
	MapStatus(raw string) (models.PaymentStatus, bool)
}
