package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"invest-engine-go/internal/models"

	"github.com/google/uuid"
)

// SandboxProcessor is an in-process deterministic processor used in demos
// and tests. Intents start pending; test drivers advance them with
// Complete and Fail.
type SandboxProcessor struct {
	name       string
	currencies []string

	mu      sync.Mutex
	intents map[string]*Intent
	// byKey maps idempotency keys to intent ids so a retried CreateIntent
	// returns the same intent.
	byKey map[string]string
}

var _ Processor = (*SandboxProcessor)(nil)

// NewSandboxProcessor creates a sandbox processor supporting the given
// currencies.
func NewSandboxProcessor(name string, currencies ...string) *SandboxProcessor {
	if len(currencies) == 0 {
		currencies = []string{"USD"}
	}
	return &SandboxProcessor{
		name:       name,
		currencies: currencies,
		intents:    make(map[string]*Intent),
		byKey:      make(map[string]string),
	}
}

func (p *SandboxProcessor) Name() string { return p.name }

func (p *SandboxProcessor) Currencies() []string { return p.currencies }

func (p *SandboxProcessor) Supports(currency string) bool {
	for _, c := range p.currencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

func (p *SandboxProcessor) CreateIntent(_ context.Context, params CreateIntentParams) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byKey[params.IdempotencyKey]; ok {
		existing := *p.intents[id]
		return &existing, nil
	}

	intent := &Intent{
		IntentId:     "sbx_" + uuid.New().String(),
		ClientAction: "https://sandbox.invalid/pay/" + params.IdempotencyKey,
		Status:       models.PaymentPending,
		ExpiresAt:    time.Now().UTC().Add(30 * time.Minute),
	}
	p.intents[intent.IntentId] = intent
	if params.IdempotencyKey != "" {
		p.byKey[params.IdempotencyKey] = intent.IntentId
	}
	out := *intent
	return &out, nil
}

func (p *SandboxProcessor) Verify(_ context.Context, intentId string) (models.PaymentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[intentId]
	if !ok {
		return "", fmt.Errorf("sandbox intent %s not found", intentId)
	}
	return intent.Status, nil
}

func (p *SandboxProcessor) MapStatus(raw string) (models.PaymentStatus, bool) {
	status := models.PaymentStatus(strings.ToLower(raw))
	if !status.Valid() {
		return "", false
	}
	return status, true
}

// Complete marks the intent succeeded.
func (p *SandboxProcessor) Complete(intentId string) error {
	return p.setStatus(intentId, models.PaymentCompleted)
}

// Fail marks the intent failed.
func (p *SandboxProcessor) Fail(intentId string) error {
	return p.setStatus(intentId, models.PaymentFailed)
}

func (p *SandboxProcessor) setStatus(intentId string, status models.PaymentStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[intentId]
	if !ok {
		return fmt.Errorf("sandbox intent %s not found", intentId)
	}
	intent.Status = status
	return nil
}
