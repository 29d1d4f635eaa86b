package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"invest-engine-go/internal/engine"
	"invest-engine-go/internal/models"
	"invest-engine-go/internal/payments"
	"invest-engine-go/internal/store"

	"go.uber.org/zap"
)

// ErrBadSignature marks an event that failed authentication. Unsigned
// events are dropped before touching the dedup table.
var ErrBadSignature = errors.New("webhook signature mismatch")

// Processor consumes asynchronous payment-processor callbacks: it
// authenticates them, de-duplicates them permanently by event id, maps
// the provider status onto the canonical enum, and feeds the transition
// to the owning investment's state machine.
type Processor struct {
	store   store.EngineStore
	engine  *engine.Engine
	gateway *payments.Gateway
	secret  []byte
}

// NewProcessor creates a webhook processor. secret is the shared
// HMAC-SHA256 signing key agreed with the payment processors.
func NewProcessor(s store.EngineStore, e *engine.Engine, g *payments.Gateway, secret string) *Processor {
	return &Processor{store: s, engine: e, gateway: g, secret: []byte(secret)}
}

// Handle processes one inbound event and returns the de-duplication
// record describing what happened to it. Replaying an already-processed
// event id is a no-op returning the previously recorded record.
func (p *Processor) Handle(ctx context.Context, ev *models.WebhookEvent) (*models.ProcessedEvent, error) {
	if ev.EventId == "" {
		return nil, fmt.Errorf("event id missing")
	}
	if !p.verifySignature(ev) {
		zap.L().Warn("Rejecting webhook with bad signature",
			zap.String("event_id", ev.EventId),
			zap.String("subject_id", ev.SubjectId))
		return nil, ErrBadSignature
	}

	if prior, err := p.store.GetProcessedEvent(ctx, ev.EventId); err == nil {
		zap.L().Info("Duplicate webhook event, returning prior outcome",
			zap.String("event_id", ev.EventId),
			zap.String("outcome", prior.Outcome),
			zap.String("canonical_status", string(prior.CanonicalStatus)))
		return prior, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	pt, err := p.store.GetPaymentByIntent(ctx, ev.SubjectId)
	if err != nil {
		return nil, fmt.Errorf("unknown webhook subject %s: %w", ev.SubjectId, err)
	}
	proc, err := p.gateway.ProcessorByName(pt.Processor)
	if err != nil {
		return nil, err
	}
	status, ok := proc.MapStatus(ev.Status)
	if !ok {
		return p.record(ctx, ev, pt.InvestmentId, "", models.EventOutcomeRejected,
			fmt.Errorf("unmappable status %q from processor %s", ev.Status, pt.Processor))
	}

	err = p.engine.ApplyPaymentStatus(ctx, pt.InvestmentId, status, ev.Sequence, "webhook")
	switch {
	case err == nil:
		return p.record(ctx, ev, pt.InvestmentId, status, models.EventOutcomeApplied, nil)
	case errors.Is(err, store.ErrConcurrentModification):
		// Out-of-order delivery: an event with an older order marker than
		// the applied state is discarded, never re-applied.
		zap.L().Warn("Discarding out-of-order webhook event",
			zap.String("event_id", ev.EventId),
			zap.String("investment_id", pt.InvestmentId),
			zap.Int64("sequence", ev.Sequence),
			zap.String("status", string(status)))
		return p.record(ctx, ev, pt.InvestmentId, status, models.EventOutcomeStale, nil)
	case errors.Is(err, store.ErrInvalidTransition):
		zap.L().Warn("Discarding webhook event against terminal state",
			zap.String("event_id", ev.EventId),
			zap.String("investment_id", pt.InvestmentId),
			zap.String("status", string(status)))
		return p.record(ctx, ev, pt.InvestmentId, status, models.EventOutcomeRejected, nil)
	default:
		return nil, err
	}
}

// record writes the permanent de-duplication entry. If another worker
// raced the same event id in, that worker's record wins and is returned.
func (p *Processor) record(ctx context.Context, ev *models.WebhookEvent, investmentId string,
	status models.PaymentStatus, outcome string, cause error) (*models.ProcessedEvent, error) {
	rec := &models.ProcessedEvent{
		EventId:         ev.EventId,
		InvestmentId:    investmentId,
		CanonicalStatus: status,
		Sequence:        ev.Sequence,
		Outcome:         outcome,
	}
	if err := p.store.RecordProcessedEvent(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			return p.store.GetProcessedEvent(ctx, ev.EventId)
		}
		return nil, err
	}
	if cause != nil {
		return rec, cause
	}
	return rec, nil
}

// verifySignature checks the HMAC-SHA256 over the event's identifying
// fields against the shared secret.
func (p *Processor) verifySignature(ev *models.WebhookEvent) bool {
	sig, err := hex.DecodeString(ev.Signature)
	if err != nil {
		return false
	}
	return hmac.Equal(sig, Sign(p.secret, ev))
}

// Sign computes the HMAC-SHA256 signature for an event. Exported so test
// drivers and the sandbox can produce valid events.
func Sign(secret []byte, ev *models.WebhookEvent) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ev.EventId))
	mac.Write([]byte("."))
	mac.Write([]byte(ev.SubjectId))
	mac.Write([]byte("."))
	mac.Write([]byte(ev.Status))
	mac.Write([]byte("."))
	mac.Write([]byte(strconv.FormatInt(ev.Sequence, 10)))
	return mac.Sum(nil)
}

// SignHex returns the hex-encoded signature for an event.
func SignHex(secret []byte, ev *models.WebhookEvent) string {
	return hex.EncodeToString(Sign(secret, ev))
}
