package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"invest-engine-go/internal/models"

	"go.uber.org/zap"
)

// RESTProcessorConfig describes one REST-speaking payment processor.
type RESTProcessorConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Currencies []string
	// StatusMap translates the processor's status vocabulary to the
	// canonical enum.
	StatusMap map[string]models.PaymentStatus
	Timeout   time.Duration
}

// RESTProcessor is the production adapter shape: a JSON-over-HTTP
// processor API with intent creation and status lookup endpoints.
type RESTProcessor struct {
	cfg    RESTProcessorConfig
	client *http.Client
}

var _ Processor = (*RESTProcessor)(nil)

// NewRESTProcessor creates an adapter for a REST payment processor.
func NewRESTProcessor(cfg RESTProcessorConfig) *RESTProcessor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RESTProcessor{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *RESTProcessor) Name() string { return p.cfg.Name }

func (p *RESTProcessor) Currencies() []string { return p.cfg.Currencies }

func (p *RESTProcessor) Supports(currency string) bool {
	for _, c := range p.cfg.Currencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

type restIntentRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

type restIntentResponse struct {
	IntentId     string `json:"intent_id"`
	ClientAction string `json:"client_action"`
	Status       string `json:"status"`
	ExpiresAt    string `json:"expires_at"`
}

// CreateIntent opens an intent. The idempotency key rides both in the
// body and the Idempotency-Key header so retried requests collapse on
// the processor side as well.
func (p *RESTProcessor) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	body, err := json.Marshal(restIntentRequest{
		Amount:         params.Amount.String(),
		Currency:       params.Currency,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Idempotency-Key", params.IdempotencyKey)

	var resp restIntentResponse
	if err := p.do(req, &resp); err != nil {
		return nil, err
	}

	status, ok := p.MapStatus(resp.Status)
	if !ok {
		status = models.PaymentPending
		zap.L().Warn("Unknown processor status on intent creation, assuming pending",
			zap.String("processor", p.cfg.Name),
			zap.String("raw_status", resp.Status))
	}

	intent := &Intent{
		IntentId:     resp.IntentId,
		ClientAction: resp.ClientAction,
		Status:       status,
	}
	if resp.ExpiresAt != "" {
		if expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			intent.ExpiresAt = expiresAt
		}
	}
	return intent, nil
}

type restStatusResponse struct {
	Status string `json:"status"`
}

// Verify looks up the intent's current status at the processor.
func (p *RESTProcessor) Verify(ctx context.Context, intentId string) (models.PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/intents/"+intentId, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	var resp restStatusResponse
	if err := p.do(req, &resp); err != nil {
		return "", err
	}

	status, ok := p.MapStatus(resp.Status)
	if !ok {
		return "", fmt.Errorf("processor %s returned unmappable status %q", p.cfg.Name, resp.Status)
	}
	return status, nil
}

// MapStatus translates a processor-specific status onto the canonical enum.
func (p *RESTProcessor) MapStatus(raw string) (models.PaymentStatus, bool) {
	status, ok := p.cfg.StatusMap[strings.ToLower(raw)]
	return status, ok
}

func (p *RESTProcessor) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("processor request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("processor returned %d: %s", resp.StatusCode, string(payload))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode processor response: %w", err)
	}
	return nil
}
