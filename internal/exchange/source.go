package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource fetches rates from a JSON rate provider exposing
// GET {base}/latest?from=EUR&to=USD with a {"rates":{"USD":"1.08"}} body.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

var _ RateSource = (*HTTPSource)(nil)

// NewHTTPSource creates a rate source against the given provider URL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type ratesResponse struct {
	Rates map[string]json.Number `json:"rates"`
}

func (s *HTTPSource) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/latest?from=%s&to=%s", s.baseURL, strings.ToUpper(from), strings.ToUpper(to))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate provider returned %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rate response: %w", err)
	}

	raw, ok := body.Rates[strings.ToUpper(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate provider returned no rate for %s", Pair(from, to))
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q for %s: %w", raw.String(), Pair(from, to), err)
	}
	return rate, nil
}

// StaticSource serves rates from a fixed in-memory table. Used in demos
// and tests where no provider is reachable.
type StaticSource struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

var _ RateSource = (*StaticSource)(nil)

// NewStaticSource creates an empty static rate source.
func NewStaticSource() *StaticSource {
	return &StaticSource{rates: make(map[string]decimal.Decimal)}
}

// SetRate publishes a rate for the pair.
func (s *StaticSource) SetRate(from, to string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[Pair(from, to)] = rate
}

func (s *StaticSource) FetchRate(_ context.Context, from, to string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.rates[Pair(from, to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate published for %s", Pair(from, to))
	}
	return rate, nil
}
