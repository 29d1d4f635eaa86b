package engine

import "errors"

// Request-path errors surfaced to callers. Conflict, eligibility,
// processor, and exchange failures keep their originating package's
// sentinel (ledger.ErrConflict, compliance.ErrNotEligible,
// payments.ErrProcessor, exchange.ErrExchangeUnavailable) so callers
// can match on them directly.
var (
	// ErrValidation marks a malformed request, rejected before any side
	// effect.
	ErrValidation = errors.New("validation failed")

	// ErrExpired marks an intent or investment past its deadline.
	ErrExpired = errors.New("intent expired")
)
