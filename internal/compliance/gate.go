package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"invest-engine-go/internal/models"
	"invest-engine-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNotEligible means a mandatory compliance check failed. It is raised
// before any ledger reservation, so there is never anything to unwind.
var ErrNotEligible = errors.New("investor not eligible")

// ProfileSource supplies the externally owned identity/KYC view of an
// investor. The gate consumes it, it never mutates it.
type ProfileSource interface {
	GetInvestorProfile(ctx context.Context, investorId string) (*models.InvestorProfile, error)
}

// Gate evaluates investor eligibility and produces immutable risk
// snapshots. Admission control: evaluated first and cheaply, so no
// reservation is ever made only to be unwound for a compliance failure.
type Gate struct {
	profiles ProfileSource
	policy   *Policy
	store    store.EngineStore
}

// NewGate creates a compliance gate.
func NewGate(profiles ProfileSource, policy *Policy, s store.EngineStore) *Gate {
	return &Gate{profiles: profiles, policy: policy, store: s}
}

// Score weights for the additive risk model.
const (
	pointsLargeAmount     = 30
	pointsNearAnnualLimit = 20
	pointsAccreditedDeal  = 10
	pointsFirstInvestment = 5
)

// Evaluate runs the mandatory checks and the additive risk scoring for
// one investment attempt. The resulting snapshot is persisted whether or
// not the investor passes; a failed mandatory check returns ErrNotEligible
// with the snapshot already on record.
func (g *Gate) Evaluate(ctx context.Context, investorId string, opp *models.Opportunity, amount decimal.Decimal) (*models.RiskSnapshot, error) {
	profile, err := g.profiles.GetInvestorProfile(ctx, investorId)
	if err != nil {
		return nil, fmt.Errorf("failed to load investor profile: %w", err)
	}

	var blocked []string
	if !profile.Verified {
		blocked = append(blocked, "identity_unverified")
	}
	if opp.AccreditedOnly && !profile.Accredited {
		blocked = append(blocked, "accreditation_required")
	}
	if amount.GreaterThan(g.policy.perLimit) {
		blocked = append(blocked, "per_investment_limit_exceeded")
	}
	if profile.AnnualInvested.Add(amount).GreaterThan(g.policy.annualLimit) {
		blocked = append(blocked, "annual_limit_exceeded")
	}
	if g.policy.Restricted(profile.Country) {
		blocked = append(blocked, "restricted_geography")
	}

	score := 0
	var flags []string
	if amount.GreaterThan(g.policy.largeThreshold) {
		score += pointsLargeAmount
		flags = append(flags, "large_amount")
	}
	if profile.AnnualInvested.Add(amount).GreaterThan(g.policy.annualLimit.Div(decimal.NewFromInt(2))) {
		score += pointsNearAnnualLimit
		flags = append(flags, "near_annual_limit")
	}
	if opp.AccreditedOnly {
		score += pointsAccreditedDeal
		flags = append(flags, "accredited_only_deal")
	}
	if profile.AnnualInvested.IsZero() {
		score += pointsFirstInvestment
		flags = append(flags, "first_investment")
	}

	level := levelForScore(score)
	if len(blocked) > 0 {
		level = models.RiskCritical
		flags = append(flags, blocked...)
	}

	snapshot := &models.RiskSnapshot{
		Id:            uuid.New().String(),
		InvestorId:    investorId,
		OpportunityId: opp.Id,
		Amount:        amount,
		Level:         level,
		Score:         score,
		Flags:         flags,
		// Amounts above the threshold always require manual review,
		// regardless of the computed score.
		ManualReviewRequired: amount.GreaterThan(g.policy.largeThreshold) || level == models.RiskCritical,
	}

	if err := g.store.SaveRiskSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist risk snapshot: %w", err)
	}
	if err := g.store.AppendActivity(ctx, &models.ActivityEntry{
		Actor:      "compliance",
		Action:     "compliance.evaluate",
		EntityType: "risk_snapshot",
		EntityId:   snapshot.Id,
		After: fmt.Sprintf(`{"level":"%s","score":%d,"manual_review":%t,"flags":"%s"}`,
			snapshot.Level, snapshot.Score, snapshot.ManualReviewRequired, strings.Join(flags, ",")),
	}); err != nil {
		zap.L().Warn("Failed to record compliance decision", zap.Error(err))
	}

	if len(blocked) > 0 {
		zap.L().Info("Investor failed compliance gate",
			zap.String("investor_id", investorId),
			zap.String("opportunity_id", opp.Id),
			zap.Strings("reasons", blocked))
		return snapshot, fmt.Errorf("%w: %s", ErrNotEligible, strings.Join(blocked, ", "))
	}

	zap.L().Info("Investor passed compliance gate",
		zap.String("investor_id", investorId),
		zap.String("opportunity_id", opp.Id),
		zap.String("level", string(level)),
		zap.Int("score", score),
		zap.Bool("manual_review", snapshot.ManualReviewRequired))
	return snapshot, nil
}

func levelForScore(score int) models.RiskLevel {
	switch {
	case score < 20:
		return models.RiskLow
	case score < 40:
		return models.RiskMedium
	case score < 60:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}
