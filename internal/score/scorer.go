package score

import (
	"context"
	"fmt"
	"math"

	"github.com/ppiankov/mediclaim/internal/model"
)

// unexplainedIssue is attached when a strategy rejects documents without saying why
const unexplainedIssue = "Document authenticity could not be confirmed"

// RiskThresholds holds the amount boundaries of the risk tiers
type RiskThresholds struct {
	MediumAbove float64 // amount > MediumAbove is at least medium
	HighAbove   float64 // amount > HighAbove is high
}

// Tier classifies an amount. Boundaries are inclusive on the lower tier.
func (t RiskThresholds) Tier(amount float64) model.RiskLevel {
	switch {
	case amount > t.HighAbove:
		return model.RiskHigh
	case amount > t.MediumAbove:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// Scorer computes every scoring value for a claim through swappable strategies
// and enforces the range contracts regardless of which strategy produced them.
// It holds no per-run state.
type Scorer struct {
	thresholds  RiskThresholds
	required    []string
	confidence  ConfidenceScorer
	fraud       FraudScorer
	documents   DocumentScorer
	eligibility EligibilityScorer
	strategy    string
}

// Option overrides one capability of the base strategy
type Option func(*Scorer)

// WithFraudScorer replaces the fraud scorer (e.g. a model-backed one)
func WithFraudScorer(f FraudScorer) Option {
	return func(s *Scorer) {
		if f != nil {
			s.fraud = f
		}
	}
}

// NewScorer creates a scorer from the scoring configuration and a base strategy
func NewScorer(cfg model.ScoringConfig, base Strategy, opts ...Option) *Scorer {
	s := &Scorer{
		thresholds: RiskThresholds{
			MediumAbove: cfg.RiskMediumAbove,
			HighAbove:   cfg.RiskHighAbove,
		},
		required:    append([]string(nil), cfg.RequiredMetadata...),
		confidence:  base,
		fraud:       base,
		documents:   base,
		eligibility: base,
		strategy:    base.Name(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StrategyName returns the name of the base strategy
func (s *Scorer) StrategyName() string {
	return s.strategy
}

// RiskLevel tiers the claim by declared amount
func (s *Scorer) RiskLevel(claim model.Claim) model.RiskLevel {
	return s.thresholds.Tier(claim.Amount)
}

// Confidence returns the overall confidence percentage in [0,100]
func (s *Scorer) Confidence(ctx context.Context, claim model.Claim) (int, error) {
	if err := s.checkMetadata("confidence", claim); err != nil {
		return 0, err
	}
	v, err := s.confidence.ScoreConfidence(ctx, claim)
	if err != nil {
		return 0, unavailable("confidence", err)
	}
	return clampPercent(v), nil
}

// FraudProbability returns the fraud likelihood in [0,1]
func (s *Scorer) FraudProbability(ctx context.Context, claim model.Claim) (float64, error) {
	if err := s.checkMetadata("fraud probability", claim); err != nil {
		return 0, err
	}
	v, err := s.fraud.ScoreFraud(ctx, claim)
	if err != nil {
		return 0, unavailable("fraud probability", err)
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("fraud probability: %w: strategy returned NaN", model.ErrScoringUnavailable)
	}
	return math.Min(math.Max(v, 0), 1), nil
}

// DocumentVerification returns the document verdict.
// A failed verdict always carries at least one issue.
func (s *Scorer) DocumentVerification(ctx context.Context, claim model.Claim) (model.DocumentVerification, error) {
	if err := s.checkMetadata("document verification", claim); err != nil {
		return model.DocumentVerification{}, err
	}
	v, err := s.documents.VerifyDocuments(ctx, claim)
	if err != nil {
		return model.DocumentVerification{}, unavailable("document verification", err)
	}

	v.Confidence = clampPercent(v.Confidence)
	if v.Issues == nil {
		v.Issues = []string{}
	}
	if !v.Authentic && len(v.Issues) == 0 {
		v.Issues = append(v.Issues, unexplainedIssue)
	}
	return v, nil
}

// EligibilityCheck returns the coverage determination.
// An uncovered claim always reports 0% coverage.
func (s *Scorer) EligibilityCheck(ctx context.Context, claim model.Claim) (model.EligibilityCheck, error) {
	if err := s.checkMetadata("eligibility check", claim); err != nil {
		return model.EligibilityCheck{}, err
	}
	v, err := s.eligibility.CheckEligibility(ctx, claim)
	if err != nil {
		return model.EligibilityCheck{}, unavailable("eligibility check", err)
	}

	v.CoveragePercentage = clampPercent(v.CoveragePercentage)
	if !v.Covered {
		v.CoveragePercentage = 0
	}
	if v.Deductible < 0 {
		v.Deductible = 0
	}
	return v, nil
}

// Score runs every scoring function and returns the combined values
func (s *Scorer) Score(ctx context.Context, claim model.Claim) (model.Scores, error) {
	var scores model.Scores
	var err error

	scores.RiskLevel = s.RiskLevel(claim)

	if scores.Confidence, err = s.Confidence(ctx, claim); err != nil {
		return model.Scores{}, err
	}
	if scores.FraudProbability, err = s.FraudProbability(ctx, claim); err != nil {
		return model.Scores{}, err
	}
	if scores.DocumentVerification, err = s.DocumentVerification(ctx, claim); err != nil {
		return model.Scores{}, err
	}
	if scores.EligibilityCheck, err = s.EligibilityCheck(ctx, claim); err != nil {
		return model.Scores{}, err
	}

	return scores, nil
}

func (s *Scorer) checkMetadata(fn string, claim model.Claim) error {
	if missing := claim.MissingMetadata(s.required); len(missing) > 0 {
		return fmt.Errorf("%s: %w: missing metadata %v", fn, model.ErrScoringUnavailable, missing)
	}
	return nil
}

func unavailable(fn string, err error) error {
	return fmt.Errorf("%s: %w: %w", fn, model.ErrScoringUnavailable, err)
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
