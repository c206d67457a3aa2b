package score

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/mediclaim/internal/model"
)

// ConfidenceScorer produces an overall confidence percentage for a claim
type ConfidenceScorer interface {
	ScoreConfidence(ctx context.Context, claim model.Claim) (int, error)
}

// FraudScorer produces a fraud likelihood in [0,1]
type FraudScorer interface {
	ScoreFraud(ctx context.Context, claim model.Claim) (float64, error)
}

// DocumentScorer produces the document authenticity verdict
type DocumentScorer interface {
	VerifyDocuments(ctx context.Context, claim model.Claim) (model.DocumentVerification, error)
}

// EligibilityScorer produces the coverage determination
type EligibilityScorer interface {
	CheckEligibility(ctx context.Context, claim model.Claim) (model.EligibilityCheck, error)
}

// Strategy bundles every scoring capability behind one name.
// Implementations must be safe for concurrent use across runs.
type Strategy interface {
	Name() string
	ConfidenceScorer
	FraudScorer
	DocumentScorer
	EligibilityScorer
}

// NewStrategy creates a built-in strategy by name. "llm" yields the rule
// strategy as its base; the caller attaches the model-backed fraud scorer.
func NewStrategy(name string, cfg model.ScoringConfig) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rules", "llm":
		return NewRuleStrategy(cfg.Coverage), nil
	case "demo", "random":
		return NewDemoStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown scoring strategy: %s (supported: rules, demo, llm)", name)
	}
}
