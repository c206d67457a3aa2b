package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/mediclaim/internal/logging"
	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/ratelimit"
)

// FraudStrategy scores fraud probability by asking a model provider.
// Provider failures surface as errors; the scorer maps them to
// ErrScoringUnavailable.
type FraudStrategy struct {
	provider Provider
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// FraudOption configures a FraudStrategy
type FraudOption func(*FraudStrategy)

// WithLimiter throttles model calls through l, keyed by provider name
func WithLimiter(l *ratelimit.Limiter) FraudOption {
	return func(f *FraudStrategy) { f.limiter = l }
}

// NewFraudStrategy wraps a provider
func NewFraudStrategy(provider Provider, opts ...FraudOption) *FraudStrategy {
	f := &FraudStrategy{
		provider: provider,
		logger:   logging.New("llm"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ScoreFraud implements score.FraudScorer
func (f *FraudStrategy) ScoreFraud(ctx context.Context, claim model.Claim) (float64, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, f.provider.Name()); err != nil {
			return 0, fmt.Errorf("%s: throttled: %w", f.provider.Name(), err)
		}
	}

	a, err := f.provider.Assess(ctx, AssessRequest{Claim: claim})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.provider.Name(), err)
	}

	f.logger.Debug("fraud assessment",
		"claim_id", claim.ID,
		"provider", f.provider.Name(),
		"model", a.Model,
		"probability", a.FraudProbability,
		"tokens", a.TokensUsed,
		"reason", a.Reason,
	)

	return a.FraudProbability, nil
}
