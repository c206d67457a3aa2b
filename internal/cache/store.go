package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/mediclaim/internal/model"
)

// ErrNotFound is returned when no result is stored for a claim
var ErrNotFound = errors.New("result not found")

// ResultStore persists completed analysis results keyed by claim ID.
// A store over a nil cache is valid: saves are dropped and loads miss.
type ResultStore struct {
	cache  Cache
	ttl    time.Duration
	tracer trace.Tracer
}

// NewResultStore wraps a cache backend
func NewResultStore(c Cache, ttl time.Duration) *ResultStore {
	return &ResultStore{
		cache:  c,
		ttl:    ttl,
		tracer: otel.Tracer("mediclaim.internal.cache"),
	}
}

// Enabled reports whether results are actually kept
func (s *ResultStore) Enabled() bool {
	return s != nil && s.cache != nil
}

// Save stores the latest result for its claim
func (s *ResultStore) Save(ctx context.Context, result model.AnalysisResult) error {
	if !s.Enabled() {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "cache.save_result")
	defer span.End()

	data, err := json.Marshal(result)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache: failed to marshal result: %w", err)
	}
	if err := s.cache.Set(ctx, CacheKey(result.ClaimID), data, s.ttl); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Load returns the stored result for claimID or ErrNotFound
func (s *ResultStore) Load(ctx context.Context, claimID string) (model.AnalysisResult, error) {
	if !s.Enabled() {
		return model.AnalysisResult{}, ErrNotFound
	}
	ctx, span := s.tracer.Start(ctx, "cache.load_result")
	defer span.End()

	data, found := s.cache.Get(ctx, CacheKey(claimID))
	if !found {
		return model.AnalysisResult{}, ErrNotFound
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		span.RecordError(err)
		return model.AnalysisResult{}, fmt.Errorf("cache: failed to decode result: %w", err)
	}
	return result, nil
}
