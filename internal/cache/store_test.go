package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/mediclaim/internal/model"
)

func storedResult(id string) model.AnalysisResult {
	return model.AnalysisResult{
		ClaimID:          id,
		Confidence:       91,
		RiskLevel:        model.RiskMedium,
		FraudProbability: 0.04,
		Recommendations:  []string{"Patient eligibility confirmed"},
		DocumentVerification: model.DocumentVerification{
			Authentic: true, Confidence: 94, Issues: []string{},
		},
		EligibilityCheck:      model.EligibilityCheck{Covered: true, CoveragePercentage: 80, Deductible: 250},
		ProcessingTimeSeconds: 6,
	}
}

func TestResultStore_Backends(t *testing.T) {
	_, client := setupTestRedis(t)

	backends := map[string]Cache{
		"memory":  NewMemoryCache(time.Hour, time.Minute),
		"layered": NewLayeredCache(time.Hour, t.TempDir(), time.Hour),
		"redis":   NewRedisCache(client, time.Hour),
	}

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewResultStore(backend, time.Hour)

			_, err := store.Load(ctx, "CLM-S")
			assert.True(t, errors.Is(err, ErrNotFound))

			want := storedResult("CLM-S")
			require.NoError(t, store.Save(ctx, want))

			got, err := store.Load(ctx, "CLM-S")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			// latest save wins
			want.Confidence = 77
			require.NoError(t, store.Save(ctx, want))
			got, err = store.Load(ctx, "CLM-S")
			require.NoError(t, err)
			assert.Equal(t, 77, got.Confidence)
		})
	}
}

func TestResultStore_Disabled(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore(nil, time.Hour)

	assert.False(t, store.Enabled())
	assert.NoError(t, store.Save(ctx, storedResult("CLM-X")))

	_, err := store.Load(ctx, "CLM-X")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultStore_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryCache(time.Hour, time.Minute)
	require.NoError(t, backend.Set(ctx, CacheKey("CLM-BAD"), []byte("{not json"), 0))

	_, err := NewResultStore(backend, time.Hour).Load(ctx, "CLM-BAD")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
