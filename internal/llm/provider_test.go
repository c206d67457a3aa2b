package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/ratelimit"
	"github.com/ppiankov/mediclaim/internal/score"
)

func TestParseAssessment(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    float64
		reason  string
		wantErr bool
	}{
		{"json", `{"fraud_probability": 0.4, "reason": "amount high"}`, 0.4, "amount high", false},
		{"fenced", "```json\n{\"fraud_probability\": 0.15}\n```", 0.15, "", false},
		{"bare number", "Probability: 0.33", 0.33, "", false},
		{"zero", `{"fraud_probability": 0}`, 0, "", false},
		{"above one", `{"fraud_probability": 1.5}`, 0, "", true},
		{"percent number", "I estimate 35 percent", 0, "", true},
		{"no number", "cannot tell", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, err := ParseAssessment(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %f", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
			if reason != tt.reason {
				t.Errorf("Expected reason %q, got %q", tt.reason, reason)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	claim := testClaim()
	claim.Metadata["diagnosis_code"] = "J10"
	claim.Metadata["empty"] = ""

	prompt := BuildPrompt(claim)

	for _, want := range []string{"Type: outpatient", "Amount: 420.00", "invoice.pdf", "diagnosis_code, patient_id"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	for _, leaked := range []string{"P-SECRET-77", "J10", "empty"} {
		if strings.Contains(prompt, leaked) {
			t.Errorf("prompt leaks %q", leaked)
		}
	}
}

type stubProvider struct {
	prob float64
	err  error
}

func (s stubProvider) Name() string                    { return "stub" }
func (s stubProvider) IsAvailable(context.Context) bool { return s.err == nil }
func (s stubProvider) Assess(context.Context, AssessRequest) (*Assessment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Assessment{FraudProbability: s.prob, Model: "stub-1"}, nil
}

func TestFraudStrategy_ThroughScorer(t *testing.T) {
	cfg := model.DefaultConfig().Scoring
	base, err := score.NewStrategy("llm", cfg)
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}

	s := score.NewScorer(cfg, base, score.WithFraudScorer(NewFraudStrategy(stubProvider{prob: 0.42})))
	got, err := s.FraudProbability(context.Background(), testClaim())
	if err != nil {
		t.Fatalf("FraudProbability: %v", err)
	}
	if got != 0.42 {
		t.Errorf("Expected 0.42, got %f", got)
	}

	failing := score.NewScorer(cfg, base, score.WithFraudScorer(NewFraudStrategy(stubProvider{err: errors.New("quota exceeded")})))
	_, err = failing.FraudProbability(context.Background(), testClaim())
	if !errors.Is(err, model.ErrScoringUnavailable) {
		t.Errorf("Expected ErrScoringUnavailable, got %v", err)
	}
}

func TestFraudStrategy_ThrottledPerProvider(t *testing.T) {
	limiter := ratelimit.NewLimiter(0, 0)
	limiter.SetKeyRate("stub", 0.01, 1)
	f := NewFraudStrategy(stubProvider{prob: 0.3}, WithLimiter(limiter))

	if _, err := f.ScoreFraud(context.Background(), testClaim()); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.ScoreFraud(ctx, testClaim())
	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Errorf("Expected the second call to be throttled, got %v", err)
	}

	if !limiter.Allow("other") {
		t.Error("Throttle must only apply to the provider's own key")
	}
}

func TestNewFraudStrategyFromModel_Throttle(t *testing.T) {
	f, err := NewFraudStrategyFromModel(model.LLMConfig{Provider: "openai", APIKey: "k", RequestsPerSecond: 2, Burst: 3})
	if err != nil {
		t.Fatalf("NewFraudStrategyFromModel: %v", err)
	}
	if f.limiter == nil || f.limiter.Len() != 1 {
		t.Fatal("Expected a limiter pinned to the provider key")
	}
	for i := 0; i < 3; i++ {
		if !f.limiter.Allow("openai") {
			t.Fatalf("request %d should fit the burst", i)
		}
	}
	if f.limiter.Allow("openai") {
		t.Error("Expected the provider key to be limited after the burst")
	}

	f, err = NewFraudStrategyFromModel(model.LLMConfig{Provider: "openai", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewFraudStrategyFromModel: %v", err)
	}
	if f.limiter != nil {
		t.Error("Expected no limiter without requests_per_second")
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{})
	if err != nil || p != nil {
		t.Errorf("Expected disabled provider, got %v, %v", p, err)
	}

	if _, err := NewProvider(Config{Provider: "oracle"}); err == nil {
		t.Error("Expected error for unknown provider")
	}

	p, err = NewProvider(Config{Provider: "OpenAI", APIKey: "k"})
	if err != nil || p.Name() != "openai" {
		t.Errorf("Expected openai provider, got %v, %v", p, err)
	}

	if _, err := NewFraudStrategyFromModel(model.LLMConfig{}); err == nil {
		t.Error("Expected error when llm scoring has no provider")
	}
}
