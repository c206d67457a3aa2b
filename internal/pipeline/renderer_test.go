package pipeline

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/mediclaim/internal/model"
)

func sampleResult() model.AnalysisResult {
	return model.AnalysisResult{
		ClaimID:          "CLM-R",
		Confidence:       84,
		RiskLevel:        model.RiskMedium,
		FraudProbability: 0.12,
		Recommendations:  []string{"Patient eligibility confirmed"},
		DocumentVerification: model.DocumentVerification{
			Authentic:  false,
			Confidence: 70,
			Issues:     []string{"Missing provider signature"},
		},
		EligibilityCheck:      model.EligibilityCheck{Covered: true, CoveragePercentage: 80, Deductible: 250},
		ProcessingTimeSeconds: 6,
	}
}

func TestRenderJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.json")
	r := NewRenderer(&bytes.Buffer{})

	if err := r.RenderJSON(sampleResult(), path); err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"claim_id", "confidence", "risk_level", "fraud_probability", "recommendations", "document_verification", "eligibility_check", "processing_time_seconds"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf).RenderSummary(sampleResult())

	out := buf.String()
	for _, want := range []string{"CLM-R", "84%", "MEDIUM", "Missing provider signature", "deductible 250", "review"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestDecisionHint(t *testing.T) {
	tests := []struct {
		confidence int
		want       string
	}{
		{100, "approve"},
		{90, "approve"},
		{89, "review"},
		{80, "review"},
		{79, "escalate"},
		{0, "escalate"},
	}
	for _, tt := range tests {
		if got := DecisionHint(model.AnalysisResult{Confidence: tt.confidence}); got != tt.want {
			t.Errorf("DecisionHint(%d) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}
