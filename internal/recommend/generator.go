package recommend

import (
	"fmt"
	"strings"

	"github.com/ppiankov/mediclaim/internal/model"
)

// Baseline findings that scoring can contradict
const (
	findingDocuments   = "All documents verified successfully"
	findingEligibility = "Patient eligibility confirmed"
)

// HighValueReview is appended whenever the amount exceeds the large-claim threshold
const HighValueReview = "High-value claim - manual review recommended"

// Generator derives human-readable guidance from a claim and its scores.
// Output is deterministic for identical inputs.
type Generator struct {
	baseline            []string
	largeClaimThreshold float64
	fraudAlertThreshold float64
}

// NewGenerator creates a generator from configuration
func NewGenerator(cfg model.RecommendationConfig) *Generator {
	return &Generator{
		baseline:            append([]string(nil), cfg.Baseline...),
		largeClaimThreshold: cfg.LargeClaimThreshold,
		fraudAlertThreshold: cfg.FraudAlertThreshold,
	}
}

// Recommendations returns the ordered guidance for a claim. Never nil.
func (g *Generator) Recommendations(claim model.Claim, scores model.Scores) []string {
	recs := make([]string, 0, len(g.baseline)+3)

	for _, finding := range g.baseline {
		switch finding {
		case findingDocuments:
			dv := scores.DocumentVerification
			if !dv.Authentic {
				recs = append(recs, "Document verification failed: "+strings.Join(dv.Issues, "; "))
				continue
			}
			if len(dv.Issues) > 0 {
				recs = append(recs, "Documents accepted with notes: "+strings.Join(dv.Issues, "; "))
				continue
			}
		case findingEligibility:
			if !scores.EligibilityCheck.Covered {
				recs = append(recs, fmt.Sprintf("Claim not covered under current %s policy terms", claim.Type))
				continue
			}
		}
		recs = append(recs, finding)
	}

	if g.fraudAlertThreshold > 0 && scores.FraudProbability >= g.fraudAlertThreshold {
		recs = append(recs, fmt.Sprintf("Elevated fraud indicators (%.0f%%) - refer to special investigations", scores.FraudProbability*100))
	}

	if claim.Amount > g.largeClaimThreshold {
		recs = append(recs, HighValueReview)
	}

	return recs
}
