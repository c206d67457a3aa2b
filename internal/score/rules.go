package score

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/mediclaim/internal/model"
)

// acceptedContentTypes are the document formats intake can read
var acceptedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/tiff":      true,
}

// RuleStrategy scores claims with fixed, explainable rules.
// Output depends only on the claim and the coverage table.
type RuleStrategy struct {
	coverage map[string]model.CoverageRule
}

// NewRuleStrategy creates a rule strategy over the given coverage table
func NewRuleStrategy(coverage map[string]model.CoverageRule) *RuleStrategy {
	table := make(map[string]model.CoverageRule, len(coverage))
	for k, v := range coverage {
		table[strings.ToLower(k)] = v
	}
	return &RuleStrategy{coverage: table}
}

// Name returns the strategy name
func (r *RuleStrategy) Name() string {
	return "rules"
}

// ScoreConfidence rewards attached documentation (0-3 docs, 8 points each)
// and a stated diagnosis code (6 points) on top of a base of 70.
func (r *RuleStrategy) ScoreConfidence(_ context.Context, claim model.Claim) (int, error) {
	docs := len(claim.Documents)
	if docs > 3 {
		docs = 3
	}

	confidence := 70 + docs*8
	if claim.HasMetadata("diagnosis_code") {
		confidence += 6
	}
	return confidence, nil
}

// ScoreFraud combines the amount relative to the policy ceiling, missing
// documentation, and duplicate attachments.
func (r *RuleStrategy) ScoreFraud(_ context.Context, claim model.Claim) (float64, error) {
	p := 0.02

	if rule, ok := r.coverage[string(claim.Type)]; ok && rule.PolicyMax > 0 {
		p += 0.3 * math.Min(claim.Amount/rule.PolicyMax, 1)
	}
	if len(claim.Documents) == 0 {
		p += 0.25
	}
	if len(duplicateNames(claim.Documents)) > 0 {
		p += 0.1
	}

	return math.Round(math.Min(p, 1)*1000) / 1000, nil
}

// VerifyDocuments inspects the attachment list. Missing or empty documents
// fail authenticity; format problems and duplicates are reported as issues.
func (r *RuleStrategy) VerifyDocuments(_ context.Context, claim model.Claim) (model.DocumentVerification, error) {
	issues := []string{}
	authentic := true

	if len(claim.Documents) == 0 {
		return model.DocumentVerification{
			Authentic:  false,
			Confidence: 0,
			Issues:     []string{"No supporting documents attached"},
		}, nil
	}

	for i, doc := range claim.Documents {
		name := strings.TrimSpace(doc.Name)
		if name == "" {
			authentic = false
			issues = append(issues, fmt.Sprintf("Document %d has no name", i+1))
			continue
		}
		if doc.SizeBytes < 0 || (doc.SizeBytes == 0 && doc.ContentType != "") {
			authentic = false
			issues = append(issues, fmt.Sprintf("Document %q is empty", name))
		}
		if doc.ContentType != "" && !acceptedContentTypes[strings.ToLower(doc.ContentType)] {
			issues = append(issues, fmt.Sprintf("Document %q has unsupported format %s", name, doc.ContentType))
		}
	}
	for _, name := range duplicateNames(claim.Documents) {
		issues = append(issues, fmt.Sprintf("Duplicate document %q", name))
	}

	confidence := 100 - 15*len(issues)
	if confidence < 0 {
		confidence = 0
	}

	return model.DocumentVerification{
		Authentic:  authentic,
		Confidence: confidence,
		Issues:     issues,
	}, nil
}

// CheckEligibility applies the coverage terms of the claim's type.
// Claims above the policy maximum are not covered.
func (r *RuleStrategy) CheckEligibility(_ context.Context, claim model.Claim) (model.EligibilityCheck, error) {
	rule, ok := r.coverage[string(claim.Type)]
	if !ok {
		return model.EligibilityCheck{}, fmt.Errorf("%w: no coverage terms for claim type %q", model.ErrScoringUnavailable, claim.Type)
	}

	if !rule.Covered || (rule.PolicyMax > 0 && claim.Amount > rule.PolicyMax) {
		return model.EligibilityCheck{
			Covered:            false,
			CoveragePercentage: 0,
			Deductible:         rule.Deductible,
		}, nil
	}

	return model.EligibilityCheck{
		Covered:            true,
		CoveragePercentage: rule.Percentage,
		Deductible:         rule.Deductible,
	}, nil
}

// duplicateNames returns document names attached more than once, in first-seen order
func duplicateNames(docs []model.DocumentRef) []string {
	seen := make(map[string]int)
	var dups []string
	for _, d := range docs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		seen[name]++
		if seen[name] == 2 {
			dups = append(dups, name)
		}
	}
	return dups
}
