package score

import (
	"context"
	"hash/fnv"
	"math/rand/v2"

	"github.com/ppiankov/mediclaim/internal/model"
)

// demoIssues are the issues the demo strategy may report
var demoIssues = []string{
	"Document quality could be improved",
	"Minor formatting inconsistencies",
	"Date verification needed",
}

// Per-capability stream ids so the four draws for one claim are independent
const (
	streamConfidence uint64 = iota + 1
	streamFraud
	streamDocuments
	streamEligibility
)

// DemoStrategy produces plausible placeholder scores for demos:
// confidence 80-99, fraud 0-0.1, ~90% authentic, ~95% covered.
// Each draw is seeded from the claim id, so the same claim scores the same way
// and no RNG state is shared between runs.
type DemoStrategy struct{}

// NewDemoStrategy creates the demo strategy
func NewDemoStrategy() *DemoStrategy {
	return &DemoStrategy{}
}

// Name returns the strategy name
func (d *DemoStrategy) Name() string {
	return "demo"
}

func (d *DemoStrategy) ScoreConfidence(_ context.Context, claim model.Claim) (int, error) {
	rng := claimRand(claim, streamConfidence)
	return 80 + rng.IntN(20), nil
}

func (d *DemoStrategy) ScoreFraud(_ context.Context, claim model.Claim) (float64, error) {
	rng := claimRand(claim, streamFraud)
	return rng.Float64() * 0.1, nil
}

func (d *DemoStrategy) VerifyDocuments(_ context.Context, claim model.Claim) (model.DocumentVerification, error) {
	rng := claimRand(claim, streamDocuments)

	authentic := rng.Float64() > 0.1
	confidence := 85 + rng.IntN(15)

	issues := []string{}
	if rng.Float64() > 0.7 {
		issues = append(issues, demoIssues[rng.IntN(len(demoIssues))])
	}
	if !authentic && len(issues) == 0 {
		issues = append(issues, "Date verification needed")
	}

	return model.DocumentVerification{
		Authentic:  authentic,
		Confidence: confidence,
		Issues:     issues,
	}, nil
}

func (d *DemoStrategy) CheckEligibility(_ context.Context, claim model.Claim) (model.EligibilityCheck, error) {
	rng := claimRand(claim, streamEligibility)

	covered := rng.Float64() > 0.05
	percentage := 80 + rng.IntN(20)
	deductible := 100 + rng.IntN(500)
	if !covered {
		percentage = 0
	}

	return model.EligibilityCheck{
		Covered:            covered,
		CoveragePercentage: percentage,
		Deductible:         deductible,
	}, nil
}

// claimRand returns a fresh generator for one claim and capability
func claimRand(claim model.Claim, stream uint64) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(claim.ID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(claim.Type))
	return rand.New(rand.NewPCG(h.Sum64(), stream))
}
