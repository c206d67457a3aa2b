package model

// AnalysisResult is the terminal output of a completed analysis run.
// It is produced once per successful run and owned by the caller afterwards.
type AnalysisResult struct {
	ClaimID               string               `json:"claim_id"`
	Confidence            int                  `json:"confidence"`             // 0-100
	RiskLevel             RiskLevel            `json:"risk_level"`             // low, medium, high
	FraudProbability      float64              `json:"fraud_probability"`      // 0-1
	Recommendations       []string             `json:"recommendations"`        // Never null on the wire
	DocumentVerification  DocumentVerification `json:"document_verification"`
	EligibilityCheck      EligibilityCheck     `json:"eligibility_check"`
	ProcessingTimeSeconds int                  `json:"processing_time_seconds"`
}

// DocumentVerification is the authenticity verdict for the attached documents
type DocumentVerification struct {
	Authentic  bool     `json:"authentic"`
	Confidence int      `json:"confidence"` // 0-100
	Issues     []string `json:"issues"`     // Non-empty whenever Authentic is false
}

// EligibilityCheck describes whether and how much of the claim is covered
type EligibilityCheck struct {
	Covered            bool `json:"covered"`
	CoveragePercentage int  `json:"coverage_percentage"` // 0 whenever Covered is false
	Deductible         int  `json:"deductible"`          // Whole currency units
}

// RiskLevel is the coarse severity tier of a claim
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Scores carries the intermediate scoring values the recommendation generator reads
type Scores struct {
	RiskLevel            RiskLevel
	Confidence           int
	FraudProbability     float64
	DocumentVerification DocumentVerification
	EligibilityCheck     EligibilityCheck
}

// Capabilities returns the static description of what the analysis covers
func Capabilities() map[string]string {
	return map[string]string{
		"Document Processing":         "OCR and document checks to extract and verify medical documents",
		"Fraud Detection":             "Scoring of claim attributes against known fraud indicators",
		"Medical Code Validation":     "Verification of ICD-10, CPT, and HCPCS codes",
		"Eligibility Verification":    "Policy and coverage verification per claim type",
		"Risk Assessment":             "Risk tiering by declared amount to set processing priority",
		"Natural Language Processing": "Understanding of medical terminology and treatment descriptions",
	}
}
