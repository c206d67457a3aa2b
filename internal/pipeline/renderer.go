package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/mediclaim/internal/model"
)

// Renderer writes analysis results as JSON files and human summaries
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer that prints summaries to out (stdout if nil)
func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{out: out}
}

// RenderJSON writes the result as indented JSON to path, creating parent dirs
func (r *Renderer) RenderJSON(result model.AnalysisResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteJSON encodes the result to w
func (r *Renderer) WriteJSON(w io.Writer, result model.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// RenderSummary prints a short human-readable report
func (r *Renderer) RenderSummary(result model.AnalysisResult) {
	fmt.Fprintf(r.out, "\nClaim %s\n", result.ClaimID)
	fmt.Fprintf(r.out, "  Decision hint:  %s\n", DecisionHint(result))
	fmt.Fprintf(r.out, "  Confidence:     %d%%\n", result.Confidence)
	fmt.Fprintf(r.out, "  Risk level:     %s\n", strings.ToUpper(string(result.RiskLevel)))
	fmt.Fprintf(r.out, "  Fraud:          %.1f%%\n", result.FraudProbability*100)

	dv := result.DocumentVerification
	fmt.Fprintf(r.out, "  Documents:      %s (%d%%)\n", yesNo(dv.Authentic, "authentic", "not verified"), dv.Confidence)
	for _, issue := range dv.Issues {
		fmt.Fprintf(r.out, "    - %s\n", issue)
	}

	ec := result.EligibilityCheck
	if ec.Covered {
		fmt.Fprintf(r.out, "  Eligibility:    covered at %d%%, deductible %d\n", ec.CoveragePercentage, ec.Deductible)
	} else {
		fmt.Fprintf(r.out, "  Eligibility:    not covered\n")
	}

	if len(result.Recommendations) > 0 {
		fmt.Fprintln(r.out, "  Recommendations:")
		for _, rec := range result.Recommendations {
			fmt.Fprintf(r.out, "    • %s\n", rec)
		}
	}
	fmt.Fprintf(r.out, "  Processed in %ds\n", result.ProcessingTimeSeconds)
}

// DecisionHint maps confidence to a coarse reviewer hint:
// 90 and above auto-approve, 80 and above review, otherwise escalate.
func DecisionHint(result model.AnalysisResult) string {
	switch {
	case result.Confidence >= 90:
		return "approve"
	case result.Confidence >= 80:
		return "review"
	default:
		return "escalate"
	}
}

func yesNo(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
