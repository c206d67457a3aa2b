package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/mediclaim/internal/model"
)

// Provider defines the interface for model providers that assess claims
type Provider interface {
	// Name returns the provider name
	Name() string

	// Assess asks the model for a fraud probability for one claim
	Assess(ctx context.Context, req AssessRequest) (*Assessment, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// AssessRequest contains the input for one assessment
type AssessRequest struct {
	Claim model.Claim

	// Prompt overrides the default prompt when set
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	MaxTokens int
}

// Assessment is the parsed model output
type Assessment struct {
	// FraudProbability is always within [0,1]
	FraudProbability float64

	// Reason is the model's one-line justification, kept for logs only
	Reason string

	Model      string
	TokensUsed int
}

// Config holds provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	Model   string
	APIKey  string
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// resolve fills the request's prompt, model and token budget from the
// provider config, falling back to fallbackModel and 200 tokens
func (c Config) resolve(req AssessRequest, fallbackModel string) (prompt, model string, maxTokens int) {
	prompt = req.Prompt
	if prompt == "" {
		prompt = BuildPrompt(req.Claim)
	}

	model = req.Model
	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = fallbackModel
	}

	maxTokens = req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 200
	}
	return prompt, model, maxTokens
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 200,
	}
}

const systemPrompt = "You are a medical insurance claims auditor. You estimate fraud likelihood from claim structure only and answer with JSON."

// BuildPrompt constructs the default assessment prompt.
// Metadata values never leave the process; only key names are sent.
func BuildPrompt(claim model.Claim) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Estimate the probability that this insurance claim is fraudulent.

RULES:
1. Answer ONLY with JSON: {"fraud_probability": <number between 0 and 1>, "reason": "<one sentence>"}
2. Base the estimate on the claim structure below. Do not assume facts not listed.
3. Missing documents, duplicated documents and amounts unusual for the claim type raise the estimate.

Claim:
- Type: %s
- Amount: %.2f
- Documents: %d
`, claim.Type, claim.Amount, len(claim.Documents))

	for i, doc := range claim.Documents {
		if i >= 20 { // cap prompt size
			fmt.Fprintf(&b, "  ... and %d more documents\n", len(claim.Documents)-20)
			break
		}
		ct := doc.ContentType
		if ct == "" {
			ct = "unknown type"
		}
		fmt.Fprintf(&b, "  - %s (%s, %d bytes)\n", doc.Name, ct, doc.SizeBytes)
	}

	keys := make([]string, 0, len(claim.Metadata))
	for k := range claim.Metadata {
		if claim.HasMetadata(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		fmt.Fprintf(&b, "- Metadata fields present: %s\n", strings.Join(keys, ", "))
	} else {
		b.WriteString("- Metadata fields present: none\n")
	}

	return b.String()
}

var (
	fencePattern  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	numberPattern = regexp.MustCompile(`\d*\.?\d+`)
)

// ParseAssessment extracts a fraud probability from model output.
// It accepts the requested JSON (optionally fenced) or falls back to the
// first number in the text. Values outside [0,1] are rejected.
func ParseAssessment(text string) (float64, string, error) {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var parsed struct {
		FraudProbability *float64 `json:"fraud_probability"`
		Reason           string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err == nil && parsed.FraudProbability != nil {
		p := *parsed.FraudProbability
		if err := checkProbability(p); err != nil {
			return 0, "", err
		}
		return p, strings.TrimSpace(parsed.Reason), nil
	}

	match := numberPattern.FindString(text)
	if match == "" {
		return 0, "", fmt.Errorf("no probability in model output: %q", truncate(text, 80))
	}
	p, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse probability %q: %w", match, err)
	}
	if err := checkProbability(p); err != nil {
		return 0, "", err
	}
	return p, "", nil
}

func checkProbability(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("probability %v outside [0,1]", p)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
