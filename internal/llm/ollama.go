package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/mediclaim/internal/util"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider assesses claims with a model served by an Ollama daemon.
// Claims never leave the host when it points at a local daemon.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaProvider creates an Ollama provider. A model is required;
// the base URL defaults to the local daemon.
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second // local models can be slow
	}

	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable reports whether the daemon answers and has the configured model pulled
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	var tags ollamaTags
	if err := p.call(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		slog.Warn("Ollama availability check failed", "base_url", p.baseURL, "error", err)
		return false
	}

	for _, m := range tags.Models {
		if m.Name == p.config.Model || strings.TrimSuffix(m.Name, ":latest") == p.config.Model {
			return true
		}
	}
	slog.Warn("Ollama model not pulled", "base_url", p.baseURL, "model", p.config.Model)
	return false
}

// Assess asks the model for a fraud probability in JSON mode
func (p *OllamaProvider) Assess(ctx context.Context, req AssessRequest) (*Assessment, error) {
	prompt, model, maxTokens := p.config.resolve(req, p.config.Model)

	var resp ollamaChatResponse
	err := p.call(ctx, http.MethodPost, "/api/chat", ollamaChatRequest{
		Model: model,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Format: "json",
		Options: map[string]any{
			"temperature": 0,
			"num_predict": maxTokens,
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}

	prob, reason, err := ParseAssessment(resp.Message.Content)
	if err != nil {
		return nil, err
	}

	// some models report zero counts; estimate at ~4 characters per token
	tokensUsed := resp.PromptEvalCount + resp.EvalCount
	if tokensUsed == 0 {
		tokensUsed = (len(systemPrompt) + len(prompt) + len(resp.Message.Content)) / 4
	}

	return &Assessment{
		FraudProbability: prob,
		Reason:           reason,
		Model:            resp.Model,
		TokensUsed:       tokensUsed,
	}, nil
}

// call sends one JSON request to the daemon and decodes the JSON reply into out
func (p *OllamaProvider) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("status %d: %s", httpResp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
