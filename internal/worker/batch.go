package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/mediclaim/internal/cache"
	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/pipeline"
	"github.com/ppiankov/mediclaim/internal/ratelimit"
)

// Analyzer runs one claim to completion
type Analyzer interface {
	Analyze(ctx context.Context, claim model.Claim, onProgress func(pipeline.ProgressEvent)) (model.AnalysisResult, error)
}

// analyzeOne runs a single claim of a batch. Analyzer panics become
// AnalysisFailed results so one bad claim cannot take down the batch.
func (b *BatchProcessor) analyzeOne(ctx context.Context, index int, claim model.Claim) (res *ClaimResult) {
	res = &ClaimResult{Index: index, ClaimID: claim.ID}
	defer func() {
		if r := recover(); r != nil {
			res.Result = nil
			res.Error = fmt.Errorf("%w: analyzer panic: %v", model.ErrAnalysisFailed, r)
		}
	}()

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, "batch"); err != nil {
			res.Error = fmt.Errorf("%w: %w", model.ErrCancelled, err)
			return res
		}
	}

	result, err := b.analyzer.Analyze(ctx, claim, nil)
	if err != nil {
		res.Error = err
		return res
	}
	res.Result = &result

	if err := b.store.Save(ctx, result); err != nil {
		slog.Warn("failed to store result", "claim_id", claim.ID, "error", err)
	}

	return res
}

// ClaimResult represents the outcome of one claim in a batch
type ClaimResult struct {
	Index   int
	ClaimID string
	Result  *model.AnalysisResult
	Error   error
}

// BatchProcessor analyzes many independent claims concurrently
type BatchProcessor struct {
	analyzer    Analyzer
	concurrency int
	limiter     *ratelimit.Limiter
	store       *cache.ResultStore
	onResult    func(*ClaimResult)
}

// NewBatchProcessor creates a new batch processor. A positive
// requestsPerSecond throttles how fast runs start, which matters when the
// fraud scorer calls a paid model API.
func NewBatchProcessor(analyzer Analyzer, concurrency int, requestsPerSecond float64, burst int) *BatchProcessor {
	var limiter *ratelimit.Limiter
	if requestsPerSecond > 0 {
		limiter = ratelimit.NewLimiter(requestsPerSecond, burst)
	}
	return &BatchProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
		limiter:     limiter,
	}
}

// WithStore saves every completed result to store
func (b *BatchProcessor) WithStore(store *cache.ResultStore) *BatchProcessor {
	b.store = store
	return b
}

// OnResult registers a callback invoked as each claim finishes, in completion order
func (b *BatchProcessor) OnResult(fn func(*ClaimResult)) *BatchProcessor {
	b.onResult = fn
	return b
}

// ProcessClaims analyzes claims concurrently and returns results in input order
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []model.Claim) []*ClaimResult {
	if len(claims) == 0 {
		return []*ClaimResult{}
	}

	pool := NewPool[*ClaimResult](ctx, b.concurrency, nil)
	pool.Start()

	// submit from a separate goroutine so results can drain while tasks queue
	go func() {
		defer pool.Close()
		for i, claim := range claims {
			i, claim := i, claim
			if !pool.Submit(func(ctx context.Context) *ClaimResult {
				return b.analyzeOne(ctx, i, claim)
			}) {
				return
			}
		}
	}()

	results := make([]*ClaimResult, 0, len(claims))
	for cr := range pool.Results() {
		if b.onResult != nil {
			b.onResult(cr)
		}
		results = append(results, cr)
	}

	// claims never picked up because ctx ended still get an outcome
	done := make(map[int]bool, len(results))
	for _, r := range results {
		done[r.Index] = true
	}
	for i, claim := range claims {
		if !done[i] {
			results = append(results, &ClaimResult{
				Index:   i,
				ClaimID: claim.ID,
				Error:   fmt.Errorf("%w: batch stopped before claim started", model.ErrCancelled),
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

// ProcessFile reads claims from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ClaimResult, error) {
	claims, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	return b.ProcessClaims(ctx, claims), nil
}

// ReadClaimsFromFile reads claims from a YAML list (.yaml/.yml), a JSON array,
// or JSON Lines (one claim per line, # comments allowed). Claims repeating an
// earlier ID are dropped; claims without an ID are kept so they fail validation.
func ReadClaimsFromFile(filePath string) ([]model.Claim, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	var claims []model.Claim
	switch ext := strings.ToLower(filepath.Ext(filePath)); {
	case ext == ".yaml" || ext == ".yml":
		if err := yaml.Unmarshal(data, &claims); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")):
		if err := json.Unmarshal(data, &claims); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		claims, err = readJSONLines(data)
		if err != nil {
			return nil, err
		}
	}

	return dedupe(claims), nil
}

func readJSONLines(data []byte) ([]model.Claim, error) {
	var claims []model.Claim

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var claim model.Claim
		if err := json.Unmarshal([]byte(line), &claim); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		claims = append(claims, claim)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}

func dedupe(claims []model.Claim) []model.Claim {
	seen := make(map[string]bool, len(claims))
	out := make([]model.Claim, 0, len(claims))
	for _, c := range claims {
		if c.ID != "" && seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
