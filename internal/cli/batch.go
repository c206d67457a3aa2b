package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/mediclaim/internal/cache"
	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/pipeline"
	"github.com/ppiankov/mediclaim/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchRPS     float64
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Analyze many claims from a file in parallel",
	Long: `Batch analyzes independent claims concurrently:
- Read claims from a JSON array, JSON Lines, or YAML list file
- Run each claim in its own pipeline run with a bounded worker count
- Write one JSON result per claim to the output directory

Runs never share state, so one failing claim does not affect the others.

Example:
  mediclaim batch claims.jsonl
  mediclaim batch claims.yaml --concurrency 10 --output-dir ./results
  mediclaim batch claims.json --strategy llm --rps 2`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "number of concurrent runs (0 uses concurrency.workers)")
	batchCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "./results", "output directory for per-claim JSON results")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "overall batch timeout")
	batchCmd.Flags().Float64Var(&batchRPS, "rps", 0, "max runs started per second (0 is unlimited)")
	batchCmd.Flags().StringVar(&strategyName, "strategy", "", "scoring strategy (rules, demo, llm)")
	batchCmd.Flags().BoolVar(&noDelay, "no-delay", false, "skip the simulated per-stage delay")
	batchCmd.Flags().BoolVar(&noStore, "no-store", false, "do not save results to the result store")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg := *appConfig
	applyPipelineFlags(cmd, &cfg)
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	claims, err := worker.ReadClaimsFromFile(file)
	if err != nil {
		return fmt.Errorf("read claims: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "  mediclaim batch analysis\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "  Input file:   %s (%d claims)\n", file, len(claims))
	fmt.Fprintf(stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(stderr, "  Strategy:     %s\n", cfg.Scoring.Strategy)
	fmt.Fprintf(stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	orch, err := newOrchestrator(&cfg)
	if err != nil {
		return err
	}

	var store *cache.ResultStore
	if !noStore {
		s, closeStore, err := openStore(ctx, cfg.Cache)
		if err != nil {
			return fmt.Errorf("open result store: %w", err)
		}
		defer closeStore()
		store = s
	}

	renderer := pipeline.NewRenderer(cmd.OutOrStdout())
	var done atomic.Int64
	total := len(claims)

	processor := worker.NewBatchProcessor(orch, cfg.Concurrency.Workers, batchRPS, cfg.RateLimiting.BurstSize).
		WithStore(store).
		OnResult(func(r *worker.ClaimResult) {
			n := done.Add(1)
			if r.Error != nil {
				fmt.Fprintf(stderr, "✗ [%d/%d] %s: %s\n", n, total, displayID(r), model.KindOf(r.Error))
				return
			}
			fmt.Fprintf(stderr, "✓ [%d/%d] %s (risk: %s, confidence: %d)\n", n, total, displayID(r), r.Result.RiskLevel, r.Result.Confidence)
		})

	results := processor.ProcessClaims(ctx, claims)

	// Write results and tally outcomes
	byKind := make(map[model.ErrorKind]int)
	successCount := 0
	for _, r := range results {
		if r.Error != nil {
			byKind[model.KindOf(r.Error)]++
			if cfg.Output.Verbose {
				fmt.Fprintf(stderr, "  %s: %v\n", displayID(r), r.Error)
			}
			continue
		}

		path := filepath.Join(outputDir, sanitizeFilename(r.ClaimID)+".json")
		if err := renderer.RenderJSON(*r.Result, path); err != nil {
			fmt.Fprintf(stderr, "✗ %s: failed to write JSON: %v\n", r.ClaimID, err)
			byKind[model.KindAnalysisFailed]++
			continue
		}
		successCount++
	}

	// Summary
	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "  Batch complete\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "  Total:     %d claims\n", len(results))
	fmt.Fprintf(stderr, "  Success:   %d\n", successCount)
	for _, kind := range []model.ErrorKind{model.KindInvalidClaim, model.KindAnalysisFailed, model.KindCancelled} {
		if byKind[kind] > 0 {
			fmt.Fprintf(stderr, "  %-10s %d\n", string(kind)+":", byKind[kind])
		}
	}
	fmt.Fprintf(stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(stderr, "\n")

	if successCount < len(results) {
		return fmt.Errorf("%d of %d claims did not complete", len(results)-successCount, len(results))
	}
	return nil
}

func displayID(r *worker.ClaimResult) string {
	if r.ClaimID == "" {
		return fmt.Sprintf("#%d", r.Index+1)
	}
	return r.ClaimID
}

// sanitizeFilename turns a claim ID into a safe file name
func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	)
	s = replacer.Replace(strings.TrimSpace(s))
	s = strings.TrimLeft(s, ".")
	if s == "" {
		s = "claim"
	}

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}

	return s
}
