package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/mediclaim/internal/cache"
	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/pipeline"
)

var (
	claimFile    string
	claimID      string
	claimType    string
	claimAmount  float64
	claimDocs    []string
	claimMeta    map[string]string
	outJSON      string
	outFormat    string
	strategyName string
	noDelay      bool
	noStore      bool
	runTimeout   time.Duration
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a single claim and print the assessment",
	Long: `Analyze runs one claim through every evaluation stage, printing each
stage to stderr as it starts, then prints the assessment.

The claim comes from a JSON or YAML file, or from flags.
Ctrl-C cancels the run unless the final stage has already started.

Example:
  mediclaim analyze -f claim.json
  mediclaim analyze --id CLM-1 --type outpatient --amount 420 --doc invoice.pdf --meta patient_id=P-1
  mediclaim analyze -f claim.yaml --json out/claim.json --format json`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Input flags
	analyzeCmd.Flags().StringVarP(&claimFile, "file", "f", "", "claim file (JSON or YAML)")
	analyzeCmd.Flags().StringVar(&claimID, "id", "", "claim ID")
	analyzeCmd.Flags().StringVar(&claimType, "type", "", "claim type (outpatient, prescription, emergency, dental, inpatient)")
	analyzeCmd.Flags().Float64Var(&claimAmount, "amount", 0, "declared claim amount")
	analyzeCmd.Flags().StringSliceVar(&claimDocs, "doc", nil, "attached document name (repeatable)")
	analyzeCmd.Flags().StringToStringVar(&claimMeta, "meta", nil, "claim metadata key=value (repeatable)")

	// Output flags
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "also write the result as JSON to this path")
	analyzeCmd.Flags().StringVar(&outFormat, "format", "text", "stdout format (text, json)")

	// Pipeline flags
	analyzeCmd.Flags().StringVar(&strategyName, "strategy", "", "scoring strategy (rules, demo, llm)")
	analyzeCmd.Flags().BoolVar(&noDelay, "no-delay", false, "skip the simulated per-stage delay")
	analyzeCmd.Flags().BoolVar(&noStore, "no-store", false, "do not save the result to the result store")
	analyzeCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "cancel the run after this long (0 uses pipeline.run_timeout)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	claim, err := claimFromFlags(cmd)
	if err != nil {
		return err
	}

	cfg := *appConfig
	applyPipelineFlags(cmd, &cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	stderr := cmd.ErrOrStderr()
	result, err := orch.Analyze(ctx, claim, func(ev pipeline.ProgressEvent) {
		fmt.Fprintf(stderr, "[%d/%d] %s\n", ev.StageIndex+1, ev.StageCount, ev.StageLabel)
	})
	if err != nil {
		if errors.Is(err, model.ErrCancelled) {
			fmt.Fprintf(stderr, "✗ analysis cancelled\n")
		}
		return fmt.Errorf("analysis failed (%s): %w", model.KindOf(err), err)
	}

	if store.Enabled() {
		if err := store.Save(context.WithoutCancel(ctx), result); err != nil {
			fmt.Fprintf(stderr, "⚠️  result not saved: %v\n", err)
		}
	}

	renderer := pipeline.NewRenderer(cmd.OutOrStdout())
	if outJSON != "" {
		if err := renderer.RenderJSON(result, outJSON); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		if cfg.Output.Verbose {
			fmt.Fprintf(stderr, "✓ JSON written to %s\n", outJSON)
		}
	}

	switch outFormat {
	case "json":
		return renderer.WriteJSON(cmd.OutOrStdout(), result)
	default:
		renderer.RenderSummary(result)
		return nil
	}
}

// applyPipelineFlags folds per-command flags into a copy of the config
func applyPipelineFlags(cmd *cobra.Command, cfg *model.Config) {
	if cmd.Flags().Changed("strategy") {
		cfg.Scoring.Strategy = strategyName
	}
	if noDelay {
		cfg.Pipeline.StageDelay = 0
	}
	if runTimeout > 0 {
		cfg.Pipeline.RunTimeout = runTimeout
	}
}

// claimFromFlags loads the claim file if given, then applies any claim flags on top
func claimFromFlags(cmd *cobra.Command) (model.Claim, error) {
	var claim model.Claim
	if claimFile != "" {
		c, err := readClaimFile(claimFile)
		if err != nil {
			return model.Claim{}, err
		}
		claim = c
	} else if !cmd.Flags().Changed("id") {
		return model.Claim{}, fmt.Errorf("either --file or --id is required")
	}

	flags := cmd.Flags()
	if flags.Changed("id") {
		claim.ID = claimID
	}
	if flags.Changed("type") {
		t, err := model.ParseClaimType(claimType)
		if err != nil {
			return model.Claim{}, err
		}
		claim.Type = t
	}
	if flags.Changed("amount") {
		claim.Amount = claimAmount
	}
	for _, name := range claimDocs {
		claim.Documents = append(claim.Documents, model.DocumentRef{Name: name})
	}
	if len(claimMeta) > 0 {
		if claim.Metadata == nil {
			claim.Metadata = make(map[string]any, len(claimMeta))
		}
		for k, v := range claimMeta {
			claim.Metadata[k] = parseMetaValue(v)
		}
	}

	return claim, nil
}

// readClaimFile reads one claim. YAML parsing also accepts JSON.
func readClaimFile(path string) (model.Claim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Claim{}, fmt.Errorf("read claim file: %w", err)
	}

	var claim model.Claim
	if err := yaml.Unmarshal(data, &claim); err != nil {
		return model.Claim{}, fmt.Errorf("parse claim file %s: %w", path, err)
	}
	return claim, nil
}

func parseMetaValue(v string) any {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
