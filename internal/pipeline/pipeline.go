package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/mediclaim/internal/llm"
	"github.com/ppiankov/mediclaim/internal/metrics"
	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/recommend"
	"github.com/ppiankov/mediclaim/internal/score"
	"github.com/ppiankov/mediclaim/internal/stage"
)

var tracer = otel.Tracer("mediclaim.internal.pipeline")

// StageWork is the body of one non-scoring stage. It receives a context
// that is never cancelled by the caller or the run deadline; stages are
// not preempted.
type StageWork func(ctx context.Context, d stage.Descriptor) error

// Delay returns stage work that sleeps for d, standing in for real processing
func Delay(d time.Duration) StageWork {
	return func(ctx context.Context, _ stage.Descriptor) error {
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Orchestrator drives claims through the stage sequence.
// It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	registry  *stage.Registry
	scorer    *score.Scorer
	generator *recommend.Generator
	work      StageWork
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.PipelineMetrics
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithStageWork sets the body run for every stage before its own logic
func WithStageWork(w StageWork) Option {
	return func(o *Orchestrator) {
		if w != nil {
			o.work = w
		}
	}
}

// WithStageDelay makes each stage take d
func WithStageDelay(d time.Duration) Option {
	return WithStageWork(Delay(d))
}

// WithRunTimeout sets a deadline checked before each stage. A stage that
// has already started, including the final scoring stage and any model
// call it makes, is not preempted; model calls are bounded by the
// provider timeout instead. An expired deadline fails the run with
// ErrAnalysisFailed. Zero disables the deadline.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator wires a registry, scorer and generator together
func NewOrchestrator(registry *stage.Registry, scorer *score.Scorer, generator *recommend.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		scorer:    scorer,
		generator: generator,
		work:      Delay(0),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewFromConfig builds an orchestrator from configuration. Extra scorer
// options (such as a model-backed fraud scorer) are applied over the
// configured strategy.
func NewFromConfig(cfg *model.Config, scorerOpts []score.Option, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry, err := stage.NewRegistry(cfg.Pipeline.Stages)
	if err != nil {
		return nil, err
	}

	strategy, err := score.NewStrategy(cfg.Scoring.Strategy, cfg.Scoring)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Scoring.Strategy), "llm") {
		fraud, err := llm.NewFraudStrategyFromModel(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("llm scoring: %w", err)
		}
		scorerOpts = append([]score.Option{score.WithFraudScorer(fraud)}, scorerOpts...)
	}

	base := []Option{
		WithStageDelay(cfg.Pipeline.StageDelay),
		WithRunTimeout(cfg.Pipeline.RunTimeout),
	}

	return NewOrchestrator(
		registry,
		score.NewScorer(cfg.Scoring, strategy, scorerOpts...),
		recommend.NewGenerator(cfg.Recommendations),
		append(base, opts...)...,
	), nil
}

// Registry returns the stage sequence runs follow
func (o *Orchestrator) Registry() *stage.Registry {
	return o.registry
}

// Start validates the claim and begins a run in the background.
// Invalid claims are rejected here and never reach the reporter.
func (o *Orchestrator) Start(ctx context.Context, claim model.Claim, reporter Reporter) (*Run, error) {
	if err := claim.Validate(); err != nil {
		o.metrics.RunRejected(string(model.KindInvalidClaim))
		return nil, err
	}

	run := newRun(uuid.NewString(), claim.ID, reporter)
	o.metrics.RunStarted()

	go o.execute(ctx, run, claim)

	return run, nil
}

// Analyze runs a claim to completion, calling onProgress for each stage.
// Cancelling ctx cancels the run cooperatively and returns ErrCancelled
// unless the final stage had already begun.
func (o *Orchestrator) Analyze(ctx context.Context, claim model.Claim, onProgress func(ProgressEvent)) (model.AnalysisResult, error) {
	run, err := o.Start(ctx, claim, ReporterFuncs{OnProgress: onProgress})
	if err != nil {
		return model.AnalysisResult{}, err
	}
	return run.Wait(context.Background())
}

func (o *Orchestrator) execute(parent context.Context, run *Run, claim model.Claim) {
	started := time.Now()
	logger := o.logger.With(
		slog.String("run_id", run.ID),
		slog.String("claim_id", claim.ID),
	)

	ctx := parent
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, o.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("claim.id", claim.ID),
		attribute.String("claim.type", string(claim.Type)),
		attribute.Int("stage.count", o.registry.Len()),
	))
	defer span.End()

	// stage bodies never see caller cancellation
	workCtx := context.WithoutCancel(ctx)

	finish := func(outcome string) {
		elapsed := time.Since(started).Seconds()
		o.metrics.RunFinished(outcome, elapsed)
		logger.Info("analysis finished", "outcome", outcome, "elapsed_seconds", elapsed)
	}

	fail := func(err error) {
		kind := model.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		if kind == model.KindCancelled {
			logger.Info("analysis cancelled", "error", err)
		} else {
			logger.Warn("analysis failed", "kind", kind, "error", err)
		}
		finish(string(kind))
		run.fail(err)
	}

	logger.Debug("analysis started", "stages", o.registry.Len())

	total := o.registry.Len()
	for _, d := range o.registry.Stages() {
		if run.cancelRequested(ctx) {
			fail(o.interrupted(parent, ctx, run, d))
			return
		}

		run.progress(ProgressEvent{
			RunID:      run.ID,
			ClaimID:    claim.ID,
			StageIndex: d.Index,
			StageLabel: d.Label,
			StageCount: total,
		})

		if run.cancelRequested(ctx) {
			fail(o.interrupted(parent, ctx, run, d))
			return
		}

		if o.registry.IsFinal(d) {
			result, err := o.finalStage(workCtx, d, claim, started)
			if err != nil {
				fail(err)
				return
			}
			o.metrics.ObserveRisk(string(result.RiskLevel))
			span.SetAttributes(attribute.String("risk.level", string(result.RiskLevel)))
			finish("completed")
			run.complete(result)
			return
		}

		if err := o.runStage(workCtx, d); err != nil {
			fail(fmt.Errorf("%w: stage %q: %w", model.ErrAnalysisFailed, d.Label, err))
			return
		}
	}
}

// interrupted classifies why a run stopped before stage d. An explicit
// cancel or a cancelled caller context is a cancellation; an expired
// deadline is an analysis failure.
func (o *Orchestrator) interrupted(parent, ctx context.Context, run *Run, d stage.Descriptor) error {
	if run.cancelledByCaller() {
		return fmt.Errorf("%w before stage %q", model.ErrCancelled, d.Label)
	}
	if cause := parent.Err(); errors.Is(cause, context.Canceled) {
		return fmt.Errorf("%w before stage %q: %w", model.ErrCancelled, d.Label, cause)
	}
	cause := ctx.Err()
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	return fmt.Errorf("%w: run deadline reached before stage %q: %w", model.ErrAnalysisFailed, d.Label, cause)
}

func (o *Orchestrator) runStage(ctx context.Context, d stage.Descriptor) (err error) {
	ctx, span := tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.Int("stage.index", d.Index),
		attribute.String("stage.label", d.Label),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		o.metrics.ObserveStage(d.Label, time.Since(start).Seconds())
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return o.work(ctx, d)
}

// finalStage runs the last stage body, every scoring function and the
// recommendation generator, then assembles the result.
func (o *Orchestrator) finalStage(ctx context.Context, d stage.Descriptor, claim model.Claim, started time.Time) (model.AnalysisResult, error) {
	if err := o.runStage(ctx, d); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: stage %q: %w", model.ErrAnalysisFailed, d.Label, err)
	}

	scores, err := o.score(ctx, claim)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %w", model.ErrAnalysisFailed, err)
	}

	return model.AnalysisResult{
		ClaimID:               claim.ID,
		Confidence:            scores.Confidence,
		RiskLevel:             scores.RiskLevel,
		FraudProbability:      scores.FraudProbability,
		Recommendations:       o.generator.Recommendations(claim, scores),
		DocumentVerification:  scores.DocumentVerification,
		EligibilityCheck:      scores.EligibilityCheck,
		ProcessingTimeSeconds: elapsedSeconds(started),
	}, nil
}

func (o *Orchestrator) score(ctx context.Context, claim model.Claim) (scores model.Scores, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.score", trace.WithAttributes(
		attribute.String("scoring.strategy", o.scorer.StrategyName()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: scoring panic: %v", model.ErrScoringUnavailable, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return o.scorer.Score(ctx, claim)
}

func elapsedSeconds(started time.Time) int {
	secs := int(math.Round(time.Since(started).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}
