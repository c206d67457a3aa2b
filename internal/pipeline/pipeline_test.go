package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/mediclaim/internal/logging"
	"github.com/ppiankov/mediclaim/internal/metrics"
	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/recommend"
	"github.com/ppiankov/mediclaim/internal/score"
	"github.com/ppiankov/mediclaim/internal/stage"
)

// recorder captures reporter calls for assertions
type recorder struct {
	mu        sync.Mutex
	events    []ProgressEvent
	results   []model.AnalysisResult
	errs      []error
	terminals int
}

func (r *recorder) StageStarted(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Completed(result model.AnalysisResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	r.terminals++
}

func (r *recorder) Failed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.terminals++
}

func (r *recorder) snapshot() ([]ProgressEvent, []model.AnalysisResult, []error, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.events...), append([]model.AnalysisResult(nil), r.results...), append([]error(nil), r.errs...), r.terminals
}

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	cfg := model.DefaultConfig()

	registry, err := stage.NewRegistry(cfg.Pipeline.Stages)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	strategy, err := score.NewStrategy(cfg.Scoring.Strategy, cfg.Scoring)
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}

	base := []Option{WithLogger(logging.Discard())}
	return NewOrchestrator(
		registry,
		score.NewScorer(cfg.Scoring, strategy),
		recommend.NewGenerator(cfg.Recommendations),
		append(base, opts...)...,
	)
}

func testClaim(id string, typ model.ClaimType, amount float64) model.Claim {
	return model.Claim{
		ID:     id,
		Type:   typ,
		Amount: amount,
		Documents: []model.DocumentRef{
			{Name: "invoice.pdf", ContentType: "application/pdf", SizeBytes: 2048},
		},
		Metadata: map[string]any{"patient_id": "P-100"},
	}
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestAnalyze_ProgressThenResult(t *testing.T) {
	o := newTestOrchestrator(t)
	claim := testClaim("CLM-001", model.ClaimTypePrescription, 85)

	var events []ProgressEvent
	result, err := o.Analyze(context.Background(), claim, func(ev ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	labels := model.DefaultStages()
	if len(events) != len(labels) {
		t.Fatalf("Expected %d progress events, got %d", len(labels), len(events))
	}
	for i, ev := range events {
		if ev.StageIndex != i {
			t.Errorf("event %d: expected index %d, got %d", i, i, ev.StageIndex)
		}
		if ev.StageLabel != labels[i] {
			t.Errorf("event %d: expected label %q, got %q", i, labels[i], ev.StageLabel)
		}
		if ev.StageCount != len(labels) {
			t.Errorf("event %d: expected count %d, got %d", i, len(labels), ev.StageCount)
		}
		if ev.ClaimID != "CLM-001" || ev.RunID == "" {
			t.Errorf("event %d: unexpected identity %+v", i, ev)
		}
	}

	if result.ClaimID != "CLM-001" {
		t.Errorf("Expected claim id CLM-001, got %s", result.ClaimID)
	}
	if result.RiskLevel != model.RiskLow {
		t.Errorf("Expected low risk, got %s", result.RiskLevel)
	}
	if result.Confidence < 0 || result.Confidence > 100 {
		t.Errorf("Confidence out of range: %d", result.Confidence)
	}
	if result.FraudProbability < 0 || result.FraudProbability > 1 {
		t.Errorf("Fraud probability out of range: %f", result.FraudProbability)
	}
	if len(result.Recommendations) == 0 {
		t.Error("Expected recommendations")
	}
	for _, rec := range result.Recommendations {
		if rec == recommend.HighValueReview {
			t.Error("Low-value claim should not carry the high-value note")
		}
	}
	if result.ProcessingTimeSeconds < 0 {
		t.Errorf("Negative processing time %d", result.ProcessingTimeSeconds)
	}
}

func TestAnalyze_HighValueClaim(t *testing.T) {
	o := newTestOrchestrator(t)
	result, err := o.Analyze(context.Background(), testClaim("CLM-BIG", model.ClaimTypeInpatient, 6000), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.RiskLevel != model.RiskHigh {
		t.Errorf("Expected high risk, got %s", result.RiskLevel)
	}
	last := result.Recommendations[len(result.Recommendations)-1]
	if last != recommend.HighValueReview {
		t.Errorf("Expected high-value note last, got %v", result.Recommendations)
	}
}

func TestStart_InvalidClaimRejectedSynchronously(t *testing.T) {
	o := newTestOrchestrator(t)
	rec := &recorder{}

	tests := []model.Claim{
		testClaim("CLM-NEG", model.ClaimTypeOutpatient, -1),
		testClaim("", model.ClaimTypeOutpatient, 10),
		testClaim("CLM-TYPE", model.ClaimType("cosmetic"), 10),
	}

	for _, claim := range tests {
		run, err := o.Start(context.Background(), claim, rec)
		if !errors.Is(err, model.ErrInvalidClaim) {
			t.Errorf("Expected ErrInvalidClaim for %+v, got %v", claim, err)
		}
		if run != nil {
			t.Error("Expected no run for an invalid claim")
		}
	}

	events, _, _, terminals := rec.snapshot()
	if len(events) != 0 || terminals != 0 {
		t.Errorf("Reporter must not be called for invalid claims: %d events, %d terminals", len(events), terminals)
	}
}

func TestStart_CancelledBeforeFirstStage(t *testing.T) {
	o := newTestOrchestrator(t)
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := o.Start(ctx, testClaim("CLM-C", model.ClaimTypeDental, 100), rec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, run)

	events, results, errs, terminals := rec.snapshot()
	if len(events) != 0 {
		t.Errorf("Expected zero progress events, got %d", len(events))
	}
	if len(results) != 0 || terminals != 1 {
		t.Fatalf("Expected exactly one error terminal, got results=%d terminals=%d", len(results), terminals)
	}
	if !errors.Is(errs[0], model.ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got %v", errs[0])
	}
}

func TestAnalyze_RunDeadlineIsAnalysisFailure(t *testing.T) {
	o := newTestOrchestrator(t, WithStageDelay(30*time.Millisecond), WithRunTimeout(50*time.Millisecond))

	var progress int
	_, err := o.Analyze(context.Background(), testClaim("CLM-T", model.ClaimTypeOutpatient, 100), func(ProgressEvent) {
		progress++
	})
	if err == nil {
		t.Fatal("Expected the run deadline to stop the analysis")
	}
	if kind := model.KindOf(err); kind != model.KindAnalysisFailed {
		t.Errorf("Expected kind %q, got %q (%v)", model.KindAnalysisFailed, kind, err)
	}
	if errors.Is(err, model.ErrCancelled) {
		t.Errorf("Deadline must not be reported as a cancellation: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected the deadline cause to be wrapped, got %v", err)
	}
	if progress == 0 || progress >= len(model.DefaultStages()) {
		t.Errorf("Expected the deadline to land mid-run, got %d progress events", progress)
	}
}

func TestAnalyze_RunDeadlineDoesNotPreemptFinalStage(t *testing.T) {
	last := len(model.DefaultStages()) - 1
	o := newTestOrchestrator(t, WithRunTimeout(20*time.Millisecond), WithStageWork(func(_ context.Context, d stage.Descriptor) error {
		if d.Index == last {
			time.Sleep(60 * time.Millisecond)
		}
		return nil
	}))

	result, err := o.Analyze(context.Background(), testClaim("CLM-FIN", model.ClaimTypeDental, 100), nil)
	if err != nil {
		t.Fatalf("Expected the started final stage to complete past the deadline, got %v", err)
	}
	if result.ClaimID != "CLM-FIN" {
		t.Errorf("Unexpected result %+v", result)
	}
}

func TestStart_CallerDeadlineIsAnalysisFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	rec := &recorder{}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	run, err := o.Start(ctx, testClaim("CLM-DL", model.ClaimTypeDental, 100), rec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, run)

	_, _, errs, terminals := rec.snapshot()
	if terminals != 1 || len(errs) != 1 {
		t.Fatalf("Expected one error terminal, got %d", terminals)
	}
	if kind := model.KindOf(errs[0]); kind != model.KindAnalysisFailed {
		t.Errorf("Expected kind %q, got %q", model.KindAnalysisFailed, kind)
	}
}

func TestRun_CancelMidRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	o := newTestOrchestrator(t, WithStageWork(func(_ context.Context, d stage.Descriptor) error {
		if d.Index == 2 {
			close(entered)
			<-release
		}
		return nil
	}))
	rec := &recorder{}

	run, err := o.Start(context.Background(), testClaim("CLM-MID", model.ClaimTypeOutpatient, 300), rec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-entered
	run.Cancel()
	close(release)
	waitDone(t, run)

	events, results, errs, terminals := rec.snapshot()
	if len(events) != 3 {
		t.Errorf("Expected 3 progress events before cancellation, got %d", len(events))
	}
	if terminals != 1 || len(results) != 0 {
		t.Fatalf("Expected one error terminal, got %d terminals and %d results", terminals, len(results))
	}
	if !errors.Is(errs[0], model.ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got %v", errs[0])
	}

	if _, err := run.Wait(context.Background()); !errors.Is(err, model.ErrCancelled) {
		t.Errorf("Wait: expected ErrCancelled, got %v", err)
	}
}

func TestRun_CancelDuringFinalStageCompletes(t *testing.T) {
	final := len(model.DefaultStages()) - 1
	entered := make(chan struct{})
	release := make(chan struct{})

	o := newTestOrchestrator(t, WithStageWork(func(_ context.Context, d stage.Descriptor) error {
		if d.Index == final {
			close(entered)
			<-release
		}
		return nil
	}))
	rec := &recorder{}

	run, err := o.Start(context.Background(), testClaim("CLM-FIN", model.ClaimTypeEmergency, 900), rec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-entered
	run.Cancel()
	close(release)
	waitDone(t, run)

	_, results, errs, terminals := rec.snapshot()
	if terminals != 1 || len(results) != 1 {
		t.Fatalf("Expected completion once the final stage began, got results=%d errs=%v", len(results), errs)
	}
}

func TestAnalyze_ScoringFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	claim := testClaim("CLM-NOMETA", model.ClaimTypeOutpatient, 100)
	claim.Metadata = nil

	var events int
	_, err := o.Analyze(context.Background(), claim, func(ProgressEvent) { events++ })

	if !errors.Is(err, model.ErrAnalysisFailed) {
		t.Fatalf("Expected ErrAnalysisFailed, got %v", err)
	}
	if !errors.Is(err, model.ErrScoringUnavailable) {
		t.Errorf("Expected scoring cause to be preserved, got %v", err)
	}
	if model.KindOf(err) != model.KindAnalysisFailed {
		t.Errorf("Expected kind analysis_failed, got %s", model.KindOf(err))
	}
	if events != len(model.DefaultStages()) {
		t.Errorf("Expected all %d progress events before failure, got %d", len(model.DefaultStages()), events)
	}
}

func TestAnalyze_StageWorkFailure(t *testing.T) {
	o := newTestOrchestrator(t, WithStageWork(func(_ context.Context, d stage.Descriptor) error {
		if d.Index == 1 {
			return fmt.Errorf("document store offline")
		}
		return nil
	}))

	var events int
	_, err := o.Analyze(context.Background(), testClaim("CLM-W", model.ClaimTypeOutpatient, 100), func(ProgressEvent) { events++ })
	if !errors.Is(err, model.ErrAnalysisFailed) {
		t.Fatalf("Expected ErrAnalysisFailed, got %v", err)
	}
	if events != 2 {
		t.Errorf("Expected 2 progress events, got %d", events)
	}
}

func TestAnalyze_StageWorkPanic(t *testing.T) {
	o := newTestOrchestrator(t, WithStageWork(func(_ context.Context, d stage.Descriptor) error {
		if d.Index == 0 {
			panic("boom")
		}
		return nil
	}))

	_, err := o.Analyze(context.Background(), testClaim("CLM-P", model.ClaimTypeOutpatient, 100), nil)
	if !errors.Is(err, model.ErrAnalysisFailed) {
		t.Fatalf("Expected ErrAnalysisFailed after panic, got %v", err)
	}
}

func TestRun_DetachStillCompletes(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	o := newTestOrchestrator(t, WithStageWork(func(_ context.Context, d stage.Descriptor) error {
		if d.Index == 1 {
			close(entered)
			<-release
		}
		return nil
	}))
	rec := &recorder{}

	run, err := o.Start(context.Background(), testClaim("CLM-D", model.ClaimTypeOutpatient, 100), rec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-entered
	run.Detach()
	close(release)

	result, err := run.Wait(context.Background())
	if err != nil {
		t.Fatalf("Expected completion after detach, got %v", err)
	}
	if result.ClaimID != "CLM-D" {
		t.Errorf("Unexpected result %+v", result)
	}

	events, _, _, terminals := rec.snapshot()
	if len(events) != 2 {
		t.Errorf("Expected only the 2 events delivered before detach, got %d", len(events))
	}
	if terminals != 0 {
		t.Errorf("Detached reporter must not receive the terminal, got %d", terminals)
	}
}

func TestRun_DetachClosesChannelReporter(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	o := newTestOrchestrator(t, WithStageWork(func(_ context.Context, d stage.Descriptor) error {
		if d.Index == 1 {
			close(entered)
			<-release
		}
		return nil
	}))
	rep := NewChannelReporter(o.Registry().Len())

	run, err := o.Start(context.Background(), testClaim("CLM-DC", model.ClaimTypeOutpatient, 100), rep)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-entered
	run.Detach()

	drained := make(chan int)
	go func() {
		n := 0
		for ev := range rep.Events() {
			if ev.Type != EventProgress {
				t.Errorf("Detached channel must not carry a terminal, got %+v", ev)
			}
			n++
		}
		drained <- n
	}()

	select {
	case n := <-drained:
		if n != 2 {
			t.Errorf("Expected the 2 events sent before detach, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ranging over a detached reporter did not terminate")
	}

	close(release)
	if _, err := run.Wait(context.Background()); err != nil {
		t.Fatalf("Expected completion after detach, got %v", err)
	}
}

func TestChannelReporter_TerminalAfterFullBuffer(t *testing.T) {
	rep := NewChannelReporter(1)
	for i := 0; i < 3; i++ {
		rep.StageStarted(ProgressEvent{StageIndex: i})
	}
	rep.Failed(model.ErrCancelled)
	rep.detached()

	var got []EventType
	for ev := range rep.Events() {
		got = append(got, ev.Type)
	}
	if len(got) != 2 || got[0] != EventProgress || got[1] != EventError {
		t.Errorf("Expected one progress then the error terminal, got %v", got)
	}
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	o := newTestOrchestrator(t, WithStageDelay(time.Millisecond))
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("CLM-%03d", i)
			rec := &recorder{}
			run, err := o.Start(context.Background(), testClaim(id, model.ClaimTypeOutpatient, float64(100*i)), rec)
			if err != nil {
				errs <- err
				return
			}
			<-run.Done()

			events, results, _, terminals := rec.snapshot()
			if len(events) != len(model.DefaultStages()) || terminals != 1 || len(results) != 1 {
				errs <- fmt.Errorf("%s: events=%d terminals=%d", id, len(events), terminals)
				return
			}
			for _, ev := range events {
				if ev.ClaimID != id || ev.RunID != run.ID {
					errs <- fmt.Errorf("%s: foreign event %+v", id, ev)
					return
				}
			}
			if results[0].ClaimID != id {
				errs <- fmt.Errorf("%s: foreign result %s", id, results[0].ClaimID)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestChannelReporter_StreamsEveryEvent(t *testing.T) {
	o := newTestOrchestrator(t)
	rep := NewChannelReporter(o.Registry().Len())

	if _, err := o.Start(context.Background(), testClaim("CLM-CH", model.ClaimTypeDental, 200), rep); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var progress int
	var terminal *Event
	for ev := range rep.Events() {
		switch ev.Type {
		case EventProgress:
			progress++
		case EventResult, EventError:
			e := ev
			terminal = &e
		}
	}

	if progress != o.Registry().Len() {
		t.Errorf("Expected %d progress events, got %d", o.Registry().Len(), progress)
	}
	if terminal == nil || terminal.Type != EventResult || terminal.Result.ClaimID != "CLM-CH" {
		t.Errorf("Expected result terminal, got %+v", terminal)
	}
}

func TestErrorEvent_Kind(t *testing.T) {
	ev := ErrorEvent(fmt.Errorf("%w: %w", model.ErrAnalysisFailed, model.ErrScoringUnavailable))
	if ev.Type != EventError || ev.Kind != model.KindAnalysisFailed {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := newTestOrchestrator(t, WithMetrics(metrics.NewPipelineMetrics(reg)))

	if _, err := o.Analyze(context.Background(), testClaim("CLM-M", model.ClaimTypeOutpatient, 100), nil); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, err := o.Start(context.Background(), testClaim("CLM-BAD", model.ClaimTypeOutpatient, -5), nil); err == nil {
		t.Fatal("Expected rejection")
	}

	count, err := testutil.GatherAndCount(reg, "mediclaim_pipeline_runs_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected completed and invalid_claim series, got %d", count)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Pipeline.StageDelay = 0

	o, err := NewFromConfig(cfg, nil, WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if o.Registry().Len() != len(model.DefaultStages()) {
		t.Errorf("Unexpected stage count %d", o.Registry().Len())
	}

	cfg.Scoring.Strategy = "astrology"
	if _, err := NewFromConfig(cfg, nil); err == nil {
		t.Error("Expected error for unknown strategy")
	}

	cfg = model.DefaultConfig()
	cfg.Pipeline.Stages = nil
	if _, err := NewFromConfig(cfg, nil); err == nil {
		t.Error("Expected error for empty stage list")
	}
}

func TestNewFromConfig_LLMStrategyNeedsProvider(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Scoring.Strategy = "llm"
	if _, err := NewFromConfig(cfg, nil); err == nil {
		t.Fatal("Expected error for llm strategy without a provider")
	}

	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "test-key"
	if _, err := NewFromConfig(cfg, nil, WithLogger(logging.Discard())); err != nil {
		t.Fatalf("Expected llm strategy to build, got %v", err)
	}
}
