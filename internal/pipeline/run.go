package pipeline

import (
	"context"
	"sync"

	"github.com/ppiankov/mediclaim/internal/model"
)

// Run is the caller's handle on one analysis run
type Run struct {
	ID      string
	ClaimID string

	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
	finishOnce sync.Once

	mu       sync.Mutex
	reporter Reporter

	result model.AnalysisResult
	err    error
}

func newRun(id, claimID string, reporter Reporter) *Run {
	if reporter == nil {
		reporter = noopReporter{}
	}
	return &Run{
		ID:       id,
		ClaimID:  claimID,
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
		reporter: reporter,
	}
}

// Cancel requests cooperative cancellation. A stage already in progress
// finishes first; once the final stage's work has begun the run completes.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() { close(r.cancel) })
}

// Detach stops delivery to the reporter. The run keeps advancing and its
// outcome stays available through Wait. A ChannelReporter's channel is
// closed on detach.
func (r *Run) Detach() {
	r.mu.Lock()
	old := r.reporter
	r.reporter = noopReporter{}
	r.mu.Unlock()

	if d, ok := old.(detacher); ok {
		d.detached()
	}
}

// Done is closed once the terminal outcome has been delivered
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run ends or ctx is done.
// It returns the result on success or the terminal error.
func (r *Run) Wait(ctx context.Context) (model.AnalysisResult, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return model.AnalysisResult{}, ctx.Err()
	}
}

func (r *Run) cancelledByCaller() bool {
	select {
	case <-r.cancel:
		return true
	default:
		return false
	}
}

func (r *Run) cancelRequested(ctx context.Context) bool {
	select {
	case <-r.cancel:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (r *Run) currentReporter() Reporter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reporter
}

func (r *Run) progress(ev ProgressEvent) {
	r.currentReporter().StageStarted(ev)
}

func (r *Run) complete(result model.AnalysisResult) {
	r.finishOnce.Do(func() {
		r.result = result
		r.currentReporter().Completed(result)
		close(r.done)
	})
}

func (r *Run) fail(err error) {
	r.finishOnce.Do(func() {
		r.err = err
		r.currentReporter().Failed(err)
		close(r.done)
	})
}
