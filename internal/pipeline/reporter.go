package pipeline

import (
	"sync"

	"github.com/ppiankov/mediclaim/internal/model"
)

// ProgressEvent announces that a run has entered a stage
type ProgressEvent struct {
	RunID      string `json:"run_id"`
	ClaimID    string `json:"claim_id"`
	StageIndex int    `json:"stage_index"`
	StageLabel string `json:"stage_label"`
	StageCount int    `json:"stage_count"`
}

// Reporter observes one run: an ordered sequence of StageStarted calls
// followed by exactly one of Completed or Failed.
// Calls for a run are made sequentially from the run's goroutine.
type Reporter interface {
	StageStarted(ev ProgressEvent)
	Completed(result model.AnalysisResult)
	Failed(err error)
}

// ReporterFuncs adapts plain callbacks to Reporter. Nil callbacks are skipped.
type ReporterFuncs struct {
	OnProgress func(ProgressEvent)
	OnComplete func(model.AnalysisResult)
	OnError    func(error)
}

func (f ReporterFuncs) StageStarted(ev ProgressEvent) {
	if f.OnProgress != nil {
		f.OnProgress(ev)
	}
}

func (f ReporterFuncs) Completed(result model.AnalysisResult) {
	if f.OnComplete != nil {
		f.OnComplete(result)
	}
}

func (f ReporterFuncs) Failed(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

// noopReporter discards everything; runs keep advancing with no listener
type noopReporter struct{}

func (noopReporter) StageStarted(ProgressEvent)     {}
func (noopReporter) Completed(model.AnalysisResult) {}
func (noopReporter) Failed(error)                   {}

// EventType tags a streamed event
type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

// Event is the wire form of a reporter call, used by channel and websocket consumers
type Event struct {
	Type     EventType             `json:"type"`
	Progress *ProgressEvent        `json:"progress,omitempty"`
	Result   *model.AnalysisResult `json:"result,omitempty"`
	Error    string                `json:"error,omitempty"`
	Kind     model.ErrorKind       `json:"kind,omitempty"`
}

// ErrorEvent builds the terminal event for err
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Error: err.Error(), Kind: model.KindOf(err)}
}

// detacher is implemented by reporters that release resources when their
// run is detached
type detacher interface {
	detached()
}

// ChannelReporter forwards reporter calls to a channel.
// The channel is closed after the terminal event or when the run is detached.
type ChannelReporter struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewChannelReporter creates a reporter whose channel can hold every event of a
// run over stageCount stages, so the run never blocks on a slow reader.
func NewChannelReporter(stageCount int) *ChannelReporter {
	if stageCount < 0 {
		stageCount = 0
	}
	return &ChannelReporter{ch: make(chan Event, stageCount+1)}
}

// Events returns the receive side
func (c *ChannelReporter) Events() <-chan Event {
	return c.ch
}

// StageStarted is at-most-once: the last buffer slot is kept for the terminal event
func (c *ChannelReporter) StageStarted(ev ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.ch) >= cap(c.ch)-1 {
		return
	}
	c.ch <- Event{Type: EventProgress, Progress: &ev}
}

func (c *ChannelReporter) Completed(result model.AnalysisResult) {
	c.finish(Event{Type: EventResult, Result: &result})
}

func (c *ChannelReporter) Failed(err error) {
	c.finish(ErrorEvent(err))
}

func (c *ChannelReporter) finish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.ch <- ev
	c.closed = true
	close(c.ch)
}

func (c *ChannelReporter) detached() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
