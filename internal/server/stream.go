package server

import (
	"context"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/pipeline"
)

// InboundMessage is what stream clients send: one "analyze" carrying the
// claim, then optionally "cancel".
type InboundMessage struct {
	Type  string       `json:"type"`
	Claim *model.Claim `json:"claim,omitempty"`
}

// OutboundMessage is a pipeline event tagged with its run
type OutboundMessage struct {
	pipeline.Event
	RunID string `json:"run_id,omitempty"`
}

// Stream message types beyond the pipeline's own
const (
	MessageAnalyze  = "analyze"
	MessageCancel   = "cancel"
	MessageAccepted = "accepted"
)

func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveStream(r.Context(), conn)
	}).ServeHTTP(w, r)
}

func (h *handlers) serveStream(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var msg InboundMessage
	if err := websocket.JSON.Receive(conn, &msg); err != nil {
		return
	}
	if msg.Type != MessageAnalyze || msg.Claim == nil {
		_ = websocket.JSON.Send(conn, OutboundMessage{Event: pipeline.Event{
			Type:  pipeline.EventError,
			Error: `expected {"type":"analyze","claim":{...}}`,
			Kind:  model.KindInvalidClaim,
		}})
		return
	}

	rep := pipeline.NewChannelReporter(h.orch.Registry().Len())
	run, err := h.orch.Start(ctx, *msg.Claim, rep)
	if err != nil {
		_ = websocket.JSON.Send(conn, OutboundMessage{Event: pipeline.ErrorEvent(err)})
		return
	}

	logger := h.logger.With("run_id", run.ID, "claim_id", msg.Claim.ID)

	if err := websocket.JSON.Send(conn, OutboundMessage{Event: pipeline.Event{Type: MessageAccepted}, RunID: run.ID}); err != nil {
		run.Cancel()
		return
	}

	// client messages after the claim: cancel, or a read error on disconnect
	go func() {
		for {
			var in InboundMessage
			if err := websocket.JSON.Receive(conn, &in); err != nil {
				run.Cancel()
				return
			}
			if in.Type == MessageCancel {
				logger.Info("client cancelled run")
				run.Cancel()
			}
		}
	}()

	for ev := range rep.Events() {
		if ev.Type == pipeline.EventResult && ev.Result != nil {
			if err := h.store.Save(ctx, *ev.Result); err != nil {
				logger.Warn("failed to store result", "error", err)
			}
		}
		if err := websocket.JSON.Send(conn, OutboundMessage{Event: ev, RunID: run.ID}); err != nil {
			logger.Info("stream client gone", "error", err)
			run.Cancel()
			return
		}
	}
}
