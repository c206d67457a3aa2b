package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ppiankov/mediclaim/internal/cache"
	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/pipeline"
)

// StatusClientClosedRequest is the non-standard status for runs the client abandoned
const StatusClientClosedRequest = 499

const maxClaimBytes = 1 << 20

type handlers struct {
	orch   *pipeline.Orchestrator
	store  *cache.ResultStore
	logger *slog.Logger
}

type analyzeResponse struct {
	RunID  string                   `json:"run_id"`
	Events []pipeline.ProgressEvent `json:"events"`
	Result model.AnalysisResult     `json:"result"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stages": h.orch.Registry().Len(),
		"store":  h.store.Enabled(),
	})
}

func (h *handlers) stages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stages": h.orch.Registry().Stages(),
	})
}

func (h *handlers) capabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Capabilities())
}

// analyze runs one claim synchronously. The run is bound to the request
// context, so a client that disconnects cancels the run.
func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	var claim model.Claim
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClaimBytes))
	if err := dec.Decode(&claim); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "invalid request body: " + err.Error(),
			Kind:  model.KindInvalidClaim,
		})
		return
	}

	events := make([]pipeline.ProgressEvent, 0, h.orch.Registry().Len())
	run, err := h.orch.Start(r.Context(), claim, pipeline.ReporterFuncs{
		OnProgress: func(ev pipeline.ProgressEvent) { events = append(events, ev) },
	})
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Kind: model.KindOf(err)})
		return
	}

	// the run observes r.Context() itself, so waiting for Done always terminates
	<-run.Done()
	result, err := run.Wait(context.Background())
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{
			RunID:  run.ID,
			Error:  err.Error(),
			Kind:   model.KindOf(err),
			Events: events,
		})
		return
	}

	h.save(r, result)
	writeJSON(w, http.StatusOK, analyzeResponse{RunID: run.ID, Events: events, Result: result})
}

func (h *handlers) getAnalysis(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	result, err := h.store.Load(r.Context(), claimID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no analysis stored for claim " + claimID})
			return
		}
		h.logger.Error("load analysis failed", "claim_id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load analysis"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) save(r *http.Request, result model.AnalysisResult) {
	if err := h.store.Save(r.Context(), result); err != nil {
		h.logger.Warn("failed to store result", "claim_id", result.ClaimID, "error", err)
	}
}

func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindInvalidClaim:
		return http.StatusUnprocessableEntity
	case model.KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}
