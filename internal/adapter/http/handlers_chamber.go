package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/domain/persona"
)

type stageRequest struct {
	ID       string      `json:"id"`
	Proposed persona.Set `json:"proposed"`
}

// StageExperiment starts an A/B experiment for a proposed persona set.
func (h *Handlers) StageExperiment(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[stageRequest](w, r)
	if !ok {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	exp, err := h.Chamber.Stage(r.Context(), req.ID, req.Proposed)
	if err != nil {
		writeDomainError(w, err, "stage experiment")
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

// ActiveExperiment returns the TESTING experiment.
func (h *Handlers) ActiveExperiment(w http.ResponseWriter, _ *http.Request) {
	exp, ok := h.Chamber.Active()
	if !ok {
		writeError(w, http.StatusNotFound, "no experiment is testing")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// Baseline returns the frozen baseline configuration.
func (h *Handlers) Baseline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Chamber.Baseline())
}

type validateResponse struct {
	FitnessDelta float64 `json:"fitness_delta"`
}

// ValidateExperiment runs one baseline-vs-proposed validation pass.
func (h *Handlers) ValidateExperiment(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[missionRequest](w, r)
	if !ok || !requireField(w, req.Objective, "objective") {
		return
	}
	ctx := r.Context()
	if h.ValidationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ValidationTimeout)
		defer cancel()
	}
	delta, err := h.Chamber.RunValidationPass(ctx, req.Objective)
	if err != nil {
		writeDomainError(w, err, "validation pass")
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{FitnessDelta: delta})
}

type promoteResponse struct {
	Promoted bool   `json:"promoted"`
	Reason   string `json:"reason,omitempty"`
}

// PromoteExperiment promotes the TESTING experiment when the governance
// gate allows a promotion and the measured delta is positive.
func (h *Handlers) PromoteExperiment(w http.ResponseWriter, r *http.Request) {
	exp, ok := h.Chamber.Active()
	if !ok {
		writeError(w, http.StatusConflict, "no experiment is testing")
		return
	}
	// A persona swap carries no change set, so only the mode gates it.
	if !h.Governance.Authorize(r.Context(), governance.ActionPromote, 0) {
		writeJSON(w, http.StatusOK, promoteResponse{Reason: "denied by governance mode " + string(h.Governance.Mode())})
		return
	}
	promoted, err := h.Chamber.Promote(r.Context())
	if err != nil {
		writeDomainError(w, err, "promote experiment")
		return
	}
	resp := promoteResponse{Promoted: promoted}
	if !promoted {
		resp.Reason = "fitness delta is not positive"
		if !exp.Validated {
			resp.Reason = "experiment has not been validated"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// RejectExperiment rejects the TESTING experiment.
func (h *Handlers) RejectExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := h.Chamber.Reject(r.Context())
	if err != nil {
		writeDomainError(w, err, "reject experiment")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}
