package http

import (
	"net/http"

	"github.com/ascension-labs/govcore/internal/domain/governance"
)

// GetGovernance returns the current gate configuration.
func (h *Handlers) GetGovernance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Governance.Config())
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

// SetMode switches the governance mode.
func (h *Handlers) SetMode(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[setModeRequest](w, r)
	if !ok || !requireField(w, req.Mode, "mode") {
		return
	}
	mode, err := governance.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Governance.SetMode(r.Context(), mode); err != nil {
		writeDomainError(w, err, "set mode")
		return
	}
	writeJSON(w, http.StatusOK, h.Governance.Config())
}

type authorizeRequest struct {
	Action    governance.ActionType `json:"action"`
	RiskScore float64               `json:"risk_score"`
}

type authorizeResponse struct {
	Authorized bool            `json:"authorized"`
	Mode       governance.Mode `json:"mode"`
}

// Authorize runs the gate for one action. A denial is a 200 with
// authorized=false, not an error.
func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[authorizeRequest](w, r)
	if !ok || !requireField(w, string(req.Action), "action") {
		return
	}
	if req.RiskScore < 0 || req.RiskScore > 1 {
		writeError(w, http.StatusBadRequest, "risk_score must be in [0,1]")
		return
	}
	ok = h.Governance.Authorize(r.Context(), req.Action, req.RiskScore)
	writeJSON(w, http.StatusOK, authorizeResponse{Authorized: ok, Mode: h.Governance.Mode()})
}

type policyVerdict struct {
	Approved bool `json:"approved"`
}

// EvaluatePolicyChange records a proposed parameter change and returns the verdict.
func (h *Handlers) EvaluatePolicyChange(w http.ResponseWriter, r *http.Request) {
	change, ok := readJSON[governance.PolicyChange](w, r)
	if !ok {
		return
	}
	approved, err := h.Meta.EvaluatePolicyChange(r.Context(), change)
	if err != nil {
		writeDomainError(w, err, "evaluate policy change")
		return
	}
	writeJSON(w, http.StatusOK, policyVerdict{Approved: approved})
}

// Lineage returns every evaluated change, or those touching ?parameter=.
func (h *Handlers) Lineage(w http.ResponseWriter, r *http.Request) {
	if param := r.URL.Query().Get("parameter"); param != "" {
		writeJSON(w, http.StatusOK, nonNil(h.Meta.Correlate(param)))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Meta.Lineage()))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
