package http

import (
	"net/http"
	"time"

	"github.com/ascension-labs/govcore/internal/adapter/litellm"
	"github.com/ascension-labs/govcore/internal/domain/persona"
	"github.com/ascension-labs/govcore/internal/domain/stability"
	"github.com/ascension-labs/govcore/internal/service"
)

// Handlers holds the HTTP handler dependencies. Bus, Monitor, Cluster and
// LiteLLM are optional; their routes answer 503 when unset.
// ValidationTimeout bounds a chamber validation pass; zero means no bound.
type Handlers struct {
	Consensus  *service.ConsensusEngine
	Bus        *service.FederationBus
	Rollback   *service.FederationRollbackManager
	Monitor    *service.HealthMonitor
	Governance *service.GovernanceManager
	Meta       *service.MetaGovernanceEngine
	Chamber    *service.Chamber
	Cluster    *service.ClusterService
	Personas   *service.PersonaRegistry
	Stability  *service.StabilityEngine
	LiteLLM    *litellm.Client
	Version    string

	ValidationTimeout time.Duration
}

// Health reports liveness and, when configured, provider reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "version": h.Version}
	if h.LiteLLM != nil {
		healthy, _ := h.LiteLLM.Health(r.Context())
		resp["provider_healthy"] = healthy
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// Cluster runtime
// ---------------------------------------------------------------------------

// ClusterState returns this node's live cluster state.
func (h *Handlers) ClusterState(w http.ResponseWriter, _ *http.Request) {
	if h.Cluster == nil {
		notConfigured(w, "cluster runtime")
		return
	}
	writeJSON(w, http.StatusOK, h.Cluster.State())
}

type missionRequest struct {
	Objective string `json:"objective"`
}

// RunMission runs an objective end to end on this cluster.
func (h *Handlers) RunMission(w http.ResponseWriter, r *http.Request) {
	if h.Cluster == nil {
		notConfigured(w, "cluster runtime")
		return
	}
	req, ok := readJSON[missionRequest](w, r)
	if !ok || !requireField(w, req.Objective, "objective") {
		return
	}
	res, err := h.Cluster.Mission(r.Context(), req.Objective)
	if err != nil {
		writeDomainError(w, err, "mission failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---------------------------------------------------------------------------
// Personas
// ---------------------------------------------------------------------------

// ListPersonas returns the active persona configuration.
func (h *Handlers) ListPersonas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Personas.Snapshot())
}

// GetPersona returns one persona by key.
func (h *Handlers) GetPersona(w http.ResponseWriter, r *http.Request) {
	p, err := h.Personas.Get(urlParam(r, "key"))
	if err != nil {
		writeDomainError(w, err, "persona not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RegisterPersona adds or replaces a persona.
func (h *Handlers) RegisterPersona(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[persona.Persona](w, r)
	if !ok {
		return
	}
	if err := h.Personas.Register(&p); err != nil {
		writeDomainError(w, err, "register persona")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ---------------------------------------------------------------------------
// Stability
// ---------------------------------------------------------------------------

type stabilityRequest struct {
	ChangeSet stability.ChangeSet   `json:"change_set"`
	Metrics   stability.EvalMetrics `json:"metrics"`
}

// EvaluateStability scores a change set and its measured metrics.
func (h *Handlers) EvaluateStability(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[stabilityRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Stability.Evaluate(req.ChangeSet, req.Metrics))
}
