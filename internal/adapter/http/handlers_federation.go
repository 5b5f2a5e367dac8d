package http

import (
	"net/http"

	"github.com/ascension-labs/govcore/internal/domain/federation"
)

type submitProposalRequest struct {
	ID            string `json:"id"`
	OriginCluster string `json:"origin_cluster"`
	Summary       string `json:"summary"`
}

// SubmitProposal registers a proposal. With a federation bus it originates
// from this cluster and is announced to the others.
func (h *Handlers) SubmitProposal(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[submitProposalRequest](w, r)
	if !ok {
		return
	}
	var (
		p   federation.Proposal
		err error
	)
	if h.Bus != nil && (req.OriginCluster == "" || req.OriginCluster == h.Bus.Self()) {
		p, err = h.Bus.Propose(r.Context(), req.ID, req.Summary)
	} else {
		if !requireField(w, req.OriginCluster, "origin_cluster") {
			return
		}
		p, err = h.Consensus.SubmitProposal(r.Context(), req.ID, req.OriginCluster, req.Summary)
	}
	if err != nil {
		writeDomainError(w, err, "submit proposal")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListProposals returns all proposals, oldest first.
func (h *Handlers) ListProposals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Consensus.List())
}

// GetProposal returns one proposal.
func (h *Handlers) GetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.Consensus.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type voteRequest struct {
	ClusterID string `json:"cluster_id"`
	Vote      *bool  `json:"vote"`
}

type voteResponse struct {
	Finalized bool                `json:"finalized"`
	Proposal  federation.Proposal `json:"proposal"`
}

// CastVote records a cluster's vote. This cluster's own votes go through
// the federation bus when one is configured.
func (h *Handlers) CastVote(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[voteRequest](w, r)
	if !ok {
		return
	}
	if req.Vote == nil {
		writeError(w, http.StatusBadRequest, "vote is required")
		return
	}
	id := urlParam(r, "id")

	var (
		finalized bool
		err       error
	)
	if h.Bus != nil && (req.ClusterID == "" || req.ClusterID == h.Bus.Self()) {
		finalized, err = h.Bus.Vote(r.Context(), id, *req.Vote)
	} else {
		if !requireField(w, req.ClusterID, "cluster_id") {
			return
		}
		if req.ClusterID == federation.SafetyOrchestrator {
			writeError(w, http.StatusBadRequest, "cluster_id is reserved for emergency rollbacks")
			return
		}
		finalized, err = h.Consensus.CastVote(r.Context(), id, req.ClusterID, *req.Vote)
	}
	if err != nil {
		writeDomainError(w, err, "proposal not found")
		return
	}
	p, err := h.Consensus.Get(id)
	if err != nil {
		writeDomainError(w, err, "proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{Finalized: finalized, Proposal: p})
}

type fitnessRequest struct {
	Fitness float64 `json:"fitness"`
}

type fitnessResponse struct {
	Clusters  map[string]float64 `json:"clusters"`
	Aggregate *float64           `json:"aggregate,omitempty"`
}

// ReportFitness records and broadcasts this cluster's fitness.
func (h *Handlers) ReportFitness(w http.ResponseWriter, r *http.Request) {
	if h.Bus == nil {
		notConfigured(w, "federation bus")
		return
	}
	req, ok := readJSON[fitnessRequest](w, r)
	if !ok {
		return
	}
	if req.Fitness < 0 || req.Fitness > 1 {
		writeError(w, http.StatusBadRequest, "fitness must be in [0,1]")
		return
	}
	if err := h.Bus.ReportFitness(r.Context(), req.Fitness); err != nil {
		writeDomainError(w, err, "report fitness")
		return
	}
	h.Fitness(w, r)
}

// Fitness returns the latest fitness per cluster and their mean.
func (h *Handlers) Fitness(w http.ResponseWriter, _ *http.Request) {
	if h.Bus == nil {
		notConfigured(w, "federation bus")
		return
	}
	resp := fitnessResponse{Clusters: h.Bus.Fitness()}
	if agg, ok := h.Bus.AggregateFitness(); ok {
		resp.Aggregate = &agg
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthRequest struct {
	AggregateFitness *float64 `json:"aggregate_fitness"`
}

type healthResponse struct {
	RolledBack bool                 `json:"rolled_back"`
	Threshold  float64              `json:"threshold"`
	Proposal   *federation.Proposal `json:"proposal,omitempty"`
}

// EvaluateHealth forces a rollback when the given aggregate fitness is
// below the critical threshold. Without a body field it runs the health
// monitor against the fitness reported over the federation bus.
func (h *Handlers) EvaluateHealth(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[healthRequest](w, r)
	if !ok {
		return
	}
	var (
		p   *federation.Proposal
		err error
	)
	switch {
	case req.AggregateFitness != nil:
		p, err = h.Rollback.EvaluateHealth(r.Context(), *req.AggregateFitness)
	case h.Monitor != nil:
		p, err = h.Monitor.Check(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "aggregate_fitness is required")
		return
	}
	if err != nil {
		writeDomainError(w, err, "evaluate health")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{RolledBack: p != nil, Threshold: h.Rollback.Threshold(), Proposal: p})
}
