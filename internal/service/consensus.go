package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	gcotel "github.com/ascension-labs/govcore/internal/adapter/otel"
	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/port/broadcast"
	"github.com/ascension-labs/govcore/internal/port/ledger"
)

// ConsensusEngine collects per-cluster votes on federation proposals and
// finalizes a proposal on the vote that first reaches its quorum.
type ConsensusEngine struct {
	store   ledger.Store
	hub     broadcast.Broadcaster
	metrics *gcotel.Metrics
	now     func() time.Time

	mu        sync.RWMutex
	clusters  []string
	proposals map[string]*proposalEntry
}

// proposalEntry serializes vote application for one proposal.
type proposalEntry struct {
	mu sync.Mutex
	p  federation.Proposal
}

// NewConsensusEngine creates an engine for the given cluster ids. store may be nil.
func NewConsensusEngine(clusterIDs []string, store ledger.Store, hub broadcast.Broadcaster) *ConsensusEngine {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	e := &ConsensusEngine{
		store:     store,
		hub:       hub,
		now:       time.Now,
		proposals: make(map[string]*proposalEntry),
	}
	e.SetClusters(clusterIDs)
	return e
}

// SetMetrics attaches OTEL instruments.
func (e *ConsensusEngine) SetMetrics(m *gcotel.Metrics) { e.metrics = m }

// SetClusters replaces the known membership. Thresholds of existing
// proposals are not recomputed.
func (e *ConsensusEngine) SetClusters(ids []string) {
	cp := make([]string, len(ids))
	copy(cp, ids)
	e.mu.Lock()
	e.clusters = cp
	e.mu.Unlock()
}

// IsMember reports whether id is in the current membership.
func (e *ConsensusEngine) IsMember(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Contains(e.clusters, id)
}

func (e *ConsensusEngine) isVoter(id string) bool {
	return id == federation.SafetyOrchestrator || e.IsMember(id)
}

// Clusters returns the known cluster ids.
func (e *ConsensusEngine) Clusters() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.clusters))
	copy(out, e.clusters)
	return out
}

// SubmitProposal registers a proposal and fixes its quorum threshold from
// the current cluster count. An empty id is replaced with a fresh UUID.
func (e *ConsensusEngine) SubmitProposal(ctx context.Context, id, originCluster, summary string) (federation.Proposal, error) {
	e.mu.RLock()
	n := len(e.clusters)
	e.mu.RUnlock()
	return e.AdoptProposal(ctx, id, originCluster, summary, federation.QuorumThreshold(n))
}

// AdoptProposal registers a proposal with a threshold fixed elsewhere, as
// announced by the originating cluster.
func (e *ConsensusEngine) AdoptProposal(ctx context.Context, id, originCluster, summary string, threshold int) (federation.Proposal, error) {
	if originCluster == "" {
		return federation.Proposal{}, domain.Validationf("proposal origin cluster is required")
	}
	if threshold < 2 {
		return federation.Proposal{}, domain.Validationf("quorum threshold must be >= 2, got %d", threshold)
	}
	if id == "" {
		id = uuid.NewString()
	}

	entry := &proposalEntry{p: federation.Proposal{
		ID:              id,
		OriginCluster:   originCluster,
		Summary:         summary,
		Votes:           make(map[string]bool),
		QuorumThreshold: threshold,
		CreatedAt:       e.now().UTC(),
	}}

	e.mu.Lock()
	if _, exists := e.proposals[id]; exists {
		e.mu.Unlock()
		return federation.Proposal{}, fmt.Errorf("proposal %s already exists: %w", id, domain.ErrStateConflict)
	}
	e.proposals[id] = entry
	e.mu.Unlock()

	out := entry.p.Clone()
	slog.Info("proposal submitted", "proposal_id", id, "origin", originCluster, "quorum_threshold", threshold)
	e.persist(ctx, &out)
	e.hub.BroadcastEvent(ctx, broadcast.EventProposalSubmitted, out)
	return out, nil
}

// CastVote records clusterID's vote, replacing any earlier vote from the
// same cluster. Only member clusters and the safety orchestrator may vote.
// It returns true only for the vote that finalizes the proposal; later
// votes are kept for audit but never re-finalize.
func (e *ConsensusEngine) CastVote(ctx context.Context, proposalID, clusterID string, vote bool) (bool, error) {
	if clusterID == "" {
		return false, domain.Validationf("cluster id is required")
	}
	if !e.isVoter(clusterID) {
		slog.Warn("vote rejected: not a member", "proposal_id", proposalID, "cluster_id", clusterID)
		return false, domain.Validationf("cluster %q is not a federation member", clusterID)
	}
	entry, err := e.entry(proposalID)
	if err != nil {
		return false, err
	}

	ctx, span := gcotel.StartVoteSpan(ctx, proposalID, clusterID)
	defer span.End()

	entry.mu.Lock()
	entry.p.Votes[clusterID] = vote
	yes := entry.p.YesCount()
	finalized := false
	if !entry.p.IsExecuted && yes >= entry.p.QuorumThreshold {
		now := e.now().UTC()
		entry.p.IsExecuted = true
		entry.p.ExecutedAt = &now
		finalized = true
	}
	snapshot := entry.p.Clone()
	// Persist under the entry lock so stored snapshots keep vote order.
	e.persist(ctx, &snapshot)
	entry.mu.Unlock()

	if e.metrics != nil {
		e.metrics.VotesCast.Add(ctx, 1)
	}
	slog.Info("vote recorded", "proposal_id", proposalID, "cluster_id", clusterID, "vote", vote, "yes", yes, "threshold", snapshot.QuorumThreshold)
	e.hub.BroadcastEvent(ctx, broadcast.EventVoteCast, map[string]any{
		"proposal_id": proposalID,
		"cluster_id":  clusterID,
		"vote":        vote,
		"yes_count":   yes,
	})

	if finalized {
		if e.metrics != nil {
			e.metrics.ProposalsExecuted.Add(ctx, 1)
		}
		slog.Info("proposal executed", "proposal_id", proposalID, "yes", yes)
		e.hub.BroadcastEvent(ctx, broadcast.EventProposalExecuted, snapshot)
	}
	return finalized, nil
}

// Get returns a copy of the proposal.
func (e *ConsensusEngine) Get(id string) (federation.Proposal, error) {
	entry, err := e.entry(id)
	if err != nil {
		return federation.Proposal{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.p.Clone(), nil
}

// YesCount returns the current number of yes votes on a proposal.
func (e *ConsensusEngine) YesCount(id string) (int, error) {
	entry, err := e.entry(id)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.p.YesCount(), nil
}

// List returns copies of all proposals, oldest first.
func (e *ConsensusEngine) List() []federation.Proposal {
	e.mu.RLock()
	entries := make([]*proposalEntry, 0, len(e.proposals))
	for _, en := range e.proposals {
		entries = append(entries, en)
	}
	e.mu.RUnlock()

	out := make([]federation.Proposal, 0, len(entries))
	for _, en := range entries {
		en.mu.Lock()
		out = append(out, en.p.Clone())
		en.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (e *ConsensusEngine) entry(id string) (*proposalEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.proposals[id]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", id, domain.ErrNotFound)
	}
	return entry, nil
}

func (e *ConsensusEngine) persist(ctx context.Context, p *federation.Proposal) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveProposal(ctx, p); err != nil {
		slog.Error("persist proposal", "proposal_id", p.ID, "error", err)
	}
}
