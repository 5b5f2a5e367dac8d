package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	gcotel "github.com/ascension-labs/govcore/internal/adapter/otel"
	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/port/broadcast"
)

// DefaultCriticalThreshold is the aggregate fitness below which an
// emergency rollback is forced.
const DefaultCriticalThreshold = 0.4

// FederationRollbackManager forces a rollback proposal through consensus
// when aggregate federation fitness drops below a critical threshold.
type FederationRollbackManager struct {
	consensus *ConsensusEngine
	threshold float64
	hub       broadcast.Broadcaster
	metrics   *gcotel.Metrics
}

// NewFederationRollbackManager creates a manager. A threshold <= 0 uses
// DefaultCriticalThreshold.
func NewFederationRollbackManager(consensus *ConsensusEngine, threshold float64, hub broadcast.Broadcaster) *FederationRollbackManager {
	if threshold <= 0 {
		threshold = DefaultCriticalThreshold
	}
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &FederationRollbackManager{consensus: consensus, threshold: threshold, hub: hub}
}

// SetMetrics attaches OTEL instruments.
func (m *FederationRollbackManager) SetMetrics(mt *gcotel.Metrics) { m.metrics = mt }

// Threshold returns the critical fitness threshold.
func (m *FederationRollbackManager) Threshold() float64 { return m.threshold }

// EvaluateHealth returns (nil, nil) when aggregateFitness is at or above the
// threshold. Below it, it submits a rollback proposal from the safety
// orchestrator and casts yes votes until the proposal is executed, all
// within this call.
func (m *FederationRollbackManager) EvaluateHealth(ctx context.Context, aggregateFitness float64) (*federation.Proposal, error) {
	if math.IsNaN(aggregateFitness) || math.IsInf(aggregateFitness, 0) {
		return nil, domain.Validationf("aggregate fitness must be finite, got %v", aggregateFitness)
	}
	if aggregateFitness >= m.threshold {
		slog.Debug("federation healthy", "fitness", aggregateFitness, "threshold", m.threshold)
		return nil, nil
	}

	slog.Warn("federation unstable, forcing rollback", "fitness", aggregateFitness, "threshold", m.threshold)

	clusters := m.consensus.Clusters()
	if len(clusters) == 0 {
		return nil, fmt.Errorf("rollback: no clusters registered: %w", domain.ErrStateConflict)
	}

	summary := fmt.Sprintf("Emergency rollback: aggregate fitness %.2f below %.2f", aggregateFitness, m.threshold)
	p, err := m.consensus.SubmitProposal(ctx, "rollback-"+uuid.NewString(), federation.SafetyOrchestrator, summary)
	if err != nil {
		return nil, fmt.Errorf("rollback: submit: %w", err)
	}

	// Cluster votes first; the orchestrator's own vote covers a federation
	// smaller than the quorum floor.
	voters := append(clusters, federation.SafetyOrchestrator)
	executed := false
	for _, id := range voters {
		done, err := m.consensus.CastVote(ctx, p.ID, id, true)
		if err != nil {
			return nil, fmt.Errorf("rollback: vote %s: %w", id, err)
		}
		if done {
			executed = true
			break
		}
	}
	if !executed {
		return nil, fmt.Errorf("rollback %s: quorum %d unreachable with %d clusters: %w",
			p.ID, p.QuorumThreshold, len(clusters), domain.ErrStateConflict)
	}

	final, err := m.consensus.Get(p.ID)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.Rollbacks.Add(ctx, 1)
	}
	slog.Info("rollback executed", "proposal_id", final.ID, "votes", len(final.Votes))
	m.hub.BroadcastEvent(ctx, broadcast.EventRollbackTriggered, final)
	return &final, nil
}
