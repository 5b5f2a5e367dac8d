package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/port/broadcast"
	"github.com/ascension-labs/govcore/internal/port/ledger"
)

// MetaGovernanceEngine gates changes to the orchestration's own parameters
// with the same mode and risk ceiling as the GovernanceManager, and keeps
// the append-only mutation lineage.
type MetaGovernanceEngine struct {
	gov   *GovernanceManager
	store ledger.Store
	hub   broadcast.Broadcaster
	now   func() time.Time

	mu      sync.RWMutex
	history []governance.PolicyChange
}

// NewMetaGovernanceEngine creates an engine. store may be nil.
func NewMetaGovernanceEngine(gov *GovernanceManager, store ledger.Store, hub broadcast.Broadcaster) *MetaGovernanceEngine {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &MetaGovernanceEngine{gov: gov, store: store, hub: hub, now: time.Now}
}

// EvaluatePolicyChange records change in the lineage and returns whether it
// is approved. Every evaluated change is appended before the verdict is
// returned, approved or not. Malformed changes are rejected with
// ErrValidation and not recorded.
func (m *MetaGovernanceEngine) EvaluatePolicyChange(ctx context.Context, change governance.PolicyChange) (bool, error) {
	if err := change.Validate(); err != nil {
		return false, domain.Validationf("policy change: %v", err)
	}

	cfg := m.gov.Config()
	approved, reason := decide(cfg.Mode, cfg.MaxRiskScore, change.RiskScore)
	m.gov.record(ctx, governance.ActionPolicyChange, approved)

	change.Approved = approved
	change.Mode = cfg.Mode
	if change.CreatedAt.IsZero() {
		change.CreatedAt = m.now().UTC()
	}

	m.mu.Lock()
	m.history = append(m.history, change)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.AppendPolicyChange(ctx, &change); err != nil {
			slog.Error("persist policy change", "parameter", change.Parameter, "error", err)
		}
	}
	m.hub.BroadcastEvent(ctx, broadcast.EventPolicyEvaluated, change)

	if !approved {
		slog.Warn("policy change rejected", "parameter", change.Parameter, "risk", change.RiskScore, "mode", cfg.Mode, "reason", reason)
		return false, nil
	}
	slog.Info("policy change approved", "parameter", change.Parameter, "risk", change.RiskScore)
	return true, nil
}

// Lineage returns a copy of every evaluated change in evaluation order.
func (m *MetaGovernanceEngine) Lineage() []governance.PolicyChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]governance.PolicyChange, len(m.history))
	copy(out, m.history)
	return out
}

// Correlate returns the evaluated changes that touched parameter, oldest first.
func (m *MetaGovernanceEngine) Correlate(parameter string) []governance.PolicyChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []governance.PolicyChange
	for _, c := range m.history {
		if c.Parameter == parameter {
			out = append(out, c)
		}
	}
	return out
}
