package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	gcotel "github.com/ascension-labs/govcore/internal/adapter/otel"
	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/port/broadcast"
)

// GovernanceManager holds the process-wide gate configuration and decides
// whether a mutating action may proceed. Modes change only through SetMode.
type GovernanceManager struct {
	mu      sync.RWMutex
	cfg     governance.Config
	hub     broadcast.Broadcaster
	metrics *gcotel.Metrics
}

// NewGovernanceManager creates a manager with cfg.
func NewGovernanceManager(cfg governance.Config, hub broadcast.Broadcaster) (*GovernanceManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.Validationf("%v", err)
	}
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &GovernanceManager{cfg: cfg, hub: hub}, nil
}

// SetMetrics attaches OTEL instruments.
func (g *GovernanceManager) SetMetrics(m *gcotel.Metrics) { g.metrics = m }

// Config returns the current configuration.
func (g *GovernanceManager) Config() governance.Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Mode returns the current operational mode.
func (g *GovernanceManager) Mode() governance.Mode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg.Mode
}

// SetMode switches the operational mode.
func (g *GovernanceManager) SetMode(ctx context.Context, mode governance.Mode) error {
	if !mode.Valid() {
		return domain.Validationf("unknown governance mode %q", mode)
	}
	g.mu.Lock()
	prev := g.cfg.Mode
	g.cfg.Mode = mode
	g.mu.Unlock()

	slog.Info("governance mode changed", "from", prev, "to", mode)
	g.hub.BroadcastEvent(ctx, broadcast.EventModeChanged, map[string]string{
		"from": string(prev),
		"to":   string(mode),
	})
	return nil
}

// Authorize is a pure gate: OBSERVE rejects everything, a risk above the
// ceiling is rejected, anything else is allowed. A denial is a normal
// outcome and only produces a log record.
func (g *GovernanceManager) Authorize(ctx context.Context, action governance.ActionType, risk float64) bool {
	cfg := g.Config()
	ok, reason := decide(cfg.Mode, cfg.MaxRiskScore, risk)
	g.record(ctx, action, ok)
	if !ok {
		slog.Warn("action denied", "action", action, "mode", cfg.Mode, "risk", risk, "max_risk", cfg.MaxRiskScore, "reason", reason)
		return false
	}
	slog.Info("action authorized", "action", action, "mode", cfg.Mode, "risk", risk)
	return true
}

func decide(mode governance.Mode, ceiling, risk float64) (bool, string) {
	if mode == governance.ModeObserve {
		return false, "observe mode"
	}
	if risk > ceiling {
		return false, fmt.Sprintf("risk %.2f exceeds ceiling %.2f", risk, ceiling)
	}
	return true, ""
}

func (g *GovernanceManager) record(ctx context.Context, action governance.ActionType, ok bool) {
	if g.metrics == nil {
		return
	}
	g.metrics.AuthorizeDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(action)),
		attribute.Bool("authorized", ok),
	))
}
