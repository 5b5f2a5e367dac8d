package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ascension-labs/govcore/internal/domain/federation"
)

// FitnessSource reports the federation's aggregate fitness.
type FitnessSource interface {
	AggregateFitness() (float64, bool)
}

// HealthMonitor periodically feeds aggregate fitness to the rollback
// manager. After a rollback it stays quiet for the cooldown so one bad
// period does not produce a rollback per tick.
type HealthMonitor struct {
	source   FitnessSource
	rollback *FederationRollbackManager
	interval time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu           sync.Mutex
	lastRollback time.Time
}

// NewHealthMonitor creates a monitor.
func NewHealthMonitor(source FitnessSource, rollback *FederationRollbackManager, interval, cooldown time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{
		source:   source,
		rollback: rollback,
		interval: interval,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Run checks health every interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				slog.Error("health check failed", "error", err)
			}
		}
	}
}

// Check runs one health evaluation. It returns the executed rollback
// proposal, or nil when none was needed or the cooldown is active.
func (m *HealthMonitor) Check(ctx context.Context) (*federation.Proposal, error) {
	fitness, ok := m.source.AggregateFitness()
	if !ok {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastRollback.IsZero() && m.now().Sub(m.lastRollback) < m.cooldown {
		slog.Debug("rollback cooldown active", "fitness", fitness, "since", m.lastRollback)
		return nil, nil
	}

	p, err := m.rollback.EvaluateHealth(ctx, fitness)
	if err != nil {
		return nil, err
	}
	if p != nil {
		m.lastRollback = m.now()
	}
	return p, nil
}
