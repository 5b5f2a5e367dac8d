package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gcotel "github.com/ascension-labs/govcore/internal/adapter/otel"
	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/experiment"
	"github.com/ascension-labs/govcore/internal/domain/persona"
	"github.com/ascension-labs/govcore/internal/port/broadcast"
	"github.com/ascension-labs/govcore/internal/port/evaluation"
	"github.com/ascension-labs/govcore/internal/port/ledger"
)

// Chamber runs A/B validation of a proposed persona configuration against
// the baseline frozen at construction. At most one experiment is TESTING
// at a time.
type Chamber struct {
	registry  *PersonaRegistry
	pipeline  *RolePipeline
	evaluator evaluation.Evaluator
	engine    *StabilityEngine
	store     ledger.Store
	hub       broadcast.Broadcaster
	metrics   *gcotel.Metrics

	baseline persona.Set

	mu     sync.Mutex
	active *experiment.Experiment

	// runMu serializes validation passes and promotion. Lock order is
	// runMu, mu, then the registry lease; a pass never takes mu while
	// holding its lease.
	runMu sync.Mutex
}

// ChamberDeps groups the chamber's collaborators. Store, Hub and Metrics are optional.
type ChamberDeps struct {
	Registry  *PersonaRegistry
	Pipeline  *RolePipeline
	Evaluator evaluation.Evaluator
	Engine    *StabilityEngine
	Store     ledger.Store
	Hub       broadcast.Broadcaster
	Metrics   *gcotel.Metrics
}

// NewChamber creates a chamber and freezes the registry's current
// configuration as the baseline.
func NewChamber(d ChamberDeps) *Chamber {
	hub := d.Hub
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &Chamber{
		registry:  d.Registry,
		pipeline:  d.Pipeline,
		evaluator: d.Evaluator,
		engine:    d.Engine,
		store:     d.Store,
		hub:       hub,
		metrics:   d.Metrics,
		baseline:  d.Registry.Snapshot(),
	}
}

// Baseline returns a copy of the frozen baseline configuration.
func (c *Chamber) Baseline() persona.Set {
	return c.baseline.Clone()
}

// Stage creates experiment id for proposed and moves it to TESTING.
// It fails with ErrStateConflict while another experiment is TESTING.
func (c *Chamber) Stage(ctx context.Context, id string, proposed persona.Set) (*experiment.Experiment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		slog.Warn("stage rejected", "experiment_id", id, "active_id", c.active.ID)
		return nil, fmt.Errorf("experiment %s is testing: %w", c.active.ID, domain.ErrStateConflict)
	}
	exp, err := experiment.New(id, proposed)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	if err := exp.Transition(experiment.StatusTesting); err != nil {
		return nil, err
	}
	c.active = exp

	slog.Info("experiment staged", "experiment_id", id, "personas", len(proposed))
	out := *exp
	c.publish(ctx, broadcast.EventExperimentStaged, &out)
	return &out, nil
}

// Active returns a copy of the TESTING experiment, if any.
func (c *Chamber) Active() (*experiment.Experiment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil, false
	}
	out := *c.active
	return &out, true
}

// RunValidationPass runs objective against the frozen baseline and then the
// proposed configuration and returns fitness(proposed) - fitness(baseline).
// The active configuration is restored on every exit path.
func (c *Chamber) RunValidationPass(ctx context.Context, objective string) (float64, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return 0, fmt.Errorf("no experiment is testing: %w", domain.ErrStateConflict)
	}
	exp := c.active
	proposed := c.overlay(exp.Proposed)
	c.mu.Unlock()

	ctx, span := gcotel.StartValidationSpan(ctx, exp.ID)
	defer span.End()

	baseFit, propFit, err := c.runPair(ctx, objective, proposed)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	delta := propFit - baseFit

	c.mu.Lock()
	if c.active != exp {
		c.mu.Unlock()
		slog.Warn("validation result discarded", "experiment_id", exp.ID, "delta", delta)
		return 0, fmt.Errorf("experiment %s left TESTING during validation: %w", exp.ID, domain.ErrStateConflict)
	}
	exp.BaselineFitness = baseFit
	exp.ProposedFitness = propFit
	exp.FitnessDelta = delta
	exp.Validated = true
	snapshot := *exp
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.FitnessDelta.Record(ctx, delta)
	}
	slog.Info("validation pass complete", "experiment_id", exp.ID, "baseline", baseFit, "proposed", propFit, "delta", delta)
	c.publish(ctx, broadcast.EventExperimentUpdated, &snapshot)
	return delta, nil
}

// runPair measures the baseline and then proposed under a registry lease.
// The lease is released before it returns.
func (c *Chamber) runPair(ctx context.Context, objective string, proposed persona.Set) (baseFit, propFit float64, err error) {
	lease := c.registry.Lease()
	defer lease.Release()

	lease.Swap(c.baseline)
	baseFit, err = c.measure(ctx, objective)
	if err != nil {
		return 0, 0, fmt.Errorf("baseline run: %w", err)
	}

	lease.Swap(proposed)
	propFit, err = c.measure(ctx, objective)
	if err != nil {
		return 0, 0, fmt.Errorf("proposed run: %w", err)
	}
	return baseFit, propFit, nil
}

// Promote merges the proposed configuration into the live registry when the
// TESTING experiment has a positive fitness delta. A non-positive delta
// returns false and leaves the experiment TESTING. A validation pass in
// progress finishes first.
func (c *Chamber) Promote(ctx context.Context) (bool, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.Status != experiment.StatusTesting {
		slog.Warn("promote rejected: no experiment testing")
		return false, fmt.Errorf("promote: %w", domain.ErrStateConflict)
	}
	exp := c.active
	if exp.FitnessDelta <= 0 {
		slog.Warn("promotion declined", "experiment_id", exp.ID, "delta", exp.FitnessDelta)
		return false, nil
	}

	c.registry.Merge(exp.Proposed)
	if err := exp.Transition(experiment.StatusPromoted); err != nil {
		return false, err
	}
	c.active = nil

	slog.Info("experiment promoted", "experiment_id", exp.ID, "delta", exp.FitnessDelta)
	out := *exp
	c.publish(ctx, broadcast.EventExperimentUpdated, &out)
	return true, nil
}

// Reject marks the TESTING experiment REJECTED and frees the slot. A
// validation pass still running for it has its result discarded.
func (c *Chamber) Reject(ctx context.Context) (*experiment.Experiment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return nil, fmt.Errorf("reject: %w", domain.ErrStateConflict)
	}
	exp := c.active
	if err := exp.Transition(experiment.StatusRejected); err != nil {
		return nil, err
	}
	c.active = nil

	slog.Info("experiment rejected", "experiment_id", exp.ID, "delta", exp.FitnessDelta)
	out := *exp
	c.publish(ctx, broadcast.EventExperimentUpdated, &out)
	return &out, nil
}

// overlay lays proposed over the baseline so a partial proposal still has
// every pipeline role.
func (c *Chamber) overlay(proposed persona.Set) persona.Set {
	out := c.baseline.Clone()
	for k, p := range proposed {
		out[k] = p
	}
	return out
}

func (c *Chamber) measure(ctx context.Context, objective string) (float64, error) {
	cand, err := c.pipeline.Execute(ctx, objective)
	if err != nil {
		return 0, err
	}
	m, err := c.evaluator.Measure(ctx, objective, cand)
	if err != nil {
		return 0, fmt.Errorf("evaluate candidate: %w", err)
	}
	return c.engine.CalculateFitness(m), nil
}

// publish persists and broadcasts exp, which must be a copy the caller owns.
func (c *Chamber) publish(ctx context.Context, event string, exp *experiment.Experiment) {
	if c.store != nil {
		if err := c.store.SaveExperiment(ctx, exp); err != nil {
			slog.Error("persist experiment", "experiment_id", exp.ID, "error", err)
		}
	}
	c.hub.BroadcastEvent(ctx, event, exp)
}
