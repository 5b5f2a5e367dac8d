package service

import "github.com/ascension-labs/govcore/internal/domain/stability"

// StabilityEngine scores change sets and measured configurations.
type StabilityEngine struct {
	model stability.RiskModel
}

// NewStabilityEngine creates an engine using model for risk.
func NewStabilityEngine(model stability.RiskModel) *StabilityEngine {
	return &StabilityEngine{model: model}
}

// CalculateRisk returns the risk of applying cs, in [0,1].
func (e *StabilityEngine) CalculateRisk(cs stability.ChangeSet) float64 {
	return e.model.Risk(cs)
}

// CalculateFitness returns the fitness of measured metrics, in [0,1].
func (e *StabilityEngine) CalculateFitness(m stability.EvalMetrics) float64 {
	return stability.Fitness(m)
}

// Diff compares two measured states.
func (e *StabilityEngine) Diff(before, after stability.EvalMetrics) stability.Diff {
	return stability.Diff{FitnessDelta: stability.Fitness(after) - stability.Fitness(before)}
}

// Evaluate computes the full metrics for a change set and its measurement.
// Regression probability grows with risk and shrinks with fitness.
func (e *StabilityEngine) Evaluate(cs stability.ChangeSet, m stability.EvalMetrics) stability.Metrics {
	risk := e.CalculateRisk(cs)
	fit := e.CalculateFitness(m)
	return stability.Metrics{
		RiskScore:      risk,
		FitnessScore:   fit,
		RegressionProb: risk * (1 - fit),
		Entropy:        stability.Entropy(cs),
	}
}
