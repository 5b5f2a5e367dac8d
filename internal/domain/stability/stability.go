// Package stability holds the scoring model used to gate self-modification:
// risk of a change set and fitness of a measured configuration.
package stability

import (
	"math"

	"github.com/bmatcuk/doublestar/v4"
)

// FitnessScale is the constant K in fitness = (K / complexity) * testSuccessRate.
const FitnessScale = 10.0

// ChangeUnit describes one modified unit of a change set.
type ChangeUnit struct {
	Path         string             `json:"path"`
	LinesAdded   int                `json:"lines_added"`
	LinesRemoved int                `json:"lines_removed"`
	MetricDeltas map[string]float64 `json:"metric_deltas,omitempty"`
}

// ChangeSet is the ordered list of units touched by a change.
type ChangeSet []ChangeUnit

// EvalMetrics is what the evaluation collaborator reports for a run.
type EvalMetrics struct {
	AvgComplexity   float64 `json:"avg_complexity"`
	TestSuccessRate float64 `json:"test_success_rate"`
}

// Metrics is a full stability evaluation. Never mutated after creation.
type Metrics struct {
	RiskScore      float64 `json:"risk_score"`
	FitnessScore   float64 `json:"fitness_score"`
	RegressionProb float64 `json:"regression_prob"`
	Entropy        float64 `json:"entropy"`
}

// Diff is the outcome of comparing two measured states.
type Diff struct {
	FitnessDelta float64 `json:"fitness_delta"`
}

// SizeStep adds Increment to the risk once a change set has more than Above units.
type SizeStep struct {
	Above     int     `json:"above" yaml:"above"`
	Increment float64 `json:"increment" yaml:"increment"`
}

// RiskModel parameterizes the risk score. All increments are non-negative,
// which keeps the score non-decreasing in change-set size.
type RiskModel struct {
	Floor              float64    `json:"floor" yaml:"floor"`
	Steps              []SizeStep `json:"steps" yaml:"steps"`
	ProtectedPaths     []string   `json:"protected_paths" yaml:"protected_paths"`
	ProtectedIncrement float64    `json:"protected_increment" yaml:"protected_increment"`
}

// DefaultRiskModel starts at 0.1 and steps up past 5, 10 and 25 units.
func DefaultRiskModel() RiskModel {
	return RiskModel{
		Floor: 0.1,
		Steps: []SizeStep{
			{Above: 5, Increment: 0.2},
			{Above: 10, Increment: 0.2},
			{Above: 25, Increment: 0.3},
		},
		ProtectedIncrement: 0.2,
	}
}

// Risk scores a change set in [0,1].
func (m RiskModel) Risk(cs ChangeSet) float64 {
	risk := m.Floor
	for _, step := range m.Steps {
		if len(cs) > step.Above && step.Increment > 0 {
			risk += step.Increment
		}
	}
	if m.ProtectedIncrement > 0 && m.touchesProtected(cs) {
		risk += m.ProtectedIncrement
	}
	return clamp01(risk)
}

func (m RiskModel) touchesProtected(cs ChangeSet) bool {
	for _, pattern := range m.ProtectedPaths {
		for _, u := range cs {
			if ok, err := doublestar.Match(pattern, u.Path); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// Fitness computes min(1, (K / max(1, complexity)) * testSuccessRate).
// Complexity is clamped to at least 1 and the success rate to [0,1].
func Fitness(m EvalMetrics) float64 {
	complexity := math.Max(1, m.AvgComplexity)
	return clamp01((FitnessScale / complexity) * clamp01(m.TestSuccessRate))
}

// Entropy is the normalized Shannon entropy of change volume across units:
// 0 when the change is concentrated in one unit, 1 when evenly spread.
func Entropy(cs ChangeSet) float64 {
	if len(cs) < 2 {
		return 0
	}
	total := 0.0
	for _, u := range cs {
		total += float64(u.LinesAdded + u.LinesRemoved)
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, u := range cs {
		p := float64(u.LinesAdded+u.LinesRemoved) / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return clamp01(h / math.Log2(float64(len(cs))))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
