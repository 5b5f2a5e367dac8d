// Package evaluation defines the port to the benchmark collaborator that
// measures a candidate artifact.
package evaluation

import (
	"context"

	"github.com/ascension-labs/govcore/internal/domain/artifact"
	"github.com/ascension-labs/govcore/internal/domain/stability"
)

// Evaluator measures complexity and correctness of a produced artifact.
type Evaluator interface {
	Measure(ctx context.Context, objective string, c *artifact.Candidate) (stability.EvalMetrics, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, objective string, c *artifact.Candidate) (stability.EvalMetrics, error)

// Measure calls f.
func (f EvaluatorFunc) Measure(ctx context.Context, objective string, c *artifact.Candidate) (stability.EvalMetrics, error) {
	return f(ctx, objective, c)
}
