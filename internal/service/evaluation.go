package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/artifact"
	"github.com/ascension-labs/govcore/internal/domain/persona"
	"github.com/ascension-labs/govcore/internal/domain/stability"
	"github.com/ascension-labs/govcore/internal/port/evaluation"
	"github.com/ascension-labs/govcore/internal/port/reasoning"
)

var evalMetricsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "avg_complexity": {"type": "number", "minimum": 0},
    "test_success_rate": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["avg_complexity", "test_success_rate"]
}`)

var _ evaluation.Evaluator = (*JudgeEvaluator)(nil)

// JudgeEvaluator measures a candidate by asking the optimizer persona for
// an estimate of its cyclomatic complexity and expected test pass rate.
// It stands in for a benchmark harness when none is attached.
type JudgeEvaluator struct {
	registry *PersonaRegistry
	provider reasoning.Provider
}

// NewJudgeEvaluator creates an evaluator that judges through provider.
func NewJudgeEvaluator(registry *PersonaRegistry, provider reasoning.Provider) *JudgeEvaluator {
	return &JudgeEvaluator{registry: registry, provider: provider}
}

// Measure implements evaluation.Evaluator.
func (e *JudgeEvaluator) Measure(ctx context.Context, objective string, c *artifact.Candidate) (stability.EvalMetrics, error) {
	judge, err := e.registry.Get(string(persona.RoleOptimizer))
	if err != nil {
		return stability.EvalMetrics{}, domain.Validationf("measure: %v", err)
	}
	resp, err := e.provider.Generate(ctx, reasoning.Request{
		SystemPrompt: judge.Prompt,
		UserPrompt: fmt.Sprintf("Objective:\n%s\n\nCandidate:\n%s\n\n"+
			"Estimate the average cyclomatic complexity per function and the fraction of a reasonable test suite that would pass.",
			objective, c.Content),
		MaxTokens:  judge.TokenBudget,
		Schema:     evalMetricsSchema,
		SchemaName: "eval_metrics",
	})
	if err != nil {
		return stability.EvalMetrics{}, domain.NewProviderError(judge.Key, err)
	}
	if resp == nil || len(resp.Structured) == 0 {
		return stability.EvalMetrics{}, domain.NewProviderError(judge.Key, reasoning.ErrSchemaUnsatisfied)
	}

	var m stability.EvalMetrics
	if err := json.Unmarshal(resp.Structured, &m); err != nil {
		return stability.EvalMetrics{}, domain.NewProviderError(judge.Key, fmt.Errorf("%w: %v", reasoning.ErrSchemaUnsatisfied, err))
	}
	if m.AvgComplexity < 0 || m.TestSuccessRate < 0 || m.TestSuccessRate > 1 {
		return stability.EvalMetrics{}, domain.NewProviderError(judge.Key,
			fmt.Errorf("%w: metrics out of range %+v", reasoning.ErrSchemaUnsatisfied, m))
	}
	slog.Debug("candidate measured", "complexity", m.AvgComplexity, "test_success_rate", m.TestSuccessRate)
	return m, nil
}
