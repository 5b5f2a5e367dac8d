package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	gcotel "github.com/ascension-labs/govcore/internal/adapter/otel"
	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/artifact"
	"github.com/ascension-labs/govcore/internal/domain/persona"
	"github.com/ascension-labs/govcore/internal/port/reasoning"
)

// RolePipeline runs an objective through the fixed role order and produces
// a candidate artifact. Stages run sequentially; separate Execute calls may
// run concurrently.
type RolePipeline struct {
	registry    *PersonaRegistry
	provider    reasoning.Provider
	temperature float64
	metrics     *gcotel.Metrics
}

// NewRolePipeline creates a pipeline reading personas from registry.
func NewRolePipeline(registry *PersonaRegistry, provider reasoning.Provider, temperature float64) *RolePipeline {
	return &RolePipeline{registry: registry, provider: provider, temperature: temperature}
}

// SetMetrics attaches OTEL instruments.
func (p *RolePipeline) SetMetrics(m *gcotel.Metrics) { p.metrics = m }

// Execute runs every role in persona.PipelineOrder. Each role sees the
// objective plus the output of all previously completed roles. A provider
// failure aborts the run and no partial candidate is returned.
func (p *RolePipeline) Execute(ctx context.Context, objective string) (*artifact.Candidate, error) {
	if strings.TrimSpace(objective) == "" {
		return nil, domain.Validationf("objective is empty")
	}

	ctx, span := gcotel.StartPipelineSpan(ctx, objective)
	defer span.End()
	start := time.Now()
	if p.metrics != nil {
		p.metrics.PipelineRuns.Add(ctx, 1)
	}

	// One snapshot per run keeps every stage on the same configuration.
	personas := p.registry.Snapshot()

	var (
		stages      []artifact.StageOutput
		implemented string
	)
	for _, role := range persona.PipelineOrder {
		pr, ok := personas[string(role)]
		if !ok {
			err := domain.Validationf("no persona registered for role %s", role)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		out, err := p.runRole(ctx, pr, objective, stages)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "provider failure")
			if p.metrics != nil {
				p.metrics.PipelineFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("role", string(role))))
			}
			slog.Error("pipeline aborted", "role", role, "error", err)
			return nil, err
		}
		stages = append(stages, artifact.StageOutput{Role: string(role), Output: out})
		if role == persona.RoleImplementer {
			implemented = out
		}
	}

	cand := artifact.FromImplementerOutput(implemented)
	cand.Stages = stages

	if p.metrics != nil {
		p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}
	slog.Info("pipeline completed",
		"stages", len(stages),
		"multifile", cand.IsMultifile,
		"files", len(cand.Files),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &cand, nil
}

func (p *RolePipeline) runRole(ctx context.Context, pr persona.Persona, objective string, prior []artifact.StageOutput) (string, error) {
	ctx, span := gcotel.StartRoleSpan(ctx, pr.Key)
	defer span.End()

	resp, err := p.provider.Generate(ctx, reasoning.Request{
		SystemPrompt: pr.Prompt,
		UserPrompt:   buildRolePrompt(objective, prior),
		Temperature:  p.temperature,
		MaxTokens:    pr.TokenBudget,
	})
	if err != nil {
		span.RecordError(err)
		return "", domain.NewProviderError(pr.Key, err)
	}
	if resp == nil {
		return "", domain.NewProviderError(pr.Key, fmt.Errorf("empty response"))
	}
	span.SetAttributes(attribute.Int("role.tokens", resp.TokensUsed))
	return resp.Text, nil
}

// buildRolePrompt concatenates the objective with every prior stage output.
func buildRolePrompt(objective string, prior []artifact.StageOutput) string {
	var b strings.Builder
	b.WriteString("Objective:\n")
	b.WriteString(objective)
	for _, s := range prior {
		b.WriteString("\n\n### ")
		b.WriteString(s.Role)
		b.WriteString(" output\n")
		b.WriteString(s.Output)
	}
	return b.String()
}
