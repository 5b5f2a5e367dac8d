package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "govcore"

// StartPipelineSpan starts a span for one role-pipeline run.
func StartPipelineSpan(ctx context.Context, objective string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline",
		trace.WithAttributes(attribute.Int("pipeline.objective_len", len(objective))),
	)
}

// StartRoleSpan starts a span for a single role stage within a pipeline.
func StartRoleSpan(ctx context.Context, role string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "role",
		trace.WithAttributes(attribute.String("role.key", role)),
	)
}

// StartValidationSpan starts a span for a chamber validation pass.
func StartValidationSpan(ctx context.Context, experimentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "chamber.validation",
		trace.WithAttributes(attribute.String("experiment.id", experimentID)),
	)
}

// StartVoteSpan starts a span for a consensus vote.
func StartVoteSpan(ctx context.Context, proposalID, clusterID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "consensus.vote",
		trace.WithAttributes(
			attribute.String("proposal.id", proposalID),
			attribute.String("cluster.id", clusterID),
		),
	)
}
