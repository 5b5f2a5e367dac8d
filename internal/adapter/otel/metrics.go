package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "govcore"

// Metrics holds the core's metric instruments.
type Metrics struct {
	PipelineRuns       metric.Int64Counter
	PipelineFailures   metric.Int64Counter
	AuthorizeDecisions metric.Int64Counter
	VotesCast          metric.Int64Counter
	ProposalsExecuted  metric.Int64Counter
	Rollbacks          metric.Int64Counter
	PipelineDuration   metric.Float64Histogram
	FitnessDelta       metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PipelineRuns, err = meter.Int64Counter("govcore.pipeline.runs",
		metric.WithDescription("Number of role pipeline runs started"))
	if err != nil {
		return nil, err
	}

	m.PipelineFailures, err = meter.Int64Counter("govcore.pipeline.failures",
		metric.WithDescription("Number of role pipeline runs aborted by a provider error"))
	if err != nil {
		return nil, err
	}

	m.AuthorizeDecisions, err = meter.Int64Counter("govcore.governance.authorize",
		metric.WithDescription("Authorization decisions by action and outcome"))
	if err != nil {
		return nil, err
	}

	m.VotesCast, err = meter.Int64Counter("govcore.consensus.votes",
		metric.WithDescription("Number of votes recorded"))
	if err != nil {
		return nil, err
	}

	m.ProposalsExecuted, err = meter.Int64Counter("govcore.consensus.executed",
		metric.WithDescription("Number of proposals that reached quorum"))
	if err != nil {
		return nil, err
	}

	m.Rollbacks, err = meter.Int64Counter("govcore.federation.rollbacks",
		metric.WithDescription("Number of emergency rollbacks triggered"))
	if err != nil {
		return nil, err
	}

	m.PipelineDuration, err = meter.Float64Histogram("govcore.pipeline.duration_seconds",
		metric.WithDescription("Role pipeline duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.FitnessDelta, err = meter.Float64Histogram("govcore.chamber.fitness_delta",
		metric.WithDescription("Fitness delta measured by chamber validation passes"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
