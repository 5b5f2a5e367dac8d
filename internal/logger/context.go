package logger

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	clusterIDKey
	proposalIDKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithClusterID tags ctx with the cluster a log line concerns.
func WithClusterID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clusterIDKey, id)
}

// ClusterID extracts the cluster ID from the context, or "".
func ClusterID(ctx context.Context) string {
	id, _ := ctx.Value(clusterIDKey).(string)
	return id
}

// WithProposalID tags ctx with the federation proposal being handled.
func WithProposalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, proposalIDKey, id)
}

// ProposalID extracts the proposal ID from the context, or "".
func ProposalID(ctx context.Context) string {
	id, _ := ctx.Value(proposalIDKey).(string)
	return id
}

// ContextHandler adds ids stored in the context to each record. It runs
// before any async hop so the ids survive the handoff.
type ContextHandler struct {
	inner slog.Handler
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds request_id, cluster_id and proposal_id when present.
func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if id := RequestID(ctx); id != "" {
		rec.AddAttrs(slog.String("request_id", id))
	}
	if id := ClusterID(ctx); id != "" {
		rec.AddAttrs(slog.String("cluster_id", id))
	}
	if id := ProposalID(ctx); id != "" {
		rec.AddAttrs(slog.String("proposal_id", id))
	}
	return h.inner.Handle(ctx, rec)
}

// WithAttrs wraps the inner handler's WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup wraps the inner handler's WithGroup.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
