// Package middleware provides HTTP middleware for the govcore API.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ascension-labs/govcore/internal/logger"
)

const (
	headerRequestID = "X-Request-ID"
	headerClusterID = "X-Cluster-ID"
)

// RequestID is HTTP middleware that extracts X-Request-ID from the request
// header or generates a new one. The ID is stored in the context and set
// on the response header. A caller-supplied X-Cluster-ID is attached to the
// context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		if cluster := r.Header.Get(headerClusterID); cluster != "" {
			ctx = logger.WithClusterID(ctx, cluster)
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
