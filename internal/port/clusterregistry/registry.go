// Package clusterregistry defines the port to the live set of federation
// members.
package clusterregistry

import (
	"context"
	"sync"

	"github.com/ascension-labs/govcore/internal/domain/federation"
)

// Registry lists the current federation members.
type Registry interface {
	Clusters(ctx context.Context) ([]federation.ClusterInfo, error)
}

// Static is a Registry backed by a fixed list that the caller may replace.
type Static struct {
	mu       sync.RWMutex
	clusters []federation.ClusterInfo
}

// NewStatic creates a Static registry.
func NewStatic(clusters []federation.ClusterInfo) *Static {
	s := &Static{}
	s.Set(clusters)
	return s
}

// Clusters returns a copy of the current members.
func (s *Static) Clusters(_ context.Context) ([]federation.ClusterInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]federation.ClusterInfo, len(s.clusters))
	copy(out, s.clusters)
	return out, nil
}

// Set replaces the member list.
func (s *Static) Set(clusters []federation.ClusterInfo) {
	cp := make([]federation.ClusterInfo, len(clusters))
	copy(cp, clusters)
	s.mu.Lock()
	s.clusters = cp
	s.mu.Unlock()
}
