// Package federation defines the cross-cluster proposal, cluster state and
// signed transport packet types.
package federation

import (
	"time"

	"github.com/ascension-labs/govcore/internal/domain/governance"
)

// SafetyOrchestrator is the synthetic origin used for emergency rollbacks.
const SafetyOrchestrator = "safety-orchestrator"

// QuorumThreshold returns max(2, clusterCount/2 + 1).
func QuorumThreshold(clusterCount int) int {
	return max(2, clusterCount/2+1)
}

// Proposal is a federation-wide change put to a cluster vote.
// QuorumThreshold is fixed at submission; IsExecuted only moves false -> true.
type Proposal struct {
	ID              string          `json:"id"`
	OriginCluster   string          `json:"origin_cluster"`
	Summary         string          `json:"summary"`
	Votes           map[string]bool `json:"votes"`
	QuorumThreshold int             `json:"quorum_threshold"`
	IsExecuted      bool            `json:"is_executed"`
	CreatedAt       time.Time       `json:"created_at"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty"`
}

// YesCount counts clusters whose latest vote is yes.
func (p *Proposal) YesCount() int {
	n := 0
	for _, v := range p.Votes {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand to callers.
func (p *Proposal) Clone() Proposal {
	cp := *p
	cp.Votes = make(map[string]bool, len(p.Votes))
	for k, v := range p.Votes {
		cp.Votes[k] = v
	}
	if p.ExecutedAt != nil {
		t := *p.ExecutedAt
		cp.ExecutedAt = &t
	}
	return cp
}

// ClusterInfo is reference data from the cluster registry.
type ClusterInfo struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Region string `json:"region" yaml:"region"`
}

// ClusterState is the live state of one federation member.
type ClusterState struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Region         string          `json:"region"`
	Mode           governance.Mode `json:"mode"`
	ActiveMissions int             `json:"active_missions"`
}
