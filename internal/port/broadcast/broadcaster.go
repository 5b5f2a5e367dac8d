// Package broadcast defines the port for pushing live governance events to
// connected clients.
package broadcast

import "context"

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Event types emitted by the core.
const (
	EventModeChanged       = "governance.mode_changed"
	EventPolicyEvaluated   = "governance.policy_evaluated"
	EventExperimentStaged  = "chamber.experiment_staged"
	EventExperimentUpdated = "chamber.experiment_updated"
	EventProposalSubmitted = "consensus.proposal_submitted"
	EventVoteCast          = "consensus.vote_cast"
	EventProposalExecuted  = "consensus.proposal_executed"
	EventRollbackTriggered = "federation.rollback_triggered"
)

// Nop discards every event.
type Nop struct{}

// BroadcastEvent does nothing.
func (Nop) BroadcastEvent(context.Context, string, any) {}
