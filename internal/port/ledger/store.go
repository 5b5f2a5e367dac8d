// Package ledger defines the persistence port for the audit records the
// governance core produces. The core itself holds no database connection.
package ledger

import (
	"context"

	"github.com/ascension-labs/govcore/internal/domain/experiment"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/domain/governance"
)

// Store persists policy changes, proposals with their votes, and experiments.
type Store interface {
	AppendPolicyChange(ctx context.Context, c *governance.PolicyChange) error
	ListPolicyChanges(ctx context.Context, parameter string) ([]governance.PolicyChange, error)

	SaveProposal(ctx context.Context, p *federation.Proposal) error
	GetProposal(ctx context.Context, id string) (*federation.Proposal, error)

	SaveExperiment(ctx context.Context, e *experiment.Experiment) error
	GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error)

	Close() error
}
