package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ascension-labs/govcore/internal/domain/experiment"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/port/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// --- Policy changes ---

// AppendPolicyChange inserts one lineage entry. Entries are never updated.
func (s *Store) AppendPolicyChange(ctx context.Context, c *governance.PolicyChange) error {
	oldVal, err := jsonValue(c.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newVal, err := jsonValue(c.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO policy_changes (parameter, old_value, new_value, reasoning, risk_score, approved, mode, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.Parameter, oldVal, newVal, c.Reasoning, c.RiskScore, c.Approved, string(c.Mode), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("append policy change %s: %w", c.Parameter, err)
	}
	return nil
}

// ListPolicyChanges returns the lineage in insertion order, filtered by
// parameter when it is non-empty.
func (s *Store) ListPolicyChanges(ctx context.Context, parameter string) ([]governance.PolicyChange, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT parameter, old_value, new_value, reasoning, risk_score, approved, mode, created_at
		 FROM policy_changes WHERE $1::text = '' OR parameter = $1 ORDER BY id`, parameter)
	if err != nil {
		return nil, fmt.Errorf("list policy changes: %w", err)
	}
	defer rows.Close()

	var result []governance.PolicyChange
	for rows.Next() {
		c, err := scanPolicyChange(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanPolicyChange(row scannable) (governance.PolicyChange, error) {
	var (
		c              governance.PolicyChange
		oldVal, newVal []byte
		mode           string
	)
	if err := row.Scan(&c.Parameter, &oldVal, &newVal, &c.Reasoning, &c.RiskScore, &c.Approved, &mode, &c.CreatedAt); err != nil {
		return c, fmt.Errorf("scan policy change: %w", err)
	}
	var err error
	if c.OldValue, err = jsonAny(oldVal); err != nil {
		return c, fmt.Errorf("decode old value: %w", err)
	}
	if c.NewValue, err = jsonAny(newVal); err != nil {
		return c, fmt.Errorf("decode new value: %w", err)
	}
	c.Mode = governance.Mode(mode)
	return c, nil
}

// --- Proposals ---

// SaveProposal upserts the proposal and replaces its vote rows in one
// transaction.
func (s *Store) SaveProposal(ctx context.Context, p *federation.Proposal) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO proposals (id, origin_cluster, summary, quorum_threshold, is_executed, created_at, executed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
			   is_executed = proposals.is_executed OR EXCLUDED.is_executed,
			   executed_at = COALESCE(proposals.executed_at, EXCLUDED.executed_at)`,
			p.ID, p.OriginCluster, p.Summary, p.QuorumThreshold, p.IsExecuted, p.CreatedAt, nullTime(p.ExecutedAt))
		if err != nil {
			return fmt.Errorf("save proposal %s: %w", p.ID, err)
		}

		batch := &pgx.Batch{}
		for cluster, vote := range p.Votes {
			batch.Queue(
				`INSERT INTO proposal_votes (proposal_id, cluster_id, vote, updated_at)
				 VALUES ($1, $2, $3, NOW())
				 ON CONFLICT (proposal_id, cluster_id) DO UPDATE SET vote = EXCLUDED.vote, updated_at = NOW()`,
				p.ID, cluster, vote)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save votes for %s: %w", p.ID, err)
		}
		return nil
	})
}

// GetProposal loads a proposal with its votes.
func (s *Store) GetProposal(ctx context.Context, id string) (*federation.Proposal, error) {
	p := federation.Proposal{Votes: make(map[string]bool)}
	err := s.pool.QueryRow(ctx,
		`SELECT id, origin_cluster, summary, quorum_threshold, is_executed, created_at, executed_at
		 FROM proposals WHERE id = $1`, id).
		Scan(&p.ID, &p.OriginCluster, &p.Summary, &p.QuorumThreshold, &p.IsExecuted, &p.CreatedAt, &p.ExecutedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get proposal %s", id)
	}

	rows, err := s.pool.Query(ctx, `SELECT cluster_id, vote FROM proposal_votes WHERE proposal_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get votes for %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cluster string
			vote    bool
		)
		if err := rows.Scan(&cluster, &vote); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		p.Votes[cluster] = vote
	}
	return &p, rows.Err()
}

// --- Experiments ---

// SaveExperiment upserts the experiment's current state.
func (s *Store) SaveExperiment(ctx context.Context, e *experiment.Experiment) error {
	proposed, err := jsonValue(e.Proposed)
	if err != nil {
		return fmt.Errorf("marshal proposed set: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO experiments (id, proposed, status, fitness_delta, baseline_fitness, proposed_fitness, validated, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   fitness_delta = EXCLUDED.fitness_delta,
		   baseline_fitness = EXCLUDED.baseline_fitness,
		   proposed_fitness = EXCLUDED.proposed_fitness,
		   validated = EXCLUDED.validated,
		   updated_at = EXCLUDED.updated_at`,
		e.ID, proposed, string(e.Status), e.FitnessDelta, e.BaselineFitness, e.ProposedFitness, e.Validated, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save experiment %s: %w", e.ID, err)
	}
	return nil
}

// GetExperiment loads an experiment.
func (s *Store) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	var (
		e        experiment.Experiment
		proposed []byte
		status   string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, proposed, status, fitness_delta, baseline_fitness, proposed_fitness, validated, created_at, updated_at
		 FROM experiments WHERE id = $1`, id).
		Scan(&e.ID, &proposed, &status, &e.FitnessDelta, &e.BaselineFitness, &e.ProposedFitness, &e.Validated, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get experiment %s", id)
	}
	e.Status = experiment.Status(status)
	if err := json.Unmarshal(proposed, &e.Proposed); err != nil {
		return nil, fmt.Errorf("decode proposed set for %s: %w", id, err)
	}
	return &e, nil
}
