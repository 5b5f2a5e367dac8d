// Package sqlite implements the ledger store on an embedded SQLite file
// for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Register the "sqlite" database/sql driver

	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/experiment"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/port/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// --- Policy changes ---

// AppendPolicyChange inserts one lineage entry.
func (s *Store) AppendPolicyChange(ctx context.Context, c *governance.PolicyChange) error {
	oldVal, err := json.Marshal(c.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newVal, err := json.Marshal(c.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO policy_changes (parameter, old_value, new_value, reasoning, risk_score, approved, mode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Parameter, string(oldVal), string(newVal), c.Reasoning, c.RiskScore, c.Approved, string(c.Mode), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("append policy change %s: %w", c.Parameter, err)
	}
	return nil
}

// ListPolicyChanges returns the lineage in insertion order, filtered by
// parameter when it is non-empty.
func (s *Store) ListPolicyChanges(ctx context.Context, parameter string) ([]governance.PolicyChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parameter, old_value, new_value, reasoning, risk_score, approved, mode, created_at
		 FROM policy_changes WHERE ? = '' OR parameter = ? ORDER BY id`, parameter, parameter)
	if err != nil {
		return nil, fmt.Errorf("list policy changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []governance.PolicyChange
	for rows.Next() {
		var (
			c                       governance.PolicyChange
			oldVal, newVal, created string
			mode                    string
		)
		if err := rows.Scan(&c.Parameter, &oldVal, &newVal, &c.Reasoning, &c.RiskScore, &c.Approved, &mode, &created); err != nil {
			return nil, fmt.Errorf("scan policy change: %w", err)
		}
		if err := json.Unmarshal([]byte(oldVal), &c.OldValue); err != nil {
			return nil, fmt.Errorf("decode old value: %w", err)
		}
		if err := json.Unmarshal([]byte(newVal), &c.NewValue); err != nil {
			return nil, fmt.Errorf("decode new value: %w", err)
		}
		c.Mode = governance.Mode(mode)
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// --- Proposals ---

// SaveProposal upserts the proposal and its votes in one transaction.
// A stored execution is never cleared.
func (s *Store) SaveProposal(ctx context.Context, p *federation.Proposal) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var executedAt any
	if p.ExecutedAt != nil {
		executedAt = formatTime(*p.ExecutedAt)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO proposals (id, origin_cluster, summary, quorum_threshold, is_executed, created_at, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   is_executed = MAX(proposals.is_executed, excluded.is_executed),
		   executed_at = COALESCE(proposals.executed_at, excluded.executed_at)`,
		p.ID, p.OriginCluster, p.Summary, p.QuorumThreshold, p.IsExecuted, formatTime(p.CreatedAt), executedAt)
	if err != nil {
		return fmt.Errorf("save proposal %s: %w", p.ID, err)
	}
	for cluster, vote := range p.Votes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO proposal_votes (proposal_id, cluster_id, vote) VALUES (?, ?, ?)
			 ON CONFLICT (proposal_id, cluster_id) DO UPDATE SET vote = excluded.vote`,
			p.ID, cluster, vote)
		if err != nil {
			return fmt.Errorf("save vote %s/%s: %w", p.ID, cluster, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit proposal %s: %w", p.ID, err)
	}
	return nil
}

// GetProposal loads a proposal with its votes.
func (s *Store) GetProposal(ctx context.Context, id string) (*federation.Proposal, error) {
	var (
		p          = federation.Proposal{Votes: make(map[string]bool)}
		created    string
		executedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, origin_cluster, summary, quorum_threshold, is_executed, created_at, executed_at
		 FROM proposals WHERE id = ?`, id).
		Scan(&p.ID, &p.OriginCluster, &p.Summary, &p.QuorumThreshold, &p.IsExecuted, &created, &executedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get proposal %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", id, err)
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if executedAt.Valid {
		t, err := parseTime(executedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse executed_at: %w", err)
		}
		p.ExecutedAt = &t
	}

	rows, err := s.db.QueryContext(ctx, `SELECT cluster_id, vote FROM proposal_votes WHERE proposal_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get votes for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()
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
	proposed, err := json.Marshal(e.Proposed)
	if err != nil {
		return fmt.Errorf("marshal proposed set: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, proposed, status, fitness_delta, baseline_fitness, proposed_fitness, validated, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status,
		   fitness_delta = excluded.fitness_delta,
		   baseline_fitness = excluded.baseline_fitness,
		   proposed_fitness = excluded.proposed_fitness,
		   validated = excluded.validated,
		   updated_at = excluded.updated_at`,
		e.ID, string(proposed), string(e.Status), e.FitnessDelta, e.BaselineFitness, e.ProposedFitness, e.Validated,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save experiment %s: %w", e.ID, err)
	}
	return nil
}

// GetExperiment loads an experiment.
func (s *Store) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	var (
		e                experiment.Experiment
		proposed, status string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, proposed, status, fitness_delta, baseline_fitness, proposed_fitness, validated, created_at, updated_at
		 FROM experiments WHERE id = ?`, id).
		Scan(&e.ID, &proposed, &status, &e.FitnessDelta, &e.BaselineFitness, &e.ProposedFitness, &e.Validated, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get experiment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment %s: %w", id, err)
	}
	e.Status = experiment.Status(status)
	if err := json.Unmarshal([]byte(proposed), &e.Proposed); err != nil {
		return nil, fmt.Errorf("decode proposed set for %s: %w", id, err)
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &e, nil
}
