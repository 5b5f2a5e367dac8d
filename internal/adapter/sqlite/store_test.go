package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ascension-labs/govcore/internal/adapter/sqlite"
	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/experiment"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/domain/persona"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := governance.PolicyChange{Parameter: "ttl", OldValue: 1.0, NewValue: 2.0, RiskScore: 0.1, Mode: governance.ModeObserve, CreatedAt: time.Now()}
	if err := s.AppendPolicyChange(ctx, &c); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	// Migrations already applied must not fail on reopen.
	s, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()
	got, err := s.ListPolicyChanges(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 change after reopen, got %d", len(got))
	}
}

func TestPolicyChanges(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)

	for i, param := range []string{"max_risk_score", "min_fitness_improvement", "max_risk_score"} {
		c := governance.PolicyChange{
			Parameter: param,
			OldValue:  0.3,
			NewValue:  map[string]any{"v": float64(i)},
			Reasoning: "tune gate",
			RiskScore: 0.2,
			Approved:  i != 1,
			Mode:      governance.ModeCommit,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendPolicyChange(ctx, &c); err != nil {
			t.Fatalf("AppendPolicyChange: %v", err)
		}
	}

	all, err := s.ListPolicyChanges(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(all))
	}
	if all[1].Parameter != "min_fitness_improvement" || all[1].Approved {
		t.Errorf("changes out of insertion order: %+v", all[1])
	}

	risk, err := s.ListPolicyChanges(ctx, "max_risk_score")
	if err != nil {
		t.Fatal(err)
	}
	if len(risk) != 2 {
		t.Fatalf("expected 2 filtered changes, got %d", len(risk))
	}
	if !risk[0].CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", risk[0].CreatedAt, base)
	}
	if risk[0].OldValue != 0.3 || risk[0].Mode != governance.ModeCommit {
		t.Errorf("round trip lost fields: %+v", risk[0])
	}
	nv, ok := risk[1].NewValue.(map[string]any)
	if !ok || nv["v"] != 2.0 {
		t.Errorf("new value = %#v", risk[1].NewValue)
	}
}

func TestProposalRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	p := federation.Proposal{
		ID:              "p1",
		OriginCluster:   "C1",
		Summary:         "raise ttl",
		Votes:           map[string]bool{"C1": true},
		QuorumThreshold: 3,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.SaveProposal(ctx, &p); err != nil {
		t.Fatalf("SaveProposal: %v", err)
	}

	now := time.Now().UTC()
	p.Votes["C2"] = false
	p.Votes["C1"] = false
	p.IsExecuted = true
	p.ExecutedAt = &now
	if err := s.SaveProposal(ctx, &p); err != nil {
		t.Fatalf("SaveProposal update: %v", err)
	}

	got, err := s.GetProposal(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProposal: %v", err)
	}
	if !got.IsExecuted || got.ExecutedAt == nil || !got.ExecutedAt.Equal(now) || got.QuorumThreshold != 3 {
		t.Fatalf("unexpected proposal %+v", got)
	}
	if len(got.Votes) != 2 || got.Votes["C1"] {
		t.Fatalf("votes not replaced: %v", got.Votes)
	}

	p.IsExecuted = false
	p.ExecutedAt = nil
	if err := s.SaveProposal(ctx, &p); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetProposal(ctx, "p1")
	if !got.IsExecuted || got.ExecutedAt == nil {
		t.Fatal("stored proposal reverted to unexecuted")
	}
}

func TestSaveProposal_RejectsLowThreshold(t *testing.T) {
	s := openStore(t)
	p := federation.Proposal{ID: "p1", OriginCluster: "C1", QuorumThreshold: 1, CreatedAt: time.Now()}
	if err := s.SaveProposal(context.Background(), &p); err == nil {
		t.Fatal("expected check constraint violation")
	}
	if _, err := s.GetProposal(context.Background(), "p1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("failed save left a row behind: %v", err)
	}
}

func TestSaveProposal_Concurrent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p := federation.Proposal{ID: "p1", OriginCluster: "C1", Votes: map[string]bool{}, QuorumThreshold: 2, CreatedAt: time.Now()}
	if err := s.SaveProposal(ctx, &p); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := federation.Proposal{
				ID: "p1", OriginCluster: "C1", QuorumThreshold: 2, CreatedAt: p.CreatedAt,
				Votes: map[string]bool{string(rune('A' + i)): true},
			}
			if err := s.SaveProposal(ctx, &snap); err != nil {
				t.Errorf("SaveProposal: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetProposal(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Votes) != 10 {
		t.Fatalf("expected 10 votes, got %d", len(got.Votes))
	}
}

func TestGetProposal_NotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.GetProposal(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExperimentRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	exp, err := experiment.New("exp-1", persona.Set{"planner": persona.Builtin()["planner"]})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveExperiment(ctx, exp); err != nil {
		t.Fatalf("SaveExperiment: %v", err)
	}
	if err := exp.Transition(experiment.StatusTesting); err != nil {
		t.Fatal(err)
	}
	exp.FitnessDelta = -0.05
	exp.BaselineFitness = 0.60
	exp.ProposedFitness = 0.55
	exp.Validated = true
	if err := s.SaveExperiment(ctx, exp); err != nil {
		t.Fatalf("SaveExperiment update: %v", err)
	}

	got, err := s.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("GetExperiment: %v", err)
	}
	if got.Status != experiment.StatusTesting || got.FitnessDelta != -0.05 || !got.Validated {
		t.Fatalf("unexpected experiment %+v", got)
	}
	if got.BaselineFitness != 0.60 || got.ProposedFitness != 0.55 {
		t.Fatalf("fitness arms lost: %+v", got)
	}
	if !got.Proposed.Equal(exp.Proposed) {
		t.Fatal("proposed set lost in round trip")
	}

	if _, err := s.GetExperiment(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
