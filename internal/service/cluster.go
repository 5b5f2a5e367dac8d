package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/artifact"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/domain/orchestration"
	"github.com/ascension-labs/govcore/internal/domain/persona"
	"github.com/ascension-labs/govcore/internal/domain/stability"
	"github.com/ascension-labs/govcore/internal/port/evaluation"
	"github.com/ascension-labs/govcore/internal/port/reasoning"
)

// verdictSchema is the structured shape requested from the reviewing role.
var verdictSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "approve": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "rationale": {"type": "string"}
  },
  "required": ["approve", "confidence"]
}`)

// MissionResult is what one cluster produced for an objective.
type MissionResult struct {
	ClusterID  string                 `json:"cluster_id"`
	Candidate  artifact.Candidate     `json:"candidate"`
	Candidates int                    `json:"candidates"`
	Verdicts   []artifact.Verdict     `json:"verdicts"`
	Metrics    stability.Metrics      `json:"metrics"`
	Authorized bool                   `json:"authorized"`
	Decision   orchestration.Decision `json:"-"`
	Outcome    string                 `json:"outcome"`
}

// ClusterService is one federation member's runtime: it runs missions
// through the role pipeline, arbitrates, scores and gates the result.
type ClusterService struct {
	info       federation.ClusterInfo
	registry   *PersonaRegistry
	pipeline   *RolePipeline
	provider   reasoning.Provider
	evaluator  evaluation.Evaluator
	engine     *StabilityEngine
	gov        *GovernanceManager
	candidates int

	mu             sync.Mutex
	activeMissions int
}

// ClusterDeps groups a cluster's collaborators.
type ClusterDeps struct {
	Info       federation.ClusterInfo
	Registry   *PersonaRegistry
	Pipeline   *RolePipeline
	Provider   reasoning.Provider
	Evaluator  evaluation.Evaluator // optional; fitness is zero without it
	Engine     *StabilityEngine
	Governance *GovernanceManager
	Candidates int // concurrent pipeline runs per mission, at least 1
}

// NewClusterService creates a cluster runtime.
func NewClusterService(d ClusterDeps) *ClusterService {
	n := d.Candidates
	if n < 1 {
		n = 1
	}
	return &ClusterService{
		info:       d.Info,
		registry:   d.Registry,
		pipeline:   d.Pipeline,
		provider:   d.Provider,
		evaluator:  d.Evaluator,
		engine:     d.Engine,
		gov:        d.Governance,
		candidates: n,
	}
}

// State returns the live cluster state.
func (s *ClusterService) State() federation.ClusterState {
	s.mu.Lock()
	active := s.activeMissions
	s.mu.Unlock()
	return federation.ClusterState{
		ID:             s.info.ID,
		Name:           s.info.Name,
		Region:         s.info.Region,
		Mode:           s.gov.Mode(),
		ActiveMissions: active,
	}
}

// Mission runs objective end to end on this cluster: candidate pipelines
// run concurrently, a reviewer scores each, the winner is risk-scored and
// put to the governance gate, and the auditor decides the outcome.
func (s *ClusterService) Mission(ctx context.Context, objective string) (*MissionResult, error) {
	s.trackMission(1)
	defer s.trackMission(-1)

	scoped := fmt.Sprintf("[Cluster Context: %s/%s] %s", s.info.Name, s.info.Region, objective)
	log := slog.With("cluster_id", s.info.ID)

	cands := make([]artifact.Candidate, s.candidates)
	verdicts := make([]artifact.Verdict, s.candidates)
	g, gctx := errgroup.WithContext(ctx)
	for i := range s.candidates {
		g.Go(func() error {
			c, err := s.pipeline.Execute(gctx, scoped)
			if err != nil {
				return err
			}
			v, err := s.review(gctx, scoped, c, i)
			if err != nil {
				return err
			}
			cands[i] = *c
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("mission failed", "error", err)
		return nil, err
	}

	winner, err := Arbitrate(cands, verdicts)
	if err != nil {
		return nil, err
	}

	var em stability.EvalMetrics
	if s.evaluator != nil {
		em, err = s.evaluator.Measure(ctx, scoped, &winner)
		if err != nil {
			return nil, fmt.Errorf("evaluate candidate: %w", err)
		}
	}
	metrics := s.engine.Evaluate(winner.ChangeSet(), em)
	authorized := s.gov.Authorize(ctx, governance.ActionCommit, metrics.RiskScore)

	decision, err := s.conclude(ctx, scoped, &winner, authorized)
	if err != nil {
		return nil, err
	}

	res := &MissionResult{
		ClusterID:  s.info.ID,
		Candidate:  winner,
		Candidates: len(cands),
		Verdicts:   verdicts,
		Metrics:    metrics,
		Authorized: authorized,
		Decision:   decision,
		Outcome:    orchestration.Describe(decision),
	}
	if _, failed := decision.(orchestration.Fail); failed {
		res.Authorized = false
	}
	log.Info("mission complete", "authorized", res.Authorized, "risk", metrics.RiskScore, "fitness", metrics.FitnessScore, "outcome", res.Outcome)
	return res, nil
}

func (s *ClusterService) trackMission(delta int) {
	s.mu.Lock()
	s.activeMissions += delta
	s.mu.Unlock()
}

// review asks the critic persona for a structured verdict on c.
func (s *ClusterService) review(ctx context.Context, objective string, c *artifact.Candidate, idx int) (artifact.Verdict, error) {
	critic, err := s.registry.Get(string(persona.RoleCritic))
	if err != nil {
		return artifact.Verdict{}, domain.Validationf("review: %v", err)
	}
	resp, err := s.provider.Generate(ctx, reasoning.Request{
		SystemPrompt: critic.Prompt,
		UserPrompt:   fmt.Sprintf("Objective:\n%s\n\nCandidate:\n%s\n\nReturn your verdict.", objective, c.Content),
		MaxTokens:    critic.TokenBudget,
		Schema:       verdictSchema,
		SchemaName:   "review_verdict",
	})
	if err != nil {
		return artifact.Verdict{}, domain.NewProviderError(critic.Key, err)
	}
	if resp == nil || len(resp.Structured) == 0 {
		return artifact.Verdict{}, domain.NewProviderError(critic.Key, reasoning.ErrSchemaUnsatisfied)
	}
	var v artifact.Verdict
	if err := json.Unmarshal(resp.Structured, &v); err != nil {
		return artifact.Verdict{}, domain.NewProviderError(critic.Key, fmt.Errorf("%w: %v", reasoning.ErrSchemaUnsatisfied, err))
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return artifact.Verdict{}, domain.NewProviderError(critic.Key, fmt.Errorf("%w: confidence %v out of range", reasoning.ErrSchemaUnsatisfied, v.Confidence))
	}
	v.ReviewerID = fmt.Sprintf("%s#%d", critic.Key, idx)
	return v, nil
}

// conclude asks the auditor for the closing decision on the winner.
func (s *ClusterService) conclude(ctx context.Context, objective string, winner *artifact.Candidate, authorized bool) (orchestration.Decision, error) {
	auditor, err := s.registry.Get(string(persona.RoleAuditor))
	if err != nil {
		return nil, domain.Validationf("conclude: %v", err)
	}
	resp, err := s.provider.Generate(ctx, reasoning.Request{
		SystemPrompt: auditor.Prompt,
		UserPrompt: fmt.Sprintf("Objective:\n%s\n\nSelected candidate:\n%s\n\nGovernance authorized: %t\nDecide the outcome.",
			objective, winner.Content, authorized),
		MaxTokens:  auditor.TokenBudget,
		Schema:     orchestration.DecisionSchema,
		SchemaName: "decision",
	})
	if err != nil {
		return nil, domain.NewProviderError(auditor.Key, err)
	}
	if resp == nil || len(resp.Structured) == 0 {
		return nil, domain.NewProviderError(auditor.Key, reasoning.ErrSchemaUnsatisfied)
	}
	d, err := orchestration.ParseDecision(resp.Structured)
	if err != nil {
		return nil, domain.NewProviderError(auditor.Key, fmt.Errorf("%w: %v", reasoning.ErrSchemaUnsatisfied, err))
	}
	return d, nil
}
