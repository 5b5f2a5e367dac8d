// Package governance defines operational modes, the gate configuration and
// the policy-change records kept in the mutation lineage.
package governance

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the operational mode that gates every mutating action.
type Mode string

const (
	// ModeObserve understands actions but never performs them.
	ModeObserve Mode = "observe"
	// ModeSimulated performs changes in isolation and reports metric diffs.
	ModeSimulated Mode = "simulated"
	// ModeCommit allows gated integration.
	ModeCommit Mode = "commit"
)

// ParseMode converts a case-insensitive mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown governance mode %q", s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeObserve, ModeSimulated, ModeCommit:
		return true
	}
	return false
}

// ActionType names the mutating action being authorized.
type ActionType string

const (
	ActionRefactor     ActionType = "refactor"
	ActionCommit       ActionType = "commit"
	ActionPromote      ActionType = "promote"
	ActionPolicyChange ActionType = "policy_change"
	ActionRollback     ActionType = "rollback"
)

// Config is the process-wide gate configuration. Only Mode and
// MaxRiskScore gate actions. MinFitnessImprovement and RequireHumanApproval
// are operator policy reported through the governance endpoint for
// external approval tooling; chamber promotion requires only a positive
// fitness delta.
type Config struct {
	Mode                  Mode    `json:"mode" yaml:"mode"`
	MaxRiskScore          float64 `json:"max_risk_score" yaml:"max_risk_score"`
	MinFitnessImprovement float64 `json:"min_fitness_improvement" yaml:"min_fitness_improvement"`
	RequireHumanApproval  bool    `json:"require_human_approval" yaml:"require_human_approval"`
}

// DefaultConfig starts in OBSERVE with a 0.3 risk ceiling.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeObserve,
		MaxRiskScore:          0.3,
		MinFitnessImprovement: 0.05,
		RequireHumanApproval:  true,
	}
}

// Validate checks the thresholds and mode.
func (c *Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("governance: invalid mode %q", c.Mode)
	}
	if c.MaxRiskScore < 0 || c.MaxRiskScore > 1 {
		return fmt.Errorf("governance: max_risk_score must be in [0,1], got %v", c.MaxRiskScore)
	}
	if c.MinFitnessImprovement < 0 {
		return fmt.Errorf("governance: min_fitness_improvement must be >= 0")
	}
	return nil
}

// PolicyChange is a proposed change to one orchestration parameter.
type PolicyChange struct {
	Parameter string    `json:"parameter"`
	OldValue  any       `json:"old_value"`
	NewValue  any       `json:"new_value"`
	Reasoning string    `json:"reasoning"`
	RiskScore float64   `json:"risk_score"`
	Approved  bool      `json:"approved"`
	Mode      Mode      `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that a change names a parameter and carries a sane risk.
func (c *PolicyChange) Validate() error {
	if c.Parameter == "" {
		return fmt.Errorf("parameter is required")
	}
	if c.RiskScore < 0 || c.RiskScore > 1 {
		return fmt.Errorf("risk_score must be in [0,1], got %v", c.RiskScore)
	}
	return nil
}
