// Package persona defines the role personas that drive the staged role pipeline.
package persona

import "fmt"

// Role identifies a pipeline stage.
type Role string

const (
	RolePlanner     Role = "planner"
	RoleArchitect   Role = "architect"
	RoleImplementer Role = "implementer"
	RoleCritic      Role = "critic"
	RoleOptimizer   Role = "optimizer"
	RoleAuditor     Role = "auditor"
)

// PipelineOrder is the fixed total order in which roles run.
var PipelineOrder = []Role{
	RolePlanner,
	RoleArchitect,
	RoleImplementer,
	RoleCritic,
	RoleOptimizer,
	RoleAuditor,
}

// Persona is a registered role persona. Values are immutable once
// registered; a changed persona is registered as a new value under the key.
type Persona struct {
	Key         string `json:"key" yaml:"key"`
	Name        string `json:"name" yaml:"name"`
	Capability  string `json:"capability" yaml:"capability"`
	Prompt      string `json:"prompt" yaml:"prompt"`
	TokenBudget int    `json:"token_budget" yaml:"token_budget"`
}

// Set maps persona keys to personas. It is the unit the chamber swaps.
type Set map[string]Persona

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Equal reports whether both sets hold identical personas.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if o, ok := other[k]; !ok || o != v {
			return false
		}
	}
	return true
}

// Validate checks that a persona has the fields the pipeline needs.
func (p *Persona) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("key is required")
	}
	if p.Prompt == "" {
		return fmt.Errorf("persona %q: prompt is required", p.Key)
	}
	if p.TokenBudget < 0 {
		return fmt.Errorf("persona %q: token_budget must be >= 0, got %d", p.Key, p.TokenBudget)
	}
	return nil
}
