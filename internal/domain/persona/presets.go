package persona

// Builtin returns the default six-role roster.
func Builtin() Set {
	list := []Persona{
		{
			Key:         string(RolePlanner),
			Name:        "Planner_Alpha",
			Capability:  "Plan Synthesis",
			TokenBudget: 50000,
			Prompt: "You are the Planner. Decompose high-level objectives into granular, " +
				"executable steps with explicit dependencies. Prefer optimal sequencing.",
		},
		{
			Key:         string(RoleArchitect),
			Name:        "Architect_Prime",
			Capability:  "Dependency Modeling",
			TokenBudget: 50000,
			Prompt: "You are the Architect. Design the structure of the implementation, " +
				"respect module boundaries and avoid technical debt.",
		},
		{
			Key:         string(RoleImplementer),
			Name:        "Implementer_Omega",
			Capability:  "Code Synthesis",
			TokenBudget: 100000,
			Prompt: "You are the Implementer. Translate the design into clean, modular code. " +
				"If the work spans multiple files, answer with a JSON object mapping relative " +
				"paths to file contents; otherwise answer with the code directly.",
		},
		{
			Key:         string(RoleCritic),
			Name:        "Critic_Sigma",
			Capability:  "Security & Logic Review",
			TokenBudget: 40000,
			Prompt: "You are the Critic. Review the proposal for logical flaws, security " +
				"vulnerabilities and architectural drift. Give specific remediation steps.",
		},
		{
			Key:         string(RoleOptimizer),
			Name:        "Optimizer_Delta",
			Capability:  "Efficiency Engineering",
			TokenBudget: 40000,
			Prompt: "You are the Optimizer. Remove performance bottlenecks and waste " +
				"without sacrificing correctness.",
		},
		{
			Key:         string(RoleAuditor),
			Name:        "Auditor_Kappa",
			Capability:  "Regression Testing",
			TokenBudget: 30000,
			Prompt: "You are the Auditor. Verify the final output against the objective " +
				"and the design constraints. Report any regression.",
		},
	}

	set := make(Set, len(list))
	for _, p := range list {
		set[p.Key] = p
	}
	return set
}
