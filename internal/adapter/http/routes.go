package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ascension-labs/govcore/internal/middleware"
	"github.com/ascension-labs/govcore/internal/port/cache"
)

// RouteOptions configures the cross-cutting middleware on mutating routes.
type RouteOptions struct {
	// VoteLimiter limits vote submissions per cluster. Optional.
	VoteLimiter *middleware.RateLimiter
	// Idempotency stores replayable responses for Idempotency-Key. Optional.
	Idempotency    cache.Cache
	IdempotencyTTL time.Duration
	// WS serves the live event stream. Optional.
	WS http.HandlerFunc
	// Metrics serves the Prometheus scrape endpoint. Optional.
	Metrics http.Handler
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.WS != nil {
		r.Get("/ws", opts.WS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SecurityHeaders)
		if opts.Idempotency != nil {
			r.Use(middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL))
		}

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
		})

		// Cluster runtime
		r.Get("/cluster", h.ClusterState)
		r.Post("/missions", h.RunMission)

		// Personas
		r.Get("/personas", h.ListPersonas)
		r.Post("/personas", h.RegisterPersona)
		r.Get("/personas/{key}", h.GetPersona)

		// Stability
		r.Post("/stability/evaluate", h.EvaluateStability)

		// Governance
		r.Get("/governance", h.GetGovernance)
		r.Put("/governance/mode", h.SetMode)
		r.Post("/governance/authorize", h.Authorize)
		r.Post("/governance/policy-changes", h.EvaluatePolicyChange)
		r.Get("/governance/lineage", h.Lineage)

		// Self-modification chamber
		r.Get("/experiments/baseline", h.Baseline)
		r.Post("/experiments", h.StageExperiment)
		r.Get("/experiments/active", h.ActiveExperiment)
		r.Post("/experiments/active/validate", h.ValidateExperiment)
		r.Post("/experiments/active/promote", h.PromoteExperiment)
		r.Post("/experiments/active/reject", h.RejectExperiment)

		// Consensus
		r.Get("/proposals", h.ListProposals)
		r.Post("/proposals", h.SubmitProposal)
		r.Get("/proposals/{id}", h.GetProposal)
		if opts.VoteLimiter != nil {
			r.With(opts.VoteLimiter.Handler).Post("/proposals/{id}/votes", h.CastVote)
		} else {
			r.Post("/proposals/{id}/votes", h.CastVote)
		}

		// Federation health
		r.Get("/federation/fitness", h.Fitness)
		r.Post("/federation/fitness", h.ReportFitness)
		r.Post("/federation/health", h.EvaluateHealth)
	})
}
