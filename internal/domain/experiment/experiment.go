// Package experiment models an A/B self-modification experiment.
package experiment

import (
	"fmt"
	"time"

	"github.com/ascension-labs/govcore/internal/domain/persona"
)

// Status is the lifecycle state of an experiment.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusTesting  Status = "TESTING"
	StatusPromoted Status = "PROMOTED"
	StatusRejected Status = "REJECTED"
)

// transitions lists the only legal moves: PENDING -> TESTING -> {PROMOTED|REJECTED}.
var transitions = map[Status][]Status{
	StatusPending: {StatusTesting},
	StatusTesting: {StatusPromoted, StatusRejected},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusPromoted || s == StatusRejected
}

// Experiment is one proposed persona configuration under validation.
type Experiment struct {
	ID              string      `json:"id"`
	Proposed        persona.Set `json:"proposed"`
	FitnessDelta    float64     `json:"fitness_delta"`
	BaselineFitness float64     `json:"baseline_fitness"`
	ProposedFitness float64     `json:"proposed_fitness"`
	Validated       bool        `json:"validated"`
	Status          Status      `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// New returns a PENDING experiment with a private copy of the proposed set.
func New(id string, proposed persona.Set) (*Experiment, error) {
	if id == "" {
		return nil, fmt.Errorf("experiment id is required")
	}
	if len(proposed) == 0 {
		return nil, fmt.Errorf("experiment %s: proposed configuration is empty", id)
	}
	for k, p := range proposed {
		if p.Key != k {
			return nil, fmt.Errorf("experiment %s: persona key %q stored under %q", id, p.Key, k)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("experiment %s: %w", id, err)
		}
	}
	now := time.Now().UTC()
	return &Experiment{
		ID:        id,
		Proposed:  proposed.Clone(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition moves the experiment to the next status if legal.
func (e *Experiment) Transition(to Status) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("experiment %s: illegal transition %s -> %s", e.ID, e.Status, to)
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	return nil
}
