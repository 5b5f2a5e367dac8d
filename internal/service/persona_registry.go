package service

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/persona"
)

// PersonaRegistry owns the active persona configuration. Personas are added
// or replaced, never removed. Writers (Register, Merge and leases) are
// serialized so a chamber lease has exclusive write access while it holds
// the swap.
type PersonaRegistry struct {
	mu       sync.RWMutex
	personas persona.Set

	writeMu sync.Mutex
}

// NewPersonaRegistry creates a registry holding a copy of initial.
func NewPersonaRegistry(initial persona.Set) *PersonaRegistry {
	return &PersonaRegistry{personas: initial.Clone()}
}

// Get returns the persona registered under key.
func (r *PersonaRegistry) Get(key string) (persona.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[key]
	if !ok {
		return persona.Persona{}, fmt.Errorf("persona %q: %w", key, domain.ErrNotFound)
	}
	return p, nil
}

// Snapshot returns a copy of the active configuration.
func (r *PersonaRegistry) Snapshot() persona.Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.personas.Clone()
}

// Register adds or replaces a persona. It blocks while a lease is held.
func (r *PersonaRegistry) Register(p *persona.Persona) error {
	if err := p.Validate(); err != nil {
		return domain.Validationf("register persona: %v", err)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.mu.Lock()
	r.personas[p.Key] = *p
	r.mu.Unlock()
	slog.Info("persona registered", "key", p.Key, "name", p.Name)
	return nil
}

// Merge writes every entry of set into the active configuration.
func (r *PersonaRegistry) Merge(set persona.Set) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, p := range set {
		r.personas[k] = p
	}
}

// Lease acquires exclusive write access and remembers the active
// configuration so Release can restore it.
func (r *PersonaRegistry) Lease() *PersonaLease {
	r.writeMu.Lock()
	return &PersonaLease{registry: r, saved: r.Snapshot()}
}

// PersonaLease is an exclusive hold on the active configuration.
type PersonaLease struct {
	registry *PersonaRegistry
	saved    persona.Set
	released bool
}

// Swap replaces the whole active configuration with a copy of set.
func (l *PersonaLease) Swap(set persona.Set) {
	if l.released {
		return
	}
	cp := set.Clone()
	l.registry.mu.Lock()
	l.registry.personas = cp
	l.registry.mu.Unlock()
}

// Release restores the configuration captured at Lease and gives up the
// hold. It is safe to call more than once.
func (l *PersonaLease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.registry.mu.Lock()
	l.registry.personas = l.saved
	l.registry.mu.Unlock()
	l.registry.writeMu.Unlock()
}
