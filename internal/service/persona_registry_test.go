package service

import (
	"errors"
	"testing"

	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/persona"
)

func TestPersonaRegistry_RegisterNeverRemoves(t *testing.T) {
	r := NewPersonaRegistry(persona.Builtin())

	p := persona.Persona{Key: "security_auditor", Name: "Sec", Prompt: "You are the Security Auditor.", TokenBudget: 1000}
	if err := r.Register(&p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	snap := r.Snapshot()
	if len(snap) != len(persona.Builtin())+1 {
		t.Fatalf("expected %d personas, got %d", len(persona.Builtin())+1, len(snap))
	}
	if _, err := r.Get(string(persona.RolePlanner)); err != nil {
		t.Fatalf("builtin planner missing after register: %v", err)
	}
}

func TestPersonaRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewPersonaRegistry(persona.Builtin())
	err := r.Register(&persona.Persona{Key: "x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPersonaRegistry_GetUnknown(t *testing.T) {
	r := NewPersonaRegistry(persona.Set{})
	if _, err := r.Get("nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPersonaRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewPersonaRegistry(persona.Builtin())
	snap := r.Snapshot()
	delete(snap, string(persona.RolePlanner))
	if _, err := r.Get(string(persona.RolePlanner)); err != nil {
		t.Fatal("mutating a snapshot changed the registry")
	}
}

func TestPersonaLease_ReleaseRestores(t *testing.T) {
	base := persona.Builtin()
	r := NewPersonaRegistry(base)

	lease := r.Lease()
	lease.Swap(persona.Set{"only": {Key: "only", Prompt: "p"}})
	if _, err := r.Get("only"); err != nil {
		t.Fatal("swap not visible to readers")
	}
	lease.Release()
	lease.Release() // idempotent

	if !r.Snapshot().Equal(base) {
		t.Fatal("release did not restore the leased configuration")
	}

	// Writers are unblocked after release.
	p := persona.Persona{Key: "late", Prompt: "p"}
	if err := r.Register(&p); err != nil {
		t.Fatalf("Register after release: %v", err)
	}
}
