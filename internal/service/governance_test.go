package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/port/broadcast"
)

func newGov(t *testing.T, mode governance.Mode, ceiling float64) *GovernanceManager {
	t.Helper()
	cfg := governance.DefaultConfig()
	cfg.Mode = mode
	cfg.MaxRiskScore = ceiling
	g, err := NewGovernanceManager(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name string
		mode governance.Mode
		risk float64
		want bool
	}{
		{"observe denies zero risk", governance.ModeObserve, 0, false},
		{"observe denies any risk", governance.ModeObserve, 0.1, false},
		{"simulated allows at ceiling", governance.ModeSimulated, 0.3, true},
		{"simulated denies above ceiling", governance.ModeSimulated, 0.31, false},
		{"commit allows below ceiling", governance.ModeCommit, 0.1, true},
		{"commit denies above ceiling", governance.ModeCommit, 0.9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGov(t, tt.mode, 0.3)
			for _, action := range []governance.ActionType{governance.ActionRefactor, governance.ActionCommit, governance.ActionPromote} {
				if got := g.Authorize(context.Background(), action, tt.risk); got != tt.want {
					t.Fatalf("%s: Authorize = %v, want %v", action, got, tt.want)
				}
			}
		})
	}
}

func TestSetMode(t *testing.T) {
	hub := &mockBroadcaster{}
	g, err := NewGovernanceManager(governance.DefaultConfig(), hub)
	if err != nil {
		t.Fatal(err)
	}
	if g.Authorize(context.Background(), governance.ActionCommit, 0.1) {
		t.Fatal("default OBSERVE should deny")
	}
	if err := g.SetMode(context.Background(), governance.ModeCommit); err != nil {
		t.Fatal(err)
	}
	if !g.Authorize(context.Background(), governance.ActionCommit, 0.1) {
		t.Fatal("COMMIT should allow low risk")
	}
	if hub.count(broadcast.EventModeChanged) != 1 {
		t.Fatal("expected a mode change event")
	}
	if err := g.SetMode(context.Background(), "yolo"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestNewGovernanceManager_RejectsBadConfig(t *testing.T) {
	cfg := governance.DefaultConfig()
	cfg.MaxRiskScore = 1.5
	if _, err := NewGovernanceManager(cfg, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
