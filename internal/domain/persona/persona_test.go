package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinCoversPipelineOrder(t *testing.T) {
	set := Builtin()
	for _, role := range PipelineOrder {
		p, ok := set[string(role)]
		if !ok {
			t.Fatalf("builtin roster missing role %q", role)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("builtin %q invalid: %v", role, err)
		}
	}
}

func TestSetCloneIsIndependent(t *testing.T) {
	orig := Builtin()
	cp := orig.Clone()
	cp["planner"] = Persona{Key: "planner", Prompt: "changed"}

	if orig["planner"].Prompt == "changed" {
		t.Fatal("clone shares storage with original")
	}
	if orig.Equal(cp) {
		t.Error("expected sets to differ after modifying clone")
	}
	if !orig.Equal(Builtin()) {
		t.Error("expected original to equal a fresh builtin roster")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Persona
		wantErr bool
	}{
		{"valid", Persona{Key: "k", Prompt: "p", TokenBudget: 10}, false},
		{"missing key", Persona{Prompt: "p"}, true},
		{"missing prompt", Persona{Key: "k"}, true},
		{"negative budget", Persona{Key: "k", Prompt: "p", TokenBudget: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	content := `
key: security-auditor
name: Auditor_Tau
capability: Threat Modeling
prompt: You review changes for security regressions.
token_budget: 20000
`
	if err := os.WriteFile(filepath.Join(dir, "sec.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFromDirectory(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 persona, got %d", len(got))
	}
	if got[0].Key != "security-auditor" || got[0].TokenBudget != 20000 {
		t.Errorf("unexpected persona: %+v", got[0])
	}
}

func TestLoadFromDirectoryMissing(t *testing.T) {
	got, err := LoadFromDirectory(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("key: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected validation error for persona without prompt")
	}
}
