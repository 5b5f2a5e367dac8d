package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ascension-labs/govcore/internal/domain/persona"
)

type chanRegistrar chan persona.Persona

func (c chanRegistrar) Register(p *persona.Persona) error {
	c <- *p
	return nil
}

func startWatcher(t *testing.T, dir string) chanRegistrar {
	t.Helper()
	reg := make(chanRegistrar, 4)
	w, err := New(dir, reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return reg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherRegistersNewPersona(t *testing.T) {
	dir := t.TempDir()
	reg := startWatcher(t, dir)

	writeFile(t, filepath.Join(dir, "security.yaml"), `
key: security
name: Security Reviewer
capability: security
prompt: You are the Security Reviewer.
token_budget: 800
`)

	select {
	case p := <-reg:
		if p.Key != "security" || p.TokenBudget != 800 {
			t.Fatalf("registered %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("persona was not registered")
	}
}

func TestWatcherIgnoresInvalidAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	reg := startWatcher(t, dir)

	writeFile(t, filepath.Join(dir, "notes.txt"), "key: x\nprompt: y\n")
	writeFile(t, filepath.Join(dir, "broken.yaml"), "name: no key or prompt\n")

	select {
	case p := <-reg:
		t.Fatalf("unexpected registration %+v", p)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "personas", "extra")
	w, err := New(dir, make(chanRegistrar, 1), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.close()
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if w.debounce != defaultDebounce {
		t.Errorf("debounce = %v, want default", w.debounce)
	}
}
