package config

import (
	"os"
	"path/filepath"
	"testing"
)

// Integration tests that exercise the full LoadFrom pipeline:
// defaults < YAML < environment variables.

func TestLoadFrom_FullHierarchy(t *testing.T) {
	// YAML sets port=9090, env overrides to 7070. Env must win.
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: "9090"
governance:
  mode: simulated
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GOVCORE_PORT", "7070")
	t.Setenv("GOVCORE_MODE", "commit")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("env should override YAML: got port %q, want 7070", cfg.Server.Port)
	}
	if cfg.Governance.Mode != "commit" {
		t.Errorf("env should override YAML: got mode %q, want commit", cfg.Governance.Mode)
	}
}

func TestLoadFrom_EnvInvalidValues(t *testing.T) {
	// Invalid env values are silently ignored; defaults survive.
	t.Setenv("GOVCORE_MAX_RISK_SCORE", "high")
	t.Setenv("GOVCORE_BREAKER_TIMEOUT", "invalid-duration")
	t.Setenv("GOVCORE_PIPELINE_CANDIDATES", "many")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Governance.MaxRiskScore != 0.3 {
		t.Errorf("invalid float env should be ignored: got %v, want 0.3", cfg.Governance.MaxRiskScore)
	}
	if cfg.Breaker.Timeout.String() != "30s" {
		t.Errorf("invalid duration env should be ignored: got %v, want 30s", cfg.Breaker.Timeout)
	}
	if cfg.Pipeline.Candidates != 1 {
		t.Errorf("invalid int env should be ignored: got %d, want 1", cfg.Pipeline.Candidates)
	}
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte(`{{{invalid yaml`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(yamlPath); err == nil {
		t.Fatal("expected error for malformed YAML, got nil")
	}
}

func TestLoadFrom_ValidationAfterOverride(t *testing.T) {
	// Env pushes the risk ceiling out of range => validation error.
	t.Setenv("GOVCORE_MAX_RISK_SCORE", "2")

	if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected validation error for max_risk_score 2, got nil")
	}
}
