package governance

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"observe", ModeObserve, false},
		{"SIMULATED", ModeSimulated, false},
		{" Commit ", ModeCommit, false},
		{"auto", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.MaxRiskScore = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for max_risk_score > 1")
	}

	cfg = DefaultConfig()
	cfg.Mode = "yolo"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestPolicyChangeValidate(t *testing.T) {
	c := PolicyChange{Parameter: "TASK_TOKEN_LIMIT", RiskScore: 0.2}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Parameter = ""
	if err := c.Validate(); err == nil {
		t.Error("expected error for empty parameter")
	}
}
