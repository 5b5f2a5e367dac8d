package stability

import (
	"fmt"
	"math"
	"testing"
)

func changeSet(n int) ChangeSet {
	cs := make(ChangeSet, n)
	for i := range cs {
		cs[i] = ChangeUnit{Path: fmt.Sprintf("pkg/file%d.go", i), LinesAdded: 10}
	}
	return cs
}

func TestRiskFloorAndSteps(t *testing.T) {
	m := DefaultRiskModel()
	tests := []struct {
		size int
		want float64
	}{
		{0, 0.1},
		{5, 0.1},
		{6, 0.3},
		{11, 0.5},
		{26, 0.8},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("size=%d", tt.size), func(t *testing.T) {
			got := m.Risk(changeSet(tt.size))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Risk(%d) = %v, want %v", tt.size, got, tt.want)
			}
		})
	}
}

func TestRiskMonotoneInSize(t *testing.T) {
	m := DefaultRiskModel()
	m.ProtectedPaths = []string{"core/**"}
	prev := 0.0
	for n := 0; n < 60; n++ {
		r := m.Risk(changeSet(n))
		if r < prev {
			t.Fatalf("risk decreased at size %d: %v < %v", n, r, prev)
		}
		if r < 0 || r > 1 {
			t.Fatalf("risk out of range at size %d: %v", n, r)
		}
		prev = r
	}
}

func TestRiskProtectedPaths(t *testing.T) {
	m := DefaultRiskModel()
	m.ProtectedPaths = []string{"core/**/*.go"}

	plain := m.Risk(ChangeSet{{Path: "docs/readme.md"}})
	protected := m.Risk(ChangeSet{{Path: "core/governance/gate.go"}})
	if math.Abs(plain-0.1) > 1e-9 {
		t.Errorf("plain risk = %v, want 0.1", plain)
	}
	if math.Abs(protected-0.3) > 1e-9 {
		t.Errorf("protected risk = %v, want 0.3", protected)
	}
}

func TestRiskClampsToOne(t *testing.T) {
	m := RiskModel{Floor: 0.9, Steps: []SizeStep{{Above: 0, Increment: 0.5}}}
	if got := m.Risk(changeSet(1)); got != 1 {
		t.Errorf("Risk = %v, want 1", got)
	}
}

func TestFitness(t *testing.T) {
	tests := []struct {
		name string
		m    EvalMetrics
		want float64
	}{
		{"complexity 10 full success", EvalMetrics{AvgComplexity: 10, TestSuccessRate: 1}, 1},
		{"complexity 20 full success", EvalMetrics{AvgComplexity: 20, TestSuccessRate: 1}, 0.5},
		{"complexity 20 half success", EvalMetrics{AvgComplexity: 20, TestSuccessRate: 0.5}, 0.25},
		{"zero complexity clamps", EvalMetrics{AvgComplexity: 0, TestSuccessRate: 0.05}, 0.5},
		{"negative complexity clamps", EvalMetrics{AvgComplexity: -3, TestSuccessRate: 0.01}, 0.1},
		{"capped at one", EvalMetrics{AvgComplexity: 1, TestSuccessRate: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fitness(tt.m); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Fitness = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFitnessMonotonicity(t *testing.T) {
	for _, rate := range []float64{0, 0.3, 0.7, 1} {
		prev := math.Inf(1)
		for c := 0.0; c <= 100; c += 0.5 {
			f := Fitness(EvalMetrics{AvgComplexity: c, TestSuccessRate: rate})
			if f > prev {
				t.Fatalf("fitness increased with complexity %v at rate %v", c, rate)
			}
			prev = f
		}
	}
	for _, c := range []float64{1, 10, 25, 80} {
		prev := -1.0
		for rate := 0.0; rate <= 1.0; rate += 0.05 {
			f := Fitness(EvalMetrics{AvgComplexity: c, TestSuccessRate: rate})
			if f < prev {
				t.Fatalf("fitness decreased with success rate %v at complexity %v", rate, c)
			}
			prev = f
		}
	}
}

func TestEntropy(t *testing.T) {
	even := ChangeSet{{Path: "a", LinesAdded: 5}, {Path: "b", LinesAdded: 5}}
	if got := Entropy(even); math.Abs(got-1) > 1e-9 {
		t.Errorf("even entropy = %v, want 1", got)
	}
	concentrated := ChangeSet{{Path: "a", LinesAdded: 10}, {Path: "b"}}
	if got := Entropy(concentrated); got != 0 {
		t.Errorf("concentrated entropy = %v, want 0", got)
	}
	if got := Entropy(nil); got != 0 {
		t.Errorf("empty entropy = %v, want 0", got)
	}
}
