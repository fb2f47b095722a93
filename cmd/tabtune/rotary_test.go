package main

import (
	"testing"
	"time"
)

func TestStepRotary_Basic(t *testing.T) {
	cfg := RotaryConfig{VelocityWindowMS: 200, VelocityThreshold: 3, VelocityMultiplier: 2}
	t0 := time.Unix(1000, 0)

	var st RotaryReducerState
	st, eff := stepRotary(st, 1, t0, cfg)
	if eff != 1 {
		t.Errorf("expected eff=1, got %v", eff)
	}
	st, eff = stepRotary(st, 1, t0.Add(10*time.Millisecond), cfg)
	if eff != 1 {
		t.Errorf("expected eff=1 below threshold, got %v", eff)
	}
	_, eff = stepRotary(st, 1, t0.Add(20*time.Millisecond), cfg)
	if eff != 2 {
		t.Errorf("expected eff=2 at threshold, got %v", eff)
	}
}

// TestStepRotary_DirectionChange tests that opposite steps do not count
// toward the velocity threshold.
func TestStepRotary_DirectionChange(t *testing.T) {
	cfg := RotaryConfig{VelocityWindowMS: 200, VelocityThreshold: 3, VelocityMultiplier: 2}
	t0 := time.Unix(1000, 0)

	var st RotaryReducerState
	st, _ = stepRotary(st, 1, t0, cfg)
	st, _ = stepRotary(st, 1, t0.Add(5*time.Millisecond), cfg)
	st, eff := stepRotary(st, -1, t0.Add(10*time.Millisecond), cfg)
	if eff != -1 {
		t.Errorf("expected eff=-1 after direction change, got %v", eff)
	}
	if len(st.RecentSteps) != 3 {
		t.Errorf("expected 3 tracked steps, got %d", len(st.RecentSteps))
	}
}

func TestStepRotary_WindowExpiry(t *testing.T) {
	cfg := RotaryConfig{VelocityWindowMS: 100, VelocityThreshold: 2, VelocityMultiplier: 4}
	t0 := time.Unix(1000, 0)

	var st RotaryReducerState
	st, _ = stepRotary(st, 1, t0, cfg)
	st, eff := stepRotary(st, 1, t0.Add(150*time.Millisecond), cfg)
	if eff != 1 {
		t.Errorf("expected expired step to be ignored, got eff=%v", eff)
	}
	if len(st.RecentSteps) != 1 {
		t.Errorf("expected pruned history of 1, got %d", len(st.RecentSteps))
	}
}

func TestStepRotary_DoesNotMutateInput(t *testing.T) {
	cfg := RotaryConfig{VelocityWindowMS: 200, VelocityThreshold: 3, VelocityMultiplier: 2}
	t0 := time.Unix(1000, 0)

	orig := RotaryReducerState{RecentSteps: []RotaryReducerStep{{At: t0, Direction: 1}}}
	_, _ = stepRotary(orig, 1, t0.Add(time.Millisecond), cfg)
	if len(orig.RecentSteps) != 1 || !orig.RecentSteps[0].At.Equal(t0) {
		t.Fatalf("input state was mutated: %+v", orig.RecentSteps)
	}
}

func TestStepRotary_ZeroSteps(t *testing.T) {
	st, eff := stepRotary(RotaryReducerState{}, 0, time.Now(), RotaryConfig{})
	if eff != 0 || len(st.RecentSteps) != 0 {
		t.Fatalf("expected no-op, got eff=%v steps=%d", eff, len(st.RecentSteps))
	}
}
