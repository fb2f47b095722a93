package main

import "time"

// RotaryConfig controls how raw encoder detents turn into speed nudges.
type RotaryConfig struct {
	VelocityWindowMS   int     // time window for velocity detection
	VelocityThreshold  int     // same-direction steps in window that trigger fast mode
	VelocityMultiplier float64 // step multiplier in fast mode
}

// stepRotary records a turn and returns the updated tracker plus the effective
// number of position steps. Pure: state is returned, never mutated in place.
//
// When the count of same-direction steps inside the window reaches the
// threshold, the movement is multiplied ("fast spinning").
func stepRotary(st RotaryReducerState, steps int, at time.Time, cfg RotaryConfig) (RotaryReducerState, float64) {
	if steps == 0 {
		return st, 0
	}
	dir := 1
	if steps < 0 {
		dir = -1
	}

	window := cfg.VelocityWindowMS
	if window <= 0 {
		window = defaultRotaryVelocityWindowMS
	}
	cutoff := at.Add(-time.Duration(window) * time.Millisecond)

	kept := make([]RotaryReducerStep, 0, len(st.RecentSteps)+1)
	for _, s := range st.RecentSteps {
		if s.At.After(cutoff) {
			kept = append(kept, s)
		}
	}
	kept = append(kept, RotaryReducerStep{At: at, Direction: dir})

	sameDir := 0
	for _, s := range kept {
		if s.Direction == dir {
			sameDir++
		}
	}

	eff := float64(steps)
	if cfg.VelocityThreshold > 0 && sameDir >= cfg.VelocityThreshold && cfg.VelocityMultiplier > 0 {
		eff *= cfg.VelocityMultiplier
	}
	return RotaryReducerState{RecentSteps: kept}, eff
}
