package main

import "time"

// DaemonState is the top-level, daemon-owned state container.
//
// Only the daemon goroutine touches it. Other goroutines (websocket, HTTP, IPC)
// get copies through RequestStateSnapshot.
type DaemonState struct {
	Speed SpeedState
	Boost BoostState

	// Loaded is set once stored preferences have been read. Control events that
	// arrive earlier are still applied; preferences then do not override them.
	Loaded bool

	// Rotary is reducer-owned state used for rotary velocity detection.
	Rotary RotaryReducerState

	// Intent holds coalesced work flushed into commands on the next Tick.
	Intent DaemonIntent

	// LastError is the most recent effect failure, for status output.
	LastError   string
	LastErrorAt time.Time
}

// SpeedState is the speed controller's reducer-side view.
type SpeedState struct {
	Position float64
	Touched  bool // a control event set Position (as opposed to a default)

	// Enabled is true while enforcement is wanted (from any position change
	// until DisableSpeed).
	Enabled bool

	// Page/AppliedRate record the last confirmed application.
	Page        string
	AppliedRate float64
	AppliedAt   time.Time
}

// BoostState is the booster's reducer-side view.
type BoostState struct {
	Position float64
	Touched  bool
	Enabled  bool

	LastReport BoostReport
	AppliedAt  time.Time
}

// RotaryReducerState tracks recent rotary turns for reducer-side velocity detection.
type RotaryReducerState struct {
	RecentSteps []RotaryReducerStep
}

// RotaryReducerStep is one observed rotary detent/step at a given time.
// Direction is -1 or +1.
type RotaryReducerStep struct {
	At        time.Time
	Direction int
}

// DaemonIntent captures pending work. Multiple changes within one tick collapse
// to the latest (a slider drag produces one page call per tick, not per event).
type DaemonIntent struct {
	Speed *SpeedIntent
	Boost *BoostIntent

	PersistSpeed *float64
	PersistBoost *float64
}

// SpeedIntent is either "enforce Rate" or "disable".
type SpeedIntent struct {
	Disable bool
	Rate    float64
}

// BoostIntent is either "apply Gain" or "reset to unity".
type BoostIntent struct {
	Disable bool
	Gain    float64
}

// SetDesiredSpeed records an enforcement intent (replacing any pending one).
func (s *DaemonState) SetDesiredSpeed(rate float64) {
	s.Intent.Speed = &SpeedIntent{Rate: rate}
}

// SetDesiredBoost records a boost intent (replacing any pending one).
func (s *DaemonState) SetDesiredBoost(gain float64) {
	s.Intent.Boost = &BoostIntent{Gain: gain}
}

// RequestPersist records that a control position should be stored.
func (s *DaemonState) RequestPersist(key string, pos float64) {
	switch key {
	case prefKeySpeed:
		s.Intent.PersistSpeed = &pos
	case prefKeyBoost:
		s.Intent.PersistBoost = &pos
	}
}

// ConsumeIntents returns the pending intents as commands, in order: speed,
// boost, persistence. Pending intents are cleared.
func (s *DaemonState) ConsumeIntents() []Command {
	var cmds []Command

	if it := s.Intent.Speed; it != nil {
		s.Intent.Speed = nil
		if it.Disable {
			cmds = append(cmds, CmdStopSpeedEnforcement{})
		} else {
			cmds = append(cmds, CmdStartSpeedEnforcement{Rate: it.Rate})
		}
	}
	if it := s.Intent.Boost; it != nil {
		s.Intent.Boost = nil
		if it.Disable {
			cmds = append(cmds, CmdResetBoost{})
		} else {
			cmds = append(cmds, CmdApplyBoost{Gain: it.Gain})
		}
	}
	if p := s.Intent.PersistSpeed; p != nil {
		s.Intent.PersistSpeed = nil
		cmds = append(cmds, CmdPersistPosition{Key: prefKeySpeed, Position: *p})
	}
	if p := s.Intent.PersistBoost; p != nil {
		s.Intent.PersistBoost = nil
		cmds = append(cmds, CmdPersistPosition{Key: prefKeyBoost, Position: *p})
	}
	return cmds
}

// StateSnapshot is the externally visible state (IPC status, websocket
// state_init, HTTP /api/state).
type StateSnapshot struct {
	SpeedPosition float64 `json:"speed_position"`
	Speed         float64 `json:"speed"`
	SpeedDisplay  string  `json:"speed_display"`
	SpeedEnabled  bool    `json:"speed_enabled"`
	SpeedPage     string  `json:"speed_page,omitempty"`

	BoostPosition float64     `json:"boost_position"`
	Gain          float64     `json:"gain"`
	BoostDisplay  string      `json:"boost_display"`
	BoostEnabled  bool        `json:"boost_enabled"`
	BoostReport   BoostReport `json:"boost_report"`

	SpeedPresets []float64 `json:"speed_presets"`
	BoostPresets []float64 `json:"boost_presets"`

	Loaded    bool   `json:"loaded"`
	LastError string `json:"last_error,omitempty"`
}
