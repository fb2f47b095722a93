package main

import (
	"math"
	"slices"
	"time"
)

// This file implements the reducer:
//
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//
// The reducer must be pure. It never touches the speed controller, booster or
// store; it records intents that the daemon loop turns into commands, and the
// effects layer feeds outcomes back as events.

// ReducerConfig carries the curves and step policy used by Reduce.
type ReducerConfig struct {
	Speed Curve
	Gain  Curve

	SpeedStep float64 // position change per NudgeSpeed step
	BoostStep float64 // position change per NudgeBoost step

	SpeedPresets []float64 // multipliers, for snapshots
	BoostPresets []float64 // percentages, for snapshots

	Rotary RotaryConfig

	// MaxGain caps the gain derived from the boost position, matching the
	// booster's ceiling. Zero leaves the curve uncapped.
	MaxGain float64
}

// gainAt maps a boost position to the gain that will actually be applied.
func (c ReducerConfig) gainAt(pos float64) float64 {
	g := c.Gain.Forward(pos)
	if c.MaxGain > 0 && g > c.MaxGain {
		return c.MaxGain
	}
	return g
}

// DefaultReducerConfig returns the built-in curves and defaults.
func DefaultReducerConfig() ReducerConfig {
	return ReducerConfig{
		Speed:        speedCurve(),
		Gain:         gainCurve(),
		SpeedStep:    defaultSpeedStep,
		BoostStep:    defaultBoostStep,
		SpeedPresets: slices.Clone(defaultSpeedPresets),
		BoostPresets: slices.Clone(defaultBoostPresets),
		Rotary: RotaryConfig{
			VelocityWindowMS:   defaultRotaryVelocityWindowMS,
			VelocityThreshold:  defaultRotaryVelocityThreshold,
			VelocityMultiplier: defaultRotaryVelocityMultiplier,
		},
	}
}

// ReduceResult is the output of Reduce(): next state, Commands to execute and
// StateBroadcasts for websocket clients.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = &DaemonState{}
	}

	r := reduction{s: s, cfg: cfg}

	at := time.Time{}
	if te, ok := e.(TimedEvent); ok {
		e, at = te.Event, te.At
	}

	switch ev := e.(type) {
	case Tick:
		r.cmds = append(r.cmds, s.ConsumeIntents()...)

	case DaemonStarted:
		r.cmds = append(r.cmds, CmdLoadPreferences{})

	case PreferencesLoaded:
		r.preferencesLoaded(ev)

	// Speed controls.
	case SetSpeedPosition:
		r.setSpeed(ev.Position, at)
	case SelectSpeedPreset:
		r.setSpeed(cfg.Speed.Inverse(ev.Speed), at)
	case NudgeSpeed:
		r.setSpeed(s.Speed.Position+float64(ev.Steps)*stepOr(cfg.SpeedStep, defaultSpeedStep), at)
	case RotaryTurn:
		next, eff := stepRotary(s.Rotary, ev.Steps, eventTime(at), cfg.Rotary)
		s.Rotary = next
		if eff != 0 {
			r.setSpeed(s.Speed.Position+eff*stepOr(cfg.SpeedStep, defaultSpeedStep), at)
		}
	case DisableSpeed:
		r.disableSpeed(at)

	// Boost controls.
	case SetBoostPosition:
		r.setBoost(ev.Position, at)
	case SelectBoostPreset:
		r.setBoost(cfg.Gain.Inverse(ev.Percent/100), at)
	case NudgeBoost:
		r.setBoost(s.Boost.Position+float64(ev.Steps)*stepOr(cfg.BoostStep, defaultBoostStep), at)
	case DisableBoost:
		r.disableBoost(at)

	case Reapply:
		if s.Speed.Enabled {
			s.SetDesiredSpeed(cfg.Speed.Forward(s.Speed.Position))
		}
		if s.Boost.Enabled {
			s.SetDesiredBoost(cfg.gainAt(s.Boost.Position))
		}

	// Observations.
	case SpeedApplied:
		s.Speed.Page = ev.Page
		s.Speed.AppliedRate = ev.Rate
		s.Speed.AppliedAt = ev.At

	case SpeedDisabled:
		s.Speed.Page = ""
		s.Speed.AppliedRate = 1
		s.Speed.AppliedAt = ev.At

	case BoostApplied:
		s.Boost.LastReport = ev.Report
		s.Boost.AppliedAt = ev.At

	case BoostDisabled:
		s.Boost.LastReport = ev.Report
		s.Boost.AppliedAt = ev.At

	case PageUnavailable:
		if control := commandControl(ev.Command); control != "" {
			r.bcasts = append(r.bcasts, BroadcastPageUnavailable{Control: control, At: ev.At})
		}

	case CommandFailed:
		if ev.Err != nil {
			s.LastError = ev.Command.String() + ": " + ev.Err.Error()
			s.LastErrorAt = ev.At
		}

	case RequestStateSnapshot:
		r.cmds = append(r.cmds, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: BuildSnapshot(s, cfg),
		})

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   r.cmds,
		Broadcasts: r.bcasts,
	}
}

// reduction accumulates the outputs of a single Reduce call.
type reduction struct {
	s      *DaemonState
	cfg    ReducerConfig
	cmds   []Command
	bcasts []StateBroadcast
}

// preferencesLoaded applies stored positions the way a slider move would,
// without persisting them again. Controls already moved since startup keep
// their position.
func (r *reduction) preferencesLoaded(ev PreferencesLoaded) {
	s := r.s
	s.Loaded = true

	if !s.Speed.Touched {
		pos := r.cfg.Speed.Neutral()
		if ev.SpeedFound && !math.IsNaN(ev.Speed) {
			pos = clampPosition(ev.Speed)
		}
		s.Speed.Position = pos
		s.Speed.Enabled = true
		s.SetDesiredSpeed(r.cfg.Speed.Forward(pos))
		r.bcasts = append(r.bcasts, r.speedBroadcast(ev.At))
	}

	if !s.Boost.Touched {
		pos := r.cfg.Gain.Neutral()
		if ev.BoostFound && !math.IsNaN(ev.Boost) {
			pos = clampPosition(ev.Boost)
		}
		s.Boost.Position = pos
		// Unity gain needs no audio graph; only a stored boost is applied.
		gain := r.cfg.gainAt(pos)
		if gain != 1 {
			s.Boost.Enabled = true
			s.SetDesiredBoost(gain)
		}
		r.bcasts = append(r.bcasts, r.boostBroadcast(ev.At))
	}
}

func (r *reduction) setSpeed(pos float64, at time.Time) {
	if math.IsNaN(pos) {
		return
	}
	s := r.s
	pos = clampPosition(pos)
	s.Speed.Position = pos
	s.Speed.Touched = true
	s.Speed.Enabled = true
	s.SetDesiredSpeed(r.cfg.Speed.Forward(pos))
	s.RequestPersist(prefKeySpeed, pos)
	r.bcasts = append(r.bcasts, r.speedBroadcast(at))
}

func (r *reduction) disableSpeed(at time.Time) {
	s := r.s
	pos := r.cfg.Speed.Neutral()
	s.Speed.Position = pos
	s.Speed.Touched = true
	s.Speed.Enabled = false
	s.Intent.Speed = &SpeedIntent{Disable: true}
	s.RequestPersist(prefKeySpeed, pos)
	r.bcasts = append(r.bcasts, r.speedBroadcast(at))
}

func (r *reduction) setBoost(pos float64, at time.Time) {
	if math.IsNaN(pos) {
		return
	}
	s := r.s
	pos = clampPosition(pos)
	s.Boost.Position = pos
	s.Boost.Touched = true
	s.Boost.Enabled = true
	s.SetDesiredBoost(r.cfg.gainAt(pos))
	s.RequestPersist(prefKeyBoost, pos)
	r.bcasts = append(r.bcasts, r.boostBroadcast(at))
}

func (r *reduction) disableBoost(at time.Time) {
	s := r.s
	pos := r.cfg.Gain.Neutral()
	s.Boost.Position = pos
	s.Boost.Touched = true
	s.Boost.Enabled = false
	s.Intent.Boost = &BoostIntent{Disable: true}
	s.RequestPersist(prefKeyBoost, pos)
	r.bcasts = append(r.bcasts, r.boostBroadcast(at))
}

func (r *reduction) speedBroadcast(at time.Time) BroadcastSpeedChanged {
	speed := r.cfg.Speed.Forward(r.s.Speed.Position)
	return BroadcastSpeedChanged{
		Position:  r.s.Speed.Position,
		Speed:     speed,
		Display:   formatSpeed(speed),
		Enforcing: r.s.Speed.Enabled,
		At:        at,
	}
}

func (r *reduction) boostBroadcast(at time.Time) BroadcastBoostChanged {
	gain := r.cfg.gainAt(r.s.Boost.Position)
	return BroadcastBoostChanged{
		Position: r.s.Boost.Position,
		Gain:     gain,
		Display:  formatBoost(gain),
		Boosting: r.s.Boost.Enabled,
		At:       at,
	}
}

// BuildSnapshot copies the externally visible parts of s.
func BuildSnapshot(s *DaemonState, cfg ReducerConfig) StateSnapshot {
	speed := cfg.Speed.Forward(s.Speed.Position)
	gain := cfg.gainAt(s.Boost.Position)
	return StateSnapshot{
		SpeedPosition: s.Speed.Position,
		Speed:         speed,
		SpeedDisplay:  formatSpeed(speed),
		SpeedEnabled:  s.Speed.Enabled,
		SpeedPage:     s.Speed.Page,

		BoostPosition: s.Boost.Position,
		Gain:          gain,
		BoostDisplay:  formatBoost(gain),
		BoostEnabled:  s.Boost.Enabled,
		BoostReport:   s.Boost.LastReport,

		SpeedPresets: slices.Clone(cfg.SpeedPresets),
		BoostPresets: slices.Clone(cfg.BoostPresets),

		Loaded:    s.Loaded,
		LastError: s.LastError,
	}
}

// commandControl names the control a page command belongs to.
func commandControl(c Command) string {
	switch c.(type) {
	case CmdStartSpeedEnforcement, CmdStopSpeedEnforcement:
		return prefKeySpeed
	case CmdApplyBoost, CmdResetBoost:
		return prefKeyBoost
	default:
		return ""
	}
}

func stepOr(step, def float64) float64 {
	if step <= 0 || math.IsNaN(step) {
		return def
	}
	return step
}

func eventTime(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now()
	}
	return at
}
