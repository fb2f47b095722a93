package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ============================================================================
// Events - everything the daemon brain reacts to
// ============================================================================
// Control events arrive from IPC, the HTTP UI, the state websocket's page and
// the hardware knob. Internal events are produced by the daemon loop itself
// (Tick) or by effects reporting what happened (observations).
// ============================================================================

// Event is a marker interface for all reducer inputs.
type Event interface {
	eventMarker()
}

// ----------------------------------------------------------------------------
// Control events (accepted over IPC / HTTP)
// ----------------------------------------------------------------------------

// SetSpeedPosition moves the speed slider. Out-of-range positions are clamped.
type SetSpeedPosition struct {
	Position float64 `json:"position"`
}

func (SetSpeedPosition) eventMarker() {}

// SelectSpeedPreset selects a speed by its physical value (e.g. 2 for 2x).
type SelectSpeedPreset struct {
	Speed float64 `json:"speed"`
}

func (SelectSpeedPreset) eventMarker() {}

// NudgeSpeed moves the speed slider by Steps * speed.step.
type NudgeSpeed struct {
	Steps int `json:"steps"`
}

func (NudgeSpeed) eventMarker() {}

// DisableSpeed stops enforcement and restores normal playback.
type DisableSpeed struct{}

func (DisableSpeed) eventMarker() {}

// SetBoostPosition moves the boost slider. Out-of-range positions are clamped.
type SetBoostPosition struct {
	Position float64 `json:"position"`
}

func (SetBoostPosition) eventMarker() {}

// SelectBoostPreset selects a boost by percentage (100 = unity).
type SelectBoostPreset struct {
	Percent float64 `json:"percent"`
}

func (SelectBoostPreset) eventMarker() {}

// NudgeBoost moves the boost slider by Steps * boost.step.
type NudgeBoost struct {
	Steps int `json:"steps"`
}

func (NudgeBoost) eventMarker() {}

// DisableBoost resets every gain stage on the active page to unity.
type DisableBoost struct{}

func (DisableBoost) eventMarker() {}

// Reapply re-sends the current speed and boost to whichever page is active now.
type Reapply struct{}

func (Reapply) eventMarker() {}

// RotaryTurn represents a raw rotary encoder movement (detents/steps).
// The reducer owns the policy for turning this into speed changes.
type RotaryTurn struct {
	Steps int `json:"steps"` // positive=faster, negative=slower
}

func (RotaryTurn) eventMarker() {}

// ----------------------------------------------------------------------------
// Internal events
// ----------------------------------------------------------------------------

// Tick is emitted by the daemon loop at a fixed cadence. It flushes coalesced
// intents into commands.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// TimedEvent wraps an incoming control event with its arrival time.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// DaemonStarted is the first event reduced after startup.
type DaemonStarted struct {
	At time.Time
}

func (DaemonStarted) eventMarker() {}

// PreferencesLoaded carries the stored positions read at startup.
type PreferencesLoaded struct {
	Speed      float64
	SpeedFound bool
	Boost      float64
	BoostFound bool
	At         time.Time
}

func (PreferencesLoaded) eventMarker() {}

// SpeedApplied reports that a rate is now enforced on a page.
type SpeedApplied struct {
	Page string
	Rate float64
	At   time.Time
}

func (SpeedApplied) eventMarker() {}

// SpeedDisabled reports that enforcement stopped on a page.
type SpeedDisabled struct {
	Page string
	At   time.Time
}

func (SpeedDisabled) eventMarker() {}

// BoostApplied reports the outcome of a boost application.
type BoostApplied struct {
	Report BoostReport
	At     time.Time
}

func (BoostApplied) eventMarker() {}

// BoostDisabled reports that existing gain stages were reset.
type BoostDisabled struct {
	Report BoostReport
	At     time.Time
}

func (BoostDisabled) eventMarker() {}

// PageUnavailable reports that a command found no eligible page.
type PageUnavailable struct {
	Command Command
	At      time.Time
}

func (PageUnavailable) eventMarker() {}

// CommandFailed reports a side effect that returned an error.
type CommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (CommandFailed) eventMarker() {}

// RequestStateSnapshot asks the reducer for a snapshot, delivered on Reply.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete control
// event. Numeric fields are required and must be finite; presets must be in
// range. Only control events can be decoded.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "set_speed_position":
		p, err := numberField(env.Data, "position")
		if err != nil {
			return nil, fmt.Errorf("unmarshal SetSpeedPosition: %w", err)
		}
		return SetSpeedPosition{Position: p}, nil

	case "select_speed_preset":
		v, err := numberField(env.Data, "speed")
		if err != nil {
			return nil, fmt.Errorf("unmarshal SelectSpeedPreset: %w", err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("unmarshal SelectSpeedPreset: speed must be > 0, got %v", v)
		}
		return SelectSpeedPreset{Speed: v}, nil

	case "nudge_speed":
		n, err := stepsField(env.Data)
		if err != nil {
			return nil, fmt.Errorf("unmarshal NudgeSpeed: %w", err)
		}
		return NudgeSpeed{Steps: n}, nil

	case "disable_speed":
		return DisableSpeed{}, nil

	case "set_boost_position":
		p, err := numberField(env.Data, "position")
		if err != nil {
			return nil, fmt.Errorf("unmarshal SetBoostPosition: %w", err)
		}
		return SetBoostPosition{Position: p}, nil

	case "select_boost_preset":
		v, err := numberField(env.Data, "percent")
		if err != nil {
			return nil, fmt.Errorf("unmarshal SelectBoostPreset: %w", err)
		}
		if v < 0 {
			return nil, fmt.Errorf("unmarshal SelectBoostPreset: percent must be >= 0, got %v", v)
		}
		return SelectBoostPreset{Percent: v}, nil

	case "nudge_boost":
		n, err := stepsField(env.Data)
		if err != nil {
			return nil, fmt.Errorf("unmarshal NudgeBoost: %w", err)
		}
		return NudgeBoost{Steps: n}, nil

	case "disable_boost":
		return DisableBoost{}, nil

	case "reapply":
		return Reapply{}, nil

	case "rotary_turn":
		n, err := stepsField(env.Data)
		if err != nil {
			return nil, fmt.Errorf("unmarshal RotaryTurn: %w", err)
		}
		return RotaryTurn{Steps: n}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes a control event into a JSON envelope.
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope
	var payload any

	switch e := e.(type) {
	case SetSpeedPosition:
		env.Type, payload = "set_speed_position", e
	case SelectSpeedPreset:
		env.Type, payload = "select_speed_preset", e
	case NudgeSpeed:
		env.Type, payload = "nudge_speed", e
	case DisableSpeed:
		env.Type = "disable_speed"
	case SetBoostPosition:
		env.Type, payload = "set_boost_position", e
	case SelectBoostPreset:
		env.Type, payload = "select_boost_preset", e
	case NudgeBoost:
		env.Type, payload = "nudge_boost", e
	case DisableBoost:
		env.Type = "disable_boost"
	case Reapply:
		env.Type = "reapply"
	case RotaryTurn:
		env.Type, payload = "rotary_turn", e
	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %T: %w", payload, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

var errMissingData = errors.New("missing data")

// numberField extracts a required finite number from a JSON object.
func numberField(data json.RawMessage, name string) (float64, error) {
	if len(data) == 0 {
		return 0, errMissingData
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return 0, err
	}
	raw, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("field %q: %w", name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("field %q must be finite", name)
	}
	return v, nil
}

func stepsField(data json.RawMessage) (int, error) {
	v, err := numberField(data, "steps")
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || math.Abs(v) > 1000 {
		return 0, fmt.Errorf("field \"steps\" must be an integer in [-1000, 1000], got %v", v)
	}
	return int(v), nil
}
