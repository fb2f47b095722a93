package main

import "fmt"

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop:
// page operations through the controllers and settings persistence.
type Command interface {
	commandMarker()
	String() string
}

// CmdLoadPreferences reads the stored speed and boost positions.
type CmdLoadPreferences struct{}

func (CmdLoadPreferences) commandMarker() {}
func (CmdLoadPreferences) String() string { return "CmdLoadPreferences()" }

// CmdStartSpeedEnforcement applies a rate to the active page and keeps it applied.
type CmdStartSpeedEnforcement struct {
	Rate float64
}

func (CmdStartSpeedEnforcement) commandMarker() {}
func (c CmdStartSpeedEnforcement) String() string {
	return fmt.Sprintf("CmdStartSpeedEnforcement(rate=%.4f)", c.Rate)
}

// CmdStopSpeedEnforcement stops enforcement on the active page and restores 1.0.
type CmdStopSpeedEnforcement struct{}

func (CmdStopSpeedEnforcement) commandMarker() {}
func (CmdStopSpeedEnforcement) String() string { return "CmdStopSpeedEnforcement()" }

// CmdApplyBoost sets gain on the active page's media.
type CmdApplyBoost struct {
	Gain float64
}

func (CmdApplyBoost) commandMarker() {}
func (c CmdApplyBoost) String() string { return fmt.Sprintf("CmdApplyBoost(gain=%.4f)", c.Gain) }

// CmdResetBoost resets existing gain stages on the active page to unity.
type CmdResetBoost struct{}

func (CmdResetBoost) commandMarker() {}
func (CmdResetBoost) String() string { return "CmdResetBoost()" }

// CmdPersistPosition stores a control position.
type CmdPersistPosition struct {
	Key      string
	Position float64
}

func (CmdPersistPosition) commandMarker() {}
func (c CmdPersistPosition) String() string {
	return fmt.Sprintf("CmdPersistPosition(key=%s, position=%.3f)", c.Key, c.Position)
}

// CmdPublishStateSnapshot delivers a reducer-built snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
