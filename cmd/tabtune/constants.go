package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01
	EV_REL = 0x02

	KEY_MUTE        = 113
	KEY_VOLUMEDOWN  = 114
	KEY_VOLUMEUP    = 115
	KEY_PLAYPAUSE   = 164
	KEY_REWIND      = 168
	KEY_FASTFORWARD = 208

	// Rotary encoder relative axis codes
	REL_DIAL  = 0x07
	REL_WHEEL = 0x08
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Controller defaults
const (
	defaultSpeedEnforceInterval = 200 * time.Millisecond // re-apply cadence for playback rate
	defaultBrowserTimeout       = 3 * time.Second        // per-call budget for page operations
	defaultMaxGain              = 100.0                  // gain ceiling

	defaultUpdateHz = 20 // reducer tick frequency (Hz)

	defaultSpeedStep = 1.0 // position change per nudge
	defaultBoostStep = 1.0

	// Rotary encoder configuration defaults
	defaultRotaryVelocityWindowMS   = 200 // Time window for velocity detection (ms)
	defaultRotaryVelocityMultiplier = 3.0 // Multiplier for "fast spinning"
	defaultRotaryVelocityThreshold  = 3   // Steps in window to trigger velocity mode

	defaultIPCSocket = "/tmp/tabtune.sock"
	defaultHTTPPort  = 8787
)

// Default quick-select presets.
var (
	defaultSpeedPresets = []float64{0.5, 1, 2}
	defaultBoostPresets = []float64{50, 100, 200} // percent
)
