package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// Wire types duplicated from the daemon for a standalone binary.

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	State  *stateSnapshot `json:"state,omitempty"`
}

// stateSnapshot is the subset of the daemon snapshot the ctl displays.
type stateSnapshot struct {
	SpeedPosition float64   `json:"speed_position"`
	Speed         float64   `json:"speed"`
	SpeedDisplay  string    `json:"speed_display"`
	SpeedEnabled  bool      `json:"speed_enabled"`
	SpeedPage     string    `json:"speed_page,omitempty"`
	BoostPosition float64   `json:"boost_position"`
	Gain          float64   `json:"gain"`
	BoostDisplay  string    `json:"boost_display"`
	BoostEnabled  bool      `json:"boost_enabled"`
	SpeedPresets  []float64 `json:"speed_presets"`
	BoostPresets  []float64 `json:"boost_presets"`
	Loaded        bool      `json:"loaded"`
	LastError     string    `json:"last_error,omitempty"`
}

const ipcTimeout = 3 * time.Second

func newEnvelope(typ string, data any) (EventEnvelope, error) {
	env := EventEnvelope{Type: typ}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return EventEnvelope{}, fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = b
	}
	return env, nil
}

// send writes one envelope and returns the daemon's reply.
func send(socketPath string, env EventEnvelope) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, ipcTimeout)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcTimeout))

	data, err := json.Marshal(env)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal event: %w", err)
	}

	// Send event (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}
	return response, nil
}

func getState(socketPath string) (stateSnapshot, error) {
	resp, err := send(socketPath, EventEnvelope{Type: "get_state"})
	if err != nil {
		return stateSnapshot{}, err
	}
	if resp.State == nil {
		return stateSnapshot{}, errors.New("response carries no state")
	}
	return *resp.State, nil
}

func formatState(s stateSnapshot) string {
	speed := "off"
	if s.SpeedEnabled {
		speed = "on"
	}
	boost := "off"
	if s.BoostEnabled {
		boost = "on"
	}
	out := fmt.Sprintf("speed %s (position %.1f, %s)  boost %s (position %.1f, %s)",
		s.SpeedDisplay, s.SpeedPosition, speed, s.BoostDisplay, s.BoostPosition, boost)
	if s.SpeedPage != "" {
		out += "  page " + s.SpeedPage
	}
	if s.LastError != "" {
		out += "  last error: " + s.LastError
	}
	return out
}
