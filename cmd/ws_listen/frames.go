package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// frame is a state websocket envelope: {type, ts, data}.
type frame struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type speedData struct {
	Position  float64 `json:"position"`
	Display   string  `json:"display"`
	Enforcing bool    `json:"enforcing"`
}

type boostData struct {
	Position float64 `json:"position"`
	Display  string  `json:"display"`
	Boosting bool    `json:"boosting"`
}

type initData struct {
	SpeedDisplay string `json:"speed_display"`
	SpeedEnabled bool   `json:"speed_enabled"`
	BoostDisplay string `json:"boost_display"`
	BoostEnabled bool   `json:"boost_enabled"`
	SpeedPage    string `json:"speed_page"`
}

func parseFrame(msg []byte) (frame, bool) {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil || f.Type == "" {
		return frame{}, false
	}
	return f, true
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// formatFrame renders one frame as a single log line. Unknown or unparsable
// frames are printed raw.
func formatFrame(f frame, raw []byte) string {
	switch f.Type {
	case "state_init":
		var d initData
		if json.Unmarshal(f.Data, &d) == nil {
			s := fmt.Sprintf("[INIT] speed %s (%s) boost %s (%s)", d.SpeedDisplay, onOff(d.SpeedEnabled), d.BoostDisplay, onOff(d.BoostEnabled))
			if d.SpeedPage != "" {
				s += " page " + d.SpeedPage
			}
			return s
		}
	case "speed_changed":
		var d speedData
		if json.Unmarshal(f.Data, &d) == nil {
			return fmt.Sprintf("[SPEED] %s position %.1f %s", d.Display, d.Position, onOff(d.Enforcing))
		}
	case "boost_changed":
		var d boostData
		if json.Unmarshal(f.Data, &d) == nil {
			return fmt.Sprintf("[BOOST] %s position %.1f %s", d.Display, d.Position, onOff(d.Boosting))
		}
	case "page_unavailable":
		var d struct {
			Control string `json:"control"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			return fmt.Sprintf("[PAGE] no active tab for %s", d.Control)
		}
	case "error":
		var d struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			return "[ERROR] " + d.Error
		}
	}
	return "[TEXT] " + string(raw)
}

// changeTracker drops speed/boost frames whose readout did not change.
type changeTracker struct {
	mu    sync.Mutex
	speed *speedData
	boost *boostData
}

func (t *changeTracker) changed(f frame) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch f.Type {
	case "speed_changed":
		var d speedData
		if json.Unmarshal(f.Data, &d) != nil {
			return true
		}
		if t.speed != nil && t.speed.Display == d.Display && t.speed.Enforcing == d.Enforcing {
			return false
		}
		t.speed = &d
	case "boost_changed":
		var d boostData
		if json.Unmarshal(f.Data, &d) != nil {
			return true
		}
		if t.boost != nil && t.boost.Display == d.Display && t.boost.Boosting == d.Boosting {
			return false
		}
		t.boost = &d
	case "state_init":
		t.speed, t.boost = nil, nil
	}
	return true
}
