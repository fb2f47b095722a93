package main

import "time"

// StateBroadcast is a reducer-emitted notification for websocket clients.
// Broadcasts never feed back into the reducer.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastSpeedChanged reports a new speed slider position.
type BroadcastSpeedChanged struct {
	Position  float64
	Speed     float64
	Display   string
	Enforcing bool
	At        time.Time
}

func (BroadcastSpeedChanged) broadcastMarker() {}

// BroadcastBoostChanged reports a new boost slider position.
type BroadcastBoostChanged struct {
	Position float64
	Gain     float64
	Display  string
	Boosting bool
	At       time.Time
}

func (BroadcastBoostChanged) broadcastMarker() {}

// BroadcastPageUnavailable reports that a control found no eligible page.
type BroadcastPageUnavailable struct {
	Control string // "speed" or "boost"
	At      time.Time
}

func (BroadcastPageUnavailable) broadcastMarker() {}
