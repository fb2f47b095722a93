package main

import (
	"fmt"
	"math"
)

// ============================================================================
// Curve Mapper - slider position <-> physical multiplier
// ============================================================================
// A Curve maps a linear 0-100 control position onto a perceptually scaled
// multiplier using three continuous segments:
//
//   A: [0, LowBreak)          exponential Min -> Low (linear when Min <= 0)
//   B: [LowBreak, HighBreak]  linear Low -> High
//   C: (HighBreak, 100]       exponential High -> Max
//
// Inverse applies the algebraic inverse of the segment whose value range holds
// the input. Both directions clamp their input to the domain first.
// ============================================================================

const (
	positionMin = 0.0
	positionMax = 100.0
)

// Curve describes one three-segment mapping. The zero value is not usable;
// construct curves with speedCurve/gainCurve or fill every field.
type Curve struct {
	Name string

	LowBreak  float64 // position where segment A meets B
	HighBreak float64 // position where segment B meets C

	Min  float64 // value at position 0
	Low  float64 // value at LowBreak
	High float64 // value at HighBreak
	Max  float64 // value at position 100
}

// speedCurve returns the playback-speed mapping: 0->0.1x, 25->0.25x, 50->1x,
// 75->1.75x, 100->10x.
func speedCurve() Curve {
	return Curve{
		Name:      "speed",
		LowBreak:  25,
		HighBreak: 75,
		Min:       0.1,
		Low:       0.25,
		High:      1.75,
		Max:       10,
	}
}

// gainCurve returns the audio-gain mapping: linear pos/15 up to 75 (5x), then
// exponential to 100x at position 100.
func gainCurve() Curve {
	return Curve{
		Name:      "gain",
		LowBreak:  25,
		HighBreak: 75,
		Min:       0,
		Low:       25.0 / 15.0,
		High:      5,
		Max:       100,
	}
}

// Forward maps a control position to a multiplier.
func (c Curve) Forward(pos float64) float64 {
	if math.IsNaN(pos) {
		return pos
	}
	p := clampPosition(pos)

	switch {
	case p < c.LowBreak:
		t := p / c.LowBreak
		if c.Min <= 0 {
			return c.Min + (c.Low-c.Min)*t
		}
		return c.Min * math.Pow(c.Low/c.Min, t)

	case p <= c.HighBreak:
		return c.Low + c.slope()*(p-c.LowBreak)

	default:
		t := (p - c.HighBreak) / (positionMax - c.HighBreak)
		return c.High * math.Pow(c.Max/c.High, t)
	}
}

// Inverse maps a multiplier back to a control position.
func (c Curve) Inverse(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	v = math.Max(c.Min, math.Min(c.Max, v))

	switch {
	case v <= c.Low:
		if c.Min <= 0 {
			return c.LowBreak * (v - c.Min) / (c.Low - c.Min)
		}
		return c.LowBreak * math.Log(v/c.Min) / math.Log(c.Low/c.Min)

	case v <= c.High:
		return c.LowBreak + (v-c.Low)/c.slope()

	default:
		return c.HighBreak + (positionMax-c.HighBreak)*math.Log(v/c.High)/math.Log(c.Max/c.High)
	}
}

// Neutral returns the position whose value is exactly 1.0.
func (c Curve) Neutral() float64 {
	return c.Inverse(1)
}

func (c Curve) slope() float64 {
	return (c.High - c.Low) / (c.HighBreak - c.LowBreak)
}

// Validate reports curves that would not be continuous and increasing.
func (c Curve) Validate() error {
	if !(c.LowBreak > positionMin && c.LowBreak < c.HighBreak && c.HighBreak < positionMax) {
		return fmt.Errorf("%s curve: breakpoints must satisfy 0 < low_break < high_break < 100", c.Name)
	}
	if !(c.Min < c.Low && c.Low < c.High && c.High < c.Max) {
		return fmt.Errorf("%s curve: anchors must be strictly increasing", c.Name)
	}
	if c.Min < 0 {
		return fmt.Errorf("%s curve: min must be >= 0", c.Name)
	}
	return nil
}

func clampPosition(p float64) float64 {
	if p < positionMin {
		return positionMin
	}
	if p > positionMax {
		return positionMax
	}
	return p
}

// formatSpeed renders a speed readout, e.g. "1.25x".
func formatSpeed(speed float64) string {
	return fmt.Sprintf("%.2fx", speed)
}

// formatBoost renders a gain readout as a rounded percentage, e.g. "150%".
func formatBoost(gain float64) string {
	return fmt.Sprintf("%.0f%%", math.Round(gain*100))
}
