package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeKeys(t *testing.T) {
	keys := decodeKeys([]byte("\x1b[C\x1b[D\x1b[Ajkxsbrq"))
	assert.Equal(t, []tuneKey{
		keySpeedUp, keySpeedDown, keyBoostUp,
		keyBoostDown, keyBoostUp,
		keySpeedOff, keyBoostOff, keyReapply, keyQuit,
	}, keys)

	assert.Equal(t, []tuneKey{keyQuit}, decodeKeys([]byte{0x03}))
	assert.Empty(t, decodeKeys([]byte("\x1b")))
}

func TestKeyEnvelope(t *testing.T) {
	env, ok := keyEnvelope(keyBoostDown)
	assert.True(t, ok)
	assert.Equal(t, "nudge_boost", env.Type)
	assert.JSONEq(t, `{"steps":-1}`, string(env.Data))

	env, ok = keyEnvelope(keySpeedOff)
	assert.True(t, ok)
	assert.Equal(t, "disable_speed", env.Type)

	_, ok = keyEnvelope(keyQuit)
	assert.False(t, ok)
}

func TestSliderBar(t *testing.T) {
	assert.Equal(t, "[#####-----]", sliderBar(50, 10))
	assert.Equal(t, "[----------]", sliderBar(-5, 10))
	assert.Equal(t, "[##########]", sliderBar(150, 10))
}
