package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"
)

func TestTranslateInputEvent(t *testing.T) {
	tests := []struct {
		name string
		in   inputEvent
		want Event
	}{
		{"dial cw", inputEvent{Type: EV_REL, Code: REL_DIAL, Value: 2}, RotaryTurn{Steps: 2}},
		{"wheel ccw", inputEvent{Type: EV_REL, Code: REL_WHEEL, Value: -1}, RotaryTurn{Steps: -1}},
		{"vol up press", inputEvent{Type: EV_KEY, Code: KEY_VOLUMEUP, Value: evValuePress}, NudgeBoost{Steps: 1}},
		{"vol down repeat", inputEvent{Type: EV_KEY, Code: KEY_VOLUMEDOWN, Value: evValueRepeat}, NudgeBoost{Steps: -1}},
		{"fast forward", inputEvent{Type: EV_KEY, Code: KEY_FASTFORWARD, Value: evValuePress}, NudgeSpeed{Steps: 1}},
		{"rewind", inputEvent{Type: EV_KEY, Code: KEY_REWIND, Value: evValueRepeat}, NudgeSpeed{Steps: -1}},
		{"mute", inputEvent{Type: EV_KEY, Code: KEY_MUTE, Value: evValuePress}, DisableBoost{}},
		{"play pause", inputEvent{Type: EV_KEY, Code: KEY_PLAYPAUSE, Value: evValuePress}, DisableSpeed{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translateInputEvent(tt.in)
			if !ok {
				t.Fatalf("expected translation for %+v", tt.in)
			}
			if got != tt.want {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestTranslateInputEvent_Ignored(t *testing.T) {
	for _, ev := range []inputEvent{
		{Type: EV_KEY, Code: KEY_VOLUMEUP, Value: evValueRelease},
		{Type: EV_KEY, Code: KEY_MUTE, Value: evValueRepeat},
		{Type: EV_REL, Code: REL_DIAL, Value: 0},
		{Type: EV_REL, Code: 0x00, Value: 5}, // REL_X
		{Type: 0x03, Code: 0, Value: 1},      // EV_ABS
	} {
		if got, ok := translateInputEvent(ev); ok {
			t.Errorf("expected %+v to be ignored, got %#v", ev, got)
		}
	}
}

func TestReadInputEvents_DecodesStream(t *testing.T) {
	var buf bytes.Buffer
	want := []inputEvent{
		{Sec: 1, Type: EV_REL, Code: REL_DIAL, Value: 1},
		{Sec: 2, Type: EV_KEY, Code: KEY_MUTE, Value: evValuePress},
	}
	for _, ev := range want {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	events := make(chan inputEvent, 4)
	readErr := make(chan error, 1)
	go readInputEvents(&buf, events, readErr)

	for i, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Fatalf("event %d: got %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
	select {
	case err := <-readErr:
		if err != io.EOF {
			t.Fatalf("expected EOF, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reader did not stop at end of stream")
	}
}
