package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// readInputEvents reads input events from r and sends them to a channel.
// It blocks on reads and returns the first read error on readErr.
func readInputEvents(r io.Reader, events chan<- inputEvent, readErr chan<- error) {
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			readErr <- err
			return
		}

		reader.Reset(buf)
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			continue
		}
		events <- ev
	}
}

// translateInputEvent maps a raw key or knob event onto a control event.
//
//	REL_DIAL / REL_WHEEL        -> RotaryTurn (speed knob)
//	KEY_FASTFORWARD / KEY_REWIND -> NudgeSpeed +1 / -1
//	KEY_PLAYPAUSE               -> DisableSpeed
//	KEY_VOLUMEUP / KEY_VOLUMEDOWN -> NudgeBoost +1 / -1 (press and auto-repeat)
//	KEY_MUTE                    -> DisableBoost
func translateInputEvent(ev inputEvent) (Event, bool) {
	switch ev.Type {
	case EV_REL:
		if (ev.Code == REL_DIAL || ev.Code == REL_WHEEL) && ev.Value != 0 {
			return RotaryTurn{Steps: int(ev.Value)}, true
		}

	case EV_KEY:
		down := ev.Value == evValuePress
		repeat := ev.Value == evValueRepeat

		switch ev.Code {
		case KEY_VOLUMEUP:
			if down || repeat {
				return NudgeBoost{Steps: 1}, true
			}
		case KEY_VOLUMEDOWN:
			if down || repeat {
				return NudgeBoost{Steps: -1}, true
			}
		case KEY_FASTFORWARD:
			if down || repeat {
				return NudgeSpeed{Steps: 1}, true
			}
		case KEY_REWIND:
			if down || repeat {
				return NudgeSpeed{Steps: -1}, true
			}
		case KEY_MUTE:
			if down {
				return DisableBoost{}, true
			}
		case KEY_PLAYPAUSE:
			if down {
				return DisableSpeed{}, true
			}
		}
	}
	return nil, false
}

// runInput opens the configured devices and forwards translated events until
// ctx is canceled or a device fails.
func runInput(ctx context.Context, devices []string, events chan<- Event, logger *slog.Logger) error {
	if len(devices) == 0 {
		return nil
	}

	files := make([]*os.File, 0, len(devices))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, d := range devices {
		f, err := os.Open(ExpandPath(d))
		if err != nil {
			return fmt.Errorf("open input device %s: %w", d, err)
		}
		files = append(files, f)
		logger.Info("input device opened", "device", d)
	}

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, len(files))
	go readDevices(ctx, files, raw, readErr)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("input: %w", err)
		case ev := <-raw:
			cev, ok := translateInputEvent(ev)
			if !ok {
				continue
			}
			if err := offerEvent(events, cev); err != nil {
				logger.Warn("dropping input event", "error", err)
			}
		}
	}
}
