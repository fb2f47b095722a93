package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

type tuneKey int

const (
	keyNone tuneKey = iota
	keySpeedUp
	keySpeedDown
	keyBoostUp
	keyBoostDown
	keySpeedOff
	keyBoostOff
	keyReapply
	keyQuit
)

// decodeKeys splits raw terminal input into keys. Arrow keys arrive as
// ESC [ A..D; h/j/k/l mirror them.
func decodeKeys(buf []byte) []tuneKey {
	var keys []tuneKey
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if b == 0x1b && i+2 < len(buf) && buf[i+1] == '[' {
			switch buf[i+2] {
			case 'A':
				keys = append(keys, keyBoostUp)
			case 'B':
				keys = append(keys, keyBoostDown)
			case 'C':
				keys = append(keys, keySpeedUp)
			case 'D':
				keys = append(keys, keySpeedDown)
			}
			i += 2
			continue
		}
		switch b {
		case 'l':
			keys = append(keys, keySpeedUp)
		case 'h':
			keys = append(keys, keySpeedDown)
		case 'k':
			keys = append(keys, keyBoostUp)
		case 'j':
			keys = append(keys, keyBoostDown)
		case 's':
			keys = append(keys, keySpeedOff)
		case 'b':
			keys = append(keys, keyBoostOff)
		case 'r':
			keys = append(keys, keyReapply)
		case 'q', 0x03, 0x04: // q, Ctrl-C, Ctrl-D
			keys = append(keys, keyQuit)
		}
	}
	return keys
}

// keyEnvelope maps a key to the event it sends.
func keyEnvelope(k tuneKey) (EventEnvelope, bool) {
	nudge := func(typ string, steps int) (EventEnvelope, bool) {
		env, err := newEnvelope(typ, map[string]int{"steps": steps})
		return env, err == nil
	}
	switch k {
	case keySpeedUp:
		return nudge("nudge_speed", 1)
	case keySpeedDown:
		return nudge("nudge_speed", -1)
	case keyBoostUp:
		return nudge("nudge_boost", 1)
	case keyBoostDown:
		return nudge("nudge_boost", -1)
	case keySpeedOff:
		return EventEnvelope{Type: "disable_speed"}, true
	case keyBoostOff:
		return EventEnvelope{Type: "disable_boost"}, true
	case keyReapply:
		return EventEnvelope{Type: "reapply"}, true
	}
	return EventEnvelope{}, false
}

// sliderBar renders a 0-100 position as a fixed-width bar.
func sliderBar(pos float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(pos / 100 * float64(width))
	filled = max(0, min(width, filled))
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '-'
		}
	}
	return "[" + string(bar) + "]"
}

func tuneLine(s stateSnapshot) string {
	return fmt.Sprintf("\r\x1b[2Kspeed %s %-7s boost %s %-5s",
		sliderBar(s.SpeedPosition, 20), s.SpeedDisplay,
		sliderBar(s.BoostPosition, 20), s.BoostDisplay)
}

// runTune shows both sliders and moves them with the keyboard until q.
func runTune(socketPath string, in *os.File, out io.Writer) error {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("tune needs an interactive terminal")
	}

	state, err := getState(socketPath)
	if err != nil {
		return err
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer func() {
		_ = term.Restore(fd, oldState)
		fmt.Fprint(out, "\r\n")
	}()

	fmt.Fprint(out, "arrows or h/j/k/l move, s/b turn speed/boost off, r reapplies, q quits\r\n")
	fmt.Fprint(out, tuneLine(state))

	buf := make([]byte, 16)
	for {
		n, err := in.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		for _, k := range decodeKeys(buf[:n]) {
			if k == keyQuit {
				return nil
			}
			env, ok := keyEnvelope(k)
			if !ok {
				continue
			}
			if _, err := send(socketPath, env); err != nil {
				fmt.Fprintf(out, "\r\x1b[2K%v", err)
				continue
			}
		}
		if state, err = getState(socketPath); err == nil {
			fmt.Fprint(out, tuneLine(state))
		}
	}
}
