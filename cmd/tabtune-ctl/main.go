package main

import (
	"fmt"
	"os"
	"strconv"
)

// ============================================================================
// tabtune-ctl - Command-line IPC Client
// ============================================================================
// Sends control events to the tabtune daemon via IPC, and hosts the small
// offline helpers (calculator, discount, unit price).
//
// Usage:
//   tabtune-ctl speed 60
//   tabtune-ctl preset boost 200
//   tabtune-ctl off speed
//   tabtune-ctl status
//   tabtune-ctl calc -copy "(1+2)/3"
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/tabtune.sock)
// ============================================================================

const defaultSocket = "/tmp/tabtune.sock"

func main() {
	socketPath := defaultSocket
	if v, ok := os.LookupEnv("TABTUNE_IPC_SOCKET"); ok && v != "" {
		socketPath = v
	}

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		return

	case "status":
		var s stateSnapshot
		if s, err = getState(socketPath); err == nil {
			fmt.Println(formatState(s))
		}

	case "tune":
		err = runTune(socketPath, os.Stdin, os.Stdout)

	case "calc":
		err = runCalc(args[1:], os.Stdout)

	case "discount":
		err = runDiscount(args[1:], os.Stdout)

	case "unit-price":
		err = runUnitPrice(args[1:], os.Stdout)

	default:
		var env EventEnvelope
		if env, err = buildEvent(args); err == nil {
			if _, err = send(socketPath, env); err == nil {
				fmt.Println("ok")
			}
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// buildEvent turns a control command line into an event envelope.
func buildEvent(args []string) (EventEnvelope, error) {
	need := func(n int, usage string) error {
		if len(args) < n {
			return fmt.Errorf("usage: tabtune-ctl %s", usage)
		}
		return nil
	}

	switch args[0] {
	case "speed", "boost":
		if err := need(2, args[0]+" <position 0-100>"); err != nil {
			return EventEnvelope{}, err
		}
		pos, err := parseNumber(args[1])
		if err != nil {
			return EventEnvelope{}, err
		}
		return newEnvelope("set_"+args[0]+"_position", map[string]float64{"position": pos})

	case "preset":
		if err := need(3, "preset speed <multiplier> | preset boost <percent>"); err != nil {
			return EventEnvelope{}, err
		}
		v, err := parseNumber(args[2])
		if err != nil {
			return EventEnvelope{}, err
		}
		switch args[1] {
		case "speed":
			return newEnvelope("select_speed_preset", map[string]float64{"speed": v})
		case "boost":
			return newEnvelope("select_boost_preset", map[string]float64{"percent": v})
		}
		return EventEnvelope{}, fmt.Errorf("unknown control: %s", args[1])

	case "nudge":
		if err := need(3, "nudge speed|boost <steps>"); err != nil {
			return EventEnvelope{}, err
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return EventEnvelope{}, fmt.Errorf("invalid steps: %w", err)
		}
		switch args[1] {
		case "speed", "boost":
			return newEnvelope("nudge_"+args[1], map[string]int{"steps": n})
		}
		return EventEnvelope{}, fmt.Errorf("unknown control: %s", args[1])

	case "knob":
		if err := need(2, "knob <steps>"); err != nil {
			return EventEnvelope{}, err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return EventEnvelope{}, fmt.Errorf("invalid steps: %w", err)
		}
		return newEnvelope("rotary_turn", map[string]int{"steps": n})

	case "off":
		if err := need(2, "off speed|boost"); err != nil {
			return EventEnvelope{}, err
		}
		switch args[1] {
		case "speed", "boost":
			return EventEnvelope{Type: "disable_" + args[1]}, nil
		}
		return EventEnvelope{}, fmt.Errorf("unknown control: %s", args[1])

	case "reapply":
		return EventEnvelope{Type: "reapply"}, nil
	}

	return EventEnvelope{}, fmt.Errorf("unknown command: %s", args[0])
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `tabtune-ctl - Control the tabtune daemon via IPC

Usage:
  tabtune-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s, or $TABTUNE_IPC_SOCKET)

Commands:
  speed <pos>                  Move the speed slider (0-100, 50 = 1x)
  boost <pos>                  Move the boost slider (0-100, 15 = 100%%)
  preset speed <x>             Select a speed, e.g. 2 for 2x
  preset boost <percent>       Select a boost, e.g. 200
  nudge speed|boost <steps>    Move a slider by steps
  knob <steps>                 Simulate a rotary knob turn
  off speed|boost              Turn speed enforcement or boost off
  reapply                      Re-send both settings to the active tab
  status                       Print the current state
  tune                         Interactive sliders (arrows, q to quit)
  calc [-copy] <expr>          Evaluate an expression, e.g. "(1+2)/3"
  discount <old> <new>         Discount percentage between two prices
  unit-price <price> <amount>  Price per 100g/ml
  help, -h, --help             Show this help message

Examples:
  tabtune-ctl preset speed 1.5
  tabtune-ctl -socket /run/user/1000/tabtune.sock status
  tabtune-ctl calc "2*[3+4"
`, defaultSocket)
}
