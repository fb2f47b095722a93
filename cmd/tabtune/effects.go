package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Effects bundles the side-effect targets a Command can act on.
type Effects struct {
	Speed *SpeedController
	Boost *VolumeBooster
	Store SettingsStore

	// Timeout bounds each command; <= 0 uses defaultBrowserTimeout.
	Timeout time.Duration
}

// runEffect executes a single reducer-emitted Command and emits an observation
// Event via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
func runEffect(
	ctx context.Context,
	fx *Effects,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		return
	}
	now := time.Now()

	if fx == nil {
		onEvent(CommandFailed{Command: cmd, Err: errNoEffects{}, At: now})
		return
	}

	timeout := fx.Timeout
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// fail reports err as a missing page or a failure.
	fail := func(err error, attrs ...any) {
		if errors.Is(err, ErrNoActivePage) {
			logger.Debug("no active page", append([]any{"command", cmd.String()}, attrs...)...)
			onEvent(PageUnavailable{Command: cmd, At: now})
			return
		}
		logger.Error("command failed", append([]any{"command", cmd.String(), "error", err}, attrs...)...)
		onEvent(CommandFailed{Command: cmd, Err: err, At: now})
	}

	switch c := cmd.(type) {
	case CmdLoadPreferences:
		if fx.Store == nil {
			onEvent(PreferencesLoaded{At: now})
			return
		}
		ev := PreferencesLoaded{At: now}
		var err error
		if ev.Speed, ev.SpeedFound, err = fx.Store.GetPosition(ctx, prefKeySpeed); err != nil {
			logger.Warn("failed to load speed preference", "error", err)
			ev.SpeedFound = false
		}
		if ev.Boost, ev.BoostFound, err = fx.Store.GetPosition(ctx, prefKeyBoost); err != nil {
			logger.Warn("failed to load boost preference", "error", err)
			ev.BoostFound = false
		}
		onEvent(ev)

	case CmdStartSpeedEnforcement:
		if fx.Speed == nil {
			fail(errNoController{name: "speed"})
			return
		}
		page, err := fx.Speed.Set(ctx, c.Rate)
		if err != nil {
			fail(err, "rate", c.Rate)
			return
		}
		onEvent(SpeedApplied{Page: page, Rate: c.Rate, At: now})

	case CmdStopSpeedEnforcement:
		if fx.Speed == nil {
			fail(errNoController{name: "speed"})
			return
		}
		page, err := fx.Speed.Disable(ctx)
		if err != nil {
			fail(err)
			return
		}
		onEvent(SpeedDisabled{Page: page, At: now})

	case CmdApplyBoost:
		if fx.Boost == nil {
			fail(errNoController{name: "boost"})
			return
		}
		report, err := fx.Boost.Apply(ctx, c.Gain)
		if err != nil {
			fail(err, "gain", c.Gain)
			return
		}
		onEvent(BoostApplied{Report: report, At: now})

	case CmdResetBoost:
		if fx.Boost == nil {
			fail(errNoController{name: "boost"})
			return
		}
		report, err := fx.Boost.Disable(ctx)
		if err != nil {
			fail(err)
			return
		}
		onEvent(BoostDisabled{Report: report, At: now})

	case CmdPersistPosition:
		if fx.Store == nil {
			return
		}
		if err := fx.Store.SetPosition(ctx, c.Key, c.Position); err != nil {
			fail(err, "key", c.Key)
		}

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon loop on a slow requester.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(CommandFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

type errNoEffects struct{}

func (errNoEffects) Error() string { return "no effect targets configured" }

type errNoController struct {
	name string
}

func (e errNoController) Error() string { return "no " + e.name + " controller" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
