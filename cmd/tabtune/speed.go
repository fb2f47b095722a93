package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SpeedController keeps a playback rate applied to the active page's videos.
//
// Pages reset playbackRate on their own (new video, ad break, player UI), so a
// per-page enforcement task re-applies the rate every interval. At most one task
// runs per page: a new Set cancels the previous task and waits for it to exit
// before the replacement starts.
//
// Set/Disable are called from the daemon goroutine. Active and Close are safe
// from any goroutine.
type SpeedController struct {
	browser      Browser
	interval     time.Duration
	applyTimeout time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	tasks map[string]*enforcementTask
}

type enforcementTask struct {
	rate   float64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSpeedController builds a controller. interval <= 0 uses the default
// enforcement cadence.
func NewSpeedController(browser Browser, interval, applyTimeout time.Duration, logger *slog.Logger) *SpeedController {
	if interval <= 0 {
		interval = defaultSpeedEnforceInterval
	}
	if applyTimeout <= 0 {
		applyTimeout = defaultBrowserTimeout
	}
	return &SpeedController{
		browser:      browser,
		interval:     interval,
		applyTimeout: applyTimeout,
		logger:       logger,
		tasks:        make(map[string]*enforcementTask),
	}
}

// Set applies rate to the active page now and keeps enforcing it. It returns the
// page ID the rate was applied to.
func (c *SpeedController) Set(ctx context.Context, rate float64) (string, error) {
	page, err := c.browser.ActivePage(ctx)
	if err != nil {
		return "", err
	}
	id := page.ID()

	c.stop(id)

	if err := page.SetPlaybackRate(ctx, rate); err != nil {
		if errors.Is(err, ErrPageClosed) {
			return id, fmt.Errorf("set playback rate: %w", err)
		}
		// The enforcement task retries on its first tick.
		c.logger.Warn("initial playback rate apply failed", "page", id, "rate", rate, "error", err)
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	task := &enforcementTask{
		rate:   rate,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.tasks[id] = task
	c.mu.Unlock()

	go c.enforce(taskCtx, page, task)

	c.logger.Debug("speed enforcement started", "page", id, "rate", rate, "interval", c.interval)
	return id, nil
}

// Disable stops enforcement on the active page and restores rate 1.0 once.
func (c *SpeedController) Disable(ctx context.Context) (string, error) {
	page, err := c.browser.ActivePage(ctx)
	if err != nil {
		return "", err
	}
	id := page.ID()

	c.stop(id)

	if err := page.SetPlaybackRate(ctx, 1.0); err != nil {
		return id, fmt.Errorf("reset playback rate: %w", err)
	}
	c.logger.Debug("speed enforcement stopped", "page", id)
	return id, nil
}

// Active returns the number of running enforcement tasks.
func (c *SpeedController) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// Rate returns the rate being enforced on a page, if any.
func (c *SpeedController) Rate(pageID string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[pageID]
	if !ok {
		return 0, false
	}
	return t.rate, true
}

// Close stops every enforcement task and waits for them to exit.
func (c *SpeedController) Close() {
	c.mu.Lock()
	tasks := c.tasks
	c.tasks = make(map[string]*enforcementTask)
	c.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// stop cancels the task for pageID and blocks until it has exited.
func (c *SpeedController) stop(pageID string) {
	c.mu.Lock()
	t, ok := c.tasks[pageID]
	if ok {
		delete(c.tasks, pageID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

func (c *SpeedController) enforce(ctx context.Context, page Page, task *enforcementTask) {
	defer close(task.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			applyCtx, cancel := context.WithTimeout(ctx, c.applyTimeout)
			err := page.SetPlaybackRate(applyCtx, task.rate)
			cancel()

			if err == nil || ctx.Err() != nil {
				continue
			}
			if errors.Is(err, ErrPageClosed) {
				c.logger.Debug("speed enforcement ended (page closed)", "page", page.ID())
				c.forget(page.ID(), task)
				return
			}
			c.logger.Debug("speed enforcement apply failed", "page", page.ID(), "error", err)
		}
	}
}

// forget removes task from the table if it is still the registered one.
func (c *SpeedController) forget(pageID string, task *enforcementTask) {
	c.mu.Lock()
	if c.tasks[pageID] == task {
		delete(c.tasks, pageID)
	}
	c.mu.Unlock()
}
