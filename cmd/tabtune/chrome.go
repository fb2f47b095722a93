package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// ============================================================================
// Chrome DevTools backend
// ============================================================================
// Connects to a running Chrome (cdp_url) or launches one, finds the tab the
// user is looking at and runs the page helper (pagescript.go) in it.
// ============================================================================

// ChromeConfig selects how the browser is reached.
type ChromeConfig struct {
	CDPURL   string // ws://... or http://host:port of a running browser; empty launches one
	ExecPath string // browser binary when launching; empty uses chromedp's lookup
	Headless bool
}

// ChromeBrowser implements Browser over the DevTools protocol.
type ChromeBrowser struct {
	logger *slog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu    sync.Mutex
	pages map[target.ID]*chromePage
}

// NewChromeBrowser connects to (or starts) the browser. The connection is
// established on the first call that needs it.
func NewChromeBrowser(cfg ChromeConfig, logger *slog.Logger) *ChromeBrowser {
	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if cfg.CDPURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.CDPURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)

	return &ChromeBrowser{
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		pages:         make(map[target.ID]*chromePage),
	}
}

// Close detaches from every tab and releases the browser connection. A
// launched browser is terminated.
func (b *ChromeBrowser) Close() {
	b.mu.Lock()
	for id, p := range b.pages {
		p.cancel()
		delete(b.pages, id)
	}
	b.mu.Unlock()

	b.browserCancel()
	b.allocCancel()
}

// ActivePage returns the focused tab, or else the visible one. Restricted
// internal pages are never returned.
func (b *ChromeBrowser) ActivePage(ctx context.Context) (Page, error) {
	if err := chromedp.Run(b.browserCtx); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	infos, err := chromedp.Targets(b.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	candidates := b.sync(infos)

	var visible *chromePage
	for _, p := range candidates {
		var pr focusResult
		if err := p.run(ctx, chromedp.Evaluate(pageFocus, &pr)); err != nil {
			b.logger.Debug("page focus check failed", "page", p.ID(), "error", err)
			continue
		}
		if pr.Focused {
			return p, nil
		}
		if pr.Visible && visible == nil {
			visible = p
		}
	}
	if visible != nil {
		return visible, nil
	}
	return nil, ErrNoActivePage
}

// sync reconciles the page table with the target list and returns the
// eligible pages.
func (b *ChromeBrowser) sync(infos []*target.Info) []*chromePage {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[target.ID]bool, len(infos))
	var out []*chromePage

	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		seen[info.TargetID] = true

		p, ok := b.pages[info.TargetID]
		if !ok {
			ctx, cancel := chromedp.NewContext(b.browserCtx, chromedp.WithTargetID(info.TargetID))
			p = &chromePage{browser: b, id: info.TargetID, ctx: ctx, cancel: cancel}
			b.pages[info.TargetID] = p
		}
		p.setURL(info.URL)

		if !restrictedPage(info.URL) {
			out = append(out, p)
		}
	}

	for id, p := range b.pages {
		if !seen[id] {
			// Attached with WithTargetID: cancelling detaches, it never closes the tab.
			p.cancel()
			delete(b.pages, id)
		}
	}
	return out
}

// alive reports whether the target still exists.
func (b *ChromeBrowser) alive(id target.ID) bool {
	infos, err := chromedp.Targets(b.browserCtx)
	if err != nil {
		return false
	}
	for _, info := range infos {
		if info.TargetID == id {
			return true
		}
	}
	return false
}

// chromePage is one attached tab.
type chromePage struct {
	browser *ChromeBrowser
	id      target.ID
	ctx     context.Context
	cancel  context.CancelFunc

	mu  sync.Mutex
	url string
}

func (p *chromePage) ID() string { return string(p.id) }

func (p *chromePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *chromePage) setURL(u string) {
	p.mu.Lock()
	p.url = u
	p.mu.Unlock()
}

// run executes actions in the tab, bounded by the caller's ctx.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return ErrPageClosed
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if p.ctx.Err() != nil || !p.browser.alive(p.id) {
		return ErrPageClosed
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// call invokes a page helper method and decodes its result into res.
func (p *chromePage) call(ctx context.Context, res any, method string, args ...any) error {
	expr, err := pageCall(uuid.NewString(), method, args...)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Evaluate(expr, res, awaitPromise))
}

func awaitPromise(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
	return ep.WithAwaitPromise(true)
}

func (p *chromePage) Media(ctx context.Context) (MediaList, error) {
	var ml MediaList
	if err := p.call(ctx, &ml, "media"); err != nil {
		return MediaList{}, err
	}
	return ml, nil
}

func (p *chromePage) SetPlaybackRate(ctx context.Context, rate float64) error {
	var ok bool
	return p.call(ctx, &ok, "setRate", rate)
}

func (p *chromePage) ResetVolume(ctx context.Context, id ElementID) error {
	var ok bool
	if err := p.call(ctx, &ok, "resetVolume", id); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("media element %d not found", id)
	}
	return nil
}

func (p *chromePage) NewGainStage(ctx context.Context, id ElementID, gain float64) (GainStage, error) {
	var ok bool
	if err := p.call(ctx, &ok, "boost", id, gain); err != nil {
		return nil, fmt.Errorf("build gain stage: %w", err)
	}
	if !ok {
		return nil, errors.New("build gain stage: page refused")
	}
	return &chromeGainStage{page: p, id: id}, nil
}

func (p *chromePage) ExistingGainStage(ctx context.Context, id ElementID) (GainStage, error) {
	var ok bool
	if err := p.call(ctx, &ok, "hasNode", id); err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStageGone
	}
	return &chromeGainStage{page: p, id: id}, nil
}

// chromeGainStage addresses a gain node by element ID inside the page helper.
type chromeGainStage struct {
	page *chromePage
	id   ElementID
}

func (s *chromeGainStage) SetGain(ctx context.Context, gain float64) error {
	var ok bool
	if err := s.page.call(ctx, &ok, "setGain", s.id, gain); err != nil {
		return err
	}
	if !ok {
		return ErrStageGone
	}
	return nil
}
