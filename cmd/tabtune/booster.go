package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// VolumeBooster amplifies a page's media past native volume through per-element
// gain stages.
//
// A gain stage is built once per element and reused for every later change;
// elements cannot be routed into an audio graph twice. Stages live in a side
// table keyed by page and element ID, scoped to the page's current document.
// When a page reports a new document the page's table is discarded.
//
// All methods are called from the daemon goroutine.
type VolumeBooster struct {
	browser Browser
	maxGain float64
	logger  *slog.Logger

	pages map[string]*pageBindings
}

type pageBindings struct {
	document string
	stages   map[ElementID]GainStage
}

// BoostReport summarizes one application across a page's media elements.
type BoostReport struct {
	Page    string  `json:"page"`
	Gain    float64 `json:"gain"`
	Created int     `json:"created"`
	Updated int     `json:"updated"`
	Adopted int     `json:"adopted"` // found on the page without a local binding
	Skipped int     `json:"skipped"` // cross-origin, left untouched
	Failed  int     `json:"failed"`
}

func (r BoostReport) String() string {
	return fmt.Sprintf("page=%s gain=%.3f created=%d updated=%d adopted=%d skipped=%d failed=%d",
		r.Page, r.Gain, r.Created, r.Updated, r.Adopted, r.Skipped, r.Failed)
}

// NewVolumeBooster builds a booster capping gains at maxGain (<= 0 uses the
// default ceiling).
func NewVolumeBooster(browser Browser, maxGain float64, logger *slog.Logger) *VolumeBooster {
	if maxGain <= 0 || math.IsInf(maxGain, 0) || math.IsNaN(maxGain) {
		maxGain = defaultMaxGain
	}
	return &VolumeBooster{
		browser: browser,
		maxGain: maxGain,
		logger:  logger,
		pages:   make(map[string]*pageBindings),
	}
}

// MaxGain returns the configured ceiling.
func (b *VolumeBooster) MaxGain() float64 { return b.maxGain }

// Apply sets gain on every media element of the active page. Per-element
// failures are logged and counted; they never abort the batch.
func (b *VolumeBooster) Apply(ctx context.Context, gain float64) (BoostReport, error) {
	if math.IsNaN(gain) {
		return BoostReport{}, errors.New("boost gain is NaN")
	}
	g := math.Max(0, math.Min(gain, b.maxGain))

	page, err := b.browser.ActivePage(ctx)
	if err != nil {
		return BoostReport{}, err
	}
	media, err := page.Media(ctx)
	if err != nil {
		return BoostReport{Page: page.ID()}, fmt.Errorf("list media: %w", err)
	}

	pb := b.bindings(page.ID(), media.Document)
	report := BoostReport{Page: page.ID(), Gain: g}

	for _, el := range media.Elements {
		if err := page.ResetVolume(ctx, el.ID); err != nil {
			b.logger.Warn("media volume reset failed", "page", page.ID(), "element", el.ID, "error", err)
		}

		if st, ok := pb.stages[el.ID]; ok {
			if err := st.SetGain(ctx, g); err != nil {
				report.Failed++
				b.logger.Warn("gain update failed", "page", page.ID(), "element", el.ID, "error", err)
				if errors.Is(err, ErrStageGone) {
					delete(pb.stages, el.ID)
				}
				continue
			}
			report.Updated++
			continue
		}

		if st, err := page.ExistingGainStage(ctx, el.ID); err == nil {
			if err := st.SetGain(ctx, g); err != nil {
				report.Failed++
				b.logger.Warn("gain update failed", "page", page.ID(), "element", el.ID, "error", err)
				continue
			}
			pb.stages[el.ID] = st
			report.Adopted++
			b.logger.Debug("adopted gain stage left on page", "page", page.ID(), "element", el.ID)
			continue
		} else if !errors.Is(err, ErrStageGone) {
			report.Failed++
			b.logger.Warn("gain stage lookup failed", "page", page.ID(), "element", el.ID, "error", err)
			continue
		}

		if !mediaOriginAllowed(page.URL(), el.Src) {
			report.Skipped++
			b.logger.Info("skipping cross-origin media", "page", page.ID(), "element", el.ID, "src", el.Src)
			continue
		}

		st, err := page.NewGainStage(ctx, el.ID, g)
		if err != nil {
			report.Failed++
			b.logger.Warn("gain stage construction failed", "page", page.ID(), "element", el.ID, "kind", el.Kind, "error", err)
			continue
		}
		pb.stages[el.ID] = st
		report.Created++
	}

	b.logger.Debug("boost applied", "report", report.String())
	return report, nil
}

// Disable resets every existing gain stage on the active page to unity,
// including stages the page holds that were never bound locally. No new stages
// are built.
func (b *VolumeBooster) Disable(ctx context.Context) (BoostReport, error) {
	page, err := b.browser.ActivePage(ctx)
	if err != nil {
		return BoostReport{}, err
	}
	media, err := page.Media(ctx)
	if err != nil {
		return BoostReport{Page: page.ID()}, fmt.Errorf("list media: %w", err)
	}

	pb := b.bindings(page.ID(), media.Document)
	report := BoostReport{Page: page.ID(), Gain: 1}

	for _, el := range media.Elements {
		if _, ok := pb.stages[el.ID]; ok {
			continue
		}
		st, err := page.ExistingGainStage(ctx, el.ID)
		if err != nil {
			if !errors.Is(err, ErrStageGone) {
				b.logger.Warn("gain stage lookup failed", "page", page.ID(), "element", el.ID, "error", err)
			}
			continue
		}
		pb.stages[el.ID] = st
		report.Adopted++
	}

	for id, st := range pb.stages {
		if err := st.SetGain(ctx, 1); err != nil {
			report.Failed++
			b.logger.Warn("gain reset failed", "page", page.ID(), "element", id, "error", err)
			continue
		}
		report.Updated++
	}
	return report, nil
}

// Stages returns how many gain stages are bound on a page.
func (b *VolumeBooster) Stages(pageID string) int {
	pb, ok := b.pages[pageID]
	if !ok {
		return 0
	}
	return len(pb.stages)
}

// Forget drops a page's bindings (for example after the tab closed).
func (b *VolumeBooster) Forget(pageID string) {
	delete(b.pages, pageID)
}

// bindings returns the table for pageID, resetting it if the document changed.
func (b *VolumeBooster) bindings(pageID, document string) *pageBindings {
	pb, ok := b.pages[pageID]
	if ok && pb.document == document {
		return pb
	}
	if ok {
		b.logger.Debug("page document changed, dropping gain stages", "page", pageID, "stages", len(pb.stages))
	}
	pb = &pageBindings{
		document: document,
		stages:   make(map[ElementID]GainStage),
	}
	b.pages[pageID] = pb
	return pb
}
