package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// discardLogger keeps test output quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBrowser returns a fixed page (or ErrNoActivePage when page is nil).
type fakeBrowser struct {
	mu   sync.Mutex
	page *fakePage
}

func (b *fakeBrowser) ActivePage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page == nil {
		return nil, ErrNoActivePage
	}
	return b.page, nil
}

func (b *fakeBrowser) setPage(p *fakePage) {
	b.mu.Lock()
	b.page = p
	b.mu.Unlock()
}

// fakePage records every call made against it.
type fakePage struct {
	id  string
	url string

	mu       sync.Mutex
	doc      string
	elements []MediaElement
	closed   bool

	rates     []float64
	resets    []ElementID
	newStages map[ElementID]int
	stages    map[ElementID]*fakeGainStage

	// failStage makes NewGainStage fail for the listed elements.
	failStage map[ElementID]error
}

func newFakePage(id, pageURL string, elements ...MediaElement) *fakePage {
	return &fakePage{
		id:        id,
		url:       pageURL,
		doc:       "doc-1",
		elements:  elements,
		newStages: make(map[ElementID]int),
		stages:    make(map[ElementID]*fakeGainStage),
		failStage: make(map[ElementID]error),
	}
}

func (p *fakePage) ID() string  { return p.id }
func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Media(ctx context.Context) (MediaList, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return MediaList{}, ErrPageClosed
	}
	out := make([]MediaElement, len(p.elements))
	copy(out, p.elements)
	return MediaList{Document: p.doc, Elements: out}, nil
}

func (p *fakePage) SetPlaybackRate(ctx context.Context, rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	p.rates = append(p.rates, rate)
	return nil
}

func (p *fakePage) ResetVolume(ctx context.Context, id ElementID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	p.resets = append(p.resets, id)
	return nil
}

func (p *fakePage) NewGainStage(ctx context.Context, id ElementID, gain float64) (GainStage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	// Like the page helper, an element that already has a node is reused.
	if st, ok := p.stages[id]; ok {
		st.gains = append(st.gains, gain)
		return st, nil
	}
	p.newStages[id]++
	if err := p.failStage[id]; err != nil {
		return nil, err
	}
	st := &fakeGainStage{page: p, gains: []float64{gain}}
	p.stages[id] = st
	return st, nil
}

func (p *fakePage) ExistingGainStage(ctx context.Context, id ElementID) (GainStage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	st, ok := p.stages[id]
	if !ok {
		return nil, ErrStageGone
	}
	return st, nil
}

// navigate replaces the page's media. A new document drops every node.
func (p *fakePage) navigate(doc string, elements ...MediaElement) {
	p.mu.Lock()
	if doc != p.doc {
		p.stages = make(map[ElementID]*fakeGainStage)
	}
	p.doc = doc
	p.elements = elements
	p.mu.Unlock()
}

func (p *fakePage) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePage) rateLog() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]float64, len(p.rates))
	copy(out, p.rates)
	return out
}

func (p *fakePage) stageCount(id ElementID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newStages[id]
}

func (p *fakePage) stage(id ElementID) *fakeGainStage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stages[id]
}

type fakeGainStage struct {
	page  *fakePage
	gains []float64
}

func (s *fakeGainStage) SetGain(ctx context.Context, gain float64) error {
	s.page.mu.Lock()
	defer s.page.mu.Unlock()
	if s.page.closed {
		return ErrPageClosed
	}
	s.gains = append(s.gains, gain)
	return nil
}

func (s *fakeGainStage) lastGain() float64 {
	s.page.mu.Lock()
	defer s.page.mu.Unlock()
	return s.gains[len(s.gains)-1]
}

var errFakeGraph = errors.New("fake: cannot build audio graph")

func countOf(xs []float64, v float64) int {
	n := 0
	for _, x := range xs {
		if x == v {
			n++
		}
	}
	return n
}
