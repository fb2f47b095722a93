package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// ============================================================================
// Local player backend
// ============================================================================
// Plays one audio file through the speaker and exposes it as a single page
// with a single media element, so the speed controller and booster can drive
// it without a browser:
//
//   file -> resampler (playback rate) -> gain -> ctrl -> speaker
// ============================================================================

const (
	localPageID     = "local"
	localElementID  = ElementID(1)
	localSampleRate = beep.SampleRate(48000)
)

var errAlreadyRouted = errors.New("media element already routed through a gain stage")

// LocalPlayer implements Browser, Page and GainStage for a local file.
type LocalPlayer struct {
	logger *slog.Logger
	url    string
	doc    string

	// lock/unlock guard the audio chain against the speaker goroutine.
	lock   func()
	unlock func()

	baseRatio float64 // file rate / speaker rate
	resampler *beep.Resampler
	gain      *effects.Gain
	ctrl      *beep.Ctrl
	closer    func() error

	mu     sync.Mutex
	closed bool
	routed bool
}

// OpenLocalPlayer decodes path (mp3, then wav), initializes the speaker and
// starts playback.
func OpenLocalPlayer(path string, logger *slog.Logger) (*LocalPlayer, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	stream, format, err := decodeAudioFile(abs)
	if err != nil {
		return nil, err
	}

	if err := speaker.Init(localSampleRate, localSampleRate.N(time.Second/10)); err != nil {
		stream.Close()
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	p := newLocalPlayer("file://"+filepath.ToSlash(abs), stream, format.SampleRate, localSampleRate, logger)
	p.closer = stream.Close
	p.lock, p.unlock = speaker.Lock, speaker.Unlock

	speaker.Play(beep.Seq(p.ctrl, beep.Callback(func() {
		// Runs on the speaker goroutine; never take the speaker lock here.
		go p.finish()
	})))

	logger.Info("local player started", "file", abs, "sample_rate", int(format.SampleRate))
	return p, nil
}

// newLocalPlayer builds the audio chain around src without touching the speaker.
func newLocalPlayer(pageURL string, src beep.Streamer, fileRate, outRate beep.SampleRate, logger *slog.Logger) *LocalPlayer {
	base := float64(fileRate) / float64(outRate)
	res := beep.ResampleRatio(4, base, src)
	g := &effects.Gain{Streamer: res, Gain: 0}
	return &LocalPlayer{
		logger:    logger,
		url:       pageURL,
		doc:       uuid.NewString(),
		lock:      func() {},
		unlock:    func() {},
		baseRatio: base,
		resampler: res,
		gain:      g,
		ctrl:      &beep.Ctrl{Streamer: g},
		closer:    func() error { return nil },
	}
}

func decodeAudioFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open audio file: %w", err)
	}
	stream, format, err := mp3.Decode(f)
	if err == nil {
		return stream, format, nil
	}
	f.Close()

	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open audio file: %w", err)
	}
	stream, format, err = wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s (tried mp3, wav): %w", path, err)
	}
	return stream, format, nil
}

// ActivePage returns the player itself while the track is playing.
func (p *LocalPlayer) ActivePage(ctx context.Context) (Page, error) {
	if p.isClosed() {
		return nil, ErrNoActivePage
	}
	return p, nil
}

func (p *LocalPlayer) ID() string  { return localPageID }
func (p *LocalPlayer) URL() string { return p.url }

func (p *LocalPlayer) Media(ctx context.Context) (MediaList, error) {
	if p.isClosed() {
		return MediaList{}, ErrPageClosed
	}
	return MediaList{
		Document: p.doc,
		Elements: []MediaElement{{ID: localElementID, Kind: MediaAudio}},
	}, nil
}

// SetPlaybackRate changes the resampling ratio; pitch follows the rate.
func (p *LocalPlayer) SetPlaybackRate(ctx context.Context, rate float64) error {
	if p.isClosed() {
		return ErrPageClosed
	}
	if rate <= 0 {
		return fmt.Errorf("invalid playback rate %v", rate)
	}
	p.lock()
	p.resampler.SetRatio(p.baseRatio * rate)
	p.unlock()
	return nil
}

// ResetVolume is a no-op: the track has no native volume control.
func (p *LocalPlayer) ResetVolume(ctx context.Context, id ElementID) error {
	if p.isClosed() {
		return ErrPageClosed
	}
	return nil
}

func (p *LocalPlayer) NewGainStage(ctx context.Context, id ElementID, gain float64) (GainStage, error) {
	if id != localElementID {
		return nil, fmt.Errorf("media element %d not found", id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	if p.routed {
		return nil, errAlreadyRouted
	}
	p.routed = true
	p.setGain(gain)
	return p, nil
}

func (p *LocalPlayer) ExistingGainStage(ctx context.Context, id ElementID) (GainStage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	if id != localElementID || !p.routed {
		return nil, ErrStageGone
	}
	return p, nil
}

// SetGain implements GainStage for the single track.
func (p *LocalPlayer) SetGain(ctx context.Context, gain float64) error {
	if p.isClosed() {
		return ErrPageClosed
	}
	p.setGain(gain)
	return nil
}

func (p *LocalPlayer) setGain(gain float64) {
	p.lock()
	// effects.Gain multiplies samples by 1+Gain.
	p.gain.Gain = gain - 1
	p.unlock()
}

// Close stops playback and releases the decoder.
func (p *LocalPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.lock()
	p.ctrl.Streamer = nil
	p.unlock()
	return p.closer()
}

func (p *LocalPlayer) finish() {
	p.logger.Info("local track finished", "url", p.url)
	if err := p.Close(); err != nil {
		p.logger.Warn("closing local track failed", "error", err)
	}
}

func (p *LocalPlayer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
