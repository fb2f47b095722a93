package main

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ============================================================================
// Page executor interfaces
// ============================================================================
// The controllers never talk to a browser directly. They ask a Browser for the
// page the user is looking at and operate on its media through Page. The Chrome
// DevTools backend (chrome.go) and the local file player (localplayer.go)
// implement these.
// ============================================================================

var (
	// ErrNoActivePage means there is no eligible foreground page. Callers treat it
	// as a silent no-op.
	ErrNoActivePage = errors.New("no active page")

	// ErrPageClosed is returned by Page methods once the page has gone away.
	ErrPageClosed = errors.New("page closed")

	// ErrStageGone means a gain stage no longer exists on the page, usually
	// because the document was replaced.
	ErrStageGone = errors.New("gain stage no longer present")
)

// ElementID identifies a media element within one document. IDs are assigned by
// the page and are stable for the lifetime of the element.
type ElementID int

// MediaKind is the element tag: "video" or "audio".
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// MediaElement describes one media element on a page.
type MediaElement struct {
	ID   ElementID `json:"id"`
	Kind MediaKind `json:"kind"`
	Src  string    `json:"src"` // currentSrc, falling back to src; may be empty
}

// MediaList is a snapshot of a page's media elements. Document changes whenever
// the page navigates, which invalidates every ElementID from earlier snapshots.
type MediaList struct {
	Document string         `json:"doc"`
	Elements []MediaElement `json:"elements"`
}

// Browser finds the page currently in front of the user.
type Browser interface {
	// ActivePage returns ErrNoActivePage when nothing eligible is focused
	// (including restricted internal pages).
	ActivePage(ctx context.Context) (Page, error)
}

// Page is one browser tab (or the local player's single track).
type Page interface {
	ID() string
	URL() string

	// Media lists the page's video and audio elements.
	Media(ctx context.Context) (MediaList, error)

	// SetPlaybackRate sets playbackRate and defaultPlaybackRate on every video.
	SetPlaybackRate(ctx context.Context, rate float64) error

	// ResetVolume sets an element's native volume to 1 and unmutes it.
	ResetVolume(ctx context.Context, id ElementID) error

	// NewGainStage routes an element through a new gain stage
	// (element -> gain -> destination) at the given gain.
	NewGainStage(ctx context.Context, id ElementID, gain float64) (GainStage, error)

	// ExistingGainStage returns a handle to a gain stage the page already
	// holds for an element, or ErrStageGone when there is none. Stages outlive
	// the daemon's own bindings (for example across a daemon restart).
	ExistingGainStage(ctx context.Context, id ElementID) (GainStage, error)
}

// GainStage is a handle to one element's gain node.
type GainStage interface {
	SetGain(ctx context.Context, gain float64) error
}

var restrictedPagePrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"chrome-untrusted://",
	"devtools://",
	"edge://",
	"about:",
}

// restrictedPage reports whether scripts may not run on pageURL.
func restrictedPage(pageURL string) bool {
	u := strings.ToLower(strings.TrimSpace(pageURL))
	if u == "" {
		return true
	}
	for _, p := range restrictedPagePrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}

// mediaOriginAllowed reports whether a gain stage may be built for media with
// the given source on pageURL. Cross-origin media would be silenced by the
// browser once routed through the audio graph, so only empty, blob: and
// same-origin sources qualify. Unparseable sources are refused.
func mediaOriginAllowed(pageURL, src string) bool {
	if src == "" || strings.HasPrefix(src, "blob:") {
		return true
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	ref, err := url.Parse(src)
	if err != nil {
		return false
	}
	abs := base.ResolveReference(ref)
	return sameOrigin(base, abs)
}

func sameOrigin(a, b *url.URL) bool {
	if !strings.EqualFold(a.Scheme, b.Scheme) {
		return false
	}
	return strings.EqualFold(a.Hostname(), b.Hostname()) && originPort(a) == originPort(b)
}

func originPort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	}
	return ""
}
