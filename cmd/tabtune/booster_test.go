package main

import (
	"context"
	"errors"
	"testing"
)

func TestVolumeBooster_ReusesGainStage(t *testing.T) {
	page := newFakePage("tab-1", "https://video.example/watch",
		MediaElement{ID: 1, Kind: MediaVideo, Src: "https://video.example/v.mp4"},
	)
	b := NewVolumeBooster(&fakeBrowser{page: page}, 100, discardLogger())
	ctx := context.Background()

	r1, err := b.Apply(ctx, 2)
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if r1.Created != 1 || r1.Updated != 0 {
		t.Fatalf("first Apply: expected 1 created, got %+v", r1)
	}

	r2, err := b.Apply(ctx, 3.5)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if r2.Created != 0 || r2.Updated != 1 {
		t.Fatalf("second Apply: expected 1 updated, got %+v", r2)
	}

	if n := page.stageCount(1); n != 1 {
		t.Fatalf("expected gain stage constructed once, got %d", n)
	}
	if g := page.stage(1).lastGain(); g != 3.5 {
		t.Fatalf("expected gain 3.5 on existing stage, got %v", g)
	}
	if len(page.resets) != 2 {
		t.Fatalf("expected native volume reset on every application, got %d", len(page.resets))
	}
}

func TestVolumeBooster_CrossOriginSkippedWithoutDisturbingBatch(t *testing.T) {
	page := newFakePage("tab-1", "https://news.example/article",
		MediaElement{ID: 1, Kind: MediaVideo, Src: "https://cdn.other.example/clip.mp4"},
		MediaElement{ID: 2, Kind: MediaAudio, Src: "/podcast.mp3"},
		MediaElement{ID: 3, Kind: MediaVideo, Src: "blob:https://news.example/abcd"},
		MediaElement{ID: 4, Kind: MediaAudio, Src: ""},
	)
	b := NewVolumeBooster(&fakeBrowser{page: page}, 100, discardLogger())

	r, err := b.Apply(context.Background(), 4)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r.Skipped != 1 || r.Created != 3 || r.Failed != 0 {
		t.Fatalf("expected 1 skipped and 3 created, got %+v", r)
	}
	if n := page.stageCount(1); n != 0 {
		t.Fatalf("cross-origin element must not get a gain stage, got %d constructions", n)
	}
	for _, id := range []ElementID{2, 3, 4} {
		if g := page.stage(id).lastGain(); g != 4 {
			t.Fatalf("element %d: expected gain 4, got %v", id, g)
		}
	}
}

func TestVolumeBooster_ConstructionFailureContinuesBatch(t *testing.T) {
	page := newFakePage("tab-1", "https://video.example/",
		MediaElement{ID: 1, Kind: MediaVideo},
		MediaElement{ID: 2, Kind: MediaVideo},
	)
	page.failStage[1] = errFakeGraph
	b := NewVolumeBooster(&fakeBrowser{page: page}, 100, discardLogger())

	r, err := b.Apply(context.Background(), 2)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r.Failed != 1 || r.Created != 1 {
		t.Fatalf("expected 1 failed and 1 created, got %+v", r)
	}
	if page.stage(2) == nil {
		t.Fatalf("element 2 should have been boosted despite element 1 failing")
	}
}

func TestVolumeBooster_CapsGain(t *testing.T) {
	page := newFakePage("tab-1", "https://video.example/", MediaElement{ID: 1, Kind: MediaVideo})
	b := NewVolumeBooster(&fakeBrowser{page: page}, 8, discardLogger())
	ctx := context.Background()

	r, err := b.Apply(ctx, 50)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r.Gain != 8 || page.stage(1).lastGain() != 8 {
		t.Fatalf("expected gain capped at 8, got report %v stage %v", r.Gain, page.stage(1).lastGain())
	}

	if _, err := b.Apply(ctx, -2); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if g := page.stage(1).lastGain(); g != 0 {
		t.Fatalf("expected negative gain clamped to 0, got %v", g)
	}
}

func TestVolumeBooster_DisableResetsExistingOnly(t *testing.T) {
	page := newFakePage("tab-1", "https://video.example/", MediaElement{ID: 1, Kind: MediaVideo})
	b := NewVolumeBooster(&fakeBrowser{page: page}, 100, discardLogger())
	ctx := context.Background()

	if _, err := b.Apply(ctx, 6); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// A new element appears after boosting; Disable must not build a stage for it.
	page.navigate("doc-1",
		MediaElement{ID: 1, Kind: MediaVideo},
		MediaElement{ID: 2, Kind: MediaVideo},
	)

	r, err := b.Disable(ctx)
	if err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if r.Updated != 1 || r.Created != 0 {
		t.Fatalf("expected 1 reset stage and none created, got %+v", r)
	}
	if g := page.stage(1).lastGain(); g != 1 {
		t.Fatalf("expected unity gain after Disable, got %v", g)
	}
	if n := page.stageCount(2); n != 0 {
		t.Fatalf("Disable constructed a gain stage for element 2")
	}
}

func TestVolumeBooster_AdoptsStageAfterRestart(t *testing.T) {
	page := newFakePage("tab-1", "https://video.example/", MediaElement{ID: 1, Kind: MediaVideo})
	ctx := context.Background()

	first := NewVolumeBooster(&fakeBrowser{page: page}, 100, discardLogger())
	if _, err := first.Apply(ctx, 4); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// A restarted daemon has no bindings but the page still holds the node.
	b := NewVolumeBooster(&fakeBrowser{page: page}, 100, discardLogger())
	r, err := b.Apply(ctx, 2.5)
	if err != nil {
		t.Fatalf("Apply after restart: %v", err)
	}
	if r.Adopted != 1 || r.Created != 0 || r.Failed != 0 {
		t.Fatalf("expected the page's stage to be adopted, got %+v", r)
	}
	if n := page.stageCount(1); n != 1 {
		t.Fatalf("expected a single construction across restarts, got %d", n)
	}
	if g := page.stage(1).lastGain(); g != 2.5 {
		t.Fatalf("expected adopted stage at 2.5, got %v", g)
	}
	if n := b.Stages("tab-1"); n != 1 {
		t.Fatalf("expected adopted stage to be bound, got %d", n)
	}
}

func TestVolumeBooster_DisableReachesUnboundStage(t *testing.T) {
	page := newFakePage("tab-1", "https://video.example/", MediaElement{ID: 1, Kind: MediaVideo})
	ctx := context.Background()

	if _, err := NewVolumeBooster(&fakeBrowser{page: page}, 100, discardLogger()).Apply(ctx, 5); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	b := NewVolumeBooster(&fakeBrowser{page: page}, 100, discardLogger())
	r, err := b.Disable(ctx)
	if err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if r.Adopted != 1 || r.Updated != 1 || r.Created != 0 {
		t.Fatalf("expected the page's stage to be reset, got %+v", r)
	}
	if g := page.stage(1).lastGain(); g != 1 {
		t.Fatalf("expected unity gain after Disable, got %v", g)
	}
}

func TestVolumeBooster_NewDocumentDropsBindings(t *testing.T) {
	page := newFakePage("tab-1", "https://video.example/", MediaElement{ID: 1, Kind: MediaVideo})
	b := NewVolumeBooster(&fakeBrowser{page: page}, 100, discardLogger())
	ctx := context.Background()

	if _, err := b.Apply(ctx, 2); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if n := b.Stages("tab-1"); n != 1 {
		t.Fatalf("expected 1 bound stage, got %d", n)
	}

	// Same element ID in a fresh document is a different element.
	page.navigate("doc-2", MediaElement{ID: 1, Kind: MediaVideo})

	r, err := b.Apply(ctx, 2)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r.Created != 1 {
		t.Fatalf("expected a new stage in the new document, got %+v", r)
	}
	if n := page.stageCount(1); n != 2 {
		t.Fatalf("expected 2 constructions across two documents, got %d", n)
	}
}

func TestVolumeBooster_NoActivePage(t *testing.T) {
	b := NewVolumeBooster(&fakeBrowser{}, 100, discardLogger())
	if _, err := b.Apply(context.Background(), 2); !errors.Is(err, ErrNoActivePage) {
		t.Fatalf("expected ErrNoActivePage, got %v", err)
	}
	if _, err := b.Disable(context.Background()); !errors.Is(err, ErrNoActivePage) {
		t.Fatalf("expected ErrNoActivePage, got %v", err)
	}
}

func TestMediaOriginAllowed(t *testing.T) {
	cases := []struct {
		page, src string
		want      bool
	}{
		{"https://a.example/watch", "", true},
		{"https://a.example/watch", "blob:https://a.example/123", true},
		{"https://a.example/watch", "/media/v.mp4", true},
		{"https://a.example/watch", "https://a.example:443/v.mp4", true},
		{"https://a.example/watch", "https://b.example/v.mp4", false},
		{"https://a.example/watch", "http://a.example/v.mp4", false},
		{"http://a.example:8080/", "http://a.example/v.mp4", false},
		{"https://a.example/watch", "//cdn.example/v.mp4", false},
	}
	for _, tc := range cases {
		if got := mediaOriginAllowed(tc.page, tc.src); got != tc.want {
			t.Errorf("mediaOriginAllowed(%q, %q) = %v, want %v", tc.page, tc.src, got, tc.want)
		}
	}
}

func TestRestrictedPage(t *testing.T) {
	for _, u := range []string{"chrome://settings", "about:blank", "devtools://devtools/x", "chrome-extension://abc/popup.html", ""} {
		if !restrictedPage(u) {
			t.Errorf("expected %q to be restricted", u)
		}
	}
	for _, u := range []string{"https://example.com/", "file:///home/me/v.html"} {
		if restrictedPage(u) {
			t.Errorf("expected %q to be allowed", u)
		}
	}
}
