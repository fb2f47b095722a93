package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tests construct Clients with a nil websocket.Conn; the hub guards
// against nil when disconnecting.

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(discardLogger(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func newTestClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     discardLogger(),
	}
}

func runHub(t *testing.T, hub *Hub) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Errorf("timeout waiting for hub to stop")
		}
	})
	return cancel
}

func registerClient(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	runHub(t, hub)

	c1 := newTestClient(hub, "c1", 4)
	c2 := newTestClient(hub, "c2", 4)
	registerClient(t, hub, c1)
	registerClient(t, hub, c2)

	msg := []byte(`{"type":"speed_changed","data":{"display":"2.00x"}}`)

	// BroadcastBytes is non-blocking and may drop; feed the hub loop directly.
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	runHub(t, hub)

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	registerClient(t, hub, slow)
	registerClient(t, hub, fast)

	// Pre-fill slow client buffer to simulate it being stuck.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"boost_changed","data":{"display":"200%"}}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled message, then expect the channel closed.
	select {
	case <-slow.send:
	default:
	}
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.Clients(); n != 1 {
		t.Fatalf("expected 1 client left, got %d", n)
	}
}

func readEnvelope(t *testing.T, raw []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("bad frame %q: %v", raw, err)
	}
	return env.Type, env.Data
}

func TestRunBroadcaster_CoalescesPerControl(t *testing.T) {
	hub := newTestHub(t, 16, 16)
	runHub(t, hub)
	c := newTestClient(hub, "c", 16)
	registerClient(t, hub, c)

	src := make(chan StateBroadcast, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunBroadcaster(ctx, hub, src, discardLogger())

	src <- BroadcastSpeedChanged{Display: "1.00x"}
	src <- BroadcastBoostChanged{Display: "150%"}
	src <- BroadcastSpeedChanged{Display: "1.50x"}
	src <- BroadcastSpeedChanged{Display: "2.00x"}

	got := map[string]string{}
	deadline := time.After(time.Second)
	for len(got) < 2 {
		select {
		case raw := <-c.send:
			typ, data := readEnvelope(t, raw)
			if _, dup := got[typ]; dup {
				t.Fatalf("expected one %s after coalescing, got another: %v", typ, data)
			}
			got[typ], _ = data["display"].(string)
		case <-deadline:
			t.Fatalf("timeout waiting for coalesced broadcasts, got %v", got)
		}
	}
	if got["speed_changed"] != "2.00x" || got["boost_changed"] != "150%" {
		t.Fatalf("expected latest values, got %v", got)
	}
}

func TestRunBroadcaster_PageUnavailableFlushesPending(t *testing.T) {
	hub := newTestHub(t, 16, 16)
	runHub(t, hub)
	c := newTestClient(hub, "c", 16)
	registerClient(t, hub, c)

	src := make(chan StateBroadcast, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunBroadcaster(ctx, hub, src, discardLogger())

	src <- BroadcastBoostChanged{Display: "300%"}
	src <- BroadcastPageUnavailable{Control: "boost"}

	var types []string
	for len(types) < 2 {
		select {
		case raw := <-c.send:
			typ, _ := readEnvelope(t, raw)
			types = append(types, typ)
		case <-time.After(time.Second):
			t.Fatalf("timeout, got %v", types)
		}
	}
	if types[0] != "boost_changed" || types[1] != "page_unavailable" {
		t.Fatalf("unexpected order %v", types)
	}
}

func TestServer_RefusesForeignOrigin(t *testing.T) {
	events := make(chan Event, 8)
	srv := NewServer(discardLogger(), events, ServerConfig{})
	runHub(t, srv.Hub())

	mux := http.NewServeMux()
	srv.Register(mux, "/ws/state")
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/state"
	hdr := http.Header{"Origin": []string{"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	if err == nil {
		conn.Close()
		t.Fatalf("expected handshake from a foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
	if n := len(events); n != 0 {
		t.Fatalf("refused client must not reach the daemon, got %d events", n)
	}
}

func TestServer_StateInitAndInboundEvents(t *testing.T) {
	events := make(chan Event, 8)
	srv := NewServer(discardLogger(), events, ServerConfig{})
	runHub(t, srv.Hub())

	mux := http.NewServeMux()
	srv.Register(mux, "/ws/state")
	ts := httptest.NewServer(mux)
	defer ts.Close()

	// Play the daemon: answer the snapshot request, collect the rest.
	inbound := make(chan Event, 8)
	go func() {
		for ev := range events {
			if req, ok := ev.(RequestStateSnapshot); ok {
				req.Reply <- StateSnapshot{SpeedDisplay: "1.25x", Loaded: true}
				continue
			}
			inbound <- ev
		}
	}()
	defer close(events)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/state"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read state_init: %v", err)
	}
	typ, data := readEnvelope(t, raw)
	if typ != "state_init" || data["speed_display"] != "1.25x" {
		t.Fatalf("unexpected first frame %s %v", typ, data)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"set_boost_position","data":{"position":40}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case ev := <-inbound:
		if p, ok := ev.(SetBoostPosition); !ok || p.Position != 40 {
			t.Fatalf("unexpected inbound event %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("inbound event not forwarded")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	if typ, _ := readEnvelope(t, raw); typ != "error" {
		t.Fatalf("expected error frame, got %s", typ)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
