package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ============================================================================
// HTTP Server - control UI + JSON API + state websocket
// ============================================================================
//   GET  /            embedded control page (sliders, presets, readouts)
//   GET  /ws/state    state websocket (state_init + change broadcasts)
//   POST /api/event   control event in the IPC envelope; IPCResponse back
//   GET  /api/state   StateSnapshot
// ============================================================================

//go:embed ui/index.html
var uiFiles embed.FS

const maxEventBody = 4096

// newHTTPHandler wires the UI, API and websocket routes onto one mux.
func newHTTPHandler(events chan<- Event, ws *Server, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	ui, err := fs.Sub(uiFiles, "ui")
	if err != nil {
		// Only possible if the embed directive and path disagree.
		panic(err)
	}
	mux.Handle("GET /", http.FileServerFS(ui))

	if ws != nil {
		ws.Register(mux, "GET /ws/state")
	}

	mux.HandleFunc("POST /api/event", func(w http.ResponseWriter, r *http.Request) {
		if !sameOrigin(r) {
			logger.Warn("http event from foreign origin refused", "origin", r.Header.Get("Origin"))
			writeJSON(w, http.StatusForbidden, IPCResponse{Status: "error", Error: "origin not allowed"})
			return
		}
		if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType, IPCResponse{Status: "error", Error: "content type must be application/json"})
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, IPCResponse{Status: "error", Error: err.Error()})
			return
		}
		ev, err := UnmarshalEvent(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)})
			return
		}
		if err := offerEvent(events, ev); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, IPCResponse{Status: "error", Error: err.Error()})
			return
		}
		logger.Debug("http event accepted", "type", fmt.Sprintf("%T", ev))
		writeJSON(w, http.StatusOK, IPCResponse{Status: "ok"})
	})

	mux.HandleFunc("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		snap, err := requestSnapshot(r.Context(), events, snapshotTimeout)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, IPCResponse{Status: "error", Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return mux
}

// sameOrigin reports whether a request carries no Origin or one naming the host
// it was sent to. Browsers attach Origin to cross-site posts and websocket
// handshakes, so pages on other sites cannot drive the daemon.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// runHTTPServer serves handler on addr and shuts it down gracefully when ctx
// is canceled.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	logger.Info("http server listening", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
