// Package server exposes HTTP handlers, including the room WebSocket upgrade,
// the health check and the front-end page.
package server

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades /ws/{room} requests into participant sessions.
// Only well-formed upgrade requests from an allowed origin are charged to the
// source address. A denied attempt is upgraded only to be closed with a
// policy-violation status before it touches the registry.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if s.isClosing() {
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}

	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Expected a WebSocket upgrade request.", http.StatusBadRequest)
		return
	}
	if !s.origins.check(r) {
		http.Error(w, "Origin not allowed.", http.StatusForbidden)
		return
	}

	roomID := r.PathValue("room")
	addr := sourceAddress(r)
	admitted := s.limiter.admit(addr)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("WebSocket upgrade failed", "error", err)
		return
	}

	if !admitted {
		s.log.Info("Connection rate limit exceeded", "ceiling", s.cfg.RateLimit.Ceiling, "window", s.cfg.RateLimit.Window)
		rejectConnection(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
		return
	}

	client := NewClient(conn, s.registry, roomID, s.cfg, s.log)
	if !s.startSession(client) {
		rejectConnection(conn, websocket.CloseGoingAway, "server shutting down")
	}
}

func rejectConnection(conn *websocket.Conn, code int, reason string) {
	frame := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(writeWait))
	_ = conn.Close()
}

// sourceAddress extracts the peer IP the transport reports, or "" when none
// is available.
func sourceAddress(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return host
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "WhisperSphere relay is running!")
}
