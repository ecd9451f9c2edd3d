// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes:
// the room WebSocket endpoint, the health check and the static front end.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/{room}", s.WebSocketHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.Handle("/", StaticHandler(staticFS(s.cfg.StaticDir)))
	return mux
}
