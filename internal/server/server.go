// Package server implements the relay for ephemeral end-to-end encrypted
// chat rooms. The Server type owns the room registry, the connection rate
// limiter and every session goroutine.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server ties configuration, the room registry and the connection limiter
// together and tracks every session goroutine for shutdown.
type Server struct {
	cfg      *Config
	log      *slog.Logger
	registry *Registry
	limiter  *connLimiter
	origins  *originPolicy
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	janitor  chan struct{}
	mu       sync.Mutex
	closing  bool
}

// New creates a Server from cfg and starts its ledger janitor. Call Shutdown
// to stop it.
func New(cfg *Config, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		log:      log,
		registry: NewRegistry(log),
		limiter:  newConnLimiter(cfg.RateLimit),
		origins:  newOriginPolicy(cfg.AllowedOrigins, log),
		ctx:      ctx,
		cancel:   cancel,
		janitor:  make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.origins.check,
	}

	go s.sweepLedger(cfg.RateLimit.Window)
	return s
}

// Registry returns the server's room registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// sweepLedger periodically forgets idle addresses in the rate-limit ledger.
func (s *Server) sweepLedger(interval time.Duration) {
	defer close(s.janitor)
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if dropped := s.limiter.sweep(); dropped > 0 {
				s.log.Debug("Swept rate-limit ledger", "dropped", dropped)
			}
		}
	}
}

// startSession attaches c to its room and launches its pumps. It reports
// false once shutdown has begun.
func (s *Server) startSession(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}

	c.attach()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
	}()
	return true
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting sessions, closes every live one with a going-away
// status and waits for their goroutines, bounded by timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()
	s.log.Info("Initiating relay shutdown")

	s.cancel()
	<-s.janitor

	clients := s.registry.Clients()
	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
	s.log.Info("Closing sessions", "count", len(clients))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Relay shutdown completed")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Relay shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
