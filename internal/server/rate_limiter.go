// Package server implements a sliding-window connection limiter keyed by
// source address that deters reconnect floods against the relay.
package server

import (
	"sync"
	"time"
)

// anonymousKey buckets every attempt without a source address when the
// shared policy is active. It cannot collide with a parsed IP.
const anonymousKey = "<anonymous>"

type connLimiter struct {
	mu        sync.Mutex
	attempts  map[string][]time.Time
	ceiling   int
	window    time.Duration
	anonymous string
	now       func() time.Time
}

func newConnLimiter(cfg RateLimitConfig) *connLimiter {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Anonymous == "" {
		cfg.Anonymous = AnonymousBypass
	}

	return &connLimiter{
		attempts:  make(map[string][]time.Time),
		ceiling:   cfg.Ceiling,
		window:    cfg.Window,
		anonymous: cfg.Anonymous,
		now:       time.Now,
	}
}

// admit records a connection attempt from addr and reports whether it may
// proceed. An empty addr is resolved through the anonymous policy.
func (l *connLimiter) admit(addr string) bool {
	if addr == "" {
		switch l.anonymous {
		case AnonymousDeny:
			return false
		case AnonymousShared:
			addr = anonymousKey
		default:
			return true
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	queue := l.prune(l.attempts[addr], now)
	if len(queue) >= l.ceiling {
		l.attempts[addr] = queue
		return false
	}

	l.attempts[addr] = append(queue, now)
	return true
}

// prune drops timestamps at least one window old from the front of queue.
func (l *connLimiter) prune(queue []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(queue) && now.Sub(queue[i]) >= l.window {
		i++
	}
	return queue[i:]
}

// sweep forgets addresses whose attempts have all aged out of the window and
// returns how many were dropped.
func (l *connLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	dropped := 0
	for addr, queue := range l.attempts {
		queue = l.prune(queue, now)
		if len(queue) == 0 {
			delete(l.attempts, addr)
			dropped++
			continue
		}
		l.attempts[addr] = queue
	}
	return dropped
}

func (l *connLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}
