// Package server decides which browser origins may open a relay session.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

var errOpaqueOrigin = errors.New("origin needs a scheme and a host")

// originPolicy holds the configured origin allow-list. A "*" entry admits
// every request, including clients that send no Origin header at all.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
	log     *slog.Logger
}

func newOriginPolicy(origins []string, log *slog.Logger) *originPolicy {
	p := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		log:     log,
	}

	for _, entry := range origins {
		switch entry = strings.TrimSpace(entry); entry {
		case "":
		case "*":
			p.any = true
		default:
			key, err := originKey(entry)
			if err != nil {
				log.Warn("Ignoring invalid origin in configuration", "origin", entry, "error", err)
				continue
			}
			p.allowed[key] = struct{}{}
		}
	}
	return p
}

// originKey reduces an origin to lowercase scheme://host[:port].
func originKey(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errOpaqueOrigin
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

// allows reports whether r may be upgraded: anything under "*", otherwise a
// configured origin or one naming the host the request was sent to.
func (p *originPolicy) allows(r *http.Request) bool {
	if p.any {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	key, err := originKey(origin)
	if err != nil {
		return false
	}
	if _, host, _ := strings.Cut(key, "://"); host == strings.ToLower(r.Host) {
		return true
	}

	_, ok := p.allowed[key]
	return ok
}

func (p *originPolicy) check(r *http.Request) bool {
	if p.allows(r) {
		return true
	}

	p.log.Info("Blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}
