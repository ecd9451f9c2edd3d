// Package server builds the structured logger shared by the relay components.
package server

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the JSON logger used throughout the relay. Unknown levels
// fall back to error so a typo never makes the server chattier.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
