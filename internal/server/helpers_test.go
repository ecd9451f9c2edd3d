package server

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestClient builds a connection-less session attached to room. Frames
// queued for it stay in its send channel for the test to inspect.
func newTestClient(t *testing.T, registry *Registry, room string) *Client {
	t.Helper()

	cfg := NewConfig()
	c := NewClient(nil, registry, room, cfg, discardLogger())
	c.attach()
	return c
}

type frame struct {
	Type     string          `json:"type"`
	Nickname json.RawMessage `json:"nickname"`
	NickIV   json.RawMessage `json:"nickiv"`
	Key      json.RawMessage `json:"key"`
	Users    []UserEntry     `json:"users"`
	Count    int             `json:"count"`
	raw      []byte
}

// drain returns every frame currently queued for c, in order.
func drain(t *testing.T, c *Client) []frame {
	t.Helper()

	var frames []frame
	for {
		select {
		case raw := <-c.send:
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			f.raw = raw
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func types(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func identity(nick, iv, key string) Identity {
	quote := func(s string) json.RawMessage {
		b, _ := json.Marshal(s)
		return b
	}
	return Identity{Nickname: quote(nick), NickIV: quote(iv), Key: quote(key)}
}
