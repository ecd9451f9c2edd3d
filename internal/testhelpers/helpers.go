// Package testhelpers provides common utilities for exercising the relay over
// real WebSocket connections in tests.
//
// It wraps gorilla/websocket dialing with the Origin header the relay expects,
// reads typed events with deadlines, and asserts the absence of traffic.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every read performed by these helpers.
const DefaultTimeout = 2 * time.Second

// Event is a decoded server frame. Raw keeps the exact bytes received.
type Event struct {
	Type     string            `json:"type"`
	Nickname json.RawMessage   `json:"nickname"`
	NickIV   json.RawMessage   `json:"nickiv"`
	Key      json.RawMessage   `json:"key"`
	Users    []json.RawMessage `json:"users"`
	Count    int               `json:"count"`
	Raw      []byte            `json:"-"`
}

// WebSocketURL converts an httptest server URL into the room endpoint URL.
func WebSocketURL(serverURL, room string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws/" + room
}

// ConnectWebSocket dials url with an Origin matching serverURL.
func ConnectWebSocket(serverURL, url string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", serverURL)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials room on serverURL and closes the connection at test end.
func MustConnect(t *testing.T, serverURL, room string) *websocket.Conn {
	t.Helper()

	conn, _, err := ConnectWebSocket(serverURL, WebSocketURL(serverURL, room))
	require.NoError(t, err, "connect to room %q", room)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendHandshake sends a pubkey frame with the given opaque values.
func SendHandshake(t *testing.T, conn *websocket.Conn, nickname, nickIV, key string) {
	t.Helper()

	err := conn.WriteJSON(map[string]string{
		"type":     "pubkey",
		"nickname": nickname,
		"nickiv":   nickIV,
		"key":      key,
	})
	require.NoError(t, err)
}

// SendRaw writes data as a single text frame.
func SendRaw(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

// ReadEvent reads the next frame and decodes it.
func ReadEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "read event")

	var event Event
	require.NoError(t, json.Unmarshal(raw, &event), "decode %s", raw)
	event.Raw = raw
	return event
}

// ExpectEvent reads the next frame and requires it to have type eventType.
func ExpectEvent(t *testing.T, conn *websocket.Conn, eventType string) Event {
	t.Helper()

	event := ReadEvent(t, conn)
	require.Equal(t, eventType, event.Type, "unexpected frame %s", event.Raw)
	return event
}

// ExpectNoMessage requires that nothing arrives within timeout. The
// connection's read deadline expires, so it must not be read again.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "expected no message, got %s", raw)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
