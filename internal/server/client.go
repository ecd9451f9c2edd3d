// Package server manages individual participant sessions, handling read/write
// pumps, dispatch of inbound frames, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one participant session: a WebSocket connection bound to a single
// room for its whole life. Its identity key is a UUID assigned at accept time.
type Client struct {
	id             uuid.UUID
	conn           *websocket.Conn
	send           chan []byte
	done           chan struct{}
	closeOnce      sync.Once
	closeCode      int
	closeText      string
	roomID         string
	room           *Room
	registry       *Registry
	joined         bool
	maxMessageSize int64
	log            *slog.Logger
}

// NewClient creates a session for conn in room roomID. The send channel is
// buffered to cfg.SendBufferSize so a slow peer never blocks the room.
func NewClient(conn *websocket.Conn, registry *Registry, roomID string, cfg *Config, log *slog.Logger) *Client {
	id := uuid.New()

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		done:           make(chan struct{}),
		closeCode:      websocket.CloseNormalClosure,
		roomID:         roomID,
		registry:       registry,
		maxMessageSize: cfg.MaxMessageSize,
		log:            log.With("client", id, "room", roomID),
	}
}

// attach registers the session as pending in its room. It must run before
// the pumps start.
func (c *Client) attach() {
	c.room = c.registry.Attach(c.roomID, c)
}

// ID returns the session's identity key.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Done is closed once the session has been asked to shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// enqueue queues message for delivery without blocking. A full queue marks
// the peer as too slow and closes it; its own read loop then cleans it up.
func (c *Client) enqueue(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	default:
		c.log.Warn("Send buffer full; closing slow participant")
		c.Close(websocket.CloseTryAgainLater, "send buffer full")
		return false
	}
}

// Close asks the session to stop. Only the first call has effect; the write
// pump sends the close frame with the given code and closes the connection.
func (c *Client) Close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// dispatch routes one inbound frame according to its declared type.
func (c *Client) dispatch(raw []byte) {
	switch msg := ParseInbound(raw).(type) {
	case Handshake:
		c.room.Join(c, msg.Identity)
		c.joined = true
	case Relay:
		targets := c.room.Relay(c.id, msg.Raw)
		c.log.Debug("Relayed frame", "type", msg.Type, "targets", targets)
	case Unknown:
		c.log.Debug("Ignoring frame", "type", msg.Type, "reason", msg.Reason)
	}
}

// setupReadConnection configures the frame size limit, read deadlines and pong
// handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	c.conn.SetReadLimit(c.maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the reason the read loop is ending.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Info("Frame exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug("Participant disconnected", "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("Connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err):
		c.log.Info("Unexpected close", "error", err)
	default:
		c.log.Info("Read error", "error", err)
	}
}

// readPump owns the session for its whole life. Every exit path runs the
// deferred cleanup exactly once: detach from the room, then stop the writer.
func (c *Client) readPump() {
	defer func() {
		c.registry.Detach(c.roomID, c)
		c.Close(websocket.CloseNormalClosure, "")
		c.log.Debug("Session ended", "joined", c.joined)
	}()

	c.setupReadConnection()

	for {
		messageType, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			c.log.Debug("Ignoring non-text frame", "frame", messageType)
			continue
		}
		c.dispatch(rawMessage)
	}
}

// writePump drains the send queue, one frame per message, and keeps the
// connection alive with pings. It closes the connection when it returns,
// which also unblocks readPump.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.send:
		return c.writeTextMessage(message)
	case <-ticker.C:
		return c.handlePing()
	case <-c.done:
		c.writeCloseMessage()
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection", "error", err)
	}
}

func (c *Client) writeCloseMessage() {
	frame := websocket.FormatCloseMessage(c.closeCode, c.closeText)
	if err := c.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("Error writing close message", "error", err)
		}
	}
}

// writeTextMessage writes one queued message as its own frame. A failed
// write closes the session.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline", "error", err)
		c.Close(websocket.CloseAbnormalClosure, "")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Info("Error writing message", "error", err)
		}
		c.Close(websocket.CloseAbnormalClosure, "")
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error writing ping", "error", err)
		c.Close(websocket.CloseAbnormalClosure, "")
		return false
	}
	return true
}
