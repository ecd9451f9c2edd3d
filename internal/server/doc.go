// Package server implements the WhisperSphere relay: a WebSocket server that
// fans end-to-end encrypted frames out to the other participants of a room.
//
// The server never decrypts anything. It reads the type tag of each frame,
// tracks room membership from the pubkey handshake, and forwards everything
// else verbatim. The implementation is organized into specialized files for
// configuration, the room registry, sessions, the envelope, routing and HTTP
// handlers.
package server
