// Package server defines the relay envelope, the inbound message variants
// and the server-originated events exchanged with room participants.
package server

import (
	"encoding/json"
	"strings"
)

// MessageType is the routing tag carried by every envelope.
type MessageType string

// Inbound handshake and relayed types.
const (
	TypePubKey       MessageType = "pubkey"
	TypeMsg          MessageType = "msg"
	TypeFileStart    MessageType = "file_start"
	TypeFileChunk    MessageType = "file_chunk"
	TypeFileComplete MessageType = "file_complete"
	TypeClearChat    MessageType = "clear_chat"
	TypeCallOffer    MessageType = "call_offer"
	TypeCallAnswer   MessageType = "call_answer"
	TypeCallReject   MessageType = "call_reject"
	TypeCallEnd      MessageType = "call_end"
	TypeAudioChunk   MessageType = "audio_chunk"
	TypeCallStatus   MessageType = "call_status"
)

// Server-originated membership events.
const (
	TypeJoin     MessageType = "join"
	TypeLeave    MessageType = "leave"
	TypeUserList MessageType = "userlist"
)

// relayed reports whether frames of type t are forwarded verbatim.
func (t MessageType) relayed() bool {
	switch t {
	case TypeMsg,
		TypeFileStart, TypeFileChunk, TypeFileComplete,
		TypeClearChat,
		TypeCallOffer, TypeCallAnswer, TypeCallReject, TypeCallEnd, TypeAudioChunk, TypeCallStatus:
		return true
	}
	return false
}

// Identity is the encrypted identity a participant establishes with its
// handshake. Every field is ciphertext the server never interprets.
type Identity struct {
	Nickname json.RawMessage
	NickIV   json.RawMessage
	Key      json.RawMessage
}

// Inbound is one decoded frame. The set of variants is closed: Handshake,
// Relay and Unknown.
type Inbound interface {
	inbound()
}

// Handshake is a pubkey frame establishing the sender's identity.
type Handshake struct {
	Identity Identity
}

// Relay is a frame forwarded untouched to the other participants.
type Relay struct {
	Type MessageType
	Raw  []byte
}

// Unknown is a frame that is malformed or carries an unrecognized type.
type Unknown struct {
	Type   string
	Reason string
}

func (Handshake) inbound() {}
func (Relay) inbound()     {}
func (Unknown) inbound()   {}

type envelope struct {
	Type     *string         `json:"type"`
	Nickname json.RawMessage `json:"nickname"`
	NickIV   json.RawMessage `json:"nickiv"`
	Key      json.RawMessage `json:"key"`
}

// ParseInbound classifies a raw frame. It never fails: anything that cannot
// be routed comes back as Unknown.
func ParseInbound(raw []byte) Inbound {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Unknown{Reason: "malformed json"}
	}
	if env.Type == nil {
		return Unknown{Reason: "missing type"}
	}

	t := MessageType(*env.Type)
	switch {
	case t == TypePubKey:
		return Handshake{Identity: Identity{
			Nickname: env.Nickname,
			NickIV:   env.NickIV,
			Key:      env.Key,
		}}
	case t.relayed():
		return Relay{Type: t, Raw: raw}
	default:
		return Unknown{Type: *env.Type, Reason: "unrecognized type"}
	}
}

type pubKeyEvent struct {
	Type     MessageType     `json:"type"`
	Nickname json.RawMessage `json:"nickname"`
	NickIV   json.RawMessage `json:"nickiv"`
	Key      json.RawMessage `json:"key"`
}

type presenceEvent struct {
	Type     MessageType     `json:"type"`
	Nickname json.RawMessage `json:"nickname"`
	NickIV   json.RawMessage `json:"nickiv"`
}

// UserEntry is one roster line of a userlist event.
type UserEntry struct {
	Data json.RawMessage `json:"data"`
	IV   json.RawMessage `json:"iv"`
}

type userListEvent struct {
	Type  MessageType `json:"type"`
	Users []UserEntry `json:"users"`
	Count int         `json:"count"`
}

func encodePubKey(id Identity) []byte {
	return mustMarshal(pubKeyEvent{Type: TypePubKey, Nickname: id.Nickname, NickIV: id.NickIV, Key: id.Key})
}

func encodePresence(t MessageType, id Identity) []byte {
	return mustMarshal(presenceEvent{Type: t, Nickname: id.Nickname, NickIV: id.NickIV})
}

func encodeUserList(users []UserEntry) []byte {
	return mustMarshal(userListEvent{Type: TypeUserList, Users: users, Count: len(users)})
}

// mustMarshal encodes server events. Their fields are either fixed types or
// RawMessage values that already passed json.Unmarshal, so encoding cannot fail.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
