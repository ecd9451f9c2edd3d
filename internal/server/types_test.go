package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInbound_Handshake(t *testing.T) {
	msg := ParseInbound([]byte(`{"type":"pubkey","nickname":"n1","nickiv":"i1","key":{"kty":"EC"}}`))

	hs, ok := msg.(Handshake)
	require.True(t, ok, "expected Handshake, got %T", msg)
	assert.JSONEq(t, `"n1"`, string(hs.Identity.Nickname))
	assert.JSONEq(t, `"i1"`, string(hs.Identity.NickIV))
	assert.JSONEq(t, `{"kty":"EC"}`, string(hs.Identity.Key))
}

func TestParseInbound_RelayedTypesKeepRawBytes(t *testing.T) {
	relayed := []MessageType{
		TypeMsg,
		TypeFileStart, TypeFileChunk, TypeFileComplete,
		TypeClearChat,
		TypeCallOffer, TypeCallAnswer, TypeCallReject, TypeCallEnd, TypeAudioChunk, TypeCallStatus,
	}

	for _, typ := range relayed {
		t.Run(string(typ), func(t *testing.T) {
			raw := []byte(`{ "type" : "` + string(typ) + `", "data":"opaque",  "iv":[1,2,3] }`)

			relay, ok := ParseInbound(raw).(Relay)
			require.True(t, ok)
			assert.Equal(t, typ, relay.Type)
			assert.Equal(t, raw, relay.Raw, "relayed frames must not be re-encoded")
		})
	}
}

func TestParseInbound_Unknown(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{name: "invalid json", raw: `{"type":`, reason: "malformed json"},
		{name: "not an object", raw: `"msg"`, reason: "malformed json"},
		{name: "non-string type", raw: `{"type":42}`, reason: "malformed json"},
		{name: "missing type", raw: `{"nickname":"n1"}`, reason: "missing type"},
		{name: "null type", raw: `{"type":null}`, reason: "missing type"},
		{name: "unrecognized type", raw: `{"type":"join"}`, reason: "unrecognized type"},
		{name: "empty type", raw: `{"type":""}`, reason: "unrecognized type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown, ok := ParseInbound([]byte(tt.raw)).(Unknown)
			require.True(t, ok)
			assert.Equal(t, tt.reason, unknown.Reason)
		})
	}
}

func TestEncodeUserList(t *testing.T) {
	users := []UserEntry{
		{Data: json.RawMessage(`"n1"`), IV: json.RawMessage(`"i1"`)},
		{Data: json.RawMessage(`"n2"`), IV: json.RawMessage(`"i2"`)},
	}

	assert.JSONEq(t,
		`{"type":"userlist","users":[{"data":"n1","iv":"i1"},{"data":"n2","iv":"i2"}],"count":2}`,
		string(encodeUserList(users)))
}

func TestEncodeEvents_MissingFieldsBecomeNull(t *testing.T) {
	assert.JSONEq(t,
		`{"type":"pubkey","nickname":"n1","nickiv":null,"key":null}`,
		string(encodePubKey(Identity{Nickname: json.RawMessage(`"n1"`)})))
	assert.JSONEq(t,
		`{"type":"leave","nickname":null,"nickiv":null}`,
		string(encodePresence(TypeLeave, Identity{})))
}
