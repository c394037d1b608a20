package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRoundTrip(t *testing.T) {
	msgs := []ClientMsg{
		{Join: &Join{Room: "r1", Name: "alice"}},
		{Key: &Key{Ch: "a", Ts: 1712345678901}},
		{Reset: &Reset{}},
	}
	for _, m := range msgs {
		data, err := EncodeClient(m)
		require.NoError(t, err)
		got, err := DecodeClient(data)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestServerRoundTrip(t *testing.T) {
	msgs := []ServerMsg{
		{Lobby: &Lobby{Players: []string{"alice", "bob"}}},
		{Countdown: &Countdown{Passage: "hello world", StartsInMs: 3000}},
		{Start: &Start{T0Ms: 1712345678901}},
		{Progress: &Progress{ID: "alice", Pos: 7}},
		{Finish: &Finish{ID: "alice", WPM: 60.0, NetWPM: 54.0}},
		{StateChange: &StateChange{State: "racing"}},
		{Error: &Error{Code: CodeRateLimited, Message: "slow down"}},
	}
	for _, m := range msgs {
		data, err := EncodeServer(m)
		require.NoError(t, err)
		got, err := DecodeServer(data)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestClientWireFormat(t *testing.T) {
	data, err := EncodeClient(ClientMsg{Join: &Join{Room: "r1", Name: "alice"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Join":{"room":"r1","name":"alice"}}`, string(data))

	data, err = EncodeServer(ServerMsg{Progress: &Progress{ID: "alice", Pos: 7}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Progress":{"id":"alice","pos":7}}`, string(data))
}

func TestDecodeClientMalformed(t *testing.T) {
	cases := []string{
		`{"Foo":{}}`,                              // unknown tag
		`{}`,                                      // no tag
		`{"Join":{"room":"r1"}}`,                  // missing name
		`{"Join":{"room":"","name":"a"}}`,         // empty room
		`{"Key":{"ch":"","ts":1}}`,                // empty keystroke
		`{"Key":{"ch":"ab","ts":1}}`,              // more than one char
		`{"Join":{"room":"r"},"Reset":{}}`,        // two tags at once
		`not json`,                                // not even JSON
	}
	for _, raw := range cases {
		_, err := DecodeClient([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, "input: %s", raw)
	}
}

func TestDecodeServerMalformed(t *testing.T) {
	cases := []string{
		`{"Bar":{}}`,
		`{"Countdown":{"passage":"","starts_in_ms":3000}}`,
		`{"Progress":{"id":"","pos":1}}`,
		`{"Error":{"code":"","message":"x"}}`,
	}
	for _, raw := range cases {
		_, err := DecodeServer([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, "input: %s", raw)
	}
}

func TestErrorCodeClosePolicy(t *testing.T) {
	assert.True(t, CodeExpectedJoin.ClosesConnection())
	assert.True(t, CodeLagging.ClosesConnection())
	assert.True(t, CodeInternal.ClosesConnection())

	assert.False(t, CodeMalformedMessage.ClosesConnection())
	assert.False(t, CodeNameTaken.ClosesConnection())
	assert.False(t, CodeNameInvalid.ClosesConnection())
	assert.False(t, CodeRoomFull.ClosesConnection())
	assert.False(t, CodeWrongState.ClosesConnection())
	assert.False(t, CodeRateLimited.ClosesConnection())
}
