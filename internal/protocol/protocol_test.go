package protocol_test

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veil/internal/domain"
	"veil/internal/protocol"
)

func TestNewFrame_Fields(t *testing.T) {
	f, err := protocol.NewFrame(protocol.TypeLogin, "alice", "", protocol.LoginRequest{Username: "alice"})
	require.NoError(t, err)

	assert.Equal(t, protocol.Version, f.Protocol)
	assert.Equal(t, protocol.TypeLogin, f.Type)
	assert.Equal(t, "alice", f.Sender)
	assert.True(t, strings.HasPrefix(f.MessageID, "veil_"))
	assert.NotZero(t, f.Timestamp)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	out, err := protocol.NewFrame(protocol.TypeContactRequest, "alice", "bob", protocol.ContactRequest{
		TargetUser: "bob",
		Message:    "hi, let's exchange keys",
	})
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(&buf, out))

	in, err := protocol.NewFrameReader(&buf).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, out.MessageID, in.MessageID)
	assert.Equal(t, out.Type, in.Type)

	payload, err := protocol.DecodePayload(in)
	require.NoError(t, err)
	req, ok := payload.(protocol.ContactRequest)
	require.True(t, ok)
	assert.Equal(t, "bob", req.TargetUser)
	assert.Equal(t, "hi, let's exchange keys", req.Message)
}

func TestReadFrame_MultipleFramesOneStream(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		f, err := protocol.NewFrame(protocol.TypeLogout, "alice", "", protocol.LogoutRequest{})
		require.NoError(t, err)
		require.NoError(t, protocol.WriteFrame(&buf, f))
	}

	r := protocol.NewFrameReader(&buf)
	for i := 0; i < 3; i++ {
		f, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeLogout, f.Type)
	}
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_SkipsBlankLines(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("\n\n")
	f, err := protocol.NewFrame(protocol.TypeLogout, "alice", "", protocol.LogoutRequest{})
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(&buf, f))

	got, err := protocol.NewFrameReader(&buf).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeLogout, got.Type)
}

func TestReadFrame_VersionMismatch(t *testing.T) {
	f := protocol.MustFrame(protocol.TypeLogin, "alice", "", protocol.LoginRequest{})
	f.Protocol = "v0.9"
	raw, err := json.Marshal(f)
	require.NoError(t, err)

	_, err = protocol.NewFrameReader(bytes.NewReader(append(raw, '\n'))).ReadFrame()
	assert.ErrorIs(t, err, domain.ErrProtocolVersion)
}

func TestReadFrame_MalformedJSON(t *testing.T) {
	_, err := protocol.NewFrameReader(strings.NewReader("{not json}\n")).ReadFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed frame")
}

func TestReadFrame_OversizeRejected(t *testing.T) {
	big := strings.Repeat("x", protocol.MaxFrameBytes+2)
	_, err := protocol.NewFrameReader(strings.NewReader(big + "\n")).ReadFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestDecodePayload_AllTypes(t *testing.T) {
	cases := []struct {
		typ     protocol.MessageType
		payload any
	}{
		{protocol.TypeRegister, protocol.RegisterRequest{Username: "a", Password: "pw"}},
		{protocol.TypeLogin, protocol.LoginRequest{Username: "a"}},
		{protocol.TypeLogout, protocol.LogoutRequest{}},
		{protocol.TypeKeyExchange, protocol.KeyExchange{TargetUser: "b"}},
		{protocol.TypeDirectMessage, protocol.DirectMessage{MessageType: "text"}},
		{protocol.TypeOnlineUsers, protocol.OnlineUsers{TotalOnline: 2}},
		{protocol.TypeContactRequest, protocol.ContactRequest{TargetUser: "b"}},
		{protocol.TypeContactAccept, protocol.ContactAccept{TargetUser: "a"}},
		{protocol.TypeSecurityAlert, protocol.SecurityAlert{Severity: "high"}},
		{protocol.TypeError, protocol.ErrorPayload{Error: "nope"}},
		{protocol.TypeSuccess, protocol.SuccessPayload{Status: "ok"}},
	}
	for _, tc := range cases {
		f, err := protocol.NewFrame(tc.typ, "s", "r", tc.payload)
		require.NoError(t, err)
		got, err := protocol.DecodePayload(f)
		require.NoError(t, err, "type %s", tc.typ)
		assert.Equal(t, tc.payload, got, "type %s", tc.typ)
	}
}

func TestDecodePayload_UnknownType(t *testing.T) {
	f := protocol.Frame{Protocol: protocol.Version, Type: "bogus"}
	_, err := protocol.DecodePayload(f)
	assert.Error(t, err)
}

func TestErrorFrame(t *testing.T) {
	f := protocol.ErrorFrame("alice", "something broke")
	assert.Equal(t, protocol.TypeError, f.Type)
	assert.Equal(t, "alice", f.Receiver)

	payload, err := protocol.DecodePayload(f)
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrorPayload{Error: "something broke"}, payload)
}
