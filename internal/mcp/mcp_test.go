// ABOUTME: Tests for the protocol message envelope, response decoding, and codec.
// ABOUTME: Covers correlation echoing, payload degradation, and JSON framing.

package mcp

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageStampsIdentity(t *testing.T) {
	msg := NewMessage(TypeCommandExecution, "director", "fs-1", map[string]any{"commandType": "read_file"})

	assert.NotEmpty(t, msg.ID)
	assert.NotEmpty(t, msg.CorrelationID)
	assert.NotEqual(t, msg.ID, msg.CorrelationID)
	assert.Equal(t, "director", msg.Source)
	assert.Equal(t, "fs-1", msg.Target)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestReplyEchoesCorrelationID(t *testing.T) {
	req := NewMessage(TypePing, "director", "fs-1", nil)
	resp := req.Reply(TypeHealthStatus, map[string]any{"success": true})

	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	assert.Equal(t, "fs-1", resp.Source)
	assert.Equal(t, "director", resp.Target)
	assert.NotEqual(t, req.ID, resp.ID)
}

func TestIsResponse(t *testing.T) {
	tests := []struct {
		typ  MessageType
		want bool
	}{
		{TypeCommandResult, true},
		{TypeHealthStatus, true},
		{TypeAgentInfo, true},
		{TypeCommandExecution, false},
		{TypePing, false},
		{TypeAgentDisconnect, false},
	}

	for _, tt := range tests {
		m := &Message{Type: tt.typ}
		assert.Equal(t, tt.want, m.IsResponse(), "type %s", tt.typ)
	}
}

func TestResponseFromMessage(t *testing.T) {
	t.Run("decodes full payload", func(t *testing.T) {
		req := NewMessage(TypeCommandExecution, "director", "fs-1", nil)
		msg := req.Reply(TypeCommandResult, map[string]any{
			"success": true,
			"message": "done",
			"data":    map[string]any{"content": "hello"},
		})

		resp := ResponseFromMessage(msg)
		assert.True(t, resp.Success)
		assert.Equal(t, "done", resp.Message)
		assert.Equal(t, req.CorrelationID, resp.MessageID)
		assert.Equal(t, "hello", resp.Data["content"])
	})

	t.Run("mistyped fields degrade to zero values", func(t *testing.T) {
		msg := &Message{
			Type:          TypeCommandResult,
			CorrelationID: "corr-1",
			Payload: map[string]any{
				"success": "yes", // wrong type
				"message": 42,    // wrong type
			},
		}

		resp := ResponseFromMessage(msg)
		assert.False(t, resp.Success)
		assert.Empty(t, resp.Message)
		assert.Equal(t, "corr-1", resp.MessageID)
	})

	t.Run("nil payload is an invalid response", func(t *testing.T) {
		resp := ResponseFromMessage(&Message{Type: TypeCommandResult})
		assert.False(t, resp.Success)
		assert.Equal(t, CodeInvalidResponse, resp.ErrorCode)
	})
}

func TestFailurePayloadRoundTrip(t *testing.T) {
	fail := Failure("msg-1", CodeAgentNotConnected, "no live connection")
	msg := &Message{
		Type:          TypeCommandResult,
		CorrelationID: "msg-1",
		Payload:       fail.ToPayload(),
	}

	got := ResponseFromMessage(msg)
	assert.False(t, got.Success)
	assert.Equal(t, CodeAgentNotConnected, got.ErrorCode)
	assert.Equal(t, "no live connection", got.Message)
}

func TestCodecFraming(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	first := NewMessage(TypeCommandExecution, "director", "fs-1", map[string]any{"commandType": "read_file"})
	second := NewPing("director", "fs-1")
	require.NoError(t, enc.Encode(first))
	require.NoError(t, enc.Encode(second))

	// Two documents, one per line.
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	dec := NewDecoder(&buf)

	got, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, first.CorrelationID, got.CorrelationID)
	assert.Equal(t, "read_file", got.Payload["commandType"])

	got, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypePing, got.Type)

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecodeMalformedDocument(t *testing.T) {
	dec := NewDecoder(strings.NewReader("{not json}\n"))
	_, err := dec.Decode()
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestEncodeNilMessage(t *testing.T) {
	enc := NewEncoder(&bytes.Buffer{})
	assert.Error(t, enc.Encode(nil))
}
