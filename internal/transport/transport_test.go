// ABOUTME: Tests for the stream transport over in-memory pipes and unix sockets.
// ABOUTME: Covers framing round-trips, channel naming, accept cancellation, and Close.

package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentic-director/internal/mcp"
)

func TestChannelNaming(t *testing.T) {
	assert.Equal(t, "AgenticAI_Agent_fs-1", ChannelName("fs-1"))
	assert.Equal(t, "/tmp/sockets/AgenticAI_Agent_fs-1.sock", SocketPath("/tmp/sockets", "fs-1"))
}

func TestAgentIDFromSocket(t *testing.T) {
	id, ok := AgentIDFromSocket("AgenticAI_Agent_fs-1.sock")
	require.True(t, ok)
	assert.Equal(t, "fs-1", id)

	for _, name := range []string{"fs-1.sock", "AgenticAI_Agent_fs-1", "AgenticAI_Agent_.sock", "random.txt"} {
		_, ok := AgentIDFromSocket(name)
		assert.False(t, ok, name)
	}
}

func TestPipeRoundTrip(t *testing.T) {
	director, agent := Pipe()
	defer director.Close()
	defer agent.Close()

	sent := mcp.NewMessage(mcp.TypeCommandExecution, "director", "fs-1", map[string]any{"commandType": "read_file"})

	go func() {
		_ = director.Send(sent)
	}()

	got, err := agent.Recv()
	require.NoError(t, err)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, sent.CorrelationID, got.CorrelationID)
	assert.Equal(t, "read_file", got.Payload["commandType"])
}

func TestPipeCloseUnblocksPeer(t *testing.T) {
	director, agent := Pipe()

	done := make(chan error, 1)
	go func() {
		_, err := agent.Recv()
		done <- err
	}()

	require.NoError(t, director.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after peer close")
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	director, agent := Pipe()
	defer agent.Close()

	first := director.Close()
	second := director.Close()
	assert.Equal(t, first, second)
}

func TestUnixListenAcceptDial(t *testing.T) {
	dir := t.TempDir()

	ln, err := Listen(dir, "fs-1")
	require.NoError(t, err)
	defer ln.Close()

	type accepted struct {
		stream Stream
		err    error
	}
	ch := make(chan accepted, 1)
	go func() {
		s, err := ln.Accept(context.Background())
		ch <- accepted{s, err}
	}()

	agentSide, err := Dial(context.Background(), dir, "fs-1")
	require.NoError(t, err)
	defer agentSide.Close()

	var directorSide Stream
	select {
	case a := <-ch:
		require.NoError(t, a.err)
		directorSide = a.stream
	case <-time.After(time.Second):
		t.Fatal("accept did not complete")
	}
	defer directorSide.Close()

	ping := mcp.NewPing("director", "fs-1")
	require.NoError(t, directorSide.Send(ping))

	got, err := agentSide.Recv()
	require.NoError(t, err)
	assert.Equal(t, mcp.TypePing, got.Type)

	require.NoError(t, agentSide.Send(got.Reply(mcp.TypeHealthStatus, map[string]any{"success": true})))

	reply, err := directorSide.Recv()
	require.NoError(t, err)
	assert.Equal(t, ping.CorrelationID, reply.CorrelationID)
}

func TestUnixAcceptCancellation(t *testing.T) {
	dir := t.TempDir()

	ln, err := Listen(dir, "fs-2")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ln.Accept(ctx)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("accept did not observe cancellation")
	}
}

func TestUnixListenReplacesStaleSocket(t *testing.T) {
	dir := t.TempDir()

	first, err := Listen(dir, "fs-3")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A second Listen for the same id must succeed after the first closed.
	second, err := Listen(dir, "fs-3")
	require.NoError(t, err)
	second.Close()
}

func TestUnixListenRequiresAgentID(t *testing.T) {
	_, err := Listen(t.TempDir(), "")
	assert.Error(t, err)
}

func TestRecvAfterPeerSendsEOF(t *testing.T) {
	dir := t.TempDir()

	ln, err := Listen(dir, "fs-4")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		s, err := ln.Accept(context.Background())
		if err == nil {
			s.Close()
		}
	}()

	agentSide, err := Dial(context.Background(), dir, "fs-4")
	require.NoError(t, err)
	defer agentSide.Close()

	_, err = agentSide.Recv()
	assert.Equal(t, io.EOF, err)
}
