// ABOUTME: Tests for the protocol engine: routing, duplicates, fan-out, sweeps.
// ABOUTME: Covers synthetic failures, single-probe eviction, and Stop teardown.

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentic-director/internal/mcp"
	"github.com/2389/agentic-director/internal/transport"
)

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e := New(opts)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)
	return e
}

// attachAgent wires a healthy scripted agent into the engine and returns
// its stream for direct manipulation.
func attachAgent(t *testing.T, e *Engine, agentID string) transport.Stream {
	t.Helper()
	directorSide, agentSide := transport.Pipe()
	go respond(agentSide, echoResponder)

	conn := Attach(agentID, directorSide, nil)
	require.NoError(t, e.RegisterConnection(agentID, conn))
	return agentSide
}

func TestEngineSendToUnknownAgent(t *testing.T) {
	e := newTestEngine(t, Options{})

	msg := mcp.NewPing("director", "ghost")
	resp := e.SendMessage(context.Background(), "ghost", msg, time.Second)

	assert.False(t, resp.Success)
	assert.Equal(t, mcp.CodeAgentNotConnected, resp.ErrorCode)
	assert.Equal(t, msg.ID, resp.MessageID)
}

func TestEngineRoutesToConnection(t *testing.T) {
	e := newTestEngine(t, Options{})
	attachAgent(t, e, "fs-1")

	resp := e.SendMessage(context.Background(), "fs-1", mcp.NewPing("director", "fs-1"), time.Second)
	assert.True(t, resp.Success)
	assert.True(t, e.IsOnline("fs-1"))
	assert.Equal(t, []string{"fs-1"}, e.ConnectedAgents())
}

func TestEngineRejectsDuplicateConnection(t *testing.T) {
	e := newTestEngine(t, Options{})
	attachAgent(t, e, "fs-1")

	directorSide, agentSide := transport.Pipe()
	defer agentSide.Close()
	second := Attach("fs-1", directorSide, nil)
	defer second.Close()

	err := e.RegisterConnection("fs-1", second)
	require.ErrorIs(t, err, ErrAgentAlreadyConnected)

	// The original connection still serves traffic.
	resp := e.SendMessage(context.Background(), "fs-1", mcp.NewPing("director", "fs-1"), time.Second)
	assert.True(t, resp.Success)
}

func TestEngineHealthSweepEvictsOnSingleFailure(t *testing.T) {
	e := newTestEngine(t, Options{
		HealthInterval: 20 * time.Millisecond,
		PingTimeout:    30 * time.Millisecond,
	})

	directorSide, agentSide := transport.Pipe()
	// Agent that never answers pings.
	go respond(agentSide, func(*mcp.Message) *mcp.Message { return nil })

	conn := Attach("deadbeat", directorSide, nil)
	require.NoError(t, e.RegisterConnection("deadbeat", conn))
	require.True(t, e.IsOnline("deadbeat"))

	assert.Eventually(t, func() bool { return !e.IsOnline("deadbeat") },
		2*time.Second, 10*time.Millisecond, "failed probe must evict within a sweep")

	// The slot is freed: a second registration for the id succeeds.
	attachAgent(t, e, "deadbeat")
	assert.True(t, e.IsOnline("deadbeat"))
}

func TestEngineHealthSweepKeepsHealthyAgents(t *testing.T) {
	e := newTestEngine(t, Options{
		HealthInterval: 20 * time.Millisecond,
		PingTimeout:    200 * time.Millisecond,
	})
	attachAgent(t, e, "fs-1")

	time.Sleep(150 * time.Millisecond)
	assert.True(t, e.IsOnline("fs-1"), "healthy agent must survive sweeps")
}

func TestEngineSubscribeFanOut(t *testing.T) {
	e := newTestEngine(t, Options{})

	directorSide, agentSide := transport.Pipe()
	conn := Attach("fs-1", directorSide, nil)
	require.NoError(t, e.RegisterConnection("fs-1", conn))
	defer agentSide.Close()

	var delivered atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)

	e.Subscribe("fs-1", func(msg *mcp.Message) {
		defer wg.Done()
		delivered.Add(1)
		panic("subscriber one misbehaves")
	})
	e.Subscribe("fs-1", func(msg *mcp.Message) {
		defer wg.Done()
		delivered.Add(1)
	})

	require.NoError(t, agentSide.Send(
		mcp.NewMessage(mcp.TypeAgentRegistration, "fs-1", "director", map[string]any{"id": "fs-1"})))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
		assert.Equal(t, int32(2), delivered.Load(), "a panicking subscriber must not block the rest")
	case <-time.After(time.Second):
		t.Fatal("fan-out did not reach all subscribers")
	}
}

func TestEngineDeliversEventsPushedBeforeRegistration(t *testing.T) {
	e := newTestEngine(t, Options{})

	directorSide, agentSide := transport.Pipe()
	defer agentSide.Close()
	conn := Attach("fs-1", directorSide, nil)

	received := make(chan *mcp.Message, 1)
	e.Subscribe("fs-1", func(msg *mcp.Message) { received <- msg })

	// The agent pushes an event as soon as its stream is up; the read
	// loop consumes it before the engine wires the fan-out.
	require.NoError(t, agentSide.Send(
		mcp.NewMessage(mcp.TypeAgentRegistration, "fs-1", "director", map[string]any{"id": "fs-1"})))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, e.RegisterConnection("fs-1", conn))

	select {
	case msg := <-received:
		assert.Equal(t, mcp.TypeAgentRegistration, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("event pushed before registration was lost")
	}
}

func TestEngineRejectsRegistrationAfterStop(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Start(context.Background()))
	e.Stop()

	directorSide, agentSide := transport.Pipe()
	defer agentSide.Close()
	conn := Attach("fs-1", directorSide, nil)
	defer conn.Close()

	require.ErrorIs(t, e.RegisterConnection("fs-1", conn), ErrEngineStopped)
	assert.False(t, e.IsOnline("fs-1"))
}

func TestEngineSignalDisconnect(t *testing.T) {
	e := newTestEngine(t, Options{})

	directorSide, agentSide := transport.Pipe()
	conn := Attach("fs-1", directorSide, nil)
	require.NoError(t, e.RegisterConnection("fs-1", conn))

	received := make(chan *mcp.Message, 1)
	go func() {
		msg, err := agentSide.Recv()
		if err == nil {
			received <- msg
		}
	}()

	e.SignalDisconnect("fs-1")

	select {
	case msg := <-received:
		assert.Equal(t, mcp.TypeAgentDisconnect, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("disconnect signal was not delivered")
	}
	assert.False(t, e.IsOnline("fs-1"))
}

func TestEngineStopClosesEverything(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Start(context.Background()))

	attachAgent(t, e, "fs-1")
	attachAgent(t, e, "fs-2")

	e.Stop()

	assert.False(t, e.IsOnline("fs-1"))
	assert.False(t, e.IsOnline("fs-2"))
	assert.Empty(t, e.ConnectedAgents())

	// Stop is idempotent.
	e.Stop()
}

func TestEngineStartTwice(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	assert.Error(t, e.Start(context.Background()))
}

func TestEngineOpenChannelEndToEnd(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, Options{
		SocketDir:      dir,
		ConnectTimeout: 2 * time.Second,
	})

	require.NoError(t, e.OpenChannel("fs-5"))

	// The agent process dials and announces itself.
	var agentSide transport.Stream
	require.Eventually(t, func() bool {
		s, err := transport.Dial(context.Background(), dir, "fs-5")
		if err != nil {
			return false
		}
		agentSide = s
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer agentSide.Close()

	require.NoError(t, agentSide.Send(
		mcp.NewMessage(mcp.TypeAgentRegistration, "fs-5", "director", map[string]any{"id": "fs-5"})))
	go respond(agentSide, echoResponder)

	require.Eventually(t, func() bool { return e.IsOnline("fs-5") },
		2*time.Second, 20*time.Millisecond)

	resp := e.SendMessage(context.Background(), "fs-5", mcp.NewPing("director", "fs-5"), time.Second)
	assert.True(t, resp.Success)
}

func TestEngineOpenChannelWithoutSocketDirIsNoOp(t *testing.T) {
	e := newTestEngine(t, Options{})
	assert.NoError(t, e.OpenChannel("fs-1"))
	assert.False(t, e.IsOnline("fs-1"))
}

func TestEngineOpenChannelRequiresRunning(t *testing.T) {
	e := New(Options{SocketDir: t.TempDir()})
	assert.ErrorIs(t, e.OpenChannel("fs-1"), ErrEngineStopped)
}
