// ABOUTME: Tests for the agent-side host pump over an in-memory stream pair.
// ABOUTME: Covers registration, command dispatch, health probes, and disconnect.

package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentic-director/internal/mcp"
	"github.com/2389/agentic-director/internal/transport"
)

// echoAgent is a minimal Agent that echoes command parameters back.
type echoAgent struct {
	healthy   bool
	shutdowns int
	lastCmd   *Command
}

func (a *echoAgent) Initialize(ctx context.Context) error { return nil }

func (a *echoAgent) Execute(ctx context.Context, cmd *Command) *ExecutionResult {
	a.lastCmd = cmd
	if cmd.Type == "fail" {
		return NewFailureResult(cmd.ID, mcp.CodeExecutionFailed, "asked to fail")
	}
	return NewSuccessResult(cmd.ID, "echoed", map[string]any{"echo": cmd.Parameters})
}

func (a *echoAgent) Shutdown(ctx context.Context) error {
	a.shutdowns++
	return nil
}

func (a *echoAgent) Health(ctx context.Context) HealthStatus {
	return HealthStatus{Healthy: a.healthy, LastHeartbeat: time.Now().UTC()}
}

func startHost(t *testing.T, a *echoAgent) (transport.Stream, func()) {
	t.Helper()

	directorSide, agentSide := transport.Pipe()
	desc := &Descriptor{
		ID:           "echo-1",
		Name:         "Echo Agent",
		Version:      "1.0.0",
		Capabilities: []Capability{{Name: "echo"}},
		Status:       StatusReady,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewHost(desc, a, agentSide, nil).Run(ctx)
	}()

	// Consume the registration announcement.
	reg, err := directorSide.Recv()
	require.NoError(t, err)
	require.Equal(t, mcp.TypeAgentRegistration, reg.Type)
	require.Equal(t, "echo-1", reg.Source)

	return directorSide, func() {
		cancel()
		directorSide.Close()
		<-done
	}
}

func roundTrip(t *testing.T, s transport.Stream, req *mcp.Message) *mcp.Message {
	t.Helper()
	require.NoError(t, s.Send(req))
	resp, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, req.CorrelationID, resp.CorrelationID)
	return resp
}

func TestHostExecutesCommands(t *testing.T) {
	a := &echoAgent{healthy: true}
	director, stop := startHost(t, a)
	defer stop()

	cmd := NewCommand("echo", map[string]any{"text": "hello"}, time.Second)
	req := mcp.NewMessage(mcp.TypeCommandExecution, "director", "echo-1", CommandPayload(cmd))

	resp := roundTrip(t, director, req)
	assert.Equal(t, mcp.TypeCommandResult, resp.Type)

	decoded := mcp.ResponseFromMessage(resp)
	assert.True(t, decoded.Success)
	assert.Equal(t, cmd.ID, a.lastCmd.ID)

	echoed, ok := decoded.Data["echo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello", echoed["text"])
}

func TestHostReportsCommandFailure(t *testing.T) {
	a := &echoAgent{healthy: true}
	director, stop := startHost(t, a)
	defer stop()

	cmd := NewCommand("fail", nil, time.Second)
	resp := roundTrip(t, director, mcp.NewMessage(mcp.TypeCommandExecution, "director", "echo-1", CommandPayload(cmd)))

	decoded := mcp.ResponseFromMessage(resp)
	assert.False(t, decoded.Success)
	assert.Equal(t, mcp.CodeExecutionFailed, decoded.ErrorCode)
}

func TestHostRejectsMalformedCommand(t *testing.T) {
	a := &echoAgent{healthy: true}
	director, stop := startHost(t, a)
	defer stop()

	req := mcp.NewMessage(mcp.TypeCommandExecution, "director", "echo-1", map[string]any{"parameters": map[string]any{}})
	resp := roundTrip(t, director, req)

	decoded := mcp.ResponseFromMessage(resp)
	assert.False(t, decoded.Success)
	assert.Equal(t, mcp.CodeMissingParameter, decoded.ErrorCode)
}

func TestHostAnswersPing(t *testing.T) {
	a := &echoAgent{healthy: true}
	director, stop := startHost(t, a)
	defer stop()

	resp := roundTrip(t, director, mcp.NewPing("director", "echo-1"))
	assert.Equal(t, mcp.TypeHealthStatus, resp.Type)
	assert.True(t, mcp.ResponseFromMessage(resp).Success)

	a.healthy = false
	resp = roundTrip(t, director, mcp.NewPing("director", "echo-1"))
	assert.False(t, mcp.ResponseFromMessage(resp).Success)
}

func TestHostAnswersInfoRequest(t *testing.T) {
	a := &echoAgent{healthy: true}
	director, stop := startHost(t, a)
	defer stop()

	resp := roundTrip(t, director, mcp.NewMessage(mcp.TypeAgentInfoRequest, "director", "echo-1", nil))
	assert.Equal(t, mcp.TypeAgentInfo, resp.Type)

	decoded := mcp.ResponseFromMessage(resp)
	assert.Equal(t, "echo-1", decoded.Data["id"])
	caps, ok := decoded.Data["capabilities"].([]any)
	require.True(t, ok)
	assert.Equal(t, "echo", caps[0])
}

func TestHostShutsDownOnDisconnect(t *testing.T) {
	a := &echoAgent{healthy: true}
	director, _ := startHost(t, a)
	defer director.Close()

	require.NoError(t, director.Send(mcp.NewMessage(mcp.TypeAgentDisconnect, "director", "echo-1", nil)))

	assert.Eventually(t, func() bool { return a.shutdowns == 1 },
		time.Second, 10*time.Millisecond)
}
