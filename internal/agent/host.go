// ABOUTME: Agent-side message pump serving an Agent implementation over a stream.
// ABOUTME: Registers, then answers commands, pings, and info requests until closed.

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/2389/agentic-director/internal/mcp"
	"github.com/2389/agentic-director/internal/transport"
)

// Host runs an Agent implementation against one transport stream. It is
// what a concrete agent process executes after dialing its channel.
type Host struct {
	desc   *Descriptor
	agent  Agent
	stream transport.Stream
	logger *slog.Logger
}

// NewHost binds an agent and its descriptor to a connected stream.
func NewHost(desc *Descriptor, a Agent, stream transport.Stream, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		desc:   desc,
		agent:  a,
		stream: stream,
		logger: logger.With("component", "agent-host", "agent_id", desc.ID),
	}
}

// Run announces the agent and serves inbound messages until the stream
// closes, the director signals agent_disconnect, or ctx is cancelled.
// Commands are handled one at a time: responses pair with requests in
// issuance order.
func (h *Host) Run(ctx context.Context) error {
	reg := mcp.NewMessage(mcp.TypeAgentRegistration, h.desc.ID, "director", map[string]any{
		"id":           h.desc.ID,
		"name":         h.desc.Name,
		"version":      h.desc.Version,
		"capabilities": capabilityNames(h.desc.Capabilities),
	})
	if err := h.stream.Send(reg); err != nil {
		return fmt.Errorf("announcing agent: %w", err)
	}

	// Unblock Recv when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { h.stream.Close() })
	defer stop()

	for {
		msg, err := h.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				h.logger.Info("stream closed, shutting down")
				return h.agent.Shutdown(context.WithoutCancel(ctx))
			}
			return fmt.Errorf("receiving message: %w", err)
		}

		switch msg.Type {
		case mcp.TypeCommandExecution:
			h.handleCommand(ctx, msg)

		case mcp.TypePing, mcp.TypeHealthCheck:
			h.handleHealth(ctx, msg)

		case mcp.TypeAgentInfoRequest:
			h.handleInfo(msg)

		case mcp.TypeAgentDisconnect:
			h.logger.Info("disconnect requested by director")
			h.stream.Close()
			return h.agent.Shutdown(context.WithoutCancel(ctx))

		default:
			h.logger.Warn("ignoring message of unexpected type", "type", msg.Type)
		}
	}
}

func (h *Host) handleCommand(ctx context.Context, msg *mcp.Message) {
	cmd, err := CommandFromPayload(msg.Payload)
	if err != nil {
		h.reply(msg, mcp.TypeCommandResult, mcp.Failure(msg.CorrelationID, mcp.CodeMissingParameter, err.Error()))
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, cmd.Timeout)
	result := h.agent.Execute(execCtx, cmd)
	cancel()

	h.reply(msg, mcp.TypeCommandResult, ResultToResponse(msg.CorrelationID, result))
}

func (h *Host) handleHealth(ctx context.Context, msg *mcp.Message) {
	status := h.agent.Health(ctx)
	resp := &mcp.Response{
		MessageID: msg.CorrelationID,
		Success:   status.Healthy,
		Data: map[string]any{
			"healthy":       status.Healthy,
			"lastHeartbeat": status.LastHeartbeat.Format(time.RFC3339Nano),
		},
		Timestamp: time.Now().UTC(),
	}
	if !status.Healthy {
		resp.Message = "agent reports unhealthy"
		resp.ErrorCode = mcp.CodeExecutionFailed
	}
	h.reply(msg, mcp.TypeHealthStatus, resp)
}

func (h *Host) handleInfo(msg *mcp.Message) {
	resp := mcp.Succeed(msg.CorrelationID, "", map[string]any{
		"id":           h.desc.ID,
		"name":         h.desc.Name,
		"version":      h.desc.Version,
		"capabilities": capabilityNames(h.desc.Capabilities),
	})
	h.reply(msg, mcp.TypeAgentInfo, resp)
}

func (h *Host) reply(req *mcp.Message, t mcp.MessageType, resp *mcp.Response) {
	if err := h.stream.Send(req.Reply(t, resp.ToPayload())); err != nil {
		h.logger.Error("sending reply", "type", t, "error", err)
	}
}

func capabilityNames(caps []Capability) []string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.Name
	}
	return names
}
