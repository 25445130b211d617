// ABOUTME: Represents a single connected agent channel and its read loop.
// ABOUTME: Correlates responses by correlation id; faults become failed responses.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/agentic-director/internal/mcp"
	"github.com/2389/agentic-director/internal/transport"
)

// State is a connection's position in its lifecycle. There is no recovery
// path: a Closed connection stays closed.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventFunc receives inbound event messages from a connection's read loop.
type EventFunc func(*mcp.Message)

// Connection is the director-side channel to one agent.
type Connection struct {
	agentID string
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	stream  transport.Stream
	ln      *transport.Listener
	pending map[string]chan *mcp.Message
	eventFn EventFunc

	// preEvents holds events read before the event callback is wired.
	// The read loop starts with the stream, ahead of engine registration,
	// so early pushes land here and flush on OnEvent.
	preEvents []*mcp.Message

	// sendSlot serializes outbound request/response round trips so that
	// responses pair with requests in issuance order (no pipelining).
	sendSlot chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewConnection creates a connection that will accept the agent process
// on the given channel listener when Connect is called.
func NewConnection(agentID string, ln *transport.Listener, logger *slog.Logger) *Connection {
	c := newConnection(agentID, logger)
	c.ln = ln
	return c
}

// Attach wraps an already-established stream (in-process pipes, tests)
// and starts its read loop immediately.
func Attach(agentID string, stream transport.Stream, logger *slog.Logger) *Connection {
	c := newConnection(agentID, logger)
	c.stream = stream
	c.state = StateConnected
	go c.readLoop(stream)
	return c
}

func newConnection(agentID string, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		agentID:  agentID,
		logger:   logger.With("agent_id", agentID),
		state:    StateDisconnected,
		pending:  make(map[string]chan *mcp.Message),
		sendSlot: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// AgentID returns the id of the agent this channel belongs to.
func (c *Connection) AgentID() string { return c.agentID }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the channel is live.
func (c *Connection) Connected() bool { return c.State() == StateConnected }

// OnEvent registers the inbound-event callback and replays any events the
// read loop consumed before the wiring existed. The engine calls this
// during connection registration.
func (c *Connection) OnEvent(fn EventFunc) {
	c.mu.Lock()
	c.eventFn = fn
	buffered := c.preEvents
	c.preEvents = nil
	c.mu.Unlock()

	for _, msg := range buffered {
		fn(msg)
	}
}

// Connect waits for the agent process to dial the channel, verifies its
// registration announcement, and starts the read loop.
func (c *Connection) Connect(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("connect %s: connection is %s", c.agentID, state)
	}
	if c.ln == nil {
		c.mu.Unlock()
		return fmt.Errorf("connect %s: no channel listener", c.agentID)
	}
	c.state = StateConnecting
	ln := c.ln
	c.mu.Unlock()

	acceptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream, err := ln.Accept(acceptCtx)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("accepting agent %s: %w", c.agentID, err)
	}

	// First message must be the agent's registration announcement for
	// the expected id.
	if err := c.awaitRegistration(stream, timeout); err != nil {
		stream.Close()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.stream = stream
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("agent channel connected", "channel", transport.ChannelName(c.agentID))
	go c.readLoop(stream)
	return nil
}

func (c *Connection) awaitRegistration(stream transport.Stream, timeout time.Duration) error {
	type recv struct {
		msg *mcp.Message
		err error
	}
	ch := make(chan recv, 1)
	go func() {
		msg, err := stream.Recv()
		ch <- recv{msg, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("reading registration from %s: %w", c.agentID, r.err)
		}
		if r.msg.Type != mcp.TypeAgentRegistration {
			return fmt.Errorf("agent %s: first message must be %s, got %s",
				c.agentID, mcp.TypeAgentRegistration, r.msg.Type)
		}
		if id, _ := r.msg.Payload["id"].(string); id != c.agentID {
			return fmt.Errorf("agent %s: registration announced mismatched id %q", c.agentID, id)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("agent %s: timed out waiting for registration", c.agentID)
	}
}

// readLoop drains the stream, routing responses to pending requests and
// everything else to the event callback. It exits when the stream closes.
func (c *Connection) readLoop(stream transport.Stream) {
	for {
		msg, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && c.State() != StateClosed {
				c.logger.Warn("read loop ending", "error", err)
			}
			c.Close()
			return
		}

		if msg.IsResponse() {
			c.routeResponse(msg)
			continue
		}

		c.mu.Lock()
		fn := c.eventFn
		if fn == nil {
			c.preEvents = append(c.preEvents, msg)
		}
		c.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
	}
}

// routeResponse hands a response to the in-flight request that issued it.
// Responses for unknown correlation ids are logged and discarded.
func (c *Connection) routeResponse(msg *mcp.Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.CorrelationID]
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("received response for unknown request",
			"correlation_id", msg.CorrelationID,
			"type", msg.Type,
		)
		return
	}

	select {
	case ch <- msg:
	default:
		c.logger.Warn("duplicate response dropped", "correlation_id", msg.CorrelationID)
	}
}

// SendMessage writes one request and waits synchronously for its response,
// matched by correlation id. Transport faults, timeouts, and malformed
// replies become failed responses; the caller never observes an error.
func (c *Connection) SendMessage(ctx context.Context, msg *mcp.Message, timeout time.Duration) *mcp.Response {
	if !c.Connected() {
		return mcp.Failure(msg.ID, mcp.CodeAgentNotConnected, fmt.Sprintf("agent %s is not connected", c.agentID))
	}

	// Take the single send slot: one round trip at a time per channel.
	select {
	case c.sendSlot <- struct{}{}:
		defer func() { <-c.sendSlot }()
	case <-ctx.Done():
		return mcp.Failure(msg.ID, mcp.CodeCommunicationError, "send cancelled while queued")
	case <-c.done:
		return mcp.Failure(msg.ID, mcp.CodeAgentNotConnected, fmt.Sprintf("agent %s connection closed", c.agentID))
	}

	ch := make(chan *mcp.Message, 1)
	c.mu.Lock()
	stream := c.stream
	c.pending[msg.CorrelationID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.CorrelationID)
		c.mu.Unlock()
	}()

	if err := stream.Send(msg); err != nil {
		return mcp.Failure(msg.ID, mcp.CodeSendFailed, fmt.Sprintf("sending to agent %s: %v", c.agentID, err))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		resp := mcp.ResponseFromMessage(reply)
		if resp.MessageID == "" {
			resp.MessageID = msg.ID
		}
		return resp
	case <-timer.C:
		return mcp.Failure(msg.ID, mcp.CodeTimeout, fmt.Sprintf("agent %s did not respond within %s", c.agentID, timeout))
	case <-ctx.Done():
		return mcp.Failure(msg.ID, mcp.CodeCommunicationError, "send cancelled while awaiting response")
	case <-c.done:
		return mcp.Failure(msg.ID, mcp.CodeAgentNotConnected, fmt.Sprintf("agent %s connection closed", c.agentID))
	}
}

// Post writes one message without waiting for a response. Used for
// fire-and-forget signals such as agent_disconnect.
func (c *Connection) Post(msg *mcp.Message) error {
	c.mu.Lock()
	stream := c.stream
	state := c.state
	c.mu.Unlock()

	if state != StateConnected {
		return fmt.Errorf("post to %s: connection is %s", c.agentID, state)
	}
	return stream.Send(msg)
}

// CheckHealth sends one ping and reports whether the agent answered
// successfully within the timeout.
func (c *Connection) CheckHealth(ctx context.Context, timeout time.Duration) bool {
	resp := c.SendMessage(ctx, mcp.NewPing("director", c.agentID), timeout)
	return resp.Success
}

// Close releases the transport and the channel listener. It is idempotent
// and safe to call concurrently with an in-flight read loop; waiters on
// in-flight sends observe the closure.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		stream := c.stream
		ln := c.ln
		c.mu.Unlock()

		close(c.done)
		if stream != nil {
			stream.Close()
		}
		if ln != nil {
			ln.Close()
		}
		c.logger.Debug("connection closed")
	})
	return nil
}
