// ABOUTME: Protocol engine owning the live connection set and its lifecycle loops.
// ABOUTME: Routes outbound messages, fans out events, sweeps health, evicts the dead.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/agentic-director/internal/agent"
	"github.com/2389/agentic-director/internal/mcp"
	"github.com/2389/agentic-director/internal/transport"
)

// ErrAgentAlreadyConnected indicates a live connection already exists for
// the agent id. The original connection is kept; the new one is rejected.
var ErrAgentAlreadyConnected = errors.New("agent already connected")

// ErrEngineStopped indicates the engine is not running.
var ErrEngineStopped = errors.New("engine stopped")

const (
	// DefaultHealthInterval is the sweep period.
	DefaultHealthInterval = time.Second
	// DefaultPingTimeout bounds one health probe.
	DefaultPingTimeout = 2 * time.Second
	// DefaultConnectTimeout bounds the wait for an agent process to dial
	// its channel after registration.
	DefaultConnectTimeout = 30 * time.Second
	// acceptRetryDelay spaces retries of the per-channel acceptance loop
	// after generic errors.
	acceptRetryDelay = time.Second
)

// Options configures an Engine.
type Options struct {
	// Source is the identity stamped on outbound messages.
	Source string
	// SocketDir is where per-agent channel sockets live. Empty disables
	// socket channels; connections are then attached explicitly.
	SocketDir string
	// HealthInterval is the sweep period (default 1s).
	HealthInterval time.Duration
	// PingTimeout bounds one health probe (default 2s).
	PingTimeout time.Duration
	// ConnectTimeout bounds the acceptance wait per channel (default 30s).
	ConnectTimeout time.Duration
	// Logger receives engine logs. Nil means slog.Default().
	Logger *slog.Logger
}

// Handler receives inbound event messages for a subscribed agent.
type Handler func(*mcp.Message)

// Engine owns all live agent connections.
type Engine struct {
	source         string
	socketDir      string
	healthInterval time.Duration
	pingTimeout    time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection

	// opLocks serializes register-vs-evict for one agent id without
	// serializing unrelated agents.
	opMu    sync.Mutex
	opLocks map[string]*sync.Mutex

	subsMu sync.RWMutex
	subs   map[string][]Handler

	chanMu      sync.Mutex
	chanCancels map[string]context.CancelFunc

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	accepts *errgroup.Group
	acceptC context.Context
}

// New creates an engine. Start must be called before channels are opened.
func New(opts Options) *Engine {
	if opts.Source == "" {
		opts.Source = "director"
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = DefaultPingTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		source:         opts.Source,
		socketDir:      opts.SocketDir,
		healthInterval: opts.HealthInterval,
		pingTimeout:    opts.PingTimeout,
		connectTimeout: opts.ConnectTimeout,
		logger:         opts.Logger.With("component", "engine"),
		conns:          make(map[string]*Connection),
		opLocks:        make(map[string]*sync.Mutex),
		subs:           make(map[string][]Handler),
		chanCancels:    make(map[string]context.CancelFunc),
	}
}

// Start launches the background loops: the health sweep and the group
// that carries per-channel acceptance goroutines.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		return fmt.Errorf("engine already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.accepts, e.acceptC = errgroup.WithContext(runCtx)
	e.running = true

	e.loops.Add(1)
	go e.healthLoop(runCtx)

	e.logger.Info("engine started",
		"health_interval", e.healthInterval,
		"ping_timeout", e.pingTimeout,
	)
	return nil
}

// Stop cancels the loops, closes every connection, and clears all
// connection and subscription state.
func (e *Engine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	e.runMu.Unlock()

	e.loops.Wait()
	_ = e.accepts.Wait()

	e.mu.Lock()
	conns := e.conns
	e.conns = make(map[string]*Connection)
	e.mu.Unlock()

	var g errgroup.Group
	for _, conn := range conns {
		g.Go(conn.Close)
	}
	_ = g.Wait()

	e.subsMu.Lock()
	e.subs = make(map[string][]Handler)
	e.subsMu.Unlock()

	e.logger.Info("engine stopped", "closed_connections", len(conns))
}

// OpenChannel creates the agent's channel listener and spawns the
// acceptance goroutine that waits for the agent process to dial. The
// acceptance loop retries after a delay on generic errors; a duplicate
// live connection ends it. No-op when the engine runs without a socket
// directory.
func (e *Engine) OpenChannel(agentID string) error {
	if e.socketDir == "" {
		return nil
	}

	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return ErrEngineStopped
	}
	accepts, acceptCtx := e.accepts, e.acceptC
	e.runMu.Unlock()

	if e.IsOnline(agentID) {
		return fmt.Errorf("open channel %s: %w", agentID, ErrAgentAlreadyConnected)
	}

	chanCtx, cancel := context.WithCancel(acceptCtx)
	e.chanMu.Lock()
	if prev, ok := e.chanCancels[agentID]; ok {
		prev()
	}
	e.chanCancels[agentID] = cancel
	e.chanMu.Unlock()

	accepts.Go(func() error {
		defer e.dropChannelCancel(agentID)
		e.acceptLoop(chanCtx, agentID)
		return nil
	})
	return nil
}

// dropChannelCancel forgets the acceptance-loop cancel for an id.
func (e *Engine) dropChannelCancel(agentID string) {
	e.chanMu.Lock()
	defer e.chanMu.Unlock()
	if cancel, ok := e.chanCancels[agentID]; ok {
		cancel()
		delete(e.chanCancels, agentID)
	}
}

// acceptLoop waits for one agent process on its channel, registering the
// resulting connection. It ends on cancellation, on success, or once the
// id already has a live connection.
func (e *Engine) acceptLoop(ctx context.Context, agentID string) {
	for ctx.Err() == nil {
		if e.IsOnline(agentID) {
			return
		}

		ln, err := transport.Listen(e.socketDir, agentID)
		if err != nil {
			e.logger.Error("opening channel listener", "agent_id", agentID, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		conn := NewConnection(agentID, ln, e.logger)
		if err := conn.Connect(ctx, e.connectTimeout); err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("agent did not connect, retrying", "agent_id", agentID, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		if err := e.RegisterConnection(agentID, conn); err != nil {
			conn.Close()
			e.logger.Warn("rejecting connection", "agent_id", agentID, "error", err)
		}
		return
	}
}

// RegisterConnection adds a live connection for an agent id and wires its
// inbound events to the engine's fan-out. A second connection for an
// already-connected id is rejected, not replaced; a stopped engine rejects
// all registrations.
func (e *Engine) RegisterConnection(agentID string, conn *Connection) error {
	if agentID == "" || conn == nil {
		return fmt.Errorf("register connection: agent id and connection are required")
	}

	lock := e.opLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	// Holding runMu across the insert pins the running state: Stop flips
	// it before swapping the connection map, so a registration lands
	// either in the map Stop tears down or in this error.
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return fmt.Errorf("register connection %s: %w", agentID, ErrEngineStopped)
	}

	e.mu.Lock()
	if existing, ok := e.conns[agentID]; ok && existing.Connected() {
		e.mu.Unlock()
		e.runMu.Unlock()
		return fmt.Errorf("agent %s: %w", agentID, ErrAgentAlreadyConnected)
	}
	// Wire the fan-out before the insert completes; events the read loop
	// consumed ahead of registration replay through this callback.
	conn.OnEvent(func(msg *mcp.Message) { e.fanOut(agentID, msg) })
	e.conns[agentID] = conn
	total := len(e.conns)
	e.mu.Unlock()
	e.runMu.Unlock()

	e.logger.Info("agent connection registered", "agent_id", agentID, "total_connections", total)
	return nil
}

// CloseConnection evicts one agent's connection and ends any acceptance
// loop still waiting on its channel. Unknown ids are a no-op.
func (e *Engine) CloseConnection(agentID string) {
	e.dropChannelCancel(agentID)

	lock := e.opLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	conn, ok := e.conns[agentID]
	if ok {
		delete(e.conns, agentID)
	}
	e.mu.Unlock()

	if ok {
		conn.Close()
		e.logger.Info("agent connection closed", "agent_id", agentID)
	}
}

// SendMessage routes a message to the agent's connection. An absent
// connection yields AGENT_NOT_CONNECTED without any transport I/O; all
// transport faults come back as failed responses, never as errors.
func (e *Engine) SendMessage(ctx context.Context, agentID string, msg *mcp.Message, timeout time.Duration) *mcp.Response {
	e.mu.RLock()
	conn, ok := e.conns[agentID]
	e.mu.RUnlock()

	if !ok {
		return mcp.Failure(msg.ID, mcp.CodeAgentNotConnected, fmt.Sprintf("no connection for agent %s", agentID))
	}
	return conn.SendMessage(ctx, msg, timeout)
}

// SendCommand wraps a command in a command_execution message and sends it.
func (e *Engine) SendCommand(ctx context.Context, agentID string, cmd *agent.Command) *mcp.Response {
	msg := mcp.NewMessage(mcp.TypeCommandExecution, e.source, agentID, agent.CommandPayload(cmd))
	return e.SendMessage(ctx, agentID, msg, cmd.Timeout)
}

// SignalDisconnect asks an agent to shut down gracefully and closes its
// connection. Best effort; the signal is fire-and-forget.
func (e *Engine) SignalDisconnect(agentID string) {
	e.mu.RLock()
	conn, ok := e.conns[agentID]
	e.mu.RUnlock()

	if ok {
		msg := mcp.NewMessage(mcp.TypeAgentDisconnect, e.source, agentID, nil)
		if err := conn.Post(msg); err != nil {
			e.logger.Debug("disconnect signal not delivered", "agent_id", agentID, "error", err)
		}
	}
	e.CloseConnection(agentID)
}

// IsOnline reports whether an agent currently has a live connection.
func (e *Engine) IsOnline(agentID string) bool {
	e.mu.RLock()
	conn, ok := e.conns[agentID]
	e.mu.RUnlock()
	return ok && conn.Connected()
}

// ConnectedAgents returns the ids of all live connections.
func (e *Engine) ConnectedAgents() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.conns))
	for id, conn := range e.conns {
		if conn.Connected() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Subscribe appends a handler for an agent's inbound events. The list is
// append-only per id; there is no unsubscribe.
func (e *Engine) Subscribe(agentID string, h Handler) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs[agentID] = append(e.subs[agentID], h)
}

// fanOut delivers one event concurrently to all current subscribers. A
// panicking handler does not prevent delivery to the rest.
func (e *Engine) fanOut(agentID string, msg *mcp.Message) {
	e.subsMu.RLock()
	handlers := make([]Handler, len(e.subs[agentID]))
	copy(handlers, e.subs[agentID])
	e.subsMu.RUnlock()

	for _, h := range handlers {
		h := h
		go func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("event handler panicked", "agent_id", agentID, "panic", r)
				}
			}()
			h(msg)
		}()
	}
}

// healthLoop wakes on the sweep interval until the engine stops.
func (e *Engine) healthLoop(ctx context.Context) {
	defer e.loops.Done()

	ticker := time.NewTicker(e.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

// sweep probes every live connection once, in parallel, and evicts any
// that fails its single probe in the same pass. No retry budget, no
// backoff: the agent process re-registers if it is still alive.
func (e *Engine) sweep(ctx context.Context) {
	e.mu.RLock()
	targets := make([]*Connection, 0, len(e.conns))
	for _, conn := range e.conns {
		if conn.Connected() {
			targets = append(targets, conn)
		}
	}
	e.mu.RUnlock()

	var wg sync.WaitGroup
	for _, conn := range targets {
		conn := conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !conn.CheckHealth(ctx, e.pingTimeout) {
				e.logger.Warn("health probe failed, evicting", "agent_id", conn.AgentID())
				e.CloseConnection(conn.AgentID())
			}
		}()
	}
	wg.Wait()
}

// opLock returns the per-agent mutex serializing register/evict for one
// id without serializing unrelated agents.
func (e *Engine) opLock(agentID string) *sync.Mutex {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	lock, ok := e.opLocks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		e.opLocks[agentID] = lock
	}
	return lock
}
