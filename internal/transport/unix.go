// ABOUTME: Unix-domain-socket transport with deterministic per-agent channel names.
// ABOUTME: The director listens on each agent's channel; the agent process dials it.

package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// channelPrefix is the deterministic naming scheme shared by both sides.
const channelPrefix = "AgenticAI_Agent_"

// ChannelName returns the channel identity for an agent id.
func ChannelName(agentID string) string {
	return channelPrefix + agentID
}

// SocketPath returns the filesystem path of an agent's channel socket.
func SocketPath(dir, agentID string) string {
	return filepath.Join(dir, ChannelName(agentID)+".sock")
}

// AgentIDFromSocket extracts the agent id from a channel socket filename.
// ok is false for names outside the channel naming scheme.
func AgentIDFromSocket(name string) (string, bool) {
	if !strings.HasPrefix(name, channelPrefix) || !strings.HasSuffix(name, ".sock") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, channelPrefix), ".sock")
	return id, id != ""
}

// Listener waits for one agent process to dial its channel.
type Listener struct {
	agentID string
	path    string
	ln      net.Listener

	closeOnce sync.Once
	closeErr  error
}

// Listen opens the channel socket for an agent. A stale socket file from a
// previous run is removed first.
func Listen(dir, agentID string) (*Listener, error) {
	if agentID == "" {
		return nil, fmt.Errorf("listen: agent id is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating socket dir %s: %w", dir, err)
	}

	path := SocketPath(dir, agentID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}

	return &Listener{agentID: agentID, path: path, ln: ln}, nil
}

// AgentID returns the agent id this listener belongs to.
func (l *Listener) AgentID() string { return l.agentID }

// Accept blocks until the agent process connects or ctx is cancelled.
func (l *Listener) Accept(ctx context.Context) (Stream, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		l.Close()
		// Drain the accept result so a racing connection is not leaked.
		if r := <-ch; r.err == nil {
			r.conn.Close()
		}
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("accepting on %s: %w", l.path, r.err)
		}
		return NewStream(r.conn), nil
	}
}

// Close shuts the listener and removes the socket file. Idempotent.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.ln.Close()
		os.Remove(l.path)
	})
	return l.closeErr
}

// Dial connects to an agent's channel from the agent side.
func Dial(ctx context.Context, dir, agentID string) (Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", SocketPath(dir, agentID))
	if err != nil {
		return nil, fmt.Errorf("dialing channel %s: %w", ChannelName(agentID), err)
	}
	return NewStream(conn), nil
}
