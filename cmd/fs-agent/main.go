// ABOUTME: File-system worker agent — dials its channel and serves read/write/list commands.
// ABOUTME: Usage: fs-agent [-socket-dir /run/agentic] [-id fs-1] [-root /]

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/agentic-director/internal/agent"
	"github.com/2389/agentic-director/internal/mcp"
	"github.com/2389/agentic-director/internal/transport"
)

func main() {
	socketDir := flag.String("socket-dir", "/run/agentic", "directory holding the director's channel sockets")
	agentID := flag.String("id", "fs-1", "agent id (decides the channel name)")
	name := flag.String("name", "Filesystem Agent", "agent display name")
	root := flag.String("root", "/", "directory the agent is allowed to touch")
	flag.Parse()

	if err := run(*socketDir, *agentID, *name, *root); err != nil {
		log.Fatal(err)
	}
}

func run(socketDir, agentID, name, root string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stream, err := transport.Dial(ctx, socketDir, agentID)
	if err != nil {
		return fmt.Errorf("connecting to channel %s: %w", transport.ChannelName(agentID), err)
	}

	desc := &agent.Descriptor{
		ID:   agentID,
		Name: name,
		Capabilities: []agent.Capability{
			{Name: "read_file", Description: "Read a file's contents"},
			{Name: "write_file", Description: "Write content to a file"},
			{Name: "list_dir", Description: "List a directory"},
		},
	}

	fsAgent := newFSAgent(root)
	fmt.Fprintf(os.Stderr, "serving channel %s\n", transport.ChannelName(agentID))
	return agent.NewHost(desc, fsAgent, stream, nil).Run(ctx)
}

// fsAgent serves filesystem commands under a root directory.
type fsAgent struct {
	root string
}

func newFSAgent(root string) *fsAgent {
	return &fsAgent{root: filepath.Clean(root)}
}

func (a *fsAgent) Initialize(ctx context.Context) error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("checking root %s: %w", a.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", a.root)
	}
	return nil
}

func (a *fsAgent) Execute(ctx context.Context, cmd *agent.Command) *agent.ExecutionResult {
	switch cmd.Type {
	case "read_file":
		return a.readFile(cmd)
	case "write_file":
		return a.writeFile(cmd)
	case "list_dir":
		return a.listDir(cmd)
	default:
		return agent.NewFailureResult(cmd.ID, mcp.CodeUnknownCommand,
			fmt.Sprintf("unknown command %q", cmd.Type))
	}
}

func (a *fsAgent) Shutdown(ctx context.Context) error { return nil }

func (a *fsAgent) Health(ctx context.Context) agent.HealthStatus {
	_, err := os.Stat(a.root)
	return agent.HealthStatus{Healthy: err == nil, LastHeartbeat: time.Now().UTC()}
}

// resolve confines a requested path to the agent's root. The requested
// path is treated as relative to the root, so traversal collapses inside
// it rather than escaping.
func (a *fsAgent) resolve(path string) (string, error) {
	full := filepath.Join(a.root, filepath.Clean("/"+path))
	rel, err := filepath.Rel(a.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the agent root", path)
	}
	return full, nil
}

func (a *fsAgent) readFile(cmd *agent.Command) *agent.ExecutionResult {
	path, failure := cmd.StringParam("path")
	if failure != nil {
		return failure
	}

	full, err := a.resolve(path)
	if err != nil {
		return agent.NewFailureResult(cmd.ID, mcp.CodeExecutionFailed, err.Error())
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return agent.NewFailureResult(cmd.ID, mcp.CodeExecutionFailed,
			fmt.Sprintf("reading %s: %v", path, err))
	}

	return agent.NewSuccessResult(cmd.ID, fmt.Sprintf("read %d bytes", len(data)), map[string]any{
		"path":    path,
		"content": string(data),
		"size":    len(data),
	})
}

func (a *fsAgent) writeFile(cmd *agent.Command) *agent.ExecutionResult {
	path, failure := cmd.StringParam("path")
	if failure != nil {
		return failure
	}
	content, failure := cmd.StringParam("content")
	if failure != nil {
		return failure
	}

	full, err := a.resolve(path)
	if err != nil {
		return agent.NewFailureResult(cmd.ID, mcp.CodeExecutionFailed, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return agent.NewFailureResult(cmd.ID, mcp.CodeExecutionFailed,
			fmt.Sprintf("creating parent of %s: %v", path, err))
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return agent.NewFailureResult(cmd.ID, mcp.CodeExecutionFailed,
			fmt.Sprintf("writing %s: %v", path, err))
	}

	return agent.NewSuccessResult(cmd.ID, fmt.Sprintf("wrote %d bytes", len(content)), map[string]any{
		"path": path,
		"size": len(content),
	})
}

func (a *fsAgent) listDir(cmd *agent.Command) *agent.ExecutionResult {
	path, failure := cmd.StringParam("path")
	if failure != nil {
		return failure
	}

	full, err := a.resolve(path)
	if err != nil {
		return agent.NewFailureResult(cmd.ID, mcp.CodeExecutionFailed, err.Error())
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return agent.NewFailureResult(cmd.ID, mcp.CodeExecutionFailed,
			fmt.Sprintf("listing %s: %v", path, err))
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}

	return agent.NewSuccessResult(cmd.ID, fmt.Sprintf("%d entries", len(names)), map[string]any{
		"path":    path,
		"entries": names,
	})
}
