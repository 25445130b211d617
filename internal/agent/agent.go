// ABOUTME: Agent capability-set interface plus the Command and ExecutionResult types.
// ABOUTME: Includes the payload codecs that carry commands and results on the wire.

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentic-director/internal/mcp"
)

// DefaultCommandTimeout bounds a command when the issuer does not set one.
const DefaultCommandTimeout = 30 * time.Second

// Agent is the capability set a worker implements. The director and the
// protocol engine depend only on this interface, never on a shared base
// implementation.
type Agent interface {
	// Initialize prepares the agent for work. Registration does not
	// proceed if it fails.
	Initialize(ctx context.Context) error

	// Execute runs one command. Failures are reported inside the result,
	// not as an error.
	Execute(ctx context.Context, cmd *Command) *ExecutionResult

	// Shutdown releases the agent's resources.
	Shutdown(ctx context.Context) error

	// Health reports liveness.
	Health(ctx context.Context) HealthStatus
}

// HealthStatus is an agent's self-reported liveness.
type HealthStatus struct {
	Healthy       bool      `json:"healthy"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// Command is one unit of work issued to an agent. It is created per plan
// step and consumed exactly once by the target agent.
type Command struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	Timeout    time.Duration  `json:"timeout"`
}

// NewCommand creates a command with a fresh id. A zero timeout falls back
// to DefaultCommandTimeout.
func NewCommand(cmdType string, params map[string]any, timeout time.Duration) *Command {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Command{
		ID:         uuid.New().String(),
		Type:       cmdType,
		Parameters: params,
		CreatedAt:  time.Now().UTC(),
		Timeout:    timeout,
	}
}

// StringParam returns a required string parameter, or a MISSING_PARAMETER
// failure result when it is absent or not a string.
func (c *Command) StringParam(key string) (string, *ExecutionResult) {
	v, ok := c.Parameters[key]
	if !ok {
		return "", NewFailureResult(c.ID, mcp.CodeMissingParameter, fmt.Sprintf("missing required parameter %q", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", NewFailureResult(c.ID, mcp.CodeMissingParameter, fmt.Sprintf("parameter %q must be a string", key))
	}
	return s, nil
}

// ExecutionResult is the immutable outcome of one command.
type ExecutionResult struct {
	CommandID   string         `json:"commandId"`
	Success     bool           `json:"success"`
	Message     string         `json:"message,omitempty"`
	ErrorCode   mcp.Code       `json:"errorCode,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
}

// Duration is the elapsed time between start and completion.
func (r *ExecutionResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// NewSuccessResult builds a successful result for a command id.
func NewSuccessResult(commandID, message string, output map[string]any) *ExecutionResult {
	now := time.Now().UTC()
	return &ExecutionResult{
		CommandID:   commandID,
		Success:     true,
		Message:     message,
		Output:      output,
		StartedAt:   now,
		CompletedAt: now,
	}
}

// NewFailureResult builds a failed result for a command id.
func NewFailureResult(commandID string, code mcp.Code, message string) *ExecutionResult {
	now := time.Now().UTC()
	return &ExecutionResult{
		CommandID:   commandID,
		Success:     false,
		Message:     message,
		ErrorCode:   code,
		StartedAt:   now,
		CompletedAt: now,
	}
}

// CommandPayload flattens a command into a message payload.
func CommandPayload(cmd *Command) map[string]any {
	return map[string]any{
		"commandId":   cmd.ID,
		"commandType": cmd.Type,
		"parameters":  cmd.Parameters,
		"timeoutMs":   cmd.Timeout.Milliseconds(),
	}
}

// CommandFromPayload reconstructs a command from a message payload.
// Missing optional fields degrade to zero values; a missing command type
// is an error.
func CommandFromPayload(payload map[string]any) (*Command, error) {
	if payload == nil {
		return nil, fmt.Errorf("decoding command: empty payload")
	}

	cmdType, ok := payload["commandType"].(string)
	if !ok || cmdType == "" {
		return nil, fmt.Errorf("decoding command: commandType is required")
	}

	cmd := &Command{
		Type:      cmdType,
		CreatedAt: time.Now().UTC(),
		Timeout:   DefaultCommandTimeout,
	}
	if id, ok := payload["commandId"].(string); ok && id != "" {
		cmd.ID = id
	} else {
		cmd.ID = uuid.New().String()
	}
	if params, ok := payload["parameters"].(map[string]any); ok {
		cmd.Parameters = params
	}
	// JSON numbers decode as float64.
	if ms, ok := payload["timeoutMs"].(float64); ok && ms > 0 {
		cmd.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cmd, nil
}

// ResultToResponse converts an execution result into a protocol response.
func ResultToResponse(messageID string, result *ExecutionResult) *mcp.Response {
	resp := &mcp.Response{
		MessageID: messageID,
		Success:   result.Success,
		Message:   result.Message,
		ErrorCode: result.ErrorCode,
		Data:      result.Output,
		Timestamp: result.CompletedAt,
	}
	return resp
}

// ResultFromResponse converts a protocol response back into an execution
// result for the given command.
func ResultFromResponse(cmd *Command, resp *mcp.Response, startedAt time.Time) *ExecutionResult {
	return &ExecutionResult{
		CommandID:   cmd.ID,
		Success:     resp.Success,
		Message:     resp.Message,
		ErrorCode:   resp.ErrorCode,
		Output:      resp.Data,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}
}
