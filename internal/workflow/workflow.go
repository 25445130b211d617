// ABOUTME: Workflow definitions and the engine that runs their steps in order.
// ABOUTME: Steps resolve agents by capability; the first failure aborts the run.

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/agentic-director/internal/agent"
	"github.com/2389/agentic-director/internal/mcp"
)

// Step is one unit of a workflow. Capability picks the executing agent;
// when empty, the action name doubles as the capability.
type Step struct {
	Name       string         `yaml:"name"`
	Action     string         `yaml:"action"`
	Capability string         `yaml:"capability,omitempty"`
	Parameters map[string]any `yaml:"parameters,omitempty"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout,omitempty"`
}

// Definition is a named, ordered sequence of steps.
type Definition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Sender issues commands to connected agents.
type Sender interface {
	SendCommand(ctx context.Context, agentID string, cmd *agent.Command) *mcp.Response
}

// Selector resolves a capability to candidate agents.
type Selector interface {
	FindByCapability(capability string) []*agent.Descriptor
}

// Engine holds workflow definitions and executes them step by step.
// Definitions are injected per instance; there is no global registry.
type Engine struct {
	mu     sync.RWMutex
	defs   map[string]*Definition
	sender Sender
	agents Selector
	logger *slog.Logger
}

// NewEngine creates a workflow engine over the given command sender and
// agent selector.
func NewEngine(sender Sender, agents Selector, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		defs:   make(map[string]*Definition),
		sender: sender,
		agents: agents,
		logger: logger.With("component", "workflow"),
	}
}

// Register stores a definition, replacing any previous one with the same
// id.
func (e *Engine) Register(def *Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("registering workflow: definition with id is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("registering workflow %s: at least one step is required", def.ID)
	}
	for i, step := range def.Steps {
		if step.Action == "" {
			return fmt.Errorf("registering workflow %s: step %d has no action", def.ID, i)
		}
	}

	e.mu.Lock()
	e.defs[def.ID] = def
	e.mu.Unlock()

	e.logger.Info("workflow registered", "workflow_id", def.ID, "steps", len(def.Steps))
	return nil
}

// Get returns the definition for an id.
func (e *Engine) Get(workflowID string) (*Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.defs[workflowID]
	return def, ok
}

// List returns all definitions sorted by id.
func (e *Engine) List() []*Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Definition, 0, len(e.defs))
	for _, def := range e.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Execute runs the workflow's steps in order. The error return is reserved
// for unknown workflow ids; step failures abort the run and are reported
// inside the result together with the steps that did complete.
func (e *Engine) Execute(ctx context.Context, workflowID string, params map[string]any) (*agent.ExecutionResult, error) {
	def, ok := e.Get(workflowID)
	if !ok {
		return nil, fmt.Errorf("executing workflow: unknown workflow %q", workflowID)
	}

	logger := e.logger.With("workflow_id", workflowID)
	logger.Info("workflow starting", "steps", len(def.Steps))

	started := time.Now().UTC()
	completed := make([]string, 0, len(def.Steps))
	stepOutputs := make(map[string]any, len(def.Steps))

	for _, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			result := agent.NewFailureResult("", mcp.CodeCommunicationError,
				fmt.Sprintf("workflow cancelled at step %q", step.Name))
			result.StartedAt = started
			result.Output = partialOutput(completed, step.Name, stepOutputs)
			return result, nil
		}

		capability := step.Capability
		if capability == "" {
			capability = step.Action
		}
		candidates := e.agents.FindByCapability(capability)
		if len(candidates) == 0 {
			logger.Warn("workflow step unroutable", "step", step.Name, "capability", capability)
			result := agent.NewFailureResult("", mcp.CodeAgentNotFound,
				fmt.Sprintf("no agent available for step %q", step.Name))
			result.StartedAt = started
			result.Output = partialOutput(completed, step.Name, stepOutputs)
			return result, nil
		}
		agentID := candidates[0].ID

		cmd := agent.NewCommand(step.Action, mergeParams(step.Parameters, params), step.Timeout)
		resp := e.sender.SendCommand(ctx, agentID, cmd)
		if !resp.Success {
			logger.Warn("workflow step failed",
				"step", step.Name,
				"agent_id", agentID,
				"error_code", resp.ErrorCode,
			)
			result := &agent.ExecutionResult{
				CommandID:   cmd.ID,
				Success:     false,
				Message:     fmt.Sprintf("step %q failed: %s", step.Name, resp.Message),
				ErrorCode:   resp.ErrorCode,
				Output:      partialOutput(completed, step.Name, stepOutputs),
				StartedAt:   started,
				CompletedAt: time.Now().UTC(),
			}
			return result, nil
		}

		completed = append(completed, step.Name)
		if resp.Data != nil {
			stepOutputs[step.Name] = resp.Data
		}
		logger.Debug("workflow step completed", "step", step.Name, "agent_id", agentID)
	}

	result := &agent.ExecutionResult{
		Success:     true,
		Message:     fmt.Sprintf("workflow %s completed %d step(s)", workflowID, len(completed)),
		Output:      map[string]any{"completedSteps": completed, "steps": stepOutputs},
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}
	logger.Info("workflow completed", "duration", result.Duration())
	return result, nil
}

// mergeParams overlays call-time parameters onto the step's own. Call-time
// values win.
func mergeParams(stepParams, callParams map[string]any) map[string]any {
	merged := make(map[string]any, len(stepParams)+len(callParams))
	for k, v := range stepParams {
		merged[k] = v
	}
	for k, v := range callParams {
		merged[k] = v
	}
	return merged
}

func partialOutput(completed []string, failedStep string, stepOutputs map[string]any) map[string]any {
	return map[string]any{
		"completedSteps": completed,
		"failedStep":     failedStep,
		"steps":          stepOutputs,
	}
}
