// ABOUTME: Execution coordinator: admission gate, plan building, and plan driving.
// ABOUTME: Owns agent lifecycle and assembles caller-facing responses.

package director

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/2389/agentic-director/internal/agent"
	"github.com/2389/agentic-director/internal/engine"
	"github.com/2389/agentic-director/internal/mcp"
	"github.com/2389/agentic-director/internal/planner"
)

// DefaultMaxConcurrent is the admission-gate capacity when none is set.
const DefaultMaxConcurrent = 10

// Analyzer is the external intent-analysis collaborator. Its output is
// opaque to the director; the planner decides whether it is usable.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (map[string]any, error)
}

// WorkflowEngine is the external workflow-execution collaborator.
type WorkflowEngine interface {
	Execute(ctx context.Context, workflowID string, params map[string]any) (*agent.ExecutionResult, error)
}

// Response is the outcome of one ProcessRequest call.
type Response struct {
	RequestID       string        `json:"requestId"`
	Success         bool          `json:"success"`
	Message         string        `json:"message,omitempty"`
	ErrorCode       mcp.Code      `json:"errorCode,omitempty"`
	ExecutedActions []string      `json:"executedActions"`
	Duration        time.Duration `json:"duration"`
	WorkflowID      string        `json:"workflowId,omitempty"`
}

// WorkflowResponse is the outcome of one ExecuteWorkflow call.
type WorkflowResponse struct {
	ExecutionID string         `json:"executionId"`
	WorkflowID  string         `json:"workflowId"`
	Success     bool           `json:"success"`
	Message     string         `json:"message,omitempty"`
	ErrorCode   mcp.Code       `json:"errorCode,omitempty"`
	Duration    time.Duration  `json:"duration"`
	Output      map[string]any `json:"output,omitempty"`
}

// Options configures a Director.
type Options struct {
	Registry *agent.Registry
	Engine   *engine.Engine
	Analyzer Analyzer
	// Workflows may be nil; ExecuteWorkflow then fails cleanly.
	Workflows WorkflowEngine
	// MaxConcurrent caps in-flight top-level requests (default 10).
	MaxConcurrent int
	// CommandTimeout bounds each plan-step command (default 30s).
	CommandTimeout time.Duration
	Logger         *slog.Logger
}

// Director coordinates request analysis, planning, and execution.
type Director struct {
	registry  *agent.Registry
	engine    *engine.Engine
	analyzer  Analyzer
	workflows WorkflowEngine
	planner   *planner.Planner

	sem            *semaphore.Weighted
	commandTimeout time.Duration
	logger         *slog.Logger

	agents *localAgents
}

// New wires a Director from its collaborators.
func New(opts Options) (*Director, error) {
	if opts.Registry == nil || opts.Engine == nil || opts.Analyzer == nil {
		return nil, fmt.Errorf("director: registry, engine, and analyzer are required")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = agent.DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Director{
		registry:       opts.Registry,
		engine:         opts.Engine,
		analyzer:       opts.Analyzer,
		workflows:      opts.Workflows,
		planner:        planner.New(opts.Registry, opts.Logger),
		sem:            semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		commandTimeout: opts.CommandTimeout,
		logger:         opts.Logger.With("component", "director"),
		agents:         newLocalAgents(),
	}
	opts.Registry.SetConnections(opts.Engine)
	return d, nil
}

// ProcessRequest analyzes a request, builds a plan, and executes its
// actions in order, stopping at the first failure. The error return is
// reserved for contract violations and abandoned admission waits; every
// execution-level failure is reported inside the Response.
func (d *Director) ProcessRequest(ctx context.Context, text string) (*Response, error) {
	if text == "" {
		return nil, fmt.Errorf("process request: request text is required")
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring request slot: %w", err)
	}
	defer d.sem.Release(1)

	requestID := uuid.New().String()
	start := time.Now()
	logger := d.logger.With("request_id", requestID)
	logger.Info("processing request", "length", len(text))

	raw, err := d.analyzer.Analyze(ctx, text)
	if err != nil {
		// Analyzer faults degrade the same way malformed output does:
		// the planner produces the fallback plan.
		logger.Warn("analyzer failed, degrading to fallback plan", "error", err)
		raw = nil
	}

	plan := d.planner.Plan(text, raw)
	logger.Info("plan built",
		"plan_id", plan.ID,
		"actions", len(plan.Actions),
		"selected", len(plan.Selected),
		"fallback", plan.Fallback,
	)

	resp := &Response{
		RequestID:       requestID,
		ExecutedActions: make([]string, 0, len(plan.Actions)),
	}
	if plan.IsWorkflow {
		// Workflow-shaped analyses run the same ordered pipeline; the
		// plan id doubles as the workflow identity in the response.
		resp.WorkflowID = plan.ID
	}

	for _, action := range plan.Actions {
		if ctx.Err() != nil {
			resp.Message = "request cancelled"
			resp.ErrorCode = mcp.CodeCommunicationError
			resp.Duration = time.Since(start)
			return resp, nil
		}

		agentID, ok := plan.AgentFor(action)
		if !ok {
			resp.Message = fmt.Sprintf("no agent available for action %q", action)
			resp.ErrorCode = mcp.CodeAgentNotFound
			resp.Duration = time.Since(start)
			logger.Warn("plan step unroutable", "action", action)
			return resp, nil
		}

		cmd := agent.NewCommand(action, plan.Parameters, d.commandTimeout)
		result := d.engine.SendCommand(ctx, agentID, cmd)
		if !result.Success {
			resp.Message = fmt.Sprintf("action %q failed: %s", action, result.Message)
			resp.ErrorCode = result.ErrorCode
			resp.Duration = time.Since(start)
			logger.Warn("plan step failed",
				"action", action,
				"agent_id", agentID,
				"error_code", result.ErrorCode,
			)
			return resp, nil
		}

		resp.ExecutedActions = append(resp.ExecutedActions, action)
		logger.Debug("plan step completed", "action", action, "agent_id", agentID)
	}

	resp.Success = true
	resp.Message = fmt.Sprintf("executed %d action(s)", len(resp.ExecutedActions))
	resp.Duration = time.Since(start)
	logger.Info("request completed", "duration", resp.Duration)
	return resp, nil
}

// ExecuteWorkflow forwards to the workflow engine behind the same
// admission gate as ProcessRequest.
func (d *Director) ExecuteWorkflow(ctx context.Context, workflowID string, params map[string]any) (*WorkflowResponse, error) {
	if workflowID == "" {
		return nil, fmt.Errorf("execute workflow: workflow id is required")
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring request slot: %w", err)
	}
	defer d.sem.Release(1)

	resp := &WorkflowResponse{
		ExecutionID: uuid.New().String(),
		WorkflowID:  workflowID,
	}
	start := time.Now()

	if d.workflows == nil {
		resp.Message = "no workflow engine configured"
		resp.ErrorCode = mcp.CodeExecutionFailed
		resp.Duration = time.Since(start)
		return resp, nil
	}

	result, err := d.workflows.Execute(ctx, workflowID, params)
	resp.Duration = time.Since(start)
	if err != nil {
		resp.Message = fmt.Sprintf("workflow %s failed: %v", workflowID, err)
		resp.ErrorCode = mcp.CodeExecutionFailed
		return resp, nil
	}

	resp.Success = result.Success
	resp.Message = result.Message
	resp.ErrorCode = result.ErrorCode
	resp.Output = result.Output
	return resp, nil
}

// RegisterAgent initializes the agent, records its descriptor, and opens
// its channel. If initialization fails, the registry is untouched and the
// caller receives the error.
func (d *Director) RegisterAgent(ctx context.Context, desc *agent.Descriptor, a agent.Agent) error {
	if desc == nil || desc.ID == "" {
		return fmt.Errorf("register agent: descriptor with id is required")
	}
	if a == nil {
		return fmt.Errorf("register agent: agent is required")
	}

	if err := a.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing agent %s: %w", desc.ID, err)
	}

	registered := desc.Clone()
	registered.Status = agent.StatusReady
	if err := d.registry.Register(registered); err != nil {
		return err
	}
	d.agents.put(desc.ID, a)

	if err := d.engine.OpenChannel(desc.ID); err != nil {
		// Keep registry and reachability consistent: roll the
		// registration back rather than advertise an unreachable agent.
		d.registry.Unregister(desc.ID)
		d.agents.drop(desc.ID)
		return fmt.Errorf("opening channel for agent %s: %w", desc.ID, err)
	}

	d.logger.Info("agent registered", "agent_id", desc.ID, "name", desc.Name)
	return nil
}

// UnregisterAgent removes the agent, closes its connection, and drives
// its shutdown. Unknown ids are a logged no-op.
func (d *Director) UnregisterAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("unregister agent: agent id is required")
	}

	d.registry.Unregister(agentID)
	d.engine.CloseConnection(agentID)

	if a, ok := d.agents.take(agentID); ok {
		if err := a.Shutdown(ctx); err != nil {
			d.logger.Warn("agent shutdown failed", "agent_id", agentID, "error", err)
		}
	}

	d.logger.Info("agent unregistered", "agent_id", agentID)
	return nil
}

// GetAvailableAgents returns a snapshot of all registered agents.
func (d *Director) GetAvailableAgents() []*agent.Descriptor {
	return d.registry.List()
}
