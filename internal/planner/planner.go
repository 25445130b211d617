// ABOUTME: Converts analyzer output into an ordered, agent-resolved execution plan.
// ABOUTME: Malformed analyses degrade to a deterministic single-action fallback plan.

package planner

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/2389/agentic-director/internal/agent"
)

// FallbackAction is the single action of the degrade-gracefully plan used
// when the analyzer's output cannot be parsed.
const FallbackAction = "execute_request"

// Analysis is the expected shape of the analyzer's structured output.
type Analysis struct {
	Intent               string         `mapstructure:"intent"`
	Actions              []string       `mapstructure:"actions"`
	RequiredCapabilities []string       `mapstructure:"requiredCapabilities"`
	Parameters           map[string]any `mapstructure:"parameters"`
	IsWorkflow           bool           `mapstructure:"isWorkflow"`
	Complexity           string         `mapstructure:"complexity"`
}

// Plan is the ordered, agent-resolved set of actions for one request.
type Plan struct {
	ID         string
	Intent     string
	Actions    []string
	Parameters map[string]any
	// Selected maps each matched required capability to the chosen agent
	// id. Capabilities with no Ready match are absent, not failed.
	Selected   map[string]string
	IsWorkflow bool
	Fallback   bool
	CreatedAt  time.Time
}

// Planner resolves required capabilities against the agent registry.
type Planner struct {
	registry *agent.Registry
	logger   *slog.Logger
}

// New creates a planner over the given registry.
func New(registry *agent.Registry, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		registry: registry,
		logger:   logger.With("component", "planner"),
	}
}

// Plan builds an execution plan from the analyzer's raw output. If the
// output is not parseable into the expected shape, the result is the
// fallback plan carrying the original request text; this path never
// fails.
func (p *Planner) Plan(requestText string, raw map[string]any) *Plan {
	analysis, ok := p.decode(raw)
	if !ok {
		p.logger.Warn("analysis not parseable, using fallback plan")
		return p.fallback(requestText)
	}

	plan := &Plan{
		ID:         uuid.New().String(),
		Intent:     analysis.Intent,
		Actions:    analysis.Actions,
		Parameters: analysis.Parameters,
		Selected:   make(map[string]string),
		IsWorkflow: analysis.IsWorkflow,
		CreatedAt:  time.Now().UTC(),
	}
	if plan.Parameters == nil {
		plan.Parameters = make(map[string]any)
	}

	for _, capability := range analysis.RequiredCapabilities {
		matches := p.registry.FindByCapability(capability)
		if len(matches) == 0 {
			// Dropped, not failed: the step may still be served by
			// another selection or fail at execution time.
			p.logger.Warn("no ready agent for capability", "capability", capability)
			continue
		}
		plan.Selected[capability] = matches[0].ID
		p.logger.Debug("capability resolved",
			"capability", capability,
			"agent_id", matches[0].ID,
		)
	}

	return plan
}

// decode maps the raw analyzer output onto Analysis. An output with no
// actions is treated as malformed.
func (p *Planner) decode(raw map[string]any) (*Analysis, bool) {
	if raw == nil {
		return nil, false
	}

	var analysis Analysis
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &analysis})
	if err != nil {
		return nil, false
	}
	if err := dec.Decode(raw); err != nil {
		return nil, false
	}
	if len(analysis.Actions) == 0 {
		return nil, false
	}
	return &analysis, true
}

// fallback is the deterministic degrade path: one action, no capability
// requirements, the original request text as the sole parameter.
func (p *Planner) fallback(requestText string) *Plan {
	return &Plan{
		ID:         uuid.New().String(),
		Intent:     FallbackAction,
		Actions:    []string{FallbackAction},
		Parameters: map[string]any{"request": requestText},
		Selected:   make(map[string]string),
		Fallback:   true,
		CreatedAt:  time.Now().UTC(),
	}
}

// AgentFor resolves the agent that should execute an action: first the
// selection whose capability matches the action name, then any selection
// in sorted-capability order. ok is false when the plan selected nothing.
func (pl *Plan) AgentFor(action string) (string, bool) {
	if len(pl.Selected) == 0 {
		return "", false
	}

	keys := make([]string, 0, len(pl.Selected))
	for capability := range pl.Selected {
		keys = append(keys, capability)
	}
	sort.Strings(keys)

	want := strings.ToLower(action)
	for _, capability := range keys {
		name := strings.ToLower(capability)
		if strings.Contains(name, want) || strings.Contains(want, name) {
			return pl.Selected[capability], true
		}
	}
	return pl.Selected[keys[0]], true
}
