// ABOUTME: Rule-based request analysis: keywords in, structured intent out.
// ABOUTME: Output is the loose map shape the planner decodes and validates.

package analyzer

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Rule maps request keywords to the actions and capabilities they imply.
type Rule struct {
	Name         string
	Keywords     []string
	Actions      []string
	Capabilities []string
}

// DefaultRules covers the built-in agent surface. Callers with custom
// agents pass their own set to New.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:         "read-file",
			Keywords:     []string{"read", "open", "show", "cat", "display"},
			Actions:      []string{"read_file"},
			Capabilities: []string{"read_file"},
		},
		{
			Name:         "write-file",
			Keywords:     []string{"write", "save", "create file", "store"},
			Actions:      []string{"write_file"},
			Capabilities: []string{"write_file"},
		},
		{
			Name:         "list-directory",
			Keywords:     []string{"list", "ls", "directory", "folder"},
			Actions:      []string{"list_dir"},
			Capabilities: []string{"list_dir"},
		},
		{
			Name:         "search",
			Keywords:     []string{"search", "find", "grep", "look for"},
			Actions:      []string{"search"},
			Capabilities: []string{"search"},
		},
	}
}

var pathPattern = regexp.MustCompile(`(?:/[\w.\-]+)+/?`)

// Analyzer turns free-form request text into the structured analysis the
// planner consumes. It never fails: requests matching no rule produce an
// actionless analysis, which downstream degrades to the fallback plan.
type Analyzer struct {
	rules  []Rule
	logger *slog.Logger
}

// New creates an analyzer. A nil or empty rule set means DefaultRules.
func New(rules []Rule, logger *slog.Logger) *Analyzer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		rules:  rules,
		logger: logger.With("component", "analyzer"),
	}
}

// Analyze matches the request against the rule set in order and collects
// the implied actions and capabilities. Rule order decides action order.
func (a *Analyzer) Analyze(ctx context.Context, text string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lowered := strings.ToLower(text)

	var (
		actions      []string
		capabilities []string
		matched      []string
	)
	seenAction := make(map[string]bool)
	seenCap := make(map[string]bool)

	for _, rule := range a.rules {
		if !matchesAny(lowered, rule.Keywords) {
			continue
		}
		matched = append(matched, rule.Name)
		for _, action := range rule.Actions {
			if !seenAction[action] {
				seenAction[action] = true
				actions = append(actions, action)
			}
		}
		for _, capability := range rule.Capabilities {
			if !seenCap[capability] {
				seenCap[capability] = true
				capabilities = append(capabilities, capability)
			}
		}
	}

	parameters := map[string]any{"request": text}
	if path := pathPattern.FindString(text); path != "" {
		parameters["path"] = path
	}

	analysis := map[string]any{
		"intent":               intentOf(matched),
		"actions":              actions,
		"requiredCapabilities": capabilities,
		"parameters":           parameters,
		"isWorkflow":           len(actions) > 1,
		"complexity":           complexityOf(len(actions)),
	}

	a.logger.Debug("request analyzed",
		"rules", len(matched),
		"actions", len(actions),
	)
	return analysis, nil
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func intentOf(matched []string) string {
	if len(matched) == 0 {
		return "unknown"
	}
	return strings.Join(matched, "+")
}

func complexityOf(actionCount int) string {
	switch {
	case actionCount <= 1:
		return "simple"
	case actionCount <= 3:
		return "moderate"
	default:
		return "complex"
	}
}
