// ABOUTME: Tests for the rule-based analyzer.
// ABOUTME: Checks keyword matching, parameter extraction, and the unmatched path.

package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, text string) map[string]any {
	t.Helper()
	out, err := New(nil, nil).Analyze(context.Background(), text)
	require.NoError(t, err)
	return out
}

func TestAnalyzeReadRequest(t *testing.T) {
	out := analyze(t, "please read /etc/hosts for me")

	assert.Equal(t, []string{"read_file"}, out["actions"])
	assert.Equal(t, []string{"read_file"}, out["requiredCapabilities"])
	assert.Equal(t, "read-file", out["intent"])
	assert.Equal(t, false, out["isWorkflow"])
	assert.Equal(t, "simple", out["complexity"])

	params, ok := out["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/etc/hosts", params["path"])
	assert.Equal(t, "please read /etc/hosts for me", params["request"])
}

func TestAnalyzeCombinedRequest(t *testing.T) {
	out := analyze(t, "read the config then list the folder")

	assert.Equal(t, []string{"read_file", "list_dir"}, out["actions"],
		"rule order decides action order")
	assert.Equal(t, true, out["isWorkflow"])
	assert.Equal(t, "moderate", out["complexity"])
	assert.Equal(t, "read-file+list-directory", out["intent"])
}

func TestAnalyzeUnmatchedRequest(t *testing.T) {
	out := analyze(t, "make me a sandwich")

	assert.Empty(t, out["actions"], "no rule match yields an actionless analysis")
	assert.Equal(t, "unknown", out["intent"])
}

func TestAnalyzeDeduplicatesActions(t *testing.T) {
	rules := []Rule{
		{Name: "a", Keywords: []string{"foo"}, Actions: []string{"act"}, Capabilities: []string{"cap"}},
		{Name: "b", Keywords: []string{"bar"}, Actions: []string{"act"}, Capabilities: []string{"cap"}},
	}
	out, err := New(rules, nil).Analyze(context.Background(), "foo and bar")
	require.NoError(t, err)

	assert.Equal(t, []string{"act"}, out["actions"])
	assert.Equal(t, []string{"cap"}, out["requiredCapabilities"])
	assert.Equal(t, "a+b", out["intent"])
}

func TestAnalyzeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil, nil).Analyze(ctx, "read something")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeIsCaseInsensitive(t *testing.T) {
	out := analyze(t, "READ the File")
	assert.Equal(t, []string{"read_file"}, out["actions"])
}
