package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/execution"
)

func TestRenderTypedResults(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     any
		want     any
	}{
		{"string", "hello {{.name}}", map[string]any{"name": "ops"}, "hello ops"},
		{"number", "{{.count}}", map[string]any{"count": 3}, float64(3)},
		{"boolean", "{{.ok}}", map[string]any{"ok": true}, true},
		{"json object", `{"a": {{.count}}}`, map[string]any{"count": 3}, map[string]any{"a": float64(3)}},
		{"json array", `[1, 2, {{.count}}]`, map[string]any{"count": 3}, []any{float64(1), float64(2), float64(3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderParseError(t *testing.T) {
	_, err := Render("{{.broken", nil)
	assert.Error(t, err)
}

func TestRenderWithContext(t *testing.T) {
	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetVariable("region", "us-east")
	execCtx.SetNodeOutput("fetch", map[string]any{"status": 200})
	execCtx.SetTriggerInput("hook", map[string]any{"order_id": "o-9"})

	got, err := RenderWithContext("{{.variables.region}}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "us-east", got)

	got, err = RenderWithContext("{{.node.fetch.status}}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, float64(200), got)

	got, err = RenderWithContext("{{.trigger.order_id}}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "o-9", got)

	got, err = RenderWithContext("{{.execution.id}}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", got)
}

func TestRenderMap(t *testing.T) {
	execCtx := execution.NewContext("exec-1", "wf-1")
	execCtx.SetVariable("host", "api.internal")

	rendered, err := RenderMap(map[string]any{
		"url":     "https://{{.variables.host}}/v1",
		"retries": 3,
		"headers": map[string]any{
			"X-Execution-ID": "{{.execution.id}}",
		},
	}, execCtx)
	require.NoError(t, err)

	assert.Equal(t, "https://api.internal/v1", rendered["url"])
	assert.Equal(t, 3, rendered["retries"])
	headers, ok := rendered["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "exec-1", headers["X-Execution-ID"])
}
