package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

func TestInterpolate(t *testing.T) {
	vars := map[string]string{"order_number": "#1042", "restocking_fee": "$5.00"}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "no placeholders", "no placeholders"},
		{"single", "Order {{order_number}}", "Order #1042"},
		{"padded tag", "Fee: {{ restocking_fee }}", "Fee: $5.00"},
		{"unresolved renders empty", "Tracking: {{tracking_number}}.", "Tracking: ."},
		{"repeated", "{{order_number}}/{{order_number}}", "#1042/#1042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.content, vars))
		})
	}
}

func TestInterpolateNilVars(t *testing.T) {
	assert.Equal(t, "Order ", Interpolate("Order {{order_number}}", nil))
}

func TestRenderNode(t *testing.T) {
	def := loadDamageFlow(t)
	vars, err := StaticContext{"order_number": "#77", "customer_name": "Ada"}.Lookup(context.Background(), "thread-1")
	require.NoError(t, err)

	node, ok := def.Node("damage_request_photos")
	require.True(t, ok)
	view := RenderNode(node, vars)
	assert.Equal(t, model.NodeTypeInfo, view.Type)
	require.Len(t, view.TemplateSuggestions, 1)
	assert.Contains(t, view.TemplateSuggestions[0], "Hi Ada")
	assert.Contains(t, view.TemplateSuggestions[0], "order #77")

	node, ok = def.Node("damage_intro")
	require.True(t, ok)
	assert.Equal(t, "Order #77 was reported as damaged. Let's document what happened.", RenderNode(node, vars).Content)

	node, ok = def.Node("damage_upload_photos")
	require.True(t, ok)
	view = RenderNode(node, vars)
	require.NotNil(t, view.Attachment)
	assert.Equal(t, 2, view.Attachment.MinFiles)

	node, ok = def.Node("damage_factory_review")
	require.True(t, ok)
	assert.Equal(t, "awaiting_factory_review", RenderNode(node, vars).PauseReason)
}

func TestRenderNodeDoesNotMutateDefinition(t *testing.T) {
	def := loadDamageFlow(t)
	node, ok := def.Node("damage_intro")
	require.True(t, ok)

	_ = RenderNode(node, map[string]string{"order_number": "#1"})
	assert.Contains(t, node.Base().Content, "{{order_number}}")
}
