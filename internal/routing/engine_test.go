package routing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, DefaultPolicy, "")
	require.NoError(t, err)

	tests := []struct {
		in   Input
		want string
	}{
		{Input{EscalationType: "carrier_claim", Category: "damage"}, "claims"},
		{Input{EscalationType: "replacement_order", Category: "damage"}, "fulfillment"},
		{Input{EscalationType: "factory_review"}, "quality"},
		{Input{Category: "returns"}, "returns"},
		{Input{EscalationType: "something_new", Category: "shipping"}, "unassigned"},
	}
	for _, tt := range tests {
		t.Run(tt.in.EscalationType+"/"+tt.in.Category, func(t *testing.T) {
			got, err := e.Queue(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyWithoutDefaultUsesFallback(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, `
package escalation_routing

queue = "vip" {
	input.category == "vip"
}
`, "triage")
	require.NoError(t, err)

	got, err := e.Queue(ctx, Input{Category: "vip"})
	require.NoError(t, err)
	assert.Equal(t, "vip", got)

	got, err = e.Queue(ctx, Input{Category: "damage"})
	require.NoError(t, err)
	assert.Equal(t, "triage", got)
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package escalation_routing\nqueue = {", "")
	assert.Error(t, err)
}

func TestNewEngineFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "routing.rego")
	require.NoError(t, os.WriteFile(path, []byte(`
package escalation_routing

default queue = "everyone"
`), 0o600))

	e, err := NewEngineFromFile(ctx, path, "")
	require.NoError(t, err)
	got, err := e.Queue(ctx, Input{EscalationType: "carrier_claim"})
	require.NoError(t, err)
	assert.Equal(t, "everyone", got)

	_, err = NewEngineFromFile(ctx, filepath.Join(t.TempDir(), "missing.rego"), "")
	assert.Error(t, err)
}
