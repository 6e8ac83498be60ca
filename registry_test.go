package synapse_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fwojciec/synapse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(context.Context, json.RawMessage) (any, error) { return "ok", nil }

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	t.Run("preserves registration order", func(t *testing.T) {
		t.Parallel()
		r, err := synapse.NewRegistry(
			synapse.RegisteredTool{Spec: synapse.ToolSpec{Name: "price-forward"}, Handler: noopHandler},
			synapse.RegisteredTool{Spec: synapse.ToolSpec{Name: "check-limits"}, Handler: noopHandler},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"price-forward", "check-limits"}, r.Names())
		specs := r.Specs()
		require.Len(t, specs, 2)
		assert.Equal(t, "check-limits", specs[1].Name)
	})

	t.Run("lookup unknown name", func(t *testing.T) {
		t.Parallel()
		r, err := synapse.NewRegistry()
		require.NoError(t, err)
		_, ok := r.Lookup("nope")
		assert.False(t, ok)
	})

	tests := []struct {
		name  string
		tools []synapse.RegisteredTool
		want  string
	}{
		{
			name:  "empty name",
			tools: []synapse.RegisteredTool{{Handler: noopHandler}},
			want:  "name is required",
		},
		{
			name:  "nil handler",
			tools: []synapse.RegisteredTool{{Spec: synapse.ToolSpec{Name: "x"}}},
			want:  "no handler",
		},
		{
			name: "duplicate",
			tools: []synapse.RegisteredTool{
				{Spec: synapse.ToolSpec{Name: "x"}, Handler: noopHandler},
				{Spec: synapse.ToolSpec{Name: "x"}, Handler: noopHandler},
			},
			want: "duplicate tool x",
		},
		{
			name: "duplicate parameter",
			tools: []synapse.RegisteredTool{{
				Spec: synapse.ToolSpec{Name: "x", Parameters: []synapse.Parameter{
					{Name: "a", Type: "string"}, {Name: "a", Type: "number"},
				}},
				Handler: noopHandler,
			}},
			want: "invalid parameter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := synapse.NewRegistry(tt.tools...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, synapse.ErrValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
