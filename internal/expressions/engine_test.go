package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func record() map[string]any {
	return map[string]any{
		"id":            "fv-1",
		"flowId":        "orders",
		"displayName":   "Orders",
		"schemaVersion": "1",
		"document": map[string]any{
			"trigger": map[string]any{
				"name": "trigger",
				"type": "PIECE_TRIGGER",
				"nextAction": map[string]any{
					"name": "router",
					"type": "ROUTER",
				},
			},
		},
	}
}

func TestNewEngine(t *testing.T) {
	for _, name := range []string{EngineJQ, EngineCEL, EngineExpr} {
		e, err := NewEngine(name)
		require.NoError(t, err)
		assert.Equal(t, name, e.Name())
	}

	_, err := NewEngine("lua")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestSplitLanguage(t *testing.T) {
	tests := []struct {
		in   string
		lang string
		body string
	}{
		{`.id`, EngineJQ, `.id`},
		{`jq: .id`, EngineJQ, `.id`},
		{`cel:id == "x"`, EngineCEL, `id == "x"`},
		{`expr:  flowId`, EngineExpr, `flowId`},
		{`{cel: 1}`, EngineJQ, `{cel: 1}`},
	}
	for _, tt := range tests {
		lang, body := SplitLanguage(tt.in)
		assert.Equal(t, tt.lang, lang, tt.in)
		assert.Equal(t, tt.body, body, tt.in)
	}
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(false))
	assert.True(t, Truthy(true))
	assert.True(t, Truthy(0))
	assert.True(t, Truthy(""))
	assert.True(t, Truthy([]any{}))
}

func TestEngines_Evaluate(t *testing.T) {
	cel, err := NewCELEngine()
	require.NoError(t, err)

	tests := []struct {
		name   string
		engine Engine
		expr   string
		want   any
	}{
		{"jq field", NewJQEngine(), `.flowId`, "orders"},
		{"jq nested", NewJQEngine(), `.document.trigger.nextAction.type == "ROUTER"`, true},
		{"jq no output", NewJQEngine(), `empty`, nil},
		{"cel comparison", cel, `flowId == "orders" && schemaVersion == "1"`, true},
		{"cel nested", cel, `document.trigger.nextAction.name`, "router"},
		{"cel has", cel, `has(document.graph)`, false},
		{"expr comparison", NewExprEngine(), `flowId == "orders"`, true},
		{"expr nested", NewExprEngine(), `document.trigger.nextAction.name`, "router"},
		{"expr undefined", NewExprEngine(), `nothing`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.engine.Evaluate(context.Background(), tt.expr, record())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngines_Errors(t *testing.T) {
	cel, err := NewCELEngine()
	require.NoError(t, err)
	engines := []Engine{NewJQEngine(), cel, NewExprEngine()}

	for _, e := range engines {
		t.Run(e.Name(), func(t *testing.T) {
			err := e.Compile("")
			assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

			err = e.Compile("(((")
			assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

			_, err = e.Evaluate(context.Background(), "(((", record())
			assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
		})
	}

	_, err = NewJQEngine().Evaluate(context.Background(), `error("boom")`, record())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = cel.Evaluate(context.Background(), `document.missing.name`, record())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestEngines_CacheIsConcurrencySafe(t *testing.T) {
	cel, err := NewCELEngine()
	require.NoError(t, err)
	engines := map[Engine]string{
		NewJQEngine():   `.flowId == "orders"`,
		cel:             `flowId == "orders"`,
		NewExprEngine(): `flowId == "orders"`,
	}

	for e, expr := range engines {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := e.Evaluate(context.Background(), expr, record())
				assert.NoError(t, err)
				assert.Equal(t, true, got)
			}()
		}
		wg.Wait()
	}
}
