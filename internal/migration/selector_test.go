package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

func TestSelector_Match(t *testing.T) {
	fv := &store.FlowVersion{
		ID:            "fv-1",
		FlowID:        "orders",
		DisplayName:   "Orders",
		SchemaVersion: "1",
		Document:      mustDoc(t, legacyFlow),
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`.flowId == "orders"`, true},
		{`.flowId == "billing"`, false},
		{`.document.trigger.nextAction.type == "CODE"`, true},
		{`.document.trigger.nextAction.name`, true},
		{`.document.missing`, false},
		{`empty`, false},
		{`[.document.trigger | .. | objects | select(.type == "ROUTER")] | length > 0`, false},
		{`jq: .id == "fv-1"`, true},
		{`cel: flowId == "orders" && schemaVersion == "1"`, true},
		{`cel: document.trigger.nextAction.type == "ROUTER"`, false},
		{`expr: displayName startsWith "Ord"`, true},
		{`expr: document.trigger.nextAction.type == "ROUTER"`, false},
		{`expr: missing`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sel, err := NewSelector(tt.expr)
			require.NoError(t, err)
			got, err := sel.Match(context.Background(), fv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelector_Errors(t *testing.T) {
	_, err := NewSelector("")
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	_, err = NewSelector(".foo |||")
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	_, err = NewSelector("$undefined")
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	sel, err := NewSelector(`error("nope")`)
	require.NoError(t, err)
	_, err = sel.Match(context.Background(), &store.FlowVersion{ID: "x"})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestSelector_Languages(t *testing.T) {
	for expr, lang := range map[string]string{
		`.id`:      "jq",
		`jq: .id`:  "jq",
		`cel: id`:  "cel",
		`expr: id`: "expr",
	} {
		sel, err := NewSelector(expr)
		require.NoError(t, err, expr)
		assert.Equal(t, lang, sel.Language(), expr)
		assert.Equal(t, expr, sel.String())
	}

	_, err := NewSelector(`cel: id ==`)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	_, err = NewSelector(`expr: id ==`)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	_, err = NewSelector(`cel:`)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestSelector_NoEnvironment(t *testing.T) {
	t.Setenv("FLOWGRAPH_SECRET", "s3cret")
	sel, err := NewSelector(`$ENV.FLOWGRAPH_SECRET == "s3cret"`)
	require.NoError(t, err)
	got, err := sel.Match(context.Background(), &store.FlowVersion{ID: "x"})
	require.NoError(t, err)
	assert.False(t, got)
}
