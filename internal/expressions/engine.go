// Package expressions evaluates record filter expressions in jq, CEL or expr.
package expressions

import (
	"context"
	"strings"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Engine evaluates expressions against a record: a JSON object of plain values.
// Implementations cache compiled expressions and are safe for concurrent use.
type Engine interface {
	Name() string
	// Compile checks expression without evaluating it.
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Engine names.
const (
	EngineJQ   = "jq"
	EngineCEL  = "cel"
	EngineExpr = "expr"
)

// Variables lists the record keys every engine exposes.
var Variables = []string{"id", "flowId", "displayName", "schemaVersion", "document"}

// NewEngine returns the engine called name.
func NewEngine(name string) (Engine, error) {
	switch name {
	case EngineJQ:
		return NewJQEngine(), nil
	case EngineCEL:
		return NewCELEngine()
	case EngineExpr:
		return NewExprEngine(), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown expression language %q, want jq, cel or expr", name)
	}
}

// SplitLanguage separates a "lang:" prefix from expression. Expressions without
// a known prefix are jq.
func SplitLanguage(expression string) (lang, body string) {
	for _, name := range []string{EngineJQ, EngineCEL, EngineExpr} {
		if rest, ok := strings.CutPrefix(expression, name+":"); ok {
			return name, strings.TrimSpace(rest)
		}
	}
	return EngineJQ, expression
}

// Truthy reports whether an evaluation result selects its record:
// anything but nil and false.
func Truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	default:
		return true
	}
}

func compileError(lang, expression string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"%s compile error in %q: %s", lang, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func evalError(lang, expression string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"%s evaluation failed for %q: %s", lang, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}
