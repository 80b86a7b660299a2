package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Selector restricts a run to the flow versions an expression accepts.
//
// The expression is jq unless prefixed with "cel:" or "expr:" (or "jq:").
// It sees {"id", "flowId", "displayName", "schemaVersion", "document"}, and a
// record is selected when the result is neither false nor null.
// Engines cache compiled programs and are safe to share between workers.
type Selector struct {
	expr   string
	body   string
	engine expressions.Engine
}

// NewSelector compiles expr.
func NewSelector(expr string) (*Selector, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty selector expression")
	}
	lang, body := expressions.SplitLanguage(expr)
	engine, err := expressions.NewEngine(lang)
	if err != nil {
		return nil, err
	}
	if err := engine.Compile(body); err != nil {
		return nil, err
	}
	return &Selector{expr: expr, body: body, engine: engine}, nil
}

// String returns the source expression.
func (s *Selector) String() string { return s.expr }

// Language returns the name of the engine evaluating the selector.
func (s *Selector) Language() string { return s.engine.Name() }

// Match evaluates the selector against fv.
func (s *Selector) Match(ctx context.Context, fv *store.FlowVersion) (bool, error) {
	input, err := selectorInput(fv)
	if err != nil {
		return false, err
	}
	val, err := s.engine.Evaluate(ctx, s.body, input)
	if err != nil {
		return false, err
	}
	return expressions.Truthy(val), nil
}

// selectorInput converts fv to plain JSON values.
func selectorInput(fv *store.FlowVersion) (map[string]any, error) {
	var doc any
	if fv.Document != nil {
		data, err := json.Marshal(fv.Document)
		if err != nil {
			return nil, fmt.Errorf("marshal document %s: %w", fv.ID, err)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", fv.ID, err)
		}
	}
	return map[string]any{
		"id":            fv.ID,
		"flowId":        fv.FlowID,
		"displayName":   fv.DisplayName,
		"schemaVersion": fv.SchemaVersion,
		"document":      doc,
	}, nil
}
