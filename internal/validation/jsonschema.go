package validation

import (
	"bytes"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowgraph/pkg/schema"
)

const legacySchemaURL = "https://flowgraph.dev/schemas/legacy-flow-version.json"

// legacySchemaJSON is the JSON Schema for legacy (trigger/nextAction) flow versions.
// Steps may carry fields beyond the ones listed; only the topology-bearing ones
// are constrained.
const legacySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowgraph.dev/schemas/legacy-flow-version.json",
  "type": "object",
  "required": ["trigger"],
  "properties": {
    "schemaVersion": { "type": ["string", "null"] },
    "trigger": { "$ref": "#/$defs/step" },
    "graph": { "type": "null" }
  },
  "$defs": {
    "optionalStep": {
      "oneOf": [
        { "$ref": "#/$defs/step" },
        { "type": "null" }
      ]
    },
    "step": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "displayName": { "type": "string" },
        "valid": { "type": "boolean" },
        "skip": { "type": ["boolean", "null"] },
        "settings": { "type": ["object", "null"] },
        "nextAction": { "$ref": "#/$defs/optionalStep" },
        "children": {
          "type": ["array", "null"],
          "items": { "$ref": "#/$defs/optionalStep" }
        },
        "firstLoopAction": { "$ref": "#/$defs/optionalStep" }
      },
      "if": {
        "required": ["type"],
        "properties": { "type": { "const": "ROUTER" } }
      },
      "then": {
        "properties": {
          "settings": {
            "type": "object",
            "properties": {
              "branches": {
                "type": "array",
                "items": { "$ref": "#/$defs/branch" }
              }
            }
          }
        }
      }
    },
    "branch": {
      "type": "object",
      "required": ["branchName", "branchType"],
      "properties": {
        "branchName": { "type": "string" },
        "branchType": { "type": "string", "enum": ["CONDITION", "FALLBACK"] },
        "conditions": { "type": ["array", "null"] }
      }
    }
  }
}`

// LegacyValidator validates raw legacy documents against the legacy JSON Schema
// (Draft 2020-12). It is safe for concurrent use.
type LegacyValidator struct {
	legacySchema *jsonschema.Schema
}

// NewLegacyValidator compiles the legacy flow version schema.
func NewLegacyValidator() (*LegacyValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(legacySchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal legacy schema: %w", err)
	}
	if err := c.AddResource(legacySchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add legacy schema resource: %w", err)
	}

	compiled, err := c.Compile(legacySchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile legacy schema: %w", err)
	}
	return &LegacyValidator{legacySchema: compiled}, nil
}

// ValidateLegacy checks raw JSON against the legacy schema.
func (v *LegacyValidator) ValidateLegacy(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "flow version document is empty")
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "flow version document is not valid JSON").WithCause(err)
	}

	if err := v.legacySchema.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError whose
// details list every leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
