package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Top-level document keys the schema owns. Everything else is carried in Extra.
const (
	docKeySchemaVersion = "schemaVersion"
	docKeyTrigger       = "trigger"
	docKeyGraph         = "graph"
	docKeySteps         = "steps"
)

// Document is a persisted flow version. Exactly one of Trigger (legacy shape) or
// Graph (normalized shape) is expected to be set. Unknown top-level fields round-trip
// through Extra unchanged.
type Document struct {
	SchemaVersion string
	Trigger       *LegacyStep
	Graph         *Graph

	// Steps holds a legacy top-level steps field, if present. It is never
	// interpreted and is dropped by compilation.
	Steps json.RawMessage

	Extra map[string]json.RawMessage
}

// HasLegacySteps reports whether the document carried a legacy steps field.
func (d *Document) HasLegacySteps() bool { return len(d.Steps) > 0 }

// Clone returns a shallow copy with its own Extra map. Trigger and Graph are shared.
func (d *Document) Clone() *Document {
	out := *d
	if d.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// UnmarshalJSON splits owned keys from pass-through fields.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("flow version document must be a JSON object")
	}

	*d = Document{}
	if v, ok := raw[docKeySchemaVersion]; ok {
		if err := json.Unmarshal(v, &d.SchemaVersion); err != nil {
			return fmt.Errorf("decode %s: %w", docKeySchemaVersion, err)
		}
		delete(raw, docKeySchemaVersion)
	}
	if v, ok := raw[docKeyTrigger]; ok {
		if !isNull(v) {
			d.Trigger = &LegacyStep{}
			if err := json.Unmarshal(v, d.Trigger); err != nil {
				return fmt.Errorf("decode %s: %w", docKeyTrigger, err)
			}
		}
		delete(raw, docKeyTrigger)
	}
	if v, ok := raw[docKeyGraph]; ok {
		if !isNull(v) {
			d.Graph = &Graph{}
			if err := json.Unmarshal(v, d.Graph); err != nil {
				return fmt.Errorf("decode %s: %w", docKeyGraph, err)
			}
		}
		delete(raw, docKeyGraph)
	}
	if v, ok := raw[docKeySteps]; ok {
		if !isNull(v) {
			d.Steps = v
		}
		delete(raw, docKeySteps)
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}

// MarshalJSON writes owned keys and Extra as one flat object.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+4)
	for k, v := range d.Extra {
		out[k] = v
	}
	if d.SchemaVersion != "" {
		out[docKeySchemaVersion] = d.SchemaVersion
	}
	if d.Trigger != nil {
		out[docKeyTrigger] = d.Trigger
	}
	if d.Graph != nil {
		out[docKeyGraph] = d.Graph
	}
	if len(d.Steps) > 0 {
		out[docKeySteps] = d.Steps
	}
	return json.Marshal(out)
}

// ParseDocument decodes a flow version document.
func ParseDocument(data []byte) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, NewError(ErrCodeValidation, "invalid flow version document").WithCause(err)
	}
	return doc, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
