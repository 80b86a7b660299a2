package migration

import (
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Preview validates raw as a legacy flow version and returns what GraphMigration
// would persist for it, without touching a store. The document is nil whenever
// the result carries errors.
func Preview(v *validation.FlowValidator, raw []byte) (*schema.Document, *schema.ValidationResult) {
	doc, result := v.Compile(raw)
	if doc == nil || !result.Valid() {
		return nil, result
	}
	doc.SchemaVersion = GraphMigration{}.ResultSchemaVersion()
	return doc, result
}
