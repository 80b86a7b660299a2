package migration

import (
	"github.com/rendis/flowgraph/internal/compiler"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Schema versions of the two flow version shapes.
const (
	SchemaVersionLegacy = "1"
	SchemaVersionGraph  = "2"
)

// GraphMigration replaces the legacy trigger step tree with the compiled graph.
type GraphMigration struct{}

func (GraphMigration) Name() string                { return "legacy-steps-to-graph" }
func (GraphMigration) TargetSchemaVersion() string { return SchemaVersionLegacy }
func (GraphMigration) ResultSchemaVersion() string { return SchemaVersionGraph }

func (GraphMigration) Migrate(doc *schema.Document) (*schema.Document, error) {
	return compiler.Compile(doc)
}
