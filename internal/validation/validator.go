package validation

import "github.com/rendis/flowgraph/pkg/schema"

// Validator checks flow version documents before and after compilation.
type Validator interface {
	ValidateLegacy(raw []byte) error
	ValidateGraph(g *schema.Graph) error
}
