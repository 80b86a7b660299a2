// Package migration upgrades persisted flow version documents through an ordered
// chain of schema migrations and drives that chain over a store.
package migration

import (
	"sort"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Migration rewrites a document from one schema version to the next.
// Migrate must not modify its input.
type Migration interface {
	Name() string
	TargetSchemaVersion() string
	ResultSchemaVersion() string
	Migrate(doc *schema.Document) (*schema.Document, error)
}

// Chain is an ordered registry of migrations keyed by the version they apply to.
type Chain struct {
	byTarget map[string]Migration
	order    []Migration
}

// NewChain returns a chain holding the given migrations.
func NewChain(ms ...Migration) (*Chain, error) {
	c := &Chain{byTarget: make(map[string]Migration)}
	for _, m := range ms {
		if err := c.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultChain returns the chain with every built-in migration registered.
func DefaultChain() *Chain {
	c, err := NewChain(GraphMigration{})
	if err != nil {
		panic(err)
	}
	return c
}

// Register adds m. Two migrations may not target the same version, and a
// migration may not leave the version unchanged.
func (c *Chain) Register(m Migration) error {
	target := m.TargetSchemaVersion()
	if target == m.ResultSchemaVersion() {
		return schema.NewErrorf(schema.ErrCodeSchemaVersion,
			"migration %q does not advance schema version %q", m.Name(), target)
	}
	if prev, ok := c.byTarget[target]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"migrations %q and %q both target schema version %q", prev.Name(), m.Name(), target)
	}
	c.byTarget[target] = m
	c.order = append(c.order, m)
	return nil
}

// SourceVersions lists every schema version some migration applies to, sorted.
func (c *Chain) SourceVersions() []string {
	out := make([]string, 0, len(c.byTarget))
	for v := range c.byTarget {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Migrations returns the registered migrations in registration order.
func (c *Chain) Migrations() []Migration {
	return append([]Migration(nil), c.order...)
}

// Apply runs the migration targeting doc's current version, advances the version
// marker to the migration's result, and repeats until no migration matches.
// It returns the upgraded document and the names of the migrations applied, in
// order. A document no migration targets is returned as is.
func (c *Chain) Apply(doc *schema.Document) (*schema.Document, []string, error) {
	if doc == nil {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "flow version document is nil")
	}

	var applied []string
	seen := make(map[string]bool)
	cur := doc
	for {
		m, ok := c.byTarget[cur.SchemaVersion]
		if !ok {
			return cur, applied, nil
		}
		if seen[cur.SchemaVersion] {
			return nil, applied, schema.NewErrorf(schema.ErrCodeSchemaVersion,
				"migration chain revisits schema version %q", cur.SchemaVersion)
		}
		seen[cur.SchemaVersion] = true

		next, err := m.Migrate(cur)
		if err != nil {
			return nil, applied, schema.NewErrorf(schema.ErrCodeMigrationFailed,
				"migration %q: %s", m.Name(), err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"from": cur.SchemaVersion, "code": schema.ErrorCode(err)})
		}
		next.SchemaVersion = m.ResultSchemaVersion()
		applied = append(applied, m.Name())
		cur = next
	}
}
