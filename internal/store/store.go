package store

import (
	"context"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Flow versions
	CreateFlowVersion(ctx context.Context, fv *FlowVersion) error
	GetFlowVersion(ctx context.Context, id string) (*FlowVersion, error)
	// ListFlowVersions returns undecodable rows too, with DecodeErr set.
	ListFlowVersions(ctx context.Context, filter FlowVersionFilter) ([]*FlowVersion, error)
	// UpdateFlowVersionDocument replaces the document only while the stored schema
	// version still equals fromVersion. A moved version yields a CONFLICT error.
	UpdateFlowVersionDocument(ctx context.Context, id, fromVersion string, doc *schema.Document) error
	DeleteFlowVersion(ctx context.Context, id string) error

	// Migration bookkeeping
	RecordMigrationRun(ctx context.Context, run *MigrationRun) error
	GetMigrationRun(ctx context.Context, id string) (*MigrationRun, error)
	RecordMigrationFailure(ctx context.Context, f *MigrationFailure) error
	ListMigrationFailures(ctx context.Context, runID string) ([]*MigrationFailure, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
