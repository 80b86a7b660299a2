package store

import (
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// FlowVersion is the persisted representation of one version of a flow.
// SchemaVersion is always the document's schemaVersion. A listed row whose
// stored document cannot be parsed has a nil Document and a STORE_ERROR in
// DecodeErr.
type FlowVersion struct {
	ID            string           `json:"id"`
	FlowID        string           `json:"flow_id"`
	DisplayName   string           `json:"display_name,omitempty"`
	SchemaVersion string           `json:"schema_version"`
	Document      *schema.Document `json:"document"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DecodeErr     error            `json:"-"`
}

// FlowVersionFilter selects flow versions. Results are ordered by id; AfterID
// continues a previous page.
type FlowVersionFilter struct {
	SchemaVersions []string
	FlowID         string
	AfterID        string
	Limit          int
}

// MigrationRun summarizes one batch run of the migration chain.
type MigrationRun struct {
	ID          string    `json:"id"`
	DryRun      bool      `json:"dry_run"`
	Scanned     int       `json:"scanned"`
	Migrated    int       `json:"migrated"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// MigrationFailure records a flow version a run could not migrate.
type MigrationFailure struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	FlowVersionID string    `json:"flow_version_id"`
	FromVersion   string    `json:"from_version"`
	Code          string    `json:"code,omitempty"`
	StepName      string    `json:"step_name,omitempty"`
	Error         string    `json:"error"`
	CreatedAt     time.Time `json:"created_at"`
}
