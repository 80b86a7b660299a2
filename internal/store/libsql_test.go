package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

const legacyDoc = `{
	"schemaVersion": "1",
	"displayName": "Orders",
	"trigger": {
		"name": "trigger", "type": "PIECE_TRIGGER", "displayName": "Webhook", "valid": true,
		"settings": {},
		"nextAction": {"name": "step_1", "type": "CODE", "displayName": "Code", "valid": true, "settings": {}}
	}
}`

func mustDoc(t *testing.T, raw string) *schema.Document {
	t.Helper()
	doc, err := schema.ParseDocument([]byte(raw))
	require.NoError(t, err)
	return doc
}

func seedFlowVersion(t *testing.T, s *LibSQLStore, id, flowID string) *FlowVersion {
	t.Helper()
	fv := &FlowVersion{
		ID:       id,
		FlowID:   flowID,
		Document: mustDoc(t, legacyDoc),
	}
	require.NoError(t, s.CreateFlowVersion(context.Background(), fv))
	return fv
}

func graphDoc() *schema.Document {
	return &schema.Document{
		SchemaVersion: "2",
		Graph: &schema.Graph{
			Nodes: []schema.GraphNode{{ID: "trigger", Type: schema.NodeTypeTrigger}},
			Edges: []schema.GraphEdge{},
		},
	}
}

// --- Flow version tests ---

func TestCreateAndGetFlowVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fv := &FlowVersion{
		ID:          uuid.New().String(),
		FlowID:      "flow-1",
		DisplayName: "Orders v1",
		Document:    mustDoc(t, legacyDoc),
	}
	require.NoError(t, s.CreateFlowVersion(ctx, fv))
	assert.Equal(t, "1", fv.SchemaVersion)
	assert.False(t, fv.CreatedAt.IsZero())

	got, err := s.GetFlowVersion(ctx, fv.ID)
	require.NoError(t, err)
	assert.Equal(t, fv.ID, got.ID)
	assert.Equal(t, "flow-1", got.FlowID)
	assert.Equal(t, "Orders v1", got.DisplayName)
	assert.Equal(t, "1", got.SchemaVersion)
	require.NotNil(t, got.Document.Trigger)
	assert.Equal(t, "trigger", got.Document.Trigger.Name)
	require.NotNil(t, got.Document.Trigger.NextAction)
	assert.Equal(t, "step_1", got.Document.Trigger.NextAction.Name)
	assert.JSONEq(t, `"Orders"`, string(got.Document.Extra["displayName"]))
}

func TestCreateFlowVersion_Duplicate(t *testing.T) {
	s := newTestStore(t)
	fv := seedFlowVersion(t, s, "fv-1", "flow-1")

	err := s.CreateFlowVersion(context.Background(), &FlowVersion{ID: fv.ID, FlowID: "flow-1", Document: mustDoc(t, legacyDoc)})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(err))
}

func TestCreateFlowVersion_Invalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateFlowVersion(ctx, &FlowVersion{ID: "fv-1", FlowID: "flow-1"})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	err = s.CreateFlowVersion(ctx, &FlowVersion{FlowID: "flow-1", Document: mustDoc(t, legacyDoc)})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestGetFlowVersion_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetFlowVersion(context.Background(), "nonexistent")
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeNotFound, fe.Code)
}

func TestListFlowVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedFlowVersion(t, s, fmt.Sprintf("fv-%02d", i), fmt.Sprintf("flow-%d", i%2))
	}
	// One already-migrated record.
	require.NoError(t, s.CreateFlowVersion(ctx, &FlowVersion{ID: "fv-99", FlowID: "flow-0", Document: graphDoc()}))

	all, err := s.ListFlowVersions(ctx, FlowVersionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	legacy, err := s.ListFlowVersions(ctx, FlowVersionFilter{SchemaVersions: []string{"1"}})
	require.NoError(t, err)
	assert.Len(t, legacy, 5)

	byFlow, err := s.ListFlowVersions(ctx, FlowVersionFilter{FlowID: "flow-1"})
	require.NoError(t, err)
	assert.Len(t, byFlow, 2)

	multi, err := s.ListFlowVersions(ctx, FlowVersionFilter{SchemaVersions: []string{"1", "2"}, FlowID: "flow-0"})
	require.NoError(t, err)
	assert.Len(t, multi, 4)
}

func TestListFlowVersions_Paging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		seedFlowVersion(t, s, fmt.Sprintf("fv-%02d", i), "flow-1")
	}

	var ids []string
	after := ""
	for {
		page, err := s.ListFlowVersions(ctx, FlowVersionFilter{AfterID: after, Limit: 3})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 3)
		for _, fv := range page {
			ids = append(ids, fv.ID)
		}
		after = page[len(page)-1].ID
	}
	assert.Equal(t, []string{"fv-00", "fv-01", "fv-02", "fv-03", "fv-04", "fv-05", "fv-06"}, ids)
}

func TestListFlowVersions_UndecodableRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedFlowVersion(t, s, "fv-1", "flow-1")
	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO flow_versions (id, flow_id, schema_version, document) VALUES (?, ?, ?, ?)`,
		"fv-2", "flow-1", "1", `{"schemaVersion":"1","trigger":{"name":42}}`)
	require.NoError(t, err)
	seedFlowVersion(t, s, "fv-3", "flow-1")

	page, err := s.ListFlowVersions(ctx, FlowVersionFilter{SchemaVersions: []string{"1"}})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.NoError(t, page[0].DecodeErr)
	assert.Nil(t, page[1].Document)
	assert.Equal(t, schema.ErrCodeStore, schema.ErrorCode(page[1].DecodeErr))
	assert.NotNil(t, page[2].Document)

	_, err = s.GetFlowVersion(ctx, "fv-2")
	assert.Equal(t, schema.ErrCodeStore, schema.ErrorCode(err))
}

func TestUpdateFlowVersionDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fv := seedFlowVersion(t, s, "fv-1", "flow-1")
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, s.UpdateFlowVersionDocument(ctx, fv.ID, "1", graphDoc()))

	got, err := s.GetFlowVersion(ctx, fv.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", got.SchemaVersion)
	assert.Nil(t, got.Document.Trigger)
	require.NotNil(t, got.Document.Graph)
	assert.Len(t, got.Document.Graph.Nodes, 1)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestUpdateFlowVersionDocument_Conflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fv := seedFlowVersion(t, s, "fv-1", "flow-1")

	require.NoError(t, s.UpdateFlowVersionDocument(ctx, fv.ID, "1", graphDoc()))

	// A second writer still believes the record is at version 1.
	err := s.UpdateFlowVersionDocument(ctx, fv.ID, "1", graphDoc())
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeConflict, fe.Code)
	assert.Equal(t, "2", fe.Details["actual"])
}

func TestUpdateFlowVersionDocument_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateFlowVersionDocument(context.Background(), "missing", "1", graphDoc())
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

func TestDeleteFlowVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fv := seedFlowVersion(t, s, "fv-1", "flow-1")

	require.NoError(t, s.DeleteFlowVersion(ctx, fv.ID))
	_, err := s.GetFlowVersion(ctx, fv.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))

	err = s.DeleteFlowVersion(ctx, fv.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

// --- Migration bookkeeping tests ---

func TestRecordAndGetMigrationRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Add(-time.Second)

	run := &MigrationRun{ID: uuid.New().String(), DryRun: true, Scanned: 3, StartedAt: started}
	require.NoError(t, s.RecordMigrationRun(ctx, run))

	run.Migrated, run.Failed = 2, 1
	run.CompletedAt = time.Now().UTC()
	require.NoError(t, s.RecordMigrationRun(ctx, run))

	got, err := s.GetMigrationRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got.DryRun)
	assert.Equal(t, 3, got.Scanned)
	assert.Equal(t, 2, got.Migrated)
	assert.Equal(t, 1, got.Failed)

	_, err = s.GetMigrationRun(ctx, "missing")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

func TestRecordAndListMigrationFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.New().String()

	for i := 0; i < 3; i++ {
		f := &MigrationFailure{
			RunID:         runID,
			FlowVersionID: fmt.Sprintf("fv-%d", i),
			FromVersion:   "1",
			Code:          schema.ErrCodeBranchMismatch,
			StepName:      "router_1",
			Error:         "router has 2 children but 1 branch descriptors",
		}
		require.NoError(t, s.RecordMigrationFailure(ctx, f))
		assert.NotZero(t, f.ID)
	}
	require.NoError(t, s.RecordMigrationFailure(ctx, &MigrationFailure{
		RunID: "other-run", FlowVersionID: "fv-x", FromVersion: "1", Error: "boom",
	}))

	failures, err := s.ListMigrationFailures(ctx, runID)
	require.NoError(t, err)
	require.Len(t, failures, 3)
	assert.Equal(t, "fv-0", failures[0].FlowVersionID)
	assert.Equal(t, schema.ErrCodeBranchMismatch, failures[0].Code)
	assert.Equal(t, "router_1", failures[0].StepName)

	none, err := s.ListMigrationFailures(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	// Migrate was already called in newTestStore; calling again should be a no-op.
	require.NoError(t, s.Migrate(ctx))
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n\n-- only a comment\n;CREATE INDEX i ON a(x);")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Equal(t, "CREATE INDEX i ON a(x)", stmts[1])
}

func TestParseMigrationName(t *testing.T) {
	v, name, err := parseMigrationName("007_add_runs.sql")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, "add_runs", name)

	for _, bad := range []string{"initial.sql", "x_initial.sql", "000_zero.sql", "003_.sql"} {
		_, _, err := parseMigrationName(bad)
		assert.Error(t, err, bad)
		assert.Equal(t, schema.ErrCodeStore, schema.ErrorCode(err), bad)
	}
}

func TestLoadMigrationsOrdered(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].version)
	assert.Equal(t, "initial_schema", ms[0].name)
	assert.NotEmpty(t, ms[0].stmts)
	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].version, ms[i].version)
	}
}

func TestMigrateRecordsVersions(t *testing.T) {
	s := newTestStore(t)
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM db_migrations`).Scan(&n))
	ms, err := loadMigrations()
	require.NoError(t, err)
	assert.Equal(t, len(ms), n)
}

var _ Store = (*LibSQLStore)(nil)
