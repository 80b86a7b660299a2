package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowgraph/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/flows.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Flow versions ---

const flowVersionColumns = "id, flow_id, display_name, schema_version, document, created_at, updated_at"

func (s *LibSQLStore) CreateFlowVersion(ctx context.Context, fv *FlowVersion) error {
	if fv.ID == "" || fv.FlowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "flow version requires id and flow_id")
	}
	if fv.Document == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "flow version %q has no document", fv.ID)
	}
	doc, err := json.Marshal(fv.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	now := time.Now().UTC()
	fv.SchemaVersion = fv.Document.SchemaVersion
	fv.CreatedAt = timeOr(fv.CreatedAt, now)
	fv.UpdatedAt = timeOr(fv.UpdatedAt, fv.CreatedAt)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flow_versions (`+flowVersionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fv.ID, fv.FlowID, nullStr(fv.DisplayName), fv.SchemaVersion, string(doc), fv.CreatedAt, fv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return schema.NewErrorf(schema.ErrCodeConflict, "flow version %q already exists", fv.ID).WithCause(err)
		}
		return storeError("create flow version", err)
	}
	return nil
}

func (s *LibSQLStore) GetFlowVersion(ctx context.Context, id string) (*FlowVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+flowVersionColumns+` FROM flow_versions WHERE id = ?`, id,
	)
	fv, err := scanFlowVersion(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("flow version", id)
	}
	if err != nil {
		return nil, err
	}
	if fv.DecodeErr != nil {
		return nil, fv.DecodeErr
	}
	return fv, nil
}

func (s *LibSQLStore) ListFlowVersions(ctx context.Context, filter FlowVersionFilter) ([]*FlowVersion, error) {
	var where []string
	var args []any

	if len(filter.SchemaVersions) > 0 {
		marks := make([]string, len(filter.SchemaVersions))
		for i, v := range filter.SchemaVersions {
			marks[i] = "?"
			args = append(args, v)
		}
		where = append(where, "schema_version IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.FlowID != "" {
		where = append(where, "flow_id = ?")
		args = append(args, filter.FlowID)
	}
	if filter.AfterID != "" {
		where = append(where, "id > ?")
		args = append(args, filter.AfterID)
	}

	query := "SELECT " + flowVersionColumns + " FROM flow_versions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list flow versions", err)
	}
	defer rows.Close()

	var versions []*FlowVersion
	for rows.Next() {
		fv, err := scanFlowVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, fv)
	}
	return versions, rows.Err()
}

func (s *LibSQLStore) UpdateFlowVersionDocument(ctx context.Context, id, fromVersion string, doc *schema.Document) error {
	if doc == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "flow version %q: nil document", id)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE flow_versions SET document = ?, schema_version = ?, updated_at = ?
		 WHERE id = ? AND schema_version = ?`,
		string(data), doc.SchemaVersion, time.Now().UTC(), id, fromVersion,
	)
	if err != nil {
		return storeError("update flow version", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Nothing matched: either the row is gone or its version moved on.
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT schema_version FROM flow_versions WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return storeNotFound("flow version", id)
	}
	if err != nil {
		return storeError("update flow version", err)
	}
	return schema.NewErrorf(schema.ErrCodeConflict,
		"flow version %q is at schema version %q, expected %q", id, current, fromVersion,
	).WithDetails(map[string]any{"expected": fromVersion, "actual": current})
}

func (s *LibSQLStore) DeleteFlowVersion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flow_versions WHERE id = ?`, id)
	if err != nil {
		return storeError("delete flow version", err)
	}
	return checkRowsAffected(res, "flow version", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlowVersion(r rowScanner) (*FlowVersion, error) {
	fv := &FlowVersion{}
	var displayName sql.NullString
	var docJSON string
	if err := r.Scan(&fv.ID, &fv.FlowID, &displayName, &fv.SchemaVersion, &docJSON, &fv.CreatedAt, &fv.UpdatedAt); err != nil {
		return nil, err
	}
	fv.DisplayName = displayName.String
	doc, err := schema.ParseDocument([]byte(docJSON))
	if err != nil {
		// Kept on the record so one bad row does not fail a whole page.
		fv.DecodeErr = schema.NewErrorf(schema.ErrCodeStore, "flow version %q: stored document is invalid", fv.ID).WithCause(err)
		return fv, nil
	}
	fv.Document = doc
	return fv, nil
}

// --- Migration runs ---

func (s *LibSQLStore) RecordMigrationRun(ctx context.Context, run *MigrationRun) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_runs (id, dry_run, scanned, migrated, skipped, failed, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET scanned=excluded.scanned, migrated=excluded.migrated,
		   skipped=excluded.skipped, failed=excluded.failed, completed_at=excluded.completed_at`,
		run.ID, boolToInt(run.DryRun), run.Scanned, run.Migrated, run.Skipped, run.Failed,
		timeOr(run.StartedAt, now), timeOr(run.CompletedAt, now),
	)
	if err != nil {
		return storeError("record migration run", err)
	}
	return nil
}

func (s *LibSQLStore) GetMigrationRun(ctx context.Context, id string) (*MigrationRun, error) {
	run := &MigrationRun{}
	var dryRun int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, dry_run, scanned, migrated, skipped, failed, started_at, completed_at FROM migration_runs WHERE id = ?`, id,
	).Scan(&run.ID, &dryRun, &run.Scanned, &run.Migrated, &run.Skipped, &run.Failed, &run.StartedAt, &run.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("migration run", id)
	}
	if err != nil {
		return nil, err
	}
	run.DryRun = dryRun != 0
	return run, nil
}

func (s *LibSQLStore) RecordMigrationFailure(ctx context.Context, f *MigrationFailure) error {
	f.CreatedAt = timeOr(f.CreatedAt, time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_failures (run_id, flow_version_id, from_version, code, step_name, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.RunID, f.FlowVersionID, f.FromVersion, nullStr(f.Code), nullStr(f.StepName), f.Error, f.CreatedAt,
	)
	if err != nil {
		return storeError("record migration failure", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		f.ID = id
	}
	return nil
}

func (s *LibSQLStore) ListMigrationFailures(ctx context.Context, runID string) ([]*MigrationFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, flow_version_id, from_version, code, step_name, error, created_at
		 FROM migration_failures WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, storeError("list migration failures", err)
	}
	defer rows.Close()

	var failures []*MigrationFailure
	for rows.Next() {
		f := &MigrationFailure{}
		var code, step sql.NullString
		if err := rows.Scan(&f.ID, &f.RunID, &f.FlowVersionID, &f.FromVersion, &code, &step, &f.Error, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Code = code.String
		f.StepName = step.String
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

func timeOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
