package store

import (
	"bufio"
	"context"
	"database/sql"
	"embed"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/rendis/flowgraph/pkg/schema"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// dbMigration is one embedded SQL file, named NNN_name.sql.
// Database schema only; flow document schema versions live in pkg/schema.
type dbMigration struct {
	version int
	name    string
	stmts   []string
}

// loadMigrations reads every embedded script ordered by version.
func loadMigrations() ([]dbMigration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "read embedded migrations").WithCause(err)
	}
	out := make([]dbMigration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		version, name, err := parseMigrationName(e.Name())
		if err != nil {
			return nil, err
		}
		body, err := migrationFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "read migration %s", e.Name()).WithCause(err)
		}
		out = append(out, dbMigration{version: version, name: name, stmts: splitStatements(string(body))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "duplicate migration version %d", out[i].version)
		}
	}
	return out, nil
}

func parseMigrationName(file string) (int, string, error) {
	base := strings.TrimSuffix(file, path.Ext(file))
	num, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", schema.NewErrorf(schema.ErrCodeStore, "migration %q is not named NNN_name.sql", file)
	}
	version, err := strconv.Atoi(num)
	if err != nil || version <= 0 {
		return 0, "", schema.NewErrorf(schema.ErrCodeStore, "migration %q has no positive version prefix", file)
	}
	return version, name, nil
}

// runMigrations applies every script newer than the highest recorded in db_migrations.
// Each script and its bookkeeping row commit together.
func runMigrations(ctx context.Context, db *sql.DB) error {
	pending, err := loadMigrations()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS db_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`); err != nil {
		return schema.NewError(schema.ErrCodeStore, "create db_migrations").WithCause(err)
	}

	var applied int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM db_migrations`).Scan(&applied); err != nil {
		return schema.NewError(schema.ErrCodeStore, "read applied migrations").WithCause(err)
	}
	for _, m := range pending {
		if m.version > applied {
			if err := applyMigration(ctx, db, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m dbMigration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "begin migration %03d_%s", m.version, m.name).WithCause(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for i, stmt := range m.stmts {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "migration %03d_%s statement %d", m.version, m.name, i+1).WithCause(err)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO db_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "record migration %03d_%s", m.version, m.name).WithCause(err)
	}
	if err = tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "commit migration %03d_%s", m.version, m.name).WithCause(err)
	}
	return nil
}

// splitStatements breaks a script into statements on ';', dropping
// "--" comment lines and chunks that hold nothing else.
func splitStatements(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	sc := bufio.NewScanner(strings.NewReader(script))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for {
			before, after, found := strings.Cut(line, ";")
			cur.WriteString(before)
			if !found {
				break
			}
			flush()
			line = after
		}
		cur.WriteByte('\n')
	}
	flush()
	return stmts
}
