package migration

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Defaults for RunnerConfig.
const (
	DefaultPoolSize = 4
	DefaultPageSize = 100
)

// RunnerConfig controls a batch run.
type RunnerConfig struct {
	PoolSize int
	PageSize int
	// VerifyGraph runs the graph invariant checker on every compiled graph and
	// refuses to persist one that fails.
	VerifyGraph bool
	// DryRun migrates in memory only. Nothing is written to the store.
	DryRun bool
	// Selector, when set, limits the run to matching records.
	Selector *Selector
	Retry    RetryPolicy
}

// Failure describes one record a run could not migrate.
type Failure struct {
	FlowVersionID string `json:"flow_version_id"`
	FromVersion   string `json:"from_version"`
	Code          string `json:"code,omitempty"`
	StepName      string `json:"step_name,omitempty"`
	Error         string `json:"error"`
}

// Report summarizes a run. Scanned counts every record read from the store;
// each is then exactly one of Migrated, Skipped, Conflicts or Failed.
type Report struct {
	RunID     string        `json:"run_id"`
	DryRun    bool          `json:"dry_run"`
	Scanned   int           `json:"scanned"`
	Migrated  int           `json:"migrated"`
	Skipped   int           `json:"skipped"`
	Conflicts int           `json:"conflicts"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Runner applies a Chain to every eligible flow version in a store.
type Runner struct {
	store  store.Store
	chain  *Chain
	logger *slog.Logger
	cfg    RunnerConfig
}

// NewRunner creates a runner. Zero config fields take their defaults.
func NewRunner(s store.Store, chain *Chain, logger *slog.Logger, cfg RunnerConfig) *Runner {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: s, chain: chain, logger: logger, cfg: cfg}
}

// outcome of migrating a single record.
type outcome int

const (
	outcomeMigrated outcome = iota
	outcomeSkipped
	outcomeConflict
	outcomeFailed
)

// tally accumulates per-record outcomes from concurrent workers.
type tally struct {
	mu     sync.Mutex
	report *Report
}

func (t *tally) add(o outcome, f *Failure) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case outcomeMigrated:
		t.report.Migrated++
	case outcomeSkipped:
		t.report.Skipped++
	case outcomeConflict:
		t.report.Conflicts++
	case outcomeFailed:
		t.report.Failed++
		t.report.Failures = append(t.report.Failures, *f)
	}
}

// Run pages through every flow version at a schema version the chain migrates,
// migrating each independently. A failing record is reported and left untouched;
// it never stops the batch. Run returns early with ctx's error on cancellation,
// together with the partial report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	started := time.Now().UTC()
	report := &Report{RunID: uuid.New().String(), DryRun: r.cfg.DryRun}
	ctx = logging.WithRunID(ctx, report.RunID)
	log := logging.LogWith(ctx, r.logger)
	t := &tally{report: report}

	log.Info("migration run started",
		"source_versions", r.chain.SourceVersions(),
		"dry_run", r.cfg.DryRun,
		"pool_size", r.cfg.PoolSize,
	)

	pool := newRecordPool(ctx, r.cfg.PoolSize, func(ctx context.Context, fv *store.FlowVersion) error {
		o, f := r.migrateOne(ctx, fv)
		t.add(o, f)
		if f != nil {
			return errors.New(f.Error)
		}
		return nil
	})
	runErr := r.scan(ctx, pool, t)
	pool.Close()
	report.Duration = time.Since(started)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].FlowVersionID < report.Failures[j].FlowVersionID
	})
	stats := pool.Stats()

	if !r.cfg.DryRun {
		run := &store.MigrationRun{
			ID:          report.RunID,
			Scanned:     report.Scanned,
			Migrated:    report.Migrated,
			Skipped:     report.Skipped + report.Conflicts,
			Failed:      report.Failed,
			StartedAt:   started,
			CompletedAt: time.Now().UTC(),
		}
		// Record the run even after cancellation, so the failures stay attributable.
		if err := r.store.RecordMigrationRun(context.WithoutCancel(ctx), run); err != nil {
			log.Error("record migration run", "error", err)
			if runErr == nil {
				runErr = err
			}
		}
	}

	log.Info("migration run finished",
		"scanned", report.Scanned,
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"conflicts", report.Conflicts,
		"failed", report.Failed,
		"panics", stats.Panics,
		"duration", report.Duration,
	)
	return report, runErr
}

func (r *Runner) scan(ctx context.Context, pool *recordPool, t *tally) error {
	filter := store.FlowVersionFilter{
		SchemaVersions: r.chain.SourceVersions(),
		Limit:          r.cfg.PageSize,
	}
	if len(filter.SchemaVersions) == 0 {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.store.ListFlowVersions(ctx, filter)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		for _, fv := range page {
			if err := pool.Enqueue(ctx, fv); err != nil {
				return err
			}
			t.mu.Lock()
			t.report.Scanned++
			t.mu.Unlock()
		}

		if len(page) < filter.Limit {
			return nil
		}
		filter.AfterID = page[len(page)-1].ID
	}
}

// migrateOne upgrades a single record. A panic in a migration is reported as
// that record's failure.
func (r *Runner) migrateOne(ctx context.Context, fv *store.FlowVersion) (o outcome, f *Failure) {
	ctx = logging.WithFlowVersionID(ctx, fv.ID)
	log := logging.LogWith(ctx, r.logger)

	defer func() {
		if rec := recover(); rec != nil {
			o, f = r.fail(ctx, log, fv, schema.NewErrorf(schema.ErrCodeMigrationFailed, "migration panicked: %v", rec))
		}
	}()

	if fv.DecodeErr != nil {
		return r.fail(ctx, log, fv, fv.DecodeErr)
	}
	if r.cfg.Selector != nil {
		ok, err := r.cfg.Selector.Match(ctx, fv)
		if err != nil {
			return r.fail(ctx, log, fv, err)
		}
		if !ok {
			log.Debug("flow version not selected", "selector", r.cfg.Selector.String())
			return outcomeSkipped, nil
		}
	}

	out, applied, err := r.chain.Apply(fv.Document)
	if err != nil {
		return r.fail(ctx, log, fv, err)
	}
	if len(applied) == 0 {
		return outcomeSkipped, nil
	}

	if r.cfg.VerifyGraph && out.Graph != nil {
		if res := validation.CheckGraph(out.Graph); !res.Valid() {
			verr := res.ToError()
			return r.fail(ctx, log, fv, schema.NewErrorf(schema.ErrCodeMigrationFailed,
				"compiled graph violates invariants: %s", verr.Error()).WithCause(verr))
		}
	}

	if r.cfg.DryRun {
		log.Debug("flow version would migrate", "migrations", applied, "to", out.SchemaVersion)
		return outcomeMigrated, nil
	}

	err = withRetry(ctx, r.cfg.Retry, func() error {
		return r.store.UpdateFlowVersionDocument(ctx, fv.ID, fv.SchemaVersion, out)
	})
	if err != nil {
		switch schema.ErrorCode(err) {
		case schema.ErrCodeConflict, schema.ErrCodeNotFound:
			// Another writer moved or removed the record after it was read.
			log.Warn("flow version changed during migration", "error", err)
			return outcomeConflict, nil
		}
		return r.fail(ctx, log, fv, err)
	}

	log.Info("flow version migrated", "migrations", applied, "from", fv.SchemaVersion, "to", out.SchemaVersion)
	return outcomeMigrated, nil
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, fv *store.FlowVersion, err error) (outcome, *Failure) {
	f := &Failure{
		FlowVersionID: fv.ID,
		FromVersion:   fv.SchemaVersion,
		Code:          failureCode(err),
		StepName:      failureStep(err),
		Error:         err.Error(),
	}
	if f.StepName != "" {
		ctx = logging.WithStepName(ctx, f.StepName)
		log = logging.LogWith(ctx, r.logger)
	}
	log.Warn("flow version migration failed", "code", f.Code, "error", err)

	if !r.cfg.DryRun {
		rec := &store.MigrationFailure{
			RunID:         logging.RunID(ctx),
			FlowVersionID: f.FlowVersionID,
			FromVersion:   f.FromVersion,
			Code:          f.Code,
			StepName:      f.StepName,
			Error:         f.Error,
		}
		if rerr := r.store.RecordMigrationFailure(context.WithoutCancel(ctx), rec); rerr != nil {
			log.Error("record migration failure", "error", rerr)
		}
	}
	return outcomeFailed, f
}

// failureCode picks the most specific code in err's chain, preferring the
// underlying cause over the MIGRATION_FAILED wrapper.
func failureCode(err error) string {
	var code string
	var fe *schema.FlowError
	for errors.As(err, &fe) {
		code = fe.Code
		err = fe.Cause
	}
	return code
}

// failureStep returns the deepest step name in err's chain, or "".
func failureStep(err error) string {
	var step string
	var fe *schema.FlowError
	for errors.As(err, &fe) {
		if fe.StepName != "" {
			step = fe.StepName
		}
		err = fe.Cause
	}
	return step
}
