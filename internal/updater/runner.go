// Package updater runs one batch: it snapshots the source database, then
// takes every CSV member through parse, schema validation and processing,
// recording every failure without letting one member stop the batch.
package updater

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/batch"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/config"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/metrics"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/parser/csv"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/transformer"
)

// Test hooks.
var (
	openRepository = storage.New
	createSnapshot = batch.CreateSnapshot
	newRunID       = uuid.NewString
)

// Options configures a run.
type Options struct {
	Source         string // source database file
	StorageKind    string
	Batch          batch.Batch
	Filters        config.FilterSpec
	SnapshotPrefix string
	ErrorLog       string // file name inside the batch folder
	ChunkSize      int
	DryRun         bool
	CSV            csv.Options
}

// Runner executes one batch.
type Runner struct {
	opts Options
	log  *zap.Logger
	col  *report.Collector
	meta report.Meta
	job  string
}

// New returns a Runner. A nil logger discards output.
func New(opts Options, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ErrorLog == "" {
		opts.ErrorLog = "errors.json"
	}
	return &Runner{opts: opts, log: log, col: report.NewCollector(), job: opts.Batch.Name}
}

// Collector exposes the records gathered so far.
func (r *Runner) Collector() *report.Collector { return r.col }

// Run processes the batch. The returned error is non-nil only for
// batch-level fatal conditions; everything else is in the summary and the
// error document.
func (r *Runner) Run(ctx context.Context) (report.Summary, error) {
	start := time.Now()
	b := r.opts.Batch
	r.meta = report.Meta{RunID: newRunID(), Batch: b.Name, DryRun: r.opts.DryRun}
	r.log = r.log.With(zap.String("run_id", r.meta.RunID), zap.String("batch", b.Name))

	sum := report.Summary{
		Batch:    b.Name,
		RunID:    r.meta.RunID,
		DryRun:   r.opts.DryRun,
		ErrorLog: filepath.Join(b.Dir, r.opts.ErrorLog),
	}

	err := r.run(ctx, &sum)
	sum.Duration = time.Since(start)
	metrics.RecordStep(r.job, "batch", err, sum.Duration)
	if err != nil {
		r.col.AddError(b.Name, "", err)
	}
	metrics.RecordReported(r.job, string(report.LevelError), int64(r.col.ErrorCount()))
	metrics.RecordReported(r.job, string(report.LevelWarning), int64(r.col.WarningCount()))

	if ferr := r.col.Flush(sum.ErrorLog, r.meta); ferr != nil {
		r.log.Error("write error document", zap.String("path", sum.ErrorLog), zap.Error(ferr))
		if err == nil {
			err = ferr
		}
	}
	return sum, err
}

func (r *Runner) run(ctx context.Context, sum *report.Summary) error {
	b := r.opts.Batch
	members, bad, err := batch.ListMembers(b.Dir)
	if err != nil {
		return err
	}
	r.log.Info("batch discovered",
		zap.String("dir", b.Dir),
		zap.Int("members", len(members)),
		zap.Int("unparsable", len(bad)),
		zap.Bool("dry_run", r.opts.DryRun))

	for _, fe := range bad {
		r.col.AddError(fe.Name, "", fe)
		m := &member{summary: report.MemberSummary{File: fe.Name}, failed: true}
		sum.Members = append(sum.Members, m.finish(1, 0))
		metrics.RecordMember(r.job, "", string(Failed))
		r.log.Warn("skipping member", zap.String("file", fe.Name), zap.Error(fe))
	}

	dbPath := r.opts.Source
	if !r.opts.DryRun {
		t0 := time.Now()
		snap, err := createSnapshot(r.opts.Source, b, r.opts.SnapshotPrefix)
		metrics.RecordStep(r.job, "snapshot", err, time.Since(t0))
		if err != nil {
			return err
		}
		r.log.Info("snapshot created",
			zap.String("path", snap.Path),
			zap.Int64("bytes", snap.Size),
			zap.String("xxh3", fmt.Sprintf("%016x", snap.Digest)))
		dbPath = snap.Path
		sum.Snapshot = snap.Path
	}

	repo, err := openRepository(ctx, storage.Config{Kind: r.opts.StorageKind, Path: dbPath, ReadOnly: r.opts.DryRun})
	if err != nil {
		return err
	}
	defer repo.Close()

	for _, bm := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		ms, err := r.processMember(ctx, repo, bm)
		if err != nil {
			return err
		}
		sum.Members = append(sum.Members, ms)
		if r.col.Dirty() {
			if err := r.col.Flush(sum.ErrorLog, r.meta); err != nil {
				r.log.Error("write error document", zap.String("path", sum.ErrorLog), zap.Error(err))
			}
		}
	}
	return nil
}

// processMember runs one member through the state machine. Only
// *storage.DatabaseIOError is returned; every other failure is recorded.
func (r *Runner) processMember(ctx context.Context, repo storage.Repository, bm batch.Member) (report.MemberSummary, error) {
	start := time.Now()
	errs0, warns0 := r.col.ErrorCount(), r.col.WarningCount()
	m := &member{summary: report.MemberSummary{File: bm.Name, Table: bm.Table, Operation: string(bm.Operation)}}
	log := r.log.With(zap.String("file", bm.Name), zap.String("table", bm.Table), zap.String("op", string(bm.Operation)))
	log.Info("member start")

	fatal := r.stepMember(ctx, repo, bm, m, log)

	ms := m.finish(r.col.ErrorCount()-errs0, r.col.WarningCount()-warns0)
	stepErr := fatal
	if stepErr == nil && ms.Outcome == string(Failed) {
		stepErr = errors.New(ms.Outcome)
	}
	metrics.RecordStep(r.job, "member", stepErr, time.Since(start))
	metrics.RecordMember(r.job, ms.Operation, ms.Outcome)
	for kind, n := range map[string]int{
		"processed":  ms.Processed,
		"inserted":   ms.Inserted,
		"updated":    ms.Updated,
		"appended":   ms.Appended,
		"conflicts":  ms.Conflicts,
		"row_errors": ms.Errors,
	} {
		metrics.RecordRow(r.job, bm.Table, kind, int64(n))
	}

	log.Info("member done",
		zap.String("state", ms.State),
		zap.String("outcome", ms.Outcome),
		zap.Int("rows", ms.Processed),
		zap.Int("inserted", ms.Inserted),
		zap.Int("updated", ms.Updated),
		zap.Int("appended", ms.Appended),
		zap.Int("conflicts", ms.Conflicts),
		zap.Int("errors", ms.Errors),
		zap.Int("warnings", ms.Warnings),
		zap.Duration("elapsed", time.Since(start)))
	return ms, fatal
}

func (r *Runner) stepMember(ctx context.Context, repo storage.Repository, bm batch.Member, m *member, log *zap.Logger) error {
	fail := func(err error) {
		m.failed = true
		r.col.AddError(bm.Name, bm.Table, err)
		log.Warn("member failed", zap.String("state", m.state.String()), zap.Error(err))
	}

	var fields []string
	if bm.Operation == batch.OpUpdate {
		var ok bool
		if fields, ok = r.opts.Filters.Fields(bm.Table); !ok {
			fail(&config.FilterSpecMissingError{Table: bm.Table})
			return nil
		}
	}

	tbl, err := repo.Describe(ctx, bm.Table)
	if err != nil {
		var dbErr *storage.DatabaseIOError
		if errors.As(err, &dbErr) {
			return err
		}
		fail(err)
		return nil
	}

	rd, err := csv.Open(bm.Path, r.opts.CSV)
	if err != nil {
		fail(err)
		return nil
	}
	defer rd.Close()
	m.advance(Parsed)

	if err := schema.Validate(rd.Header(), tbl); err != nil {
		fail(err)
		return nil
	}
	plan, err := transformer.CompilePlan(tbl, rd.Header())
	if err != nil {
		fail(err)
		return nil
	}
	m.advance(SchemaValidated)

	var perr error
	switch bm.Operation {
	case batch.OpAppend:
		perr = r.runAppend(ctx, repo, rd, plan, bm, m, log)
	default:
		perr = r.runUpdate(ctx, repo, rd, plan, fields, bm, m, log)
	}
	if perr != nil {
		var dbErr *storage.DatabaseIOError
		if errors.As(perr, &dbErr) {
			return perr
		}
		fail(perr)
		return nil
	}
	m.advance(Processed)
	return nil
}

// coerce applies the plan to one row, recording warnings and coercion
// errors. ok is false when the row must be skipped.
func (r *Runner) coerce(plan *transformer.Plan, bm batch.Member, row csv.Row) (values []any, ok bool) {
	res := plan.Apply(row.Num, row.Values)
	for _, w := range res.Warnings {
		rec := w.Record()
		rec.File, rec.Table = bm.Name, bm.Table
		r.col.Add(rec)
	}
	for _, ce := range res.Errors {
		r.col.AddError(bm.Name, bm.Table, ce)
	}
	return res.Values, res.OK()
}
