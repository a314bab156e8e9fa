package updater

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/batch"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/parser/csv"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/resolve"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/transformer"
)

// runUpdate resolves every row against the filter fields inside one
// transaction. Row-level problems are recorded and the row skipped; any
// database failure rolls the member back.
func (r *Runner) runUpdate(ctx context.Context, repo storage.Repository, rd *csv.Reader, plan *transformer.Plan, fields []string, bm batch.Member, m *member, log *zap.Logger) error {
	tx, err := repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res := &resolve.Resolver{Table: bm.Table, FilterFields: fields, DryRun: r.opts.DryRun}
	cols := plan.Columns()
	var s report.MemberSummary

	err = rd.ForEachChunk(ctx, r.opts.ChunkSize, func(c csv.Chunk) error {
		for _, row := range c.Rows {
			s.Processed++
			vals, ok := r.coerce(plan, bm, row)
			if !ok {
				continue
			}
			out, err := res.Resolve(ctx, tx, resolve.Row{Num: row.Num, Columns: cols, Values: vals})
			switch {
			case err != nil && resolve.IsRowError(err):
				r.col.AddError(bm.Name, bm.Table, err)
				if out == resolve.Conflict {
					s.Conflicts++
				}
				continue
			case err != nil:
				return err
			}
			switch out {
			case resolve.Inserted:
				s.Inserted++
			case resolve.Updated:
				s.Updated++
			case resolve.Unchanged:
				s.Unchanged++
			}
		}
		log.Debug("chunk resolved", zap.Int("chunk", c.Index), zap.Int("rows", len(c.Rows)), zap.Int("total", s.Processed))
		return nil
	})
	m.summary.Processed = s.Processed
	if err != nil {
		return err
	}

	if !r.opts.DryRun {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("update %s: commit: %w", bm.Table, err)
		}
	}
	m.summary.Inserted = s.Inserted
	m.summary.Updated = s.Updated
	m.summary.Unchanged = s.Unchanged
	m.summary.Conflicts = s.Conflicts
	return nil
}
