package updater

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/batch"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/parser/csv"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/transformer"
)

// runAppend coerces every row and bulk-inserts the good ones through a
// staging table. Rows that fail coercion are recorded and skipped; a failure
// while loading or publishing discards the whole member.
func (r *Runner) runAppend(ctx context.Context, repo storage.Repository, rd *csv.Reader, plan *transformer.Plan, bm batch.Member, m *member, log *zap.Logger) error {
	if r.opts.DryRun {
		return rd.ForEachChunk(ctx, r.opts.ChunkSize, func(c csv.Chunk) error {
			for _, row := range c.Rows {
				m.summary.Processed++
				if _, ok := r.coerce(plan, bm, row); ok {
					m.summary.Appended++
				}
			}
			return nil
		})
	}

	tx, err := repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stage, err := tx.Stage(ctx, bm.Table, plan.Columns())
	if err != nil {
		return fmt.Errorf("append %s: stage: %w", bm.Table, err)
	}

	var processed int
	err = rd.ForEachChunk(ctx, r.opts.ChunkSize, func(c csv.Chunk) error {
		rows := make([][]any, 0, len(c.Rows))
		for _, row := range c.Rows {
			processed++
			if vals, ok := r.coerce(plan, bm, row); ok {
				rows = append(rows, vals)
			}
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := stage.Load(ctx, rows); err != nil {
			return fmt.Errorf("append %s: load chunk %d: %w", bm.Table, c.Index, err)
		}
		log.Debug("chunk staged", zap.Int("chunk", c.Index), zap.Int("rows", len(rows)), zap.Int("total", processed))
		return nil
	})
	m.summary.Processed = processed
	if err != nil {
		return err
	}

	n, err := stage.Publish(ctx)
	if err != nil {
		return fmt.Errorf("append %s: publish: %w", bm.Table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append %s: commit: %w", bm.Table, err)
	}
	m.summary.Appended = int(n)
	return nil
}
