package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
)

// Outcome is the result of resolving one row.
type Outcome uint8

const (
	Skipped Outcome = iota
	Inserted
	Updated
	Unchanged
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Conflict:
		return "conflict"
	default:
		return "skipped"
	}
}

// Resolver applies the 0/1/many rule for one table.
type Resolver struct {
	Table        string
	FilterFields []string
	// DryRun counts matches but never mutates.
	DryRun bool

	// pending holds, per row a dry run would have inserted, its values for
	// FilterFields (nil when absent or NULL). Later rows count them as
	// matches, so outcomes agree with a real run.
	pending [][]any
}

// Resolve matches row against the table inside tx.
//
// Zero matches insert the row, one match updates that record from the row's
// non-filter columns, and two or more record an *AmbiguousMatchError without
// touching the data. Row-level problems come back as errors for which
// IsRowError is true; any other error is a database failure.
func (r *Resolver) Resolve(ctx context.Context, tx storage.Tx, row Row) (Outcome, error) {
	f, err := BuildFilter(r.Table, r.FilterFields, row)
	if err != nil {
		return Skipped, err
	}

	n, err := tx.Count(ctx, r.Table, f.Predicate)
	if err != nil {
		return Skipped, fmt.Errorf("resolve: count: %w", err)
	}
	if r.DryRun {
		n += r.pendingMatches(f)
	}

	switch {
	case n == 0:
		if r.DryRun {
			r.pending = append(r.pending, r.filterValues(row))
			return Inserted, nil
		}
		if err := tx.Insert(ctx, r.Table, row.Columns, row.Values); err != nil {
			return Skipped, fmt.Errorf("resolve: insert row %d: %w", row.Num, err)
		}
		return Inserted, nil

	case n == 1:
		cols, vals := r.updateSet(row)
		if len(cols) == 0 {
			return Unchanged, nil
		}
		if !r.DryRun {
			if _, err := tx.Update(ctx, r.Table, cols, vals, f.Predicate); err != nil {
				return Skipped, fmt.Errorf("resolve: update row %d: %w", row.Num, err)
			}
		}
		return Updated, nil

	default:
		return Conflict, &AmbiguousMatchError{Row: row.Num, Fields: f.Fields, Values: f.Values, Count: n}
	}
}

func (r *Resolver) filterValues(row Row) []any {
	vals := make([]any, len(r.FilterFields))
	for i, field := range r.FilterFields {
		if j := indexFold(row.Columns, field); j >= 0 {
			vals[i] = row.Values[j]
		}
	}
	return vals
}

// pendingMatches counts would-be inserted rows that satisfy f. A NULL never
// matches, as in SQL.
func (r *Resolver) pendingMatches(f Filter) int64 {
	var n int64
	for _, p := range r.pending {
		ok := true
		for k, field := range f.Fields {
			i := indexFold(r.FilterFields, field)
			if i < 0 || p[i] == nil || fmt.Sprint(p[i]) != fmt.Sprint(f.Values[k]) {
				ok = false
				break
			}
		}
		if ok {
			n++
		}
	}
	return n
}

// updateSet returns the row's columns that are not configured filter fields.
// Blank values are kept so they write NULL.
func (r *Resolver) updateSet(row Row) ([]string, []any) {
	var cols []string
	var vals []any
	for i, c := range row.Columns {
		if r.isFilterField(c) {
			continue
		}
		cols = append(cols, c)
		vals = append(vals, row.Values[i])
	}
	return cols, vals
}

func (r *Resolver) isFilterField(col string) bool {
	for _, f := range r.FilterFields {
		if strings.EqualFold(f, col) {
			return true
		}
	}
	return false
}

// IsRowError reports whether err only affects the current row.
func IsRowError(err error) bool {
	var nf *NoFilterValueError
	var am *AmbiguousMatchError
	return errors.As(err, &nf) || errors.As(err, &am)
}
