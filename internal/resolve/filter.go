// Package resolve decides, for each update-mode row, whether it inserts a new
// record, updates its single existing match, or conflicts with several.
package resolve

import (
	"fmt"
	"strings"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
)

// Row is a coerced CSV record. Columns are declared table column names and
// Values align with them; nil means NULL.
type Row struct {
	Num     int
	Columns []string
	Values  []any
}

// Filter is the conjunctive match condition built for one row.
type Filter struct {
	Table     string
	Fields    []string // filter fields that carried a value, in configured order
	Values    []any
	Predicate storage.Predicate
}

// BuildFilter builds the WHERE predicate for row from the configured filter
// fields. Fields that are absent from the row or NULL are left out. When no
// field is usable it returns *NoFilterValueError.
func BuildFilter(table string, fields []string, row Row) (Filter, error) {
	f := Filter{Table: table}
	var conds []string
	for _, field := range fields {
		i := indexFold(row.Columns, field)
		if i < 0 || row.Values[i] == nil {
			continue
		}
		col := row.Columns[i]
		conds = append(conds, storage.QuoteIdent(col)+" = ?")
		f.Fields = append(f.Fields, col)
		f.Values = append(f.Values, row.Values[i])
	}
	if len(conds) == 0 {
		return Filter{}, &NoFilterValueError{Row: row.Num, Fields: fields}
	}
	f.Predicate = storage.Predicate{Clause: strings.Join(conds, " AND "), Args: f.Values}
	return f, nil
}

func indexFold(cols []string, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// NoFilterValueError reports an update row where every filter field is
// missing or blank.
type NoFilterValueError struct {
	Row    int
	Fields []string
}

func (e *NoFilterValueError) Error() string {
	return fmt.Sprintf("row %d: no valid filter conditions found in row", e.Row)
}

// Record implements report.Recordable.
func (e *NoFilterValueError) Record() report.Record {
	return report.Record{
		Kind:         "NoFilterValueError",
		Error:        "No valid filter conditions found in row",
		Row:          e.Row,
		FilterFields: e.Fields,
	}
}

// AmbiguousMatchError reports a row whose filter matches two or more
// existing records. The database is left untouched for that row.
type AmbiguousMatchError struct {
	Row    int
	Fields []string
	Values []any
	Count  int64
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("row %d: multiple matching records found (%d)", e.Row, e.Count)
}

// Record implements report.Recordable.
func (e *AmbiguousMatchError) Record() report.Record {
	return report.Record{
		Kind:         "AmbiguousMatchError",
		Error:        "Multiple matching records found",
		Row:          e.Row,
		FilterFields: e.Fields,
		FilterValues: e.Values,
		MatchCount:   e.Count,
	}
}
