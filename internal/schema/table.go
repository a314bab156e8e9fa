package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
)

// Column is one catalog column.
type Column struct {
	Name string
	Type Type
}

// Table is the ordered column set of a live table.
type Table struct {
	Name    string
	Columns []Column
}

// NewTable builds a Table from (name, declared type) pairs in catalog order.
func NewTable(name string, cols ...[2]string) Table {
	t := Table{Name: name, Columns: make([]Column, 0, len(cols))}
	for _, c := range cols {
		t.Columns = append(t.Columns, Column{Name: c[0], Type: ParseType(c[1])})
	}
	return t
}

// Names returns the column names in catalog order.
func (t Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Lookup finds a column by case-insensitive name.
func (t Table) Lookup(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Inspector reports the live schema of a table.
type Inspector interface {
	Describe(ctx context.Context, table string) (Table, error)
}

// LookupError reports a table that does not exist in the target database.
type LookupError struct {
	Table string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("table %q does not exist", e.Table)
}

// Record implements report.Recordable.
func (e *LookupError) Record() report.Record {
	return report.Record{Kind: "SchemaLookupError", Error: e.Error(), Table: e.Table}
}
