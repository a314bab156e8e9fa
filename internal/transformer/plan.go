// Package transformer turns raw CSV cells into values typed by the live
// table schema.
//
// A Plan is compiled once per file from the table schema and the CSV header.
// Each column gets a coercion function picked from a table keyed by the
// column's schema.Kind, so the row loop never branches on type names.
package transformer

import (
	"fmt"
	"strings"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
)

// Strategy is the coercion decision for a column.
type Strategy uint8

const (
	// StrategyText preserves the cell verbatim, leading zeros included.
	StrategyText Strategy = iota
	// StrategyNumeric parses integers and reals with the declared bounds.
	StrategyNumeric
	// StrategyDate normalizes date and timestamp spellings.
	StrategyDate
	// StrategyBoolean parses the usual truthy and falsy spellings.
	StrategyBoolean
)

func (s Strategy) String() string {
	switch s {
	case StrategyNumeric:
		return "numeric"
	case StrategyDate:
		return "date"
	case StrategyBoolean:
		return "boolean"
	default:
		return "text"
	}
}

// coerceFunc converts a non-blank cell. A non-empty warning is reported
// alongside a successfully converted value.
type coerceFunc func(s string, t schema.Type) (v any, warning string, err error)

type strategyEntry struct {
	strategy Strategy
	coerce   coerceFunc
}

var strategies = map[schema.Kind]strategyEntry{
	schema.KindText:      {StrategyText, coerceText},
	schema.KindInteger:   {StrategyNumeric, coerceInteger},
	schema.KindReal:      {StrategyNumeric, coerceReal},
	schema.KindBoolean:   {StrategyBoolean, coerceBoolean},
	schema.KindDate:      {StrategyDate, coerceDate},
	schema.KindTimestamp: {StrategyDate, coerceTimestamp},
}

// Rule is the compiled coercion for one CSV column.
type Rule struct {
	Header   string // CSV header as read
	Column   string // table column name as declared
	Index    int    // position in the CSV record
	Type     schema.Type
	Strategy Strategy

	coerce coerceFunc
}

// Plan maps a CSV header onto a table schema.
type Plan struct {
	Table string
	Rules []Rule

	byColumn map[string]int
}

// CompilePlan builds the per-column coercion plan. Every header column must
// exist in t; run schema.Validate first to get a reportable error.
func CompilePlan(t schema.Table, header []string) (*Plan, error) {
	p := &Plan{
		Table:    t.Name,
		Rules:    make([]Rule, 0, len(header)),
		byColumn: make(map[string]int, len(header)),
	}
	for i, h := range header {
		col, ok := t.Lookup(h)
		if !ok {
			return nil, fmt.Errorf("transformer: column %q not in table %q", h, t.Name)
		}
		key := strings.ToLower(col.Name)
		if _, dup := p.byColumn[key]; dup {
			return nil, fmt.Errorf("transformer: column %q appears twice", h)
		}
		entry, ok := strategies[col.Type.Kind]
		if !ok {
			entry = strategies[schema.KindText]
		}
		p.byColumn[key] = len(p.Rules)
		p.Rules = append(p.Rules, Rule{
			Header:   h,
			Column:   col.Name,
			Index:    i,
			Type:     col.Type,
			Strategy: entry.strategy,
			coerce:   entry.coerce,
		})
	}
	return p, nil
}

// Columns returns the table column names in CSV order.
func (p *Plan) Columns() []string {
	out := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		out[i] = r.Column
	}
	return out
}

// IndexOf returns the value position of a table column, matched
// case-insensitively, or -1.
func (p *Plan) IndexOf(column string) int {
	if i, ok := p.byColumn[strings.ToLower(column)]; ok {
		return i
	}
	return -1
}

// Result is one coerced row. Values align with Columns. When Errors is
// non-empty the row must not be written.
type Result struct {
	Row      int
	Values   []any
	Errors   []*CoercionError
	Warnings []Warning
}

// OK reports whether every cell converted.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Apply coerces one CSV record. Blank cells become nil before any rule runs.
// All failing cells are reported, not just the first.
func (p *Plan) Apply(row int, record []string) Result {
	res := Result{Row: row, Values: make([]any, len(p.Rules))}
	for i := range p.Rules {
		r := &p.Rules[i]
		var raw string
		if r.Index < len(record) {
			raw = record[r.Index]
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		v, warn, err := r.coerce(raw, r.Type)
		if err != nil {
			res.Errors = append(res.Errors, &CoercionError{
				Row:      row,
				Column:   r.Column,
				Value:    raw,
				Declared: declaredName(r.Type),
				Err:      err,
			})
			continue
		}
		if warn != "" {
			res.Warnings = append(res.Warnings, Warning{Row: row, Column: r.Column, Value: raw, Message: warn})
		}
		res.Values[i] = v
	}
	return res
}
