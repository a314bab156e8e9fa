// Package sqldb implements storage.Repository on top of database/sql. The
// duckdb and sqlite backends share it and differ only in their Dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
)

// Dialect captures what differs between embedded engines.
type Dialect struct {
	Name string
	// DescribeQuery takes the table name as its only parameter and returns
	// (column name, declared type) rows in catalog order.
	DescribeQuery string
	// Bind converts an engine-neutral value before it is sent to the driver.
	// Nil means values pass through unchanged.
	Bind func(v any) (any, error)
	// ParseType classifies a declared type. Nil means schema.ParseType.
	ParseType func(declared string) schema.Type
}

// DB is an open database plus its dialect.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens driver/dsn, pings it, and pins the pool to one connection so
// transaction-scoped staging tables stay visible.
func Open(ctx context.Context, driver, dsn string, d Dialect) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name, err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name, err)
	}
	return &DB{db: db, dialect: d}, nil
}

// New wraps an already open handle.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{db: db, dialect: d}
}

// SQL exposes the underlying handle.
func (d *DB) SQL() *sql.DB { return d.db }

// Dialect returns the dialect in use.
func (d *DB) Dialect() Dialect { return d.dialect }

// Describe implements schema.Inspector. A table with no catalog rows yields
// *schema.LookupError.
func (d *DB) Describe(ctx context.Context, table string) (schema.Table, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.DescribeQuery, table)
	if err != nil {
		return schema.Table{}, &storage.DatabaseIOError{Op: "describe " + table, Err: err}
	}
	defer rows.Close()

	parse := d.dialect.ParseType
	if parse == nil {
		parse = schema.ParseType
	}
	t := schema.Table{Name: table}
	for rows.Next() {
		var name string
		var typ sql.NullString
		if err := rows.Scan(&name, &typ); err != nil {
			return schema.Table{}, &storage.DatabaseIOError{Op: "describe " + table, Err: err}
		}
		t.Columns = append(t.Columns, schema.Column{Name: name, Type: parse(typ.String)})
	}
	if err := rows.Err(); err != nil {
		return schema.Table{}, &storage.DatabaseIOError{Op: "describe " + table, Err: err}
	}
	if len(t.Columns) == 0 {
		return schema.Table{}, &schema.LookupError{Table: table}
	}
	return t, nil
}

// Begin implements storage.Repository.
func (d *DB) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &storage.DatabaseIOError{Op: "begin", Err: err}
	}
	return &Tx{tx: tx, dialect: d.dialect, stmts: map[string]*sql.Stmt{}}, nil
}

func (d Dialect) bindAll(vals []any) ([]any, error) {
	if d.Bind == nil {
		return vals, nil
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		b, err := d.Bind(v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func columnList(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = storage.QuoteIdent(c)
	}
	return strings.Join(q, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
