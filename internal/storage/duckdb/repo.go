// Package duckdb implements storage.Repository for DuckDB database files
// using github.com/marcboeker/go-duckdb/v2. It is the default backend.
package duckdb

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage/sqldb"
)

// Dialect is the DuckDB flavor of the shared database/sql engine.
var Dialect = sqldb.Dialect{
	Name: "duckdb",
	DescribeQuery: `SELECT column_name, data_type
FROM information_schema.columns
WHERE lower(table_name) = lower(?)
ORDER BY ordinal_position`,
	Bind: bind,
}

// bind hands dates and timestamps to the driver as time.Time, which go-duckdb
// maps onto DATE and TIMESTAMP parameters.
func bind(v any) (any, error) {
	switch x := v.(type) {
	case schema.Date:
		t, err := x.Time()
		if err != nil {
			return nil, fmt.Errorf("date %q: %w", string(x), err)
		}
		return t, nil
	case schema.Timestamp:
		t, err := x.Time()
		if err != nil {
			return nil, fmt.Errorf("timestamp %q: %w", string(x), err)
		}
		return t, nil
	default:
		return v, nil
	}
}

// Repository is a DuckDB-backed storage.Repository.
type Repository struct {
	*sqldb.DB
	cfg Config
}

// NewRepository opens the database described by cfg and returns it plus a
// close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, nil, fmt.Errorf("duckdb: path must not be empty")
	}
	db, err := sqldb.Open(ctx, "duckdb", cfg.DSN(), Dialect)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { db.SQL().Close() }
	return &Repository{DB: db, cfg: cfg}, closeFn, nil
}
