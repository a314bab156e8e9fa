// Package sqlite implements storage.Repository for SQLite database files
// through the pure-Go modernc.org/sqlite driver. It is the alternate backend
// and the one the test suite runs against.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage/sqldb"
)

// Dialect is the SQLite flavor of the shared database/sql engine.
var Dialect = sqldb.Dialect{
	Name:          "sqlite",
	DescribeQuery: "SELECT name, type FROM pragma_table_info(?) ORDER BY cid",
	Bind:          bind,
	ParseType:     schema.ParseAffinityType,
}

// bind stores dates and timestamps as their canonical text, which SQLite's
// date functions understand.
func bind(v any) (any, error) {
	switch x := v.(type) {
	case schema.Date:
		return string(x), nil
	case schema.Timestamp:
		return string(x), nil
	default:
		return v, nil
	}
}

// Repository is a SQLite-backed storage.Repository.
type Repository struct {
	*sqldb.DB
	cfg Config
}

// NewRepository opens the database described by cfg and returns it plus a
// close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, nil, fmt.Errorf("sqlite: path must not be empty")
	}
	db, err := sqldb.Open(ctx, "sqlite", cfg.DSN(), Dialect)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.ReadOnly {
		_, _ = db.SQL().ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	}
	closeFn := func() { db.SQL().Close() }
	return &Repository{DB: db, cfg: cfg}, closeFn, nil
}
