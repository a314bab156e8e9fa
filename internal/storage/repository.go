// Package storage defines the database contract the sync engine runs on and a
// registry of backends keyed by kind ("duckdb", "sqlite").
//
// Backends register a Factory from their init function; callers import
// storage/all and pick the backend through Config.Kind.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
)

// Config selects and opens a backend.
type Config struct {
	Kind     string
	Path     string // database file
	ReadOnly bool
}

// Predicate is a parameterized WHERE clause body. Clause uses "?"
// placeholders matching Args in order.
type Predicate struct {
	Clause string
	Args   []any
}

// Repository is an open embedded database.
type Repository interface {
	schema.Inspector
	// Begin starts a transaction. Only one transaction may be open at a time.
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a unit of work. All mutations of one batch member run inside one Tx.
type Tx interface {
	Count(ctx context.Context, table string, where Predicate) (int64, error)
	Insert(ctx context.Context, table string, columns []string, values []any) error
	Update(ctx context.Context, table string, columns []string, values []any, where Predicate) (int64, error)
	// Stage creates a transaction-scoped staging table shaped like the given
	// columns of table.
	Stage(ctx context.Context, table string, columns []string) (Stage, error)
	Commit() error
	Rollback() error
}

// Stage accumulates rows and publishes them into the target table in one
// set operation.
type Stage interface {
	Load(ctx context.Context, rows [][]any) (int64, error)
	// Publish inserts every staged row into the target and drops the stage.
	Publish(ctx context.Context) (int64, error)
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu       sync.RWMutex
	backends = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	backends[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := backends[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unsupported kind %q (registered: %s)", cfg.Kind, strings.Join(ListKinds(), ", "))
	}
	repo, err := f(ctx, cfg)
	if err != nil {
		return nil, &DatabaseIOError{Op: "open", Path: cfg.Path, Err: err}
	}
	return repo, nil
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// QuoteIdent quotes a SQL identifier with double quotes.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// DatabaseIOError is a connection, catalog or snapshot failure. It aborts the
// batch.
type DatabaseIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *DatabaseIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("database %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("database %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DatabaseIOError) Unwrap() error { return e.Err }

// Record implements report.Recordable.
func (e *DatabaseIOError) Record() report.Record {
	return report.Record{Kind: "DatabaseIOError", Error: e.Error()}
}
