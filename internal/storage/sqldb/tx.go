package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
)

// Tx implements storage.Tx. Prepared statements are cached per SQL text for
// the life of the transaction.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
	stmts   map[string]*sql.Stmt
	stages  int
	done    bool
}

func (t *Tx) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if s, ok := t.stmts[query]; ok {
		return s, nil
	}
	s, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: prepare: %w", t.dialect.Name, err)
	}
	t.stmts[query] = s
	return s, nil
}

func (t *Tx) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	bound, err := t.dialect.bindAll(args)
	if err != nil {
		return nil, fmt.Errorf("%s: bind: %w", t.dialect.Name, err)
	}
	s, err := t.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.ExecContext(ctx, bound...)
}

// Count implements storage.Tx.
func (t *Tx) Count(ctx context.Context, table string, where storage.Predicate) (int64, error) {
	if strings.TrimSpace(where.Clause) == "" {
		return 0, errors.New("sqldb: count requires a predicate")
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", storage.QuoteIdent(table), where.Clause)
	args, err := t.dialect.bindAll(where.Args)
	if err != nil {
		return 0, fmt.Errorf("%s: bind: %w", t.dialect.Name, err)
	}
	s, err := t.prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.QueryRowContext(ctx, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count %s: %w", t.dialect.Name, table, err)
	}
	return n, nil
}

// Insert implements storage.Tx.
func (t *Tx) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if len(columns) == 0 || len(columns) != len(values) {
		return fmt.Errorf("sqldb: insert: %d columns, %d values", len(columns), len(values))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		storage.QuoteIdent(table), columnList(columns), placeholders(len(columns)))
	if _, err := t.exec(ctx, query, values); err != nil {
		return fmt.Errorf("%s: insert %s: %w", t.dialect.Name, table, err)
	}
	return nil
}

// Update implements storage.Tx.
func (t *Tx) Update(ctx context.Context, table string, columns []string, values []any, where storage.Predicate) (int64, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return 0, fmt.Errorf("sqldb: update: %d columns, %d values", len(columns), len(values))
	}
	if strings.TrimSpace(where.Clause) == "" {
		return 0, errors.New("sqldb: update requires a predicate")
	}
	set := make([]string, len(columns))
	for i, c := range columns {
		set[i] = storage.QuoteIdent(c) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		storage.QuoteIdent(table), strings.Join(set, ", "), where.Clause)

	args := make([]any, 0, len(values)+len(where.Args))
	args = append(append(args, values...), where.Args...)
	res, err := t.exec(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("%s: update %s: %w", t.dialect.Name, table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stage implements storage.Tx using a temporary table copied from the
// target's column definitions.
func (t *Tx) Stage(ctx context.Context, table string, columns []string) (storage.Stage, error) {
	if len(columns) == 0 {
		return nil, errors.New("sqldb: stage requires columns")
	}
	t.stages++
	name := fmt.Sprintf("tablesync_stage_%d", t.stages)
	ddl := fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s LIMIT 0",
		storage.QuoteIdent(name), columnList(columns), storage.QuoteIdent(table))
	if _, err := t.tx.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("%s: create stage for %s: %w", t.dialect.Name, table, err)
	}
	return &stage{tx: t, name: name, table: table, columns: columns}, nil
}

// Commit implements storage.Tx.
func (t *Tx) Commit() error {
	t.closeStmts()
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", t.dialect.Name, err)
	}
	return nil
}

// Rollback implements storage.Tx. Rolling back a finished Tx is a no-op.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.closeStmts()
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: rollback: %w", t.dialect.Name, err)
	}
	return nil
}

func (t *Tx) forget(query string) {
	if s, ok := t.stmts[query]; ok {
		s.Close()
		delete(t.stmts, query)
	}
}

func (t *Tx) closeStmts() {
	for q, s := range t.stmts {
		s.Close()
		delete(t.stmts, q)
	}
}

type stage struct {
	tx      *Tx
	name    string
	table   string
	columns []string
	loaded  int64
}

func (s *stage) loadQuery() string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		storage.QuoteIdent(s.name), columnList(s.columns), placeholders(len(s.columns)))
}

func (s *stage) Load(ctx context.Context, rows [][]any) (int64, error) {
	query := s.loadQuery()
	var n int64
	for _, row := range rows {
		if len(row) != len(s.columns) {
			return n, fmt.Errorf("sqldb: stage row has %d values, want %d", len(row), len(s.columns))
		}
		if _, err := s.tx.exec(ctx, query, row); err != nil {
			return n, fmt.Errorf("%s: stage %s: %w", s.tx.dialect.Name, s.table, err)
		}
		n++
	}
	s.loaded += n
	return n, nil
}

func (s *stage) Publish(ctx context.Context) (int64, error) {
	cols := columnList(s.columns)
	query := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		storage.QuoteIdent(s.table), cols, cols, storage.QuoteIdent(s.name))
	res, err := s.tx.tx.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%s: publish %s: %w", s.tx.dialect.Name, s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		n = s.loaded
	}
	// An open statement on the stage would block DROP in SQLite.
	s.tx.forget(s.loadQuery())
	if _, err := s.tx.tx.ExecContext(ctx, "DROP TABLE "+storage.QuoteIdent(s.name)); err != nil {
		return n, fmt.Errorf("%s: drop stage: %w", s.tx.dialect.Name, err)
	}
	return n, nil
}
