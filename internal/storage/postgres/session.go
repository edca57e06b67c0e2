// Package postgres implements a Postgres warehouse session using pgx v5.
// Appends use COPY inside a transaction; replacements load a shadow table and
// rename it over the target in the same transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	gddl "warehouse/internal/ddl"
	"warehouse/internal/records"
	"warehouse/internal/storage"
	pgddl "warehouse/internal/storage/postgres/ddl"
)

// Config holds Postgres session configuration.
type Config struct {
	DSN       string // connection string for pgxpool
	BatchSize int    // rows per COPY; <= 0 copies everything at once
}

// Session is a Postgres-backed implementation of storage.Session.
type Session struct {
	pool *pgxpool.Pool
	cfg  Config
}

var _ storage.Session = (*Session)(nil)

// NewSession constructs a Session and returns a Close function for cleanup.
func NewSession(ctx context.Context, cfg Config) (*Session, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	closeFn := func() { pool.Close() }
	return &Session{pool: pool, cfg: cfg}, closeFn, nil
}

// Kind implements storage.Session.
func (s *Session) Kind() string { return "postgres" }

// Close is a no-op on the bare session; the adapter owns the close function.
func (s *Session) Close() {}

// EnsureSchema issues CREATE SCHEMA IF NOT EXISTS. An empty schema means the
// connection's search_path default and is left alone.
func (s *Session) EnsureSchema(ctx context.Context, schema string) error {
	if strings.TrimSpace(schema) == "" {
		return nil
	}
	return pgddl.EnsureSchema(ctx, s, schema)
}

// EnsureTable creates def if it does not exist.
func (s *Session) EnsureTable(ctx context.Context, def gddl.TableDef) error {
	return pgddl.EnsureTable(ctx, s, def)
}

// Columns returns the table's columns from information_schema, or nil when
// the table does not exist.
func (s *Session) Columns(ctx context.Context, schema, table string) ([]string, error) {
	const q = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
  AND table_name = $2
ORDER BY ordinal_position`

	rows, err := s.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, fmt.Errorf("postgres: columns %s: %w", pgddl.QuoteTable(schema, table), err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: columns %s: %w", pgddl.QuoteTable(schema, table), err)
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return cols, nil
}

// Append COPYs rows into schema.table inside one transaction.
func (s *Session) Append(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := s.copyInto(ctx, tx, identifier(schema, table), columns, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return n, nil
}

// Replace loads rows into a shadow table and renames it over def.
func (s *Session) Replace(ctx context.Context, def gddl.TableDef, rows [][]any) (int64, error) {
	next := def.WithName(def.Name + "__next")
	create, err := pgddl.BuildCreateTableSQL(next)
	if err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := []string{
		"DROP TABLE IF EXISTS " + pgddl.QuoteTable(def.Schema, next.Name),
		create,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("postgres: prepare shadow: %w", err)
		}
	}

	n, err := s.copyInto(ctx, tx, identifier(def.Schema, next.Name), def.ColumnNames(), rows)
	if err != nil {
		return 0, err
	}

	swap := []string{
		"DROP TABLE IF EXISTS " + pgddl.QuoteTable(def.Schema, def.Name),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", pgddl.QuoteTable(def.Schema, next.Name), pgddl.QuoteIdent(def.Name)),
	}
	for _, stmt := range swap {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("postgres: swap shadow: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return n, nil
}

func (s *Session) copyInto(ctx context.Context, tx pgx.Tx, id pgx.Identifier, columns []string, rows [][]any) (int64, error) {
	return storage.LoadBatches(ctx, columns, rows, s.cfg.BatchSize, func(ctx context.Context, columns []string, batch [][]any) (int64, error) {
		n, err := tx.CopyFrom(ctx, id, columns, pgx.CopyFromRows(batch))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Detail != "" {
				return n, fmt.Errorf("postgres: copy into %s: %s (%s)", id.Sanitize(), pgErr.Detail, pgErr.SQLState())
			}
			return n, fmt.Errorf("postgres: copy into %s: %w", id.Sanitize(), err)
		}
		return n, nil
	})
}

// Select reads columns from schema.table. An empty column list selects every
// column.
func (s *Session) Select(ctx context.Context, schema, table string, columns []string) (records.Set, error) {
	if len(columns) == 0 {
		cols, err := s.Columns(ctx, schema, table)
		if err != nil {
			return records.Set{}, err
		}
		if cols == nil {
			return records.Set{}, fmt.Errorf("postgres: select: table %s does not exist", pgddl.QuoteTable(schema, table))
		}
		columns = cols
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgddl.QuoteIdent(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), pgddl.QuoteTable(schema, table))
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return records.Set{}, fmt.Errorf("postgres: select: %w", err)
	}
	defer rows.Close()

	out := records.Set{Fields: append([]string(nil), columns...)}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return records.Set{}, fmt.Errorf("postgres: values: %w", err)
		}
		out.Rows = append(out.Rows, records.FromValues(columns, vals))
	}
	if err := rows.Err(); err != nil {
		return records.Set{}, fmt.Errorf("postgres: rows: %w", err)
	}
	return out, nil
}

// Exec implements storage.Session.Exec for Postgres.
func (s *Session) Exec(ctx context.Context, sql string) error {
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

// identifier builds a pgx.Identifier, omitting an empty schema.
func identifier(schema, table string) pgx.Identifier {
	if strings.TrimSpace(schema) == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}
