// Package mssql implements a Microsoft SQL Server warehouse session using
// the go-mssqldb bulk copy API. Appends bulk copy straight into the target
// inside a transaction; replacements bulk copy into a shadow table and swap it
// in with sp_rename.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	gddl "warehouse/internal/ddl"
	"warehouse/internal/records"
	"warehouse/internal/storage"
	msddl "warehouse/internal/storage/mssql/ddl"
)

// Config holds MSSQL session configuration.
type Config struct {
	DSN       string
	BatchSize int // rows per bulk copy; <= 0 copies everything at once
}

// Session is an MSSQL-backed implementation of storage.Session.
type Session struct {
	db  *sql.DB
	cfg Config
}

var _ storage.Session = (*Session)(nil)

// NewSession constructs a Session and returns a Close function for cleanup.
func NewSession(ctx context.Context, cfg Config) (*Session, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Session{db: db, cfg: cfg}, closeFn, nil
}

// Kind implements storage.Session.
func (s *Session) Kind() string { return "mssql" }

// Close is a no-op on the bare session; the adapter owns the close function.
func (s *Session) Close() {}

// EnsureSchema creates schema when missing. An empty schema means the login's
// default schema.
func (s *Session) EnsureSchema(ctx context.Context, schema string) error {
	if strings.TrimSpace(schema) == "" {
		return nil
	}
	return msddl.EnsureSchema(ctx, s, schema)
}

// EnsureTable creates def if it does not exist.
func (s *Session) EnsureTable(ctx context.Context, def gddl.TableDef) error {
	return msddl.EnsureTable(ctx, s, def)
}

// Columns returns the table's columns, or nil when it does not exist.
func (s *Session) Columns(ctx context.Context, schema, table string) ([]string, error) {
	const q = `
SELECT COLUMN_NAME
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME())
  AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION`

	rows, err := s.db.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, fmt.Errorf("mssql: columns %s: %w", msddl.QuoteTable(schema, table), err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("mssql: columns scan: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Append bulk copies rows into schema.table in one transaction.
func (s *Session) Append(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	n, err := s.bulkCopy(ctx, tx, msddl.QuoteTable(schema, table), columns, rows)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Replace bulk copies rows into a shadow table, drops the target and renames
// the shadow into place, all in one transaction.
func (s *Session) Replace(ctx context.Context, def gddl.TableDef, rows [][]any) (int64, error) {
	next := def.WithName(def.Name + "__next")
	create, err := msddl.BuildCreateTableSQL(next)
	if err != nil {
		return 0, err
	}
	nextFQN := msddl.QuoteTable(def.Schema, next.Name)
	targetFQN := msddl.QuoteTable(def.Schema, def.Name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(err error) (int64, error) {
		_ = tx.Rollback()
		return 0, err
	}

	dropNext := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;", nextFQN, nextFQN)
	for _, stmt := range []string{dropNext, create} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return rollback(fmt.Errorf("prepare shadow: %w", err))
		}
	}

	var n int64
	if len(rows) > 0 {
		if n, err = s.bulkCopy(ctx, tx, nextFQN, def.ColumnNames(), rows); err != nil {
			return rollback(err)
		}
	}

	dropTarget := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;", targetFQN, targetFQN)
	if _, err := tx.ExecContext(ctx, dropTarget); err != nil {
		return rollback(fmt.Errorf("drop target: %w", err))
	}
	if _, err := tx.ExecContext(ctx, "EXEC sp_rename @p1, @p2;", nextFQN, def.Name); err != nil {
		return rollback(fmt.Errorf("rename shadow: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// bulkCopy streams rows through mssql.CopyIn, one prepared bulk statement per
// batch.
func (s *Session) bulkCopy(ctx context.Context, tx *sql.Tx, fqn string, columns []string, rows [][]any) (int64, error) {
	return storage.LoadBatches(ctx, columns, rows, s.cfg.BatchSize, func(ctx context.Context, columns []string, batch [][]any) (int64, error) {
		stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(fqn, mssql.BulkOptions{}, columns...))
		if err != nil {
			return 0, fmt.Errorf("prepare bulk: %w", err)
		}
		for i := range batch {
			if _, err := stmt.ExecContext(ctx, batch[i]...); err != nil {
				_ = stmt.Close()
				return 0, fmt.Errorf("bulk row %d: %w", i, err)
			}
		}
		res, err := stmt.ExecContext(ctx)
		if cerr := stmt.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			return 0, fmt.Errorf("bulk finalize: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
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
			return records.Set{}, fmt.Errorf("mssql: select: table %s does not exist", msddl.QuoteTable(schema, table))
		}
		columns = cols
	}

	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(mapIdent(columns), ", "), msddl.QuoteTable(schema, table))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return records.Set{}, fmt.Errorf("mssql: select: %w", err)
	}
	defer rows.Close()

	out := records.Set{Fields: append([]string(nil), columns...)}
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return records.Set{}, fmt.Errorf("mssql: scan: %w", err)
		}
		out.Rows = append(out.Rows, records.FromValues(columns, vals))
	}
	if err := rows.Err(); err != nil {
		return records.Set{}, fmt.Errorf("mssql: rows: %w", err)
	}
	return out, nil
}

// Exec executes a SQL statement against the pool.
func (s *Session) Exec(ctx context.Context, sqlText string) error {
	if _, err := s.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mssql: exec: %w", err)
	}
	return nil
}

// mapIdent maps a list of column names to their bracket-quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msddl.QuoteIdent(c)
	}
	return out
}
