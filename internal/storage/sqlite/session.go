// Package sqlite implements a SQLite-backed storage.Session using
// database/sql. It performs batched INSERTs inside a transaction; SQLite does
// not have a dedicated bulk-load API like Postgres COPY, but transactions keep
// performance acceptable for moderate volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	gddl "warehouse/internal/ddl"
	"warehouse/internal/records"
	"warehouse/internal/storage"
	sqliteddl "warehouse/internal/storage/sqlite/ddl"

	_ "modernc.org/sqlite"
)

// Layouts used when writing time values. modernc parses both back into
// time.Time for columns declared DATE or TIMESTAMP.
const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05.999999999-07:00"
)

// Session is a SQLite-backed implementation of storage.Session.
type Session struct {
	db       *sql.DB
	cfg      Config
	attached map[string]bool
}

var _ storage.Session = (*Session)(nil)

// NewSession opens a SQLite connection using the provided DSN and returns a
// Session plus a Close function for cleanup.
//
// The pool is pinned to one connection so that ATTACHed schemas stay visible
// for the lifetime of the session.
func NewSession(ctx context.Context, cfg Config) (*Session, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Session{db: db, cfg: cfg, attached: map[string]bool{}}, closeFn, nil
}

// Kind implements storage.Session.
func (s *Session) Kind() string { return "sqlite" }

// Close is a no-op on the bare session; the adapter owns the close function.
func (s *Session) Close() {}

// EnsureSchema attaches the database file that backs schema, creating it on
// first use.
func (s *Session) EnsureSchema(ctx context.Context, schema string) error {
	return s.attach(ctx, schema)
}

func (s *Session) attach(ctx context.Context, schema string) error {
	if isBuiltinSchema(schema) || s.attached[schema] {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return fmt.Errorf("sqlite: database_list: %w", err)
	}
	found := false
	for rows.Next() {
		var (
			seq        int
			name, file string
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: database_list scan: %w", err)
		}
		if strings.EqualFold(name, schema) {
			found = true
		}
	}
	rows.Close()

	if !found {
		path := s.cfg.SchemaPath(schema)
		stmt, err := sqliteddl.BuildAttachSQL(schema, path)
		if err != nil {
			return err
		}
		if err := s.Exec(ctx, stmt); err != nil {
			return err
		}
		log.Printf("sqlite: attached schema=%s path=%s", schema, path)
	}
	s.attached[schema] = true
	return nil
}

// EnsureTable creates def if it does not exist.
func (s *Session) EnsureTable(ctx context.Context, def gddl.TableDef) error {
	if err := s.attach(ctx, def.Schema); err != nil {
		return err
	}
	stmt, err := sqliteddl.BuildCreateTableSQL(def)
	if err != nil {
		return err
	}
	return s.Exec(ctx, stmt)
}

// Columns returns the table's column names, or nil when it does not exist.
func (s *Session) Columns(ctx context.Context, schema, table string) ([]string, error) {
	info, err := s.tableInfo(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(info) == 0 {
		return nil, nil
	}
	out := make([]string, len(info))
	for i, c := range info {
		out[i] = c.name
	}
	return out, nil
}

type columnInfo struct {
	name     string
	declType string
}

func (s *Session) tableInfo(ctx context.Context, schema, table string) ([]columnInfo, error) {
	if err := s.attach(ctx, schema); err != nil {
		return nil, err
	}
	prefix := ""
	if strings.TrimSpace(schema) != "" {
		prefix = sqliteddl.QuoteIdent(schema) + "."
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA %stable_info(%s)", prefix, sqliteddl.QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("sqlite: table_info %s: %w", table, err)
	}
	defer rows.Close()

	var out []columnInfo
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("sqlite: table_info scan: %w", err)
		}
		out = append(out, columnInfo{name: name, declType: typ})
	}
	return out, rows.Err()
}

// Append inserts rows into schema.table in a single transaction.
func (s *Session) Append(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: append: columns must not be empty")
	}
	info, err := s.tableInfo(ctx, schema, table)
	if err != nil {
		return 0, err
	}
	if len(info) == 0 {
		return 0, fmt.Errorf("sqlite: append: table %s does not exist", sqliteddl.QuoteTable(schema, table))
	}
	declared := make(map[string]string, len(info))
	for _, c := range info {
		declared[c.name] = c.declType
	}
	layouts := make([]string, len(columns))
	for i, c := range columns {
		layouts[i] = layoutFor(declared[c])
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	n, err := insertRows(ctx, tx, sqliteddl.QuoteTable(schema, table), columns, layouts, rows, s.cfg.BatchSize)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// Replace rebuilds def from rows. The new contents are loaded into a shadow
// table and swapped in within the same transaction, so a failure leaves the
// previous table intact.
func (s *Session) Replace(ctx context.Context, def gddl.TableDef, rows [][]any) (int64, error) {
	if err := s.attach(ctx, def.Schema); err != nil {
		return 0, err
	}
	next := def.WithName(def.Name + "__next")
	create, err := sqliteddl.BuildCreateTableSQL(next)
	if err != nil {
		return 0, err
	}

	columns := def.ColumnNames()
	layouts := make([]string, len(def.Columns))
	for i, c := range def.Resolve(sqliteddl.MapType).Columns {
		layouts[i] = layoutFor(c.SQLType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	rollback := func(err error) (int64, error) {
		_ = tx.Rollback()
		return 0, err
	}

	nextFQN := sqliteddl.QuoteTable(def.Schema, next.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+nextFQN); err != nil {
		return rollback(fmt.Errorf("sqlite: drop shadow: %w", err))
	}
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return rollback(fmt.Errorf("sqlite: create shadow: %w", err))
	}
	n, err := insertRows(ctx, tx, nextFQN, columns, layouts, rows, s.cfg.BatchSize)
	if err != nil {
		return rollback(err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqliteddl.QuoteTable(def.Schema, def.Name)); err != nil {
		return rollback(fmt.Errorf("sqlite: drop target: %w", err))
	}
	rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", nextFQN, sqliteddl.QuoteIdent(def.Name))
	if _, err := tx.ExecContext(ctx, rename); err != nil {
		return rollback(fmt.Errorf("sqlite: rename shadow: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// insertRows runs a prepared INSERT for every row, batched through
// storage.LoadBatches.
func insertRows(ctx context.Context, tx *sql.Tx, fqn string, columns, layouts []string, rows [][]any, batchSize int) (int64, error) {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqliteddl.QuoteIdent(c)
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		fqn,
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	return storage.LoadBatches(ctx, columns, rows, batchSize, func(ctx context.Context, columns []string, batch [][]any) (int64, error) {
		var inserted int64
		for _, row := range batch {
			if len(row) != len(columns) {
				return inserted, fmt.Errorf("sqlite: row length %d != columns length %d", len(row), len(columns))
			}
			for i, v := range row {
				args[i] = bindValue(v, layouts[i])
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return inserted, fmt.Errorf("sqlite: insert: %w", err)
			}
			inserted++
		}
		return inserted, nil
	})
}

// layoutFor picks the time layout for a declared column type.
func layoutFor(declType string) string {
	t := strings.ToUpper(declType)
	switch {
	case t == "DATE":
		return dateLayout
	case strings.Contains(t, "TIME"), strings.Contains(t, "DATE"):
		return timestampLayout
	default:
		return ""
	}
}

func bindValue(v any, layout string) any {
	switch x := v.(type) {
	case time.Time:
		if layout == dateLayout {
			return x.Format(dateLayout)
		}
		return x.Format(timestampLayout)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

// Select reads columns from schema.table. An empty column list selects every
// column in table order.
func (s *Session) Select(ctx context.Context, schema, table string, columns []string) (records.Set, error) {
	if len(columns) == 0 {
		cols, err := s.Columns(ctx, schema, table)
		if err != nil {
			return records.Set{}, err
		}
		if cols == nil {
			return records.Set{}, fmt.Errorf("sqlite: select: table %s does not exist", sqliteddl.QuoteTable(schema, table))
		}
		columns = cols
	} else if err := s.attach(ctx, schema); err != nil {
		return records.Set{}, err
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqliteddl.QuoteIdent(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), sqliteddl.QuoteTable(schema, table))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return records.Set{}, fmt.Errorf("sqlite: select: %w", err)
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
			return records.Set{}, fmt.Errorf("sqlite: scan: %w", err)
		}
		out.Rows = append(out.Rows, records.FromValues(columns, vals))
	}
	if err := rows.Err(); err != nil {
		return records.Set{}, fmt.Errorf("sqlite: rows: %w", err)
	}
	return out, nil
}

// Exec executes an arbitrary SQL statement (typically DDL) using the underlying
// database/sql connection.
func (s *Session) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}
