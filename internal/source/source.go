// Package source reads entity rows from the operational source database.
//
// It speaks database/sql so that any of the supported drivers can back it:
// Postgres (lib/pq), MySQL (go-sql-driver/mysql), SQLite (modernc) and
// SQL Server (go-mssqldb). Queries always name their columns.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"warehouse/internal/config"
	"warehouse/internal/records"
)

// drivers maps a store kind to its database/sql driver name.
var drivers = map[string]string{
	"postgres": "postgres",
	"mysql":    "mysql",
	"sqlite":   "sqlite",
	"mssql":    "sqlserver",
}

// Kinds lists the supported source kinds.
func Kinds() []string { return []string{"mssql", "mysql", "postgres", "sqlite"} }

// Reader is an open source connection.
type Reader struct {
	db   *sql.DB
	kind string
}

// Open connects to the source described by store and verifies it with a ping
// bounded by the "connect_timeout_seconds" option (default 10).
func Open(ctx context.Context, store config.Store) (*Reader, error) {
	kind := strings.ToLower(strings.TrimSpace(store.Kind))
	driver, ok := drivers[kind]
	if !ok {
		return nil, fmt.Errorf("source: unsupported kind=%s (supported: %s)", store.Kind, strings.Join(Kinds(), ", "))
	}
	db, err := sql.Open(driver, store.DSN)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", kind, err)
	}

	timeout := store.Options.Seconds("connect_timeout_seconds", 10)
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("source: ping %s: %w", kind, err)
	}
	return &Reader{db: db, kind: kind}, nil
}

// Close releases the connection pool.
func (r *Reader) Close() error { return r.db.Close() }

// Select reads fields from table. table may be schema-qualified ("hr.users").
func (r *Reader) Select(ctx context.Context, table string, fields []string) (records.Set, error) {
	if len(fields) == 0 {
		return records.Set{}, fmt.Errorf("source: select %s: no fields", table)
	}
	q := BuildSelect(r.kind, table, fields)

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return records.Set{}, fmt.Errorf("source: select %s: %w", table, err)
	}
	defer rows.Close()

	out := records.Set{Fields: append([]string(nil), fields...)}
	for rows.Next() {
		vals := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return records.Set{}, fmt.Errorf("source: scan %s: %w", table, err)
		}
		out.Rows = append(out.Rows, records.FromValues(fields, vals))
	}
	if err := rows.Err(); err != nil {
		return records.Set{}, fmt.Errorf("source: rows %s: %w", table, err)
	}
	log.Printf("source: kind=%s table=%s rows=%d elapsed=%s", r.kind, table, out.Len(), time.Since(start).Truncate(time.Millisecond))
	return out, nil
}

// BuildSelect renders SELECT with identifiers quoted for kind.
func BuildSelect(kind, table string, fields []string) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = quoteIdent(kind, f)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), quoteFQN(kind, table))
}

func quoteIdent(kind, id string) string {
	switch kind {
	case "mysql":
		return "`" + strings.ReplaceAll(id, "`", "``") + "`"
	case "mssql":
		return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
	}
}

func quoteFQN(kind, name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, quoteIdent(kind, p))
		}
	}
	return strings.Join(out, ".")
}
