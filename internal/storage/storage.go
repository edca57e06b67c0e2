// Package storage defines the warehouse session contract shared by every
// backend, plus a small registry that maps a storage kind ("postgres",
// "sqlite", "mssql") to a constructor.
//
// Backends register themselves from init(); callers blank-import
// warehouse/internal/storage/all and then call Open with a Config. A Session is
// a scoped connection: open it for one step, close it when the step is done.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"warehouse/internal/config"
	"warehouse/internal/ddl"
	"warehouse/internal/records"
)

// Config selects a backend and carries its connection settings.
type Config struct {
	Kind    string
	DSN     string
	Options config.Options
}

// OptBatchSize is the option key every backend reads for its rows-per-batch
// setting. Backend-specific keys take precedence.
const OptBatchSize = "batch_size"

// WithBatchSize returns a copy of c whose options carry n under OptBatchSize
// unless the store already sets one. Non-positive n leaves c unchanged.
func (c Config) WithBatchSize(n int) Config {
	if n <= 0 {
		return c
	}
	if _, ok := c.Options[OptBatchSize]; ok {
		return c
	}
	opts := make(config.Options, len(c.Options)+1)
	for k, v := range c.Options {
		opts[k] = v
	}
	opts[OptBatchSize] = n
	c.Options = opts
	return c
}

// FromStore adapts a pipeline store block into a storage Config.
func FromStore(s config.Store) Config {
	return Config{Kind: s.Kind, DSN: s.DSN, Options: s.Options}
}

// Session is a scoped warehouse connection.
//
// Identifiers are passed unquoted; each backend quotes them for its dialect.
// Schema may be empty for backends that fall back to a default schema.
type Session interface {
	// Kind reports the registered storage kind.
	Kind() string

	// EnsureSchema creates schema when it does not exist.
	EnsureSchema(ctx context.Context, schema string) error

	// EnsureTable creates def when it does not exist. Existing tables are
	// left untouched.
	EnsureTable(ctx context.Context, def ddl.TableDef) error

	// Columns returns the column names of schema.table in ordinal order, or
	// nil with no error when the table does not exist.
	Columns(ctx context.Context, schema, table string) ([]string, error)

	// Append inserts rows (aligned to columns) into an existing table inside
	// one transaction and returns the number of rows written.
	Append(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error)

	// Select reads the given columns of schema.table.
	Select(ctx context.Context, schema, table string, columns []string) (records.Set, error)

	// Replace swaps the contents of def for rows. Readers observe either the
	// old table or the new one, never a partial load.
	Replace(ctx context.Context, def ddl.TableDef, rows [][]any) (int64, error)

	// Exec runs a single statement.
	Exec(ctx context.Context, sql string) error

	// Close releases the connection.
	Close()
}

// Factory opens a Session for a backend.
type Factory func(ctx context.Context, cfg Config) (Session, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering the same kind
// twice replaces the previous factory.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(strings.TrimSpace(kind))] = f
}

// Open returns a Session for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Session, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	mu.RLock()
	f, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s (supported: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}

// Kinds lists the registered storage kinds in sorted order. The returned slice
// is a copy.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
