package sqlite

import (
	"path/filepath"
	"strings"
	"time"
)

// Config holds SQLite session configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:warehouse.db?_pragma=busy_timeout(5000)"
	//   "warehouse.db" (interpreted by the driver)
	DSN string

	// AttachDir is where per-schema database files live. Empty means next
	// to the main database file.
	AttachDir string

	// PingTimeout bounds the initial connectivity check.
	PingTimeout time.Duration

	// BatchSize is the number of rows per progress batch; <= 0 means one.
	BatchSize int
}

// mainPath extracts the filesystem path from DSN, or ":memory:" for in-memory
// databases.
func (c Config) mainPath() string {
	dsn := strings.TrimSpace(c.DSN)
	path, query, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" || strings.Contains(query, "mode=memory") {
		return ":memory:"
	}
	return path
}

// SchemaPath returns the database file that backs schema. SQLite has no
// CREATE SCHEMA; each schema is a sibling file attached under its name, e.g.
// "warehouse.db" + "raw" -> "warehouse.raw.db".
func (c Config) SchemaPath(schema string) string {
	main := c.mainPath()
	if main == ":memory:" {
		return main
	}
	dir := filepath.Dir(main)
	if c.AttachDir != "" {
		dir = c.AttachDir
	}
	stem := strings.TrimSuffix(filepath.Base(main), filepath.Ext(main))
	return filepath.Join(dir, stem+"."+schema+".db")
}

// isBuiltinSchema reports whether schema is always present on a connection.
func isBuiltinSchema(schema string) bool {
	switch strings.ToLower(strings.TrimSpace(schema)) {
	case "", "main", "temp":
		return true
	}
	return false
}
