// Package ddl renders warehouse DDL for SQLite, where each schema is an
// attached database file.
package ddl

import (
	"strings"

	"warehouse/internal/mapping"
)

// Booleans are stored as 0/1. DATE and TIMESTAMP carry NUMERIC affinity and
// hold ISO-8601 text, which the driver scans back as time.Time.
var liteTypes = map[string]string{
	mapping.TypeInt:       "INTEGER",
	mapping.TypeFloat:     "REAL",
	mapping.TypeBool:      "INTEGER",
	mapping.TypeDate:      "DATE",
	mapping.TypeTimestamp: "TIMESTAMP",
}

// MapType returns the SQLite column type for a logical type or alias.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "numeric", "decimal":
		return "NUMERIC"
	case "blob", "bytes":
		return "BLOB"
	}
	if c, ok := mapping.CanonicalType(kind); ok {
		if t, ok := liteTypes[c]; ok {
			return t
		}
	}
	return "TEXT"
}
