// Package ddl renders warehouse DDL for Postgres.
package ddl

import "warehouse/internal/mapping"

var pgTypes = map[string]string{
	mapping.TypeInt:       "BIGINT",
	mapping.TypeFloat:     "DOUBLE PRECISION",
	mapping.TypeBool:      "BOOLEAN",
	mapping.TypeDate:      "DATE",
	mapping.TypeTimestamp: "TIMESTAMPTZ",
}

// MapType returns the Postgres column type for a logical type or alias.
// Text and unknown kinds become TEXT.
func MapType(kind string) string {
	if c, ok := mapping.CanonicalType(kind); ok {
		if t, ok := pgTypes[c]; ok {
			return t
		}
	}
	return "TEXT"
}
