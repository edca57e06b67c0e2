// Package ddl renders warehouse DDL for SQL Server.
package ddl

import (
	"strings"

	"warehouse/internal/mapping"
)

var msTypes = map[string]string{
	mapping.TypeInt:       "BIGINT",
	mapping.TypeFloat:     "FLOAT",
	mapping.TypeBool:      "BIT",
	mapping.TypeDate:      "DATE",
	mapping.TypeTimestamp: "DATETIME2",
}

// MapType returns the SQL Server column type for a logical type or alias.
// numeric and decimal keep exact precision, uuid maps to UNIQUEIDENTIFIER and
// everything else is stored as NVARCHAR(MAX).
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "numeric", "decimal":
		return "DECIMAL(38, 10)"
	case "uuid":
		return "UNIQUEIDENTIFIER"
	}
	if c, ok := mapping.CanonicalType(kind); ok {
		if t, ok := msTypes[c]; ok {
			return t
		}
	}
	return "NVARCHAR(MAX)"
}
