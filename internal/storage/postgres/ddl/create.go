package ddl

import (
	"fmt"
	"strings"

	gddl "warehouse/internal/ddl"
)

// BuildCreateSchemaSQL returns CREATE SCHEMA IF NOT EXISTS for schema.
func BuildCreateSchemaSQL(schema string) (string, error) {
	if strings.TrimSpace(schema) == "" {
		return "", fmt.Errorf("postgres ddl: schema must not be empty")
	}
	return "CREATE SCHEMA IF NOT EXISTS " + QuoteIdent(strings.TrimSpace(schema)) + ";", nil
}

// BuildCreateTableSQL returns CREATE TABLE IF NOT EXISTS for t with
// double-quoted identifiers. Columns without a SQLType are mapped from their
// logical type.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	t = t.Resolve(MapType)
	clauses, err := gddl.Clauses(t, QuoteIdent)
	if err != nil {
		return "", fmt.Errorf("postgres %w", err)
	}
	return "CREATE TABLE IF NOT EXISTS " + gddl.Qualify(t.FQN(), QuoteIdent) + " " + gddl.Body(clauses, "") + ";", nil
}

// QuoteIdent double-quotes id, doubling embedded quotes.
//
//	QuoteIdent(`weird"name`) => `"weird""name"`
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteTable renders "schema"."table", or "table" when schema is empty.
func QuoteTable(schema, table string) string {
	return gddl.Qualify(schema+"."+table, QuoteIdent)
}
