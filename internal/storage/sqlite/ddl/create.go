package ddl

import (
	"fmt"
	"strings"

	gddl "warehouse/internal/ddl"
)

// BuildCreateTableSQL returns CREATE TABLE IF NOT EXISTS for t. A non-empty
// t.Schema must name a database already attached to the connection.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	t = t.Resolve(MapType)
	clauses, err := gddl.Clauses(t, QuoteIdent)
	if err != nil {
		return "", fmt.Errorf("sqlite %w", err)
	}
	return "CREATE TABLE IF NOT EXISTS " + gddl.Qualify(t.FQN(), QuoteIdent) + " " + gddl.Body(clauses, "") + ";", nil
}

// BuildAttachSQL attaches the database file at path as schema.
func BuildAttachSQL(schema, path string) (string, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return "", fmt.Errorf("sqlite ddl: schema must not be empty")
	}
	return fmt.Sprintf("ATTACH DATABASE '%s' AS %s;", strings.ReplaceAll(path, "'", "''"), QuoteIdent(schema)), nil
}

// QuoteIdent wraps id in double quotes, doubling embedded quotes.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteTable renders "schema"."table", or "table" when schema is empty.
func QuoteTable(schema, table string) string {
	return gddl.Qualify(schema+"."+table, QuoteIdent)
}
