package ddl

import (
	"fmt"
	"strings"

	gddl "warehouse/internal/ddl"
)

// BuildCreateTableSQL returns a T-SQL batch that creates t unless a user
// table of that name exists. T-SQL has no CREATE TABLE IF NOT EXISTS, so the
// statement is guarded by OBJECT_ID:
//
//	IF OBJECT_ID(N'[raw].[goals]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [raw].[goals] (
//	    [goal_id] BIGINT,
//	    ...
//	  );
//	END;
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	t = t.Resolve(MapType)
	clauses, err := gddl.Clauses(t, QuoteIdent)
	if err != nil {
		return "", fmt.Errorf("mssql %w", err)
	}
	name := gddl.Qualify(t.FQN(), QuoteIdent)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s %s;\nEND;",
		strings.ReplaceAll(name, "'", "''"), name, gddl.Body(clauses, "  "),
	), nil
}

// BuildCreateSchemaSQL returns a batch that creates schema when sys.schemas
// has no row for it. CREATE SCHEMA must be the only statement in its batch,
// hence the EXEC.
func BuildCreateSchemaSQL(schema string) (string, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return "", fmt.Errorf("mssql ddl: schema must not be empty")
	}
	lit := strings.ReplaceAll(schema, "'", "''")
	create := strings.ReplaceAll("CREATE SCHEMA "+QuoteIdent(schema), "'", "''")
	return fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL\n  EXEC(N'%s');", lit, create), nil
}

// QuoteIdent brackets id, doubling any closing bracket.
//
//	weird]id => [weird]]id]
func QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// QuoteTable renders [schema].[table], or [table] when schema is empty.
func QuoteTable(schema, table string) string {
	return gddl.Qualify(schema+"."+table, QuoteIdent)
}
