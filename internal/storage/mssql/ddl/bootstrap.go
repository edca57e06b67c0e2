package ddl

import (
	"context"

	gddl "warehouse/internal/ddl"
)

// EnsureTable runs the OBJECT_ID-guarded CREATE for def through ex.
func EnsureTable(ctx context.Context, ex gddl.Execer, def gddl.TableDef) error {
	sql, err := BuildCreateTableSQL(def)
	if err != nil {
		return err
	}
	return ex.Exec(ctx, sql)
}

// EnsureSchema creates schema if it does not already exist.
func EnsureSchema(ctx context.Context, ex gddl.Execer, schema string) error {
	sql, err := BuildCreateSchemaSQL(schema)
	if err != nil {
		return err
	}
	return ex.Exec(ctx, sql)
}
