package ddl

import (
	"context"

	gddl "warehouse/internal/ddl"
)

// EnsureTable issues CREATE TABLE IF NOT EXISTS for def through ex.
func EnsureTable(ctx context.Context, ex gddl.Execer, def gddl.TableDef) error {
	sql, err := BuildCreateTableSQL(def)
	if err != nil {
		return err
	}
	return ex.Exec(ctx, sql)
}

// EnsureSchema issues CREATE SCHEMA IF NOT EXISTS for schema.
func EnsureSchema(ctx context.Context, ex gddl.Execer, schema string) error {
	sql, err := BuildCreateSchemaSQL(schema)
	if err != nil {
		return err
	}
	return ex.Exec(ctx, sql)
}
