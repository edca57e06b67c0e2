package ddl

import (
	"context"
	"errors"
	"strings"
	"testing"

	gddl "warehouse/internal/ddl"
)

type recordingExecer struct {
	stmts []string
	err   error
}

func (r *recordingExecer) Exec(_ context.Context, sql string) error {
	r.stmts = append(r.stmts, sql)
	return r.err
}

func goalsRaw() gddl.TableDef {
	return gddl.TableDef{
		Schema: "raw",
		Name:   "goals",
		Columns: []gddl.ColumnDef{
			{Name: "goal_id", Type: "int", PrimaryKey: true},
			{Name: "customer_id", Type: "int", Nullable: true},
			{Name: "target_amount", Type: "float", Nullable: true},
			{Name: "etl_timestamp", Type: "timestamp"},
		},
	}
}

func TestBuildCreateTableSQL_GoalsRaw(t *testing.T) {
	t.Parallel()

	got, err := BuildCreateTableSQL(goalsRaw())
	if err != nil {
		t.Fatalf("BuildCreateTableSQL: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "raw"."goals" (
  "goal_id" BIGINT NOT NULL,
  "customer_id" BIGINT,
  "target_amount" DOUBLE PRECISION,
  "etl_timestamp" TIMESTAMPTZ NOT NULL,
  PRIMARY KEY ("goal_id")
);`
	if got != want {
		t.Fatalf("sql mismatch\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildCreateTableSQL_KeepsExplicitSQLType(t *testing.T) {
	t.Parallel()

	def := gddl.TableDef{Name: "performance", Columns: []gddl.ColumnDef{
		{Name: "officialnav", Type: "float", SQLType: "NUMERIC(18,4)", Nullable: true, Default: "0"},
	}}
	got, err := BuildCreateTableSQL(def)
	if err != nil {
		t.Fatalf("BuildCreateTableSQL: %v", err)
	}
	if !strings.Contains(got, `"officialnav" NUMERIC(18,4) DEFAULT 0`) {
		t.Fatalf("explicit type or default lost: %s", got)
	}
	if !strings.HasPrefix(got, `CREATE TABLE IF NOT EXISTS "performance" (`) {
		t.Fatalf("unqualified name not rendered: %s", got)
	}
}

func TestBuildCreateTableSQL_Errors(t *testing.T) {
	t.Parallel()

	_, err := BuildCreateTableSQL(gddl.TableDef{Schema: "raw", Name: "goals"})
	if !errors.Is(err, gddl.ErrNoColumns) {
		t.Fatalf("no columns: err = %v", err)
	}
	_, err = BuildCreateTableSQL(gddl.TableDef{Columns: []gddl.ColumnDef{{Name: "id"}}})
	if err == nil || !strings.HasPrefix(err.Error(), "postgres ddl:") {
		t.Fatalf("no name: err = %v", err)
	}
}

func TestQuoting(t *testing.T) {
	t.Parallel()

	if got := QuoteIdent(`na"me`); got != `"na""me"` {
		t.Errorf("QuoteIdent = %s", got)
	}
	if got := QuoteTable("base", "customers"); got != `"base"."customers"` {
		t.Errorf("QuoteTable = %s", got)
	}
	if got := QuoteTable("", "customers"); got != `"customers"` {
		t.Errorf("QuoteTable without schema = %s", got)
	}
}

func TestEnsureSchemaAndTable(t *testing.T) {
	t.Parallel()

	ex := &recordingExecer{}
	ctx := context.Background()
	if err := EnsureSchema(ctx, ex, " raw "); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := EnsureTable(ctx, ex, goalsRaw()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if len(ex.stmts) != 2 || ex.stmts[0] != `CREATE SCHEMA IF NOT EXISTS "raw";` {
		t.Fatalf("statements = %q", ex.stmts)
	}
	if err := EnsureSchema(ctx, ex, ""); err == nil {
		t.Fatal("EnsureSchema accepted an empty schema")
	}
	if len(ex.stmts) != 2 {
		t.Fatal("invalid schema reached the database")
	}

	boom := errors.New("permission denied for database")
	failing := &recordingExecer{err: boom}
	if err := EnsureTable(ctx, failing, goalsRaw()); !errors.Is(err, boom) {
		t.Fatalf("EnsureTable err = %v, want %v", err, boom)
	}
}
