package ddl

import (
	"errors"
	"strings"
	"testing"
)

func customersBase() TableDef {
	return TableDef{
		Schema: "base",
		Name:   "customers",
		Columns: []ColumnDef{
			{Name: "id", SQLType: "BIGINT", PrimaryKey: true, Nullable: true},
			{Name: "first_name", SQLType: "TEXT", Nullable: true},
			{Name: "last_name", SQLType: "TEXT", Nullable: true},
			{Name: "etl_timestamp", SQLType: "TIMESTAMP", Default: "CURRENT_TIMESTAMP"},
		},
	}
}

func TestBuildCreateTableSQL_CustomersBase(t *testing.T) {
	t.Parallel()

	got, err := BuildCreateTableSQL(customersBase())
	if err != nil {
		t.Fatalf("BuildCreateTableSQL: %v", err)
	}
	want := "CREATE TABLE base.customers (\n" +
		"  id BIGINT NOT NULL,\n" +
		"  first_name TEXT,\n" +
		"  last_name TEXT,\n" +
		"  etl_timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,\n" +
		"  PRIMARY KEY (id)\n" +
		");"
	if got != want {
		t.Fatalf("sql mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestClauses_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		def  TableDef
		want string
	}{
		"no table name": {
			def:  TableDef{Schema: "raw", Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			want: "table name must not be empty",
		},
		"blank column name": {
			def:  TableDef{Name: "goals", Columns: []ColumnDef{{Name: "  ", SQLType: "INT"}}},
			want: "goals: column 0 has no name",
		},
		"unresolved type": {
			def:  TableDef{Schema: "raw", Name: "goals", Columns: []ColumnDef{{Name: "goal_id", Type: "int"}}},
			want: "raw.goals: column goal_id has no SQL type",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Clauses(tc.def, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Clauses() err = %v, want it to contain %q", err, tc.want)
			}
		})
	}
}

func TestClauses_NoColumns(t *testing.T) {
	t.Parallel()

	_, err := Clauses(TableDef{Schema: "raw", Name: "performance"}, nil)
	if !errors.Is(err, ErrNoColumns) {
		t.Fatalf("err = %v, want ErrNoColumns", err)
	}
}

func TestClauses_QuotesKeyInDeclarationOrder(t *testing.T) {
	t.Parallel()

	def := TableDef{
		Name: "performance",
		Columns: []ColumnDef{
			{Name: "strategy_id", SQLType: "TEXT", PrimaryKey: true},
			{Name: "as_of", SQLType: "DATE", PrimaryKey: true},
			{Name: "officialnav", SQLType: "DOUBLE", Nullable: true},
		},
	}
	brackets := func(s string) string { return "<" + s + ">" }

	got, err := Clauses(def, brackets)
	if err != nil {
		t.Fatalf("Clauses: %v", err)
	}
	want := []string{
		"<strategy_id> TEXT NOT NULL",
		"<as_of> DATE NOT NULL",
		"<officialnav> DOUBLE",
		"PRIMARY KEY (<strategy_id>, <as_of>)",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Clauses() =\n%v\nwant\n%v", got, want)
	}
}

func TestQualify(t *testing.T) {
	t.Parallel()

	q := func(s string) string { return "`" + s + "`" }
	for in, want := range map[string]string{
		"raw.goals":     "`raw`.`goals`",
		"goals":         "`goals`",
		".goals":        "`goals`",
		" raw . goals ": "`raw`.`goals`",
	} {
		if got := Qualify(in, q); got != want {
			t.Errorf("Qualify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBody_Indent(t *testing.T) {
	t.Parallel()

	got := Body([]string{"a INT", "b INT"}, "  ")
	want := "(\n    a INT,\n    b INT\n  )"
	if got != want {
		t.Fatalf("Body() = %q, want %q", got, want)
	}
}

var benchmarkSink string

func BenchmarkBuildCreateTableSQL(b *testing.B) {
	def := customersBase()
	for i := 0; i < 20; i++ {
		def.Columns = append(def.Columns, ColumnDef{Name: "extra_" + string(rune('a'+i)), SQLType: "TEXT", Nullable: true})
	}
	b.ReportAllocs()
	for b.Loop() {
		sql, err := BuildCreateTableSQL(def)
		if err != nil {
			b.Fatal(err)
		}
		benchmarkSink = sql
	}
}

func TestTableDefHelpers(t *testing.T) {
	t.Parallel()

	def := TableDef{
		Schema: "raw",
		Name:   "customers",
		Columns: []ColumnDef{
			{Name: "id", Type: "int"},
			{Name: "note", Type: "text", SQLType: "VARCHAR(10)"},
		},
	}
	if got := def.FQN(); got != "raw.customers" {
		t.Fatalf("FQN() = %q", got)
	}
	if got := (TableDef{Name: "t"}).FQN(); got != "t" {
		t.Fatalf("FQN() without schema = %q", got)
	}

	mapped := def.Resolve(func(logical string) string { return "X_" + logical })
	if mapped.Columns[0].SQLType != "X_int" || mapped.Columns[1].SQLType != "VARCHAR(10)" {
		t.Fatalf("Resolve() columns = %+v", mapped.Columns)
	}
	if def.Columns[0].SQLType != "" {
		t.Fatal("Resolve() mutated the receiver")
	}

	next := def.WithName("customers__next")
	if next.FQN() != "raw.customers__next" || def.Name != "customers" {
		t.Fatalf("WithName() = %q, original %q", next.FQN(), def.Name)
	}
	if got := def.ColumnNames(); len(got) != 2 || got[1] != "note" {
		t.Fatalf("ColumnNames() = %v", got)
	}
}
