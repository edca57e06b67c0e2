package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"warehouse/internal/mapping"
)

// -----------------------------------------------------------------------------
// Pipeline decoding tests
// -----------------------------------------------------------------------------
//
// These tests validate that pipeline files decode into the intended Go struct
// graph in both supported formats, and that the shipped sample pipelines lint
// cleanly.

func TestDecode_JSONAndYAMLAgree(t *testing.T) {
	t.Parallel()

	const js = `{
	  "job": "j",
	  "source": { "kind": "sqlite", "dsn": "src.db" },
	  "warehouse": { "kind": "sqlite", "dsn": "wh.db", "options": { "connect_timeout_seconds": 3 } },
	  "staging": { "dir": "stage" },
	  "entities": [{
	    "name": "customers",
	    "source": { "table": "customers", "fields": ["id", "full_name"] },
	    "raw": { "schema": "raw", "table": "customers", "columns": [{ "name": "id", "type": "int" }] },
	    "base": {
	      "schema": "base", "table": "customers",
	      "rules": [{ "kind": "split", "source": "full_name", "targets": ["first_name", "last_name"] }],
	      "depends_on": ["x"]
	    }
	  }]
	}`
	const ym = `
job: j
source: { kind: sqlite, dsn: src.db }
warehouse:
  kind: sqlite
  dsn: wh.db
  options: { connect_timeout_seconds: 3 }
staging: { dir: stage }
entities:
  - name: customers
    source: { table: customers, fields: [id, full_name] }
    raw:
      schema: raw
      table: customers
      columns: [{ name: id, type: int }]
    base:
      schema: base
      table: customers
      rules: [{ kind: split, source: full_name, targets: [first_name, last_name] }]
      depends_on: [x]
`
	pj, err := Decode(".json", []byte(js))
	if err != nil {
		t.Fatalf("Decode(json) error = %v", err)
	}
	py, err := Decode(".yml", []byte(ym))
	if err != nil {
		t.Fatalf("Decode(yaml) error = %v", err)
	}

	if got := pj.Warehouse.Options.Int("connect_timeout_seconds", 0); got != 3 {
		t.Fatalf("json connect_timeout_seconds = %d, want 3", got)
	}
	if got := py.Warehouse.Options.Int("connect_timeout_seconds", 0); got != 3 {
		t.Fatalf("yaml connect_timeout_seconds = %d, want 3", got)
	}

	ej, ey := pj.Entities[0], py.Entities[0]
	if !reflect.DeepEqual(ej.Base.Rules, ey.Base.Rules) {
		t.Fatalf("base rules differ:\njson=%+v\nyaml=%+v", ej.Base.Rules, ey.Base.Rules)
	}
	if ey.Base.Schema != "base" || ey.Base.Table != "customers" {
		t.Fatalf("yaml inline layer not decoded: %+v", ey.Base.Layer)
	}
	if !reflect.DeepEqual(ey.Base.DependsOn, []string{"x"}) {
		t.Fatalf("depends_on = %v", ey.Base.DependsOn)
	}
	if ej.Base.Rules[0].Kind != mapping.Split {
		t.Fatalf("rule kind = %q, want split", ej.Base.Rules[0].Kind)
	}
}

func TestDecode_UnsupportedFormat(t *testing.T) {
	t.Parallel()
	if _, err := Decode(".toml", []byte("x")); err == nil {
		t.Fatal("Decode(.toml) error = nil, want error")
	}
}

func TestEntityDefaults(t *testing.T) {
	t.Parallel()

	e := Entity{Name: "goals", Source: EntitySource{Fields: []string{"Goal Type", "ID"}}}
	if got := e.StagingFile(); got != "goals.csv" {
		t.Fatalf("StagingFile() = %q", got)
	}
	rules := e.StagingRules()
	want := []mapping.Rule{
		{Kind: mapping.Identity, Source: "Goal Type"},
		{Kind: mapping.Identity, Source: "ID"},
	}
	if !reflect.DeepEqual(rules, want) {
		t.Fatalf("StagingRules() = %+v, want %+v", rules, want)
	}
}

func TestSamplePipelinesAreValid(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"assignment.json", "assignment.yaml"} {
		path := filepath.Join("..", "..", "configs", "pipelines", name)
		if _, err := os.Stat(path); err != nil {
			t.Skipf("sample pipeline missing: %v", err)
		}
		p, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
		if len(p.Entities) != 3 {
			t.Fatalf("%s: entities = %d, want 3", name, len(p.Entities))
		}
		for _, iss := range ValidatePipeline(p) {
			if iss.Severity == SeverityError {
				t.Errorf("%s: %v", name, iss)
			}
		}
	}
}

func TestLayerTableDef(t *testing.T) {
	t.Parallel()

	l := Layer{Schema: "raw", Table: "customers", Columns: []Column{
		{Name: "id", Type: "integer", PrimaryKey: true},
		{Name: "gender", Type: ""},
		{Name: "signup", Type: "datetime", NotNull: true},
	}}
	def := l.TableDef()
	if def.FQN() != "raw.customers" {
		t.Fatalf("FQN() = %q", def.FQN())
	}
	got := []string{def.Columns[0].Type, def.Columns[1].Type, def.Columns[2].Type}
	want := []string{mapping.TypeInt, mapping.TypeText, mapping.TypeTimestamp}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	if def.Columns[0].Nullable || !def.Columns[1].Nullable || def.Columns[2].Nullable {
		t.Fatalf("nullability = %+v", def.Columns)
	}
	if !def.Columns[0].PrimaryKey {
		t.Fatal("id should be a primary key")
	}
}
