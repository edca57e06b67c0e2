package ddl

import "strings"

// ColumnDef describes a single column in a table definition. It intentionally
// uses simple, database-agnostic fields.
//
// Fields:
//   - Name: logical column name (unquoted; quoting/escaping happens at render time)
//   - Type: logical type (int, float, bool, text, date, timestamp) used for value coercion
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, TIMESTAMPTZ); dialects fill it from Type when empty
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., 'anon', CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	Type       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds a schema-qualified table name and an ordered list of columns.
// Schema may be empty for backends without schemas.
type TableDef struct {
	Schema  string
	Name    string
	Columns []ColumnDef
}

// FQN returns the dotted "schema.table" form, or just the table name when no
// schema is set.
func (t TableDef) FQN() string {
	s, n := strings.TrimSpace(t.Schema), strings.TrimSpace(t.Name)
	if s == "" {
		return n
	}
	return s + "." + n
}

// ColumnNames returns the column names in declaration order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Column returns the column named name.
func (t TableDef) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// WithName returns a copy of t renamed to name, keeping schema and columns.
func (t TableDef) WithName(name string) TableDef {
	out := t
	out.Name = name
	out.Columns = append([]ColumnDef(nil), t.Columns...)
	return out
}

// Resolve returns a copy of t with every empty SQLType filled by mapType.
func (t TableDef) Resolve(mapType func(string) string) TableDef {
	out := t.WithName(t.Name)
	for i, c := range out.Columns {
		if strings.TrimSpace(c.SQLType) == "" {
			out.Columns[i].SQLType = mapType(c.Type)
		}
	}
	return out
}
