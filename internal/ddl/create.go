// Package ddl is the dialect-neutral table model shared by the warehouse
// layers and the pieces every dialect builds its CREATE statements from.
//
// Dialect packages under internal/storage supply identifier quoting, logical
// type mapping and the create-if-absent guard; this package only renders the
// column list. ColumnDef.Default is raw SQL and is emitted untouched.
package ddl

import (
	"errors"
	"fmt"
	"strings"
)

// Quoter renders one identifier segment for a dialect.
type Quoter func(string) string

// ErrNoColumns is returned for a table definition without columns.
var ErrNoColumns = errors.New("ddl: at least one column is required")

// Clauses validates t and renders one clause per column, followed by a
// PRIMARY KEY constraint when any column is part of the key. Key columns are
// listed in declaration order and always rendered NOT NULL. A nil q leaves
// identifiers unquoted.
//
// Columns must already carry a SQLType; dialects call TableDef.Resolve first.
func Clauses(t TableDef, q Quoter) ([]string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, errors.New("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return nil, ErrNoColumns
	}
	if q == nil {
		q = func(s string) string { return s }
	}

	out := make([]string, 0, len(t.Columns)+1)
	var key []string
	for i, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("ddl: %s: column %d has no name", t.FQN(), i)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return nil, fmt.Errorf("ddl: %s: column %s has no SQL type", t.FQN(), name)
		}

		clause := q(name) + " " + typ
		if c.PrimaryKey || !c.Nullable {
			clause += " NOT NULL"
		}
		if d := strings.TrimSpace(c.Default); d != "" {
			clause += " DEFAULT " + d
		}
		out = append(out, clause)

		if c.PrimaryKey {
			key = append(key, q(name))
		}
	}
	if len(key) > 0 {
		out = append(out, "PRIMARY KEY ("+strings.Join(key, ", ")+")")
	}
	return out, nil
}

// Qualify quotes every non-empty dot-separated segment of name with q.
//
//	Qualify("raw.customers", q) => q("raw") + "." + q("customers")
func Qualify(name string, q Quoter) string {
	var segs []string
	for _, s := range strings.Split(name, ".") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, q(s))
		}
	}
	return strings.Join(segs, ".")
}

// Body joins clauses into a parenthesised list with one clause per line. The
// closing parenthesis sits at outer and the clauses two spaces deeper.
func Body(clauses []string, outer string) string {
	inner := outer + "  "
	return "(\n" + inner + strings.Join(clauses, ",\n"+inner) + "\n" + outer + ")"
}

// BuildCreateTableSQL renders an unguarded, unquoted CREATE TABLE for t.
func BuildCreateTableSQL(t TableDef) (string, error) {
	clauses, err := Clauses(t, nil)
	if err != nil {
		return "", err
	}
	return "CREATE TABLE " + t.FQN() + " " + Body(clauses, "") + ";", nil
}
