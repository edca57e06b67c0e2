// Package loader appends staging artifacts into raw warehouse tables.
//
// A load creates the target schema and table when they are absent, checks
// that the table and the artifact agree on the column set, casts every cell
// to its declared logical type, then appends all rows in one transaction.
// Loads never deduplicate: running twice doubles the rows.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"warehouse/internal/ddl"
	"warehouse/internal/mapping"
	"warehouse/internal/records"
	"warehouse/internal/staging"
	"warehouse/internal/storage"
)

// Target is the raw table an artifact is appended to. Empty Columns means
// every artifact field as text.
type Target struct {
	Schema  string
	Table   string
	Columns []ddl.ColumnDef

	// Comma is the artifact delimiter; 0 means ','.
	Comma rune
}

// FQN returns "schema.table".
func (t Target) FQN() string {
	return ddl.TableDef{Schema: t.Schema, Name: t.Table}.FQN()
}

// Result summarises one load.
type Result struct {
	Table    string
	Inserted int64
	Created  bool
	Elapsed  time.Duration
}

// LoadError wraps any failure of a load.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.Table, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// ErrColumnMismatch is wrapped when the artifact header or the existing table
// disagrees with the declared columns.
var ErrColumnMismatch = errors.New("column mismatch")

// openSession is a seam for tests.
var openSession = storage.Open

// Load appends art into target on the warehouse wh.
func Load(ctx context.Context, wh storage.Config, art staging.Artifact, target Target) (Result, error) {
	start := time.Now()
	res := Result{Table: target.FQN()}
	fail := func(err error) (Result, error) {
		return res, &LoadError{Table: res.Table, Err: err}
	}
	if strings.TrimSpace(target.Table) == "" {
		return fail(errors.New("target table is required"))
	}

	set, err := staging.Read(ctx, art.Path, target.Comma)
	if err != nil {
		return fail(err)
	}
	def := tableDef(target, set.Fields)
	if err := sameColumns("artifact header", set.Fields, def.ColumnNames()); err != nil {
		return fail(err)
	}
	rows, err := castRows(set, def)
	if err != nil {
		return fail(err)
	}

	sess, err := openSession(ctx, wh)
	if err != nil {
		return fail(fmt.Errorf("open warehouse: %w", err))
	}
	defer sess.Close()

	if err := sess.EnsureSchema(ctx, def.Schema); err != nil {
		return fail(err)
	}
	existing, err := sess.Columns(ctx, def.Schema, def.Name)
	if err != nil {
		return fail(err)
	}
	if existing == nil {
		if err := sess.EnsureTable(ctx, def); err != nil {
			return fail(err)
		}
		res.Created = true
	} else if err := sameColumns("existing table", existing, def.ColumnNames()); err != nil {
		return fail(err)
	}

	n, err := sess.Append(ctx, def.Schema, def.Name, def.ColumnNames(), rows)
	res.Inserted = n
	res.Elapsed = time.Since(start)
	if err != nil {
		return fail(err)
	}
	log.Printf("loader: table=%s inserted=%d created=%t elapsed=%s", res.Table, n, res.Created, res.Elapsed.Truncate(time.Millisecond))
	return res, nil
}

// tableDef resolves the declared columns, deriving text columns from the
// artifact header when none are declared, and appends the lineage column
// when it is missing.
func tableDef(t Target, header []string) ddl.TableDef {
	def := ddl.TableDef{Schema: t.Schema, Name: t.Table, Columns: append([]ddl.ColumnDef(nil), t.Columns...)}
	if len(def.Columns) == 0 {
		for _, f := range header {
			if f == records.LineageColumn {
				continue
			}
			def.Columns = append(def.Columns, ddl.ColumnDef{Name: f, Type: mapping.TypeText, Nullable: true})
		}
	}
	if _, ok := def.Column(records.LineageColumn); !ok {
		def.Columns = append(def.Columns, ddl.ColumnDef{
			Name:     records.LineageColumn,
			Type:     mapping.TypeTimestamp,
			Nullable: true,
		})
	}
	for i, c := range def.Columns {
		if c.Type == "" {
			def.Columns[i].Type = mapping.TypeText
		}
	}
	return def
}

// castRows orders every artifact row by def's columns and casts each cell.
func castRows(set records.Set, def ddl.TableDef) ([][]any, error) {
	out := make([][]any, 0, set.Len())
	for i, r := range set.Rows {
		row := make([]any, len(def.Columns))
		for j, c := range def.Columns {
			v, err := mapping.Cast(r[c.Name], c.Type)
			if err != nil {
				var ce *mapping.CastError
				if errors.As(err, &ce) {
					ce.Field, ce.Row = c.Name, i
				}
				return nil, err
			}
			row[j] = v
		}
		out = append(out, row)
	}
	return out, nil
}

// sameColumns reports whether got and want hold the same names, ignoring
// order.
func sameColumns(what string, got, want []string) error {
	g := append([]string(nil), got...)
	w := append([]string(nil), want...)
	sort.Strings(g)
	sort.Strings(w)
	if strings.Join(g, "\x00") == strings.Join(w, "\x00") {
		return nil
	}
	return fmt.Errorf("%w: %s has [%s], declared [%s]", ErrColumnMismatch, what, strings.Join(got, ", "), strings.Join(want, ", "))
}
