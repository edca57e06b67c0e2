// Package transform materializes a curated table from an upstream warehouse
// table through a field mapping. Every run fully replaces the destination.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"warehouse/internal/ddl"
	"warehouse/internal/mapping"
	"warehouse/internal/records"
	"warehouse/internal/storage"
)

// Ref names a warehouse table.
type Ref struct {
	Schema string
	Table  string
}

func (r Ref) String() string {
	return ddl.TableDef{Schema: r.Schema, Name: r.Table}.FQN()
}

// Stage is one upstream -> destination hop.
type Stage struct {
	Schema string
	Table  string
	From   Ref

	Mapping *mapping.Mapper

	// Columns optionally declares the destination columns. Undeclared
	// columns are typed from the rule, then from Upstream, then as text.
	Columns []ddl.ColumnDef

	// Upstream carries the declared upstream column types.
	Upstream []ddl.ColumnDef

	// Latest restricts the input to the upstream rows stamped with the
	// newest lineage timestamp, i.e. the most recent full extract.
	Latest bool
}

// Result summarises one materialization.
type Result struct {
	Table string
	Rows  int64
	// Fingerprint digests the written rows without the lineage column, so
	// reruns over an unchanged upstream report the same value.
	Fingerprint uint64
	Elapsed     time.Duration
}

// TransformError wraps any failure of a materialization.
type TransformError struct {
	Table string
	Err   error
}

func (e *TransformError) Error() string { return fmt.Sprintf("transform %s: %v", e.Table, e.Err) }
func (e *TransformError) Unwrap() error { return e.Err }

// ErrUpstreamMissing is wrapped when the upstream table does not exist.
var ErrUpstreamMissing = errors.New("upstream table does not exist")

// openSession is a seam for tests.
var openSession = storage.Open

// Materialize rebuilds st's destination from its upstream table. Nothing is
// written when the upstream lacks a referenced column or a value fails to
// convert.
func Materialize(ctx context.Context, wh storage.Config, st Stage) (Result, error) {
	start := time.Now()
	dest := Ref{Schema: st.Schema, Table: st.Table}
	res := Result{Table: dest.String()}
	fail := func(err error) (Result, error) {
		return res, &TransformError{Table: res.Table, Err: err}
	}
	if st.Mapping == nil {
		return fail(errors.New("mapping is required"))
	}
	if strings.TrimSpace(st.Table) == "" {
		return fail(errors.New("destination table is required"))
	}

	sess, err := openSession(ctx, wh)
	if err != nil {
		return fail(fmt.Errorf("open warehouse: %w", err))
	}
	defer sess.Close()

	upstream, err := sess.Columns(ctx, st.From.Schema, st.From.Table)
	if err != nil {
		return fail(err)
	}
	if upstream == nil {
		return fail(fmt.Errorf("%w: %s", ErrUpstreamMissing, st.From))
	}
	if err := st.Mapping.Check(upstream); err != nil {
		return fail(err)
	}

	sel := st.Mapping.Sources()
	if slices.Contains(upstream, records.LineageColumn) && !slices.Contains(sel, records.LineageColumn) {
		sel = append(sel, records.LineageColumn)
	}
	in, err := sess.Select(ctx, st.From.Schema, st.From.Table, sel)
	if err != nil {
		return fail(err)
	}
	if st.Latest && in.Has(records.LineageColumn) {
		if in, err = latestSnapshot(in); err != nil {
			return fail(err)
		}
	}
	out, err := st.Mapping.Apply(in)
	if err != nil {
		return fail(err)
	}

	def, err := destination(st, out.Fields)
	if err != nil {
		return fail(err)
	}
	rows, err := castRows(out, def)
	if err != nil {
		return fail(err)
	}

	res.Fingerprint = storage.Fingerprint(out, records.LineageColumn)

	if err := sess.EnsureSchema(ctx, def.Schema); err != nil {
		return fail(err)
	}
	n, err := sess.Replace(ctx, def, rows)
	res.Rows = n
	res.Elapsed = time.Since(start)
	if err != nil {
		return fail(err)
	}
	log.Printf("transform: table=%s from=%s rows=%d fingerprint=%016x elapsed=%s",
		res.Table, st.From, n, res.Fingerprint, res.Elapsed.Truncate(time.Millisecond))
	return res, nil
}

// latestSnapshot keeps the rows whose lineage timestamp equals the newest
// one in set. Rows without a timestamp are dropped when any row has one.
func latestSnapshot(set records.Set) (records.Set, error) {
	stamps := make([]time.Time, len(set.Rows))
	var newest time.Time
	for i, r := range set.Rows {
		v, err := mapping.Cast(r[records.LineageColumn], mapping.TypeTimestamp)
		if err != nil {
			return records.Set{}, fmt.Errorf("%s: %w", records.LineageColumn, err)
		}
		if ts, ok := v.(time.Time); ok {
			stamps[i] = ts
			if ts.After(newest) {
				newest = ts
			}
		}
	}
	if newest.IsZero() {
		return set, nil
	}
	out := records.Set{Fields: set.Fields}
	for i, r := range set.Rows {
		if stamps[i].Equal(newest) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out, nil
}

// destination types every output field. Declared columns must cover exactly
// the mapped fields; the lineage column is added when undeclared.
func destination(st Stage, fields []string) (ddl.TableDef, error) {
	def := ddl.TableDef{Schema: st.Schema, Name: st.Table}
	if len(st.Columns) > 0 {
		declared := ddl.TableDef{Columns: st.Columns}
		for _, f := range fields {
			if _, ok := declared.Column(f); !ok && f != records.LineageColumn {
				return ddl.TableDef{}, fmt.Errorf("mapped field %q is not a declared column", f)
			}
		}
		for _, c := range st.Columns {
			if !slices.Contains(fields, c.Name) {
				return ddl.TableDef{}, fmt.Errorf("declared column %q is not produced by any rule", c.Name)
			}
		}
	}

	upstream := ddl.TableDef{Columns: st.Upstream}
	declared := ddl.TableDef{Columns: st.Columns}
	for _, f := range fields {
		if c, ok := declared.Column(f); ok {
			if c.Type == "" {
				c.Type = inferType(st.Mapping, upstream, f)
			}
			def.Columns = append(def.Columns, c)
			continue
		}
		def.Columns = append(def.Columns, ddl.ColumnDef{
			Name:     f,
			Type:     inferType(st.Mapping, upstream, f),
			Nullable: true,
		})
	}
	return def, nil
}

func inferType(m *mapping.Mapper, upstream ddl.TableDef, field string) string {
	if field == records.LineageColumn {
		return mapping.TypeTimestamp
	}
	o, ok := m.Origin(field)
	if !ok {
		return mapping.TypeText
	}
	if o.Type != "" {
		return o.Type
	}
	if o.Passthrough {
		if c, ok := upstream.Column(o.Source); ok && c.Type != "" {
			return c.Type
		}
	}
	return mapping.TypeText
}

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
