// Package records holds the in-memory row model shared by every layer of the
// warehouse pipeline: source extraction, staging artifacts, warehouse reads
// and schema mapping.
package records

// LineageColumn is appended to every staged row and carried unchanged into
// every downstream table.
const LineageColumn = "etl_timestamp"

// Record is a single row keyed by field name. A nil value is SQL NULL.
type Record map[string]any

// Set is an ordered row set. Fields fixes the column order used when the set
// is serialized (CSV header, COPY column list, CREATE TABLE column order).
type Set struct {
	Fields []string
	Rows   []Record
}

// Len returns the number of rows in the set.
func (s Set) Len() int { return len(s.Rows) }

// Has reports whether field is part of the set's field list.
func (s Set) Has(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Values returns r aligned to s.Fields. Missing fields become nil.
func (s Set) Values(r Record) []any {
	out := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = r[f]
	}
	return out
}

// Matrix returns every row aligned to s.Fields, the shape bulk loaders expect.
func (s Set) Matrix() [][]any {
	out := make([][]any, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = s.Values(r)
	}
	return out
}

// FromMatrix builds a Set from column-aligned rows.
func FromMatrix(fields []string, rows [][]any) Set {
	out := Set{Fields: append([]string(nil), fields...), Rows: make([]Record, 0, len(rows))}
	for _, row := range rows {
		rec := make(Record, len(fields))
		for i, f := range fields {
			if i < len(row) {
				rec[f] = row[i]
			}
		}
		out.Rows = append(out.Rows, rec)
	}
	return out
}

// FromValues builds one Record from values aligned to fields. Driver byte
// slices become strings so that text compares equal across backends.
func FromValues(fields []string, vals []any) Record {
	rec := make(Record, len(fields))
	for i, f := range fields {
		if i >= len(vals) {
			rec[f] = nil
			continue
		}
		if b, ok := vals[i].([]byte); ok {
			rec[f] = string(b)
			continue
		}
		rec[f] = vals[i]
	}
	return rec
}
