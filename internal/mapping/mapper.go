package mapping

import (
	"errors"
	"fmt"
	"strings"

	"warehouse/internal/records"
)

// Mapper is a compiled, immutable field-mapping table. Apply is a pure
// function of its input.
type Mapper struct {
	rules   []compiled
	targets []string
	sources []string
}

type compiled struct {
	Rule
	typ  string
	expr *expression
}

// Compile validates rules and prepares them for Apply. It rejects unknown
// kinds, malformed rules, expressions that do not parse, targets written by
// more than one rule, and any rule other than identity writing the lineage
// column.
func Compile(rules []Rule) (*Mapper, error) {
	m := &Mapper{}
	written := map[string]string{}
	readSeen := map[string]bool{}
	read := func(f string) {
		if !readSeen[f] {
			readSeen[f] = true
			m.sources = append(m.sources, f)
		}
	}

	for i, r := range rules {
		r.Source = strings.TrimSpace(r.Source)
		r.Target = strings.TrimSpace(r.Target)
		c := compiled{Rule: r}

		switch r.Kind {
		case Identity:
			if r.Source == "" {
				return nil, fmt.Errorf("mapping: rule %d: identity requires source", i)
			}
			if r.Target != "" && r.Target != r.Source {
				return nil, fmt.Errorf("mapping: rule %d: identity target %q differs from source %q; use rename", i, r.Target, r.Source)
			}
			read(r.Source)

		case Rename:
			if r.Target == "" {
				r.Target = Normalize(r.Source)
			}
			if r.Source == "" || r.Target == "" {
				return nil, fmt.Errorf("mapping: rule %d: rename requires source and target", i)
			}
			read(r.Source)

		case Split:
			if r.Source == "" {
				return nil, fmt.Errorf("mapping: rule %d: split requires source", i)
			}
			if len(r.Targets) != 2 || strings.TrimSpace(r.Targets[0]) == "" || strings.TrimSpace(r.Targets[1]) == "" {
				return nil, fmt.Errorf("mapping: rule %d: split requires exactly two targets", i)
			}
			r.Targets = []string{strings.TrimSpace(r.Targets[0]), strings.TrimSpace(r.Targets[1])}
			read(r.Source)

		case CastKind:
			if r.Source == "" {
				return nil, fmt.Errorf("mapping: rule %d: cast requires source", i)
			}
			typ, ok := CanonicalType(r.Type)
			if !ok {
				return nil, fmt.Errorf("mapping: rule %d: unknown cast type %q", i, r.Type)
			}
			c.typ = typ
			read(r.Source)

		case Expr:
			if r.Target == "" {
				return nil, fmt.Errorf("mapping: rule %d: expr requires target", i)
			}
			if r.Type != "" {
				typ, ok := CanonicalType(r.Type)
				if !ok {
					return nil, fmt.Errorf("mapping: rule %d: unknown result type %q", i, r.Type)
				}
				c.typ = typ
			}
			e, err := parseExpression(r.Expr)
			if err != nil {
				return nil, fmt.Errorf("mapping: rule %d: %w", i, err)
			}
			c.expr = e
			for _, f := range e.fields {
				read(f)
			}

		default:
			return nil, fmt.Errorf("mapping: rule %d: unknown kind %q", i, r.Kind)
		}
		c.Rule = r

		for _, t := range c.outputs() {
			if t == records.LineageColumn && r.Kind != Identity {
				return nil, fmt.Errorf("mapping: rule %d: %s may only be carried by identity", i, records.LineageColumn)
			}
			if prev, dup := written[t]; dup {
				return nil, fmt.Errorf("mapping: target %q produced by both %s and %s", t, prev, c.label())
			}
			written[t] = c.label()
			m.targets = append(m.targets, t)
		}
		m.rules = append(m.rules, c)
	}
	return m, nil
}

// MustCompile is like Compile but panics on error. It is meant for
// package-level mapping tables.
func MustCompile(rules []Rule) *Mapper {
	m, err := Compile(rules)
	if err != nil {
		panic(err)
	}
	return m
}

// Targets returns the output fields in rule order.
func (m *Mapper) Targets() []string { return append([]string(nil), m.targets...) }

// Sources returns every source field referenced by a rule, in first-use order.
func (m *Mapper) Sources() []string { return append([]string(nil), m.sources...) }

// Origin describes how a target field is produced.
type Origin struct {
	// Source is the field read by the rule; empty for expressions.
	Source string
	// Type is the logical type the rule converts to; empty when the rule does
	// not convert.
	Type string
	// Passthrough is set for identity and rename, whose values keep the
	// source type.
	Passthrough bool
}

// Origin reports how target is produced. ok is false when no rule writes it.
func (m *Mapper) Origin(target string) (o Origin, ok bool) {
	for _, c := range m.rules {
		for _, t := range c.outputs() {
			if t != target {
				continue
			}
			o = Origin{Source: c.Source, Type: c.typ}
			switch c.Kind {
			case Identity, Rename:
				o.Passthrough = true
			case Split:
				o.Type = TypeText
			}
			return o, true
		}
	}
	return Origin{}, false
}

// Check verifies that every referenced source field is present in fields.
func (m *Mapper) Check(fields []string) error {
	have := make(map[string]bool, len(fields))
	for _, f := range fields {
		have[f] = true
	}
	for _, c := range m.rules {
		refs := []string{c.Source}
		if c.expr != nil {
			refs = c.expr.fields
		}
		for _, f := range refs {
			if !have[f] {
				return &MappingError{Field: f, Rule: c.label()}
			}
		}
	}
	return nil
}

// carriesLineage reports whether Apply should pass the lineage column
// through untouched: the input has it and no rule already produces it.
func (m *Mapper) carriesLineage(in records.Set) bool {
	if !in.Has(records.LineageColumn) {
		return false
	}
	for _, t := range m.targets {
		if t == records.LineageColumn {
			return false
		}
	}
	return true
}

// Apply maps every row of in to the target field set. It fails with a
// *MappingError before touching any row if a referenced source field is not
// part of in.Fields, and with a *CastError when a value cannot be converted.
// An input lineage column with no rule of its own is carried through as-is.
func (m *Mapper) Apply(in records.Set) (records.Set, error) {
	if err := m.Check(in.Fields); err != nil {
		return records.Set{}, err
	}

	fields := m.Targets()
	lineage := m.carriesLineage(in)
	if lineage {
		fields = append(fields, records.LineageColumn)
	}

	out := records.Set{Fields: fields, Rows: make([]records.Record, 0, len(in.Rows))}
	for i, row := range in.Rows {
		rec := make(records.Record, len(fields))
		for _, c := range m.rules {
			if err := c.apply(row, rec); err != nil {
				var ce *CastError
				if errors.As(err, &ce) {
					ce.Row = i
					return records.Set{}, ce
				}
				return records.Set{}, fmt.Errorf("mapping: row %d: %w", i, err)
			}
		}
		if lineage {
			rec[records.LineageColumn] = row[records.LineageColumn]
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, nil
}

func (c compiled) apply(row, rec records.Record) error {
	switch c.Kind {
	case Identity:
		rec[c.Source] = row[c.Source]

	case Rename:
		rec[c.Target] = row[c.Source]

	case Split:
		first, rest, err := splitName(row[c.Source])
		if err != nil {
			return &CastError{Field: c.Source, Value: row[c.Source], Type: "split", Err: err}
		}
		rec[c.Targets[0]] = first
		rec[c.Targets[1]] = rest

	case CastKind:
		v, err := Cast(row[c.Source], c.typ)
		if err != nil {
			ce := err.(*CastError)
			ce.Field = c.Source
			return ce
		}
		rec[c.outputs()[0]] = v

	case Expr:
		v, err := c.expr.eval(row)
		if err != nil {
			return err
		}
		if c.typ != "" {
			if v, err = Cast(v, c.typ); err != nil {
				ce := err.(*CastError)
				ce.Field = c.Target
				return ce
			}
		}
		rec[c.Target] = v
	}
	return nil
}

// splitName normalizes whitespace and splits at the first space: the first
// token versus the remainder. A name without a space yields an empty
// remainder; NULL and blank input yield NULL for both parts.
func splitName(v any) (any, any, error) {
	if v == nil {
		return nil, nil, nil
	}
	s, ok := v.(string)
	if !ok {
		if b, isBytes := v.([]byte); isBytes {
			s = string(b)
		} else {
			return nil, nil, fmt.Errorf("split needs text, got %T", v)
		}
	}
	s = CollapseSpace(s)
	if s == "" {
		return nil, nil, nil
	}
	first, rest, _ := strings.Cut(s, " ")
	return first, rest, nil
}

// Inverse returns a mapper that undoes m. Only identity and rename rules are
// invertible.
func (m *Mapper) Inverse() (*Mapper, error) {
	inv := make([]Rule, 0, len(m.rules))
	for _, c := range m.rules {
		switch c.Kind {
		case Identity:
			inv = append(inv, Rule{Kind: Identity, Source: c.Source})
		case Rename:
			inv = append(inv, Rule{Kind: Rename, Source: c.Target, Target: c.Source})
		default:
			return nil, fmt.Errorf("mapping: rule %s is not invertible", c.label())
		}
	}
	return Compile(inv)
}
