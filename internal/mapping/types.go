// Package mapping translates a row set over one entity's field set into a row
// set over another's. Each target field is produced by exactly one rule:
// identity, rename, split, cast or expression. Unmapped source fields are
// dropped.
package mapping

import "fmt"

// Kind selects the transform a rule applies.
type Kind string

const (
	Identity Kind = "identity"
	Rename   Kind = "rename"
	Split    Kind = "split"
	CastKind Kind = "cast"
	Expr     Kind = "expr"
)

// Rule is one entry of a field-mapping table. Which fields are used depends
// on Kind:
//
//	identity: Source (Target defaults to Source and must equal it)
//	rename:   Source -> Target (defaults to Normalize(Source))
//	split:    Source -> Targets[0], Targets[1]
//	cast:     Source -> Target (defaults to Source), converted to Type
//	expr:     Expr -> Target, optionally converted to Type
type Rule struct {
	Kind    Kind     `json:"kind" yaml:"kind"`
	Source  string   `json:"source,omitempty" yaml:"source,omitempty"`
	Target  string   `json:"target,omitempty" yaml:"target,omitempty"`
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty"`
	Type    string   `json:"type,omitempty" yaml:"type,omitempty"`
	Expr    string   `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// outputs returns the target fields the rule writes.
func (r Rule) outputs() []string {
	switch r.Kind {
	case Split:
		return r.Targets
	case Identity:
		return []string{r.Source}
	case CastKind:
		if r.Target == "" {
			return []string{r.Source}
		}
	case Rename:
		if r.Target == "" {
			return []string{Normalize(r.Source)}
		}
	}
	return []string{r.Target}
}

// label identifies a rule in error messages.
func (r Rule) label() string {
	out := r.outputs()
	if len(out) == 0 {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s(%v)", r.Kind, out)
}

// MappingError reports a rule that references a source field absent from the
// input row set.
type MappingError struct {
	Field string
	Rule  string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping: rule %s references missing source field %q", e.Rule, e.Field)
}

// CastError reports a value that cannot be represented in the requested type.
type CastError struct {
	Field string
	Row   int
	Value any
	Type  string
	Err   error
}

func (e *CastError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cast %v to %s: %v", e.Value, e.Type, e.Err)
	}
	return fmt.Sprintf("cast field %q row %d value %v to %s: %v", e.Field, e.Row, e.Value, e.Type, e.Err)
}

func (e *CastError) Unwrap() error { return e.Err }
