package mapping

import (
	"fmt"
	"math/big"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// rowVar is the variable through which any field can be addressed by its
// exact name, e.g. row["Goal Type"].
const rowVar = "row"

// functions is the library available to expression rules.
var functions = map[string]function.Function{
	"upper":     stdlib.UpperFunc,
	"lower":     stdlib.LowerFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"strlen":    stdlib.StrlenFunc,
	"substr":    stdlib.SubstrFunc,
	"replace":   stdlib.ReplaceFunc,
	"format":    stdlib.FormatFunc,
	"coalesce":  stdlib.CoalesceFunc,
	"abs":       stdlib.AbsoluteFunc,
	"floor":     stdlib.FloorFunc,
	"ceil":      stdlib.CeilFunc,
	"max":       stdlib.MaxFunc,
	"min":       stdlib.MinFunc,
	"int":       stdlib.IntFunc,
}

// expression is a parsed expression rule with its resolved field references.
type expression struct {
	src    string
	expr   hclsyntax.Expression
	fields []string
}

// parseExpression parses src and collects the source fields it reads. Plain
// identifiers name fields directly; row["..."] and row.name address a field by
// its exact name.
func parseExpression(src string) (*expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "expr", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse expression %q: %s", src, diags.Error())
	}

	seen := map[string]bool{}
	var fields []string
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}

	for _, tr := range expr.Variables() {
		root := tr.RootName()
		if root != rowVar {
			add(root)
			continue
		}
		if len(tr) < 2 {
			return nil, fmt.Errorf("expression %q: %s must be indexed by a literal field name", src, rowVar)
		}
		switch step := tr[1].(type) {
		case hcl.TraverseIndex:
			if step.Key.Type() != cty.String || !step.Key.IsKnown() || step.Key.IsNull() {
				return nil, fmt.Errorf("expression %q: %s index must be a string literal", src, rowVar)
			}
			add(step.Key.AsString())
		case hcl.TraverseAttr:
			add(step.Name)
		default:
			return nil, fmt.Errorf("expression %q: unsupported %s traversal", src, rowVar)
		}
	}

	for _, name := range functionNames(expr) {
		if _, ok := functions[name]; !ok {
			return nil, fmt.Errorf("expression %q: unknown function %q", src, name)
		}
	}

	return &expression{src: src, expr: expr, fields: fields}, nil
}

// functionNames walks the syntax tree for function calls.
func functionNames(expr hclsyntax.Expression) []string {
	var out []string
	_ = hclsyntax.VisitAll(expr, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			out = append(out, call.Name)
		}
		return nil
	})
	return out
}

// eval evaluates the expression against one row. A NULL operand that makes
// the expression invalid yields NULL, mirroring SQL three-valued logic.
func (e *expression) eval(row map[string]any) (any, error) {
	vars := make(map[string]cty.Value, len(e.fields)+1)
	obj := make(map[string]cty.Value, len(e.fields))
	hasNull := false
	for _, f := range e.fields {
		v, err := toCty(row[f])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f, err)
		}
		if v.IsNull() {
			hasNull = true
		}
		vars[f] = v
		obj[f] = v
	}
	vars[rowVar] = cty.ObjectVal(obj)

	ctx := &hcl.EvalContext{Variables: vars, Functions: functions}
	out, diags := e.expr.Value(ctx)
	if diags.HasErrors() {
		if hasNull {
			return nil, nil
		}
		return nil, fmt.Errorf("evaluate %q: %s", e.src, diags.Error())
	}
	return fromCty(out)
}

func toCty(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(t), nil
	case []byte:
		return cty.StringVal(string(t)), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int32:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float32:
		return cty.NumberFloatVal(float64(t)), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case time.Time:
		return cty.StringVal(t.UTC().Format(time.RFC3339Nano)), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromCty(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("expression result is unknown")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return v.True(), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	default:
		return nil, fmt.Errorf("expression result type %s is not a scalar", v.Type().FriendlyName())
	}
}
