package mapping

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Logical column types understood by Cast and by the warehouse DDL mappers.
const (
	TypeInt       = "int"
	TypeFloat     = "float"
	TypeBool      = "bool"
	TypeText      = "text"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
)

var typeAliases = map[string]string{
	"int": TypeInt, "integer": TypeInt, "bigint": TypeInt,
	"float": TypeFloat, "double": TypeFloat, "real": TypeFloat, "numeric": TypeFloat, "decimal": TypeFloat,
	"bool": TypeBool, "boolean": TypeBool,
	"text": TypeText, "string": TypeText, "varchar": TypeText,
	"date": TypeDate,
	"timestamp": TypeTimestamp, "timestamptz": TypeTimestamp, "datetime": TypeTimestamp,
}

// CanonicalType resolves a type name or alias to its logical type. It
// returns false for names Cast does not support.
func CanonicalType(t string) (string, bool) {
	c, ok := typeAliases[strings.ToLower(strings.TrimSpace(t))]
	return c, ok
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"02.01.2006",
	"01/02/2006",
}

// Cast converts v to the logical type typ. nil stays nil, and so does the
// empty string for every type but text. Values that cannot be represented
// return a *CastError.
func Cast(v any, typ string) (any, error) {
	kind, ok := CanonicalType(typ)
	if !ok {
		return nil, &CastError{Value: v, Type: typ, Err: fmt.Errorf("unknown type")}
	}
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if s, ok := v.(string); ok && kind != TypeText && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	out, err := castTo(v, kind)
	if err != nil {
		return nil, &CastError{Value: v, Type: kind, Err: err}
	}
	return out, nil
}

func castTo(v any, kind string) (any, error) {
	switch kind {
	case TypeText:
		switch t := v.(type) {
		case string:
			return t, nil
		case time.Time:
			return t.Format(time.RFC3339Nano), nil
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), nil
		default:
			return fmt.Sprint(t), nil
		}

	case TypeInt:
		switch t := v.(type) {
		case int:
			return int64(t), nil
		case int32:
			return int64(t), nil
		case int64:
			return t, nil
		case float64:
			if t != math.Trunc(t) {
				return nil, fmt.Errorf("non-integral number")
			}
			return int64(t), nil
		case bool:
			if t {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		}

	case TypeFloat:
		switch t := v.(type) {
		case float64:
			return t, nil
		case float32:
			return float64(t), nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(t), 64)
		}

	case TypeBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case int64:
			return t != 0, nil
		case int:
			return t != 0, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(t))
		}

	case TypeDate:
		switch t := v.(type) {
		case time.Time:
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		case string:
			ts, err := parseTime(strings.TrimSpace(t), dateLayouts)
			if err != nil {
				return nil, err
			}
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}

	case TypeTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			ts, err := parseTime(strings.TrimSpace(t), timestampLayouts)
			if err != nil {
				return nil, err
			}
			return ts.UTC(), nil
		}
	}
	return nil, fmt.Errorf("unsupported source type %T", v)
}

func parseTime(s string, layouts []string) (time.Time, error) {
	for _, l := range layouts {
		if ts, err := time.Parse(l, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}
