package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DType is the scalar type declared for a set's members or a parameter's values.
type DType string

const (
	DTypeString DType = "str"
	DTypeInt    DType = "int"
	DTypeFloat  DType = "float"
)

// ParseDType maps the spellings accepted in catalog documents onto a DType.
func ParseDType(s string) (DType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "str", "string", "text":
		return DTypeString, true
	case "int", "integer":
		return DTypeInt, true
	case "float", "number", "double":
		return DTypeFloat, true
	default:
		return "", false
	}
}

// FieldType returns the table-schema field type for d.
func (d DType) FieldType() string {
	switch d {
	case DTypeInt:
		return "integer"
	case DTypeFloat:
		return "number"
	default:
		return "string"
	}
}

// Cast converts v to the Go representation of d: string, int64 or float64.
//
// A nil input is a missing value and is returned as nil. Values that already
// carry the target representation are returned unchanged, so casting twice is
// the same as casting once.
func (d DType) Cast(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch d {
	case DTypeString:
		return castString(v)
	case DTypeInt:
		return castInt(v)
	case DTypeFloat:
		return castFloat(v)
	default:
		return nil, fmt.Errorf("unknown dtype %q", string(d))
	}
}

func castString(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return Format(v), nil
	}
}

func castInt(v any) (any, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		return floatToInt(t)
	case []byte:
		return castInt(string(t))
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to int", t)
		}
		return floatToInt(f)
	default:
		return nil, fmt.Errorf("cannot convert %T to int", v)
	}
}

func floatToInt(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("cannot convert %s to int: not integral", strconv.FormatFloat(f, 'g', -1, 64))
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("cannot convert %s to int: out of range", strconv.FormatFloat(f, 'g', -1, 64))
	}
	return int64(f), nil
}

func castFloat(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case []byte:
		return castFloat(string(t))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to float", t)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to float", v)
	}
}

// Format renders a scalar the way it is written to datafiles and CSV tables.
// nil renders as the empty string, the missing-value marker.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(v)
	}
}
