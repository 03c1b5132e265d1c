package table

import (
	"strings"

	"modelconv/internal/catalog"
)

// NormalizeKey converts a cell to a canonical string form suitable for
// membership checks across tables (e.g. "R1" or "2014").
//
// Tables may hold different Go types for equal keys (int64 from coercion,
// string from an untyped file); this helper keeps lookups consistent.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case float64:
		if f, err := catalog.DTypeInt.Cast(t); err == nil {
			return catalog.Format(f)
		}
		return catalog.Format(t)
	default:
		return strings.TrimSpace(catalog.Format(v))
	}
}

// TupleKey joins the normalized keys of cells into one comparable string.
func TupleKey(cells []any) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(NormalizeKey(c))
	}
	return b.String()
}
