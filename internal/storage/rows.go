package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"modelconv/internal/table"
)

// NormalizeValue converts a scanned cell into the value types the rest of
// the pipeline uses: string, int64, float64 or nil. Drivers differ in what
// they hand back for the same column type.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil, string, int64, float64:
		return t
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint8:
		return int64(t)
	case float32:
		return float64(t)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// DedupeRows keeps one row per key tuple. When a key repeats, the last row
// wins but stays at the position of the first occurrence.
func DedupeRows(rows [][]any, columns []string, keyColumns []string) ([][]any, error) {
	if len(keyColumns) == 0 {
		return rows, nil
	}
	pos := make([]int, len(keyColumns))
	for i, kc := range keyColumns {
		p := indexOf(columns, kc)
		if p < 0 {
			return nil, fmt.Errorf("storage: key column %q not present in columns", kc)
		}
		pos[i] = p
	}

	seen := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	key := make([]any, len(pos))
	for _, row := range rows {
		for i, p := range pos {
			key[i] = row[p]
		}
		k := table.TupleKey(key)
		if at, ok := seen[k]; ok {
			out[at] = row
			continue
		}
		seen[k] = len(out)
		out = append(out, row)
	}
	return out, nil
}

// ChunkRows splits rows so that no statement binds more than maxParams
// parameters or carries more than maxRows rows (0 for no row cap).
func ChunkRows(rows [][]any, width, maxParams, maxRows int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := maxParams / max(1, width)
	if maxRows > 0 && per > maxRows {
		per = maxRows
	}
	if per < 1 {
		per = 1
	}

	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
