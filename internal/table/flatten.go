package table

import (
	"modelconv/internal/datafile"
)

// Flatten emits one row per leaf of d: the index path taken to reach the
// leaf followed by the leaf's text. Cells are strings; Coerce types them.
//
// The walk uses an explicit worklist, so depth is bounded only by memory.
// Rows come out in first-insertion order of the datum's keys.
func Flatten(d *datafile.Datum) [][]any {
	if d == nil {
		return nil
	}

	type item struct {
		path []string
		node *datafile.Datum
	}

	rows := make([][]any, 0, d.Len())
	stack := []item{{node: d}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if v, ok := it.node.Leaf(); ok {
			row := make([]any, 0, len(it.path)+1)
			for _, k := range it.path {
				row = append(row, k)
			}
			rows = append(rows, append(row, v.Text))
		}

		keys := it.node.Keys()
		for i := len(keys) - 1; i >= 0; i-- {
			path := make([]string, len(it.path), len(it.path)+1)
			copy(path, it.path)
			stack = append(stack, item{
				path: append(path, keys[i]),
				node: it.node.Child(keys[i]),
			})
		}
	}
	return rows
}

// FlattenSet turns set members into single-column rows.
func FlattenSet(members []datafile.Scalar) [][]any {
	rows := make([][]any, len(members))
	for i, m := range members {
		rows[i] = []any{m.Text}
	}
	return rows
}
