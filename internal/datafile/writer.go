package datafile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"modelconv/internal/catalog"
)

// Block is one entity's rows handed to Write. For parameters each row is the
// index values followed by the value; for sets each row holds one member.
type Block struct {
	Entity *catalog.Entity
	Rows   [][]any
}

// WriteOptions tunes Write.
type WriteOptions struct {
	// OmitDefaults drops parameter rows whose value equals the declared
	// default. The output is smaller but no longer parses back to the same
	// data.
	OmitDefaults bool
}

// Write renders blocks as a datafile, terminated by "end;".
//
// Rows with a missing (nil) value are skipped. Symbols that would not lex as
// a single word are single-quoted.
func Write(w io.Writer, blocks []Block, opts WriteOptions) error {
	bw := bufio.NewWriter(w)
	for _, blk := range blocks {
		if blk.Entity == nil {
			return fmt.Errorf("datafile: block without entity")
		}
		var err error
		if blk.Entity.IsParam() {
			err = writeParam(bw, blk, opts)
		} else {
			err = writeSet(bw, blk)
		}
		if err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("end;\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func writeSet(w *bufio.Writer, blk Block) error {
	fmt.Fprintf(w, "set %s :=\n", blk.Entity.Name)
	for i, row := range blk.Rows {
		if len(row) != 1 {
			return fmt.Errorf("datafile: set %s row %d has %d columns, want 1", blk.Entity.Name, i, len(row))
		}
		if row[0] == nil {
			continue
		}
		w.WriteString(quote(catalog.Format(row[0])))
		w.WriteByte('\n')
	}
	_, err := w.WriteString(";\n")
	return err
}

func writeParam(w *bufio.Writer, blk Block, opts WriteOptions) error {
	e := blk.Entity
	def := catalog.Format(e.Default)
	fmt.Fprintf(w, "param %s default %s :=\n", e.Name, quote(def))

	width := len(e.Indices) + 1
	for i, row := range blk.Rows {
		if len(row) != width {
			return fmt.Errorf("datafile: param %s row %d has %d columns, want %d", e.Name, i, len(row), width)
		}
		v := row[width-1]
		if v == nil {
			continue
		}
		val := catalog.Format(v)
		if opts.OmitDefaults && val == def {
			continue
		}
		for _, idx := range row[:width-1] {
			w.WriteString(quote(catalog.Format(idx)))
			w.WriteByte(' ')
		}
		w.WriteString(quote(val))
		w.WriteByte('\n')
	}
	_, err := w.WriteString(";\n")
	return err
}

func quote(s string) string {
	if s != "" && s != "*" && s != "." && !strings.ContainsAny(s, " \t\r\n;:,[](){}#'\"") && !strings.HasPrefix(s, "/*") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
