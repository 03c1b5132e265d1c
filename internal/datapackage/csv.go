package datapackage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"modelconv/internal/catalog"
	"modelconv/internal/table"
)

// readCSV reads one table file. The header names the columns; when want is
// non-empty the result is reordered to want and every wanted column must be
// present. Extra columns are dropped. Cells are trimmed and empty cells
// become nil.
func readCSV(r io.Reader, name string, want []string) ([]string, [][]any, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	line := 1
	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		if len(want) == 0 {
			return nil, nil, nil
		}
		return append([]string(nil), want...), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read header: %w", name, err)
	}

	srcToIdx := make(map[string]int, len(hdr))
	header := make([]string, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		header[i] = h
		srcToIdx[h] = i
	}

	columns := header
	if len(want) > 0 {
		columns = want
	}
	colIx := make([]int, len(columns))
	for t, target := range columns {
		si, ok := srcToIdx[target]
		if !ok {
			return nil, nil, fmt.Errorf("%s: column %s not found in header %v", name, target, header)
		}
		colIx[t] = si
	}

	var rows [][]any
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: line %d: %w", name, line, err)
		}

		row := make([]any, len(columns))
		for t := range columns {
			si := colIx[t]
			if si >= len(rec) {
				continue
			}
			if v := strings.TrimSpace(rec[si]); v != "" {
				row[t] = v
			}
		}
		rows = append(rows, row)
	}
	return append([]string(nil), columns...), rows, nil
}

// encodeCSV renders t with a header line. Missing cells are written as the
// empty string.
func encodeCSV(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(t.Columns); err != nil {
		return nil, err
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range rec {
			rec[i] = ""
			if i < len(row) {
				rec[i] = catalog.Format(row[i])
			}
		}
		if err := cw.Write(rec); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}
	return buf.Bytes(), nil
}
