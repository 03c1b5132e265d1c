package schema

import (
	"strconv"
	"strings"
	"time"

	"modelconv/internal/catalog"
	"modelconv/internal/table"
)

// Infer builds the base package: one resource per table, fields in column
// order. Coerced tables take their field types from their declared dtypes;
// untyped tables are sniffed from their cell text.
//
// Infer adds no keys; see AddRelations.
func Infer(ds *table.Dataset, meta Metadata) *Package {
	p := &Package{
		Profile:      "tabular-data-package",
		Name:         meta.Name,
		Title:        meta.Title,
		Description:  meta.Description,
		Licenses:     meta.Licenses,
		Contributors: meta.Contributors,
	}
	for _, t := range ds.Tables() {
		p.Resources = append(p.Resources, newResource(t.Name, inferFields(t)))
	}
	return p
}

// ResourcePath is the package-relative location of a table file.
func ResourcePath(name string) string {
	return "data/" + name + ".csv"
}

func newResource(name string, fields []Field) *Resource {
	return &Resource{
		Name:      name,
		Path:      ResourcePath(name),
		Profile:   "tabular-data-resource",
		Format:    "csv",
		Mediatype: "text/csv",
		Encoding:  "utf-8",
		Schema:    &Schema{Fields: fields, MissingValues: []string{MissingValue}},
	}
}

func inferFields(t *table.Table) []Field {
	fields := make([]Field, len(t.Columns))
	if t.Typed() {
		for i, c := range t.Columns {
			fields[i] = Field{Name: c, Type: t.Types[i].FieldType(), Format: "default"}
		}
		return fields
	}

	cells := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells[r] = make([]string, len(row))
		for c, v := range row {
			cells[r][c] = catalog.Format(v)
		}
	}
	types := inferTypes(t.Columns, cells)
	for i, c := range t.Columns {
		fields[i] = Field{Name: c, Type: types[i], Format: "default"}
	}
	return fields
}

// inferTypes infers one table-schema type per column from its non-empty
// cells: "integer", "number", "boolean", "date", "datetime" or "string".
// Columns with no non-empty cell are "string".
func inferTypes(headers []string, rows [][]string) []string {
	out := make([]string, len(headers))
	for col := range headers {
		var seen bool
		allInt := true
		allFloat := true
		allBool := true
		allDate := true
		allTS := true

		for _, r := range rows {
			if col >= len(r) {
				continue
			}
			v := strings.TrimSpace(r[col])
			if v == "" {
				continue
			}
			seen = true

			if allInt {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					allInt = false
				}
			}
			if allFloat {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					allFloat = false
				}
			}
			if allBool {
				if _, ok := parseBoolLoose(v); !ok {
					allBool = false
				}
			}
			if allDate {
				if _, ok := parseDateLoose(v); !ok {
					allDate = false
				}
			}
			if allTS {
				if _, ok := parseTimestampLoose(v); !ok {
					allTS = false
				}
			}
		}

		// Prefer more specific types.
		switch {
		case !seen:
			out[col] = "string"
		case allInt:
			out[col] = "integer"
		case allBool:
			out[col] = "boolean"
		case allDate:
			out[col] = "date"
		case allTS:
			out[col] = "datetime"
		case allFloat:
			out[col] = "number"
		default:
			out[col] = "string"
		}
	}
	return out
}

// DTypeForField maps a field type back onto the catalog dtype used to read
// the column.
func DTypeForField(fieldType string) catalog.DType {
	switch fieldType {
	case "integer":
		return catalog.DTypeInt
	case "number":
		return catalog.DTypeFloat
	default:
		return catalog.DTypeString
	}
}

func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "yes", "y":
		return true, true
	case "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
}

var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

func parseDateLoose(s string) (time.Time, bool) {
	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTimestampLoose(s string) (time.Time, bool) {
	for _, lay := range tsLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
