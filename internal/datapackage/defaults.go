package datapackage

import (
	"encoding/csv"
	"fmt"
	"io"

	"modelconv/internal/catalog"
)

// DefaultsName is the resource and file stem of the default-value table.
const DefaultsName = "default_values"

// DefaultsColumns is the default-value table header.
var DefaultsColumns = []string{"name", "default_value"}

// WriteDefaults writes one row per parameter of c, in catalog order, with
// the parameter's declared default. Sets are not listed.
func WriteDefaults(w io.Writer, c *catalog.Catalog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DefaultsColumns); err != nil {
		return fmt.Errorf("write defaults: %w", err)
	}
	for _, e := range c.Params() {
		if err := cw.Write([]string{e.Name, catalog.Format(e.Default)}); err != nil {
			return fmt.Errorf("write defaults: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write defaults: %w", err)
	}
	return nil
}
