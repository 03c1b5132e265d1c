package datafile

import (
	"strings"

	"modelconv/internal/catalog"
)

// BuildGrammar renders the declarations Parse needs to interpret a datafile:
// "set NAME;" for sets and "param NAME {I1,I2};" for parameters, one per
// line in catalog order.
func BuildGrammar(c *catalog.Catalog) string {
	var b strings.Builder
	for _, e := range c.Entities() {
		switch e.Kind {
		case catalog.KindSet:
			b.WriteString("set ")
			b.WriteString(e.Name)
			b.WriteString(";\n")
		case catalog.KindParam:
			b.WriteString("param ")
			b.WriteString(e.Name)
			if len(e.Indices) > 0 {
				b.WriteString(" {")
				b.WriteString(strings.Join(e.Indices, ","))
				b.WriteString("}")
			}
			b.WriteString(";\n")
		}
	}
	return b.String()
}
