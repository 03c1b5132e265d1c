package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed osemosys.yaml
var defaultCatalog []byte

// entry mirrors one mapping value of the catalog document. Unknown keys
// (short_name, calculated, ...) are ignored.
type entry struct {
	Type    string    `yaml:"type"`
	DType   string    `yaml:"dtype"`
	Indices []string  `yaml:"indices"`
	Default yaml.Node `yaml:"default"`
}

// Load reads a YAML catalog document. The document is a mapping from entity
// name to entry; the mapping order becomes the catalog order.
func Load(r io.Reader) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, configErrorf("", "empty catalog document")
		}
		return nil, &ConfigError{Msg: fmt.Sprintf("decode yaml: %v", err)}
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, configErrorf("", "top level must be a mapping of entity name to definition (line %d)", root.Line)
	}

	entities := make([]Entity, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		name := key.Value

		var raw entry
		if err := val.Decode(&raw); err != nil {
			return nil, configErrorf(name, "line %d: %v", val.Line, err)
		}

		e := Entity{
			Name:    name,
			Kind:    Kind(raw.Type),
			DType:   DType(raw.DType),
			Indices: raw.Indices,
		}
		if raw.Default.Kind != 0 && raw.Default.Tag != "!!null" {
			if raw.Default.Kind != yaml.ScalarNode {
				return nil, configErrorf(name, "line %d: default must be a scalar", raw.Default.Line)
			}
			e.Default = raw.Default.Value
		}
		entities = append(entities, e)
	}
	return New(entities...)
}

// LoadFile reads the catalog at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the bundled OSeMOSYS catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadOrDefault loads path, or the bundled catalog when path is empty.
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}
