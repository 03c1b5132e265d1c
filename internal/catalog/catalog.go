// Package catalog holds the entity definitions that drive every conversion:
// which names are sets, which are parameters, how parameters are indexed and
// what scalar types and defaults they carry.
//
// A Catalog is resolved and validated once, before any data is read, and is
// immutable afterwards.
package catalog

import (
	"fmt"
)

// Kind distinguishes sets from parameters.
type Kind string

const (
	KindSet   Kind = "set"
	KindParam Kind = "param"
)

// Entity is one resolved catalog entry.
//
// For sets, Indices is empty and Default is nil. For parameters, Indices
// names the sets forming the key (in order) and Default is already cast to
// DType.
type Entity struct {
	Name    string
	Kind    Kind
	DType   DType
	Indices []string
	Default any
}

// IsParam reports whether e is a parameter.
func (e *Entity) IsParam() bool { return e.Kind == KindParam }

// ConfigError reports a catalog that is inconsistent with itself.
type ConfigError struct {
	Entity string
	Msg    string
}

func (e *ConfigError) Error() string {
	if e.Entity == "" {
		return "catalog: " + e.Msg
	}
	return fmt.Sprintf("catalog: entity %s: %s", e.Entity, e.Msg)
}

func configErrorf(entity, format string, args ...any) *ConfigError {
	return &ConfigError{Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// Catalog is an ordered, validated collection of entities.
type Catalog struct {
	entities []*Entity
	byName   map[string]*Entity
}

// New validates entities and returns a Catalog preserving their order.
//
// Errors are always *ConfigError: duplicate names, unknown kinds or dtypes,
// parameters indexed by names that are not sets, sets carrying indices, and
// parameter defaults that do not cast to the parameter's dtype.
func New(entities ...Entity) (*Catalog, error) {
	c := &Catalog{
		entities: make([]*Entity, 0, len(entities)),
		byName:   make(map[string]*Entity, len(entities)),
	}
	for i := range entities {
		e := entities[i]
		if e.Name == "" {
			return nil, configErrorf("", "entity %d has no name", i)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, configErrorf(e.Name, "defined more than once")
		}
		if e.DType == "" {
			return nil, configErrorf(e.Name, "dtype is required")
		}
		dt, ok := ParseDType(string(e.DType))
		if !ok {
			return nil, configErrorf(e.Name, "unknown dtype %q", string(e.DType))
		}
		e.DType = dt
		e.Indices = append([]string(nil), e.Indices...)
		c.entities = append(c.entities, &e)
		c.byName[e.Name] = &e
	}

	for _, e := range c.entities {
		switch e.Kind {
		case KindSet:
			if len(e.Indices) > 0 {
				return nil, configErrorf(e.Name, "a set cannot declare indices")
			}
			if e.Default != nil {
				return nil, configErrorf(e.Name, "a set cannot declare a default")
			}
		case KindParam:
			seen := make(map[string]bool, len(e.Indices))
			for _, idx := range e.Indices {
				ref, ok := c.byName[idx]
				if !ok {
					return nil, configErrorf(e.Name, "index %s is not defined", idx)
				}
				if ref.Kind != KindSet {
					return nil, configErrorf(e.Name, "index %s is a %s, not a set", idx, ref.Kind)
				}
				if seen[idx] {
					return nil, configErrorf(e.Name, "index %s appears more than once", idx)
				}
				seen[idx] = true
			}
			if e.Default == nil {
				return nil, configErrorf(e.Name, "a param must declare a default")
			}
			d, err := e.DType.Cast(e.Default)
			if err != nil {
				return nil, configErrorf(e.Name, "default: %v", err)
			}
			e.Default = d
		default:
			return nil, configErrorf(e.Name, "unknown type %q (want set or param)", string(e.Kind))
		}
	}
	return c, nil
}

// Entities returns every entity in catalog order.
func (c *Catalog) Entities() []*Entity {
	return append([]*Entity(nil), c.entities...)
}

// Lookup returns the entity named name.
func (c *Catalog) Lookup(name string) (*Entity, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// Sets returns the set entities in catalog order.
func (c *Catalog) Sets() []*Entity { return c.filter(KindSet) }

// Params returns the parameter entities in catalog order.
func (c *Catalog) Params() []*Entity { return c.filter(KindParam) }

func (c *Catalog) filter(k Kind) []*Entity {
	out := make([]*Entity, 0, len(c.entities))
	for _, e := range c.entities {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// IndexTypes returns the dtype of each of e's index sets, in index order.
func (c *Catalog) IndexTypes(e *Entity) []DType {
	out := make([]DType, len(e.Indices))
	for i, idx := range e.Indices {
		out[i] = c.byName[idx].DType
	}
	return out
}

// ColumnTypes returns the dtype of every column of e's table: the index
// types followed by the value type.
func (c *Catalog) ColumnTypes(e *Entity) []DType {
	return append(c.IndexTypes(e), e.DType)
}

// Len reports the number of entities.
func (c *Catalog) Len() int { return len(c.entities) }
