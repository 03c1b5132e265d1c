package datafile

import (
	"strconv"

	"modelconv/internal/catalog"
)

// Scalar is a value exactly as it appeared in the datafile. Number is only
// meaningful when IsNumber is set; Text always holds the source spelling.
type Scalar struct {
	Text     string
	Number   float64
	IsNumber bool
}

func newScalar(tok token) Scalar {
	s := Scalar{Text: tok.text}
	if !tok.quoted {
		if f, err := strconv.ParseFloat(tok.text, 64); err == nil {
			s.Number = f
			s.IsNumber = true
		}
	}
	return s
}

// Datum is the parsed body of one parameter: a tree keyed by index values,
// one level per index dimension, with scalars at the leaves. A zero-index
// parameter is a single leaf.
type Datum struct {
	// Default is set when the statement carried a "default" clause.
	Default *Scalar

	leaf     *Scalar
	keys     []string
	children map[string]*Datum
}

// NewDatum returns an empty tree.
func NewDatum() *Datum { return &Datum{} }

// Leaf returns the scalar held by a leaf node.
func (d *Datum) Leaf() (Scalar, bool) {
	if d.leaf == nil {
		return Scalar{}, false
	}
	return *d.leaf, true
}

// Keys returns child keys in first-insertion order.
func (d *Datum) Keys() []string { return d.keys }

// Child returns the subtree under key.
func (d *Datum) Child(key string) *Datum { return d.children[key] }

// Set stores v at path, creating intermediate levels. It reports whether a
// value was already present at that path.
func (d *Datum) Set(path []string, v Scalar) bool {
	n := d
	for _, k := range path {
		if n.children == nil {
			n.children = make(map[string]*Datum)
		}
		c, ok := n.children[k]
		if !ok {
			c = &Datum{}
			n.children[k] = c
			n.keys = append(n.keys, k)
		}
		n = c
	}
	replaced := n.leaf != nil
	n.leaf = &v
	return replaced
}

// Len counts the leaves under d.
func (d *Datum) Len() int {
	if d == nil {
		return 0
	}
	n := 0
	stack := []*Datum{d}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.leaf != nil {
			n++
		}
		for _, k := range cur.keys {
			stack = append(stack, cur.children[k])
		}
	}
	return n
}

// Data is the parser output: one entry per declared entity, in declaration
// order. Declared entities the datafile never assigns are present and empty.
type Data struct {
	order  []string
	kinds  map[string]catalog.Kind
	params map[string]*Datum
	sets   map[string][]Scalar

	// Duplicates counts, per entity, assignments that overwrote an earlier
	// value for the same index tuple (or repeated a set member).
	Duplicates map[string]int
}

func newData() *Data {
	return &Data{
		kinds:      make(map[string]catalog.Kind),
		params:     make(map[string]*Datum),
		sets:       make(map[string][]Scalar),
		Duplicates: make(map[string]int),
	}
}

// Names returns the declared entity names in declaration order.
func (d *Data) Names() []string { return d.order }

// Kind returns the declared kind of name.
func (d *Data) Kind(name string) (catalog.Kind, bool) {
	k, ok := d.kinds[name]
	return k, ok
}

// Param returns the tree for a declared parameter. Undeclared names yield nil.
func (d *Data) Param(name string) *Datum { return d.params[name] }

// Set returns the members of a declared set.
func (d *Data) Set(name string) []Scalar { return d.sets[name] }
