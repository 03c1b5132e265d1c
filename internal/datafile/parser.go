package datafile

import (
	"fmt"

	"modelconv/internal/catalog"
)

// ParseError reports text that does not match the declared grammar.
type ParseError struct {
	Source string // "grammar" or "datafile"
	Line   int
	Col    int
	Entity string
	Msg    string
}

func (e *ParseError) Error() string {
	src := e.Source
	if src == "" {
		src = "datafile"
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s:%d:%d: %s: %s", src, e.Line, e.Col, e.Entity, e.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", src, e.Line, e.Col, e.Msg)
}

type decl struct {
	kind  catalog.Kind
	arity int
}

type parser struct {
	lx     *lexer
	source string
	peeked *token

	decls map[string]decl
	data  *Data
}

// Parse reads the grammar declarations and then the datafile statements.
//
// Every entity declared in grammar is present in the result, empty when the
// datafile never assigns it. Values are kept as written; no type conversion
// is performed.
func Parse(grammar, src string) (*Data, error) {
	p := &parser{
		decls: make(map[string]decl),
		data:  newData(),
	}
	if err := p.run("grammar", grammar); err != nil {
		return nil, err
	}
	if err := p.run("datafile", src); err != nil {
		return nil, err
	}
	return p.data, nil
}

// ParseWithCatalog parses src against the grammar built from c.
func ParseWithCatalog(c *catalog.Catalog, src string) (*Data, error) {
	return Parse(BuildGrammar(c), src)
}

func (p *parser) errorf(t token, entity, format string, args ...any) error {
	return &ParseError{
		Source: p.source,
		Line:   t.line,
		Col:    t.col,
		Entity: entity,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func (p *parser) next() (token, error) {
	if p.peeked != nil {
		t := *p.peeked
		p.peeked = nil
		return t, nil
	}
	t, err := p.lx.next()
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Source = p.source
		}
		return token{}, err
	}
	return t, nil
}

func (p *parser) peek() (token, error) {
	if p.peeked != nil {
		return *p.peeked, nil
	}
	t, err := p.next()
	if err != nil {
		return token{}, err
	}
	p.peeked = &t
	return t, nil
}

func (p *parser) expect(kind tokenKind, entity, what string) (token, error) {
	t, err := p.next()
	if err != nil {
		return t, err
	}
	if t.kind != kind {
		return t, p.errorf(t, entity, "expected %s %s, got %s", kind, what, t.describe())
	}
	return t, nil
}

func (p *parser) run(source, src string) error {
	p.lx = newLexer(src)
	p.source = source
	p.peeked = nil
	declaring := source == "grammar"

	for {
		t, err := p.next()
		if err != nil {
			return err
		}
		if t.kind == tokEOF {
			return nil
		}
		if t.kind != tokWord {
			return p.errorf(t, "", "expected a statement, got %s", t.describe())
		}

		switch t.text {
		case "set":
			err = p.setStatement(declaring)
		case "param":
			err = p.paramStatement(declaring)
		case "data", "model":
			_, err = p.expect(tokSemi, "", "after "+t.text)
		case "end":
			if _, err := p.expect(tokSemi, "", "after end"); err != nil {
				return err
			}
			return nil
		default:
			err = p.errorf(t, "", "unexpected %s, expected set or param statement", t.describe())
		}
		if err != nil {
			return err
		}
	}
}

func (p *parser) declare(t token, name string, d decl) error {
	if prev, ok := p.decls[name]; ok {
		if prev != d {
			return p.errorf(t, name, "declared twice with different shapes")
		}
		return nil
	}
	p.decls[name] = d
	p.data.order = append(p.data.order, name)
	p.data.kinds[name] = d.kind
	if d.kind == catalog.KindParam {
		p.data.params[name] = NewDatum()
	} else {
		p.data.sets[name] = nil
	}
	return nil
}

func (p *parser) lookup(t token, name string, want catalog.Kind) (decl, error) {
	d, ok := p.decls[name]
	if !ok {
		return d, p.errorf(t, name, "%s is not declared", want)
	}
	if d.kind != want {
		return d, p.errorf(t, name, "declared as %s, used as %s", d.kind, want)
	}
	return d, nil
}

func (p *parser) setStatement(declaring bool) error {
	nameTok, err := p.expect(tokWord, "", "set name")
	if err != nil {
		return err
	}
	name := nameTok.text

	t, err := p.next()
	if err != nil {
		return err
	}

	if declaring {
		if t.kind != tokSemi {
			return p.errorf(t, name, "expected ';' after set declaration, got %s", t.describe())
		}
		return p.declare(nameTok, name, decl{kind: catalog.KindSet})
	}

	if _, err := p.lookup(nameTok, name, catalog.KindSet); err != nil {
		return err
	}
	switch t.kind {
	case tokSemi:
		return nil
	case tokAssign:
	default:
		return p.errorf(t, name, "expected ':=' or ';', got %s", t.describe())
	}

	seen := make(map[string]bool, len(p.data.sets[name]))
	for _, m := range p.data.sets[name] {
		seen[m.Text] = true
	}
	for {
		t, err := p.next()
		if err != nil {
			return err
		}
		switch t.kind {
		case tokWord:
			if seen[t.text] {
				p.data.Duplicates[name]++
				continue
			}
			seen[t.text] = true
			p.data.sets[name] = append(p.data.sets[name], newScalar(t))
		case tokComma:
		case tokSemi:
			return nil
		case tokLParen:
			return p.errorf(t, name, "tuple members are not supported")
		case tokEOF:
			return p.errorf(t, name, "unterminated set statement")
		default:
			return p.errorf(t, name, "unexpected %s in set members", t.describe())
		}
	}
}

func (p *parser) paramStatement(declaring bool) error {
	if !declaring {
		t, err := p.peek()
		if err != nil {
			return err
		}
		if t.kind == tokColon || (t.kind == tokWord && t.text == "default") {
			return p.paramTable()
		}
	}

	nameTok, err := p.expect(tokWord, "", "param name")
	if err != nil {
		return err
	}
	name := nameTok.text

	if declaring {
		return p.paramDeclaration(nameTok)
	}

	d, err := p.lookup(nameTok, name, catalog.KindParam)
	if err != nil {
		return err
	}
	datum := p.data.params[name]

	t, err := p.next()
	if err != nil {
		return err
	}
	if t.kind == tokWord && t.text == "default" {
		v, err := p.expect(tokWord, name, "default value")
		if err != nil {
			return err
		}
		sc := newScalar(v)
		datum.Default = &sc
		if t, err = p.next(); err != nil {
			return err
		}
	}

	switch t.kind {
	case tokSemi:
		return nil
	case tokAssign:
	case tokColon, tokLParen, tokLBrack:
		p.peeked = &t
	default:
		return p.errorf(t, name, "expected ':=', got %s", t.describe())
	}

	if d.arity == 0 {
		return p.scalarBody(name, datum)
	}
	return p.body(name, d.arity, datum)
}

func (p *parser) paramDeclaration(nameTok token) error {
	name := nameTok.text
	t, err := p.next()
	if err != nil {
		return err
	}
	arity := 0
	if t.kind == tokLBrace {
		for {
			t, err = p.next()
			if err != nil {
				return err
			}
			if t.kind == tokRBrace {
				break
			}
			if t.kind == tokComma {
				continue
			}
			if t.kind != tokWord {
				return p.errorf(t, name, "expected index set name, got %s", t.describe())
			}
			arity++
		}
		if t, err = p.next(); err != nil {
			return err
		}
	}
	if t.kind != tokSemi {
		return p.errorf(t, name, "expected ';' after param declaration, got %s", t.describe())
	}
	return p.declare(nameTok, name, decl{kind: catalog.KindParam, arity: arity})
}

func (p *parser) scalarBody(name string, datum *Datum) error {
	t, err := p.next()
	if err != nil {
		return err
	}
	switch t.kind {
	case tokWord:
		if datum.Set(nil, newScalar(t)) {
			p.data.Duplicates[name]++
		}
	case tokDot:
	case tokSemi:
		return nil
	default:
		return p.errorf(t, name, "expected value, got %s", t.describe())
	}
	_, err = p.expect(tokSemi, name, "after value")
	return err
}

// body reads records until ';'. A record is either a plain tuple (one word
// per free index position, then a value), a slice "[a,*,b,*]" that fixes
// some positions for the records that follow, or a tabbing matrix
// ": c1 c2 := r v v" (optionally prefixed by "(tr)") over two free positions.
func (p *parser) body(name string, arity int, datum *Datum) error {
	tmpl := make([]string, arity)
	free := make([]int, arity)
	for i := range free {
		free[i] = i
	}

	for {
		t, err := p.peek()
		if err != nil {
			return err
		}
		switch t.kind {
		case tokSemi:
			_, err = p.next()
			return err
		case tokEOF:
			return p.errorf(t, name, "unterminated param statement")
		case tokLBrack:
			_, _ = p.next()
			tmpl, free, err = p.slice(name, arity)
		case tokColon:
			_, _ = p.next()
			err = p.matrix(name, tmpl, free, false, datum)
		case tokLParen:
			_, _ = p.next()
			if err = p.transposeMarker(name); err == nil {
				err = p.matrix(name, tmpl, free, true, datum)
			}
		case tokWord, tokDot:
			err = p.record(name, tmpl, free, datum)
		default:
			return p.errorf(t, name, "unexpected %s in param data", t.describe())
		}
		if err != nil {
			return err
		}
	}
}

func (p *parser) slice(name string, arity int) ([]string, []int, error) {
	var tmpl []string
	var free []int
	for {
		t, err := p.next()
		if err != nil {
			return nil, nil, err
		}
		switch t.kind {
		case tokWord:
			tmpl = append(tmpl, t.text)
		case tokStar:
			free = append(free, len(tmpl))
			tmpl = append(tmpl, "")
		case tokComma:
			continue
		case tokRBrack:
			if len(tmpl) != arity {
				return nil, nil, p.errorf(t, name, "slice has %d positions, param has %d indices", len(tmpl), arity)
			}
			return tmpl, free, nil
		default:
			return nil, nil, p.errorf(t, name, "unexpected %s in slice", t.describe())
		}
	}
}

func (p *parser) transposeMarker(name string) error {
	t, err := p.expect(tokWord, name, "transpose marker")
	if err != nil {
		return err
	}
	if t.text != "tr" {
		return p.errorf(t, name, "expected (tr), got %s", t.describe())
	}
	if _, err := p.expect(tokRParen, name, "after tr"); err != nil {
		return err
	}
	if t, err := p.peek(); err == nil && t.kind == tokColon {
		_, _ = p.next()
	} else if err != nil {
		return err
	}
	return nil
}

func (p *parser) value(name string) (*Scalar, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case tokWord:
		s := newScalar(t)
		return &s, nil
	case tokDot:
		return nil, nil
	case tokSemi, tokEOF:
		return nil, p.errorf(t, name, "record is missing its value")
	default:
		return nil, p.errorf(t, name, "expected value, got %s", t.describe())
	}
}

func (p *parser) store(name string, path []string, v *Scalar, datum *Datum) {
	if v == nil {
		return
	}
	if datum.Set(path, *v) {
		p.data.Duplicates[name]++
	}
}

func (p *parser) record(name string, tmpl []string, free []int, datum *Datum) error {
	path := append([]string(nil), tmpl...)
	for _, pos := range free {
		t, err := p.next()
		if err != nil {
			return err
		}
		if t.kind != tokWord {
			return p.errorf(t, name, "expected index value, got %s", t.describe())
		}
		path[pos] = t.text
	}
	v, err := p.value(name)
	if err != nil {
		return err
	}
	p.store(name, path, v, datum)
	return nil
}

func (p *parser) matrix(name string, tmpl []string, free []int, transpose bool, datum *Datum) error {
	if len(free) != 2 {
		t, _ := p.peek()
		return p.errorf(t, name, "tabbing data needs exactly two free index positions, have %d", len(free))
	}

	var cols []string
	for {
		t, err := p.next()
		if err != nil {
			return err
		}
		if t.kind == tokAssign {
			break
		}
		if t.kind != tokWord {
			return p.errorf(t, name, "expected column label or ':=', got %s", t.describe())
		}
		cols = append(cols, t.text)
	}
	if len(cols) == 0 {
		t, _ := p.peek()
		return p.errorf(t, name, "tabbing data has no column labels")
	}

	rowPos, colPos := free[0], free[1]
	if transpose {
		rowPos, colPos = free[1], free[0]
	}

	for {
		t, err := p.peek()
		if err != nil {
			return err
		}
		if t.kind != tokWord {
			return nil
		}
		_, _ = p.next()
		for _, col := range cols {
			v, err := p.value(name)
			if err != nil {
				return err
			}
			path := append([]string(nil), tmpl...)
			path[rowPos] = t.text
			path[colPos] = col
			p.store(name, path, v, datum)
		}
	}
}

// paramTable reads the tabbing form that assigns several parameters at once:
// "param [default v] : P1 P2 := i1 .. in v1 v2 ... ;". Every listed parameter
// must have the same number of indices; each row holds one index tuple and
// then one value per parameter.
func (p *parser) paramTable() error {
	t, err := p.next()
	if err != nil {
		return err
	}
	var def *Scalar
	if t.kind == tokWord {
		v, err := p.expect(tokWord, "", "default value")
		if err != nil {
			return err
		}
		sc := newScalar(v)
		def = &sc
		if t, err = p.next(); err != nil {
			return err
		}
	}
	if t.kind != tokColon {
		return p.errorf(t, "", "expected ':' before parameter names, got %s", t.describe())
	}

	var names []string
	arity := -1
	for {
		t, err := p.next()
		if err != nil {
			return err
		}
		if t.kind == tokAssign {
			break
		}
		switch t.kind {
		case tokComma:
			continue
		case tokColon:
			return p.errorf(t, "", "defining a set inside a param table is not supported")
		case tokWord:
		default:
			return p.errorf(t, "", "expected param name or ':=', got %s", t.describe())
		}
		d, err := p.lookup(t, t.text, catalog.KindParam)
		if err != nil {
			return err
		}
		if arity >= 0 && d.arity != arity {
			return p.errorf(t, t.text, "has %d indices, earlier params in the table have %d", d.arity, arity)
		}
		arity = d.arity
		names = append(names, t.text)
	}
	if len(names) == 0 {
		return p.errorf(t, "", "param table lists no parameters")
	}
	if arity == 0 {
		return p.errorf(t, names[0], "param table needs indexed parameters")
	}
	if def != nil {
		for _, n := range names {
			sc := *def
			p.data.params[n].Default = &sc
		}
	}

	for {
		t, err := p.peek()
		if err != nil {
			return err
		}
		switch t.kind {
		case tokSemi:
			_, err = p.next()
			return err
		case tokComma:
			_, _ = p.next()
			continue
		case tokWord:
		case tokEOF:
			return p.errorf(t, names[0], "unterminated param table")
		default:
			return p.errorf(t, names[0], "unexpected %s in param table", t.describe())
		}

		path := make([]string, arity)
		for i := range path {
			t, err := p.next()
			if err != nil {
				return err
			}
			if t.kind != tokWord {
				return p.errorf(t, names[0], "expected index value, got %s", t.describe())
			}
			path[i] = t.text
		}
		for _, n := range names {
			v, err := p.value(n)
			if err != nil {
				return err
			}
			p.store(n, path, v, p.data.params[n])
		}
	}
}
