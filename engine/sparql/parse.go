package sparql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/knakk/rdf"

	"github.com/skylane-labs/hubgraph/engine/kg"
)

// Query is a parsed SELECT query.
type Query struct {
	Distinct bool
	Star     bool
	Project  []Projection
	Where    *Group
	GroupBy  []string
	OrderBy  []OrderKey
	Limit    int // -1 when absent
	Offset   int
}

// Projection is a projected variable, optionally computed by an aggregate.
type Projection struct {
	Var string
	Agg *Aggregate
}

type Aggregate struct {
	Func     string // COUNT SUM AVG MIN MAX SAMPLE
	Distinct bool
	Star     bool
	Var      string
}

type OrderKey struct {
	Expr Expr
	Desc bool
}

// Group is a { ... } block. Filters apply to the whole block.
type Group struct {
	Elems   []Element
	Filters []Expr
}

// Element is one member of a group: a triple pattern, an OPTIONAL, a
// nested group, a UNION or a sub-select.
type Element interface{ element() }

type Node struct {
	Var  string
	Term rdf.Term
}

type TriplePattern struct{ S, P, O Node }

type Optional struct{ Group *Group }

type Union struct{ Left, Right *Group }

type SubQuery struct{ Query *Query }

func (TriplePattern) element() {}
func (Optional) element()      {}
func (Union) element()         {}
func (SubQuery) element()      {}
func (*Group) element()        {}

// Vars lists the variables a group mentions, in first-seen order.
func (g *Group) Vars() []string {
	var out []string
	seen := map[string]bool{}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	var walk func(*Group)
	walk = func(g *Group) {
		for _, e := range g.Elems {
			switch e := e.(type) {
			case TriplePattern:
				add(e.S.Var)
				add(e.P.Var)
				add(e.O.Var)
			case Optional:
				walk(e.Group)
			case Union:
				walk(e.Left)
				walk(e.Right)
			case *Group:
				walk(e)
			case SubQuery:
				for _, p := range e.Query.Project {
					add(p.Var)
				}
			}
		}
	}
	walk(g)
	return out
}

type parser struct {
	toks     []token
	pos      int
	prefixes map[string]string
}

// Parse parses a SELECT query in the supported subset.
func Parse(src string) (*Query, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, prefixes: map[string]string{}}
	for _, pr := range kg.Prefixes {
		p.prefixes[pr.Name] = pr.IRI
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.peek()
	return fmt.Errorf("sparql: at %d near %s: %s", t.pos, t, fmt.Sprintf(format, args...))
}

func (p *parser) isWord(w string) bool {
	t := p.peek()
	return t.kind == tWord && strings.EqualFold(t.text, w)
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tPunct && t.text == s
}

func (p *parser) acceptWord(w string) bool {
	if p.isWord(w) {
		p.next()
		return true
	}
	return false
}

func (p *parser) acceptPunct(s string) bool {
	if p.isPunct(s) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expectWord(w string) error {
	if !p.acceptWord(w) {
		return p.errorf("expected %s", w)
	}
	return nil
}

func (p *parser) expectPunct(s string) error {
	if !p.acceptPunct(s) {
		return p.errorf("expected %q", s)
	}
	return nil
}

func (p *parser) expectVar() (string, error) {
	t := p.peek()
	if t.kind != tVar {
		return "", p.errorf("expected variable")
	}
	p.next()
	return t.text, nil
}

func (p *parser) parseQuery() (*Query, error) {
	for p.isWord("PREFIX") {
		p.next()
		t := p.next()
		if t.kind != tPName || !strings.HasSuffix(t.text, ":") {
			return nil, p.errorf("expected prefix name")
		}
		iri := p.next()
		if iri.kind != tIRI {
			return nil, p.errorf("expected IRI for prefix %s", t.text)
		}
		p.prefixes[strings.TrimSuffix(t.text, ":")] = iri.text
	}
	q, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tEOF {
		return nil, p.errorf("unexpected trailing input")
	}
	return q, nil
}

func (p *parser) parseSelect() (*Query, error) {
	if err := p.expectWord("SELECT"); err != nil {
		return nil, err
	}
	q := &Query{Limit: -1}
	if p.acceptWord("DISTINCT") || p.acceptWord("REDUCED") {
		q.Distinct = true
	}
	if p.acceptPunct("*") {
		q.Star = true
	}
	for !q.Star && !p.isWord("WHERE") && !p.isPunct("{") {
		switch t := p.peek(); {
		case t.kind == tVar:
			p.next()
			q.Project = append(q.Project, Projection{Var: t.text})
		case p.isPunct("("):
			proj, err := p.parseAggregate()
			if err != nil {
				return nil, err
			}
			q.Project = append(q.Project, proj)
		default:
			return nil, p.errorf("expected projection")
		}
	}
	if !q.Star && len(q.Project) == 0 {
		return nil, p.errorf("empty projection")
	}
	p.acceptWord("WHERE")
	where, err := p.parseGroup()
	if err != nil {
		return nil, err
	}
	q.Where = where

	if p.acceptWord("GROUP") {
		if err := p.expectWord("BY"); err != nil {
			return nil, err
		}
		for p.peek().kind == tVar {
			q.GroupBy = append(q.GroupBy, p.next().text)
		}
		if len(q.GroupBy) == 0 {
			return nil, p.errorf("expected GROUP BY variable")
		}
	}
	if p.acceptWord("ORDER") {
		if err := p.expectWord("BY"); err != nil {
			return nil, err
		}
		for {
			var key OrderKey
			switch {
			case p.isWord("ASC"), p.isWord("DESC"):
				key.Desc = p.isWord("DESC")
				p.next()
				if err := p.expectPunct("("); err != nil {
					return nil, err
				}
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.expectPunct(")"); err != nil {
					return nil, err
				}
				key.Expr = e
			case p.peek().kind == tVar:
				key.Expr = varExpr(p.next().text)
			case p.isPunct("("):
				e, err := p.parsePrimary()
				if err != nil {
					return nil, err
				}
				key.Expr = e
			default:
				if len(q.OrderBy) == 0 {
					return nil, p.errorf("expected ORDER BY key")
				}
			}
			if key.Expr == nil {
				break
			}
			q.OrderBy = append(q.OrderBy, key)
		}
	}
	for p.isWord("LIMIT") || p.isWord("OFFSET") {
		limit := p.isWord("LIMIT")
		p.next()
		t := p.next()
		n, err := strconv.Atoi(t.text)
		if t.kind != tNumber || err != nil || n < 0 {
			return nil, p.errorf("expected non-negative integer")
		}
		if limit {
			q.Limit = n
		} else {
			q.Offset = n
		}
	}
	return q, nil
}

var aggregates = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true, "SAMPLE": true}

// parseAggregate reads (FUNC([DISTINCT] ?v|*) AS ?alias).
func (p *parser) parseAggregate() (Projection, error) {
	if err := p.expectPunct("("); err != nil {
		return Projection{}, err
	}
	t := p.next()
	fn := strings.ToUpper(t.text)
	if t.kind != tWord || !aggregates[fn] {
		return Projection{}, p.errorf("expected aggregate function")
	}
	agg := &Aggregate{Func: fn}
	if err := p.expectPunct("("); err != nil {
		return Projection{}, err
	}
	agg.Distinct = p.acceptWord("DISTINCT")
	if p.acceptPunct("*") {
		if fn != "COUNT" {
			return Projection{}, p.errorf("only COUNT accepts *")
		}
		agg.Star = true
	} else {
		v, err := p.expectVar()
		if err != nil {
			return Projection{}, err
		}
		agg.Var = v
	}
	if err := p.expectPunct(")"); err != nil {
		return Projection{}, err
	}
	if err := p.expectWord("AS"); err != nil {
		return Projection{}, err
	}
	alias, err := p.expectVar()
	if err != nil {
		return Projection{}, err
	}
	if err := p.expectPunct(")"); err != nil {
		return Projection{}, err
	}
	return Projection{Var: alias, Agg: agg}, nil
}

func (p *parser) parseGroup() (*Group, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	g := &Group{}
	if p.isWord("SELECT") {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		g.Elems = append(g.Elems, SubQuery{Query: sub})
		return g, p.expectPunct("}")
	}
	for !p.acceptPunct("}") {
		switch {
		case p.peek().kind == tEOF:
			return nil, p.errorf("unterminated group")
		case p.acceptPunct("."):
		case p.acceptWord("OPTIONAL"):
			og, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.Elems = append(g.Elems, Optional{Group: og})
		case p.acceptWord("FILTER"):
			e, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			g.Filters = append(g.Filters, e)
		case p.isPunct("{"):
			left, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			var el Element = left
			for p.acceptWord("UNION") {
				right, err := p.parseGroup()
				if err != nil {
					return nil, err
				}
				el = Union{Left: asGroup(el), Right: right}
			}
			g.Elems = append(g.Elems, el)
		default:
			tps, err := p.parseTriples()
			if err != nil {
				return nil, err
			}
			for _, tp := range tps {
				g.Elems = append(g.Elems, tp)
			}
		}
	}
	return g, nil
}

func asGroup(e Element) *Group {
	if g, ok := e.(*Group); ok {
		return g
	}
	return &Group{Elems: []Element{e}}
}

func (p *parser) parseFilter() (Expr, error) {
	switch {
	case p.isWord("NOT"), p.isWord("EXISTS"):
		return p.parsePrimary()
	case p.isPunct("("):
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return e, p.expectPunct(")")
	case p.peek().kind == tWord:
		return p.parsePrimary()
	}
	return nil, p.errorf("expected filter expression")
}

// parseTriples reads one subject with its property list.
func (p *parser) parseTriples() ([]TriplePattern, error) {
	subj, err := p.parseNode(false)
	if err != nil {
		return nil, err
	}
	var out []TriplePattern
	for {
		var verb Node
		if p.acceptWord("a") {
			verb = Node{Term: kg.RDFType}
		} else if verb, err = p.parseNode(false); err != nil {
			return nil, err
		}
		for {
			obj, err := p.parseNode(true)
			if err != nil {
				return nil, err
			}
			out = append(out, TriplePattern{S: subj, P: verb, O: obj})
			if !p.acceptPunct(",") {
				break
			}
		}
		if !p.acceptPunct(";") {
			break
		}
		for p.acceptPunct(";") {
		}
		if p.isPunct(".") || p.isPunct("}") {
			break
		}
	}
	return out, nil
}

func (p *parser) parseNode(literals bool) (Node, error) {
	t := p.peek()
	switch t.kind {
	case tVar:
		p.next()
		return Node{Var: t.text}, nil
	case tIRI, tPName:
		iri, err := p.parseIRI()
		if err != nil {
			return Node{}, err
		}
		return Node{Term: iri}, nil
	}
	if literals {
		lit, err := p.parseLiteral()
		if err != nil {
			return Node{}, err
		}
		return Node{Term: lit}, nil
	}
	return Node{}, p.errorf("expected variable or IRI")
}

func (p *parser) parseIRI() (rdf.IRI, error) {
	t := p.next()
	raw := t.text
	if t.kind == tPName {
		prefix, local, _ := strings.Cut(raw, ":")
		ns, ok := p.prefixes[prefix]
		if !ok {
			return rdf.IRI{}, fmt.Errorf("sparql: unknown prefix %q at %d", prefix, t.pos)
		}
		raw = ns + local
	} else if t.kind != tIRI {
		return rdf.IRI{}, fmt.Errorf("sparql: expected IRI at %d", t.pos)
	}
	iri, err := rdf.NewIRI(raw)
	if err != nil {
		return rdf.IRI{}, fmt.Errorf("sparql: %w", err)
	}
	return iri, nil
}

var (
	xsdInteger = kg.IRI(kg.NSXSD + "integer")
	xsdDecimal = kg.IRI(kg.NSXSD + "decimal")
	xsdDouble  = kg.IRI(kg.NSXSD + "double")
)

func (p *parser) parseLiteral() (rdf.Literal, error) {
	t := p.peek()
	switch {
	case t.kind == tString:
		p.next()
		if l := p.peek(); l.kind == tLang {
			p.next()
			lit, err := rdf.NewLangLiteral(t.text, l.text)
			if err != nil {
				return rdf.Literal{}, fmt.Errorf("sparql: %w", err)
			}
			return lit, nil
		}
		if p.acceptPunct("^^") {
			dt, err := p.parseIRI()
			if err != nil {
				return rdf.Literal{}, err
			}
			return rdf.NewTypedLiteral(t.text, dt), nil
		}
		return kg.Str(t.text), nil
	case t.kind == tNumber:
		p.next()
		text := strings.TrimPrefix(t.text, "+")
		switch {
		case strings.ContainsAny(text, "eE"):
			return rdf.NewTypedLiteral(text, xsdDouble), nil
		case strings.Contains(text, "."):
			return rdf.NewTypedLiteral(text, xsdDecimal), nil
		}
		return rdf.NewTypedLiteral(text, xsdInteger), nil
	case p.isWord("true"), p.isWord("false"):
		p.next()
		return kg.Bool(strings.EqualFold(t.text, "true")), nil
	}
	return rdf.Literal{}, p.errorf("expected literal")
}

// Expressions, lowest precedence first.

func (p *parser) parseExpr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptPunct("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orExpr{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseRel()
	if err != nil {
		return nil, err
	}
	for p.acceptPunct("&&") {
		right, err := p.parseRel()
		if err != nil {
			return nil, err
		}
		left = andExpr{left, right}
	}
	return left, nil
}

var relOps = []string{"=", "!=", "<", ">", "<=", ">="}

func (p *parser) parseRel() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for _, op := range relOps {
		if p.acceptPunct(op) {
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return cmpExpr{op: op, l: left, r: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.acceptPunct("!") {
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{e}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch {
	case p.acceptPunct("("):
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return e, p.expectPunct(")")
	case t.kind == tVar:
		p.next()
		return varExpr(t.text), nil
	case t.kind == tIRI || t.kind == tPName:
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return constExpr{iri}, nil
	case t.kind == tString || t.kind == tNumber || p.isWord("true") || p.isWord("false"):
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return constExpr{lit}, nil
	case p.isWord("NOT"):
		p.next()
		if err := p.expectWord("EXISTS"); err != nil {
			return nil, err
		}
		g, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		return existsExpr{group: g, not: true}, nil
	case p.isWord("EXISTS"):
		p.next()
		g, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		return existsExpr{group: g}, nil
	case t.kind == tWord:
		return p.parseCall()
	}
	return nil, p.errorf("expected expression")
}

var builtinArity = map[string]int{
	"BOUND": 1, "STR": 1, "LCASE": 1, "UCASE": 1, "ISIRI": 1, "ISLITERAL": 1,
	"CONTAINS": 2, "STRSTARTS": 2, "REGEX": 2,
}

func (p *parser) parseCall() (Expr, error) {
	name := strings.ToUpper(p.next().text)
	arity, ok := builtinArity[name]
	if !ok {
		return nil, p.errorf("unsupported function %s", name)
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []Expr
	for i := 0; i < arity; i++ {
		if i > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if name == "BOUND" {
		v, ok := args[0].(varExpr)
		if !ok {
			return nil, p.errorf("BOUND takes a variable")
		}
		return boundExpr(v), nil
	}
	return callExpr{name: name, args: args}, nil
}
