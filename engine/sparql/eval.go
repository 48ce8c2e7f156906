package sparql

import (
	"context"
	"errors"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/knakk/rdf"

	"github.com/skylane-labs/hubgraph/engine/kg"
)

// Binding maps variable names to terms. Unbound variables are absent.
type Binding map[string]rdf.Term

var errType = errors.New("sparql: type error")

// ErrTooManySolutions is returned when a pattern expands past the
// evaluator's solution limit.
var ErrTooManySolutions = errors.New("sparql: too many intermediate solutions")

// DefaultMaxSolutions bounds the solutions a single pattern may produce.
const DefaultMaxSolutions = 1_000_000

// ctxCheckEvery is how many solutions pattern produces between context
// checks.
const ctxCheckEvery = 1024

// Expr is a filter or ORDER BY expression.
type Expr interface {
	eval(e *evaluator, b Binding) (rdf.Term, error)
}

type (
	varExpr   string
	boundExpr string
	constExpr struct{ t rdf.Term }
	orExpr    struct{ l, r Expr }
	andExpr   struct{ l, r Expr }
	notExpr   struct{ e Expr }
	cmpExpr   struct {
		op   string
		l, r Expr
	}
	existsExpr struct {
		group *Group
		not   bool
	}
	callExpr struct {
		name string
		args []Expr
	}
)

func (v varExpr) eval(_ *evaluator, b Binding) (rdf.Term, error) {
	t, ok := b[string(v)]
	if !ok {
		return nil, errType
	}
	return t, nil
}

func (v boundExpr) eval(_ *evaluator, b Binding) (rdf.Term, error) {
	_, ok := b[string(v)]
	return kg.Bool(ok), nil
}

func (c constExpr) eval(*evaluator, Binding) (rdf.Term, error) { return c.t, nil }

// || and && follow the SPARQL error rules: an error on one side is masked
// when the other side decides the result.
func (o orExpr) eval(e *evaluator, b Binding) (rdf.Term, error) {
	l, lerr := ebv(o.l, e, b)
	if lerr == nil && l {
		return kg.Bool(true), nil
	}
	r, rerr := ebv(o.r, e, b)
	if rerr == nil && r {
		return kg.Bool(true), nil
	}
	if lerr != nil || rerr != nil {
		return nil, errType
	}
	return kg.Bool(false), nil
}

func (a andExpr) eval(e *evaluator, b Binding) (rdf.Term, error) {
	l, lerr := ebv(a.l, e, b)
	if lerr == nil && !l {
		return kg.Bool(false), nil
	}
	r, rerr := ebv(a.r, e, b)
	if rerr == nil && !r {
		return kg.Bool(false), nil
	}
	if lerr != nil || rerr != nil {
		return nil, errType
	}
	return kg.Bool(true), nil
}

func (n notExpr) eval(e *evaluator, b Binding) (rdf.Term, error) {
	v, err := ebv(n.e, e, b)
	if err != nil {
		return nil, err
	}
	return kg.Bool(!v), nil
}

func (c cmpExpr) eval(e *evaluator, b Binding) (rdf.Term, error) {
	l, err := c.l.eval(e, b)
	if err != nil {
		return nil, err
	}
	r, err := c.r.eval(e, b)
	if err != nil {
		return nil, err
	}
	switch c.op {
	case "=":
		eq, err := equal(l, r)
		return kg.Bool(eq), err
	case "!=":
		eq, err := equal(l, r)
		return kg.Bool(!eq), err
	}
	n, err := compare(l, r)
	if err != nil {
		return nil, err
	}
	switch c.op {
	case "<":
		return kg.Bool(n < 0), nil
	case ">":
		return kg.Bool(n > 0), nil
	case "<=":
		return kg.Bool(n <= 0), nil
	}
	return kg.Bool(n >= 0), nil
}

func (x existsExpr) eval(e *evaluator, b Binding) (rdf.Term, error) {
	sols, err := e.group(x.group, []Binding{b})
	if err != nil {
		return nil, err
	}
	return kg.Bool((len(sols) > 0) != x.not), nil
}

func (c callExpr) eval(e *evaluator, b Binding) (rdf.Term, error) {
	args := make([]rdf.Term, len(c.args))
	for i, a := range c.args {
		v, err := a.eval(e, b)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch c.name {
	case "ISIRI":
		_, ok := args[0].(rdf.IRI)
		return kg.Bool(ok), nil
	case "ISLITERAL":
		_, ok := args[0].(rdf.Literal)
		return kg.Bool(ok), nil
	case "STR":
		return kg.Str(lexical(args[0])), nil
	case "LCASE":
		return kg.Str(strings.ToLower(lexical(args[0]))), nil
	case "UCASE":
		return kg.Str(strings.ToUpper(lexical(args[0]))), nil
	case "CONTAINS":
		return kg.Bool(strings.Contains(lexical(args[0]), lexical(args[1]))), nil
	case "STRSTARTS":
		return kg.Bool(strings.HasPrefix(lexical(args[0]), lexical(args[1]))), nil
	case "REGEX":
		re, err := e.compile(lexical(args[1]))
		if err != nil {
			return nil, errType
		}
		return kg.Bool(re.MatchString(lexical(args[0]))), nil
	}
	return nil, errType
}

// ebv is the effective boolean value of an expression.
func ebv(x Expr, e *evaluator, b Binding) (bool, error) {
	t, err := x.eval(e, b)
	if err != nil {
		return false, err
	}
	lit, ok := t.(rdf.Literal)
	if !ok {
		return false, errType
	}
	switch literalKind(lit) {
	case kindBool:
		return lit.String() == "true" || lit.String() == "1", nil
	case kindNumeric:
		v, _ := kg.Numeric(lit)
		return v != 0 && !math.IsNaN(v), nil
	case kindString:
		return lit.String() != "", nil
	}
	return false, errType
}

type valueKind int

const (
	kindOther valueKind = iota
	kindNumeric
	kindString
	kindBool
	kindDateTime
	kindDate
)

func literalKind(l rdf.Literal) valueKind {
	if _, ok := kg.Numeric(l); ok {
		return kindNumeric
	}
	switch strings.TrimPrefix(l.DataType.String(), kg.NSXSD) {
	case "string", "":
		return kindString
	case "boolean":
		return kindBool
	case "dateTime":
		return kindDateTime
	case "date":
		return kindDate
	}
	if strings.HasSuffix(l.DataType.String(), "langString") {
		return kindString
	}
	return kindOther
}

func lexical(t rdf.Term) string {
	switch t := t.(type) {
	case rdf.IRI:
		return t.String()
	case rdf.Literal:
		return t.String()
	case nil:
		return ""
	}
	return t.String()
}

func equal(a, b rdf.Term) (bool, error) {
	la, aok := a.(rdf.Literal)
	lb, bok := b.(rdf.Literal)
	if aok && bok {
		ka, kb := literalKind(la), literalKind(lb)
		if ka == kindNumeric && kb == kindNumeric {
			x, _ := kg.Numeric(la)
			y, _ := kg.Numeric(lb)
			return x == y, nil
		}
		if ka == kb && ka != kindOther {
			return la.String() == lb.String(), nil
		}
	}
	return kg.TermKey(a) == kg.TermKey(b), nil
}

// compare orders two values for <, >, <= and >=.
func compare(a, b rdf.Term) (int, error) {
	la, aok := a.(rdf.Literal)
	lb, bok := b.(rdf.Literal)
	if !aok || !bok {
		return 0, errType
	}
	ka, kb := literalKind(la), literalKind(lb)
	if ka != kb || ka == kindOther {
		return 0, errType
	}
	if ka == kindNumeric {
		x, _ := kg.Numeric(la)
		y, _ := kg.Numeric(lb)
		return cmpFloat(x, y), nil
	}
	return strings.Compare(la.String(), lb.String()), nil
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// orderCompare is the total order used by ORDER BY: unbound, blank nodes,
// IRIs, then literals.
func orderCompare(a, b rdf.Term) int {
	rank := func(t rdf.Term) int {
		switch t.(type) {
		case nil:
			return 0
		case rdf.Blank:
			return 1
		case rdf.IRI:
			return 2
		}
		return 3
	}
	ra, rb := rank(a), rank(b)
	if ra != rb || ra == 0 {
		return ra - rb
	}
	if n, err := compare(a, b); err == nil {
		return n
	}
	if n := strings.Compare(lexical(a), lexical(b)); n != 0 {
		return n
	}
	return strings.Compare(kg.TermKey(a), kg.TermKey(b))
}

type evaluator struct {
	ctx     context.Context
	g       *kg.Graph
	max     int
	subs    map[*Query]*Results
	regexes map[string]*regexp.Regexp
}

func newEvaluator(ctx context.Context, g *kg.Graph, limit int) *evaluator {
	if limit <= 0 {
		limit = DefaultMaxSolutions
	}
	return &evaluator{ctx: ctx, g: g, max: limit, subs: map[*Query]*Results{}, regexes: map[string]*regexp.Regexp{}}
}

func (e *evaluator) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.regexes[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.regexes[pattern] = re
	return re, nil
}

func resolve(n Node, b Binding) rdf.Term {
	if n.Var == "" {
		return n.Term
	}
	return b[n.Var]
}

func bind(b Binding, n Node, t rdf.Term) bool {
	if n.Var == "" {
		return true
	}
	if cur, ok := b[n.Var]; ok {
		return kg.TermKey(cur) == kg.TermKey(t)
	}
	b[n.Var] = t
	return true
}

func clone(b Binding) Binding {
	out := make(Binding, len(b)+3)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// compatible merges two bindings when they agree on shared variables.
func compatible(a, b Binding) (Binding, bool) {
	out := clone(a)
	for k, v := range b {
		if cur, ok := out[k]; ok {
			if kg.TermKey(cur) != kg.TermKey(v) {
				return nil, false
			}
			continue
		}
		out[k] = v
	}
	return out, true
}

func (e *evaluator) pattern(tp TriplePattern, in []Binding) ([]Binding, error) {
	var out []Binding
	for i, b := range in {
		if i%ctxCheckEvery == 0 {
			if err := e.ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, t := range e.g.Match(resolve(tp.S, b), resolve(tp.P, b), resolve(tp.O, b)) {
			nb := clone(b)
			if !bind(nb, tp.S, t.Subj) || !bind(nb, tp.P, t.Pred) || !bind(nb, tp.O, t.Obj) {
				continue
			}
			out = append(out, nb)
			if len(out) > e.max {
				return nil, ErrTooManySolutions
			}
			if len(out)%ctxCheckEvery == 0 {
				if err := e.ctx.Err(); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// group evaluates g against each input solution in order.
func (e *evaluator) group(g *Group, in []Binding) ([]Binding, error) {
	sols := in
	for _, el := range g.Elems {
		if err := e.ctx.Err(); err != nil {
			return nil, err
		}
		switch el := el.(type) {
		case TriplePattern:
			var err error
			if sols, err = e.pattern(el, sols); err != nil {
				return nil, err
			}
		case Optional:
			var out []Binding
			for _, b := range sols {
				ext, err := e.group(el.Group, []Binding{b})
				if err != nil {
					return nil, err
				}
				if len(ext) == 0 {
					out = append(out, b)
				} else {
					out = append(out, ext...)
				}
			}
			sols = out
		case Union:
			left, err := e.group(el.Left, sols)
			if err != nil {
				return nil, err
			}
			right, err := e.group(el.Right, sols)
			if err != nil {
				return nil, err
			}
			sols = append(left, right...)
		case *Group:
			var err error
			if sols, err = e.group(el, sols); err != nil {
				return nil, err
			}
		case SubQuery:
			res, ok := e.subs[el.Query]
			if !ok {
				var err error
				if res, err = e.query(el.Query); err != nil {
					return nil, err
				}
				e.subs[el.Query] = res
			}
			var out []Binding
			for _, b := range sols {
				for _, row := range res.Solutions {
					if m, ok := compatible(b, row); ok {
						out = append(out, m)
					}
				}
			}
			sols = out
		}
		if len(sols) == 0 {
			break
		}
	}
	if len(g.Filters) == 0 {
		return sols, nil
	}
	out := sols[:0:0]
	for _, b := range sols {
		keep := true
		for _, f := range g.Filters {
			if ok, err := ebv(f, e, b); err != nil || !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, b)
		}
	}
	return out, nil
}

func (q *Query) hasAggregates() bool {
	return len(q.GroupBy) > 0 || slices.ContainsFunc(q.Project, func(p Projection) bool { return p.Agg != nil })
}

func (e *evaluator) query(q *Query) (*Results, error) {
	sols, err := e.group(q.Where, []Binding{{}})
	if err != nil {
		return nil, err
	}
	if q.hasAggregates() {
		sols = groupRows(q, sols)
	}

	if len(q.OrderBy) > 0 {
		keys := make([][]rdf.Term, len(sols))
		for i, b := range sols {
			keys[i] = make([]rdf.Term, len(q.OrderBy))
			for j, k := range q.OrderBy {
				keys[i][j], _ = k.Expr.eval(e, b)
			}
		}
		idx := make([]int, len(sols))
		for i := range idx {
			idx[i] = i
		}
		slices.SortStableFunc(idx, func(x, y int) int {
			for j, k := range q.OrderBy {
				n := orderCompare(keys[x][j], keys[y][j])
				if k.Desc {
					n = -n
				}
				if n != 0 {
					return n
				}
			}
			return 0
		})
		sorted := make([]Binding, len(sols))
		for i, j := range idx {
			sorted[i] = sols[j]
		}
		sols = sorted
	}

	vars := make([]string, 0, len(q.Project))
	if q.Star {
		vars = q.Where.Vars()
	} else {
		for _, p := range q.Project {
			vars = append(vars, p.Var)
		}
	}
	res := &Results{Vars: vars}
	seen := map[string]bool{}
	for _, b := range sols {
		row := make(map[string]rdf.Term, len(vars))
		var key strings.Builder
		for _, v := range vars {
			if t, ok := b[v]; ok {
				row[v] = t
				key.WriteString(kg.TermKey(t))
			}
			key.WriteByte(0)
		}
		if q.Distinct {
			if seen[key.String()] {
				continue
			}
			seen[key.String()] = true
		}
		res.Solutions = append(res.Solutions, row)
	}

	if q.Offset > 0 {
		res.Solutions = res.Solutions[min(q.Offset, len(res.Solutions)):]
	}
	if q.Limit >= 0 && len(res.Solutions) > q.Limit {
		res.Solutions = res.Solutions[:q.Limit]
	}
	return res, nil
}

// groupRows collapses solutions into one row per GROUP BY key, in order of
// first appearance, and computes the aggregates. Without GROUP BY every
// solution falls into a single group.
func groupRows(q *Query, sols []Binding) []Binding {
	var order []string
	groups := map[string][]Binding{}
	for _, b := range sols {
		var key strings.Builder
		for _, v := range q.GroupBy {
			if t, ok := b[v]; ok {
				key.WriteString(kg.TermKey(t))
			}
			key.WriteByte(0)
		}
		k := key.String()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], b)
	}
	if len(order) == 0 && len(q.GroupBy) == 0 {
		order = append(order, "")
		groups[""] = nil
	}

	out := make([]Binding, 0, len(order))
	for _, k := range order {
		rows := groups[k]
		b := Binding{}
		if len(rows) > 0 {
			for _, v := range q.GroupBy {
				if t, ok := rows[0][v]; ok {
					b[v] = t
				}
			}
		}
		for _, p := range q.Project {
			if p.Agg == nil {
				if _, ok := b[p.Var]; !ok && len(rows) > 0 {
					if t, ok := rows[0][p.Var]; ok {
						b[p.Var] = t
					}
				}
				continue
			}
			if t := aggregate(p.Agg, rows); t != nil {
				b[p.Var] = t
			}
		}
		out = append(out, b)
	}
	return out
}

func aggregate(a *Aggregate, rows []Binding) rdf.Term {
	var vals []rdf.Term
	seen := map[string]bool{}
	for _, r := range rows {
		var t rdf.Term
		if a.Star {
			var key strings.Builder
			for _, k := range sortedVars(r) {
				key.WriteString(k + "=" + kg.TermKey(r[k]) + ";")
			}
			t = kg.Str(key.String())
		} else {
			v, ok := r[a.Var]
			if !ok {
				continue
			}
			t = v
		}
		if a.Distinct {
			k := kg.TermKey(t)
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		vals = append(vals, t)
	}

	switch a.Func {
	case "COUNT":
		return kg.Int(int64(len(vals)))
	case "SAMPLE":
		if len(vals) == 0 {
			return nil
		}
		return vals[0]
	case "MIN", "MAX":
		if len(vals) == 0 {
			return nil
		}
		best := vals[0]
		for _, v := range vals[1:] {
			n := orderCompare(v, best)
			if a.Func == "MIN" && n < 0 || a.Func == "MAX" && n > 0 {
				best = v
			}
		}
		return best
	}

	var (
		sum      float64
		n        int
		integral = true
	)
	for _, v := range vals {
		x, ok := kg.Numeric(v)
		if !ok {
			continue
		}
		if lit := v.(rdf.Literal); !strings.HasSuffix(lit.DataType.String(), "integer") {
			integral = false
		}
		sum += x
		n++
	}
	if a.Func == "SUM" {
		if integral {
			return kg.Int(int64(sum))
		}
		return kg.Float(sum)
	}
	if n == 0 {
		return kg.Int(0)
	}
	return rdf.NewTypedLiteral(strconv.FormatFloat(sum/float64(n), 'f', -1, 64), xsdDecimal)
}

func sortedVars(b Binding) []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
