package graph

import (
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/knakk/rdf"

	"github.com/skylane-labs/hubgraph/engine/kg"
	"github.com/skylane-labs/hubgraph/pkg/repo"
)

// Project maps every subject typed with a klm: or sch: class to a node.
// Literal objects become properties keyed by the predicate's local name
// (the first value wins for repeated predicates); IRI objects between
// projected nodes become relationships named in upper snake case.
// Ontology terms are typed with owl: classes and are left out.
func Project(g *kg.Graph) Projection {
	triples := g.Triples()
	nodes := map[string]*Node{}
	var order []string
	for _, t := range triples {
		if t.Pred.String() != kg.RDFType.String() {
			continue
		}
		class, ok := t.Obj.(rdf.IRI)
		if !ok || !domainIRI(class.String()) {
			continue
		}
		s := t.Subj.String()
		n, ok := nodes[s]
		if !ok {
			n = &Node{IRI: s, Labels: []string{ResourceLabel}, Props: map[string]any{"iri": s}}
			nodes[s] = n
			order = append(order, s)
		}
		if l := repo.Identifier(localName(class.String())); l != "" && !slices.Contains(n.Labels, l) {
			n.Labels = append(n.Labels, l)
		}
	}

	var p Projection
	seen := map[Edge]bool{}
	for _, t := range triples {
		n, ok := nodes[t.Subj.String()]
		if !ok || t.Pred.String() == kg.RDFType.String() {
			continue
		}
		key := repo.Identifier(localName(t.Pred.String()))
		switch o := t.Obj.(type) {
		case rdf.Literal:
			if _, dup := n.Props[key]; key != "" && !dup {
				n.Props[key] = literalValue(o)
			}
		case rdf.IRI:
			if _, ok := nodes[o.String()]; !ok {
				p.Dangling++
				continue
			}
			e := Edge{From: n.IRI, To: o.String(), Type: RelType(localName(t.Pred.String()))}
			if !seen[e] {
				seen[e] = true
				p.Edges = append(p.Edges, e)
			}
		}
	}
	for _, s := range order {
		n := nodes[s]
		slices.Sort(n.Labels[1:])
		p.Nodes = append(p.Nodes, *n)
	}
	return p
}

func domainIRI(iri string) bool {
	return strings.HasPrefix(iri, kg.NSKLM) || strings.HasPrefix(iri, kg.NSSCH)
}

// localName is the part of iri after the last '#' or '/'.
func localName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}

// RelType turns a camelCase predicate name into a relationship type:
// hasOrigin becomes HAS_ORIGIN. Anything unusable maps to RELATED_TO.
func RelType(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	if t := repo.Identifier(b.String()); t != "" {
		return t
	}
	return "RELATED_TO"
}

func literalValue(l rdf.Literal) any {
	s := l.String()
	switch strings.TrimPrefix(l.DataType.String(), kg.NSXSD) {
	case "integer", "int", "long", "nonNegativeInteger":
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	case "double", "float", "decimal":
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	case "boolean":
		if v, err := strconv.ParseBool(s); err == nil {
			return v
		}
	}
	return s
}
