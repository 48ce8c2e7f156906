package kg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/knakk/rdf"
)

// Graph is an in-memory triple set. Triples are keyed by their N-Triples
// line so duplicates collapse and iteration order is the sorted line order.
type Graph struct {
	mu      sync.Mutex
	triples map[string]rdf.Triple
	bySubj  map[string][]string
	byPred  map[string][]string
	byObj   map[string][]string
	sorted  []string
}

func NewGraph() *Graph {
	return &Graph{
		triples: make(map[string]rdf.Triple),
		bySubj:  make(map[string][]string),
		byPred:  make(map[string][]string),
		byObj:   make(map[string][]string),
	}
}

// TermKey is the N-Triples form of a term, used as its identity.
func TermKey(t rdf.Term) string { return t.Serialize(rdf.NTriples) }

func tripleKey(t rdf.Triple) string {
	return TermKey(t.Subj) + " " + TermKey(t.Pred) + " " + TermKey(t.Obj) + " ."
}

// Add inserts t and reports whether it was new.
func (g *Graph) Add(s rdf.Subject, p rdf.Predicate, o rdf.Object) bool {
	t := rdf.Triple{Subj: s, Pred: p, Obj: o}
	k := tripleKey(t)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.triples[k]; ok {
		return false
	}
	g.triples[k] = t
	g.bySubj[TermKey(s)] = append(g.bySubj[TermKey(s)], k)
	g.byPred[TermKey(p)] = append(g.byPred[TermKey(p)], k)
	g.byObj[TermKey(o)] = append(g.byObj[TermKey(o)], k)
	g.sorted = nil
	return true
}

// AddTriple inserts an existing triple value.
func (g *Graph) AddTriple(t rdf.Triple) bool { return g.Add(t.Subj, t.Pred, t.Obj) }

func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.triples)
}

func (g *Graph) sortedKeys() []string {
	if g.sorted == nil {
		g.sorted = make([]string, 0, len(g.triples))
		for k := range g.triples {
			g.sorted = append(g.sorted, k)
		}
		sort.Strings(g.sorted)
	}
	return g.sorted
}

// Triples returns every triple in canonical order.
func (g *Graph) Triples() []rdf.Triple {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := g.sortedKeys()
	out := make([]rdf.Triple, len(keys))
	for i, k := range keys {
		out[i] = g.triples[k]
	}
	return out
}

// Match returns the triples matching the pattern in canonical order. A nil
// term is a wildcard.
func (g *Graph) Match(s, p, o rdf.Term) []rdf.Triple {
	g.mu.Lock()
	defer g.mu.Unlock()

	var candidates []string
	narrowed := false
	narrow := func(t rdf.Term, idx map[string][]string) {
		if t == nil {
			return
		}
		keys := idx[TermKey(t)]
		if !narrowed || len(keys) < len(candidates) {
			candidates = keys
		}
		narrowed = true
	}
	narrow(s, g.bySubj)
	narrow(p, g.byPred)
	narrow(o, g.byObj)
	if !narrowed {
		candidates = g.sortedKeys()
	}

	var out []rdf.Triple
	for _, k := range candidates {
		t := g.triples[k]
		if s != nil && TermKey(t.Subj) != TermKey(s) {
			continue
		}
		if p != nil && TermKey(t.Pred) != TermKey(p) {
			continue
		}
		if o != nil && TermKey(t.Obj) != TermKey(o) {
			continue
		}
		out = append(out, t)
	}
	if narrowed {
		sort.Slice(out, func(i, j int) bool { return tripleKey(out[i]) < tripleKey(out[j]) })
	}
	return out
}

// Has reports whether the exact triple is present.
func (g *Graph) Has(s, p, o rdf.Term) bool {
	return len(g.Match(s, p, o)) > 0
}

// Objects returns the objects of (s, p, *).
func (g *Graph) Objects(s, p rdf.Term) []rdf.Term {
	ts := g.Match(s, p, nil)
	out := make([]rdf.Term, len(ts))
	for i, t := range ts {
		out[i] = t.Obj
	}
	return out
}

// Object returns the first object of (s, p, *).
func (g *Graph) Object(s, p rdf.Term) (rdf.Term, bool) {
	ts := g.Match(s, p, nil)
	if len(ts) == 0 {
		return nil, false
	}
	return ts[0].Obj, true
}

// InstancesOf returns the subjects typed class, in canonical order.
func (g *Graph) InstancesOf(class rdf.Term) []rdf.Term {
	ts := g.Match(nil, RDFType, class)
	out := make([]rdf.Term, len(ts))
	for i, t := range ts {
		out[i] = t.Subj
	}
	return out
}

// Subjects returns every distinct subject in canonical order.
func (g *Graph) Subjects() []rdf.Term {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(g.bySubj))
	for k := range g.bySubj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]rdf.Term, len(keys))
	for i, k := range keys {
		out[i] = g.triples[g.bySubj[k][0]].Subj
	}
	return out
}

// Canonical returns the graph as sorted N-Triples. Graphs built here have
// no blank nodes, so two graphs are isomorphic exactly when their
// canonical forms are equal.
func (g *Graph) Canonical() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var b strings.Builder
	for _, k := range g.sortedKeys() {
		b.WriteString(k)
		b.WriteByte('\n')
	}
	return b.String()
}

func Isomorphic(a, b *Graph) bool {
	return a.Len() == b.Len() && a.Canonical() == b.Canonical()
}

// WriteNTriples writes the canonical form.
func (g *Graph) WriteNTriples(w io.Writer) error {
	_, err := io.WriteString(w, g.Canonical())
	return err
}

// WriteTurtle writes prefix declarations followed by the triples grouped by
// subject.
func (g *Graph) WriteTurtle(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, p := range Prefixes {
		fmt.Fprintf(bw, "@prefix %s: <%s> .\n", p.Name, p.IRI)
	}
	bw.WriteString("\n")

	enc := rdf.NewTripleEncoder(bw, rdf.Turtle)
	if err := enc.EncodeAll(g.Triples()); err != nil {
		return fmt.Errorf("kg: encode turtle: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("kg: encode turtle: %w", err)
	}
	return bw.Flush()
}

// Decode reads triples in the given format into a new graph.
func Decode(r io.Reader, format rdf.Format) (*Graph, error) {
	dec := rdf.NewTripleDecoder(r, format)
	g := NewGraph()
	for {
		t, err := dec.Decode()
		if err == io.EOF {
			return g, nil
		}
		if err != nil {
			return nil, fmt.Errorf("kg: decode: %w", err)
		}
		g.AddTriple(t)
	}
}

// Load reads a .ttl or .nt file.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("kg: open %s: %w", path, err)
	}
	defer f.Close()
	format := rdf.Turtle
	if strings.EqualFold(filepath.Ext(path), ".nt") {
		format = rdf.NTriples
	}
	return Decode(bufio.NewReader(f), format)
}

// File names written by Save.
const (
	TurtleFile   = "knowledge_graph.ttl"
	NTriplesFile = "knowledge_graph.nt"
)

// LoadSaved reads the graph Save wrote into dir. It reads the N-Triples
// copy: every literal keeps its explicit datatype there, while Turtle may
// abbreviate numbers.
func LoadSaved(dir string) (*Graph, error) {
	return Load(filepath.Join(dir, NTriplesFile))
}

// Save writes the Turtle and N-Triples files into dir and returns their
// paths.
func Save(g *Graph, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kg: mkdir %s: %w", dir, err)
	}
	var paths []string
	for _, out := range []struct {
		name  string
		write func(io.Writer) error
	}{
		{TurtleFile, g.WriteTurtle},
		{NTriplesFile, g.WriteNTriples},
	} {
		path := filepath.Join(dir, out.name)
		f, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("kg: create %s: %w", path, err)
		}
		if err := out.write(f); err != nil {
			f.Close()
			return paths, err
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
