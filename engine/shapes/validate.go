package shapes

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/knakk/rdf"

	"github.com/skylane-labs/hubgraph/engine/kg"
)

// ReportFile is the file WriteReport creates.
const ReportFile = "validation_report.txt"

// Violation is one failed constraint on one focus node.
type Violation struct {
	Shape      string
	Focus      string
	Path       string
	Constraint string
	Severity   string
	Message    string
}

// Report is the outcome of a validation run. Conforms is false when any
// result was produced, whatever its severity.
type Report struct {
	Conforms   bool
	Focus      int
	Violations []Violation
}

// Count returns the number of results with the given severity.
func (r *Report) Count(severity string) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == severity {
			n++
		}
	}
	return n
}

// Validate checks every focus node of every shape. Results are ordered by
// shape, then focus node, then property.
func (s *Set) Validate(g *kg.Graph) *Report {
	r := &Report{}
	for _, sh := range s.Shapes {
		for _, focus := range g.InstancesOf(sh.target) {
			r.Focus++
			for i := range sh.Properties {
				p := &sh.Properties[i]
				for _, v := range p.check(g, focus) {
					v.Shape = sh.Name
					v.Focus = kg.Compact(focus.String())
					v.Path = p.Path
					v.Severity = p.Severity
					r.Violations = append(r.Violations, v)
				}
			}
		}
	}
	r.Conforms = len(r.Violations) == 0
	return r
}

func (p *Property) check(g *kg.Graph, focus rdf.Term) []Violation {
	var out []Violation
	fail := func(constraint, format string, args ...any) {
		out = append(out, Violation{Constraint: constraint, Message: fmt.Sprintf(format, args...)})
	}

	values := g.Objects(focus, p.path)
	if p.MinCount != nil && len(values) < *p.MinCount {
		fail("minCount", "expected at least %d value(s), found %d", *p.MinCount, len(values))
	}
	if p.MaxCount != nil && len(values) > *p.MaxCount {
		fail("maxCount", "expected at most %d value(s), found %d", *p.MaxCount, len(values))
	}

	for _, v := range values {
		shown := display(v)
		if p.NodeKind != "" && nodeKind(v) != p.NodeKind {
			fail("nodeKind", "%s is a %s, expected %s", shown, nodeKind(v), p.NodeKind)
		}
		if p.datatype != "" {
			lit, ok := v.(rdf.Literal)
			switch {
			case !ok:
				fail("datatype", "%s is not a literal, expected %s", shown, p.Datatype)
			case lit.DataType.String() != p.datatype:
				fail("datatype", "%s has datatype %s, expected %s", shown, kg.Compact(lit.DataType.String()), p.Datatype)
			}
		}
		if p.Class != "" && !g.Has(v, kg.RDFType, p.class) {
			fail("class", "%s is not a %s", shown, p.Class)
		}
		if p.MinInclusive != nil || p.MaxInclusive != nil {
			x, ok := kg.Numeric(v)
			switch {
			case !ok:
				fail("datatype", "%s is not numeric", shown)
			case p.MinInclusive != nil && x < *p.MinInclusive:
				fail("minInclusive", "%s is below %s", shown, num(*p.MinInclusive))
			case p.MaxInclusive != nil && x > *p.MaxInclusive:
				fail("maxInclusive", "%s is above %s", shown, num(*p.MaxInclusive))
			}
		}
		if p.re != nil && !p.re.MatchString(lexical(v)) {
			fail("pattern", "%s does not match %s", shown, p.Pattern)
		}
		if len(p.In) > 0 && !slices.Contains(p.In, lexical(v)) {
			fail("in", "%s is not one of [%s]", shown, strings.Join(p.In, ", "))
		}
	}
	return out
}

func nodeKind(t rdf.Term) string {
	switch t.(type) {
	case rdf.IRI:
		return KindIRI
	case rdf.Blank:
		return KindBlank
	}
	return KindLiteral
}

func lexical(t rdf.Term) string { return t.String() }

func display(t rdf.Term) string {
	if iri, ok := t.(rdf.IRI); ok {
		return kg.Compact(iri.String())
	}
	return strconv.Quote(t.String())
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// WriteText renders the report. The first line is always
// "Conforms: true" or "Conforms: false".
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Conforms: %t\n", r.Conforms)
	fmt.Fprintf(&b, "Focus nodes: %d\n", r.Focus)
	fmt.Fprintf(&b, "Results: %d (violations %d, warnings %d, info %d)\n",
		len(r.Violations), r.Count(SeverityViolation), r.Count(SeverityWarning), r.Count(SeverityInfo))
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "\n[%s] %s\n", v.Severity, v.Focus)
		fmt.Fprintf(&b, "  Shape: %s\n", v.Shape)
		fmt.Fprintf(&b, "  Path: %s\n", v.Path)
		fmt.Fprintf(&b, "  Constraint: %s\n", v.Constraint)
		fmt.Fprintf(&b, "  Message: %s\n", v.Message)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteReport writes ReportFile into dir and returns its path.
func WriteReport(r *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("shapes: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, ReportFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("shapes: create %s: %w", path, err)
	}
	err = r.WriteText(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("shapes: write %s: %w", path, err)
	}
	return path, nil
}
