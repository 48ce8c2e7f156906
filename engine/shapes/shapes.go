// Package shapes checks the knowledge graph against a declarative set of
// property constraints, in the spirit of SHACL core: cardinality, datatype,
// node kind, class membership, numeric range, pattern and enumeration.
//
// Validation never infers types; a focus node is any subject typed with the
// shape's target class.
package shapes

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/knakk/rdf"
	"gopkg.in/yaml.v3"

	"github.com/skylane-labs/hubgraph/engine/kg"
)

//go:embed shapes.yaml
var defaultYAML []byte

// Severities.
const (
	SeverityViolation = "Violation"
	SeverityWarning   = "Warning"
	SeverityInfo      = "Info"
)

// Node kinds accepted by node_kind.
const (
	KindIRI     = "IRI"
	KindLiteral = "Literal"
	KindBlank   = "BlankNode"
)

// Set is a parsed constraint file.
type Set struct {
	Shapes []Shape `yaml:"shapes"`
}

type Shape struct {
	Name        string     `yaml:"name"`
	TargetClass string     `yaml:"target_class"`
	Properties  []Property `yaml:"properties"`

	target rdf.IRI
}

// Property constrains the values reachable from a focus node over Path.
// Unset pointers mean "no constraint".
type Property struct {
	Path         string   `yaml:"path"`
	MinCount     *int     `yaml:"min_count"`
	MaxCount     *int     `yaml:"max_count"`
	Datatype     string   `yaml:"datatype"`
	NodeKind     string   `yaml:"node_kind"`
	Class        string   `yaml:"class"`
	MinInclusive *float64 `yaml:"min_inclusive"`
	MaxInclusive *float64 `yaml:"max_inclusive"`
	Pattern      string   `yaml:"pattern"`
	In           []string `yaml:"in"`
	Severity     string   `yaml:"severity"`

	path     rdf.IRI
	datatype string
	class    rdf.IRI
	re       *regexp.Regexp
}

// Parse reads a YAML constraint set and resolves its prefixed names.
func Parse(data []byte) (*Set, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Set
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("shapes: decode: %w", err)
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	return &s, nil
}

var loadDefault = sync.OnceValues(func() (*Set, error) { return Parse(defaultYAML) })

// Default returns the embedded constraint set.
func Default() (*Set, error) { return loadDefault() }

// Load reads a constraint file; an empty path selects the embedded set.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shapes: read %s: %w", path, err)
	}
	return Parse(data)
}

func resolve(name string) (rdf.IRI, error) {
	full := name
	if !strings.Contains(name, "://") {
		var ok bool
		if full, ok = kg.Expand(name); !ok {
			return rdf.IRI{}, fmt.Errorf("unknown prefix in %q", name)
		}
	}
	iri, err := rdf.NewIRI(full)
	if err != nil {
		return rdf.IRI{}, err
	}
	return iri, nil
}

func (s *Set) compile() error {
	if len(s.Shapes) == 0 {
		return errors.New("shapes: no shapes defined")
	}
	for i := range s.Shapes {
		sh := &s.Shapes[i]
		if sh.Name == "" {
			sh.Name = fmt.Sprintf("shape%d", i+1)
		}
		var err error
		if sh.target, err = resolve(sh.TargetClass); err != nil {
			return fmt.Errorf("shapes: %s: target_class: %w", sh.Name, err)
		}
		for j := range sh.Properties {
			if err := sh.Properties[j].compile(); err != nil {
				return fmt.Errorf("shapes: %s: property %d: %w", sh.Name, j+1, err)
			}
		}
	}
	return nil
}

func (p *Property) compile() error {
	var err error
	if p.path, err = resolve(p.Path); err != nil {
		return fmt.Errorf("path: %w", err)
	}
	if p.Datatype != "" {
		dt, err := resolve(p.Datatype)
		if err != nil {
			return fmt.Errorf("datatype: %w", err)
		}
		p.datatype = dt.String()
	}
	if p.Class != "" {
		if p.class, err = resolve(p.Class); err != nil {
			return fmt.Errorf("class: %w", err)
		}
	}
	switch p.NodeKind {
	case "", KindIRI, KindLiteral, KindBlank:
	default:
		return fmt.Errorf("node_kind %q", p.NodeKind)
	}
	if p.Pattern != "" {
		if p.re, err = regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("pattern: %w", err)
		}
	}
	if p.MinCount != nil && p.MaxCount != nil && *p.MinCount > *p.MaxCount {
		return fmt.Errorf("min_count %d > max_count %d", *p.MinCount, *p.MaxCount)
	}
	switch p.Severity {
	case "":
		p.Severity = SeverityViolation
	case SeverityViolation, SeverityWarning, SeverityInfo:
	default:
		return fmt.Errorf("severity %q", p.Severity)
	}
	return nil
}
