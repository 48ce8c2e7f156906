package sparql

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/knakk/rdf"
)

const resultsJSON = "application/sparql-results+json"

// jsonResults is the SPARQL 1.1 Query Results JSON Format.
type jsonResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]jsonTerm `json:"bindings"`
	} `json:"results"`
}

type jsonTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang"`
	Datatype string `json:"datatype"`
}

func (t jsonTerm) term() (rdf.Term, error) {
	switch t.Type {
	case "uri":
		return rdf.NewIRI(t.Value)
	case "bnode":
		return rdf.NewBlank(t.Value)
	case "literal", "typed-literal":
		switch {
		case t.Lang != "":
			return rdf.NewLangLiteral(t.Value, t.Lang)
		case t.Datatype != "":
			dt, err := rdf.NewIRI(t.Datatype)
			if err != nil {
				return nil, err
			}
			return rdf.NewTypedLiteral(t.Value, dt), nil
		}
		return rdf.NewLiteral(t.Value)
	}
	return nil, fmt.Errorf("unknown term type %q", t.Type)
}

func decodeJSONResults(r io.Reader) (*Results, error) {
	var raw jsonResults
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	res := &Results{Vars: raw.Head.Vars, Solutions: make([]map[string]rdf.Term, 0, len(raw.Results.Bindings))}
	for _, b := range raw.Results.Bindings {
		sol := make(map[string]rdf.Term, len(b))
		for v, jt := range b {
			t, err := jt.term()
			if err != nil {
				return nil, fmt.Errorf("binding %s: %w", v, err)
			}
			sol[v] = t
		}
		res.Solutions = append(res.Solutions, sol)
	}
	return res, nil
}
