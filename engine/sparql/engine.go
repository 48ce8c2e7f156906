// Package sparql runs the fixed research query bank against the knowledge
// graph, either in process or on a SPARQL 1.1 endpoint, and writes the
// result tables.
package sparql

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/skylane-labs/hubgraph/engine/kg"
)

//go:embed queries.rq
var queriesRQ string

// Names lists the bank's queries in execution order.
var Names = []string{
	"second_hub",
	"potential_destinations",
	"delay_analysis",
	"route_performance",
	"terminal_gate_analysis",
	"expansion_opportunities",
	"rq3_above_average",
}

var loadBank = sync.OnceValues(func() (map[string]string, error) {
	return parseBank(queriesRQ)
})

// QueryText returns the text of a named query.
func QueryText(name string) (string, error) {
	bank, err := loadBank()
	if err != nil {
		return "", fmt.Errorf("sparql: load bank: %w", err)
	}
	text, ok := bank[name]
	if !ok {
		return "", fmt.Errorf("sparql: no query named %q", name)
	}
	return text, nil
}

// Engine executes SELECT queries.
type Engine interface {
	Select(ctx context.Context, query string) (*Results, error)
}

// Local evaluates queries over an in-memory graph.
type Local struct {
	Graph *kg.Graph
	// MaxSolutions caps the solutions one pattern may produce; zero means
	// DefaultMaxSolutions.
	MaxSolutions int
}

func NewLocal(g *kg.Graph) *Local { return &Local{Graph: g} }

func (l *Local) Select(ctx context.Context, query string) (*Results, error) {
	q, err := Parse(query)
	if err != nil {
		return nil, err
	}
	return l.Eval(ctx, q)
}

// Eval runs an already parsed query.
func (l *Local) Eval(ctx context.Context, q *Query) (*Results, error) {
	return newEvaluator(ctx, l.Graph, l.MaxSolutions).query(q)
}

// Remote sends queries to a SPARQL 1.1 protocol endpoint.
type Remote struct {
	endpoint   string
	graphStore string
	client     *http.Client
}

// NewRemote checks endpoint. graphStore, when set, is the Graph Store
// Protocol URL Upload replaces.
func NewRemote(endpoint, graphStore string, timeout time.Duration) (*Remote, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("sparql: remote %q: not an absolute URL", endpoint)
	}
	return &Remote{
		endpoint:   endpoint,
		graphStore: graphStore,
		client:     &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}, nil
}

// Select posts the query form-encoded and decodes the JSON result format.
func (r *Remote) Select(ctx context.Context, query string) (*Results, error) {
	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("sparql: remote query: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", resultsJSON)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sparql: remote query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sparql: remote query: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	res, err := decodeJSONResults(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sparql: remote query: %w", err)
	}
	return res, nil
}

// Upload replaces the remote graph with g, serialized as Turtle.
func (r *Remote) Upload(ctx context.Context, g *kg.Graph) error {
	if r.graphStore == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := g.WriteTurtle(&buf); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.graphStore, &buf)
	if err != nil {
		return fmt.Errorf("sparql: upload: %w", err)
	}
	req.Header.Set("Content-Type", "text/turtle")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("sparql: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sparql: upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
