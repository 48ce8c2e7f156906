package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane-labs/hubgraph/engine/kg"
	"github.com/skylane-labs/hubgraph/engine/semantic"
	"github.com/skylane-labs/hubgraph/engine/sparql"
	"github.com/skylane-labs/hubgraph/pkg/events"
	"github.com/skylane-labs/hubgraph/pkg/metrics"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testGraph() *kg.Graph {
	g := kg.NewGraph()
	for _, a := range []struct {
		code  string
		score float64
	}{{"AMS", 4}, {"LHR", 3.1}, {"CDG", 2.5}} {
		iri := kg.AirportIRI(a.code)
		g.Add(iri, kg.RDFType, kg.ClassAirport)
		g.Add(iri, kg.Code, kg.Str(a.code))
		g.Add(iri, kg.Name, kg.Str(a.code+" airport"))
		g.Add(iri, kg.HubPotentialScore, kg.Float(a.score))
	}
	return g
}

type fakeIndex struct {
	code    string
	k       int
	matches []semantic.Match
	err     error
}

func (f *fakeIndex) Similar(_ context.Context, _ []semantic.AirportVector, code string, k int) ([]semantic.Match, error) {
	f.code, f.k = code, k
	return f.matches, f.err
}

func newTestServer(index similarity) (*server, http.Handler) {
	s := newServer(testGraph(), index, metrics.New(), quiet)
	return s, s.handler("*")
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, body))
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, h := newTestServer(nil)
	rec := do(t, h, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.EqualValues(t, 12, resp["triples"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestQueryEndpoints(t *testing.T) {
	_, h := newTestServer(nil)

	rec := do(t, h, "GET", "/api/queries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var names map[string][]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&names))
	assert.Equal(t, sparql.Names, names["queries"])

	rec = do(t, h, "GET", "/api/queries/second_hub", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp QueryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "second_hub", resp.Name)
	assert.NotEmpty(t, resp.Vars)

	rec = do(t, h, "GET", "/api/queries/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSPARQLEndpoint(t *testing.T) {
	_, h := newTestServer(nil)
	q := fmt.Sprintf(`{"query": "SELECT ?code WHERE { ?a <%s> ?code } ORDER BY ?code"}`, kg.Code.String())
	rec := do(t, h, "POST", "/api/sparql", bytes.NewBufferString(q))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp QueryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{"code"}, resp.Vars)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "AMS", resp.Rows[0]["code"])

	for name, body := range map[string]string{
		"not json":    "SELECT",
		"empty query": `{"query": "  "}`,
		"parse error": `{"query": "SELEKT ?x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/sparql", bytes.NewBufferString(body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSPARQLEndpointBoundsCrossProducts(t *testing.T) {
	s, h := newTestServer(nil)
	s.local.MaxSolutions = 20
	body := `{"query": "SELECT * WHERE { ?a ?p ?x . ?b ?q ?y }"}`
	rec := do(t, h, "POST", "/api/sparql", bytes.NewBufferString(body))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestAirportEndpoint(t *testing.T) {
	_, h := newTestServer(nil)
	rec := do(t, h, "GET", "/api/airports/lhr", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AirportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "LHR", resp.Code)
	assert.Equal(t, kg.AirportIRI("LHR").String(), resp.IRI)
	assert.Len(t, resp.Statements, 4)
	assert.Contains(t, resp.Statements, Statement{Predicate: kg.Compact(kg.Name.String()), Object: "LHR airport"})

	rec = do(t, h, "GET", "/api/airports/XXX", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimilarEndpoint(t *testing.T) {
	_, h := newTestServer(nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, "GET", "/api/airports/AMS/similar", nil).Code)

	idx := &fakeIndex{matches: []semantic.Match{{Code: "LHR", Score: 0.2}}}
	s, h := newTestServer(idx)
	assert.Len(t, s.vectors, 3)

	rec := do(t, h, "GET", "/api/airports/ams/similar?k=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AMS", idx.code)
	assert.Equal(t, maxSimilar, idx.k)
	assert.Contains(t, rec.Body.String(), `"LHR"`)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/api/airports/AMS/similar?k=0", nil).Code)

	idx.err = fmt.Errorf("%w: ZZZ", semantic.ErrUnknownAirport)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/api/airports/ZZZ/similar", nil).Code)

	idx.err = fmt.Errorf("rpc unavailable")
	assert.Equal(t, http.StatusBadGateway, do(t, h, "GET", "/api/airports/AMS/similar", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(nil)
	do(t, h, "GET", "/api/health", nil)
	rec := do(t, h, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hubgraph_http_requests_total")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd(quiet)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestCLI(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, execute(t, "--data-dir", dir, "run", "--step", "build,query"))
	assert.NoError(t, execute(t, "--data-dir", dir, "validate"))

	assert.ErrorContains(t, execute(t, "--data-dir", dir, "run", "--step", "deploy"), "unknown step")
	assert.Error(t, execute(t, "--data-dir", dir, "export", "mongo"))
	assert.ErrorContains(t, execute(t, "--data-dir", dir, "export", "neo4j"), "no graph")
	assert.ErrorContains(t, execute(t, "--data-dir", dir, "--home-hub", "AMSX", "build"), "home_hub")
	assert.ErrorContains(t, execute(t, "--data-dir", dir, "watch"), "nats_url")
}

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	a := &app{log: slog.New(slog.NewTextHandler(&buf, nil))}
	a.logEvent(context.Background(), events.StageEvent{
		RunID: "r1", Stage: "validate", Status: events.StatusFailed,
		Counts: map[string]int{"violations": 3}, Error: "shapes missing",
	})
	out := buf.String()
	assert.Contains(t, out, "stage=validate")
	assert.Contains(t, out, "count.violations=3")
	assert.Contains(t, out, `error="shapes missing"`)
}
