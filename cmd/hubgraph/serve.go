package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skylane-labs/hubgraph/engine/kg"
	"github.com/skylane-labs/hubgraph/engine/semantic"
	"github.com/skylane-labs/hubgraph/engine/sparql"
	"github.com/skylane-labs/hubgraph/pkg/metrics"
	"github.com/skylane-labs/hubgraph/pkg/mid"
)

const (
	defaultSimilar = 5
	maxSimilar     = 50
	maxQueryBytes  = 64 << 10
)

// similarity is the part of the Qdrant index the server needs.
type similarity interface {
	Similar(ctx context.Context, vs []semantic.AirportVector, code string, k int) ([]semantic.Match, error)
}

// server answers read-only questions about the last built graph.
type server struct {
	graph   *kg.Graph
	local   *sparql.Local
	index   similarity
	vectors []semantic.AirportVector
	reg     *metrics.Registry
	log     *slog.Logger
}

func newServer(g *kg.Graph, index similarity, reg *metrics.Registry, log *slog.Logger) *server {
	s := &server{graph: g, local: sparql.NewLocal(g), index: index, reg: reg, log: log}
	if index != nil {
		s.vectors = semantic.Vectors(g)
	}
	return s
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/queries", handleQueryNames)
	mux.HandleFunc("GET /api/queries/{name}", s.handleQuery)
	mux.HandleFunc("POST /api/sparql", s.handleSPARQL)
	mux.HandleFunc("GET /api/airports/{code}", s.handleAirport)
	mux.HandleFunc("GET /api/airports/{code}/similar", s.handleSimilar)
	mux.Handle("GET /metrics", s.reg.Handler())
	return mux
}

func (s *server) handler(corsOrigin string) http.Handler {
	return mid.Chain(s.routes(),
		mid.Recover(s.log),
		mid.RequestID(),
		mid.Logger(s.log),
		mid.Metrics(s.reg),
		mid.OTel("hubgraph"),
		mid.CORS(corsOrigin),
		mid.Timeout(30*time.Second),
	)
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve query results and airport lookups over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	g, err := kg.LoadSaved(cfg.Paths().Graph)
	if err != nil {
		return fmt.Errorf("serve: no graph, run build first: %w", err)
	}
	var index similarity
	if cfg.Qdrant.Addr != "" {
		ix, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer ix.Close()
		index = ix
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newServer(g, index, a.reg, a.log).handler(cfg.Server.CORSOrigin),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("api server starting", "port", cfg.Server.Port, "triples", g.Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "triples": s.graph.Len()})
}

func handleQueryNames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"queries": sparql.Names})
}

// QueryResponse is the JSON form of a SELECT result.
type QueryResponse struct {
	Name  string              `json:"name,omitempty"`
	Vars  []string            `json:"vars"`
	Rows  []map[string]string `json:"rows"`
	Count int                 `json:"count"`
}

func newQueryResponse(name string, res *sparql.Results) QueryResponse {
	return QueryResponse{Name: name, Vars: res.Vars, Rows: res.Maps(), Count: len(res.Solutions)}
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	text, err := sparql.QueryText(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown query "+strconv.Quote(name))
		return
	}
	res, err := s.local.Select(r.Context(), text)
	if err != nil {
		s.log.Error("query failed", "query", name, "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, newQueryResponse(name, res))
}

// SPARQLRequest is the JSON body for POST /api/sparql.
type SPARQLRequest struct {
	Query string `json:"query"`
}

func (s *server) handleSPARQL(w http.ResponseWriter, r *http.Request) {
	var req SPARQLRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxQueryBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	q, err := sparql.Parse(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.local.Eval(r.Context(), q)
	switch {
	case errors.Is(err, sparql.ErrTooManySolutions):
		writeError(w, http.StatusUnprocessableEntity, "query produces too many solutions")
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "query timed out")
		return
	case err != nil:
		s.log.Error("sparql failed", "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, newQueryResponse("", res))
}

// Statement is one predicate/object pair of a resource.
type Statement struct {
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// AirportResponse lists the triples with the airport as subject.
type AirportResponse struct {
	Code       string      `json:"code"`
	IRI        string      `json:"iri"`
	Statements []Statement `json:"statements"`
}

func (s *server) handleAirport(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.PathValue("code"))
	iri := kg.AirportIRI(code)
	triples := s.graph.Match(iri, nil, nil)
	if len(triples) == 0 {
		writeError(w, http.StatusNotFound, "unknown airport "+code)
		return
	}
	resp := AirportResponse{Code: code, IRI: iri.String(), Statements: make([]Statement, len(triples))}
	for i, t := range triples {
		resp.Statements[i] = Statement{Predicate: sparql.Display(t.Pred), Object: sparql.Display(t.Obj)}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "similarity index not configured")
		return
	}
	k := defaultSimilar
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = min(n, maxSimilar)
	}
	code := strings.ToUpper(r.PathValue("code"))
	matches, err := s.index.Similar(r.Context(), s.vectors, code, k)
	switch {
	case errors.Is(err, semantic.ErrUnknownAirport):
		writeError(w, http.StatusNotFound, "unknown airport "+code)
		return
	case err != nil:
		s.log.Error("similarity search failed", "code", code, "err", err)
		writeError(w, http.StatusBadGateway, "similarity search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code, "similar": matches})
}
