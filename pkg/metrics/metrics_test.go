package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounterGauge(t *testing.T) {
	r := New()
	c := r.Counter("hubgraph_rows_total", "Rows processed")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Fatalf("counter = %d", c.Value())
	}
	if r.Counter("hubgraph_rows_total", "") != c {
		t.Fatal("same name must return the same counter")
	}

	g := r.Gauge("hubgraph_triples", "Triples in the graph")
	g.Set(1.5)
	if g.Value() != 1.5 {
		t.Fatalf("gauge = %v", g.Value())
	}
	g.SetToNow()
	if g.Value() < float64(time.Now().Add(-time.Minute).Unix()) {
		t.Fatal("SetToNow did not store a recent time")
	}
}

func TestWithLabels(t *testing.T) {
	tests := []struct {
		kvs  []string
		want string
	}{
		{nil, "m"},
		{[]string{"stage"}, "m"},
		{[]string{"stage", "build"}, `m{stage="build"}`},
		{[]string{"a", "1", "b", "2"}, `m{a="1",b="2"}`},
	}
	for _, tt := range tests {
		if got := WithLabels("m", tt.kvs...); got != tt.want {
			t.Errorf("WithLabels(%v) = %s, want %s", tt.kvs, got, tt.want)
		}
	}
}

func TestRenderFamilies(t *testing.T) {
	r := New()
	r.Counter(WithLabels("hubgraph_stage_runs_total", "stage", "query"), "Stage runs").Add(2)
	r.Counter(WithLabels("hubgraph_stage_runs_total", "stage", "build"), "").Inc()
	h := r.Histogram(WithLabels("hubgraph_stage_seconds", "stage", "build"), "Stage duration", []float64{1, 10})
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50)

	out := r.Render()
	for _, want := range []string{
		"# HELP hubgraph_stage_runs_total Stage runs",
		"# TYPE hubgraph_stage_runs_total counter",
		`hubgraph_stage_runs_total{stage="build"} 1`,
		`hubgraph_stage_runs_total{stage="query"} 2`,
		"# TYPE hubgraph_stage_seconds histogram",
		`hubgraph_stage_seconds_bucket{stage="build",le="1"} 1`,
		`hubgraph_stage_seconds_bucket{stage="build",le="10"} 2`,
		`hubgraph_stage_seconds_bucket{stage="build",le="+Inf"} 3`,
		`hubgraph_stage_seconds_sum{stage="build"} 55.5`,
		`hubgraph_stage_seconds_count{stage="build"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q\n%s", want, out)
		}
	}
	if strings.Count(out, "# TYPE hubgraph_stage_runs_total") != 1 {
		t.Error("family header must be rendered once")
	}
	if strings.Index(out, `stage="build"} 1`) > strings.Index(out, `stage="query"} 2`) {
		t.Error("series must be sorted by labels")
	}
}

func TestHistogramUnlabelled(t *testing.T) {
	r := New()
	h := r.Histogram("hubgraph_query_seconds", "", nil)
	h.Since(time.Now())
	if h.Count() != 1 {
		t.Fatalf("count = %d", h.Count())
	}
	out := r.Render()
	if !strings.Contains(out, `hubgraph_query_seconds_bucket{le="0.01"}`) {
		t.Fatalf("missing unlabelled bucket line:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("up", "").Inc()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "up 1") {
		t.Fatalf("body = %s", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %s", ct)
	}
}
