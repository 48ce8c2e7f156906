package sparql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/skylane-labs/hubgraph/pkg/metrics"
)

// Outcome is the result of one bank query.
type Outcome struct {
	Name     string
	Rows     int
	Files    []string
	Duration time.Duration
	Err      error
}

// Runner executes bank queries and writes {name}.txt and {name}.csv into
// OutDir.
type Runner struct {
	Engine  Engine
	OutDir  string
	Metrics *metrics.Registry
	Log     *slog.Logger
}

func NewRunner(eng Engine, outDir string) *Runner {
	return &Runner{Engine: eng, OutDir: outDir, Log: slog.Default()}
}

// RunAll runs every query in Names. A failing query is logged and the rest
// still run; the error is non-nil only when all of them failed.
func (r *Runner) RunAll(ctx context.Context) ([]Outcome, error) {
	var (
		outs   []Outcome
		failed []error
	)
	for _, name := range Names {
		o := r.Run(ctx, name)
		outs = append(outs, o)
		if o.Err != nil {
			failed = append(failed, o.Err)
		}
		if err := ctx.Err(); err != nil {
			return outs, err
		}
	}
	if len(failed) == len(Names) {
		return outs, fmt.Errorf("sparql: every query failed: %w", errors.Join(failed...))
	}
	return outs, nil
}

// Run executes one named query and writes its result files.
func (r *Runner) Run(ctx context.Context, name string) (o Outcome) {
	start := time.Now()
	o.Name = name
	defer func() {
		o.Duration = time.Since(start)
		r.record(o)
	}()

	text, err := QueryText(name)
	if err != nil {
		o.Err = err
		return o
	}
	res, err := r.Engine.Select(ctx, text)
	if err != nil {
		o.Err = fmt.Errorf("sparql: %s: %w", name, err)
		return o
	}
	o.Rows = len(res.Solutions)
	o.Files, o.Err = r.write(name, res)
	return o
}

func (r *Runner) write(name string, res *Results) ([]string, error) {
	if err := os.MkdirAll(r.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("sparql: mkdir %s: %w", r.OutDir, err)
	}
	var files []string
	for _, out := range []struct {
		ext   string
		write func(*os.File) error
	}{
		{".txt", func(f *os.File) error { return res.WriteText(f, name) }},
		{".csv", func(f *os.File) error { return res.WriteCSV(f) }},
	} {
		path := filepath.Join(r.OutDir, name+out.ext)
		f, err := os.Create(path)
		if err != nil {
			return files, fmt.Errorf("sparql: create %s: %w", path, err)
		}
		err = out.write(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return files, fmt.Errorf("sparql: write %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func (r *Runner) record(o Outcome) {
	status := "ok"
	if o.Err != nil {
		status = "failed"
		r.Log.Warn("sparql: query failed", "query", o.Name, "err", o.Err)
	} else {
		r.Log.Info("sparql: query done", "query", o.Name, "rows", o.Rows, "duration", o.Duration)
	}
	if r.Metrics == nil {
		return
	}
	r.Metrics.Counter(metrics.WithLabels("hubgraph_queries_run_total", "query", o.Name, "status", status),
		"Bank queries executed.").Inc()
	r.Metrics.Histogram(metrics.WithLabels("hubgraph_query_duration_seconds", "query", o.Name),
		"Bank query latency.", nil).Observe(o.Duration.Seconds())
}
