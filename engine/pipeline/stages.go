package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/skylane-labs/hubgraph/engine/collector"
	"github.com/skylane-labs/hubgraph/engine/collector/klm"
	"github.com/skylane-labs/hubgraph/engine/collector/schiphol"
	"github.com/skylane-labs/hubgraph/engine/domain"
	"github.com/skylane-labs/hubgraph/engine/kg"
	"github.com/skylane-labs/hubgraph/engine/process"
	"github.com/skylane-labs/hubgraph/engine/report"
	"github.com/skylane-labs/hubgraph/engine/semantic"
	"github.com/skylane-labs/hubgraph/engine/shapes"
	"github.com/skylane-labs/hubgraph/engine/sparql"
	"github.com/skylane-labs/hubgraph/pkg/config"
	"github.com/skylane-labs/hubgraph/pkg/fn"
)

// KLMConfig maps the file configuration onto the collector's.
func KLMConfig(c config.KLMConfig) klm.Config {
	cfg := klm.DefaultConfig()
	cfg.APIKey = c.APIKey
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	cfg.ClientID, cfg.ClientSecret = c.ClientID, c.ClientSecret
	if c.Carrier != "" {
		cfg.Carrier = c.Carrier
	}
	if c.Departure != "" {
		cfg.Departure = c.Departure
	}
	if c.Days > 0 {
		cfg.Days = c.Days
	}
	if c.PageSize > 0 {
		cfg.PageSize = c.PageSize
	}
	if c.MaxPages > 0 {
		cfg.MaxPages = c.MaxPages
	}
	if c.RateLimit > 0 {
		cfg.RateLimit = c.RateLimit
	}
	cfg.Date = time.Now().UTC()
	return cfg
}

// SchipholConfig maps the file configuration onto the collector's. Zero
// values keep the collector defaults.
func SchipholConfig(c config.SchipholConfig) schiphol.Config {
	cfg := schiphol.DefaultConfig()
	cfg.AppID, cfg.AppKey, cfg.Direction = c.AppID, c.AppKey, c.Direction
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.MaxPages > 0 {
		cfg.MaxPages = c.MaxPages
	}
	if c.CallsPerMinute > 0 {
		cfg.CallsPerMinute = c.CallsPerMinute
	}
	return cfg
}

func ok(files []string, counts map[string]int) fn.Result[stageReport] {
	return fn.Ok(stageReport{Files: files, Counts: counts})
}

func (p *Pipeline) rawStore() *collector.RawStore {
	return collector.NewRawStore(p.deps.Config.Paths().Raw)
}

// collect runs every collector that has credentials. A source without
// credentials is not attempted; the stage fails only when every attempted
// source failed.
func (p *Pipeline) collect(ctx context.Context, _ *Run) fn.Result[stageReport] {
	cfg := p.deps.Config
	store := p.rawStore()
	var (
		rep      = stageReport{Counts: map[string]int{}}
		errs     []error
		attempts int
	)
	if cfg.KLM.APIKey != "" {
		attempts++
		path, n, err := klm.New(KLMConfig(cfg.KLM), p.deps.Cache, p.log).CollectAndSave(ctx, store)
		if err != nil {
			errs = append(errs, err)
		} else {
			rep.Files = append(rep.Files, path)
			rep.Counts[klm.RawName] = n
		}
	}
	if cfg.Schiphol.AppID != "" && cfg.Schiphol.AppKey != "" {
		attempts++
		saved, failed := fn.Partition(fn.Map(
			schiphol.New(SchipholConfig(cfg.Schiphol), p.deps.Cache, p.log).CollectAll(ctx, store),
			func(res schiphol.SaveResult) fn.Result[schiphol.SaveResult] {
				if res.Err != nil {
					return fn.Errf[schiphol.SaveResult]("schiphol %s: %w", res.Resource.RawName, res.Err)
				}
				return fn.Ok(res)
			}))
		for _, res := range saved {
			rep.Files = append(rep.Files, res.Path)
			rep.Counts[res.Resource.RawName] = res.Count
		}
		if len(failed) == len(schiphol.Resources) {
			errs = append(errs, errors.Join(failed...))
		}
	}
	switch {
	case attempts == 0:
		return fn.Err[stageReport](skip("no API credentials configured"))
	case len(errs) == attempts:
		return fn.Err[stageReport](fmt.Errorf("collect: %w", errors.Join(errs...)))
	}
	return fn.Ok(rep)
}

func (p *Pipeline) process(ctx context.Context, _ *Run) fn.Result[stageReport] {
	cfg := p.deps.Config
	proc := process.New(p.rawStore(), cfg.Paths().Processed, cfg.HomeHub)
	proc.Sink, proc.Metrics, proc.Log = p.deps.Tables, p.deps.Metrics, p.log
	res, err := proc.All(ctx)
	if errors.Is(err, domain.ErrNoRawData) && len(res.Files) == 0 {
		return fn.Err[stageReport](skip("no raw data under %s", proc.Raw.Dir))
	}
	if err != nil {
		return fn.Err[stageReport](err)
	}
	counts := res.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	counts["skipped"] = res.Skipped
	return ok(res.Files, counts)
}

func (p *Pipeline) inputs(r *Run) (*kg.Inputs, error) {
	if r.Inputs != nil {
		return r.Inputs, nil
	}
	cfg := p.deps.Config
	in, err := kg.LoadInputs(cfg.Paths().Processed, cfg.Graph.DelayDataset, cfg.Graph.VolumesFile, p.log)
	if err != nil {
		return nil, err
	}
	r.Inputs = &in
	return r.Inputs, nil
}

// build constructs and saves the graph, then projects it into Neo4j and
// Qdrant when those are configured. Export failures are logged only.
func (p *Pipeline) build(ctx context.Context, r *Run) fn.Result[stageReport] {
	cfg := p.deps.Config
	in, err := p.inputs(r)
	if errors.Is(err, domain.ErrNoProcessedData) {
		return fn.Err[stageReport](skip("%v", err))
	}
	if err != nil {
		return fn.Err[stageReport](err)
	}
	b := kg.NewBuilder(cfg.HomeHub, cfg.HomeCarrier, cfg.Graph.PotentialHubThreshold)
	b.Metrics, b.Log = p.deps.Metrics, p.log
	g, sum := b.Build(*in)
	r.Graph = g

	files, err := kg.Save(g, cfg.Paths().Graph)
	if err != nil {
		return fn.Err[stageReport](err)
	}
	counts := map[string]int{
		"triples": sum.Triples, "airports": sum.Airports, "routes": sum.Routes,
		"flights": sum.Flights + sum.SchipholFlights, "potential_hubs": sum.PotentialHubs, "skipped": sum.Skipped,
	}
	if p.deps.Graph != nil {
		if st, err := p.deps.Graph.ExportGraph(ctx, g); err != nil {
			p.log.Warn("pipeline: neo4j export failed", "err", err)
		} else {
			counts["neo4j_nodes"] = st.Nodes
		}
	}
	if p.deps.Index != nil {
		vs := semantic.Vectors(g)
		if err := p.deps.Index.Rebuild(ctx, vs); err != nil {
			p.log.Warn("pipeline: qdrant index failed", "err", err)
		} else {
			counts["qdrant_points"] = len(vs)
		}
	}
	return ok(files, counts)
}

// graph returns the graph built in this run or loads the saved one.
func (p *Pipeline) graph(r *Run) (*kg.Graph, error) {
	if r.Graph != nil {
		return r.Graph, nil
	}
	dir := p.deps.Config.Paths().Graph
	g, err := kg.LoadSaved(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, skip("no graph in %s", dir)
	}
	if err != nil {
		return nil, err
	}
	r.Graph = g
	return g, nil
}

func (p *Pipeline) engine(ctx context.Context, g *kg.Graph) (sparql.Engine, error) {
	if p.deps.Engine != nil {
		return p.deps.Engine(g)
	}
	q := p.deps.Config.Query
	if q.Endpoint == "" {
		return sparql.NewLocal(g), nil
	}
	remote, err := sparql.NewRemote(q.Endpoint, q.GraphStore, q.Timeout)
	if err != nil {
		return nil, err
	}
	if err := remote.Upload(ctx, g); err != nil {
		return nil, err
	}
	return remote, nil
}

func (p *Pipeline) query(ctx context.Context, r *Run) fn.Result[stageReport] {
	g, err := p.graph(r)
	if err != nil {
		return fn.Err[stageReport](err)
	}
	eng, err := p.engine(ctx, g)
	if err != nil {
		return fn.Err[stageReport](err)
	}
	runner := sparql.NewRunner(eng, p.deps.Config.Paths().Results)
	runner.Metrics, runner.Log = p.deps.Metrics, p.log
	outs, err := runner.RunAll(ctx)
	rep := stageReport{Counts: map[string]int{}}
	for _, o := range outs {
		rep.Files = append(rep.Files, o.Files...)
		if o.Err == nil {
			rep.Counts[o.Name] = o.Rows
		}
	}
	if err != nil {
		return fn.Err[stageReport](err)
	}
	return fn.Ok(rep)
}

// validate writes the shape report. Violations are counted, never fatal.
func (p *Pipeline) validate(_ context.Context, r *Run) fn.Result[stageReport] {
	g, err := p.graph(r)
	if err != nil {
		return fn.Err[stageReport](err)
	}
	set, err := shapes.Load(p.deps.Config.Query.ShapesFile)
	if err != nil {
		return fn.Err[stageReport](err)
	}
	rep := set.Validate(g)
	path, err := shapes.WriteReport(rep, p.deps.Config.Paths().Results)
	if err != nil {
		return fn.Err[stageReport](err)
	}
	p.deps.Metrics.Counter("hubgraph_shape_violations_total", "Shape validation results of Violation severity.").
		Add(int64(rep.Count(shapes.SeverityViolation)))
	p.log.Info("pipeline: validation", "conforms", rep.Conforms, "focus", rep.Focus, "results", len(rep.Violations))
	return ok([]string{path}, map[string]int{
		"focus":      rep.Focus,
		"violations": rep.Count(shapes.SeverityViolation),
		"warnings":   rep.Count(shapes.SeverityWarning),
	})
}

// report works from the graph, the delay dataset and the processed KLM
// flights.
func (p *Pipeline) report(_ context.Context, r *Run) fn.Result[stageReport] {
	cfg := p.deps.Config
	g, err := p.graph(r)
	if err != nil {
		return fn.Err[stageReport](err)
	}
	ds := report.Dataset{Airports: report.AirportsFromGraph(g)}
	if in, err := p.inputs(r); err == nil {
		ds.Delay, ds.Flights = in.DelayRecords, in.Flights
	} else {
		p.log.Warn("pipeline: report without processed tables", "err", err)
	}
	gen := report.NewGenerator(cfg.Paths().Reports, cfg.HomeHub)
	gen.Log = p.log
	files, err := gen.Generate(ds)
	if len(files) == 0 && err != nil {
		return fn.Err[stageReport](err)
	}
	if err != nil {
		p.log.Warn("pipeline: some report files failed", "err", err)
	}
	return ok(files, map[string]int{"airports": len(ds.Airports), "delay_records": len(ds.Delay)})
}
