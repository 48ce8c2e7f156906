// Package pipeline sequences the stages Collect, Process, Build, Query,
// Validate and Report. Every stage runs to completion before the next;
// a failing stage is recorded and the run continues with whatever output
// earlier stages left on disk.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skylane-labs/hubgraph/engine/graph"
	"github.com/skylane-labs/hubgraph/engine/kg"
	"github.com/skylane-labs/hubgraph/engine/process"
	"github.com/skylane-labs/hubgraph/engine/semantic"
	"github.com/skylane-labs/hubgraph/engine/sparql"
	"github.com/skylane-labs/hubgraph/pkg/artifacts"
	"github.com/skylane-labs/hubgraph/pkg/cache"
	"github.com/skylane-labs/hubgraph/pkg/config"
	"github.com/skylane-labs/hubgraph/pkg/events"
	"github.com/skylane-labs/hubgraph/pkg/fn"
	"github.com/skylane-labs/hubgraph/pkg/metrics"
)

// Stage names in execution order.
const (
	StageCollect  = "collect"
	StageProcess  = "process"
	StageBuild    = "build"
	StageQuery    = "query"
	StageValidate = "validate"
	StageReport   = "report"
)

// Stages is the fixed order.
var Stages = []string{StageCollect, StageProcess, StageBuild, StageQuery, StageValidate, StageReport}

// ErrSkipped marks a stage that had nothing to work on.
var ErrSkipped = errors.New("pipeline: stage skipped")

func skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipped, fmt.Sprintf(format, args...))
}

// Deps are the collaborators of a run. Only Config is required.
type Deps struct {
	Config    *config.Config
	Cache     cache.Cache
	Tables    process.Sink
	Events    events.Publisher
	Metrics   *metrics.Registry
	Graph     *graph.Store
	Index     *semantic.Index
	Artifacts *artifacts.Publisher
	// Engine overrides query engine selection; tests use it.
	Engine func(*kg.Graph) (sparql.Engine, error)
	Log    *slog.Logger
}

// Outcome is what one stage did.
type Outcome struct {
	Stage     string
	Status    string
	Artifacts []string
	Counts    map[string]int
	Err       error
	Duration  time.Duration
}

// stageReport is produced by a stage function.
type stageReport struct {
	Files  []string
	Counts map[string]int
}

// Run is the state shared by the stages of one invocation.
type Run struct {
	ID     string
	Inputs *kg.Inputs
	Graph  *kg.Graph
}

// Pipeline runs stages against Deps.
type Pipeline struct {
	deps   Deps
	log    *slog.Logger
	stages map[string]fn.Stage[*Run, stageReport]
}

func New(deps Deps) *Pipeline {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	if deps.Events == nil {
		deps.Events = events.LogPublisher{Log: deps.Log}
	}
	p := &Pipeline{deps: deps, log: deps.Log}
	p.stages = map[string]fn.Stage[*Run, stageReport]{
		StageCollect:  p.collect,
		StageProcess:  p.process,
		StageBuild:    p.build,
		StageQuery:    p.query,
		StageValidate: p.validate,
		StageReport:   p.report,
	}
	return p
}

// ParseSteps validates a comma separated --step list and returns it in
// execution order. Empty input selects every stage.
func ParseSteps(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return slices.Clone(Stages), nil
	}
	want := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "all" {
			return slices.Clone(Stages), nil
		}
		if !slices.Contains(Stages, name) {
			return nil, fmt.Errorf("pipeline: unknown step %q (want one of %s)", name, strings.Join(Stages, ", "))
		}
		want[name] = true
	}
	return fn.Filter(Stages, func(s string) bool { return want[s] }), nil
}

// logged prefixes a stage with a stage.enter log line; Run logs the exit.
func logged(name string, log *slog.Logger, stage fn.Stage[*Run, stageReport]) fn.Stage[*Run, stageReport] {
	return fn.Then(fn.Tap(func(_ context.Context, r *Run) {
		log.Info("stage.enter", "stage", name, "run_id", r.ID)
	}), stage)
}

// Run executes steps in order. The returned error is non-nil only when
// every selected stage failed, or ctx was cancelled.
func (p *Pipeline) Run(ctx context.Context, steps []string) ([]Outcome, error) {
	run := &Run{ID: uuid.NewString()}
	p.log.Info("pipeline: start", "run_id", run.ID, "steps", steps)

	var outs []Outcome
	for _, name := range steps {
		stage, ok := p.stages[name]
		if !ok {
			return outs, fmt.Errorf("pipeline: unknown step %q", name)
		}
		if err := ctx.Err(); err != nil {
			return outs, err
		}
		start := time.Now()
		rep, err := fn.Traced("pipeline."+name, logged(name, p.log, stage))(ctx, run).Unwrap()
		o := Outcome{Stage: name, Status: events.StatusOK, Artifacts: rep.Files, Counts: rep.Counts, Duration: time.Since(start)}
		p.log.Info("stage.exit", "stage", name, "run_id", run.ID, "duration", o.Duration, "ok", err == nil)
		switch {
		case errors.Is(err, ErrSkipped):
			o.Status, o.Err = events.StatusSkipped, err
			p.log.Info("pipeline: stage skipped", "stage", name, "reason", err)
		case err != nil:
			o.Status, o.Err = events.StatusFailed, err
			p.log.Error("pipeline: stage failed", "stage", name, "err", err)
		}
		p.record(ctx, run, o)
		outs = append(outs, o)
	}
	p.publishArtifacts(ctx, run, outs)

	failed := fn.Filter(outs, func(o Outcome) bool { return o.Status == events.StatusFailed })
	p.log.Info("pipeline: done", "run_id", run.ID, "stages", len(outs), "failed", len(failed))
	if len(outs) > 0 && len(failed) == len(outs) {
		return outs, fmt.Errorf("pipeline: every stage failed: %w",
			errors.Join(fn.Map(failed, func(o Outcome) error { return o.Err })...))
	}
	return outs, nil
}

func (p *Pipeline) record(ctx context.Context, run *Run, o Outcome) {
	reg := p.deps.Metrics
	reg.Histogram(metrics.WithLabels("hubgraph_stage_duration_seconds", "stage", o.Stage),
		"Pipeline stage duration.", nil).Observe(o.Duration.Seconds())
	reg.Counter(metrics.WithLabels("hubgraph_stage_runs_total", "stage", o.Stage, "status", o.Status),
		"Pipeline stage executions by outcome.").Inc()

	ev := events.StageEvent{
		RunID:     run.ID,
		Stage:     o.Stage,
		Status:    o.Status,
		Artifacts: o.Artifacts,
		Counts:    o.Counts,
		Duration:  o.Duration,
		At:        time.Now().UTC(),
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	if err := p.deps.Events.Publish(ctx, ev); err != nil {
		p.log.Warn("pipeline: event publish failed", "stage", o.Stage, "err", err)
	}
}

func (p *Pipeline) publishArtifacts(ctx context.Context, run *Run, outs []Outcome) {
	if p.deps.Artifacts == nil {
		return
	}
	var files []string
	for _, o := range outs {
		if o.Stage != StageCollect {
			files = append(files, o.Artifacts...)
		}
	}
	if len(files) == 0 {
		return
	}
	if _, err := p.deps.Artifacts.Publish(ctx, run.ID, p.deps.Config.DataDir, files); err != nil {
		p.log.Warn("pipeline: artifact upload incomplete", "err", err)
	}
}
