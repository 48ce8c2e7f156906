// Command hubgraph collects KLM and Schiphol flight data, builds the RDF
// knowledge graph, runs the query bank and writes the hub reports.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skylane-labs/hubgraph/engine/pipeline"
	"github.com/skylane-labs/hubgraph/pkg/config"
	"github.com/skylane-labs/hubgraph/pkg/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Error("hubgraph exited with error", "err", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	log *slog.Logger
	reg *metrics.Registry
	cfg *config.Config

	configPath  string
	dataDir     string
	homeHub     string
	metricsPort int
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	a := &app{log: logger, reg: metrics.New()}
	root := &cobra.Command{
		Use:           "hubgraph",
		Short:         "Airline hub knowledge graph pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&a.dataDir, "data-dir", "", "override data_dir")
	flags.StringVar(&a.homeHub, "home-hub", "", "override home_hub")
	flags.IntVar(&a.metricsPort, "metrics-port", 0, "serve /metrics on this port while running")

	for _, stage := range pipeline.Stages {
		root.AddCommand(a.stageCmd(stage))
	}
	root.AddCommand(a.runCmd(), a.serveCmd(), a.exportCmd(), a.watchCmd())
	return root
}

// load reads the config file, then applies flag overrides.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = a.dataDir
	}
	if cmd.Flags().Changed("home-hub") {
		cfg.HomeHub = a.homeHub
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.Server.MetricsPort = a.metricsPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

var stageHelp = map[string]string{
	pipeline.StageCollect:  "Fetch KLM and Schiphol API data into data/raw",
	pipeline.StageProcess:  "Flatten raw JSON into processed CSV tables",
	pipeline.StageBuild:    "Build the RDF knowledge graph",
	pipeline.StageQuery:    "Run the SPARQL query bank",
	pipeline.StageValidate: "Validate the graph against the shape constraints",
	pipeline.StageReport:   "Write correlation statistics, rankings and charts",
}

func (a *app) stageCmd(stage string) *cobra.Command {
	return &cobra.Command{
		Use:   stage,
		Short: stageHelp[stage],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPipeline(cmd.Context(), []string{stage})
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	var steps string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline stages in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := pipeline.ParseSteps(steps)
			if err != nil {
				return err
			}
			return a.runPipeline(cmd.Context(), selected)
		},
	}
	cmd.Flags().StringVar(&steps, "step", "all", "comma separated stages: "+fmt.Sprint(pipeline.Stages))
	return cmd
}

func (a *app) runPipeline(ctx context.Context, steps []string) error {
	if a.cfg.Server.MetricsPort > 0 {
		a.reg.ServeAsync(a.cfg.Server.MetricsPort, a.log)
	}
	deps, closeAll := a.deps(ctx)
	defer closeAll()

	outs, err := pipeline.New(deps).Run(ctx, steps)
	for _, o := range outs {
		a.log.Info("stage outcome", "stage", o.Stage, "status", o.Status,
			"artifacts", len(o.Artifacts), "duration", o.Duration)
	}
	return err
}
