package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/skylane-labs/hubgraph/engine/graph"
	"github.com/skylane-labs/hubgraph/engine/pipeline"
	"github.com/skylane-labs/hubgraph/engine/semantic"
	"github.com/skylane-labs/hubgraph/pkg/artifacts"
	"github.com/skylane-labs/hubgraph/pkg/cache"
	"github.com/skylane-labs/hubgraph/pkg/events"
	"github.com/skylane-labs/hubgraph/pkg/tablestore"
)

// closers runs cleanup in reverse order of registration.
type closers []func() error

func (c *closers) add(f func() error) { *c = append(*c, f) }

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

// deps wires the optional sinks named in the config. A sink that cannot be
// opened is logged and left out; the stages it feeds still run.
func (a *app) deps(ctx context.Context) (pipeline.Deps, func()) {
	cfg := a.cfg
	var cl closers
	d := pipeline.Deps{Config: cfg, Metrics: a.reg, Log: a.log}

	if cfg.Cache.RedisAddr != "" {
		r := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.TTL)
		if err := r.Ping(ctx); err != nil {
			a.log.Warn("redis unavailable, using in-process cache", "addr", cfg.Cache.RedisAddr, "err", err)
			r.Close()
			d.Cache = cache.NewMemory(cfg.Cache.TTL)
		} else {
			d.Cache = r
			cl.add(r.Close)
		}
	} else {
		d.Cache = cache.NewMemory(cfg.Cache.TTL)
	}

	if tables, err := tablestore.Open(ctx, cfg.Tables.SQLitePath, cfg.Tables.PostgresDSN); err != nil {
		a.log.Warn("table store unavailable", "err", err)
	} else if tables != nil {
		d.Tables = tables
		cl.add(tables.Close)
	}

	d.Events = a.publishers(&cl)

	if cfg.Neo4j.URL != "" {
		store, closeDriver, err := a.neo4jStore(ctx)
		if err != nil {
			a.log.Warn("neo4j unavailable", "url", cfg.Neo4j.URL, "err", err)
		} else {
			d.Graph = store
			cl.add(closeDriver)
		}
	}

	if cfg.Qdrant.Addr != "" {
		ix, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
		if err != nil {
			a.log.Warn("qdrant unavailable", "addr", cfg.Qdrant.Addr, "err", err)
		} else {
			d.Index = ix
			cl.add(ix.Close)
		}
	}

	if cfg.Artifacts.Bucket != "" {
		store, err := a.artifactStore(ctx, &cl)
		if err != nil {
			a.log.Warn("artifact store unavailable", "bucket", cfg.Artifacts.Bucket, "err", err)
		} else {
			d.Artifacts = &artifacts.Publisher{Store: store, Prefix: cfg.Artifacts.Prefix, Log: a.log}
		}
	}

	return d, func() {
		if err := cl.close(); err != nil {
			a.log.Warn("shutdown", "err", err)
		}
	}
}

// publishers always logs events and adds NATS and Kafka when configured.
func (a *app) publishers(cl *closers) events.Publisher {
	cfg := a.cfg.Events
	multi := events.Multi{events.LogPublisher{Log: a.log}}
	if cfg.NATSURL != "" {
		p, err := events.NewNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			a.log.Warn("nats unavailable", "url", cfg.NATSURL, "err", err)
		} else {
			multi = append(multi, p)
			cl.add(p.Close)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		p := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		multi = append(multi, p)
		cl.add(p.Close)
	}
	return multi
}

func (a *app) neo4jStore(ctx context.Context) (*graph.Store, func() error, error) {
	cfg := a.cfg.Neo4j
	driver, err := neo4j.NewDriverWithContext(cfg.URL, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, nil, fmt.Errorf("neo4j connect: %w", err)
	}
	store := graph.New(driver, "")
	store.Log = a.log
	return store, func() error { return driver.Close(context.Background()) }, nil
}

// artifactStore maps a file:// bucket to a local directory and anything
// else to Cloud Storage.
func (a *app) artifactStore(ctx context.Context, cl *closers) (artifacts.Store, error) {
	bucket := a.cfg.Artifacts.Bucket
	if dir, ok := strings.CutPrefix(bucket, "file://"); ok {
		return artifacts.Dir(dir), nil
	}
	g, err := artifacts.NewGCS(ctx, strings.TrimPrefix(bucket, "gs://"))
	if err != nil {
		return nil, err
	}
	cl.add(g.Close)
	return g, nil
}
