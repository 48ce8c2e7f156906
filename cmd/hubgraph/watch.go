package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skylane-labs/hubgraph/pkg/events"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Log pipeline stage events published on NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev := a.cfg.Events
			if ev.NATSURL == "" {
				return fmt.Errorf("watch: events.nats_url is not configured")
			}
			a.log.Info("watching stage events", "url", ev.NATSURL, "subject", ev.NATSSubject)
			return events.Watch(cmd.Context(), ev.NATSURL, ev.NATSSubject, a.logEvent)
		},
	}
}

func (a *app) logEvent(_ context.Context, ev events.StageEvent) {
	args := []any{"run_id", ev.RunID, "stage", ev.Stage, "status", ev.Status, "duration", ev.Duration}
	for k, v := range ev.Counts {
		args = append(args, "count."+k, v)
	}
	if ev.Error != "" {
		args = append(args, "error", ev.Error)
	}
	a.log.Info("stage event", args...)
}
