// Package events publishes pipeline stage events to NATS and Kafka with
// OpenTelemetry trace context carried in message headers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Stage statuses.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// StageEvent reports the outcome of one pipeline stage.
type StageEvent struct {
	RunID     string         `json:"run_id"`
	Stage     string         `json:"stage"`
	Status    string         `json:"status"`
	Artifacts []string       `json:"artifacts,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
	At        time.Time      `json:"at"`
}

// Publisher sends stage events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev StageEvent) error
	Close() error
}

// LogPublisher writes events to a slog logger. It is always part of the
// fan-out so a run without brokers still leaves a trail.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev StageEvent) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"run_id", ev.RunID, "stage", ev.Stage, "status", ev.Status, "duration", ev.Duration}
	if ev.Error != "" {
		attrs = append(attrs, "err", ev.Error)
	}
	log.Info("pipeline.event", attrs...)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev StageEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func encode(ev StageEvent) ([]byte, error) {
	return json.Marshal(ev)
}
