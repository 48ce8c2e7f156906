package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// headerCarrier adapts nats.Msg headers for the OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	PublishMsg(m *nats.Msg) error
	Drain() error
}

// NATSPublisher publishes stage events as JSON on subject.<stage>.
type NATSPublisher struct {
	nc      conn
	subject string
}

// NewNATS connects to url and publishes under subject.
func NewNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("hubgraph"))
	if err != nil {
		return nil, fmt.Errorf("events: connect nats %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, ev StageEvent) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: p.subject + "." + ev.Stage, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: nats publish %s: %w", msg.Subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error { return p.nc.Drain() }

// Subscribe decodes stage events published under subject.> and hands them
// to handler with the publisher's trace context. Malformed messages are
// dropped.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, StageEvent)) (*nats.Subscription, error) {
	return nc.Subscribe(subject+".>", func(msg *nats.Msg) {
		var ev StageEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		handler(ctx, ev)
	})
}

// Watch connects to url and hands every stage event under subject to
// handler until ctx is done.
func Watch(ctx context.Context, url, subject string, handler func(context.Context, StageEvent)) error {
	nc, err := nats.Connect(url, nats.Name("hubgraph-watch"))
	if err != nil {
		return fmt.Errorf("events: connect nats %s: %w", url, err)
	}
	defer nc.Close()
	sub, err := Subscribe(nc, subject, handler)
	if err != nil {
		return fmt.Errorf("events: subscribe %s: %w", subject, err)
	}
	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("events: drain %s: %w", subject, err)
	}
	return nil
}
