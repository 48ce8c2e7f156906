package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
)

type fakeConn struct {
	msgs    []*nats.Msg
	err     error
	drained bool
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	f.msgs = append(f.msgs, m)
	return f.err
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func sampleEvent() StageEvent {
	return StageEvent{
		RunID:    "run-1",
		Stage:    "build",
		Status:   StatusOK,
		Counts:   map[string]int{"triples": 120},
		Duration: 2 * time.Second,
		At:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNATSPublisher(t *testing.T) {
	fc := &fakeConn{}
	p := &NATSPublisher{nc: fc, subject: "hubgraph.pipeline.stage"}
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatal(err)
	}
	if len(fc.msgs) != 1 {
		t.Fatalf("published %d messages", len(fc.msgs))
	}
	msg := fc.msgs[0]
	if msg.Subject != "hubgraph.pipeline.stage.build" {
		t.Fatalf("subject = %s", msg.Subject)
	}
	var got StageEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run-1" || got.Counts["triples"] != 120 {
		t.Fatalf("decoded %+v", got)
	}
	p.Close()
	if !fc.drained {
		t.Fatal("close must drain the connection")
	}
}

func startTestNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestSubscribeRoundTrip(t *testing.T) {
	srv := startTestNATS(t)
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	ch := make(chan StageEvent, 1)
	sub, err := Subscribe(nc, "hubgraph.pipeline.stage", func(_ context.Context, ev StageEvent) { ch <- ev })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	nc.Publish("hubgraph.pipeline.stage.query", []byte("{bad"))
	pub, err := NewNATS(srv.ClientURL(), "hubgraph.pipeline.stage")
	if err != nil {
		t.Fatal(err)
	}
	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatal(err)
	}
	pub.Close()

	select {
	case ev := <-ch:
		if ev.RunID != "run-1" || ev.Stage != "build" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	select {
	case ev := <-ch:
		t.Fatalf("malformed message delivered as %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchStopsWithContext(t *testing.T) {
	srv := startTestNATS(t)
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan StageEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, srv.ClientURL(), "hubgraph.pipeline.stage", func(_ context.Context, ev StageEvent) {
			select {
			case got <- ev:
			default:
			}
		})
	}()

	pub, err := NewNATS(srv.ClientURL(), "hubgraph.pipeline.stage")
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case ev := <-got:
			if ev.Stage != "build" {
				t.Fatalf("stage = %s", ev.Stage)
			}
			break wait
		case <-tick.C:
			// The subscription may not be registered yet; keep publishing.
			if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("watch never delivered an event")
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchConnectError(t *testing.T) {
	err := Watch(context.Background(), "nats://127.0.0.1:1", "s", func(context.Context, StageEvent) {})
	if err == nil || !strings.Contains(err.Error(), "connect nats") {
		t.Fatalf("err = %v", err)
	}
}

func TestNATSPublisherError(t *testing.T) {
	p := &NATSPublisher{nc: &fakeConn{err: errors.New("no responders")}, subject: "s"}
	if err := p.Publish(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected error")
	}
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)
	if c.Get("traceparent") != "" || len(c.Keys()) != 0 {
		t.Fatal("empty carrier must be empty")
	}
	c.Set("traceparent", "00-abc-def-01")
	if c.Get("traceparent") != "00-abc-def-01" {
		t.Fatal("set/get round trip failed")
	}
	if len(c.Keys()) != 1 {
		t.Fatalf("keys = %v", c.Keys())
	}
}

func TestKafkaPublisher(t *testing.T) {
	fw := &fakeWriter{}
	p := &KafkaPublisher{w: fw}
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatal(err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("wrote %d", len(fw.msgs))
	}
	m := fw.msgs[0]
	if string(m.Key) != "run-1" {
		t.Fatalf("key = %s", m.Key)
	}
	if len(m.Headers) == 0 || m.Headers[0].Key != "stage" || string(m.Headers[0].Value) != "build" {
		t.Fatalf("headers = %+v", m.Headers)
	}
	p.Close()
	if !fw.closed {
		t.Fatal("writer not closed")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, StageEvent) error { return errors.New("down") }
func (failingPublisher) Close() error                              { return errors.New("close") }

func TestMultiAndLog(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	fw := &fakeWriter{}
	m := Multi{LogPublisher{Log: log}, &KafkaPublisher{w: fw}, failingPublisher{}}

	ev := sampleEvent()
	ev.Status = StatusFailed
	ev.Error = "no raw data"
	err := m.Publish(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("err = %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatal("a failing publisher must not stop the others")
	}
	out := buf.String()
	if !strings.Contains(out, "pipeline.event") || !strings.Contains(out, "no raw data") {
		t.Fatalf("log output = %s", out)
	}
	if err := m.Close(); err == nil {
		t.Fatal("close error must surface")
	}
}
