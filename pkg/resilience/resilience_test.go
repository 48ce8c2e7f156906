package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skylane-labs/hubgraph/pkg/fn"
)

var errDown = errors.New("upstream down")

func failing(context.Context) error { return errDown }
func healthy(context.Context) error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()

	if err := b.Call(ctx, failing); !errors.Is(err, errDown) {
		t.Fatalf("first call err = %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after one failure = %s", b.State())
	}
	b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("state after threshold = %s", b.State())
	}
	if err := b.Call(ctx, healthy); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker must reject, got %v", err)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: 10 * time.Second})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatal("expected open")
	}
	now = now.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", b.State())
	}
	if err := b.Call(ctx, healthy); err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after good probe = %s", b.State())
	}

	b.Call(ctx, failing)
	now = now.Add(11 * time.Second)
	b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("failed probe must reopen, state = %s", b.State())
	}
}

func TestCallResult(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1})
	r := CallResult(b, context.Background(), func(context.Context) fn.Result[int] { return fn.Ok(7) })
	if v, err := r.Unwrap(); err != nil || v != 7 {
		t.Fatalf("got %d, %v", v, err)
	}
	CallResult(b, context.Background(), func(context.Context) fn.Result[int] { return fn.Err[int](errDown) })
	r = CallResult(b, context.Background(), func(context.Context) fn.Result[int] { return fn.Ok(1) })
	if _, err := r.Unwrap(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v", err)
	}
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if st.String() != want {
			t.Errorf("%d.String() = %q", st, st.String())
		}
	}
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(LimiterOpts{Interval: time.Hour, Burst: 1})
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first token must be free, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("wait must fail before the next token")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(LimiterOpts{})
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("call %d rejected by unlimited limiter: %v", i, err)
		}
	}
}

func TestPerMinute(t *testing.T) {
	if got := PerMinute(30); got.Interval != 2*time.Second || got.Burst != 1 {
		t.Fatalf("PerMinute(30) = %+v", got)
	}
	if got := PerMinute(0); got.Interval != 0 {
		t.Fatalf("PerMinute(0) = %+v", got)
	}
}
