package fn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

var double = Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n * 2) })

func TestResultBasics(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("expected ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatalf("unwrap = %d, %v", v, err)
	}

	e := Errf[int]("bad %d", 7)
	if e.IsOk() || !e.IsErr() {
		t.Fatal("expected err")
	}
	if _, err := e.Unwrap(); err == nil || err.Error() != "bad 7" {
		t.Fatalf("err = %v", err)
	}
}

func TestPartition(t *testing.T) {
	mixed := []Result[int]{Ok(1), Err[int](errors.New("a")), Ok(3), Err[int](errors.New("b"))}
	vals, errs := Partition(mixed)
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 3 {
		t.Fatalf("vals = %v", vals)
	}
	if len(errs) != 2 || errs[0].Error() != "a" {
		t.Fatalf("errs = %v", errs)
	}
}

func TestThenShortCircuits(t *testing.T) {
	called := false
	fail := Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errors.New("stop")) })
	next := Stage[int, string](func(context.Context, int) Result[string] {
		called = true
		return Ok("x")
	})
	r := Then(fail, next)(context.Background(), 1)
	if r.IsOk() || called {
		t.Fatal("second stage must not run after a failure")
	}

	str := Stage[int, string](func(_ context.Context, n int) Result[string] { return Ok(strconv.Itoa(n)) })
	if v, _ := Then(double, str)(context.Background(), 21).Unwrap(); v != "42" {
		t.Fatalf("got %q", v)
	}
}

func TestTapPassesValueThrough(t *testing.T) {
	var seen []int
	tap := Tap(func(_ context.Context, n int) { seen = append(seen, n) })
	v, err := Then(Then(tap, double), tap)(context.Background(), 3).Unwrap()
	if err != nil || v != 6 {
		t.Fatalf("then = %d, %v", v, err)
	}
	if fmt.Sprint(seen) != "[3 6]" {
		t.Fatalf("tap saw %v", seen)
	}
}

func TestTracedPassesThrough(t *testing.T) {
	s := Traced("double", double)
	if v, _ := s(context.Background(), 4).Unwrap(); v != 8 {
		t.Fatalf("got %d", v)
	}
	f := Traced("fail", Stage[int, int](func(context.Context, int) Result[int] { return Errf[int]("nope") }))
	if f(context.Background(), 1).IsOk() {
		t.Fatal("expected error")
	}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		opts      RetryOpts
		wantOK    bool
		wantCalls int
	}{
		{"first try", 0, RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, true, 1},
		{"recovers", 2, RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, true, 3},
		{"exhausted", 5, RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, false, 2},
		{"not retryable", 5, RetryOpts{MaxAttempts: 4, InitialWait: time.Millisecond,
			Retryable: func(error) bool { return false }}, false, 1},
		{"zero attempts runs once", 0, RetryOpts{}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			r := Retry(context.Background(), tt.opts, func(context.Context) Result[int] {
				calls++
				if calls <= tt.failFirst {
					return Errf[int]("attempt %d", calls)
				}
				return Ok(calls)
			})
			if r.IsOk() != tt.wantOK {
				t.Fatalf("ok = %v, want %v", r.IsOk(), tt.wantOK)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(context.Context) Result[int] {
		return Errf[int]("down")
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSliceHelpers(t *testing.T) {
	nums := []int{1, 2, 3, 4, 5}
	if got := Map(nums, func(n int) int { return n * n }); got[4] != 25 {
		t.Fatalf("map = %v", got)
	}
	if got := Filter(nums, func(n int) bool { return n%2 == 0 }); len(got) != 2 {
		t.Fatalf("filter = %v", got)
	}
	groups := GroupBy(nums, func(n int) bool { return n > 2 })
	if len(groups[true]) != 3 || len(groups[false]) != 2 {
		t.Fatalf("groupby = %v", groups)
	}
	if got := Chunk(nums, 2); len(got) != 3 || len(got[2]) != 1 {
		t.Fatalf("chunk = %v", got)
	}
	if got := Chunk(nums, 0); len(got) != 1 {
		t.Fatalf("chunk(0) = %v", got)
	}
	keys := SortedKeys(map[string]int{"b": 1, "a": 2, "c": 3})
	if fmt.Sprint(keys) != "[a b c]" {
		t.Fatalf("keys = %v", keys)
	}
}
