package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skylane-labs/hubgraph/engine/domain"
	"github.com/skylane-labs/hubgraph/pkg/cache"
	"github.com/skylane-labs/hubgraph/pkg/fn"
	"github.com/skylane-labs/hubgraph/pkg/resilience"
)

func TestRawStoreSaveAndLatest(t *testing.T) {
	dir := t.TempDir()
	s := NewRawStore(dir)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	p1, err := s.Save("klm_flights", map[string]int{"n": 1})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p1) != "klm_flights_20240501_093000.json" {
		t.Fatalf("name = %s", filepath.Base(p1))
	}

	s.now = func() time.Time { return time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC) }
	p2, _ := s.Save("klm_flights", map[string]int{"n": 2})
	old := time.Now().Add(-time.Hour)
	os.Chtimes(p1, old, old)

	// A different prefix sharing the start of the name must not match.
	os.WriteFile(filepath.Join(dir, "klm_flights_extra_20240601_000000.json"), []byte("{}"), 0o644)

	got, err := s.Latest("klm_flights")
	if err != nil {
		t.Fatal(err)
	}
	if got != p2 {
		t.Fatalf("latest = %s, want %s", got, p2)
	}

	var v map[string]int
	if _, err := s.LoadLatest("klm_flights", &v); err != nil || v["n"] != 2 {
		t.Fatalf("load latest = %v, %v", v, err)
	}
}

func TestRawStoreLatestMissing(t *testing.T) {
	s := NewRawStore(filepath.Join(t.TempDir(), "nope"))
	if _, err := s.Latest("schiphol_flights"); !errors.Is(err, domain.ErrNoRawData) {
		t.Fatalf("err = %v", err)
	}
	s = NewRawStore(t.TempDir())
	if _, err := s.Latest("schiphol_flights"); !errors.Is(err, domain.ErrNoRawData) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadBadJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.json")
	os.WriteFile(p, []byte("{"), 0o644)
	var v any
	if err := Load(p, &v); err == nil {
		t.Fatal("expected decode error")
	}
}

func testFetcher(c cache.Cache) *Fetcher {
	f := NewFetcher("test", resilience.LimiterOpts{}, c)
	f.Retry = fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, Retryable: Retryable}
	return f
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("app_id") != "abc" {
			t.Errorf("missing header")
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	f := testFetcher(nil)
	var v struct{ OK bool }
	h := http.Header{}
	h.Set("app_id", "abc")
	if err := f.GetJSON(context.Background(), srv.URL, h, &v); err != nil {
		t.Fatal(err)
	}
	if !v.OK || calls.Load() != 3 {
		t.Fatalf("ok=%v calls=%d", v.OK, calls.Load())
	}
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	var v any
	err := testFetcher(nil).GetJSON(context.Background(), srv.URL, nil, &v)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestGetJSONUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"n":7}`)
	}))
	defer srv.Close()

	f := testFetcher(cache.NewMemory(time.Minute))
	for i := 0; i < 3; i++ {
		var v struct{ N int }
		if err := f.GetJSON(context.Background(), srv.URL+"/flights?page=0", nil, &v); err != nil {
			t.Fatal(err)
		}
		if v.N != 7 {
			t.Fatalf("n = %d", v.N)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream called %d times, want 1", calls.Load())
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 503}, true},
		{&StatusError{Code: 404}, false},
		{fmt.Errorf("wrap: %w", &StatusError{Code: 500}), true},
		{errors.New("connection reset"), true},
		{context.Canceled, false},
		{resilience.ErrCircuitOpen, false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
