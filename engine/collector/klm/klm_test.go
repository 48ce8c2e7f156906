package klm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skylane-labs/hubgraph/engine/collector"
	"github.com/skylane-labs/hubgraph/pkg/fn"
)

func testConfig(base string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = base
	cfg.APIKey = "k"
	cfg.Date = time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	cfg.RateLimit = 0
	return cfg
}

func fastRetry(c *Collector) {
	c.Fetcher().Retry = fn.RetryOpts{MaxAttempts: 1, Retryable: collector.Retryable}
}

// pagedServer serves totalPages pages of two flights each.
func pagedServer(t *testing.T, totalPages int, calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != flightsPath {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("api key header missing")
		}
		q := r.URL.Query()
		if q.Get("carrierCode") != "KL" || q.Get("departureAirportCode") != "AMS" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("departureDateTimeFrom") != "2024-05-01T00:00:00Z" {
			t.Errorf("from = %s", q.Get("departureDateTimeFrom"))
		}
		calls.Add(1)
		page, _ := strconv.Atoi(q.Get("pageNumber"))
		fmt.Fprintf(w, `{"operationalFlights":[{"id":"p%d-a"},{"id":"p%d-b"}],"page":{"pageNumber":%d,"totalPages":%d}}`,
			page, page, page, totalPages)
	}))
}

func TestCollectFollowsTotalPages(t *testing.T) {
	var calls atomic.Int32
	srv := pagedServer(t, 3, &calls)
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, nil)
	fastRetry(c)
	flights, err := c.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(flights) != 6 || calls.Load() != 3 {
		t.Fatalf("flights=%d calls=%d", len(flights), calls.Load())
	}
}

func TestCollectStopsAtMaxPages(t *testing.T) {
	var calls atomic.Int32
	srv := pagedServer(t, 50, &calls)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxPages = 2
	c := New(cfg, nil, nil)
	fastRetry(c)
	flights, err := c.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(flights) != 4 || calls.Load() != 2 {
		t.Fatalf("flights=%d calls=%d", len(flights), calls.Load())
	}
}

func TestCollectStopsOnEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"operationalFlights":[],"page":{"totalPages":9}}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, nil)
	fastRetry(c)
	flights, err := c.Collect(context.Background())
	if err != nil || len(flights) != 0 {
		t.Fatalf("flights=%d err=%v", len(flights), err)
	}
}

func TestCollectAllFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, nil)
	fastRetry(c)
	if _, err := c.Collect(context.Background()); err == nil {
		t.Fatal("expected error when every page fails")
	}
}

func TestBearerToken(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case tokenPath:
			tokenCalls.Add(1)
			user, pass, ok := r.BasicAuth()
			if !ok || user != "id" || pass != "secret" {
				t.Errorf("basic auth = %s/%s", user, pass)
			}
			fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
		case flightsPath:
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("authorization = %q", r.Header.Get("Authorization"))
			}
			fmt.Fprint(w, `{"operationalFlights":[{"id":"x"}],"page":{"totalPages":1}}`)
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ClientID, cfg.ClientSecret = "id", "secret"
	c := New(cfg, nil, nil)
	fastRetry(c)
	for i := 0; i < 2; i++ {
		if _, err := c.Collect(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("token fetched %d times, want 1", tokenCalls.Load())
	}
}

func TestCollectAndSave(t *testing.T) {
	var calls atomic.Int32
	srv := pagedServer(t, 1, &calls)
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, nil)
	fastRetry(c)
	store := collector.NewRawStore(t.TempDir())
	path, n, err := c.CollectAndSave(context.Background(), store)
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}

	var snap struct {
		OperationalFlights []OperationalFlight `json:"operationalFlights"`
	}
	if err := collector.Load(path, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.OperationalFlights[0].ID != "p0-a" {
		t.Fatalf("saved %+v", snap.OperationalFlights)
	}
}

func TestDayWindows(t *testing.T) {
	cfg := Config{Days: 3, Date: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	got := cfg.DayWindows()
	want := []string{"2024-02-28", "2024-02-29", "2024-03-01"}
	if len(got) != 3 {
		t.Fatalf("windows = %v", got)
	}
	for i, w := range got {
		if w[0] != want[i]+"T00:00:00Z" || w[1] != want[i]+"T23:59:59Z" {
			t.Errorf("window %d = %v", i, w)
		}
	}
}

func TestOperationalFlightDecode(t *testing.T) {
	raw := `{"id":"20240501+KL+1001","flightNumber":1001,"flightScheduleDate":"2024-05-01",
		"airline":{"code":"KL","name":"KLM"},"route":["AMS","LHR"],
		"flightLegs":[{"legStatusPublic":"ARRIVED",
			"departureInformation":{"airport":{"code":"AMS","name":"Schiphol","city":{"name":"Amsterdam","country":{"name":"Netherlands"}},"location":{"latitude":52.3,"longitude":4.76}},"times":{"scheduled":"2024-05-01T10:00:00.000+02:00"}},
			"arrivalInformation":{"airport":{"code":"LHR"},"times":{"scheduled":"2024-05-01T10:20:00.000+01:00","estimated":{"value":"2024-05-01T10:45:00.000+01:00"}}},
			"aircraft":{"typeCode":"73H","typeName":"Boeing 737-800"}}]}`
	var f OperationalFlight
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatal(err)
	}
	leg := f.FlightLegs[0]
	if leg.DepartureInformation.Airport.City.Country.Name != "Netherlands" {
		t.Fatalf("country = %q", leg.DepartureInformation.Airport.City.Country.Name)
	}
	if leg.DepartureInformation.Airport.Location.Latitude == nil || leg.ArrivalInformation.Airport.Location.Latitude != nil {
		t.Fatal("location presence not preserved")
	}
	if leg.ArrivalInformation.Times.Estimated.Value == "" {
		t.Fatal("estimated time lost")
	}
}
