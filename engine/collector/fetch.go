package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/skylane-labs/hubgraph/pkg/cache"
	"github.com/skylane-labs/hubgraph/pkg/fn"
	"github.com/skylane-labs/hubgraph/pkg/resilience"
)

const userAgent = "hubgraph-collector/1.0 (academic airline network research)"

// StatusError is a non-2xx upstream response.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.Code, e.URL, e.Body)
}

// Retryable retries throttling, server errors and transport failures.
// Other 4xx responses will not change on a second attempt.
func Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, resilience.ErrCircuitOpen)
}

// NewHTTPClient returns a client with a timeout and an otelhttp transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Fetcher performs GET requests against one upstream API.
type Fetcher struct {
	Source  string
	Client  *http.Client
	Limiter *resilience.Limiter
	Breaker *resilience.Breaker
	Cache   cache.Cache
	Retry   fn.RetryOpts
	Log     *slog.Logger
}

// NewFetcher wires a fetcher with a 30s client, the given limiter and
// default retry/breaker settings. A nil cache disables caching.
func NewFetcher(source string, limiter resilience.LimiterOpts, c cache.Cache) *Fetcher {
	if c == nil {
		c = cache.Nop{}
	}
	retry := fn.DefaultRetry
	retry.Retryable = Retryable
	return &Fetcher{
		Source:  source,
		Client:  NewHTTPClient(30 * time.Second),
		Limiter: resilience.NewLimiter(limiter),
		Breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		Cache:   c,
		Retry:   retry,
		Log:     slog.Default(),
	}
}

// GetJSON fetches url with the given headers and decodes the body into v.
// A cached body is used when present; a fresh body is cached after a
// successful decode.
func (f *Fetcher) GetJSON(ctx context.Context, url string, header http.Header, v any) error {
	key := cache.Key(f.Source, url)
	if body, hit, err := f.Cache.Get(ctx, key); err != nil {
		f.Log.Warn("collector: cache get failed", "source", f.Source, "err", err)
	} else if hit {
		if err := json.Unmarshal(body, v); err == nil {
			f.Log.Debug("collector: cache hit", "source", f.Source, "url", url)
			return nil
		}
	}

	result := fn.Retry(ctx, f.Retry, func(ctx context.Context) fn.Result[[]byte] {
		return resilience.CallResult(f.Breaker, ctx, func(ctx context.Context) fn.Result[[]byte] {
			if err := f.Limiter.Wait(ctx); err != nil {
				return fn.Err[[]byte](err)
			}
			return f.doGet(ctx, url, header)
		})
	})
	body, err := result.Unwrap()
	if err != nil {
		return fmt.Errorf("%s: %w", f.Source, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: decode %s: %w", f.Source, url, err)
	}
	if err := f.Cache.Set(ctx, key, body); err != nil {
		f.Log.Warn("collector: cache set failed", "source", f.Source, "err", err)
	}
	return nil
}

func (f *Fetcher) doGet(ctx context.Context, url string, header http.Header) fn.Result[[]byte] {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fn.Err[[]byte](err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return fn.Err[[]byte](err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fn.Err[[]byte](err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return fn.Err[[]byte](&StatusError{URL: url, Code: resp.StatusCode, Body: snippet})
	}
	return fn.Ok(body)
}
