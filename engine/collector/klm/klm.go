// Package klm collects operational flights from the KLM Flight Status API.
package klm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/skylane-labs/hubgraph/engine/collector"
	"github.com/skylane-labs/hubgraph/pkg/cache"
	"github.com/skylane-labs/hubgraph/pkg/resilience"
)

const (
	flightsPath = "/opendata/flightstatus/v4/flights"
	tokenPath   = "/cid/token"

	// RawName is the prefix of the saved flight status files.
	RawName = "klm_flights"
)

// Collector pages through the flight status endpoint.
type Collector struct {
	cfg     Config
	fetcher *collector.Fetcher
	log     *slog.Logger

	token       string
	tokenExpiry time.Time
}

// New creates a Collector. A nil cache disables response caching.
func New(cfg Config, c cache.Cache, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	f := collector.NewFetcher("klm", resilience.LimiterOpts{Interval: cfg.RateLimit, Burst: 1}, c)
	f.Log = log
	return &Collector{cfg: cfg, fetcher: f, log: log}
}

// Fetcher exposes the underlying fetcher so callers can tune retries.
func (c *Collector) Fetcher() *collector.Fetcher { return c.fetcher }

// Collect fetches every configured day and returns the raw flights. Pages
// that fail after retries are logged and skipped; the flights gathered so
// far are returned with a nil error unless nothing at all was fetched.
func (c *Collector) Collect(ctx context.Context) ([]json.RawMessage, error) {
	header := http.Header{}
	header.Set("x-api-key", c.cfg.APIKey)
	if c.cfg.ClientID != "" && c.cfg.ClientSecret != "" {
		tok, err := c.bearerToken(ctx)
		if err != nil {
			c.log.Warn("klm: bearer token unavailable, using api key only", "err", err)
		} else {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	var (
		all      []json.RawMessage
		failures int
		lastErr  error
	)
	for _, w := range c.cfg.DayWindows() {
		for page := 0; ; page++ {
			if err := ctx.Err(); err != nil {
				return all, err
			}
			if c.cfg.MaxPages > 0 && page >= c.cfg.MaxPages {
				c.log.Info("klm: max pages reached", "from", w[0], "pages", page)
				break
			}

			var p flightsPage
			if err := c.fetcher.GetJSON(ctx, c.pageURL(w, page), header, &p); err != nil {
				failures++
				lastErr = err
				c.log.Warn("klm: page failed", "from", w[0], "page", page, "err", err)
				break
			}
			all = append(all, p.OperationalFlights...)
			c.log.Debug("klm: page fetched", "from", w[0], "page", page, "flights", len(p.OperationalFlights))

			if len(p.OperationalFlights) == 0 || page+1 >= p.Page.TotalPages {
				break
			}
		}
	}
	if len(all) == 0 && failures > 0 {
		return nil, fmt.Errorf("klm: no flights collected: %w", lastErr)
	}
	c.log.Info("klm: collected", "flights", len(all), "failed_days", failures)
	return all, nil
}

// CollectAndSave runs Collect and saves the result as klm_flights_{ts}.json.
func (c *Collector) CollectAndSave(ctx context.Context, store *collector.RawStore) (string, int, error) {
	flights, err := c.Collect(ctx)
	if err != nil {
		return "", 0, err
	}
	if flights == nil {
		flights = []json.RawMessage{}
	}
	path, err := store.Save(RawName, Snapshot{OperationalFlights: flights})
	if err != nil {
		return "", 0, err
	}
	return path, len(flights), nil
}

func (c *Collector) pageURL(w [2]string, page int) string {
	q := neturl.Values{}
	q.Set("carrierCode", c.cfg.Carrier)
	q.Set("departureDateTimeFrom", w[0])
	q.Set("departureDateTimeTo", w[1])
	if c.cfg.Departure != "" {
		q.Set("departureAirportCode", c.cfg.Departure)
	}
	q.Set("pageNumber", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
	return c.cfg.BaseURL + flightsPath + "?" + q.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// bearerToken runs the client credentials flow and caches the token until
// a minute before it expires.
func (c *Collector) bearerToken(ctx context.Context) (string, error) {
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := neturl.Values{}
	form.Set("grant_type", "client_credentials")
	url := c.cfg.BaseURL + tokenPath + "?client_id=" + neturl.QueryEscape(c.cfg.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.fetcher.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("klm: token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &collector.StatusError{URL: url, Code: resp.StatusCode}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("klm: decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("klm: empty access token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 3600
	}
	c.token = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn-60) * time.Second)
	return c.token, nil
}
