// Package schiphol collects flights and reference lists from the Schiphol
// Public Flight API.
package schiphol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"

	"github.com/skylane-labs/hubgraph/engine/collector"
	"github.com/skylane-labs/hubgraph/pkg/cache"
	"github.com/skylane-labs/hubgraph/pkg/resilience"
)

// Resource is one paged list endpoint and the raw file it is saved to.
type Resource struct {
	Path    string
	Key     string // JSON array field in the response
	RawName string
}

var (
	Flights       = Resource{"/public-flights/flights", "flights", "schiphol_flights"}
	Destinations  = Resource{"/public-flights/destinations", "destinations", "schiphol_destinations"}
	Airlines      = Resource{"/public-flights/airlines", "airlines", "schiphol_airlines"}
	AircraftTypes = Resource{"/public-flights/aircrafttypes", "aircraftTypes", "schiphol_aircrafttypes"}
)

// Resources lists everything CollectAll fetches, in order.
var Resources = []Resource{Flights, Destinations, Airlines, AircraftTypes}

// Collector fetches Schiphol resources page by page.
type Collector struct {
	cfg     Config
	fetcher *collector.Fetcher
	log     *slog.Logger
}

// New creates a Collector. A nil cache disables response caching.
func New(cfg Config, c cache.Cache, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	f := collector.NewFetcher("schiphol", resilience.PerMinute(cfg.CallsPerMinute), c)
	f.Log = log
	return &Collector{cfg: cfg, fetcher: f, log: log}
}

func (c *Collector) Fetcher() *collector.Fetcher { return c.fetcher }

func (c *Collector) header() http.Header {
	h := http.Header{}
	h.Set("ResourceVersion", "v4")
	h.Set("app_id", c.cfg.AppID)
	h.Set("app_key", c.cfg.AppKey)
	h.Set("Accept", "application/json")
	return h
}

func (c *Collector) params(r Resource, page int) neturl.Values {
	q := neturl.Values{}
	q.Set("page", strconv.Itoa(page))
	if r.Path == Flights.Path {
		q.Set("sort", "+scheduleTime")
		q.Set("includedelays", "false")
		if c.cfg.Direction != "" {
			q.Set("flightDirection", c.cfg.Direction)
		}
	}
	return q
}

// Fetch pages through r until an empty page, a failed page or MaxPages.
// A failure on the first page is returned as an error; later failures end
// paging and keep what was collected.
func (c *Collector) Fetch(ctx context.Context, r Resource) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for page := 0; c.cfg.MaxPages <= 0 || page < c.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		url := c.cfg.BaseURL + r.Path + "?" + c.params(r, page).Encode()

		var body map[string]json.RawMessage
		if err := c.fetcher.GetJSON(ctx, url, c.header(), &body); err != nil {
			if page == 0 {
				return nil, fmt.Errorf("schiphol: %s: %w", r.Key, err)
			}
			c.log.Warn("schiphol: stopping pagination", "resource", r.Key, "page", page, "err", err)
			break
		}
		var batch []json.RawMessage
		if raw, ok := body[r.Key]; ok {
			if err := json.Unmarshal(raw, &batch); err != nil {
				return items, fmt.Errorf("schiphol: decode %s page %d: %w", r.Key, page, err)
			}
		}
		if len(batch) == 0 {
			break
		}
		items = append(items, batch...)
		c.log.Debug("schiphol: page fetched", "resource", r.Key, "page", page, "items", len(batch))
	}
	return items, nil
}

// SaveResult describes one saved resource.
type SaveResult struct {
	Resource Resource
	Path     string
	Count    int
	Err      error
}

// CollectAll fetches every resource and saves it as {RawName}_{ts}.json
// wrapped in {Key: [...]}. A failing resource does not stop the others.
func (c *Collector) CollectAll(ctx context.Context, store *collector.RawStore) []SaveResult {
	out := make([]SaveResult, 0, len(Resources))
	for _, r := range Resources {
		res := SaveResult{Resource: r}
		items, err := c.Fetch(ctx, r)
		if err != nil {
			res.Err = err
			c.log.Warn("schiphol: resource failed", "resource", r.Key, "err", err)
			out = append(out, res)
			continue
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		res.Count = len(items)
		res.Path, res.Err = store.Save(r.RawName, map[string][]json.RawMessage{r.Key: items})
		c.log.Info("schiphol: collected", "resource", r.Key, "items", res.Count, "path", res.Path)
		out = append(out, res)
	}
	return out
}
