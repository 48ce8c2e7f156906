// Package process flattens the raw KLM and Schiphol payloads into the
// processed CSV tables the knowledge graph builder reads.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"

	"github.com/skylane-labs/hubgraph/engine/collector"
	"github.com/skylane-labs/hubgraph/engine/collector/klm"
	"github.com/skylane-labs/hubgraph/engine/collector/schiphol"
	"github.com/skylane-labs/hubgraph/engine/domain"
	"github.com/skylane-labs/hubgraph/pkg/metrics"
)

// Sink receives every written table, e.g. a SQL database for ad-hoc
// queries. Tables are replaced on each write.
type Sink interface {
	WriteTable(ctx context.Context, name string, header []string, rows [][]string) error
}

// Processor reads raw files from Raw and writes tables to OutDir.
type Processor struct {
	Raw     *collector.RawStore
	OutDir  string
	HomeHub string
	Sink    Sink
	Metrics *metrics.Registry
	Log     *slog.Logger
}

func New(raw *collector.RawStore, outDir, homeHub string) *Processor {
	return &Processor{Raw: raw, OutDir: outDir, HomeHub: homeHub, Log: slog.Default()}
}

// Result lists the written tables and row counts.
type Result struct {
	Files   []string
	Counts  map[string]int
	Skipped int
}

func (r *Result) add(path string, name string, n int) {
	if r.Counts == nil {
		r.Counts = map[string]int{}
	}
	r.Files = append(r.Files, path)
	r.Counts[name] = n
}

// Path returns the location of a processed table.
func (p *Processor) Path(table string) string {
	return filepath.Join(p.OutDir, table+".csv")
}

func (p *Processor) write(ctx context.Context, res *Result, t Table) error {
	path, err := WriteCSV(p.OutDir, t)
	if err != nil {
		return err
	}
	res.add(path, t.Name, len(t.Rows))
	if p.Metrics != nil {
		p.Metrics.Counter(metrics.WithLabels("hubgraph_records_processed_total", "table", t.Name),
			"Rows written to processed tables.").Add(int64(len(t.Rows)))
	}
	if p.Sink != nil {
		if err := p.Sink.WriteTable(ctx, t.Name, t.Header, t.Rows); err != nil {
			p.Log.Warn("process: table sink failed", "table", t.Name, "err", err)
		}
	}
	return nil
}

func (p *Processor) countSkipped(source string, n int) {
	if p.Metrics != nil && n > 0 {
		p.Metrics.Counter(metrics.WithLabels("hubgraph_records_skipped_total", "source", source),
			"Malformed rows skipped during processing.").Add(int64(n))
	}
}

// KLM processes the newest klm_flights file into flights.csv and
// airports.csv.
func (p *Processor) KLM(ctx context.Context) (Result, error) {
	var res Result
	var snap struct {
		OperationalFlights []klm.OperationalFlight `json:"operationalFlights"`
	}
	path, err := p.Raw.LoadLatest(klm.RawName, &snap)
	if err != nil {
		return res, err
	}
	flights, airports, skipped := FlattenKLM(snap.OperationalFlights, p.Log)
	res.Skipped = skipped
	p.countSkipped("klm", skipped)

	if err := p.write(ctx, &res, FlightTable(KLMFlightsTable, flights)); err != nil {
		return res, err
	}
	if err := p.write(ctx, &res, AirportTable(airports)); err != nil {
		return res, err
	}
	p.Log.Info("process: klm done", "raw", path, "flights", len(flights), "airports", len(airports), "skipped", skipped)
	return res, nil
}

// Schiphol processes the newest schiphol_* files. Reference lists that are
// missing are logged and treated as empty; missing flights fail the step.
func (p *Processor) Schiphol(ctx context.Context) (Result, error) {
	var res Result

	var fl struct {
		Flights []schiphol.Flight `json:"flights"`
	}
	if _, err := p.Raw.LoadLatest(schiphol.Flights.RawName, &fl); err != nil {
		return res, err
	}
	flights, skipped := FlattenSchiphol(fl.Flights, p.HomeHub, p.Log)

	var ds struct {
		Destinations []schiphol.Destination `json:"destinations"`
	}
	p.loadOptional(schiphol.Destinations.RawName, &ds)
	dests, n := MapDestinations(ds.Destinations)
	skipped += n

	var as struct {
		Airlines []schiphol.Airline `json:"airlines"`
	}
	p.loadOptional(schiphol.Airlines.RawName, &as)
	airlines, n := MapAirlines(as.Airlines)
	skipped += n

	var ts struct {
		AircraftTypes []schiphol.AircraftType `json:"aircraftTypes"`
	}
	p.loadOptional(schiphol.AircraftTypes.RawName, &ts)
	aircraft := MapAircraftTypes(ts.AircraftTypes)

	res.Skipped = skipped
	p.countSkipped("schiphol", skipped)

	home := domain.NormalizeCode(p.HomeHub)
	for _, t := range []Table{
		FlightTable(SchipholFlightsTable, flights),
		DestinationTable(dests),
		AirlineTable(airlines),
		AircraftTable(aircraft),
		EnrichedTable(flights, home, dests, airlines, aircraft),
	} {
		if err := p.write(ctx, &res, t); err != nil {
			return res, err
		}
	}
	p.Log.Info("process: schiphol done", "flights", len(flights), "destinations", len(dests),
		"airlines", len(airlines), "aircraft_types", len(aircraft), "skipped", skipped)
	return res, nil
}

func (p *Processor) loadOptional(name string, v any) {
	if _, err := p.Raw.LoadLatest(name, v); err != nil {
		p.Log.Warn("process: optional raw file unavailable", "name", name, "err", err)
	}
}

// All runs both processors. It fails only when neither source produced
// output.
func (p *Processor) All(ctx context.Context) (Result, error) {
	var total Result
	var errs []error
	for _, step := range []func(context.Context) (Result, error){p.KLM, p.Schiphol} {
		r, err := step(ctx)
		if err != nil {
			errs = append(errs, err)
			p.Log.Warn("process: source skipped", "err", err)
			continue
		}
		total.Files = append(total.Files, r.Files...)
		if total.Counts == nil {
			total.Counts = map[string]int{}
		}
		maps.Copy(total.Counts, r.Counts)
		total.Skipped += r.Skipped
	}
	if len(errs) == 2 {
		return total, fmt.Errorf("process: no source processed: %w", errors.Join(errs...))
	}
	return total, nil
}
