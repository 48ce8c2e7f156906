// Package report turns the knowledge graph and the delay dataset into the
// research outputs: RQ3 correlations, summary statistics, the hub ranking,
// per-destination delay figures and a PDF of charts.
package report

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/knakk/rdf"

	"github.com/skylane-labs/hubgraph/engine/domain"
	"github.com/skylane-labs/hubgraph/engine/kg"
	"github.com/skylane-labs/hubgraph/pkg/fn"
)

// Output file names.
const (
	CorrelationFile  = "correlation.txt"
	SummaryFile      = "summary.csv"
	RankingFile      = "hub_ranking.csv"
	DestinationsFile = "destination_delays.csv"
	ChartsFile       = "charts.pdf"
)

// AirportRow is the per-airport view of the graph the report works from.
type AirportRow struct {
	Code            string
	Name            string
	HubScore        float64
	RouteCount      int
	DelayRate       float64
	PassengerVolume int64
	Potential       bool
}

// Dataset is everything a report is computed from.
type Dataset struct {
	Airports []AirportRow
	Delay    []domain.DelayRecord
	Flights  []domain.Flight
}

// AirportsFromGraph reads one row per klm:Airport with a code.
func AirportsFromGraph(g *kg.Graph) []AirportRow {
	str := func(s rdf.Term, p rdf.Term) string {
		if o, ok := g.Object(s, p); ok {
			return o.String()
		}
		return ""
	}
	num := func(s rdf.Term, p rdf.Term) float64 {
		if o, ok := g.Object(s, p); ok {
			if v, ok := kg.Numeric(o); ok {
				return v
			}
		}
		return 0
	}
	var out []AirportRow
	for _, a := range g.InstancesOf(kg.ClassAirport) {
		code := str(a, kg.Code)
		if code == "" {
			continue
		}
		out = append(out, AirportRow{
			Code:            code,
			Name:            str(a, kg.Name),
			HubScore:        num(a, kg.HubPotentialScore),
			RouteCount:      int(num(a, kg.RouteCount)),
			DelayRate:       num(a, kg.DelayRate),
			PassengerVolume: int64(num(a, kg.PassengerVolume)),
			Potential:       g.Has(a, kg.RDFType, kg.ClassPotentialHubAirport),
		})
	}
	return out
}

// HubRanking sorts airports by hub score descending, then code.
func HubRanking(rows []AirportRow) []AirportRow {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b AirportRow) int {
		if c := cmp.Compare(b.HubScore, a.HubScore); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out
}

// DestinationDelay aggregates departures from the home hub per destination.
type DestinationDelay struct {
	Destination string
	Flights     int
	Delayed     int
	AvgDelay    float64
	MedianDelay float64
	P95Delay    float64
}

// DestinationDelays groups flights leaving home by destination, sorted by
// flight count descending, then code.
func DestinationDelays(flights []domain.Flight, home string) []DestinationDelay {
	byDest := fn.GroupBy(fn.Filter(flights, func(f domain.Flight) bool {
		return f.Origin == home && f.Destination != "" && f.Destination != home
	}), func(f domain.Flight) string { return f.Destination })

	out := make([]DestinationDelay, 0, len(byDest))
	for _, dest := range fn.SortedKeys(byDest) {
		fs := byDest[dest]
		delays := fn.Map(fs, func(f domain.Flight) float64 { return f.DelayMinutes })
		d := DestinationDelay{
			Destination: dest,
			Flights:     len(fs),
			Delayed:     len(fn.Filter(fs, func(f domain.Flight) bool { return f.Delayed })),
			AvgDelay:    Describe(dest, delays).Mean,
			MedianDelay: Quantile(0.5, delays),
			P95Delay:    Quantile(0.95, delays),
		}
		out = append(out, d)
	}
	slices.SortStableFunc(out, func(a, b DestinationDelay) int { return cmp.Compare(b.Flights, a.Flights) })
	return out
}

// RQ3 is the correlation section of the report.
type RQ3 struct {
	N            int
	Flights      Correlation
	Passengers   Correlation
	HubsVsOthers TTest
}

// AnalyzeRQ3 correlates annual flights and passengers with ATC delay and
// compares hubs against regional airports.
func AnalyzeRQ3(recs []domain.DelayRecord) RQ3 {
	flights := fn.Map(recs, func(r domain.DelayRecord) float64 { return float64(r.Flights) })
	pax := fn.Map(recs, func(r domain.DelayRecord) float64 { return float64(r.Passengers) })
	delay := fn.Map(recs, func(r domain.DelayRecord) float64 { return r.AvgATCDelay })

	var hubs, others []float64
	for _, r := range recs {
		if kg.IsRQ3Hub(r.Passengers, r.RunwayLengthFt) || strings.EqualFold(r.HubStatus, "hub") {
			hubs = append(hubs, r.AvgATCDelay)
		} else {
			others = append(others, r.AvgATCDelay)
		}
	}
	return RQ3{
		N:            len(recs),
		Flights:      Correlate("annual flights", "average ATC delay", flights, delay),
		Passengers:   Correlate("annual passengers", "average ATC delay", pax, delay),
		HubsVsOthers: Welch(hubs, others),
	}
}

// WriteText renders the correlation report.
func (r RQ3) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "RQ3 correlation analysis (n = %d airports)\n", r.N)
	for _, c := range []Correlation{r.Flights, r.Passengers} {
		fmt.Fprintf(&b, "\n%s vs %s\n", capitalize(c.X), c.Y)
		fmt.Fprintf(&b, "  Pearson r = %s (p = %s)\n", fixed(c.Pearson, 2), fixed(c.PearsonP, 3))
		fmt.Fprintf(&b, "  Spearman rho = %s (p = %s)\n", fixed(c.Spearman, 2), fixed(c.SpearmanP, 3))
		if c.Note != "" {
			fmt.Fprintf(&b, "  Note: %s\n", c.Note)
		}
	}
	t := r.HubsVsOthers
	fmt.Fprintf(&b, "\nHub vs regional average ATC delay (Welch t-test)\n")
	fmt.Fprintf(&b, "  hubs n = %d mean = %s, regional n = %d mean = %s\n", t.NA, fixed(t.MeanA, 2), t.NB, fixed(t.MeanB, 2))
	fmt.Fprintf(&b, "  t = %s (df = %s, p = %s)\n", fixed(t.T, 2), fixed(t.DF, 1), fixed(t.P, 3))
	if t.Note != "" {
		fmt.Fprintf(&b, "  Note: %s\n", t.Note)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// fixed formats v with prec decimals; NaN prints as "NaN".
func fixed(v float64, prec int) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// Summaries describes delay minutes, delay rate, passenger volume and hub
// score.
func Summaries(ds Dataset) []Summary {
	return []Summary{
		Describe("delay_minutes", fn.Map(ds.Flights, func(f domain.Flight) float64 { return f.DelayMinutes })),
		Describe("delay_rate", fn.Map(ds.Airports, func(a AirportRow) float64 { return a.DelayRate })),
		Describe("passenger_volume", fn.Map(ds.Airports, func(a AirportRow) float64 { return float64(a.PassengerVolume) })),
		Describe("hub_score", fn.Map(ds.Airports, func(a AirportRow) float64 { return a.HubScore })),
	}
}

// Generator writes every report file into OutDir.
type Generator struct {
	OutDir  string
	HomeHub string
	Log     *slog.Logger
}

func NewGenerator(outDir, homeHub string) *Generator {
	return &Generator{OutDir: outDir, HomeHub: homeHub, Log: slog.Default()}
}

// Generate writes all outputs. A failing file is logged and the rest are
// still written; the joined error reports every failure.
func (gen *Generator) Generate(ds Dataset) ([]string, error) {
	if err := os.MkdirAll(gen.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("report: mkdir %s: %w", gen.OutDir, err)
	}
	rq3 := AnalyzeRQ3(ds.Delay)
	ranking := HubRanking(ds.Airports)

	var (
		files []string
		errs  []error
	)
	for _, out := range []struct {
		name  string
		write func(io.Writer) error
	}{
		{CorrelationFile, rq3.WriteText},
		{SummaryFile, func(w io.Writer) error { return writeSummaries(w, Summaries(ds)) }},
		{RankingFile, func(w io.Writer) error { return writeRanking(w, ranking) }},
		{DestinationsFile, func(w io.Writer) error {
			return writeDestinations(w, DestinationDelays(ds.Flights, gen.HomeHub))
		}},
		{ChartsFile, func(w io.Writer) error { return WriteCharts(w, ds, ranking) }},
	} {
		path := filepath.Join(gen.OutDir, out.name)
		if err := writeFile(path, out.write); err != nil {
			gen.Log.Warn("report: write failed", "file", out.name, "err", err)
			errs = append(errs, err)
			continue
		}
		files = append(files, path)
	}
	gen.Log.Info("report: written", "dir", gen.OutDir, "files", len(files),
		"pearson_flights", rq3.Flights.Pearson, "pearson_passengers", rq3.Passengers.Pearson)
	return files, errors.Join(errs...)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func writeSummaries(w io.Writer, sums []Summary) error {
	rows := fn.Map(sums, func(s Summary) []string {
		return []string{s.Name, strconv.Itoa(s.Count), fixed(s.Mean, 4), fixed(s.Std, 4), fixed(s.Min, 4), fixed(s.Max, 4)}
	})
	return writeCSV(w, []string{"metric", "count", "mean", "std", "min", "max"}, rows)
}

func writeRanking(w io.Writer, ranking []AirportRow) error {
	rows := make([][]string, len(ranking))
	for i, a := range ranking {
		rows[i] = []string{
			strconv.Itoa(i + 1), a.Code, a.Name,
			fixed(a.HubScore, 4), strconv.Itoa(a.RouteCount), fixed(a.DelayRate, 4),
			strconv.FormatInt(a.PassengerVolume, 10), strconv.FormatBool(a.Potential),
		}
	}
	return writeCSV(w, []string{"rank", "code", "name", "hub_score", "route_count", "delay_rate", "passenger_volume", "potential_hub"}, rows)
}

func writeDestinations(w io.Writer, dests []DestinationDelay) error {
	rows := fn.Map(dests, func(d DestinationDelay) []string {
		return []string{d.Destination, strconv.Itoa(d.Flights), strconv.Itoa(d.Delayed),
			fixed(d.AvgDelay, 2), fixed(d.MedianDelay, 2), fixed(d.P95Delay, 2)}
	})
	return writeCSV(w, []string{"destination", "flights", "delayed", "avg_delay", "median_delay", "p95_delay"}, rows)
}
