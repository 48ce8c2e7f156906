package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane-labs/hubgraph/engine/domain"
	"github.com/skylane-labs/hubgraph/engine/kg"
)

func TestCorrelatePerfectLinear(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{3, 5, 7, 9, 11, 13}
	c := Correlate("x", "y", x, y)
	assert.InDelta(t, 1, c.Pearson, 1e-12)
	assert.InDelta(t, 1, c.Spearman, 1e-12)
	assert.InDelta(t, 0, c.PearsonP, 1e-9)
	assert.Empty(t, c.Note)
}

func TestCorrelateKnownValues(t *testing.T) {
	// Reference values from scipy.stats.pearsonr.
	c := Correlate("x", "y", []float64{1, 2, 3, 4, 5}, []float64{2, 1, 4, 3, 5})
	assert.InDelta(t, 0.8, c.Pearson, 1e-9)
	assert.InDelta(t, 0.1041, c.PearsonP, 1e-3)
	assert.InDelta(t, 0.8, c.Spearman, 1e-9)

	neg := Correlate("x", "y", []float64{1, 2, 3, 4}, []float64{10, 8, 8, 1})
	assert.Less(t, neg.Pearson, 0.0)
	assert.InDelta(t, -0.9487, neg.Spearman, 1e-3)
}

func TestCorrelateDegenerate(t *testing.T) {
	for name, tc := range map[string]struct {
		x, y []float64
		note string
	}{
		"too few":        {[]float64{1, 2}, []float64{3, 4}, "fewer than 3 pairs"},
		"empty":          {nil, nil, "fewer than 3 pairs"},
		"constant x":     {[]float64{2, 2, 2, 2}, []float64{1, 2, 3, 4}, "zero variance"},
		"constant y":     {[]float64{1, 2, 3, 4}, []float64{5, 5, 5, 5}, "zero variance"},
		"length differs": {[]float64{1, 2, 3}, []float64{1, 2}, "fewer than 3 pairs"},
	} {
		t.Run(name, func(t *testing.T) {
			c := Correlate("x", "y", tc.x, tc.y)
			assert.True(t, math.IsNaN(c.Pearson))
			assert.True(t, math.IsNaN(c.SpearmanP))
			assert.Equal(t, tc.note, c.Note)
		})
	}
}

func TestRanks(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, Ranks([]float64{10, 20, 20, 30}))
	assert.Equal(t, []float64{3, 1, 2}, Ranks([]float64{9, 1, 5}))
	assert.Empty(t, Ranks(nil))
}

func TestWelch(t *testing.T) {
	res := Welch([]float64{10, 12, 14}, []float64{1, 2, 3})
	assert.InDelta(t, 12, res.MeanA, 1e-12)
	assert.InDelta(t, 2, res.MeanB, 1e-12)
	assert.Greater(t, res.T, 0.0)
	assert.Less(t, res.P, 0.05)

	short := Welch([]float64{1}, []float64{1, 2})
	assert.Equal(t, "insufficient groups", short.Note)
	assert.True(t, math.IsNaN(short.P))
}

func TestDescribe(t *testing.T) {
	s := Describe("v", []float64{1, 2, 3, 4})
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, 1.2910, s.Std, 1e-4)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)

	one := Describe("v", []float64{7})
	assert.Equal(t, 0.0, one.Std)
	assert.True(t, math.IsNaN(Describe("v", nil).Mean))
}

func TestHubRanking(t *testing.T) {
	got := HubRanking([]AirportRow{
		{Code: "LHR", HubScore: 2.3},
		{Code: "FRA", HubScore: 3.5},
		{Code: "CDG", HubScore: 3.5},
		{Code: "BCN", HubScore: 1},
	})
	var codes []string
	for _, a := range got {
		codes = append(codes, a.Code)
	}
	assert.Equal(t, []string{"CDG", "FRA", "LHR", "BCN"}, codes)
}

func TestDestinationDelays(t *testing.T) {
	flights := []domain.Flight{
		{Origin: "AMS", Destination: "LHR", DelayMinutes: 10, Delayed: true},
		{Origin: "AMS", Destination: "LHR", DelayMinutes: 0},
		{Origin: "AMS", Destination: "LHR", DelayMinutes: 20, Delayed: true},
		{Origin: "AMS", Destination: "CDG", DelayMinutes: 5, Delayed: true},
		{Origin: "LHR", Destination: "AMS", DelayMinutes: 90},
	}
	got := DestinationDelays(flights, "AMS")
	require.Len(t, got, 2)
	assert.Equal(t, "LHR", got[0].Destination)
	assert.Equal(t, 3, got[0].Flights)
	assert.Equal(t, 2, got[0].Delayed)
	assert.InDelta(t, 10, got[0].AvgDelay, 1e-12)
	assert.InDelta(t, 10, got[0].MedianDelay, 1e-12)
	assert.InDelta(t, 20, got[0].P95Delay, 1e-12)
	assert.Equal(t, "CDG", got[1].Destination)
}

func delayRecords() []domain.DelayRecord {
	return []domain.DelayRecord{
		{IATA: "LHR", Flights: 470000, Passengers: 80_000_000, AvgATCDelay: 2.4, RunwayLengthFt: 12802},
		{IATA: "CDG", Flights: 400000, Passengers: 67_000_000, AvgATCDelay: 2.1, RunwayLengthFt: 13829},
		{IATA: "BRU", Flights: 200000, Passengers: 22_000_000, AvgATCDelay: 1.2, RunwayLengthFt: 11936},
		{IATA: "EIN", Flights: 40000, Passengers: 800_000, AvgATCDelay: 0.4, RunwayLengthFt: 9846},
		{IATA: "RTM", Flights: 20000, Passengers: 600_000, AvgATCDelay: 0.3, RunwayLengthFt: 7218},
	}
}

func TestAnalyzeRQ3(t *testing.T) {
	rq3 := AnalyzeRQ3(delayRecords())
	assert.Equal(t, 5, rq3.N)
	assert.Greater(t, rq3.Flights.Pearson, 0.9)
	assert.InDelta(t, 1, rq3.Passengers.Spearman, 1e-12)
	assert.Equal(t, 3, rq3.HubsVsOthers.NA)
	assert.Equal(t, 2, rq3.HubsVsOthers.NB)

	var b strings.Builder
	require.NoError(t, rq3.WriteText(&b))
	out := b.String()
	assert.True(t, strings.HasPrefix(out, "RQ3 correlation analysis (n = 5 airports)"))
	assert.Contains(t, out, "Annual flights vs average ATC delay")
	assert.Contains(t, out, "Spearman rho = 1.00")
}

func TestRQ3TextShowsNaN(t *testing.T) {
	var b strings.Builder
	require.NoError(t, AnalyzeRQ3(delayRecords()[:2]).WriteText(&b))
	assert.Contains(t, b.String(), "Pearson r = NaN (p = NaN)")
	assert.Contains(t, b.String(), "Note: fewer than 3 pairs")
}

func TestAirportsFromGraph(t *testing.T) {
	g := kg.NewGraph()
	for _, a := range []struct {
		code  string
		score float64
	}{{"CDG", 3.5}, {"LHR", 2.3}} {
		iri := kg.AirportIRI(a.code)
		g.Add(iri, kg.RDFType, kg.ClassAirport)
		g.Add(iri, kg.Code, kg.Str(a.code))
		g.Add(iri, kg.Name, kg.Str(a.code+" airport"))
		g.Add(iri, kg.HubPotentialScore, kg.Float(a.score))
		g.Add(iri, kg.RouteCount, kg.Int(4))
		g.Add(iri, kg.PassengerVolume, kg.Int(1_000_000))
	}
	g.Add(kg.AirportIRI("CDG"), kg.RDFType, kg.ClassPotentialHubAirport)

	rows := AirportsFromGraph(g)
	require.Len(t, rows, 2)
	assert.Equal(t, AirportRow{Code: "CDG", Name: "CDG airport", HubScore: 3.5, RouteCount: 4,
		PassengerVolume: 1_000_000, Potential: true}, rows[0])
	assert.False(t, rows[1].Potential)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	ds := Dataset{
		Airports: []AirportRow{{Code: "CDG", Name: "Charles de Gaulle", HubScore: 3.5, Potential: true}, {Code: "LHR", HubScore: 2.3}},
		Delay:    delayRecords(),
		Flights:  []domain.Flight{{Origin: "AMS", Destination: "LHR", DelayMinutes: 12, Delayed: true}},
	}
	files, err := NewGenerator(dir, "AMS").Generate(ds)
	require.NoError(t, err)
	require.Len(t, files, 5)

	ranking, err := os.ReadFile(filepath.Join(dir, RankingFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(ranking)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "rank,code,name,hub_score,route_count,delay_rate,passenger_volume,potential_hub", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,CDG,Charles de Gaulle,3.5000"))

	summary, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "delay_minutes,1,12.0000,0.0000,12.0000,12.0000")

	pdf, err := os.ReadFile(filepath.Join(dir, ChartsFile))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestGenerateEmptyDataset(t *testing.T) {
	dir := t.TempDir()
	files, err := NewGenerator(dir, "AMS").Generate(Dataset{})
	require.NoError(t, err)
	assert.Len(t, files, 5)

	corr, err := os.ReadFile(filepath.Join(dir, CorrelationFile))
	require.NoError(t, err)
	assert.Contains(t, string(corr), "NaN")
}
