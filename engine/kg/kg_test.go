package kg

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/knakk/rdf"
	"github.com/skypies/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane-labs/hubgraph/engine/domain"
	"github.com/skylane-labs/hubgraph/engine/process"
	"github.com/skylane-labs/hubgraph/pkg/metrics"
)

func fixtureInputs() Inputs {
	at := func(s string) time.Time {
		t, _ := time.Parse(time.RFC3339, s)
		return t
	}
	return Inputs{
		Airports: []domain.Airport{
			{Code: "AMS", Name: "Amsterdam Airport Schiphol", City: "Amsterdam", Country: "Netherlands", Latitude: 52.3105, Longitude: 4.7683, HasCoords: true},
			{Code: "LHR", Name: "Heathrow", City: "London", Country: "United Kingdom", Latitude: 51.47, Longitude: -0.4543, HasCoords: true},
			{Code: "CDG", Name: "Charles de Gaulle", City: "Paris", Country: "France", Latitude: 49.0097, Longitude: 2.5479, HasCoords: true},
		},
		Flights: []domain.Flight{
			{ID: "F1", Source: "klm", FlightNumber: "KL1001", FlightDate: "2024-05-01", AirlineCode: "KL", AirlineName: "KLM",
				Origin: "AMS", Destination: "LHR", ScheduledArrival: at("2024-05-01T09:20:00Z"),
				AircraftType: "Boeing 737-800", AircraftCode: "73H", Delayed: true, DelayMinutes: 30},
			{ID: "F2", Source: "klm", FlightNumber: "KL1007", AirlineCode: "KL", Origin: "AMS", Destination: "LHR"},
			{ID: "F3", Source: "klm", FlightNumber: "KL1227", AirlineCode: "KL", Origin: "AMS", Destination: "CDG", AircraftCode: "777"},
			{ID: "F1", Source: "klm", FlightNumber: "KL1001", AirlineCode: "KL", Origin: "AMS", Destination: "LHR"},
		},
		SchipholFlights: []process.EnrichedFlight{{
			Flight: domain.Flight{ID: "143", Source: "schiphol", FlightNumber: "VY8302", AirlineCode: "VY",
				Origin: "AMS", Destination: "BCN", Direction: "D", Terminal: "1", Gate: "D7", Pier: "D", EU: "S",
				AircraftType: "320"},
			DestinationCity:    "Barcelona",
			DestinationCountry: "Spain",
			AirlinePublicName:  "Vueling",
		}},
		AircraftTypes: []domain.AircraftType{{IATAMain: "320", ShortDescription: "A320", LongDescription: "Airbus A320"}},
		DelayRecords: []domain.DelayRecord{
			{ICAO: "EGLL", IATA: "LHR", Flights: 470000, Passengers: 80_000_000, AvgATCDelay: 1.8,
				RunwayLengthFt: 12802, RunwaySurface: "ASP", ISOCountry: "GB", HubStatus: "Hub"},
			{ICAO: "EGKK", Flights: 250000, Passengers: 900_000, AvgATCDelay: 2.4, RunwayLengthFt: 10879},
		},
		Skipped: 2,
	}
}

func testBuilder() *Builder {
	b := NewBuilder("AMS", "KL", 3)
	b.Metrics = metrics.New()
	return b
}

func number(t *testing.T, g *Graph, s rdf.Term, p rdf.Term) float64 {
	t.Helper()
	o, ok := g.Object(s, p)
	require.True(t, ok, "%s has no %s", s, p)
	v, ok := Numeric(o)
	require.True(t, ok, "%s %s is not numeric: %v", s, p, o)
	return v
}

func TestBuildMandatoryProperties(t *testing.T) {
	g, sum := testBuilder().Build(fixtureInputs())

	mandatory := map[rdf.IRI][]rdf.IRI{
		ClassAirport: {Code, Name},
		ClassFlight:  {FlightNumber, HasOrigin, HasDestination, Follows},
		ClassRoute:   {HasOrigin, HasDestination, RouteCount},
		ClassAirline: {Code, Name},
	}
	for class, props := range mandatory {
		subjects := g.InstancesOf(class)
		require.NotEmpty(t, subjects, class.String())
		for _, s := range subjects {
			for _, p := range props {
				assert.Len(t, g.Objects(s, p), 1, "%s %s", s, p)
			}
		}
	}

	assert.Len(t, g.InstancesOf(ClassAirport), 5, "AMS LHR CDG BCN EGKK")
	assert.Len(t, g.InstancesOf(ClassRoute), 3)
	assert.Equal(t, 3, sum.Flights)
	assert.Equal(t, 1, sum.SchipholFlights)
	assert.Equal(t, 3, sum.Skipped, "two read errors plus one duplicate flight")
	assert.Equal(t, g.Len(), sum.Triples)
}

func TestBuildIsIdempotent(t *testing.T) {
	g1, _ := testBuilder().Build(fixtureInputs())
	g2, _ := testBuilder().Build(fixtureInputs())
	assert.True(t, Isomorphic(g1, g2))
	assert.Equal(t, g1.Canonical(), g2.Canonical())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	g, _ := testBuilder().Build(fixtureInputs())
	dir := t.TempDir()
	paths, err := Save(g, dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	nt, err := LoadSaved(dir)
	require.NoError(t, err)
	assert.True(t, Isomorphic(g, nt))

	raw, err := os.ReadFile(filepath.Join(dir, TurtleFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "@prefix klm: <http://example.org/klm/> ."))
	ttl, err := Load(filepath.Join(dir, TurtleFile))
	require.NoError(t, err)
	assert.Equal(t, g.Len(), ttl.Len())
}

func TestLoadSavedKeepsIntegralDoubles(t *testing.T) {
	g := NewGraph()
	ams := AirportIRI("AMS")
	g.Add(ams, RDFType, ClassAirport)
	g.Add(ams, DelayRate, Float(0))
	g.Add(ams, HubPotentialScore, Float(2))
	g.Add(ams, RouteCount, Int(2))
	dir := t.TempDir()
	_, err := Save(g, dir)
	require.NoError(t, err)

	loaded, err := LoadSaved(dir)
	require.NoError(t, err)
	require.True(t, Isomorphic(g, loaded))
	rate, ok := loaded.Object(ams, DelayRate)
	require.True(t, ok)
	assert.Equal(t, NSXSD+"double", rate.(rdf.Literal).DataType.String())
}

func TestBuildSkipsDuplicateDelayRecords(t *testing.T) {
	in := fixtureInputs()
	in.DelayRecords = append(in.DelayRecords,
		domain.DelayRecord{ICAO: "EGLL", IATA: "lhr", Flights: 1, Passengers: 5, AvgATCDelay: 9})
	g, sum := testBuilder().Build(in)

	assert.Equal(t, 2, sum.DelayAirports)
	assert.Equal(t, 4, sum.Skipped)
	assert.InDelta(t, 80_000_000, number(t, g, AirportIRI("LHR"), PassengerVolume), 0, "first record wins")
}

func TestPassengerVolumeFallbacks(t *testing.T) {
	for code, want := range map[string]int64{
		"WAW": 18_000_000, "PRG": 17_000_000, "BUD": 16_000_000, "ATH": 25_000_000, "AMS": 71_000_000, "RTM": 0,
	} {
		assert.Equal(t, want, passengerVolume(&airportAcc{code: code}, nil), code)
	}
	waw := &airportAcc{code: "WAW"}
	assert.Equal(t, int64(20_000_000), passengerVolume(waw, map[string]int64{"WAW": 20_000_000}), "volumes file wins")
	waw.delay = &domain.DelayRecord{IATA: "WAW", Passengers: 21_000_000}
	assert.Equal(t, int64(21_000_000), passengerVolume(waw, map[string]int64{"WAW": 20_000_000}), "delay dataset wins")
}

func TestHubMetrics(t *testing.T) {
	g, sum := testBuilder().Build(fixtureInputs())

	lhr := AirportIRI("LHR")
	assert.InDelta(t, 2.34, number(t, g, lhr, HubPotentialScore), 1e-9)
	assert.InDelta(t, 0.5, number(t, g, lhr, DelayRate), 1e-9)
	assert.InDelta(t, 30, number(t, g, lhr, AverageDelayMinutes), 1e-9)
	assert.InDelta(t, 80_000_000, number(t, g, lhr, PassengerVolume), 0)
	assert.True(t, g.Has(lhr, RunwayCapacity, Str(RunwayLarge)))
	assert.True(t, g.Has(lhr, RDFType, ClassHubAirport), "rq3 passengers above floor")
	assert.False(t, g.Has(lhr, RDFType, ClassPotentialHubAirport))

	cdg := AirportIRI("CDG")
	assert.InDelta(t, 3.52, number(t, g, cdg, HubPotentialScore), 1e-9)
	assert.True(t, g.Has(cdg, RDFType, ClassPotentialHubAirport))
	assert.True(t, g.Has(cdg, StrategicDistance, Str(Regional)))

	bcn := AirportIRI("BCN")
	assert.InDelta(t, 3.648, number(t, g, bcn, HubPotentialScore), 1e-9)
	assert.True(t, g.Has(bcn, IsEU, Bool(true)))
	assert.False(t, g.Has(bcn, DistanceFromAMS, nil), "no coordinates, no distance")

	gatwick := AirportIRI("EGKK")
	assert.True(t, g.Has(gatwick, RDFType, ClassRegionalAirport))

	ams := AirportIRI("AMS")
	assert.True(t, g.Has(ams, RDFType, ClassHubAirport))
	assert.False(t, g.Has(ams, RDFType, ClassPotentialHubAirport))
	assert.True(t, g.Has(AirlineIRI("KL"), HasHub, ams))
	assert.InDelta(t, 0, number(t, g, ams, DistanceFromAMS), 0)

	assert.Equal(t, 2, sum.PotentialHubs)
}

func TestRoutesAndPlaces(t *testing.T) {
	g, _ := testBuilder().Build(fixtureInputs())

	route := RouteIRI("AMS", "LHR")
	assert.InDelta(t, 2, number(t, g, route, RouteCount), 0)
	assert.InDelta(t, 370, number(t, g, route, Distance), 5)
	assert.True(t, g.Has(AirlineIRI("KL"), Operates, route))
	assert.True(t, g.Has(AirlineIRI("VY"), Name, Str("Vueling")))

	assert.True(t, g.Has(AirportIRI("BCN"), LocatedIn, CityIRI("barcelona")))
	assert.True(t, g.Has(CityIRI("barcelona"), LocatedIn, CountryIRI("spain")))
	assert.True(t, g.Has(CityIRI("london"), LocatedIn, CountryIRI("united_kingdom")))

	sch := SchipholFlightIRI("143")
	assert.True(t, g.Has(sch, RDFType, ClassSchipholFlight))
	assert.True(t, g.Has(sch, Terminal, Str("1")))
	assert.True(t, g.Has(sch, OperatedWith, AircraftIRI("320")))
	assert.InDelta(t, 180, number(t, g, AircraftIRI("320"), Capacity), 0)
	assert.InDelta(t, 300, number(t, g, AircraftIRI("777"), Capacity), 0)
	assert.True(t, g.Has(AircraftIRI("73H"), Name, Str("Boeing 737-800")))
}

func TestOntologyDeclared(t *testing.T) {
	g, _ := testBuilder().Build(Inputs{})
	for _, c := range classes {
		assert.True(t, g.Has(c.iri, RDFType, OWLClass), c.label)
		assert.Len(t, g.Objects(c.iri, RDFSLabel), 1)
	}
	for _, p := range properties {
		assert.Len(t, g.Objects(p.iri, RDFSDomain), 1, p.iri.String())
		assert.Len(t, g.Objects(p.iri, RDFSRange), 1, p.iri.String())
	}
	assert.True(t, g.Has(ClassPotentialHubAirport, RDFSSubClass, ClassAirport))
	assert.True(t, g.Has(HasOrigin, RDFType, OWLObjectProp))
	assert.True(t, g.Has(DelayRate, RDFType, OWLDataProp))
}

func TestHubScoreMonotonicInVolume(t *testing.T) {
	for _, bucket := range []string{Regional, Continental, Intercontinental, Global} {
		for _, rate := range []float64{0, 0.3, 0.9} {
			prev := -1.0
			for vol := int64(0); vol <= 200_000_000; vol += 7_500_000 {
				s := HubScore(ScoreInput{RouteCount: 4, DelayRate: rate, DistanceBucket: bucket, PassengerVolume: vol})
				assert.GreaterOrEqual(t, s, prev, "bucket=%s rate=%v vol=%d", bucket, rate, vol)
				prev = s
			}
		}
	}
}

func TestHubScoreFactors(t *testing.T) {
	tests := []struct {
		name string
		in   ScoreInput
		want float64
	}{
		{"base", ScoreInput{RouteCount: 1}, 2},
		{"delay floor", ScoreInput{RouteCount: 1, DelayRate: 0.9}, 1},
		{"continental", ScoreInput{RouteCount: 1, DistanceBucket: Continental}, 2.4},
		{"intercontinental", ScoreInput{RouteCount: 1, DistanceBucket: Intercontinental}, 2.3},
		{"global", ScoreInput{RouteCount: 1, DistanceBucket: Global}, 2},
		{"medium runway", ScoreInput{RouteCount: 1, RunwayClass: RunwayMedium}, 2.2},
		{"volume", ScoreInput{RouteCount: 1, PassengerVolume: 50_000_000}, 3},
		{"eu", ScoreInput{RouteCount: 1, EU: true}, 2.4},
		{"no routes", ScoreInput{PassengerVolume: 80_000_000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, HubScore(tt.in), 1e-9)
		})
	}
}

func TestBuckets(t *testing.T) {
	assert.Equal(t, Regional, DistanceBucket(499.9))
	assert.Equal(t, Continental, DistanceBucket(500))
	assert.Equal(t, Intercontinental, DistanceBucket(2000))
	assert.Equal(t, Global, DistanceBucket(8000))

	assert.Equal(t, RunwayLarge, RunwayClass(3000))
	assert.Equal(t, RunwayMedium, RunwayClass(2999))
	assert.Equal(t, RunwaySmall, RunwayClass(1999))

	seats, ok := AircraftCapacity("Airbus A380-800")
	assert.True(t, ok)
	assert.EqualValues(t, 500, seats)
	_, ok = AircraftCapacity("E90")
	assert.False(t, ok)

	assert.True(t, IsRQ3Hub(1_000_001, 0))
	assert.True(t, IsRQ3Hub(0, 12001))
	assert.False(t, IsRQ3Hub(1_000_000, 12000))
}

func TestDistanceKM(t *testing.T) {
	lhr := geo.Latlong{Lat: 51.47, Long: -0.4543}
	jfk := geo.Latlong{Lat: 40.6413, Long: -73.7781}
	assert.InDelta(t, 370, DistanceKM(Home, lhr), 5)
	assert.InDelta(t, 5860, DistanceKM(Home, jfk), 60)
}

func TestGraphMatchIsSortedAndDeduplicated(t *testing.T) {
	g := NewGraph()
	s := AirportIRI("ZRH")
	assert.True(t, g.Add(s, Code, Str("ZRH")))
	assert.False(t, g.Add(s, Code, Str("ZRH")))
	g.Add(s, Name, Str("Zurich"))
	g.Add(AirportIRI("AMS"), Code, Str("AMS"))

	assert.Equal(t, 3, g.Len())
	all := g.Match(nil, Code, nil)
	require.Len(t, all, 2)
	assert.Equal(t, AirportIRI("AMS").String(), all[0].Subj.(rdf.IRI).String())

	var buf bytes.Buffer
	require.NoError(t, g.WriteNTriples(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "<http://example.org/klm/airport/AMS>"))
}

func TestVocabulary(t *testing.T) {
	assert.Equal(t, "klm:airport/AMS", Compact(AirportIRI("AMS").String()))
	assert.Equal(t, "http://example.org/unknown", Compact("http://example.org/unknown"))
	iri, ok := Expand("xsd:double")
	assert.True(t, ok)
	assert.Equal(t, NSXSD+"double", iri)
	_, ok = Expand("nope:thing")
	assert.False(t, ok)
	assert.Equal(t, NSKLM+"route/AMS-LHR", RouteIRI("AMS", "LHR").String())
	assert.Equal(t, NSSCH+"flight/123", SchipholFlightIRI("123").String())
	assert.Equal(t, NSKLM+"city/den_haag", CityIRI(domain.Slug("Den Haag")).String())
}

func TestLoadInputs(t *testing.T) {
	dir := t.TempDir()
	in := fixtureInputs()
	_, err := process.WriteCSV(dir, process.FlightTable(process.KLMFlightsTable, in.Flights[:3]))
	require.NoError(t, err)
	_, err = process.WriteCSV(dir, process.AirportTable(in.Airports))
	require.NoError(t, err)

	got, err := LoadInputs(dir, "", "", nil)
	require.NoError(t, err)
	assert.Len(t, got.Flights, 3)
	assert.Len(t, got.Airports, 3)
	assert.Empty(t, got.SchipholFlights)

	_, err = LoadInputs(t.TempDir(), "", "", nil)
	assert.True(t, errors.Is(err, domain.ErrNoProcessedData))
}
