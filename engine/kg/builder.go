// Package kg builds the airline knowledge graph from the processed tables:
// it mints entity IRIs, attaches literal properties, derives per-airport
// hub metrics and serializes the result as Turtle and N-Triples.
package kg

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/knakk/rdf"
	"github.com/skypies/geo"

	"github.com/skylane-labs/hubgraph/engine/domain"
	"github.com/skylane-labs/hubgraph/engine/process"
	"github.com/skylane-labs/hubgraph/pkg/fn"
	"github.com/skylane-labs/hubgraph/pkg/metrics"
)

// Inputs are the processed tables a build reads.
type Inputs struct {
	Flights         []domain.Flight
	Airports        []domain.Airport
	SchipholFlights []process.EnrichedFlight
	Destinations    []domain.Destination
	Airlines        []domain.Airline
	AircraftTypes   []domain.AircraftType
	DelayRecords    []domain.DelayRecord
	Volumes         map[string]int64
	// Skipped counts rows dropped while reading.
	Skipped int
}

// Empty reports whether there is nothing to build from.
func (in Inputs) Empty() bool {
	return len(in.Flights) == 0 && len(in.SchipholFlights) == 0 &&
		len(in.Airports) == 0 && len(in.DelayRecords) == 0
}

// LoadInputs reads the processed tables in dir plus the optional delay
// dataset and volume table. Missing tables are logged and left empty.
func LoadInputs(dir, delayDataset, volumesFile string, log *slog.Logger) (Inputs, error) {
	if log == nil {
		log = slog.Default()
	}
	var in Inputs
	path := func(table string) string { return filepath.Join(dir, table+".csv") }

	in.Flights = readTable(log, path(process.KLMFlightsTable), process.ReadFlights, &in.Skipped)
	in.Airports = readTable(log, path(process.KLMAirportsTable), process.ReadAirports, &in.Skipped)
	in.SchipholFlights = readTable(log, path(process.SchipholEnrichedTable), process.ReadEnrichedFlights, &in.Skipped)
	if in.SchipholFlights == nil {
		plain := readTable(log, path(process.SchipholFlightsTable), process.ReadFlights, &in.Skipped)
		in.SchipholFlights = fn.Map(plain, func(f domain.Flight) process.EnrichedFlight {
			return process.EnrichedFlight{Flight: f}
		})
	}
	in.Destinations = readTable(log, path(process.SchipholDestTable), process.ReadDestinations, &in.Skipped)
	in.Airlines = readTable(log, path(process.SchipholAirlinesTable), process.ReadAirlines, &in.Skipped)
	in.AircraftTypes = readTable(log, path(process.SchipholAircraftTable), process.ReadAircraftTypes, &in.Skipped)
	if delayDataset != "" {
		in.DelayRecords = readTable(log, delayDataset, process.ReadDelayDataset, &in.Skipped)
	}
	if volumesFile != "" {
		vols, err := process.ReadVolumes(volumesFile)
		if err != nil {
			log.Warn("kg: volumes table unavailable", "path", volumesFile, "err", err)
		}
		in.Volumes = vols
	}
	if in.Empty() {
		return in, fmt.Errorf("kg: load %s: %w", dir, domain.ErrNoProcessedData)
	}
	return in, nil
}

func readTable[T any](log *slog.Logger, path string, read func(string) ([]T, int, error), skipped *int) []T {
	rows, n, err := read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("kg: table not present", "path", path)
		} else {
			log.Warn("kg: table unreadable", "path", path, "err", err)
		}
		return nil
	}
	if n > 0 {
		log.Warn("kg: malformed rows skipped", "path", path, "skipped", n)
	}
	*skipped += n
	return rows
}

// Builder turns Inputs into a graph. A Builder holds no state between
// builds.
type Builder struct {
	HomeHub     string
	HomeCarrier string
	HomeCoords  geo.Latlong
	// Threshold is the score above which an airport is a potential hub.
	Threshold float64
	Metrics   *metrics.Registry
	Log       *slog.Logger
}

func NewBuilder(homeHub, homeCarrier string, threshold float64) *Builder {
	return &Builder{
		HomeHub:     domain.NormalizeCode(homeHub),
		HomeCarrier: domain.NormalizeCode(homeCarrier),
		HomeCoords:  Home,
		Threshold:   threshold,
		Log:         slog.Default(),
	}
}

// Summary describes a finished build.
type Summary struct {
	Triples         int `json:"triples"`
	Airports        int `json:"airports"`
	Airlines        int `json:"airlines"`
	Routes          int `json:"routes"`
	Flights         int `json:"flights"`
	SchipholFlights int `json:"schiphol_flights"`
	Cities          int `json:"cities"`
	Countries       int `json:"countries"`
	Aircraft        int `json:"aircraft"`
	DelayAirports   int `json:"delay_airports"`
	PotentialHubs   int `json:"potential_hubs"`
	Skipped         int `json:"skipped"`
}

type airportAcc struct {
	code, name string
	city       string
	country    string
	lat, long  float64
	hasCoords  bool
	eu         bool
	euKnown    bool
	routes     map[string]bool
	total      int
	delayed    int
	delaySum   float64
	delay      *domain.DelayRecord
}

type routeAcc struct {
	origin, dest string
	total        int
	delayed      int
}

type airlineAcc struct {
	code, name, icao string
	nvls             int
}

type aircraftAcc struct {
	code, name, desc string
}

type cityAcc struct {
	name    string
	country string
}

// build carries the accumulators of a single run.
type build struct {
	*Builder
	g         *Graph
	airports  map[string]*airportAcc
	routes    map[string]*routeAcc
	airlines  map[string]*airlineAcc
	aircraft  map[string]*aircraftAcc
	cities    map[string]*cityAcc
	countries map[string]string
	seen      map[string]bool
	sum       Summary
}

// Build produces the graph for in. Rows that cannot be placed are skipped
// and counted; Build itself never fails.
func (b *Builder) Build(in Inputs) (*Graph, Summary) {
	start := time.Now()
	r := &build{
		Builder:   b,
		g:         NewGraph(),
		airports:  map[string]*airportAcc{},
		routes:    map[string]*routeAcc{},
		airlines:  map[string]*airlineAcc{},
		aircraft:  map[string]*aircraftAcc{},
		cities:    map[string]*cityAcc{},
		countries: map[string]string{},
		seen:      map[string]bool{},
	}
	r.sum.Skipped = in.Skipped

	r.emitOntology()

	for _, a := range in.Airports {
		acc := r.airport(a.Code)
		fillString(&acc.name, a.Name)
		r.place(acc, a.City, a.Country)
		if a.HasCoords && !acc.hasCoords {
			acc.lat, acc.long, acc.hasCoords = a.Latitude, a.Longitude, true
		}
	}
	for _, d := range in.Destinations {
		acc := r.airport(d.IATA)
		fillString(&acc.name, d.NameEnglish)
		r.place(acc, d.City, d.Country)
	}
	for i := range in.DelayRecords {
		rec := &in.DelayRecords[i]
		code := rec.IATA
		if code == "" {
			code = rec.ICAO
		}
		if !r.once("delay:" + domain.NormalizeCode(code)) {
			r.Log.Warn("kg: duplicate delay record skipped", "code", code)
			r.sum.Skipped++
			continue
		}
		acc := r.airport(code)
		acc.delay = rec
		if rec.HasCoords && !acc.hasCoords {
			acc.lat, acc.long, acc.hasCoords = rec.Latitude, rec.Longitude, true
		}
		r.sum.DelayAirports++
	}

	for _, f := range in.Flights {
		if !r.once("klm:" + f.ID) {
			r.Log.Warn("kg: duplicate flight skipped", "id", f.ID)
			r.sum.Skipped++
			continue
		}
		r.flight(FlightIRI(f.ID), f, false)
		r.sum.Flights++
	}
	for _, ef := range in.SchipholFlights {
		f := ef.Flight
		if !r.once("sch:" + f.ID) {
			r.Log.Warn("kg: duplicate schiphol flight skipped", "id", f.ID)
			r.sum.Skipped++
			continue
		}
		other := f.Destination
		if other == r.HomeHub {
			other = f.Origin
		}
		acc := r.airport(other)
		r.place(acc, ef.DestinationCity, ef.DestinationCountry)
		if f.EU != "" && !acc.euKnown {
			acc.eu, acc.euKnown = domain.IsEU(f.EU), true
		}
		if ef.AirlinePublicName != "" && f.AirlineCode != "" {
			fillString(&r.airline(f.AirlineCode).name, ef.AirlinePublicName)
		}
		r.flight(SchipholFlightIRI(f.ID), f, true)
		r.sum.SchipholFlights++
	}

	for _, a := range in.Airlines {
		acc := r.airline(a.IATA)
		fillString(&acc.name, a.PublicName)
		fillString(&acc.icao, a.ICAO)
		if acc.nvls == 0 {
			acc.nvls = a.NVLS
		}
	}
	for _, t := range in.AircraftTypes {
		acc := r.aircraftType(t.IATAMain)
		fillString(&acc.name, t.LongDescription)
		fillString(&acc.name, t.ShortDescription)
		fillString(&acc.desc, t.ShortDescription)
	}

	r.home()
	r.emitAirlines()
	r.emitAircraft()
	r.emitRoutes()
	r.emitPlaces()
	r.emitAirports(in.Volumes)

	r.sum.Triples = r.g.Len()
	if b.Metrics != nil {
		b.Metrics.Counter("hubgraph_triples_emitted_total", "Triples emitted by the graph builder.").Add(int64(r.sum.Triples))
		b.Metrics.Gauge("hubgraph_potential_hubs", "Potential hub airports in the last build.").Set(float64(r.sum.PotentialHubs))
	}
	b.Log.Info("kg: build done",
		"triples", r.sum.Triples, "airports", r.sum.Airports, "routes", r.sum.Routes,
		"flights", r.sum.Flights, "schiphol_flights", r.sum.SchipholFlights,
		"potential_hubs", r.sum.PotentialHubs, "skipped", r.sum.Skipped,
		"duration", time.Since(start))
	return r.g, r.sum
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func (r *build) once(key string) bool {
	if r.seen[key] {
		return false
	}
	r.seen[key] = true
	return true
}

func (r *build) airport(code string) *airportAcc {
	code = domain.NormalizeCode(code)
	acc, ok := r.airports[code]
	if !ok {
		acc = &airportAcc{code: code, routes: map[string]bool{}}
		r.airports[code] = acc
	}
	return acc
}

func (r *build) airline(code string) *airlineAcc {
	code = domain.NormalizeCode(code)
	acc, ok := r.airlines[code]
	if !ok {
		acc = &airlineAcc{code: code}
		r.airlines[code] = acc
	}
	return acc
}

func (r *build) aircraftType(code string) *aircraftAcc {
	code = domain.NormalizeCode(code)
	acc, ok := r.aircraft[code]
	if !ok {
		acc = &aircraftAcc{code: code}
		r.aircraft[code] = acc
	}
	return acc
}

// place records the city and country of an airport. The first source that
// names them wins.
func (r *build) place(a *airportAcc, city, country string) {
	fillString(&a.city, city)
	fillString(&a.country, country)
	if cs := domain.Slug(a.city); cs != "" {
		c, ok := r.cities[cs]
		if !ok {
			c = &cityAcc{name: a.city}
			r.cities[cs] = c
		}
		fillString(&c.country, a.country)
	}
	if ks := domain.Slug(a.country); ks != "" {
		if _, ok := r.countries[ks]; !ok {
			r.countries[ks] = a.country
		}
	}
}

func (r *build) add(s rdf.Subject, p rdf.Predicate, o rdf.Object) { r.g.Add(s, p, o) }

func (r *build) addStr(s rdf.Subject, p rdf.Predicate, v string) {
	if v = strings.TrimSpace(v); v != "" {
		r.add(s, p, Str(v))
	}
}

func (r *build) addTime(s rdf.Subject, p rdf.Predicate, t time.Time) {
	if !t.IsZero() {
		r.add(s, p, DateTime(t.UTC().Format(time.RFC3339)))
	}
}

func (r *build) emitOntology() {
	r.add(klm("ontology"), RDFType, OWLOntology)
	r.add(klm("ontology"), RDFSLabel, Str("Airline hub knowledge graph"))
	for _, c := range classes {
		r.add(c.iri, RDFType, OWLClass)
		r.add(c.iri, RDFSLabel, Str(c.label))
		if c.super.String() != "" {
			r.add(c.iri, RDFSSubClass, c.super)
		}
	}
	for _, p := range properties {
		kind := OWLDataProp
		if p.object {
			kind = OWLObjectProp
		}
		r.add(p.iri, RDFType, kind)
		r.add(p.iri, RDFSLabel, Str(strings.TrimPrefix(p.iri.String(), NSKLM)))
		r.add(p.iri, RDFSDomain, p.domain)
		r.add(p.iri, RDFSRange, p.rng)
	}
}

// flight emits one flight and folds it into the route, airport, airline and
// aircraft accumulators.
func (r *build) flight(iri rdf.IRI, f domain.Flight, schiphol bool) {
	orig, dest := r.airport(f.Origin), r.airport(f.Destination)
	key := orig.code + "-" + dest.code
	route, ok := r.routes[key]
	if !ok {
		route = &routeAcc{origin: orig.code, dest: dest.code}
		r.routes[key] = route
	}
	route.total++
	for _, a := range []*airportAcc{orig, dest} {
		a.routes[key] = true
		a.total++
		if f.Delayed {
			a.delayed++
			a.delaySum += f.DelayMinutes
		}
	}
	if f.Delayed {
		route.delayed++
	}

	r.add(iri, RDFType, ClassFlight)
	if schiphol {
		r.add(iri, RDFType, ClassSchipholFlight)
	}
	r.addStr(iri, FlightNumber, f.FlightNumber)
	if f.FlightDate != "" {
		r.add(iri, FlightDate, Date(f.FlightDate))
	}
	r.addStr(iri, Status, f.Status)
	r.addStr(iri, LegStatus, f.LegStatus)
	r.addTime(iri, ScheduledDeparture, f.ScheduledDeparture)
	r.addTime(iri, ScheduledArrival, f.ScheduledArrival)
	r.addTime(iri, EstimatedArrival, f.EstimatedArrival)
	r.addTime(iri, ActualArrival, f.ActualArrival)
	r.add(iri, IsDelayed, Bool(f.Delayed))
	r.add(iri, DelayMinutes, Float(round(f.DelayMinutes, 2)))
	r.add(iri, HasOrigin, AirportIRI(orig.code))
	r.add(iri, HasDestination, AirportIRI(dest.code))
	r.add(iri, Follows, RouteIRI(orig.code, dest.code))

	if code := domain.NormalizeCode(f.AirlineCode); code != "" {
		al := r.airline(code)
		fillString(&al.name, f.AirlineName)
		r.add(iri, OperatedBy, AirlineIRI(code))
		r.add(AirlineIRI(code), Operates, RouteIRI(orig.code, dest.code))
	}

	if code, name := aircraftOf(f); code != "" {
		ac := r.aircraftType(code)
		fillString(&ac.name, name)
		r.add(iri, OperatedWith, AircraftIRI(ac.code))
	}

	if schiphol {
		r.addStr(iri, Direction, f.Direction)
		r.addStr(iri, Terminal, f.Terminal)
		r.addStr(iri, Gate, f.Gate)
		r.addStr(iri, Pier, f.Pier)
		r.addStr(iri, EUFlag, f.EU)
		r.add(iri, VisaRequired, Bool(f.VisaRequired))
	}
}

// aircraftOf returns the aircraft key of a flight: the KLM type code, or
// the Schiphol main IATA type.
func aircraftOf(f domain.Flight) (code, name string) {
	if f.Source == "schiphol" {
		return f.AircraftType, ""
	}
	if f.AircraftCode != "" {
		return f.AircraftCode, f.AircraftType
	}
	return f.AircraftType, ""
}

// home types the home hub and links it from the home carrier.
func (r *build) home() {
	if r.HomeHub == "" {
		return
	}
	hub := r.airport(r.HomeHub)
	if !hub.hasCoords {
		hub.lat, hub.long, hub.hasCoords = r.HomeCoords.Lat, r.HomeCoords.Long, true
	}
	r.add(AirportIRI(hub.code), RDFType, ClassHubAirport)
	if r.HomeCarrier != "" {
		r.airline(r.HomeCarrier)
		r.add(AirlineIRI(r.HomeCarrier), HasHub, AirportIRI(hub.code))
	}
}

func (r *build) emitAirlines() {
	for _, code := range fn.SortedKeys(r.airlines) {
		a := r.airlines[code]
		iri := AirlineIRI(code)
		name := a.name
		if name == "" {
			name = code
		}
		r.add(iri, RDFType, ClassAirline)
		r.add(iri, Code, Str(code))
		r.add(iri, Name, Str(name))
		r.add(iri, SchemaName, Str(name))
		r.addStr(iri, ICAOCode, a.icao)
		if a.nvls > 0 {
			r.add(iri, NVLSCode, Int(int64(a.nvls)))
		}
	}
	r.sum.Airlines = len(r.airlines)
}

func (r *build) emitAircraft() {
	for _, code := range fn.SortedKeys(r.aircraft) {
		a := r.aircraft[code]
		iri := AircraftIRI(code)
		name := a.name
		if name == "" {
			name = code
		}
		r.add(iri, RDFType, ClassAircraft)
		r.add(iri, Code, Str(code))
		r.add(iri, Name, Str(name))
		r.addStr(iri, Description, a.desc)
		if seats, ok := AircraftCapacity(code + " " + a.name); ok {
			r.add(iri, Capacity, Int(seats))
		}
	}
	r.sum.Aircraft = len(r.aircraft)
}

func (r *build) emitRoutes() {
	for _, key := range fn.SortedKeys(r.routes) {
		rt := r.routes[key]
		iri := RouteIRI(rt.origin, rt.dest)
		r.add(iri, RDFType, ClassRoute)
		r.add(iri, HasOrigin, AirportIRI(rt.origin))
		r.add(iri, HasDestination, AirportIRI(rt.dest))
		r.add(iri, RouteCount, Int(int64(rt.total)))
		r.add(iri, DelayRate, Float(ratio(rt.delayed, rt.total)))
		o, d := r.airports[rt.origin], r.airports[rt.dest]
		if o.hasCoords && d.hasCoords {
			r.add(iri, Distance, Float(DistanceKM(latlong(o), latlong(d))))
		}
	}
	r.sum.Routes = len(r.routes)
}

func (r *build) emitPlaces() {
	for _, slug := range fn.SortedKeys(r.countries) {
		iri := CountryIRI(slug)
		r.add(iri, RDFType, ClassCountry)
		r.add(iri, Name, Str(r.countries[slug]))
		r.add(iri, SchemaName, Str(r.countries[slug]))
	}
	for _, slug := range fn.SortedKeys(r.cities) {
		c := r.cities[slug]
		iri := CityIRI(slug)
		r.add(iri, RDFType, ClassCity)
		r.add(iri, Name, Str(c.name))
		r.add(iri, SchemaName, Str(c.name))
		if ks := domain.Slug(c.country); ks != "" {
			r.add(iri, LocatedIn, CountryIRI(ks))
		}
	}
	r.sum.Cities, r.sum.Countries = len(r.cities), len(r.countries)
}

func (r *build) emitAirports(volumes map[string]int64) {
	for _, code := range fn.SortedKeys(r.airports) {
		a := r.airports[code]
		if code == "" {
			continue
		}
		iri := AirportIRI(code)
		name := a.name
		if name == "" {
			name = code
		}
		r.add(iri, RDFType, ClassAirport)
		r.add(iri, Code, Str(code))
		r.add(iri, Name, Str(name))
		r.add(iri, SchemaName, Str(name))
		switch {
		case domain.Slug(a.city) != "":
			r.add(iri, LocatedIn, CityIRI(domain.Slug(a.city)))
		case domain.Slug(a.country) != "":
			r.add(iri, LocatedIn, CountryIRI(domain.Slug(a.country)))
		}
		if a.euKnown {
			r.add(iri, IsEU, Bool(a.eu))
		}

		in := ScoreInput{
			RouteCount:      len(a.routes),
			DelayRate:       ratio(a.delayed, a.total),
			PassengerVolume: passengerVolume(a, volumes),
			EU:              a.euKnown && a.eu,
		}
		r.add(iri, RouteCount, Int(int64(in.RouteCount)))
		r.add(iri, TotalFlights, Int(int64(a.total)))
		r.add(iri, DelayedFlights, Int(int64(a.delayed)))
		r.add(iri, DelayRate, Float(in.DelayRate))
		avg := 0.0
		if a.delayed > 0 {
			avg = round(a.delaySum/float64(a.delayed), 2)
		}
		r.add(iri, AverageDelayMinutes, Float(avg))
		r.add(iri, PassengerVolume, Int(in.PassengerVolume))

		if a.hasCoords {
			r.add(iri, GeoLat, Float(a.lat))
			r.add(iri, GeoLong, Float(a.long))
			dist := 0.0
			if code != r.HomeHub {
				dist = DistanceKM(r.HomeCoords, latlong(a))
			}
			in.DistanceBucket = DistanceBucket(dist)
			r.add(iri, DistanceFromAMS, Float(dist))
			r.add(iri, StrategicDistance, Str(in.DistanceBucket))
		}

		if rec := a.delay; rec != nil {
			r.addStr(iri, ICAOCode, rec.ICAO)
			r.add(iri, AnnualFlights, Int(int64(rec.Flights)))
			r.add(iri, AnnualPassengers, Int(rec.Passengers))
			r.add(iri, AvgATCDelay, Float(rec.AvgATCDelay))
			r.addStr(iri, ISOCountry, rec.ISOCountry)
			r.addStr(iri, HubStatus, rec.HubStatus)
			if rec.RunwayLengthFt > 0 {
				m := FeetToMetres(rec.RunwayLengthFt)
				in.RunwayClass = RunwayClass(m)
				r.add(iri, RunwayLength, Int(int64(math.Round(m))))
				r.add(iri, RunwayCapacity, Str(in.RunwayClass))
			}
			r.addStr(iri, RunwaySurface, rec.RunwaySurface)
			if IsRQ3Hub(rec.Passengers, rec.RunwayLengthFt) || strings.EqualFold(rec.HubStatus, "hub") {
				r.add(iri, RDFType, ClassHubAirport)
			} else {
				r.add(iri, RDFType, ClassRegionalAirport)
			}
		}

		score := HubScore(in)
		r.add(iri, HubPotentialScore, Float(score))
		if code != r.HomeHub && score > r.Threshold {
			r.add(iri, RDFType, ClassPotentialHubAirport)
			r.sum.PotentialHubs++
		}
		r.sum.Airports++
	}
}

func passengerVolume(a *airportAcc, volumes map[string]int64) int64 {
	if a.delay != nil && a.delay.Passengers > 0 {
		return a.delay.Passengers
	}
	if v, ok := volumes[a.code]; ok {
		return v
	}
	if m, ok := DefaultVolumes[a.code]; ok {
		return int64(m * 1e6)
	}
	return 0
}

func latlong(a *airportAcc) geo.Latlong { return geo.Latlong{Lat: a.lat, Long: a.long} }

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(n)/float64(total), 4)
}
