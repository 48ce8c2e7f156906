package kg

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/knakk/rdf"
)

const (
	NSKLM    = "http://example.org/klm/"
	NSSCH    = "http://example.org/schiphol/"
	NSGeo    = "http://www.w3.org/2003/01/geo/wgs84_pos#"
	NSSchema = "http://schema.org/"
	NSRDF    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS   = "http://www.w3.org/2000/01/rdf-schema#"
	NSOWL    = "http://www.w3.org/2002/07/owl#"
	NSXSD    = "http://www.w3.org/2001/XMLSchema#"
)

// Prefix binds a short name to a namespace.
type Prefix struct {
	Name string
	IRI  string
}

// Prefixes are written to Turtle output and used to compact IRIs in
// query results.
var Prefixes = []Prefix{
	{"klm", NSKLM},
	{"sch", NSSCH},
	{"geo", NSGeo},
	{"schema", NSSchema},
	{"rdf", NSRDF},
	{"rdfs", NSRDFS},
	{"owl", NSOWL},
	{"xsd", NSXSD},
}

// Compact rewrites iri as prefix:local when a known namespace matches.
func Compact(iri string) string {
	for _, p := range Prefixes {
		if strings.HasPrefix(iri, p.IRI) {
			return p.Name + ":" + iri[len(p.IRI):]
		}
	}
	return iri
}

// Expand turns prefix:local into a full IRI. Unknown prefixes are returned
// unchanged with ok=false.
func Expand(curie string) (string, bool) {
	name, rest, found := strings.Cut(curie, ":")
	if !found {
		return curie, false
	}
	for _, p := range Prefixes {
		if p.Name == name {
			return p.IRI + rest, true
		}
	}
	return curie, false
}

// IRI builds an rdf.IRI, panicking on malformed input. Every caller passes
// a namespace plus an escaped local name.
func IRI(s string) rdf.IRI {
	iri, err := rdf.NewIRI(s)
	if err != nil {
		panic(fmt.Sprintf("kg: invalid iri %q: %v", s, err))
	}
	return iri
}

func klm(local string) rdf.IRI { return IRI(NSKLM + local) }

// local escapes an identifier for use as the last IRI path segment.
func local(id string) string {
	return url.PathEscape(strings.TrimSpace(id))
}

var (
	xsdString   = IRI(NSXSD + "string")
	xsdInteger  = IRI(NSXSD + "integer")
	xsdDouble   = IRI(NSXSD + "double")
	xsdBoolean  = IRI(NSXSD + "boolean")
	xsdDateTime = IRI(NSXSD + "dateTime")
	xsdDate     = IRI(NSXSD + "date")
)

// Str, Int, Float, Bool and DateTime build typed literals.
func Str(v string) rdf.Literal { return rdf.NewTypedLiteral(v, xsdString) }

func Int(v int64) rdf.Literal { return rdf.NewTypedLiteral(strconv.FormatInt(v, 10), xsdInteger) }

func Float(v float64) rdf.Literal {
	return rdf.NewTypedLiteral(strconv.FormatFloat(v, 'f', -1, 64), xsdDouble)
}

func Bool(v bool) rdf.Literal { return rdf.NewTypedLiteral(strconv.FormatBool(v), xsdBoolean) }

func DateTime(v string) rdf.Literal { return rdf.NewTypedLiteral(v, xsdDateTime) }

func Date(v string) rdf.Literal { return rdf.NewTypedLiteral(v, xsdDate) }

// Numeric reports the float value of a numeric literal.
func Numeric(t rdf.Term) (float64, bool) {
	lit, ok := t.(rdf.Literal)
	if !ok {
		return 0, false
	}
	switch lit.DataType.String() {
	case NSXSD + "integer", NSXSD + "int", NSXSD + "long", NSXSD + "double",
		NSXSD + "float", NSXSD + "decimal", NSXSD + "nonNegativeInteger":
		v, err := strconv.ParseFloat(lit.String(), 64)
		return v, err == nil
	}
	return 0, false
}

// Well-known predicates.
var (
	RDFType       = IRI(NSRDF + "type")
	RDFSLabel     = IRI(NSRDFS + "label")
	RDFSComment   = IRI(NSRDFS + "comment")
	RDFSSubClass  = IRI(NSRDFS + "subClassOf")
	RDFSDomain    = IRI(NSRDFS + "domain")
	RDFSRange     = IRI(NSRDFS + "range")
	OWLClass      = IRI(NSOWL + "Class")
	OWLThing      = IRI(NSOWL + "Thing")
	OWLObjectProp = IRI(NSOWL + "ObjectProperty")
	OWLDataProp   = IRI(NSOWL + "DatatypeProperty")
	OWLOntology   = IRI(NSOWL + "Ontology")
	GeoLat        = IRI(NSGeo + "lat")
	GeoLong       = IRI(NSGeo + "long")
	SchemaName    = IRI(NSSchema + "name")
)

// Classes.
var (
	ClassAirport             = klm("Airport")
	ClassAirline             = klm("Airline")
	ClassFlight              = klm("Flight")
	ClassRoute               = klm("Route")
	ClassCity                = klm("City")
	ClassCountry             = klm("Country")
	ClassHubAirport          = klm("HubAirport")
	ClassPotentialHubAirport = klm("PotentialHubAirport")
	ClassRegionalAirport     = klm("RegionalAirport")
	ClassAircraft            = klm("Aircraft")
	ClassSchipholFlight      = klm("SchipholFlight")
)

// Object properties.
var (
	HasOrigin      = klm("hasOrigin")
	HasDestination = klm("hasDestination")
	Operates       = klm("operates")
	OperatedBy     = klm("operatedBy")
	Follows        = klm("follows")
	OperatedWith   = klm("operatedWith")
	LocatedIn      = klm("locatedIn")
	HasHub         = klm("hasHub")
)

// Datatype properties.
var (
	Code                = klm("code")
	Name                = klm("name")
	ICAOCode            = klm("icaoCode")
	NVLSCode            = klm("nvlsCode")
	FlightNumber        = klm("flightNumber")
	FlightDate          = klm("flightDate")
	Status              = klm("status")
	LegStatus           = klm("legStatus")
	Direction           = klm("direction")
	ScheduledDeparture  = klm("scheduledDeparture")
	ScheduledArrival    = klm("scheduledArrival")
	EstimatedArrival    = klm("estimatedArrival")
	ActualArrival       = klm("actualArrival")
	IsDelayed           = klm("isDelayed")
	DelayMinutes        = klm("delayMinutes")
	Terminal            = klm("terminal")
	Gate                = klm("gate")
	Pier                = klm("pier")
	EUFlag              = klm("euFlag")
	IsEU                = klm("isEU")
	VisaRequired        = klm("visaRequired")
	RouteCount          = klm("routeCount")
	TotalFlights        = klm("totalFlights")
	DelayedFlights      = klm("delayedFlights")
	DelayRate           = klm("delayRate")
	AverageDelayMinutes = klm("averageDelayMinutes")
	PassengerVolume     = klm("passengerVolume")
	DistanceFromAMS     = klm("distanceFromAMS")
	StrategicDistance   = klm("strategicDistance")
	RunwayLength        = klm("runwayLength")
	RunwaySurface       = klm("runwaySurface")
	RunwayCapacity      = klm("runwayCapacity")
	HubPotentialScore   = klm("hubPotentialScore")
	Distance            = klm("distance")
	Capacity            = klm("capacity")
	Description         = klm("description")
	AnnualFlights       = klm("annualFlights")
	AnnualPassengers    = klm("annualPassengers")
	AvgATCDelay         = klm("avgATCDelay")
	ISOCountry          = klm("isoCountry")
	HubStatus           = klm("hubStatus")
)

type classDef struct {
	iri   rdf.IRI
	label string
	super rdf.IRI
}

var classes = []classDef{
	{ClassAirport, "Airport", rdf.IRI{}},
	{ClassAirline, "Airline", rdf.IRI{}},
	{ClassFlight, "Flight", rdf.IRI{}},
	{ClassRoute, "Route", rdf.IRI{}},
	{ClassCity, "City", rdf.IRI{}},
	{ClassCountry, "Country", rdf.IRI{}},
	{ClassAircraft, "Aircraft", rdf.IRI{}},
	{ClassHubAirport, "Hub Airport", ClassAirport},
	{ClassPotentialHubAirport, "Potential Hub Airport", ClassAirport},
	{ClassRegionalAirport, "Regional Airport", ClassAirport},
	{ClassSchipholFlight, "Schiphol Flight", ClassFlight},
}

type propDef struct {
	iri    rdf.IRI
	object bool
	domain rdf.IRI
	rng    rdf.IRI
}

var properties = []propDef{
	{HasOrigin, true, OWLThing, ClassAirport},
	{HasDestination, true, OWLThing, ClassAirport},
	{Operates, true, ClassAirline, ClassRoute},
	{OperatedBy, true, ClassFlight, ClassAirline},
	{Follows, true, ClassFlight, ClassRoute},
	{OperatedWith, true, ClassFlight, ClassAircraft},
	{LocatedIn, true, OWLThing, OWLThing},
	{HasHub, true, ClassAirline, ClassAirport},

	{Code, false, OWLThing, xsdString},
	{Name, false, OWLThing, xsdString},
	{ICAOCode, false, OWLThing, xsdString},
	{NVLSCode, false, ClassAirline, xsdInteger},
	{FlightNumber, false, ClassFlight, xsdString},
	{FlightDate, false, ClassFlight, xsdDate},
	{Status, false, ClassFlight, xsdString},
	{LegStatus, false, ClassFlight, xsdString},
	{Direction, false, ClassSchipholFlight, xsdString},
	{ScheduledDeparture, false, ClassFlight, xsdDateTime},
	{ScheduledArrival, false, ClassFlight, xsdDateTime},
	{EstimatedArrival, false, ClassFlight, xsdDateTime},
	{ActualArrival, false, ClassFlight, xsdDateTime},
	{IsDelayed, false, ClassFlight, xsdBoolean},
	{DelayMinutes, false, ClassFlight, xsdDouble},
	{Terminal, false, ClassSchipholFlight, xsdString},
	{Gate, false, ClassSchipholFlight, xsdString},
	{Pier, false, ClassSchipholFlight, xsdString},
	{EUFlag, false, ClassSchipholFlight, xsdString},
	{IsEU, false, ClassAirport, xsdBoolean},
	{VisaRequired, false, ClassSchipholFlight, xsdBoolean},
	{RouteCount, false, OWLThing, xsdInteger},
	{TotalFlights, false, ClassAirport, xsdInteger},
	{DelayedFlights, false, ClassAirport, xsdInteger},
	{DelayRate, false, OWLThing, xsdDouble},
	{AverageDelayMinutes, false, ClassAirport, xsdDouble},
	{PassengerVolume, false, ClassAirport, xsdInteger},
	{DistanceFromAMS, false, ClassAirport, xsdDouble},
	{StrategicDistance, false, ClassAirport, xsdString},
	{RunwayLength, false, ClassAirport, xsdInteger},
	{RunwaySurface, false, ClassAirport, xsdString},
	{RunwayCapacity, false, ClassAirport, xsdString},
	{HubPotentialScore, false, ClassAirport, xsdDouble},
	{Distance, false, ClassRoute, xsdDouble},
	{Capacity, false, ClassAircraft, xsdInteger},
	{Description, false, ClassAircraft, xsdString},
	{AnnualFlights, false, ClassAirport, xsdInteger},
	{AnnualPassengers, false, ClassAirport, xsdInteger},
	{AvgATCDelay, false, ClassAirport, xsdDouble},
	{ISOCountry, false, ClassAirport, xsdString},
	{HubStatus, false, ClassAirport, xsdString},
}

// Entity IRIs. Each is a pure function of its key.
func AirportIRI(code string) rdf.IRI  { return klm("airport/" + local(code)) }
func AirlineIRI(code string) rdf.IRI  { return klm("airline/" + local(code)) }
func AircraftIRI(code string) rdf.IRI { return klm("aircraft/" + local(code)) }
func CityIRI(slug string) rdf.IRI     { return klm("city/" + local(slug)) }
func CountryIRI(slug string) rdf.IRI  { return klm("country/" + local(slug)) }
func FlightIRI(id string) rdf.IRI     { return klm("flight/" + local(id)) }

func RouteIRI(origin, dest string) rdf.IRI {
	return klm("route/" + local(origin) + "-" + local(dest))
}

func SchipholFlightIRI(id string) rdf.IRI { return IRI(NSSCH + "flight/" + local(id)) }
