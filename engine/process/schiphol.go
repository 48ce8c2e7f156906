package process

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/skylane-labs/hubgraph/engine/collector/schiphol"
	"github.com/skylane-labs/hubgraph/engine/domain"
)

// FlattenSchiphol maps public flights to Flight rows. Departures run from
// home to the last routed destination, arrivals from the first routed
// origin to home.
func FlattenSchiphol(in []schiphol.Flight, home string, log *slog.Logger) ([]domain.Flight, int) {
	if log == nil {
		log = slog.Default()
	}
	home = domain.NormalizeCode(home)
	var (
		out     []domain.Flight
		skipped int
	)
	for _, sf := range in {
		f, ok := schipholFlight(sf, home)
		if !ok {
			skipped++
			log.Warn("process: skipping schiphol flight without route", "id", sf.ID)
			continue
		}
		if err := domain.ValidateFlight(f); err != nil {
			skipped++
			log.Warn("process: skipping schiphol flight", "id", sf.ID, "err", err)
			continue
		}
		out = append(out, f)
	}
	return out, skipped
}

func schipholFlight(sf schiphol.Flight, home string) (domain.Flight, bool) {
	dests := sf.Route.Destinations
	if len(dests) == 0 {
		return domain.Flight{}, false
	}
	number := sf.FlightName
	if number == "" && sf.FlightNumber > 0 {
		number = fmt.Sprintf("%s%d", sf.PrefixIATA, sf.FlightNumber)
	}
	terminal := ""
	if sf.Terminal > 0 {
		terminal = strconv.Itoa(sf.Terminal)
	}

	f := domain.Flight{
		ID:           sf.ID,
		Source:       "schiphol",
		FlightNumber: number,
		FlightDate:   sf.ScheduleDate,
		AirlineCode:  domain.NormalizeCode(sf.PrefixIATA),
		Direction:    sf.FlightDirection,
		Status:       strings.Join(sf.PublicFlightState.FlightStates, ","),
		AircraftType: sf.AircraftType.IATAMain,
		AircraftCode: sf.AircraftType.IATASub,
		Terminal:     terminal,
		Gate:         sf.Gate,
		Pier:         sf.Pier,
		EU:           sf.Route.EU,
		VisaRequired: sf.Route.Visa,
	}

	scheduled := ParseTime(sf.ScheduleDateTime)
	if scheduled.IsZero() && sf.ScheduleDate != "" && sf.ScheduleTime != "" {
		scheduled = ParseTime(sf.ScheduleDate + "T" + sf.ScheduleTime)
	}

	var observed time.Time
	switch sf.FlightDirection {
	case "A":
		f.Origin, f.Destination = domain.NormalizeCode(dests[0]), home
		f.ScheduledArrival = scheduled
		f.EstimatedArrival = ParseTime(sf.EstimatedLandingTime)
		f.ActualArrival = ParseTime(sf.ActualLandingTime)
		observed = firstSet(f.ActualArrival, f.EstimatedArrival)
	default:
		f.Origin, f.Destination = home, domain.NormalizeCode(dests[len(dests)-1])
		f.ScheduledDeparture = scheduled
		observed = firstSet(ParseTime(sf.ActualOffBlockTime), ParseTime(sf.PublicEstimatedOffBlockTime))
	}

	if !scheduled.IsZero() && !observed.IsZero() && observed.After(scheduled) {
		f.Delayed = true
		f.DelayMinutes = observed.Sub(scheduled).Minutes()
	}
	if slices.Contains(sf.PublicFlightState.FlightStates, "DEL") {
		f.Delayed = true
	}
	return f, true
}

func firstSet(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func MapDestinations(in []schiphol.Destination) ([]domain.Destination, int) {
	var (
		out     []domain.Destination
		skipped int
	)
	for _, d := range in {
		dd := domain.Destination{
			IATA:        domain.NormalizeCode(d.IATA),
			City:        d.City,
			Country:     d.Country,
			NameEnglish: d.PublicName.English,
			NameDutch:   d.PublicName.Dutch,
		}
		if domain.ValidateDestination(dd) != nil {
			skipped++
			continue
		}
		out = append(out, dd)
	}
	return out, skipped
}

func MapAirlines(in []schiphol.Airline) ([]domain.Airline, int) {
	var (
		out     []domain.Airline
		skipped int
	)
	for _, a := range in {
		aa := domain.Airline{
			IATA:       domain.NormalizeCode(a.IATA),
			ICAO:       domain.NormalizeCode(a.ICAO),
			NVLS:       a.NVLS,
			PublicName: a.PublicName,
		}
		if domain.ValidateAirline(aa) != nil {
			skipped++
			continue
		}
		out = append(out, aa)
	}
	return out, skipped
}

func MapAircraftTypes(in []schiphol.AircraftType) []domain.AircraftType {
	out := make([]domain.AircraftType, 0, len(in))
	for _, t := range in {
		if t.IATAMain == "" {
			continue
		}
		out = append(out, domain.AircraftType{
			IATAMain:         t.IATAMain,
			IATASub:          t.IATASub,
			ShortDescription: t.ShortDescription,
			LongDescription:  t.LongDescription,
		})
	}
	return out
}

var enrichedExtra = []string{
	"destination_city", "destination_country", "destination_name",
	"airline_name_public", "airline_icao",
	"aircraft_short_description", "aircraft_long_description",
}

// EnrichedTable joins flights to the destination of their non-home end,
// their airline and their aircraft type. Missing lookups leave cells empty.
func EnrichedTable(flights []domain.Flight, home string, dests []domain.Destination, airlines []domain.Airline, aircraft []domain.AircraftType) Table {
	destBy := make(map[string]domain.Destination, len(dests))
	for _, d := range dests {
		destBy[d.IATA] = d
	}
	airlineBy := make(map[string]domain.Airline, len(airlines))
	for _, a := range airlines {
		airlineBy[a.IATA] = a
	}
	aircraftBy := make(map[string]domain.AircraftType, len(aircraft))
	for _, a := range aircraft {
		if _, ok := aircraftBy[a.IATAMain]; !ok {
			aircraftBy[a.IATAMain] = a
		}
		if a.IATASub != "" {
			aircraftBy[a.IATAMain+"/"+a.IATASub] = a
		}
	}

	t := Table{Name: SchipholEnrichedTable, Header: append(slices.Clone(flightHeader), enrichedExtra...)}
	for _, f := range flights {
		other := f.Destination
		if other == home {
			other = f.Origin
		}
		d := destBy[other]
		al := airlineBy[f.AirlineCode]
		ac, ok := aircraftBy[f.AircraftType+"/"+f.AircraftCode]
		if !ok {
			ac = aircraftBy[f.AircraftType]
		}
		row := append(flightRow(f),
			d.City, d.Country, d.NameEnglish,
			al.PublicName, al.ICAO,
			ac.ShortDescription, ac.LongDescription,
		)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// EnrichedFlight is one row of the enriched table.
type EnrichedFlight struct {
	domain.Flight
	DestinationCity    string
	DestinationCountry string
	AirlinePublicName  string
}

// ReadEnrichedFlights loads schiphol_flights_enriched.csv.
func ReadEnrichedFlights(path string) ([]EnrichedFlight, int, error) {
	return readRows(path, func(r Row) EnrichedFlight {
		return EnrichedFlight{
			Flight:             parseFlight(r),
			DestinationCity:    r.Get("destination_city"),
			DestinationCountry: r.Get("destination_country"),
			AirlinePublicName:  r.Get("airline_name_public"),
		}
	}, func(e EnrichedFlight) error { return domain.ValidateFlight(e.Flight) })
}
