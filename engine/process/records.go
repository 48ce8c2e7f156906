package process

import (
	"fmt"
	"strconv"

	"github.com/skylane-labs/hubgraph/engine/domain"
)

// Processed file names, without the .csv extension.
const (
	KLMFlightsTable       = "flights"
	KLMAirportsTable      = "airports"
	SchipholFlightsTable  = "schiphol_flights"
	SchipholDestTable     = "schiphol_destinations"
	SchipholAirlinesTable = "schiphol_airlines"
	SchipholAircraftTable = "schiphol_aircraft_types"
	SchipholEnrichedTable = "schiphol_flights_enriched"
)

var flightHeader = []string{
	"id", "source", "flight_number", "flight_date", "airline_code", "airline_name",
	"origin", "destination", "direction", "status", "leg_status",
	"scheduled_departure", "scheduled_arrival", "estimated_arrival", "actual_arrival",
	"aircraft_type", "aircraft_code", "terminal", "gate", "pier", "eu", "visa_required",
	"delayed", "delay_minutes",
}

func flightRow(f domain.Flight) []string {
	return []string{
		f.ID, f.Source, f.FlightNumber, f.FlightDate, f.AirlineCode, f.AirlineName,
		f.Origin, f.Destination, f.Direction, f.Status, f.LegStatus,
		formatTime(f.ScheduledDeparture), formatTime(f.ScheduledArrival),
		formatTime(f.EstimatedArrival), formatTime(f.ActualArrival),
		f.AircraftType, f.AircraftCode, f.Terminal, f.Gate, f.Pier, f.EU,
		strconv.FormatBool(f.VisaRequired), strconv.FormatBool(f.Delayed), formatFloat(f.DelayMinutes),
	}
}

func parseFlight(r Row) domain.Flight {
	delay, _ := r.Float("delay_minutes")
	return domain.Flight{
		ID:                 r.Get("id"),
		Source:             r.Get("source"),
		FlightNumber:       r.Get("flight_number"),
		FlightDate:         r.Get("flight_date"),
		AirlineCode:        domain.NormalizeCode(r.Get("airline_code")),
		AirlineName:        r.Get("airline_name"),
		Origin:             domain.NormalizeCode(r.Get("origin")),
		Destination:        domain.NormalizeCode(r.Get("destination")),
		Direction:          r.Get("direction"),
		Status:             r.Get("status"),
		LegStatus:          r.Get("leg_status"),
		ScheduledDeparture: r.Time("scheduled_departure"),
		ScheduledArrival:   r.Time("scheduled_arrival"),
		EstimatedArrival:   r.Time("estimated_arrival"),
		ActualArrival:      r.Time("actual_arrival"),
		AircraftType:       r.Get("aircraft_type"),
		AircraftCode:       r.Get("aircraft_code"),
		Terminal:           r.Get("terminal"),
		Gate:               r.Get("gate"),
		Pier:               r.Get("pier"),
		EU:                 r.Get("eu"),
		VisaRequired:       r.Bool("visa_required"),
		Delayed:            r.Bool("delayed"),
		DelayMinutes:       delay,
	}
}

// FlightTable renders flights under name.
func FlightTable(name string, flights []domain.Flight) Table {
	t := Table{Name: name, Header: flightHeader}
	for _, f := range flights {
		t.Rows = append(t.Rows, flightRow(f))
	}
	return t
}

var airportHeader = []string{"code", "name", "city", "country", "latitude", "longitude"}

func AirportTable(airports []domain.Airport) Table {
	t := Table{Name: KLMAirportsTable, Header: airportHeader}
	for _, a := range airports {
		lat, long := "", ""
		if a.HasCoords {
			lat, long = formatFloat(a.Latitude), formatFloat(a.Longitude)
		}
		t.Rows = append(t.Rows, []string{a.Code, a.Name, a.City, a.Country, lat, long})
	}
	return t
}

func parseAirport(r Row) domain.Airport {
	a := domain.Airport{
		Code:    domain.NormalizeCode(r.Get("code")),
		Name:    r.Get("name"),
		City:    r.Get("city"),
		Country: r.Get("country"),
	}
	lat, okLat := r.Float("latitude")
	long, okLong := r.Float("longitude")
	if okLat && okLong {
		a.Latitude, a.Longitude, a.HasCoords = lat, long, true
	}
	return a
}

var destinationHeader = []string{"iata", "city", "country", "name_english", "name_dutch"}

func DestinationTable(ds []domain.Destination) Table {
	t := Table{Name: SchipholDestTable, Header: destinationHeader}
	for _, d := range ds {
		t.Rows = append(t.Rows, []string{d.IATA, d.City, d.Country, d.NameEnglish, d.NameDutch})
	}
	return t
}

func parseDestination(r Row) domain.Destination {
	return domain.Destination{
		IATA:        domain.NormalizeCode(r.Get("iata")),
		City:        r.Get("city"),
		Country:     r.Get("country"),
		NameEnglish: r.Get("name_english"),
		NameDutch:   r.Get("name_dutch"),
	}
}

var airlineHeader = []string{"iata", "icao", "nvls", "public_name"}

func AirlineTable(as []domain.Airline) Table {
	t := Table{Name: SchipholAirlinesTable, Header: airlineHeader}
	for _, a := range as {
		t.Rows = append(t.Rows, []string{a.IATA, a.ICAO, strconv.Itoa(a.NVLS), a.PublicName})
	}
	return t
}

func parseAirline(r Row) domain.Airline {
	nvls, _ := r.Int("nvls")
	return domain.Airline{
		IATA:       domain.NormalizeCode(r.Get("iata")),
		ICAO:       domain.NormalizeCode(r.Get("icao")),
		NVLS:       int(nvls),
		PublicName: r.Get("public_name"),
	}
}

var aircraftHeader = []string{"iata_main", "iata_sub", "short_description", "long_description"}

func AircraftTable(ts []domain.AircraftType) Table {
	t := Table{Name: SchipholAircraftTable, Header: aircraftHeader}
	for _, a := range ts {
		t.Rows = append(t.Rows, []string{a.IATAMain, a.IATASub, a.ShortDescription, a.LongDescription})
	}
	return t
}

func parseAircraft(r Row) domain.AircraftType {
	return domain.AircraftType{
		IATAMain:         r.Get("iata_main"),
		IATASub:          r.Get("iata_sub"),
		ShortDescription: r.Get("short_description"),
		LongDescription:  r.Get("long_description"),
	}
}

// parseDelayRecord reads one row of the annual ATC delay dataset, which
// keeps its published column names.
func parseDelayRecord(r Row) domain.DelayRecord {
	flights, _ := r.Int("Flights_2023")
	pax, _ := r.Int("Passengers_2023")
	delay, _ := r.Float("Avg_ATC_Delay_2023")
	runway, _ := r.Int("LongestRunwayLength")
	rec := domain.DelayRecord{
		ICAO:           domain.NormalizeCode(r.Get("Dest_ICAO")),
		IATA:           domain.NormalizeCode(r.Get("IATA_Code")),
		Flights:        int(flights),
		Passengers:     pax,
		AvgATCDelay:    delay,
		RunwayLengthFt: int(runway),
		RunwaySurface:  r.Get("LongestRunwaySurface"),
		ISOCountry:     r.Get("ISO_Country"),
		HubStatus:      r.Get("HubStatus"),
	}
	lat, okLat := r.Float("Latitude")
	long, okLong := r.Float("Longitude")
	if okLat && okLong {
		rec.Latitude, rec.Longitude, rec.HasCoords = lat, long, true
	}
	return rec
}

// readRows loads path and parses each row with parse, dropping rows that
// fail validate. The number of dropped rows is returned.
func readRows[T any](path string, parse func(Row) T, validate func(T) error) ([]T, int, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return nil, 0, err
	}
	var (
		out     []T
		skipped int
	)
	t.Each(func(r Row) {
		v := parse(r)
		if validate != nil && validate(v) != nil {
			skipped++
			return
		}
		out = append(out, v)
	})
	return out, skipped, nil
}

func ReadFlights(path string) ([]domain.Flight, int, error) {
	return readRows(path, parseFlight, domain.ValidateFlight)
}

func ReadAirports(path string) ([]domain.Airport, int, error) {
	return readRows(path, parseAirport, domain.ValidateAirport)
}

func ReadDestinations(path string) ([]domain.Destination, int, error) {
	return readRows(path, parseDestination, domain.ValidateDestination)
}

func ReadAirlines(path string) ([]domain.Airline, int, error) {
	return readRows(path, parseAirline, domain.ValidateAirline)
}

func ReadAircraftTypes(path string) ([]domain.AircraftType, int, error) {
	return readRows(path, parseAircraft, func(a domain.AircraftType) error {
		if a.IATAMain == "" {
			return domain.NewValidationError("iata_main", "", domain.ErrMissingField)
		}
		return nil
	})
}

// ReadDelayDataset loads the RQ3 delay dataset CSV.
func ReadDelayDataset(path string) ([]domain.DelayRecord, int, error) {
	return readRows(path, parseDelayRecord, domain.ValidateDelayRecord)
}

// ReadVolumes loads a passenger volume table with columns code,passengers.
// Passenger counts are absolute, not millions.
func ReadVolumes(path string) (map[string]int64, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	var bad int
	t.Each(func(r Row) {
		code := domain.NormalizeCode(r.Get("code"))
		v, ok := r.Int("passengers")
		if code == "" || !ok || v < 0 {
			bad++
			return
		}
		out[code] = v
	})
	if len(out) == 0 && bad > 0 {
		return nil, fmt.Errorf("process: %s: no usable volume rows", path)
	}
	return out, nil
}
