package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	iataRegex = regexp.MustCompile(`^[A-Z0-9]{3}$`)
	icaoRegex = regexp.MustCompile(`^[A-Z0-9]{4}$`)
	slugRegex = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeCode trims and upper-cases an airport or airline code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Slug lower-cases s and collapses every run of characters outside
// [a-z0-9] to a single underscore. "Den Haag" becomes "den_haag".
func Slug(s string) string {
	return strings.Trim(slugRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_"), "_")
}

// ValidCoords reports whether lat/long are inside WGS84 bounds.
func ValidCoords(lat, long float64) bool {
	return lat >= -90 && lat <= 90 && long >= -180 && long <= 180
}

// ValidateAirport checks an airport row.
func ValidateAirport(a Airport) error {
	code := NormalizeCode(a.Code)
	if code == "" {
		return NewValidationError("code", a.Code, ErrMissingCode)
	}
	if !iataRegex.MatchString(code) {
		return NewValidationError("code", a.Code, ErrInvalidCode)
	}
	if a.HasCoords && !ValidCoords(a.Latitude, a.Longitude) {
		return NewValidationError("coordinates", fmt.Sprintf("%g,%g", a.Latitude, a.Longitude), ErrInvalidCoordinate)
	}
	return nil
}

// ValidateFlight checks a flight row.
func ValidateFlight(f Flight) error {
	if strings.TrimSpace(f.ID) == "" {
		return NewValidationError("id", f.ID, ErrMissingField)
	}
	if strings.TrimSpace(f.FlightNumber) == "" {
		return NewValidationError("flight_number", f.FlightNumber, ErrMissingField)
	}
	for _, ep := range [][2]string{{"origin", f.Origin}, {"destination", f.Destination}} {
		c := NormalizeCode(ep[1])
		if c == "" {
			return NewValidationError(ep[0], ep[1], ErrMissingCode)
		}
		if !iataRegex.MatchString(c) {
			return NewValidationError(ep[0], ep[1], ErrInvalidCode)
		}
	}
	if NormalizeCode(f.Origin) == NormalizeCode(f.Destination) {
		return NewValidationError("destination", f.Destination, ErrSameEndpoints)
	}
	if f.DelayMinutes < 0 {
		return NewValidationError("delay_minutes", fmt.Sprint(f.DelayMinutes), ErrNegative)
	}
	return nil
}

// ValidateDestination checks a Schiphol destination row.
func ValidateDestination(d Destination) error {
	code := NormalizeCode(d.IATA)
	if code == "" {
		return NewValidationError("iata", d.IATA, ErrMissingCode)
	}
	if !iataRegex.MatchString(code) {
		return NewValidationError("iata", d.IATA, ErrInvalidCode)
	}
	return nil
}

// ValidateAirline checks an airline row. Only the IATA code is mandatory.
func ValidateAirline(a Airline) error {
	if strings.TrimSpace(a.IATA) == "" {
		return NewValidationError("iata", a.IATA, ErrMissingField)
	}
	return nil
}

// ValidateDelayRecord checks a delay dataset row.
func ValidateDelayRecord(r DelayRecord) error {
	if !icaoRegex.MatchString(NormalizeCode(r.ICAO)) {
		return NewValidationError("icao", r.ICAO, ErrInvalidCode)
	}
	if r.IATA != "" && !iataRegex.MatchString(NormalizeCode(r.IATA)) {
		return NewValidationError("iata", r.IATA, ErrInvalidCode)
	}
	if r.Flights < 0 {
		return NewValidationError("flights", fmt.Sprint(r.Flights), ErrNegative)
	}
	if r.Passengers < 0 {
		return NewValidationError("passengers", fmt.Sprint(r.Passengers), ErrNegative)
	}
	if r.AvgATCDelay < 0 {
		return NewValidationError("avg_atc_delay", fmt.Sprint(r.AvgATCDelay), ErrNegative)
	}
	if r.HasCoords && !ValidCoords(r.Latitude, r.Longitude) {
		return NewValidationError("coordinates", fmt.Sprintf("%g,%g", r.Latitude, r.Longitude), ErrInvalidCoordinate)
	}
	return nil
}
