// Package domain defines the airline records that flow from the processors
// into the knowledge graph, and their validation rules.
package domain

import "time"

// Airport is an airport seen in any source, keyed by IATA code.
type Airport struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	HasCoords bool    `json:"has_coords"`
}

// Flight is one operated leg. KLM legs and Schiphol flights share this
// shape; fields a source does not provide stay empty.
type Flight struct {
	ID           string `json:"id"`
	Source       string `json:"source"` // klm | schiphol
	FlightNumber string `json:"flight_number"`
	FlightDate   string `json:"flight_date"`
	AirlineCode  string `json:"airline_code"`
	AirlineName  string `json:"airline_name"`
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	Direction    string `json:"direction,omitempty"` // D | A, Schiphol only
	Status       string `json:"status"`
	LegStatus    string `json:"leg_status,omitempty"`

	ScheduledDeparture time.Time `json:"scheduled_departure"`
	ScheduledArrival   time.Time `json:"scheduled_arrival"`
	EstimatedArrival   time.Time `json:"estimated_arrival"`
	ActualArrival      time.Time `json:"actual_arrival"`

	AircraftType string `json:"aircraft_type"`
	AircraftCode string `json:"aircraft_code"`
	Terminal     string `json:"terminal,omitempty"`
	Gate         string `json:"gate,omitempty"`
	Pier         string `json:"pier,omitempty"`
	// EU is the Schiphol route flag: S (Schengen), E (EU), N (non-EU).
	EU           string `json:"eu,omitempty"`
	VisaRequired bool   `json:"visa_required,omitempty"`

	Delayed      bool    `json:"delayed"`
	DelayMinutes float64 `json:"delay_minutes"`
}

// Destination is a Schiphol destination entry.
type Destination struct {
	IATA        string `json:"iata"`
	City        string `json:"city"`
	Country     string `json:"country"`
	NameEnglish string `json:"name_english"`
	NameDutch   string `json:"name_dutch"`
}

// Airline is a carrier from the Schiphol airline list or a KLM flight.
type Airline struct {
	IATA       string `json:"iata"`
	ICAO       string `json:"icao"`
	NVLS       int    `json:"nvls"`
	PublicName string `json:"public_name"`
}

// AircraftType is a Schiphol aircraft type entry.
type AircraftType struct {
	IATAMain         string `json:"iata_main"`
	IATASub          string `json:"iata_sub"`
	ShortDescription string `json:"short_description"`
	LongDescription  string `json:"long_description"`
}

// DelayRecord is one row of the annual ATC delay dataset.
type DelayRecord struct {
	ICAO           string  `json:"icao"`
	IATA           string  `json:"iata"`
	Flights        int     `json:"flights"`
	Passengers     int64   `json:"passengers"`
	AvgATCDelay    float64 `json:"avg_atc_delay"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	HasCoords      bool    `json:"has_coords"`
	RunwayLengthFt int     `json:"runway_length_ft"`
	RunwaySurface  string  `json:"runway_surface"`
	ISOCountry     string  `json:"iso_country"`
	HubStatus      string  `json:"hub_status"`
}

// IsEU reports whether a Schiphol EU flag marks an EU destination.
func IsEU(flag string) bool {
	return flag == "S" || flag == "E"
}
