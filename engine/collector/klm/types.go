package klm

import (
	"encoding/json"
	"time"
)

// Config controls which KLM flights are collected.
type Config struct {
	BaseURL      string
	APIKey       string
	ClientID     string
	ClientSecret string
	Carrier      string
	Departure    string
	// Days is the number of departure days collected, ending at Date.
	Days     int
	Date     time.Time
	PageSize int
	MaxPages int
	// RateLimit is the minimum interval between requests.
	RateLimit time.Duration
}

// DefaultConfig returns the collector defaults: KL departures from AMS for
// today, 100 per page, one request per second.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://api.airfranceklm.com",
		Carrier:   "KL",
		Departure: "AMS",
		Days:      1,
		PageSize:  100,
		MaxPages:  10,
		RateLimit: time.Second,
	}
}

// DayWindows returns the [from, to] departure window for every configured
// day, oldest first.
func (c Config) DayWindows() [][2]string {
	days := c.Days
	if days < 1 {
		days = 1
	}
	end := c.Date
	if end.IsZero() {
		end = time.Now().UTC()
	}
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	out := make([][2]string, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := end.AddDate(0, 0, -i)
		out = append(out, [2]string{
			d.Format("2006-01-02") + "T00:00:00Z",
			d.Format("2006-01-02") + "T23:59:59Z",
		})
	}
	return out
}

// flightsPage is one page of the flight status endpoint. Flights are kept
// raw so the saved file mirrors the API payload.
type flightsPage struct {
	OperationalFlights []json.RawMessage `json:"operationalFlights"`
	Page               struct {
		PageSize   int `json:"pageSize"`
		PageNumber int `json:"pageNumber"`
		TotalPages int `json:"totalPages"`
		FullCount  int `json:"fullCount"`
	} `json:"page"`
}

// Snapshot is the saved klm_flights file.
type Snapshot struct {
	OperationalFlights []json.RawMessage `json:"operationalFlights"`
}

// OperationalFlight is the subset of a flight status record the processor
// reads.
type OperationalFlight struct {
	ID                 string   `json:"id"`
	FlightNumber       int      `json:"flightNumber"`
	FlightScheduleDate string   `json:"flightScheduleDate"`
	Airline            Carrier  `json:"airline"`
	FlightStatusPublic string   `json:"flightStatusPublic"`
	Route              []string `json:"route"`
	FlightLegs         []Leg    `json:"flightLegs"`
}

type Carrier struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Leg struct {
	LegStatusPublic         string      `json:"legStatusPublic"`
	DepartureInformation    LegEndpoint `json:"departureInformation"`
	ArrivalInformation      LegEndpoint `json:"arrivalInformation"`
	Aircraft                Aircraft    `json:"aircraft"`
	ScheduledFlightDuration string      `json:"scheduledFlightDuration"`
}

type LegEndpoint struct {
	Airport Airport `json:"airport"`
	Times   Times   `json:"times"`
}

type Airport struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	City     City     `json:"city"`
	Location Location `json:"location"`
}

type City struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Country Country `json:"country"`
}

type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Location uses pointers so a missing coordinate is distinguishable from 0.
type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type Times struct {
	Scheduled string        `json:"scheduled"`
	Estimated EstimatedTime `json:"estimated"`
	Actual    string        `json:"actual"`
}

type EstimatedTime struct {
	Value string `json:"value"`
}

type Aircraft struct {
	TypeCode string `json:"typeCode"`
	TypeName string `json:"typeName"`
}
