package schiphol

// Config controls the Schiphol Public Flight API collector.
type Config struct {
	BaseURL        string
	AppID          string
	AppKey         string
	MaxPages       int
	CallsPerMinute int
	// Direction is "D", "A" or empty for both.
	Direction string
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.schiphol.nl",
		MaxPages:       5,
		CallsPerMinute: 30,
	}
}

// Flight is the subset of a public flight record the processor reads.
type Flight struct {
	ID               string `json:"id"`
	FlightName       string `json:"flightName"`
	FlightNumber     int    `json:"flightNumber"`
	PrefixIATA       string `json:"prefixIATA"`
	PrefixICAO       string `json:"prefixICAO"`
	FlightDirection  string `json:"flightDirection"`
	ScheduleDate     string `json:"scheduleDate"`
	ScheduleTime     string `json:"scheduleTime"`
	ScheduleDateTime string `json:"scheduleDateTime"`
	MainFlight       string `json:"mainFlight"`
	ServiceType      string `json:"serviceType"`

	EstimatedLandingTime        string `json:"estimatedLandingTime"`
	ActualLandingTime           string `json:"actualLandingTime"`
	PublicEstimatedOffBlockTime string `json:"publicEstimatedOffBlockTime"`
	ActualOffBlockTime          string `json:"actualOffBlockTime"`

	Terminal             int    `json:"terminal"`
	Gate                 string `json:"gate"`
	Pier                 string `json:"pier"`
	AircraftRegistration string `json:"aircraftRegistration"`

	PublicFlightState struct {
		FlightStates []string `json:"flightStates"`
	} `json:"publicFlightState"`
	Route struct {
		Destinations []string `json:"destinations"`
		EU           string   `json:"eu"`
		Visa         bool     `json:"visa"`
	} `json:"route"`
	AircraftType struct {
		IATAMain string `json:"iataMain"`
		IATASub  string `json:"iataSub"`
	} `json:"aircraftType"`
}

type Destination struct {
	IATA       string `json:"iata"`
	City       string `json:"city"`
	Country    string `json:"country"`
	PublicName struct {
		English string `json:"english"`
		Dutch   string `json:"dutch"`
	} `json:"publicName"`
}

type Airline struct {
	IATA       string `json:"iata"`
	ICAO       string `json:"icao"`
	NVLS       int    `json:"nvls"`
	PublicName string `json:"publicName"`
}

type AircraftType struct {
	IATAMain         string `json:"iataMain"`
	IATASub          string `json:"iataSub"`
	ShortDescription string `json:"shortDescription"`
	LongDescription  string `json:"longDescription"`
}
