package kg

import (
	"math"
	"strings"

	"github.com/skypies/geo"
)

// Home is the reference point distances are measured from.
var Home = geo.Latlong{Lat: 52.3105, Long: 4.7683}

// DistanceKM is the great-circle distance between two points.
func DistanceKM(a, b geo.Latlong) float64 {
	return round(a.DistKM(b), 2)
}

// Distance buckets.
const (
	Regional          = "regional"
	Continental       = "continental"
	Intercontinental  = "intercontinental"
	Global            = "global"
	RunwayLarge       = "large"
	RunwayMedium      = "medium"
	RunwaySmall       = "small"
	feetPerMetre      = 3.28084
	hubPassengerFloor = 1_000_000
	hubRunwayFeet     = 12000
)

// DistanceBucket classifies a distance from the home hub.
func DistanceBucket(km float64) string {
	switch {
	case km < 500:
		return Regional
	case km < 2000:
		return Continental
	case km < 8000:
		return Intercontinental
	}
	return Global
}

// RunwayClass classifies a runway length in metres.
func RunwayClass(metres float64) string {
	switch {
	case metres >= 3000:
		return RunwayLarge
	case metres >= 2000:
		return RunwayMedium
	}
	return RunwaySmall
}

// FeetToMetres converts the delay dataset's runway lengths.
func FeetToMetres(ft int) float64 { return float64(ft) / feetPerMetre }

var capacities = []struct {
	sub   string
	seats int64
}{
	{"A380", 500},
	{"747", 400},
	{"777", 300},
	{"A320", 180},
	{"737", 150},
}

// AircraftCapacity returns a seat estimate by type code substring.
func AircraftCapacity(code string) (int64, bool) {
	code = strings.ToUpper(code)
	for _, c := range capacities {
		if strings.Contains(code, c.sub) {
			return c.seats, true
		}
	}
	return 0, false
}

// DefaultVolumes are annual passengers in millions for major European
// airports, used when no dataset provides a figure.
var DefaultVolumes = map[string]float64{
	"AMS": 71, "CDG": 76, "FRA": 70,
	"LHR": 80, "MAD": 61, "FCO": 48,
	"MUC": 47, "BCN": 52, "LGW": 46,
	"ORY": 32, "BRU": 26, "DUB": 31,
	"MAN": 29, "VIE": 31, "CPH": 30,
	"HEL": 21, "ZRH": 31, "OSL": 28,
	"ARN": 27, "LIS": 31, "IST": 68,
	"WAW": 18, "PRG": 17, "BUD": 16,
	"ATH": 25,
}

// ScoreInput holds everything the hub potential score depends on.
type ScoreInput struct {
	RouteCount      int
	DelayRate       float64
	DistanceBucket  string
	RunwayClass     string
	PassengerVolume int64
	EU              bool
}

// HubScore computes the hub potential score, rounded to 4 decimals.
func HubScore(in ScoreInput) float64 {
	distFactor := 1.0
	switch in.DistanceBucket {
	case Continental:
		distFactor = 1.2
	case Intercontinental:
		distFactor = 1.15
	}
	runwayFactor := 1.0
	switch in.RunwayClass {
	case RunwayLarge:
		runwayFactor = 1.3
	case RunwayMedium:
		runwayFactor = 1.1
	}
	euFactor := 1.0
	if in.EU {
		euFactor = 1.2
	}
	vol := math.Max(0, float64(in.PassengerVolume))
	score := float64(in.RouteCount) * 2 *
		math.Max(0.5, 1-in.DelayRate) *
		distFactor * runwayFactor *
		(1 + vol/1e8) *
		euFactor
	return round(score, 4)
}

// IsRQ3Hub applies the delay dataset hub rule.
func IsRQ3Hub(passengers int64, runwayFt int) bool {
	return passengers > hubPassengerFloor || runwayFt > hubRunwayFeet
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
