package process

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/skylane-labs/hubgraph/engine/collector/klm"
	"github.com/skylane-labs/hubgraph/engine/domain"
)

// FlattenKLM turns operational flights into one Flight per leg and the
// distinct airports seen at either end. Legs that fail validation are
// skipped and counted.
func FlattenKLM(ops []klm.OperationalFlight, log *slog.Logger) ([]domain.Flight, []domain.Airport, int) {
	if log == nil {
		log = slog.Default()
	}
	var (
		flights  []domain.Flight
		skipped  int
		airports = map[string]domain.Airport{}
	)
	for _, op := range ops {
		number := ""
		if op.FlightNumber > 0 {
			number = fmt.Sprintf("%s%d", op.Airline.Code, op.FlightNumber)
		}
		for i, leg := range op.FlightLegs {
			id := op.ID
			if i > 0 {
				id = fmt.Sprintf("%s-L%d", op.ID, i+1)
			}
			dep, arr := leg.DepartureInformation, leg.ArrivalInformation
			f := domain.Flight{
				ID:                 id,
				Source:             "klm",
				FlightNumber:       number,
				FlightDate:         op.FlightScheduleDate,
				AirlineCode:        domain.NormalizeCode(op.Airline.Code),
				AirlineName:        op.Airline.Name,
				Origin:             domain.NormalizeCode(dep.Airport.Code),
				Destination:        domain.NormalizeCode(arr.Airport.Code),
				Status:             op.FlightStatusPublic,
				LegStatus:          leg.LegStatusPublic,
				ScheduledDeparture: ParseTime(dep.Times.Scheduled),
				ScheduledArrival:   ParseTime(arr.Times.Scheduled),
				EstimatedArrival:   ParseTime(arr.Times.Estimated.Value),
				ActualArrival:      ParseTime(arr.Times.Actual),
				AircraftType:       leg.Aircraft.TypeName,
				AircraftCode:       leg.Aircraft.TypeCode,
			}
			f.Delayed, f.DelayMinutes = arrivalDelay(f.ScheduledArrival, f.ActualArrival, f.EstimatedArrival)

			if err := domain.ValidateFlight(f); err != nil {
				skipped++
				log.Warn("process: skipping klm leg", "id", id, "err", err)
				continue
			}
			flights = append(flights, f)
			addAirport(airports, dep.Airport)
			addAirport(airports, arr.Airport)
		}
	}

	out := make([]domain.Airport, 0, len(airports))
	for _, a := range airports {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return flights, out, skipped
}

// addAirport keeps the first complete record per code and fills gaps from
// later sightings.
func addAirport(m map[string]domain.Airport, a klm.Airport) {
	code := domain.NormalizeCode(a.Code)
	if code == "" {
		return
	}
	cur := m[code]
	cur.Code = code
	if cur.Name == "" {
		cur.Name = a.Name
	}
	if cur.City == "" {
		cur.City = a.City.Name
	}
	if cur.Country == "" {
		cur.Country = a.City.Country.Name
	}
	if !cur.HasCoords && a.Location.Latitude != nil && a.Location.Longitude != nil {
		lat, long := *a.Location.Latitude, *a.Location.Longitude
		if domain.ValidCoords(lat, long) {
			cur.Latitude, cur.Longitude, cur.HasCoords = lat, long, true
		}
	}
	m[code] = cur
}

// arrivalDelay compares the best known arrival (actual, else estimated)
// with the schedule. Early or unknown arrivals are not delayed.
func arrivalDelay(scheduled, actual, estimated time.Time) (bool, float64) {
	if scheduled.IsZero() {
		return false, 0
	}
	best := actual
	if best.IsZero() {
		best = estimated
	}
	if best.IsZero() {
		return false, 0
	}
	mins := best.Sub(scheduled).Minutes()
	if mins <= 0 {
		return false, 0
	}
	return true, math.Round(mins*100) / 100
}
