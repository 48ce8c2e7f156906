package semantic

import (
	"math"
	"strings"

	"github.com/knakk/rdf"

	"github.com/skylane-labs/hubgraph/engine/kg"
)

// Vectors builds one vector per coded airport in g, sorted by code. Each
// dimension is min-max scaled over the airports present; volumes and
// route counts go through log1p first so a few giants do not flatten the
// rest. Missing values scale to 0.
func Vectors(g *kg.Graph) []AirportVector {
	type raw struct {
		v    AirportVector
		vals []float64
	}
	num := func(s, p rdf.Term) float64 {
		if o, ok := g.Object(s, p); ok {
			if v, ok := kg.Numeric(o); ok {
				return v
			}
		}
		return 0
	}
	var rows []raw
	for _, a := range g.InstancesOf(kg.ClassAirport) {
		code, ok := g.Object(a, kg.Code)
		if !ok || code.String() == "" {
			continue
		}
		r := raw{v: AirportVector{
			Code:      code.String(),
			HubScore:  num(a, kg.HubPotentialScore),
			Potential: g.Has(a, kg.RDFType, kg.ClassPotentialHubAirport),
		}}
		if n, ok := g.Object(a, kg.Name); ok {
			r.v.Name = n.String()
		}
		eu := 0.0
		if o, ok := g.Object(a, kg.IsEU); ok && strings.EqualFold(o.String(), "true") {
			eu = 1
		}
		r.vals = []float64{
			r.v.HubScore,
			math.Log1p(num(a, kg.RouteCount)),
			num(a, kg.DelayRate),
			math.Log1p(num(a, kg.PassengerVolume)),
			num(a, kg.DistanceFromAMS),
			eu,
		}
		rows = append(rows, r)
	}

	lo := make([]float64, Dims)
	hi := make([]float64, Dims)
	for d := range Dims {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
		for _, r := range rows {
			lo[d], hi[d] = math.Min(lo[d], r.vals[d]), math.Max(hi[d], r.vals[d])
		}
	}
	out := make([]AirportVector, len(rows))
	for i, r := range rows {
		vec := make([]float32, Dims)
		for d, x := range r.vals {
			if span := hi[d] - lo[d]; span > 0 {
				vec[d] = float32((x - lo[d]) / span)
			}
		}
		r.v.Vector = vec
		out[i] = r.v
	}
	return out
}

// Find returns the vector for code.
func Find(vs []AirportVector, code string) (AirportVector, bool) {
	for _, v := range vs {
		if strings.EqualFold(v.Code, code) {
			return v, true
		}
	}
	return AirportVector{}, false
}
