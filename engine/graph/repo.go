package graph

import (
	"slices"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/skylane-labs/hubgraph/pkg/repo"
)

func newAirportRepo(open repo.SessionFunc) *repo.Neo4jRepo[Airport, string] {
	return repo.NewNeo4jRepo[Airport, string](
		open,
		"Airport",
		airportToMap,
		airportFromRecord,
		repo.WithIDKey[Airport, string]("code"),
	)
}

func airportToMap(a Airport) map[string]any {
	m := map[string]any{
		"code":              a.Code,
		"name":              a.Name,
		"hubPotentialScore": a.HubScore,
		"routeCount":        a.RouteCount,
		"delayRate":         a.DelayRate,
		"passengerVolume":   a.PassengerVolume,
	}
	if a.IRI != "" {
		m["iri"] = a.IRI
	}
	return m
}

func airportFromRecord(rec *neo4j.Record) (Airport, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Airport{}, err
	}
	p := node.Props
	return Airport{
		Code:            strProp(p, "code"),
		Name:            strProp(p, "name"),
		HubScore:        floatProp(p, "hubPotentialScore"),
		RouteCount:      intProp(p, "routeCount"),
		DelayRate:       floatProp(p, "delayRate"),
		PassengerVolume: intProp(p, "passengerVolume"),
		Potential:       slices.Contains(node.Labels, "PotentialHubAirport"),
		IRI:             strProp(p, "iri"),
	}, nil
}

func strProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func intProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
