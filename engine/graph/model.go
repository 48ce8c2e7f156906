package graph

// ResourceLabel is carried by every exported node; its iri property is
// unique.
const ResourceLabel = "Resource"

// Node is one typed RDF subject as a property-graph node.
type Node struct {
	IRI    string
	Labels []string
	Props  map[string]any
}

// Edge is an object property between two exported nodes.
type Edge struct {
	From string
	To   string
	Type string
}

// Projection is the property-graph view of a knowledge graph.
type Projection struct {
	Nodes []Node
	Edges []Edge
	// Dangling counts object triples whose target is not a typed node.
	Dangling int
}

// Airport is the node shape read back by the API.
type Airport struct {
	Code            string  `json:"code"`
	Name            string  `json:"name,omitempty"`
	HubScore        float64 `json:"hub_potential_score"`
	RouteCount      int64   `json:"route_count"`
	DelayRate       float64 `json:"delay_rate"`
	PassengerVolume int64   `json:"passenger_volume"`
	Potential       bool    `json:"potential_hub"`
	IRI             string  `json:"iri"`
}

// ExportStats summarises one export.
type ExportStats struct {
	Nodes      int `json:"nodes"`
	Edges      int `json:"edges"`
	Dangling   int `json:"dangling"`
	Statements int `json:"statements"`
}
