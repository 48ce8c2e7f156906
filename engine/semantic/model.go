package semantic

import "github.com/google/uuid"

// Feature order of an airport vector.
var Features = []string{
	"hub_potential_score",
	"route_count",
	"delay_rate",
	"passenger_volume",
	"distance_from_hub",
	"is_eu",
}

// Dims is the vector size of the collection.
var Dims = len(Features)

// AirportVector is one airport as a point.
type AirportVector struct {
	Code      string
	Name      string
	HubScore  float64
	Potential bool
	Vector    []float32
}

// PointID is stable per airport code so re-indexing overwrites.
func PointID(code string) string {
	return uuid.NewSHA1(pointNamespace, []byte(code)).String()
}

var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://hubgraph/airports"))

// Match is a similarity hit.
type Match struct {
	Code      string  `json:"code"`
	Name      string  `json:"name,omitempty"`
	Score     float32 `json:"score"`
	HubScore  float64 `json:"hub_potential_score"`
	Potential bool    `json:"potential_hub"`
}
