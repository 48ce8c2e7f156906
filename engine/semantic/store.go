// Package semantic indexes airports in Qdrant by their graph metrics and
// answers "which airports look like this one" queries.
package semantic

import (
	"context"
	"errors"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// ErrUnknownAirport is returned by Similar for a code with no vector.
var ErrUnknownAirport = errors.New("semantic: unknown airport")

// Index is the sole owner of Qdrant operations.
type Index struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// New connects to Qdrant's gRPC port at addr.
func New(addr, collection string) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients is used by tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *Index {
	return &Index{points: points, collections: collections, collection: collection}
}

func (x *Index) Close() error {
	if x.conn == nil {
		return nil
	}
	return x.conn.Close()
}

// Recreate drops the collection when present and creates it empty, so an
// index always reflects a single graph.
func (x *Index) Recreate(ctx context.Context) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			if _, err := x.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: x.collection}); err != nil {
				return fmt.Errorf("semantic: delete collection %s: %w", x.collection, err)
			}
			break
		}
	}
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(Dims), Distance: pb.Distance_Euclid},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", x.collection, err)
	}
	return nil
}

// Upsert writes the vectors with code, name and score payloads.
func (x *Index) Upsert(ctx context.Context, vs []AirportVector) error {
	if len(vs) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(vs))
	for i, v := range vs {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(v.Code)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: v.Vector}},
			},
			Payload: map[string]*pb.Value{
				"code":      {Kind: &pb.Value_StringValue{StringValue: v.Code}},
				"name":      {Kind: &pb.Value_StringValue{StringValue: v.Name}},
				"hub_score": {Kind: &pb.Value_DoubleValue{DoubleValue: v.HubScore}},
				"potential": {Kind: &pb.Value_BoolValue{BoolValue: v.Potential}},
			},
		}
	}
	wait := true
	_, err := x.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: x.collection, Wait: &wait, Points: points})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(vs), err)
	}
	return nil
}

// Rebuild recreates the collection and fills it from vs.
func (x *Index) Rebuild(ctx context.Context, vs []AirportVector) error {
	if err := x.Recreate(ctx); err != nil {
		return err
	}
	return x.Upsert(ctx, vs)
}

// Similar returns the k nearest airports to code, excluding code itself.
// vs supplies the query vector.
func (x *Index) Similar(ctx context.Context, vs []AirportVector, code string, k int) ([]Match, error) {
	q, ok := Find(vs, code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAirport, code)
	}
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         q.Vector,
		Limit:          uint64(max(k, 1)),
		Filter:         &pb.Filter{MustNot: []*pb.Condition{fieldMatch("code", q.Code)}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}
	out := make([]Match, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		p := r.GetPayload()
		out[i] = Match{
			Code:      p["code"].GetStringValue(),
			Name:      p["name"].GetStringValue(),
			Score:     r.GetScore(),
			HubScore:  p["hub_score"].GetDoubleValue(),
			Potential: p["potential"].GetBoolValue(),
		}
	}
	return out, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}
