package novelty

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantStore is a Store backed by a Qdrant collection shared across
// sessions, scoped per query by a session_id payload filter. Grounded on
// WessleyAI/wessley-mvp's engine/semantic/store.go, which talks to the
// same gRPC PointsClient/CollectionsClient surface directly rather than
// through the higher-level qdrant.Client wrapper.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dim         int
}

func NewQdrantStore(addr, collection string, dim int) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("novelty: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dim:         dim,
	}, nil
}

func (q *QdrantStore) Close() error {
	return q.conn.Close()
}

// EnsureCollection creates the backing collection if it is missing.
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("novelty: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("novelty: create collection %s: %w", q.collection, err)
	}
	return nil
}

func (q *QdrantStore) Upsert(ctx context.Context, sessionID, pointID string, vector []float32) error {
	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID}},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}},
				},
				Payload: map[string]*pb.Value{
					"session_id": {Kind: &pb.Value_StringValue{StringValue: sessionID}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("novelty: upsert point %s: %w", pointID, err)
	}
	return nil
}

func (q *QdrantStore) Query(ctx context.Context, sessionID string, vector []float32, topK int) ([]ScoredPoint, error) {
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		Filter: &pb.Filter{
			Must: []*pb.Condition{{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key:   "session_id",
						Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: sessionID}},
					},
				},
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("novelty: search: %w", err)
	}
	out := make([]ScoredPoint, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		out = append(out, ScoredPoint{ID: r.GetId().GetUuid(), Score: float64(r.GetScore())})
	}
	return out, nil
}
