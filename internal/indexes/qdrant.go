package indexes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
)

// payloadIDField stores the original memory id in the point payload, since
// Qdrant only accepts UUIDs or positive integers as point ids.
const payloadIDField = "_original_id"

// Qdrant is an optional vector backend for deployments that run a Qdrant
// server rather than the embedded Flat/HNSW indexes. It satisfies the same
// Upsert/Search/Remove surface as Flat and HNSW but talks to the server over
// gRPC, so Snapshot/Load are no-ops: persistence is the server's job.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  int
	log        zerolog.Logger
}

// NewQdrant connects to a Qdrant server at host:port and ensures the named
// collection exists with the given vector dimension.
func NewQdrant(ctx context.Context, addr, collection string, dimension int, log zerolog.Logger) (*Qdrant, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	host, portStr := addr, "6334"
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		host, portStr = addr[:idx], addr[idx+1:]
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	q := &Qdrant{client: client, collection: collection, dimension: dimension, log: log}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires a positive vector dimension")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointIDFor(memoryID string) (*qdrant.PointId, string) {
	if _, err := uuid.Parse(memoryID); err == nil {
		return qdrant.NewIDUUID(memoryID), memoryID
	}
	uuidStr := uuid.NewSHA1(uuid.NameSpaceOID, []byte(memoryID)).String()
	return qdrant.NewIDUUID(uuidStr), uuidStr
}

// UpsertCtx stores or replaces memoryID's embedding in the Qdrant
// collection. Named distinctly from Upsert because the Qdrant backend needs
// a context the embedded backends do not.
func (q *Qdrant) UpsertCtx(ctx context.Context, memoryID string, vec []float32) error {
	pointID, uuidStr := pointIDFor(memoryID)
	payload := map[string]any{}
	if uuidStr != memoryID {
		payload[payloadIDField] = memoryID
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      pointID,
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

// Upsert satisfies VectorIndex by running UpsertCtx against a background
// context and logging rather than surfacing a failed gRPC call, matching
// the error-free convention every other VectorIndex implementation follows.
func (q *Qdrant) Upsert(memoryID string, vec []float32) {
	if err := q.UpsertCtx(context.Background(), memoryID, vec); err != nil {
		q.log.Warn().Err(err).Str("memory_id", memoryID).Msg("qdrant upsert failed")
	}
}

// Search satisfies VectorIndex by running SearchCtx against a background
// context, returning no results rather than an error on failure.
func (q *Qdrant) Search(query []float32, topK int) []Scored {
	out, err := q.SearchCtx(context.Background(), query, topK)
	if err != nil {
		q.log.Warn().Err(err).Msg("qdrant search failed")
		return nil
	}
	return out
}

// Remove deletes memoryID's point from the collection.
func (q *Qdrant) Remove(memoryID string) error {
	pointID, _ := pointIDFor(memoryID)
	_, err := q.client.Delete(context.Background(), &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointID),
	})
	return err
}

// SearchCtx returns the topK nearest neighbors to query from the server.
func (q *Qdrant) SearchCtx(ctx context.Context, query []float32, topK int) ([]Scored, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(query),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadIDField]; ok {
				id = v.GetStringValue()
			}
		}
		out = append(out, Scored{MemoryID: id, Score: float64(hit.Score)})
	}
	return out, nil
}

// Snapshot is a no-op: Qdrant persists its own collection state server-side.
func (q *Qdrant) Snapshot() ([]byte, error) { return nil, nil }

// Load is a no-op for the same reason Snapshot is.
func (q *Qdrant) Load(data []byte) error { return nil }

// Close releases the underlying gRPC connection.
func (q *Qdrant) Close() error { return q.client.Close() }
