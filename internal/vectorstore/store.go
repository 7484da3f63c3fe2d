package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"echograph/internal/config"
	"echograph/internal/logger"
)

// Collection names. Point ids equal the owning row ids.
const (
	CollectionDocuments = "documents"
	CollectionChunks    = "chunks"
)

const scrollPageSize = 1000

// Hit is one scored search result.
type Hit struct {
	ID      int64
	Score   float64
	Payload map[string]any
}

// ChunkMatch pairs a source chunk with a similar chunk of another document.
type ChunkMatch struct {
	SourceChunkID int64
	TargetChunkID int64
	Score         float64
	SourcePayload map[string]any
	TargetPayload map[string]any
}

// CollectionStats summarizes one collection for health reporting.
type CollectionStats struct {
	Name         string `json:"name"`
	PointsCount  uint64 `json:"points_count"`
	IndexedVectorsCount uint64 `json:"indexed_vectors_count"`
	Status       string `json:"status"`
}

// Store is the Qdrant-backed vector index holding the documents and chunks
// collections, both cosine.
type Store struct {
	client *qdrant.Client
}

func New(cfg *config.Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.QdrantHost,
		Port: cfg.QdrantPort,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Store{client: client}, nil
}

// Init creates both collections idempotently. An already-existing collection
// is success.
func (s *Store) Init(ctx context.Context, dim int) error {
	for _, name := range []string{CollectionDocuments, CollectionChunks} {
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to check collection %q: %w", name, err)
		}
		if exists {
			continue
		}

		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("failed to create collection %q: %w", name, err)
		}
		logger.Info("Created vector collection", "collection", name, "dim", dim)
	}
	return nil
}

// UpsertChunks batch-upserts chunk vectors. Ids, vectors and payloads must be
// parallel, and every payload must carry document_id.
func (s *Store) UpsertChunks(ctx context.Context, ids []int64, vectors [][]float32, payloads []map[string]any) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("mismatched lengths: %d ids, %d vectors, %d payloads", len(ids), len(vectors), len(payloads))
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for i := range ids {
		if _, ok := payloads[i]["document_id"]; !ok {
			return fmt.Errorf("payload %d missing document_id", i)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(ids[i])),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payloads[i]),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: CollectionChunks,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d chunk points: %w", len(points), err)
	}
	return nil
}

// UpsertDocument stores one document-level vector.
func (s *Store) UpsertDocument(ctx context.Context, id int64, vector []float32, payload map[string]any) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: CollectionDocuments,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(uint64(id)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(payload),
		}},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document point %d: %w", id, err)
	}
	return nil
}

// SearchChunks runs a filtered cosine search over the chunks collection.
func (s *Store) SearchChunks(ctx context.Context, vector []float32, limit uint64, scoreThreshold float64, filter *Filter) ([]Hit, error) {
	return s.search(ctx, CollectionChunks, vector, limit, scoreThreshold, filter)
}

// SearchDocuments runs a filtered cosine search over the documents collection.
func (s *Store) SearchDocuments(ctx context.Context, vector []float32, limit uint64, scoreThreshold float64, filter *Filter) ([]Hit, error) {
	return s.search(ctx, CollectionDocuments, vector, limit, scoreThreshold, filter)
}

func (s *Store) search(ctx context.Context, collection string, vector []float32, limit uint64, scoreThreshold float64, filter *Filter) ([]Hit, error) {
	qf, err := filter.toQdrant()
	if err != nil {
		return nil, err
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		ScoreThreshold: qdrant.PtrOf(float32(scoreThreshold)),
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search in %q failed: %w", collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{
			ID:      int64(p.Id.GetNum()),
			Score:   clampScore(float64(p.Score)),
			Payload: payloadToMap(p.Payload),
		})
	}
	return hits, nil
}

// CrossDocumentSimilarities scrolls every chunk of the source document and
// searches for similar chunks in other documents. With an explicit target set
// one filtered search runs per target; otherwise a single search excludes the
// source document.
func (s *Store) CrossDocumentSimilarities(ctx context.Context, sourceDocID int64, targetDocIDs []int64, threshold float64, limitPerChunk uint64) ([]ChunkMatch, error) {
	source, err := s.scrollDocumentChunks(ctx, sourceDocID)
	if err != nil {
		return nil, err
	}

	var matches []ChunkMatch
	for _, point := range source {
		vector := point.Vectors.GetVector().GetData()
		if len(vector) == 0 {
			continue
		}
		srcPayload := payloadToMap(point.Payload)
		srcID := int64(point.Id.GetNum())

		var filters []*qdrant.Filter
		if len(targetDocIDs) > 0 {
			for _, target := range targetDocIDs {
				filters = append(filters, &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatchInt("document_id", target)},
				})
			}
		} else {
			filters = append(filters, &qdrant.Filter{
				MustNot: []*qdrant.Condition{qdrant.NewMatchInt("document_id", sourceDocID)},
			})
		}

		for _, qf := range filters {
			points, err := s.client.Query(ctx, &qdrant.QueryPoints{
				CollectionName: CollectionChunks,
				Query:          qdrant.NewQuery(vector...),
				Limit:          qdrant.PtrOf(limitPerChunk),
				ScoreThreshold: qdrant.PtrOf(float32(threshold)),
				Filter:         qf,
				WithPayload:    qdrant.NewWithPayload(true),
			})
			if err != nil {
				return nil, fmt.Errorf("cross-document search for chunk %d failed: %w", srcID, err)
			}

			for _, hit := range points {
				matches = append(matches, ChunkMatch{
					SourceChunkID: srcID,
					TargetChunkID: int64(hit.Id.GetNum()),
					Score:         clampScore(float64(hit.Score)),
					SourcePayload: srcPayload,
					TargetPayload: payloadToMap(hit.Payload),
				})
			}
		}
	}

	return matches, nil
}

// scrollDocumentChunks pages through all chunk points of one document with
// their vectors.
func (s *Store) scrollDocumentChunks(ctx context.Context, docID int64) ([]*qdrant.RetrievedPoint, error) {
	var all []*qdrant.RetrievedPoint
	var offset *qdrant.PointId

	for {
		req := &qdrant.ScrollPoints{
			CollectionName: CollectionChunks,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatchInt("document_id", docID)},
			},
			Limit:       qdrant.PtrOf(uint32(scrollPageSize)),
			WithVectors: qdrant.NewWithVectors(true),
			WithPayload: qdrant.NewWithPayload(true),
			Offset:      offset,
		}

		points, err := s.client.Scroll(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to scroll chunks of document %d: %w", docID, err)
		}

		// The offset id is the inclusive start of the page, so every page
		// after the first begins with the previous boundary point.
		pageFull := len(points) == scrollPageSize
		if offset != nil && len(points) > 0 && pointIDEqual(points[0].Id, offset) {
			points = points[1:]
		}
		all = append(all, points...)

		if !pageFull || len(points) == 0 {
			break
		}
		offset = points[len(points)-1].Id
	}

	return all, nil
}

func pointIDEqual(a, b *qdrant.PointId) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.GetNum() == b.GetNum() && a.GetUuid() == b.GetUuid()
}

// DeleteByDocument removes all chunk points of a document by payload filter,
// then best-effort removes the document point itself.
func (s *Store) DeleteByDocument(ctx context.Context, docID int64) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionChunks,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchInt("document_id", docID)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunk points of document %d: %w", docID, err)
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionDocuments,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDNum(uint64(docID))),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		// The document point may never have been written.
		logger.Warn("Failed to delete document point", "document_id", docID, "error", err)
	}

	return nil
}

// CollectionInfo reports point counts and status for one collection.
func (s *Store) CollectionInfo(ctx context.Context, name string) (*CollectionStats, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get info for collection %q: %w", name, err)
	}

	return statsFromInfo(name, info), nil
}

func statsFromInfo(name string, info *qdrant.CollectionInfo) *CollectionStats {
	stats := &CollectionStats{
		Name:   name,
		Status: info.GetStatus().String(),
	}
	if info.PointsCount != nil {
		stats.PointsCount = *info.PointsCount
	}
	if info.IndexedVectorsCount != nil {
		stats.IndexedVectorsCount = *info.IndexedVectorsCount
	}
	return stats
}

// Health checks connectivity to the vector index.
func (s *Store) Health(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vector index unreachable: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, valueToAny(item))
		}
		return out
	default:
		return nil
	}
}
