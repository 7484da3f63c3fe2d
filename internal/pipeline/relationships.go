package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"echograph/internal/logger"
	"echograph/internal/store"
	"echograph/models"
)

// supersedesThreshold is the bucket-average similarity above which two norms
// with ordered versions are treated as supersession rather than similarity.
const supersedesThreshold = 0.90

// topScoresForConfidence caps how many of the best chunk scores feed the
// confidence average.
const topScoresForConfidence = 10

// maxChunkPairsInDetails caps the evidence pairs stored per relationship.
const maxChunkPairsInDetails = 20

// ExtractParams parameterizes one relationship-extraction run.
type ExtractParams struct {
	SourceDocID   int64
	TargetDocIDs  []int64
	Threshold     float64
	LimitPerChunk int
}

// RelationshipExtractor aggregates cross-document chunk similarities into
// typed document relationships.
type RelationshipExtractor struct {
	docs    DocumentStore
	rels    RelationshipStore
	writer  RelationshipWriter
	vectors VectorIndex
}

func NewRelationshipExtractor(docs DocumentStore, rels RelationshipStore, writer RelationshipWriter, vectors VectorIndex) *RelationshipExtractor {
	return &RelationshipExtractor{
		docs:    docs,
		rels:    rels,
		writer:  writer,
		vectors: vectors,
	}
}

// targetBucket accumulates the chunk matches against one target document.
type targetBucket struct {
	scores   []float64
	pairs    []models.ChunkPair
	sections map[string]struct{}
}

// Extract finds similar chunks of other ready documents, groups them per
// target, classifies each pair and writes the new relationships in one
// transaction. It returns the number of relationships created. Failures never
// touch document state; the source stays ready.
func (e *RelationshipExtractor) Extract(ctx context.Context, params ExtractParams) (int, error) {
	source, err := e.docs.GetByID(ctx, params.SourceDocID)
	if err != nil {
		return 0, fmt.Errorf("load source document %d: %w", params.SourceDocID, err)
	}
	if source.Status != models.StatusReady {
		return 0, fmt.Errorf("document %d is %s, not ready", source.ID, source.Status)
	}

	matches, err := e.vectors.CrossDocumentSimilarities(ctx,
		params.SourceDocID, params.TargetDocIDs, params.Threshold, uint64(params.LimitPerChunk))
	if err != nil {
		return 0, fmt.Errorf("cross-document similarity search: %w", err)
	}
	if len(matches) == 0 {
		return 0, nil
	}

	// Group matches per target document.
	buckets := map[int64]*targetBucket{}
	for _, m := range matches {
		targetID := payloadInt64(m.TargetPayload, "document_id")
		if targetID == 0 || targetID == source.ID {
			continue
		}

		b := buckets[targetID]
		if b == nil {
			b = &targetBucket{sections: map[string]struct{}{}}
			buckets[targetID] = b
		}

		srcSection := payloadString(m.SourcePayload, "section_title")
		tgtSection := payloadString(m.TargetPayload, "section_title")

		b.scores = append(b.scores, m.Score)
		b.pairs = append(b.pairs, models.ChunkPair{
			SourceChunkID: m.SourceChunkID,
			TargetChunkID: m.TargetChunkID,
			Score:         m.Score,
			SourceSection: srcSection,
			TargetSection: tgtSection,
		})
		for _, sec := range []string{srcSection, tgtSection} {
			if sec != "" {
				b.sections[sec] = struct{}{}
			}
		}
	}

	// Deterministic target order.
	targetIDs := make([]int64, 0, len(buckets))
	for id := range buckets {
		targetIDs = append(targetIDs, id)
	}
	sort.Slice(targetIDs, func(i, j int) bool { return targetIDs[i] < targetIDs[j] })

	var rels []models.DocumentRelationship
	for _, targetID := range targetIDs {
		exists, err := e.rels.Exists(ctx, source.ID, targetID)
		if err != nil {
			return 0, fmt.Errorf("check existing relationship %d->%d: %w", source.ID, targetID, err)
		}
		if exists {
			continue
		}

		target, err := e.docs.GetByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.Warn("Matched target document no longer exists", "target_doc_id", targetID)
				continue
			}
			return 0, fmt.Errorf("load target document %d: %w", targetID, err)
		}

		rels = append(rels, e.buildRelationship(source, target, buckets[targetID]))
	}

	if len(rels) == 0 {
		return 0, nil
	}

	created, err := e.writer.InsertRelationships(ctx, rels)
	if err != nil {
		return 0, fmt.Errorf("insert %d relationships: %w", len(rels), err)
	}
	return created, nil
}

func (e *RelationshipExtractor) buildRelationship(source, target *models.Document, b *targetBucket) models.DocumentRelationship {
	avg := mean(b.scores)
	relType := classify(source, target, avg)
	confidence := confidenceFromScores(b.scores)

	sections := make([]string, 0, len(b.sections))
	for sec := range b.sections {
		sections = append(sections, sec)
	}
	sort.Strings(sections)

	pairs := make([]models.ChunkPair, len(b.pairs))
	copy(pairs, b.pairs)
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Score > pairs[j].Score })
	if len(pairs) > maxChunkPairsInDetails {
		pairs = pairs[:maxChunkPairsInDetails]
	}

	return models.DocumentRelationship{
		SourceDocID:      source.ID,
		TargetDocID:      target.ID,
		RelationshipType: relType,
		Confidence:       confidence,
		Summary:          summaryFor(relType, source.Title, target.Title, confidence),
		Details: &models.RelationshipDetails{
			MatchedChunksCount: len(b.scores),
			AvgSimilarity:      round4(avg),
			MaxSimilarity:      round4(maxOf(b.scores)),
			MinSimilarity:      round4(minOf(b.scores)),
			MatchedSections:    sections,
			ChunkPairs:         pairs,
		},
		ValidationStatus: models.ValidationAutoDetected,
	}
}

// classify maps the endpoint document types and the bucket average
// similarity to a relationship type. The similarity-only path never emits
// a conflict.
func classify(source, target *models.Document, avgScore float64) models.RelationshipType {
	switch {
	case source.DocumentType == models.DocumentTypeNorm && target.DocumentType == models.DocumentTypeGuideline:
		return models.RelationshipCompliance
	case source.DocumentType == models.DocumentTypeGuideline && target.DocumentType == models.DocumentTypeNorm:
		return models.RelationshipReference
	case source.DocumentType == models.DocumentTypeNorm && target.DocumentType == models.DocumentTypeNorm:
		if avgScore > supersedesThreshold &&
			source.Version != "" && target.Version != "" &&
			source.Version > target.Version {
			return models.RelationshipSupersedes
		}
		return models.RelationshipSimilar
	default:
		return models.RelationshipSimilar
	}
}

// confidenceFromScores is the mean of the top scores, scaled to [0, 100] and
// rounded to two decimals.
func confidenceFromScores(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if len(sorted) > topScoresForConfidence {
		sorted = sorted[:topScoresForConfidence]
	}
	return math.Round(mean(sorted)*100*100) / 100
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxOf(xs []float64) float64 {
	out := xs[0]
	for _, x := range xs[1:] {
		if x > out {
			out = x
		}
	}
	return out
}

func minOf(xs []float64) float64 {
	out := xs[0]
	for _, x := range xs[1:] {
		if x < out {
			out = x
		}
	}
	return out
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

func payloadInt64(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func payloadString(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}
