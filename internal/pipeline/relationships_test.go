package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echograph/internal/vectorstore"
	"echograph/models"
)

func readyDoc(id int64, title string, docType models.DocumentType, version string) *models.Document {
	return &models.Document{
		ID:           id,
		Title:        title,
		DocumentType: docType,
		Version:      version,
		Status:       models.StatusReady,
	}
}

func match(srcChunk, tgtChunk, targetDoc int64, score float64) vectorstore.ChunkMatch {
	return vectorstore.ChunkMatch{
		SourceChunkID: srcChunk,
		TargetChunkID: tgtChunk,
		Score:         score,
		SourcePayload: map[string]any{"document_id": int64(1)},
		TargetPayload: map[string]any{"document_id": targetDoc},
	}
}

func testExtractor(docs *fakeDocumentStore, vec *fakeVectorIndex) (*RelationshipExtractor, *fakeRelationshipStore, *fakeRelationshipWriter) {
	rels := &fakeRelationshipStore{existing: map[[2]int64]bool{}}
	writer := &fakeRelationshipWriter{}
	return NewRelationshipExtractor(docs, rels, writer, vec), rels, writer
}

func TestExtractSupersedesBetweenVersionedNorms(t *testing.T) {
	source := readyDoc(1, "Norm A", models.DocumentTypeNorm, "2")
	target := readyDoc(2, "Norm B", models.DocumentTypeNorm, "1")
	docs := newFakeDocumentStore(source, target)

	vec := newFakeVectorIndex()
	vec.matches = []vectorstore.ChunkMatch{
		match(10, 20, 2, 0.93),
		match(11, 21, 2, 0.93),
		match(12, 22, 2, 0.93),
	}

	ex, _, writer := testExtractor(docs, vec)
	created, err := ex.Extract(context.Background(), ExtractParams{
		SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, created)
	require.Len(t, writer.inserted, 1)

	rel := writer.inserted[0]
	assert.Equal(t, int64(1), rel.SourceDocID)
	assert.Equal(t, int64(2), rel.TargetDocID)
	assert.Equal(t, models.RelationshipSupersedes, rel.RelationshipType)
	assert.InDelta(t, 93.00, rel.Confidence, 0.001)
	assert.Equal(t, models.ValidationAutoDetected, rel.ValidationStatus)
	assert.Equal(t,
		"'Norm A' appears to supersede the earlier version 'Norm B' (confidence: 93.0%)",
		rel.Summary)
}

func TestExtractSimilarWhenVersionsMissing(t *testing.T) {
	source := readyDoc(1, "Norm A", models.DocumentTypeNorm, "")
	target := readyDoc(2, "Norm B", models.DocumentTypeNorm, "")
	docs := newFakeDocumentStore(source, target)

	vec := newFakeVectorIndex()
	vec.matches = []vectorstore.ChunkMatch{match(10, 20, 2, 0.95)}

	ex, _, writer := testExtractor(docs, vec)
	_, err := ex.Extract(context.Background(), ExtractParams{SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5})

	require.NoError(t, err)
	require.Len(t, writer.inserted, 1)
	assert.Equal(t, models.RelationshipSimilar, writer.inserted[0].RelationshipType)
}

func TestExtractComplianceNormToGuideline(t *testing.T) {
	source := readyDoc(1, "GDPR Norm", models.DocumentTypeNorm, "1")
	target := readyDoc(2, "Privacy Guideline", models.DocumentTypeGuideline, "")
	docs := newFakeDocumentStore(source, target)

	vec := newFakeVectorIndex()
	vec.matches = []vectorstore.ChunkMatch{match(10, 20, 2, 0.80)}

	ex, _, writer := testExtractor(docs, vec)
	_, err := ex.Extract(context.Background(), ExtractParams{SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5})

	require.NoError(t, err)
	require.Len(t, writer.inserted, 1)

	rel := writer.inserted[0]
	assert.Equal(t, models.RelationshipCompliance, rel.RelationshipType)
	assert.Equal(t,
		"'Privacy Guideline' appears to implement or comply with requirements from 'GDPR Norm' (confidence: 80.0%)",
		rel.Summary)
}

func TestExtractReferenceGuidelineToNorm(t *testing.T) {
	source := readyDoc(1, "Privacy Guideline", models.DocumentTypeGuideline, "")
	target := readyDoc(2, "GDPR Norm", models.DocumentTypeNorm, "1")
	docs := newFakeDocumentStore(source, target)

	vec := newFakeVectorIndex()
	vec.matches = []vectorstore.ChunkMatch{{
		SourceChunkID: 10,
		TargetChunkID: 20,
		Score:         0.80,
		SourcePayload: map[string]any{"document_id": int64(1)},
		TargetPayload: map[string]any{"document_id": int64(2)},
	}}

	ex, _, writer := testExtractor(docs, vec)
	_, err := ex.Extract(context.Background(), ExtractParams{SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5})

	require.NoError(t, err)
	require.Len(t, writer.inserted, 1)
	assert.Equal(t, models.RelationshipReference, writer.inserted[0].RelationshipType)
}

func TestExtractSkipsExistingPairs(t *testing.T) {
	source := readyDoc(1, "Norm A", models.DocumentTypeNorm, "2")
	target := readyDoc(2, "Norm B", models.DocumentTypeNorm, "1")
	docs := newFakeDocumentStore(source, target)

	vec := newFakeVectorIndex()
	vec.matches = []vectorstore.ChunkMatch{match(10, 20, 2, 0.93)}

	ex, rels, writer := testExtractor(docs, vec)
	rels.existing[[2]int64{1, 2}] = true

	created, err := ex.Extract(context.Background(), ExtractParams{SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5})

	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Empty(t, writer.inserted)
}

func TestExtractSkipsVanishedTargets(t *testing.T) {
	source := readyDoc(1, "Norm A", models.DocumentTypeNorm, "2")
	docs := newFakeDocumentStore(source)

	vec := newFakeVectorIndex()
	vec.matches = []vectorstore.ChunkMatch{match(10, 20, 7, 0.93)}

	ex, _, writer := testExtractor(docs, vec)
	created, err := ex.Extract(context.Background(), ExtractParams{SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5})

	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Empty(t, writer.inserted)
}

func TestExtractRequiresReadySource(t *testing.T) {
	source := readyDoc(1, "Norm A", models.DocumentTypeNorm, "1")
	source.Status = models.StatusEmbedding
	docs := newFakeDocumentStore(source)

	ex, _, _ := testExtractor(docs, newFakeVectorIndex())
	_, err := ex.Extract(context.Background(), ExtractParams{SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestExtractConfidenceUsesTopTenScores(t *testing.T) {
	source := readyDoc(1, "Norm A", models.DocumentTypeNorm, "")
	target := readyDoc(2, "Norm B", models.DocumentTypeNorm, "")
	docs := newFakeDocumentStore(source, target)

	// Ten strong matches and five weak ones: the weak tail must not drag
	// the confidence down.
	vec := newFakeVectorIndex()
	for i := 0; i < 10; i++ {
		vec.matches = append(vec.matches, match(int64(10+i), int64(20+i), 2, 0.90))
	}
	for i := 0; i < 5; i++ {
		vec.matches = append(vec.matches, match(int64(30+i), int64(40+i), 2, 0.76))
	}

	ex, _, writer := testExtractor(docs, vec)
	_, err := ex.Extract(context.Background(), ExtractParams{SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5})

	require.NoError(t, err)
	require.Len(t, writer.inserted, 1)
	assert.InDelta(t, 90.00, writer.inserted[0].Confidence, 0.001)

	details := writer.inserted[0].Details
	require.NotNil(t, details)
	assert.Equal(t, 15, details.MatchedChunksCount)
	assert.Equal(t, 0.90, details.MaxSimilarity)
	assert.Equal(t, 0.76, details.MinSimilarity)
}

func TestExtractDetailsCapsChunkPairs(t *testing.T) {
	source := readyDoc(1, "Norm A", models.DocumentTypeNorm, "")
	target := readyDoc(2, "Norm B", models.DocumentTypeNorm, "")
	docs := newFakeDocumentStore(source, target)

	vec := newFakeVectorIndex()
	for i := 0; i < 30; i++ {
		vec.matches = append(vec.matches, match(int64(100+i), int64(200+i), 2, 0.75+float64(i)*0.001))
	}

	ex, _, writer := testExtractor(docs, vec)
	_, err := ex.Extract(context.Background(), ExtractParams{SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5})

	require.NoError(t, err)
	require.Len(t, writer.inserted, 1)

	details := writer.inserted[0].Details
	require.Len(t, details.ChunkPairs, 20)
	// Pairs are ordered by descending score.
	for i := 1; i < len(details.ChunkPairs); i++ {
		assert.GreaterOrEqual(t, details.ChunkPairs[i-1].Score, details.ChunkPairs[i].Score)
	}
}

func TestExtractCollectsMatchedSections(t *testing.T) {
	source := readyDoc(1, "Norm A", models.DocumentTypeNorm, "")
	target := readyDoc(2, "Norm B", models.DocumentTypeNorm, "")
	docs := newFakeDocumentStore(source, target)

	vec := newFakeVectorIndex()
	m := match(10, 20, 2, 0.85)
	m.SourcePayload["section_title"] = "Scope"
	m.TargetPayload["section_title"] = "Definitions"
	m2 := match(11, 21, 2, 0.85)
	m2.SourcePayload["section_title"] = "Scope"
	vec.matches = []vectorstore.ChunkMatch{m, m2}

	ex, _, writer := testExtractor(docs, vec)
	_, err := ex.Extract(context.Background(), ExtractParams{SourceDocID: 1, Threshold: 0.75, LimitPerChunk: 5})

	require.NoError(t, err)
	require.Len(t, writer.inserted, 1)
	assert.Equal(t, []string{"Definitions", "Scope"}, writer.inserted[0].Details.MatchedSections)
}
