package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echograph/internal/chunker"
	"echograph/internal/extract"
	"echograph/models"
)

func testProcessor(docs *fakeDocumentStore, chunks *fakeChunkStore, blob *fakeBlob, ex *fakeExtractor, vec *fakeVectorIndex, sched *fakeScheduler) (*Processor, *fakePersister) {
	persister := &fakePersister{}
	p := NewProcessor(ProcessorDeps{
		Docs:      docs,
		Chunks:    chunks,
		Persister: persister,
		Blob:      blob,
		Extractor: ex,
		Chunker:   chunker.New(1000, 200),
		Embedder:  &fakeEmbedder{dim: 4},
		Vectors:   vec,
		Scheduler: sched,
		TempDir:   "",
	})
	return p, persister
}

func normDoc(id int64, title string) *models.Document {
	return &models.Document{
		ID:           id,
		Title:        title,
		DocumentType: models.DocumentTypeNorm,
		FilePath:     "documents/abc.pdf",
		FileType:     ".pdf",
		Status:       models.StatusUploading,
	}
}

func TestProcessDocumentHappyPath(t *testing.T) {
	doc := normDoc(1, "Norm A")
	docs := newFakeDocumentStore(doc)
	chunks := &fakeChunkStore{counts: map[int64]int64{}}
	vec := newFakeVectorIndex()
	sched := &fakeScheduler{}
	ex := &fakeExtractor{result: &extract.Result{
		Text: "First requirement paragraph.\n\nSecond requirement paragraph.",
	}}

	p, persister := testProcessor(docs, chunks, &fakeBlob{}, ex, vec, sched)
	result := p.ProcessDocument(context.Background(), 1)

	require.NoError(t, result.Err)
	assert.Equal(t, "ready", result.Status)
	assert.Greater(t, result.ChunkCount, 0)

	final, err := docs.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, final.Status)
	assert.NotNil(t, final.ProcessedDate)
	assert.Empty(t, final.ErrorMessage)

	// Chunk rows and vector points stay in lockstep.
	require.Len(t, persister.persisted, result.ChunkCount)
	require.Len(t, vec.chunkIDs, result.ChunkCount)
	for i, row := range persister.persisted {
		assert.Equal(t, i, row.ChunkIndex)
		assert.Equal(t, len(row.ChunkText), row.CharCount)
		assert.Equal(t, row.ID, vec.chunkIDs[i])
		assert.Equal(t, doc.ID, vec.payloads[i]["document_id"])
		assert.Equal(t, "norm", vec.payloads[i]["document_type"])
		assert.Equal(t, "Norm A", vec.payloads[i]["document_title"])
	}

	// Document-level vector upserted too.
	assert.Contains(t, vec.docUpserts, int64(1))
}

func TestProcessDocumentMissingDocument(t *testing.T) {
	docs := newFakeDocumentStore()
	p, _ := testProcessor(docs, &fakeChunkStore{counts: map[int64]int64{}},
		&fakeBlob{}, &fakeExtractor{}, newFakeVectorIndex(), &fakeScheduler{})

	result := p.ProcessDocument(context.Background(), 99)

	require.Error(t, result.Err)
	assert.Equal(t, "error", result.Status)
	// No document to touch, so nothing else to assert: the point is that
	// SetError was never attempted on a phantom row.
}

func TestProcessDocumentExtractionEmptySetsError(t *testing.T) {
	doc := normDoc(1, "Scanned Norm")
	docs := newFakeDocumentStore(doc)
	ex := &fakeExtractor{err: extract.ErrExtractionEmpty}

	p, _ := testProcessor(docs, &fakeChunkStore{counts: map[int64]int64{}},
		&fakeBlob{}, ex, newFakeVectorIndex(), &fakeScheduler{})
	result := p.ProcessDocument(context.Background(), 1)

	require.Error(t, result.Err)
	assert.True(t, errors.Is(result.Err, extract.ErrExtractionEmpty))

	final, _ := docs.GetByID(context.Background(), 1)
	assert.Equal(t, models.StatusError, final.Status)
	assert.NotEmpty(t, final.ErrorMessage)
}

func TestProcessDocumentBlobFailureSetsError(t *testing.T) {
	doc := normDoc(1, "Norm A")
	docs := newFakeDocumentStore(doc)
	blob := &fakeBlob{err: errors.New("connection refused")}

	p, _ := testProcessor(docs, &fakeChunkStore{counts: map[int64]int64{}},
		blob, &fakeExtractor{}, newFakeVectorIndex(), &fakeScheduler{})
	result := p.ProcessDocument(context.Background(), 1)

	require.Error(t, result.Err)
	final, _ := docs.GetByID(context.Background(), 1)
	assert.Equal(t, models.StatusError, final.Status)
	assert.Contains(t, final.ErrorMessage, "connection refused")
}

func TestProcessDocumentVectorFailureRollsBackChunks(t *testing.T) {
	doc := normDoc(1, "Norm A")
	docs := newFakeDocumentStore(doc)
	vec := newFakeVectorIndex()
	vec.upsertErr = errors.New("vector index down")
	ex := &fakeExtractor{result: &extract.Result{Text: "Some requirement text."}}

	p, persister := testProcessor(docs, &fakeChunkStore{counts: map[int64]int64{}},
		&fakeBlob{}, ex, vec, &fakeScheduler{})
	result := p.ProcessDocument(context.Background(), 1)

	require.Error(t, result.Err)
	assert.Empty(t, persister.persisted, "chunk rows must be rolled back with the failed upsert")

	final, _ := docs.GetByID(context.Background(), 1)
	assert.Equal(t, models.StatusError, final.Status)
}

func TestProcessDocumentReprocessingDropsPreviousGeneration(t *testing.T) {
	doc := normDoc(1, "Norm A")
	doc.Status = models.StatusReady
	docs := newFakeDocumentStore(doc)
	chunks := &fakeChunkStore{counts: map[int64]int64{1: 7}}
	vec := newFakeVectorIndex()
	ex := &fakeExtractor{result: &extract.Result{Text: "Updated requirement text."}}

	p, _ := testProcessor(docs, chunks, &fakeBlob{}, ex, vec, &fakeScheduler{})
	result := p.ProcessDocument(context.Background(), 1)

	require.NoError(t, result.Err)
	assert.Equal(t, []int64{1}, chunks.deleted)
	assert.Equal(t, []int64{1}, vec.deleted)
}

func TestProcessDocumentFansOutWhenOtherDocsReady(t *testing.T) {
	docA := normDoc(1, "Norm A")
	docB := normDoc(2, "Norm B")
	docB.Status = models.StatusReady
	docs := newFakeDocumentStore(docA, docB)
	sched := &fakeScheduler{}
	ex := &fakeExtractor{result: &extract.Result{Text: "Requirement text."}}

	p, _ := testProcessor(docs, &fakeChunkStore{counts: map[int64]int64{}},
		&fakeBlob{}, ex, newFakeVectorIndex(), sched)
	result := p.ProcessDocument(context.Background(), 1)

	require.NoError(t, result.Err)
	assert.Equal(t, []int64{1}, sched.scheduled)
}

func TestProcessDocumentNoFanOutWhenAlone(t *testing.T) {
	doc := normDoc(1, "Norm A")
	docs := newFakeDocumentStore(doc)
	sched := &fakeScheduler{}
	ex := &fakeExtractor{result: &extract.Result{Text: "Requirement text."}}

	p, _ := testProcessor(docs, &fakeChunkStore{counts: map[int64]int64{}},
		&fakeBlob{}, ex, newFakeVectorIndex(), sched)
	result := p.ProcessDocument(context.Background(), 1)

	require.NoError(t, result.Err)
	assert.Empty(t, sched.scheduled)
}
