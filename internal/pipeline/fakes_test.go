package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"echograph/internal/extract"
	"echograph/internal/store"
	"echograph/internal/vectorstore"
	"echograph/models"
)

type fakeDocumentStore struct {
	mu   sync.Mutex
	docs map[int64]*models.Document
}

func newFakeDocumentStore(docs ...*models.Document) *fakeDocumentStore {
	s := &fakeDocumentStore{docs: map[int64]*models.Document{}}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeDocumentStore) GetByID(_ context.Context, id int64) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *fakeDocumentStore) UpdateStatus(_ context.Context, id int64, status models.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	d.ErrorMessage = ""
	return nil
}

func (s *fakeDocumentStore) SetError(_ context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = models.StatusError
	d.ErrorMessage = message
	return nil
}

func (s *fakeDocumentStore) MarkReady(_ context.Context, id int64, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = models.StatusReady
	d.ProcessedDate = &processedAt
	return nil
}

func (s *fakeDocumentStore) CountReadyExcluding(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.docs {
		if d.ID != id && d.Status == models.StatusReady {
			n++
		}
	}
	return n, nil
}

type fakeChunkStore struct {
	counts  map[int64]int64
	deleted []int64
}

func (s *fakeChunkStore) CountByDocument(_ context.Context, docID int64) (int64, error) {
	return s.counts[docID], nil
}

func (s *fakeChunkStore) DeleteByDocument(_ context.Context, docID int64) (int64, error) {
	n := s.counts[docID]
	delete(s.counts, docID)
	s.deleted = append(s.deleted, docID)
	return n, nil
}

// fakePersister assigns sequential ids and runs the index callback, dropping
// the rows again when indexing fails, like the real transaction would.
type fakePersister struct {
	nextID    int64
	persisted []models.DocumentChunk
}

func (p *fakePersister) PersistChunks(ctx context.Context, chunks []models.DocumentChunk, index func(context.Context, []models.DocumentChunk) error) error {
	for i := range chunks {
		p.nextID++
		chunks[i].ID = p.nextID
	}
	if err := index(ctx, chunks); err != nil {
		return err
	}
	p.persisted = append(p.persisted, chunks...)
	return nil
}

type fakeBlob struct {
	downloads []string
	err       error
}

func (b *fakeBlob) Download(_ context.Context, name, localPath string) error {
	if b.err != nil {
		return b.err
	}
	b.downloads = append(b.downloads, name)
	return nil
}

type fakeExtractor struct {
	result *extract.Result
	err    error
}

func (e *fakeExtractor) Extract(_ context.Context, _ string) (*extract.Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

type fakeEmbedder struct {
	dim int
	err error
}

func (e *fakeEmbedder) Dim() int { return e.dim }

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	v := make([]float32, e.dim)
	v[0] = float32(len(text))
	return v, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type fakeVectorIndex struct {
	upsertErr    error
	chunkIDs     []int64
	chunkVecs    [][]float32
	payloads     []map[string]any
	docUpserts   map[int64][]float32
	deleted      []int64
	matches      []vectorstore.ChunkMatch
	crossDocErr  error
	lastThresh   float64
	lastTargets  []int64
	lastPerChunk uint64
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{docUpserts: map[int64][]float32{}}
}

func (v *fakeVectorIndex) UpsertChunks(_ context.Context, ids []int64, vectors [][]float32, payloads []map[string]any) error {
	if v.upsertErr != nil {
		return v.upsertErr
	}
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("mismatched lengths")
	}
	for _, p := range payloads {
		if _, ok := p["document_id"]; !ok {
			return errors.New("payload missing document_id")
		}
	}
	v.chunkIDs = append(v.chunkIDs, ids...)
	v.chunkVecs = append(v.chunkVecs, vectors...)
	v.payloads = append(v.payloads, payloads...)
	return nil
}

func (v *fakeVectorIndex) UpsertDocument(_ context.Context, id int64, vector []float32, _ map[string]any) error {
	if v.upsertErr != nil {
		return v.upsertErr
	}
	v.docUpserts[id] = vector
	return nil
}

func (v *fakeVectorIndex) DeleteByDocument(_ context.Context, docID int64) error {
	v.deleted = append(v.deleted, docID)
	return nil
}

func (v *fakeVectorIndex) CrossDocumentSimilarities(_ context.Context, _ int64, targets []int64, threshold float64, limitPerChunk uint64) ([]vectorstore.ChunkMatch, error) {
	if v.crossDocErr != nil {
		return nil, v.crossDocErr
	}
	v.lastTargets = targets
	v.lastThresh = threshold
	v.lastPerChunk = limitPerChunk
	return v.matches, nil
}

type fakeScheduler struct {
	scheduled []int64
}

func (s *fakeScheduler) ScheduleRelationshipExtraction(_ context.Context, documentID int64) error {
	s.scheduled = append(s.scheduled, documentID)
	return nil
}

type fakeRelationshipStore struct {
	existing map[[2]int64]bool
}

func (s *fakeRelationshipStore) Exists(_ context.Context, sourceDocID, targetDocID int64) (bool, error) {
	return s.existing[[2]int64{sourceDocID, targetDocID}], nil
}

type fakeRelationshipWriter struct {
	inserted []models.DocumentRelationship
	err      error
}

func (w *fakeRelationshipWriter) InsertRelationships(_ context.Context, rels []models.DocumentRelationship) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.inserted = append(w.inserted, rels...)
	return len(rels), nil
}
