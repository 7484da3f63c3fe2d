package pipeline

import (
	"context"
	"time"

	"echograph/internal/extract"
	"echograph/internal/vectorstore"
	"echograph/models"
)

// The pipeline depends on its collaborators through narrow interfaces so the
// state machine can be exercised against fakes.

// DocumentStore is the slice of the row store the pipeline drives the state
// machine through.
type DocumentStore interface {
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	UpdateStatus(ctx context.Context, id int64, status models.DocumentStatus) error
	SetError(ctx context.Context, id int64, message string) error
	MarkReady(ctx context.Context, id int64, processedAt time.Time) error
	CountReadyExcluding(ctx context.Context, id int64) (int64, error)
}

// ChunkStore covers the chunk-row operations outside the persist transaction.
type ChunkStore interface {
	CountByDocument(ctx context.Context, docID int64) (int64, error)
	DeleteByDocument(ctx context.Context, docID int64) (int64, error)
}

// ChunkPersister inserts chunk rows and indexes their vectors atomically:
// index runs with assigned ids before commit, and a failing index rolls the
// rows back.
type ChunkPersister interface {
	PersistChunks(ctx context.Context, chunks []models.DocumentChunk, index func(context.Context, []models.DocumentChunk) error) error
}

// RelationshipStore covers what the extractor needs from the row store.
type RelationshipStore interface {
	Exists(ctx context.Context, sourceDocID, targetDocID int64) (bool, error)
}

// RelationshipWriter commits a batch of derived relationships, suppressing
// duplicate pairs, and reports how many were inserted.
type RelationshipWriter interface {
	InsertRelationships(ctx context.Context, rels []models.DocumentRelationship) (int, error)
}

// BlobStore is the download side of the object store.
type BlobStore interface {
	Download(ctx context.Context, name, localPath string) error
}

// TextExtractor converts a local file into text plus structure.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (*extract.Result, error)
}

// VectorIndex is the slice of the vector store the pipeline writes and the
// extractor reads.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, ids []int64, vectors [][]float32, payloads []map[string]any) error
	UpsertDocument(ctx context.Context, id int64, vector []float32, payload map[string]any) error
	DeleteByDocument(ctx context.Context, docID int64) error
	CrossDocumentSimilarities(ctx context.Context, sourceDocID int64, targetDocIDs []int64, threshold float64, limitPerChunk uint64) ([]vectorstore.ChunkMatch, error)
}

// Scheduler fans out follow-up jobs after a document becomes ready.
type Scheduler interface {
	ScheduleRelationshipExtraction(ctx context.Context, documentID int64) error
}
