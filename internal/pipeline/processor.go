package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"echograph/internal/chunker"
	"echograph/internal/embeddings"
	"echograph/internal/logger"
	"echograph/models"
)

// Processor drives one document through the ingestion state machine:
//
//	uploading → extracting → analyzing → embedding → ready
//	                                               ↘ error (from any stage)
//
// Every transition is committed before the next stage begins, so an operator
// can always see where a stuck or failed document got to.
type Processor struct {
	docs      DocumentStore
	chunks    ChunkStore
	persister ChunkPersister
	blob      BlobStore
	extractor TextExtractor
	chunker   *chunker.Chunker
	embedder  embeddings.Provider
	vectors   VectorIndex
	scheduler Scheduler
	tempDir   string
}

type ProcessorDeps struct {
	Docs      DocumentStore
	Chunks    ChunkStore
	Persister ChunkPersister
	Blob      BlobStore
	Extractor TextExtractor
	Chunker   *chunker.Chunker
	Embedder  embeddings.Provider
	Vectors   VectorIndex
	Scheduler Scheduler
	TempDir   string
}

func NewProcessor(deps ProcessorDeps) *Processor {
	tempDir := deps.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Processor{
		docs:      deps.Docs,
		chunks:    deps.Chunks,
		persister: deps.Persister,
		blob:      deps.Blob,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		vectors:   deps.Vectors,
		scheduler: deps.Scheduler,
		tempDir:   tempDir,
	}
}

// ProcessResult is the structured outcome reported to the job runner.
type ProcessResult struct {
	DocumentID int64  `json:"document_id"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

// ProcessDocument runs all stages for one document. Any stage failure moves
// the document to the error state with a truncated message; a missing
// document is terminal without a state change.
func (p *Processor) ProcessDocument(ctx context.Context, documentID int64) ProcessResult {
	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return ProcessResult{
			DocumentID: documentID,
			Status:     "error",
			Err:        fmt.Errorf("load document %d: %w", documentID, err),
			Error:      err.Error(),
		}
	}

	// Stage: download + extract.
	if err := p.docs.UpdateStatus(ctx, documentID, models.StatusExtracting); err != nil {
		return p.fail(ctx, documentID, err)
	}

	tempPath := p.tempPath(doc)
	if err := p.blob.Download(ctx, doc.FilePath, tempPath); err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("download %q: %w", doc.FilePath, err))
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove temp file", "path", tempPath, "error", err)
		}
	}()

	extracted, err := p.extractor.Extract(ctx, tempPath)
	if err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("extract: %w", err))
	}

	// Stage: chunk.
	if err := p.docs.UpdateStatus(ctx, documentID, models.StatusAnalyzing); err != nil {
		return p.fail(ctx, documentID, err)
	}
	chunks := p.chunker.ChunkText(extracted.Text)
	if len(chunks) == 0 {
		return p.fail(ctx, documentID, fmt.Errorf("chunking produced no chunks"))
	}

	// Stage: embed.
	if err := p.docs.UpdateStatus(ctx, documentID, models.StatusEmbedding); err != nil {
		return p.fail(ctx, documentID, err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("embed %d chunks: %w", len(chunks), err))
	}

	// Reprocessing a document that already has chunks replaces the previous
	// generation entirely, rows and vector points both.
	if existing, err := p.chunks.CountByDocument(ctx, documentID); err != nil {
		return p.fail(ctx, documentID, err)
	} else if existing > 0 {
		logger.Info("Reprocessing document, dropping previous chunks",
			"document_id", documentID, "previous_chunks", existing)
		if _, err := p.chunks.DeleteByDocument(ctx, documentID); err != nil {
			return p.fail(ctx, documentID, err)
		}
		if err := p.vectors.DeleteByDocument(ctx, documentID); err != nil {
			return p.fail(ctx, documentID, err)
		}
	}

	// Stage: persist rows and vectors atomically.
	rows := make([]models.DocumentChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = models.DocumentChunk{
			DocID:        documentID,
			ChunkIndex:   c.Index,
			ChunkText:    c.Text,
			CharCount:    c.CharCount,
			SectionTitle: c.SectionTitle,
			SectionLevel: c.SectionLevel,
			PageNumber:   c.PageNumber,
		}
	}

	err = p.persister.PersistChunks(ctx, rows, func(ctx context.Context, inserted []models.DocumentChunk) error {
		ids := make([]int64, len(inserted))
		payloads := make([]map[string]any, len(inserted))
		for i, row := range inserted {
			ids[i] = row.ID
			payloads[i] = chunkPayload(doc, row)
		}
		if err := p.vectors.UpsertChunks(ctx, ids, vectors, payloads); err != nil {
			return err
		}

		docVector := meanVector(vectors)
		return p.vectors.UpsertDocument(ctx, documentID, docVector, map[string]any{
			"document_id":    documentID,
			"document_type":  string(doc.DocumentType),
			"document_title": doc.Title,
			"chunk_count":    int64(len(inserted)),
		})
	})
	if err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("persist chunks: %w", err))
	}

	// Finalize.
	if err := p.docs.MarkReady(ctx, documentID, time.Now().UTC()); err != nil {
		return p.fail(ctx, documentID, err)
	}

	// Fan out relationship extraction when there is anything to compare
	// against. Failures here never fail the processed document.
	if others, err := p.docs.CountReadyExcluding(ctx, documentID); err != nil {
		logger.Warn("Failed to count ready documents", "document_id", documentID, "error", err)
	} else if others >= 1 && p.scheduler != nil {
		if err := p.scheduler.ScheduleRelationshipExtraction(ctx, documentID); err != nil {
			logger.Warn("Failed to schedule relationship extraction",
				"document_id", documentID, "error", err)
		}
	}

	return ProcessResult{
		DocumentID: documentID,
		Status:     "ready",
		ChunkCount: len(rows),
	}
}

// fail records the error on the document and builds the job result. A
// document deleted mid-flight stays untouched.
func (p *Processor) fail(ctx context.Context, documentID int64, cause error) ProcessResult {
	if err := p.docs.SetError(ctx, documentID, cause.Error()); err != nil {
		logger.Error("Failed to record document error",
			"document_id", documentID, "error", err, "cause", cause)
	}
	return ProcessResult{
		DocumentID: documentID,
		Status:     "error",
		Err:        cause,
		Error:      cause.Error(),
	}
}

// tempPath is a job-private local path derived from the document identity.
// Stale files from killed jobs are tolerated and overwritten.
func (p *Processor) tempPath(doc *models.Document) string {
	ext := filepath.Ext(doc.FilePath)
	return filepath.Join(p.tempDir, fmt.Sprintf("echograph_doc_%d%s", doc.ID, ext))
}

func chunkPayload(doc *models.Document, row models.DocumentChunk) map[string]any {
	payload := map[string]any{
		"document_id":    doc.ID,
		"chunk_index":    int64(row.ChunkIndex),
		"chunk_text":     row.ChunkText,
		"document_type":  string(doc.DocumentType),
		"document_title": doc.Title,
	}
	if row.SectionTitle != "" {
		payload["section_title"] = row.SectionTitle
		payload["section_level"] = int64(row.SectionLevel)
	}
	if row.PageNumber != 0 {
		payload["page_number"] = int64(row.PageNumber)
	}
	return payload
}

// meanVector averages the chunk vectors into one document-level vector.
func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	mean := make([]float32, len(vectors[0]))
	for _, v := range vectors {
		for i := range v {
			mean[i] += v[i]
		}
	}
	for i := range mean {
		mean[i] /= float32(len(vectors))
	}
	return mean
}
