package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"echograph/internal/logger"
	"echograph/internal/store"
	"echograph/internal/vectorstore"
	"echograph/models"
)

// snippetLimit bounds the chunk text returned per result.
const snippetLimit = 500

// fallbackSimilarity is reported for substring matches, which carry no real
// cosine score.
const fallbackSimilarity = 0.5

const defaultLimit = 10

var ErrEmptyQuery = errors.New("search query is empty")

// Embedder turns a query string into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the vector-index read path.
type VectorSearcher interface {
	SearchChunks(ctx context.Context, vector []float32, limit uint64, scoreThreshold float64, filter *vectorstore.Filter) ([]vectorstore.Hit, error)
}

// ChunkReader hydrates results whose payload is missing fields, and serves the
// substring fallback when the vector index is down.
type ChunkReader interface {
	GetByID(ctx context.Context, id int64) (*models.DocumentChunk, error)
	SearchText(ctx context.Context, query string, docType models.DocumentType, limit int) ([]store.TextSearchResult, error)
}

// DocumentReader resolves document metadata during hydration.
type DocumentReader interface {
	GetByID(ctx context.Context, id int64) (*models.Document, error)
}

// Params is one semantic search request.
type Params struct {
	Query          string
	DocumentType   models.DocumentType
	Limit          int
	ScoreThreshold float64
}

// Result is one ranked search hit.
type Result struct {
	ChunkID       int64               `json:"chunk_id"`
	DocumentID    int64               `json:"document_id"`
	DocumentTitle string              `json:"document_title"`
	DocumentType  models.DocumentType `json:"document_type"`
	SectionTitle  string              `json:"section_title,omitempty"`
	PageNumber    int                 `json:"page_number,omitempty"`
	Snippet       string              `json:"snippet"`
	Similarity    float64             `json:"similarity"`
	Fallback      bool                `json:"fallback,omitempty"`
}

// Service answers semantic queries over the chunk index.
type Service struct {
	embedder Embedder
	vectors  VectorSearcher
	chunks   ChunkReader
	docs     DocumentReader
}

func NewService(embedder Embedder, vectors VectorSearcher, chunks ChunkReader, docs DocumentReader) *Service {
	return &Service{
		embedder: embedder,
		vectors:  vectors,
		chunks:   chunks,
		docs:     docs,
	}
}

// Search embeds the query and runs a filtered cosine search, hydrating each
// hit from its payload and falling back to the row store for anything the
// payload is missing. When the vector index or the embedder is unreachable it
// degrades to a substring scan instead of failing the request.
func (s *Service) Search(ctx context.Context, params Params) ([]Result, error) {
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("Query embedding failed, falling back to text search", "error", err)
		return s.searchText(ctx, query, params.DocumentType, limit)
	}

	var filter *vectorstore.Filter
	if params.DocumentType != "" {
		filter = vectorstore.MatchField("document_type", string(params.DocumentType))
	}

	hits, err := s.vectors.SearchChunks(ctx, vector, uint64(limit), params.ScoreThreshold, filter)
	if err != nil {
		logger.Warn("Vector search failed, falling back to text search", "error", err)
		return s.searchText(ctx, query, params.DocumentType, limit)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		res, err := s.hydrate(ctx, hit)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.Warn("Search hit has no backing chunk row", "chunk_id", hit.ID)
				continue
			}
			return nil, fmt.Errorf("hydrate search hit %d: %w", hit.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) hydrate(ctx context.Context, hit vectorstore.Hit) (Result, error) {
	res := Result{
		ChunkID:       hit.ID,
		DocumentID:    payloadInt64(hit.Payload, "document_id"),
		DocumentTitle: payloadString(hit.Payload, "document_title"),
		DocumentType:  models.DocumentType(payloadString(hit.Payload, "document_type")),
		SectionTitle:  payloadString(hit.Payload, "section_title"),
		PageNumber:    int(payloadInt64(hit.Payload, "page_number")),
		Snippet:       truncate(payloadString(hit.Payload, "chunk_text"), snippetLimit),
		Similarity:    hit.Score,
	}

	// Older points may predate the payload fields; fill the gaps from the
	// row store.
	if res.Snippet == "" || res.DocumentID == 0 {
		chunk, err := s.chunks.GetByID(ctx, hit.ID)
		if err != nil {
			return Result{}, err
		}
		res.DocumentID = chunk.DocID
		res.SectionTitle = chunk.SectionTitle
		res.PageNumber = chunk.PageNumber
		res.Snippet = truncate(chunk.ChunkText, snippetLimit)
	}
	if res.DocumentTitle == "" && res.DocumentID != 0 {
		doc, err := s.docs.GetByID(ctx, res.DocumentID)
		if err != nil {
			return Result{}, err
		}
		res.DocumentTitle = doc.Title
		res.DocumentType = doc.DocumentType
	}
	return res, nil
}

func (s *Service) searchText(ctx context.Context, query string, docType models.DocumentType, limit int) ([]Result, error) {
	rows, err := s.chunks.SearchText(ctx, query, docType, limit)
	if err != nil {
		return nil, fmt.Errorf("text search fallback: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			ChunkID:       row.Chunk.ID,
			DocumentID:    row.Chunk.DocID,
			DocumentTitle: row.DocumentTitle,
			DocumentType:  row.DocumentType,
			SectionTitle:  row.Chunk.SectionTitle,
			PageNumber:    row.Chunk.PageNumber,
			Snippet:       truncate(row.Chunk.ChunkText, snippetLimit),
			Similarity:    fallbackSimilarity,
			Fallback:      true,
		})
	}
	return results, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	// Avoid splitting a multi-byte rune at the boundary.
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	return cut
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
