package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"echograph/models"
)

// ChunkRepo persists DocumentChunk rows.
type ChunkRepo struct {
	pool *pgxpool.Pool
}

const chunkColumns = `id, doc_id, chunk_index, chunk_text, char_count,
	coalesce(section_title, ''), coalesce(section_level, 0),
	coalesce(page_number, 0), created_at`

// InsertBatchTx inserts chunks inside an open transaction and fills their ids
// in insertion order. The caller commits only after dependent side effects
// (vector upserts) succeed.
func (r *ChunkRepo) InsertBatchTx(ctx context.Context, tx pgx.Tx, chunks []models.DocumentChunk) error {
	for i := range chunks {
		c := &chunks[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO document_chunks (doc_id, chunk_index, chunk_text, char_count,
				section_title, section_level, page_number)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at`,
			c.DocID, c.ChunkIndex, c.ChunkText, c.CharCount,
			nullable(c.SectionTitle), nullableInt(c.SectionLevel), nullableInt(c.PageNumber),
		).Scan(&c.ID, &c.CreatedAt)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r *ChunkRepo) GetByID(ctx context.Context, id int64) (*models.DocumentChunk, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks WHERE id = $1`, id)

	var c models.DocumentChunk
	err := row.Scan(&c.ID, &c.DocID, &c.ChunkIndex, &c.ChunkText, &c.CharCount,
		&c.SectionTitle, &c.SectionLevel, &c.PageNumber, &c.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (r *ChunkRepo) GetByDocument(ctx context.Context, docID int64) ([]models.DocumentChunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks WHERE doc_id = $1 ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		var c models.DocumentChunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.ChunkIndex, &c.ChunkText, &c.CharCount,
			&c.SectionTitle, &c.SectionLevel, &c.PageNumber, &c.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, docID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM document_chunks WHERE doc_id = $1`, docID).Scan(&n)
	return n, mapError(err)
}

// DeleteByDocument removes all chunk rows of a document. Used when a ready
// document is reprocessed, before the new generation is inserted.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM document_chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

// TextSearchResult is one row of the substring fallback scan.
type TextSearchResult struct {
	Chunk         models.DocumentChunk
	DocumentTitle string
	DocumentType  models.DocumentType
}

// SearchText is the fallback read path when the vector index is unreachable:
// a case-insensitive substring scan over chunk text, joined with the owning
// document for hydration.
func (r *ChunkRepo) SearchText(ctx context.Context, query string, docType models.DocumentType, limit int) ([]TextSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	sql := `
		SELECT c.id, c.doc_id, c.chunk_index, c.chunk_text, c.char_count,
			coalesce(c.section_title, ''), coalesce(c.section_level, 0),
			coalesce(c.page_number, 0), c.created_at,
			d.title, d.document_type
		FROM document_chunks c
		JOIN documents d ON d.id = c.doc_id
		WHERE c.chunk_text ILIKE $1 AND d.status = 'ready'`
	args := []any{"%" + query + "%"}

	if docType != "" {
		sql += ` AND d.document_type = $2`
		args = append(args, docType)
	}
	sql += fmt.Sprintf(` ORDER BY c.doc_id, c.chunk_index LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var results []TextSearchResult
	for rows.Next() {
		var res TextSearchResult
		c := &res.Chunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.ChunkIndex, &c.ChunkText, &c.CharCount,
			&c.SectionTitle, &c.SectionLevel, &c.PageNumber, &c.CreatedAt,
			&res.DocumentTitle, &res.DocumentType); err != nil {
			return nil, mapError(err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// PersistChunks inserts chunk rows and runs index with their assigned ids
// before the transaction commits. If index fails (vector upsert refused),
// the rows are rolled back and the row store stays consistent with the
// vector index.
func (s *Store) PersistChunks(ctx context.Context, chunks []models.DocumentChunk, index func(context.Context, []models.DocumentChunk) error) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.Chunks.InsertBatchTx(ctx, tx, chunks); err != nil {
			return err
		}
		return index(ctx, chunks)
	})
}

func nullableInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}
