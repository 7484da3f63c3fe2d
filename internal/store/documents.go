package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"echograph/models"
)

// DocumentRepo persists Document rows.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

const documentColumns = `id, title, document_type, file_path, file_type, file_size,
	coalesce(author, ''), coalesce(category, ''), coalesce(tags, '{}'),
	coalesce(description, ''), coalesce(version, ''), status,
	coalesce(error_message, ''), upload_date, processed_date, updated_at`

// DocumentFilter narrows List; zero values mean unfiltered.
type DocumentFilter struct {
	DocumentType models.DocumentType
	Category     string
	Status       models.DocumentStatus
	Search       string
	Limit        int
	Offset       int
}

func (r *DocumentRepo) Create(ctx context.Context, d *models.Document) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO documents (title, document_type, file_path, file_type, file_size,
			author, category, tags, description, version, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, upload_date, updated_at`,
		d.Title, d.DocumentType, d.FilePath, d.FileType, d.FileSize,
		nullable(d.Author), nullable(d.Category), d.Tags,
		nullable(d.Description), nullable(d.Version), d.Status,
	).Scan(&d.ID, &d.UploadDate, &d.UpdatedAt)
	return mapError(err)
}

func (r *DocumentRepo) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	var d models.Document
	err := row.Scan(&d.ID, &d.Title, &d.DocumentType, &d.FilePath, &d.FileType,
		&d.FileSize, &d.Author, &d.Category, &d.Tags, &d.Description, &d.Version,
		&d.Status, &d.ErrorMessage, &d.UploadDate, &d.ProcessedDate, &d.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}

// List returns a filtered page of documents newest first, plus the total
// count matching the filter.
func (r *DocumentRepo) List(ctx context.Context, f DocumentFilter) ([]models.Document, int64, error) {
	var conds []string
	var args []any

	addCond := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.DocumentType != "" {
		addCond("document_type = $%d", f.DocumentType)
	}
	if f.Category != "" {
		addCond("category = $%d", f.Category)
	}
	if f.Status != "" {
		addCond("status = $%d", f.Status)
	}
	if f.Search != "" {
		addCond("title ILIKE $%d", "%"+f.Search+"%")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := `SELECT ` + documentColumns + ` FROM documents` + where +
		fmt.Sprintf(` ORDER BY upload_date DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.DocumentType, &d.FilePath, &d.FileType,
			&d.FileSize, &d.Author, &d.Category, &d.Tags, &d.Description, &d.Version,
			&d.Status, &d.ErrorMessage, &d.UploadDate, &d.ProcessedDate, &d.UpdatedAt); err != nil {
			return nil, 0, mapError(err)
		}
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

// UpdateStatus advances the state machine, clearing any stale error message
// on non-error transitions.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id int64, status models.DocumentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = $2, error_message = NULL, updated_at = now()
		WHERE id = $1`, id, status)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetError moves the document to the error state with a truncated message.
func (r *DocumentRepo) SetError(ctx context.Context, id int64, message string) error {
	const maxErrLen = 500
	if len(message) > maxErrLen {
		message = message[:maxErrLen]
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`, id, models.StatusError, message)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkReady finalizes processing: status ready and processed_date stamped.
func (r *DocumentRepo) MarkReady(ctx context.Context, id int64, processedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = $2, error_message = NULL,
			processed_date = $3, updated_at = now()
		WHERE id = $1`, id, models.StatusReady, processedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMetadata patches user-editable fields.
func (r *DocumentRepo) UpdateMetadata(ctx context.Context, d *models.Document) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET title = $2, category = $3, tags = $4,
			description = $5, version = $6, updated_at = now()
		WHERE id = $1`,
		d.ID, d.Title, nullable(d.Category), d.Tags, nullable(d.Description), nullable(d.Version))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the document row; chunks and relationships cascade.
func (r *DocumentRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountReadyExcluding counts other documents already in the ready state,
// used to decide whether relationship extraction is worth enqueueing.
func (r *DocumentRepo) CountReadyExcluding(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE status = $1 AND id <> $2`,
		models.StatusReady, id).Scan(&n)
	return n, mapError(err)
}

// Statistics tallies documents by type and status for the dashboard.
func (r *DocumentRepo) Statistics(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT document_type, status, count(*)
		FROM documents GROUP BY document_type, status`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	stats := map[string]int64{}
	for rows.Next() {
		var docType, status string
		var n int64
		if err := rows.Scan(&docType, &status, &n); err != nil {
			return nil, mapError(err)
		}
		stats["total"] += n
		stats[docType] += n
		stats["status_"+status] += n
	}
	return stats, rows.Err()
}

// nullable maps empty strings to NULL so optional columns stay unset.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
