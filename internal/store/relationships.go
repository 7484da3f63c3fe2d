package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"echograph/models"
)

// RelationshipRepo persists DocumentRelationship rows.
type RelationshipRepo struct {
	pool *pgxpool.Pool
}

const relationshipColumns = `id, source_doc_id, target_doc_id, relationship_type,
	confidence, coalesce(summary, ''), details, validation_status,
	coalesce(validated_by, ''), coalesce(validation_notes, ''), validated_at,
	created_at, updated_at`

// InsertTx inserts one relationship inside an open transaction. A concurrent
// insert of the same (source, target) pair surfaces as ErrDuplicate without
// aborting the transaction.
func (r *RelationshipRepo) InsertTx(ctx context.Context, tx pgx.Tx, rel *models.DocumentRelationship) error {
	details, err := json.Marshal(rel.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal relationship details: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO document_relationships (source_doc_id, target_doc_id,
			relationship_type, confidence, summary, details, validation_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_doc_id, target_doc_id) DO NOTHING
		RETURNING id, created_at, updated_at`,
		rel.SourceDocID, rel.TargetDocID, rel.RelationshipType, rel.Confidence,
		rel.Summary, details, rel.ValidationStatus,
	).Scan(&rel.ID, &rel.CreatedAt, &rel.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: relationship %d->%d", ErrDuplicate, rel.SourceDocID, rel.TargetDocID)
	}
	return mapError(err)
}

// InsertRelationships commits a set of relationships in one transaction. Duplicate
// pairs are suppressed; the returned count is the number actually inserted.
func (s *Store) InsertRelationships(ctx context.Context, rels []models.DocumentRelationship) (int, error) {
	inserted := 0
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		for i := range rels {
			err := s.Relationships.InsertTx(ctx, tx, &rels[i])
			if errors.Is(err, ErrDuplicate) {
				continue
			}
			if err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Exists reports whether the ordered pair already has a relationship.
func (r *RelationshipRepo) Exists(ctx context.Context, sourceDocID, targetDocID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM document_relationships
			WHERE source_doc_id = $1 AND target_doc_id = $2
		)`, sourceDocID, targetDocID).Scan(&exists)
	return exists, mapError(err)
}

func (r *RelationshipRepo) GetByID(ctx context.Context, id int64) (*models.DocumentRelationship, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+relationshipColumns+` FROM document_relationships WHERE id = $1`, id)
	return scanRelationship(row)
}

// ListByDocument returns all edges touching a document from either side.
func (r *RelationshipRepo) ListByDocument(ctx context.Context, docID int64) ([]models.DocumentRelationship, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+relationshipColumns+` FROM document_relationships
		WHERE source_doc_id = $1 OR target_doc_id = $1
		ORDER BY confidence DESC`, docID)
	if err != nil {
		return nil, mapError(err)
	}
	return scanRelationships(rows)
}

// ListByPair returns edges between two documents in either direction with
// confidence at or above the floor.
func (r *RelationshipRepo) ListByPair(ctx context.Context, docA, docB int64, minConfidence float64) ([]models.DocumentRelationship, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+relationshipColumns+` FROM document_relationships
		WHERE ((source_doc_id = $1 AND target_doc_id = $2)
			OR (source_doc_id = $2 AND target_doc_id = $1))
			AND confidence >= $3
		ORDER BY confidence DESC`, docA, docB, minConfidence)
	if err != nil {
		return nil, mapError(err)
	}
	return scanRelationships(rows)
}

// ListPendingReview returns relationships awaiting a reviewer, oldest first.
func (r *RelationshipRepo) ListPendingReview(ctx context.Context, limit int) ([]models.DocumentRelationship, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+relationshipColumns+` FROM document_relationships
		WHERE validation_status IN ($1, $2)
		ORDER BY created_at ASC LIMIT $3`,
		models.ValidationAutoDetected, models.ValidationPendingReview, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return scanRelationships(rows)
}

// UpdateValidation records a review decision.
func (r *RelationshipRepo) UpdateValidation(ctx context.Context, id int64, status models.ValidationStatus, validatedBy, notes string, validatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE document_relationships
		SET validation_status = $2, validated_by = $3, validation_notes = $4,
			validated_at = $5, updated_at = now()
		WHERE id = $1`,
		id, status, validatedBy, nullable(notes), validatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Statistics tallies relationships by type and validation status.
func (r *RelationshipRepo) Statistics(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT relationship_type, validation_status, count(*)
		FROM document_relationships
		GROUP BY relationship_type, validation_status`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	stats := map[string]int64{}
	for rows.Next() {
		var relType, validation string
		var n int64
		if err := rows.Scan(&relType, &validation, &n); err != nil {
			return nil, mapError(err)
		}
		stats["total"] += n
		stats[relType] += n
		stats["validation_"+validation] += n
	}
	return stats, rows.Err()
}

func scanRelationship(row pgx.Row) (*models.DocumentRelationship, error) {
	var rel models.DocumentRelationship
	var details []byte
	err := row.Scan(&rel.ID, &rel.SourceDocID, &rel.TargetDocID, &rel.RelationshipType,
		&rel.Confidence, &rel.Summary, &details, &rel.ValidationStatus,
		&rel.ValidatedBy, &rel.ValidationNotes, &rel.ValidatedAt,
		&rel.CreatedAt, &rel.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rel.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal relationship details: %w", err)
		}
	}
	return &rel, nil
}

func scanRelationships(rows pgx.Rows) ([]models.DocumentRelationship, error) {
	defer rows.Close()

	var rels []models.DocumentRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, *rel)
	}
	return rels, rows.Err()
}
