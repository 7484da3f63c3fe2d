package models

import "time"

// RelationshipType classifies a directed edge between two documents.
type RelationshipType string

const (
	RelationshipCompliance RelationshipType = "compliance"
	RelationshipConflict   RelationshipType = "conflict"
	RelationshipReference  RelationshipType = "reference"
	RelationshipSimilar    RelationshipType = "similar"
	RelationshipSupersedes RelationshipType = "supersedes"
)

// ValidationStatus is the review lifecycle of an auto-detected relationship.
type ValidationStatus string

const (
	ValidationAutoDetected  ValidationStatus = "auto_detected"
	ValidationPendingReview ValidationStatus = "pending_review"
	ValidationApproved      ValidationStatus = "approved"
	ValidationRejected      ValidationStatus = "rejected"
)

// CanTransitionTo enforces the review lifecycle:
// auto_detected → pending_review → (approved | rejected).
func (v ValidationStatus) CanTransitionTo(next ValidationStatus) bool {
	switch v {
	case ValidationAutoDetected:
		return next == ValidationPendingReview
	case ValidationPendingReview:
		return next == ValidationApproved || next == ValidationRejected
	default:
		return false
	}
}

// RelationshipDetails is the structured evidence backing a relationship.
type RelationshipDetails struct {
	MatchedChunksCount int         `json:"matched_chunks_count"`
	AvgSimilarity      float64     `json:"avg_similarity"`
	MaxSimilarity      float64     `json:"max_similarity"`
	MinSimilarity      float64     `json:"min_similarity"`
	MatchedSections    []string    `json:"matched_sections"`
	ChunkPairs         []ChunkPair `json:"chunk_pairs"`
}

// ChunkPair records one matched chunk pair contributing to a relationship.
type ChunkPair struct {
	SourceChunkID int64   `json:"source_chunk_id"`
	TargetChunkID int64   `json:"target_chunk_id"`
	Score         float64 `json:"score"`
	SourceSection string  `json:"source_section,omitempty"`
	TargetSection string  `json:"target_section,omitempty"`
}

// DocumentRelationship is a typed edge between two distinct documents.
// At most one row exists per ordered (source, target) pair.
type DocumentRelationship struct {
	ID               int64                `json:"id"`
	SourceDocID      int64                `json:"source_doc_id"`
	TargetDocID      int64                `json:"target_doc_id"`
	RelationshipType RelationshipType     `json:"relationship_type"`
	Confidence       float64              `json:"confidence"`
	Summary          string               `json:"summary"`
	Details          *RelationshipDetails `json:"details,omitempty"`
	ValidationStatus ValidationStatus     `json:"validation_status"`
	ValidatedBy      string               `json:"validated_by,omitempty"`
	ValidationNotes  string               `json:"validation_notes,omitempty"`
	ValidatedAt      *time.Time           `json:"validated_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}
