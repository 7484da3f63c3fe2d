package models

import "time"

// DocumentChunk is one embedded text window of a document. Its row id doubles
// as the point id in the vector index chunks collection.
type DocumentChunk struct {
	ID           int64     `json:"id"`
	DocID        int64     `json:"doc_id"`
	ChunkIndex   int       `json:"chunk_index"`
	ChunkText    string    `json:"chunk_text"`
	CharCount    int       `json:"char_count"`
	SectionTitle string    `json:"section_title,omitempty"`
	SectionLevel int       `json:"section_level,omitempty"`
	PageNumber   int       `json:"page_number,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
