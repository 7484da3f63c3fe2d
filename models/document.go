package models

import "time"

// DocumentType distinguishes authoritative norms from internal guidelines.
type DocumentType string

const (
	DocumentTypeNorm      DocumentType = "norm"
	DocumentTypeGuideline DocumentType = "guideline"
)

// DocumentStatus is the processing state machine of a document.
// Transitions: uploading → extracting → analyzing → embedding → ready,
// with error reachable from any stage.
type DocumentStatus string

const (
	StatusUploading  DocumentStatus = "uploading"
	StatusProcessing DocumentStatus = "processing"
	StatusExtracting DocumentStatus = "extracting"
	StatusAnalyzing  DocumentStatus = "analyzing"
	StatusEmbedding  DocumentStatus = "embedding"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

// Document is a regulatory document tracked through the ingestion pipeline.
// FilePath is the object name in the blob store, not a local path.
type Document struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	DocumentType  DocumentType   `json:"document_type"`
	FilePath      string         `json:"file_path"`
	FileType      string         `json:"file_type"`
	FileSize      int64          `json:"file_size"`
	Author        string         `json:"author,omitempty"`
	Category      string         `json:"category,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Description   string         `json:"description,omitempty"`
	Version       string         `json:"version,omitempty"`
	Status        DocumentStatus `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	UploadDate    time.Time      `json:"upload_date"`
	ProcessedDate *time.Time     `json:"processed_date,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the document has finished processing.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}
