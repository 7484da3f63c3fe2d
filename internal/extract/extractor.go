package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"echograph/internal/config"
)

// Errors the pipeline distinguishes when extraction fails.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrExtractionEmpty   = errors.New("no text could be extracted")
)

// PageText is the extracted text of a single page, 1-based.
type PageText struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	OCR        bool   `json:"ocr,omitempty"`
}

// Paragraph is one DOCX paragraph with its style name.
type Paragraph struct {
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
}

// Metadata aggregates whatever the source format exposes. Absent fields stay
// empty; callers must not rely on any of them.
type Metadata struct {
	Pages    int    `json:"pages,omitempty"`
	Producer string `json:"producer,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Author   string `json:"author,omitempty"`
	Title    string `json:"title,omitempty"`
	Created  string `json:"created,omitempty"`
	Modified string `json:"modified,omitempty"`
}

// Result is the outcome of extracting one document. Text joins the per-page
// or per-paragraph text with "\n\n".
type Result struct {
	Text       string      `json:"text"`
	Pages      []PageText  `json:"pages,omitempty"`
	Paragraphs []Paragraph `json:"paragraphs,omitempty"`
	Tables     []string    `json:"tables,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// Extractor dispatches on file extension to the format-specific parsers.
type Extractor struct {
	config *config.Config
	ocr    *OCRClient
}

func NewExtractor(cfg *config.Config) *Extractor {
	e := &Extractor{config: cfg}
	if cfg.OCRServiceEnabled {
		e.ocr = NewOCRClient(cfg)
	}
	return e
}

// Extract converts a local file into plain text plus structure and metadata.
// Unknown extensions fail with ErrUnsupportedFormat; a document that parses
// but yields no text fails with ErrExtractionEmpty.
func (e *Extractor) Extract(ctx context.Context, path string) (*Result, error) {
	var (
		result *Result
		err    error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		result, err = e.extractPDF(ctx, path)
	case ".docx", ".doc":
		result, err = e.extractDOCX(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(result.Text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrExtractionEmpty, filepath.Base(path))
	}

	return result, nil
}
