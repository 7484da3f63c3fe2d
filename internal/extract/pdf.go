package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"echograph/internal/logger"
)

// extractPDF reads the text layer page by page. Pages whose text layer is
// empty are sent to the OCR sidecar when one is configured; without OCR the
// page is kept as empty text so page numbering stays intact.
func (e *Extractor) extractPDF(ctx context.Context, path string) (*Result, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]PageText, 0, numPages)

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, PageText{PageNumber: i})
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text layer", "page", i, "error", err)
			text = ""
		}

		pt := PageText{PageNumber: i, Text: strings.TrimSpace(text)}

		if pt.Text == "" && e.ocr != nil {
			ocrText, ocrErr := e.ocr.ExtractPage(ctx, path, i)
			if ocrErr != nil {
				logger.Warn("OCR fallback failed", "page", i, "error", ocrErr)
			} else {
				pt.Text = strings.TrimSpace(ocrText)
				pt.OCR = true
			}
		}

		pages = append(pages, pt)
	}

	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}

	result := &Result{
		Text:  strings.Join(parts, "\n\n"),
		Pages: pages,
		Metadata: Metadata{
			Pages: numPages,
		},
	}

	info := reader.Trailer().Key("Info")
	if !info.IsNull() {
		result.Metadata.Producer = info.Key("Producer").RawString()
		result.Metadata.Creator = info.Key("Creator").RawString()
	}

	return result, nil
}
