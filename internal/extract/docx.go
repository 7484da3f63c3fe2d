package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"echograph/internal/logger"
)

// extractDOCX walks the document body in order: paragraphs first with their
// style names, then tables serialized row by row with cells joined by " | ".
// Core properties are read from docProps/core.xml; their absence is non-fatal.
func (e *Extractor) extractDOCX(_ context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DOCX: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat DOCX: %w", err)
	}

	doc, err := docx.Parse(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOCX: %w", err)
	}

	var (
		paragraphs []Paragraph
		tables     []string
	)

	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			text := strings.TrimSpace(it.String())
			if text == "" {
				continue
			}
			p := Paragraph{Text: text}
			if it.Properties != nil && it.Properties.Style != nil {
				p.Style = it.Properties.Style.Val
			}
			paragraphs = append(paragraphs, p)
		case *docx.Table:
			var rows []string
			for _, row := range it.TableRows {
				var cells []string
				for _, cell := range row.TableCells {
					var cellText []string
					for _, cp := range cell.Paragraphs {
						if t := strings.TrimSpace(cp.String()); t != "" {
							cellText = append(cellText, t)
						}
					}
					cells = append(cells, strings.Join(cellText, " "))
				}
				rows = append(rows, strings.Join(cells, " | "))
			}
			if len(rows) > 0 {
				tables = append(tables, strings.Join(rows, "\n"))
			}
		}
	}

	parts := make([]string, 0, len(paragraphs)+len(tables))
	for _, p := range paragraphs {
		parts = append(parts, p.Text)
	}
	parts = append(parts, tables...)

	result := &Result{
		Text:       strings.Join(parts, "\n\n"),
		Paragraphs: paragraphs,
		Tables:     tables,
	}

	if props, err := readCoreProperties(path); err != nil {
		logger.Debug("No core properties", "path", path, "error", err)
	} else {
		result.Metadata.Author = props.Creator
		result.Metadata.Title = props.Title
		result.Metadata.Created = props.Created
		result.Metadata.Modified = props.Modified
	}

	return result, nil
}

type coreProperties struct {
	Title    string `xml:"title"`
	Creator  string `xml:"creator"`
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
}

// readCoreProperties pulls docProps/core.xml out of the DOCX archive.
// go-docx does not surface it, so the zip entry is decoded directly.
func readCoreProperties(path string) (*coreProperties, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if zf.Name != "docProps/core.xml" {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		var props coreProperties
		if err := xml.NewDecoder(rc).Decode(&props); err != nil {
			return nil, err
		}
		return &props, nil
	}

	return nil, fmt.Errorf("docProps/core.xml not present")
}
