package pdf

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdfrag/internal/domain"
)

// Extractor reads PDF files and extracts plain text page by page.
// Pages that contain only whitespace are dropped; surviving pages keep
// their original 1-based page number for attribution.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

func (e *Extractor) Extract(path string) (domain.Document, error) {
	doc := domain.Document{Path: path, Name: filepath.Base(path)}
	file, reader, err := pdf.Open(path)
	if err != nil {
		return doc, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	total := reader.NumPage()
	for num := 1; num <= total; num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single malformed page should not sink the whole document.
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, domain.Page{Number: num, Text: text})
	}
	return doc, nil
}
