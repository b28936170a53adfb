// Package docparse extracts plain text from uploaded PRD files.
package docparse

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/caseforge/caseforge/internal/domain"
)

// FileType constants
const (
	FileTypePDF = "pdf"
	FileTypeMD  = "md"
	FileTypeTXT = "txt"
)

// DetectFileType detects file type from filename
func DetectFileType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return FileTypePDF
	case ".md", ".markdown":
		return FileTypeMD
	case ".txt":
		return FileTypeTXT
	default:
		return strings.TrimPrefix(ext, ".")
	}
}

// IsSupported checks if file type is supported
func IsSupported(fileType string) bool {
	switch fileType {
	case FileTypePDF, FileTypeMD, FileTypeTXT:
		return true
	}
	return false
}

// Parser turns an uploaded file into a ParsedDocument.
type Parser struct{}

// NewParser creates a new parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads the whole file and extracts its text. PDFs are extracted
// page by page; markdown and plain text pass through unchanged. Tables
// are not reconstructed from PDFs, so the table list is empty for now.
func (p *Parser) Parse(filename string, r io.Reader) (*domain.ParsedDocument, error) {
	fileType := DetectFileType(filename)
	if !IsSupported(fileType) {
		return nil, fmt.Errorf("unsupported file type: %s", fileType)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	switch fileType {
	case FileTypePDF:
		return parsePDF(data)
	default:
		return &domain.ParsedDocument{
			FullText:  string(data),
			Tables:    []domain.Table{},
			PageCount: 1,
		}, nil
	}
}

func parsePDF(data []byte) (*domain.ParsedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return &domain.ParsedDocument{
		FullText:  sb.String(),
		Tables:    []domain.Table{},
		PageCount: pages,
	}, nil
}
