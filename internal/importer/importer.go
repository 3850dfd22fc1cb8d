// Package importer converts foreign document formats to Markdown.
//
// Each Importer reads one source document and emits a Markdown string
// suitable for rendering or for saving into a docs tree. Conversion is
// structural, not typographic: headings, paragraphs, lists, tables and
// code blocks survive; fonts, colors and layout do not.
package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Importer converts a single document to Markdown.
type Importer interface {
	// Import reads the document from r and returns its Markdown rendition.
	// The filename is advisory (some formats key behavior off it).
	Import(r io.Reader, filename string) (string, error)
}

// SupportedExtensions maps lowercase file extensions to a short format label.
var SupportedExtensions = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
	".csv":      "csv",
	".html":     "html",
	".htm":      "html",
	".pdf":      "pdf",
	".docx":     "docx",
}

// IsSupportedExtension reports whether the filename's extension has an importer.
func IsSupportedExtension(filename string) bool {
	_, ok := SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ForFile returns the importer for the given filename based on its extension.
func ForFile(filename string) (Importer, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return &MarkdownImporter{}, nil
	case ".txt":
		return &TextImporter{}, nil
	case ".csv":
		return &CSVImporter{}, nil
	case ".html", ".htm":
		return &HTMLImporter{}, nil
	case ".pdf":
		return &PDFImporter{}, nil
	case ".docx":
		return &DOCXImporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// joinBlocks assembles Markdown blocks separated by blank lines. The result
// ends with a single newline, or is empty when there are no blocks.
func joinBlocks(blocks []string) string {
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}
