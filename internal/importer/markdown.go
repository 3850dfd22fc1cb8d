package importer

import (
	"io"
	"strings"
)

// MarkdownImporter passes Markdown through unchanged apart from line-ending
// normalization.
type MarkdownImporter struct{}

func (p *MarkdownImporter) Import(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}
