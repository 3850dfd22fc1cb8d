// Package aicontext extracts ai-context blocks from Markdown documents.
// These blocks carry briefing text for an external AI assistant and stay
// hidden from rendered output unless explicitly marked visible. Extraction
// is pure: it needs no render engine, no settings and no trust state, so
// integrations can call it on raw bytes or on an already parsed tree and
// get identical records.
package aicontext

import (
	"strings"

	"github.com/yuin/goldmark/ast"

	"github.com/dgallion1/docrender/internal/markdown"
)

// Record is one extracted ai-context block.
type Record struct {
	// Visible reports whether the block also renders for readers. Only a
	// visibility=visible attribute makes a block visible; absent or
	// unknown values fail closed to hidden.
	Visible bool `json:"visible"`
	// Content is the raw text between the fences, verbatim. Empty for
	// leaf directives.
	Content string `json:"content"`
	// SourceLine is the 1-based line of the opening fence.
	SourceLine int `json:"sourceLine"`
	// Metadata holds the "key: value" lines of the content, bullets
	// allowed, keys lowercased. When lowercasing collides, the first
	// occurrence wins.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Extract scans raw Markdown for ai-context directives. Containers yield
// their body, leaf directives yield body-less records. Fence lines inside
// fenced code blocks are ignored; an unclosed container yields a record
// running to the end of the input. Records appear in source order.
func Extract(content []byte) []Record {
	var recs []Record
	markdown.Scan(content, 0, func(ev markdown.ScanEvent) bool {
		if ev.Info.Name != markdown.AIContextDirective {
			return true
		}
		switch ev.Info.Kind {
		case markdown.FenceLeaf:
			recs = append(recs, Record{
				Visible:    visible(ev.Info.Attrs),
				SourceLine: markdown.LineNumber(content, ev.Offset),
			})
		case markdown.FenceContainerOpen:
			start := ev.Offset + len(ev.Line)
			stop := markdown.FindContainerClose(content, start)
			if stop < 0 {
				stop = len(content)
			}
			body := string(content[start:stop])
			recs = append(recs, Record{
				Visible:    visible(ev.Info.Attrs),
				Content:    body,
				SourceLine: markdown.LineNumber(content, ev.Offset),
				Metadata:   metadata(body),
			})
		}
		return true
	})
	return recs
}

// ExtractFromDocument walks an already parsed document and returns the
// same records Extract would produce for its source.
func ExtractFromDocument(doc *markdown.Document) []Record {
	var recs []Record
	_ = doc.Walk(func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch d := n.(type) {
		case *markdown.ContainerDirective:
			if d.Name != markdown.AIContextDirective {
				break
			}
			start, stop := d.ContentSpan(doc.Source)
			body := string(doc.Source[start:stop])
			recs = append(recs, Record{
				Visible:    visible(d.Attrs),
				Content:    body,
				SourceLine: markdown.LineNumber(doc.Source, d.Offset),
				Metadata:   metadata(body),
			})
		case *markdown.LeafDirective:
			if d.Name != markdown.AIContextDirective {
				break
			}
			recs = append(recs, Record{
				Visible:    visible(d.Attrs),
				SourceLine: markdown.LineNumber(doc.Source, d.Offset),
			})
		}
		return ast.WalkContinue, nil
	})
	return recs
}

// Has reports whether content contains at least one ai-context directive.
// It stops at the first occurrence and never allocates records.
func Has(content []byte) bool {
	found := false
	markdown.Scan(content, 0, func(ev markdown.ScanEvent) bool {
		if ev.Info.Name == markdown.AIContextDirective &&
			(ev.Info.Kind == markdown.FenceContainerOpen || ev.Info.Kind == markdown.FenceLeaf) {
			found = true
			return false
		}
		return true
	})
	return found
}

func visible(attrs []markdown.Attribute) bool {
	for _, a := range attrs {
		if a.Key == "visibility" {
			return strings.EqualFold(a.Value, "visible")
		}
	}
	return false
}

// metadata collects the "key: value" lines of a block body. A leading "-"
// or "*" bullet is allowed; the key is a single token and the colon must
// be followed by whitespace or end of line, which keeps URLs and prose
// out. Keys fold to lowercase with the first occurrence winning.
func metadata(body string) map[string]string {
	var meta map[string]string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 1 && (line[0] == '-' || line[0] == '*') && (line[1] == ' ' || line[1] == '\t') {
			line = strings.TrimSpace(line[2:])
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if value != "" && value[0] != ' ' && value[0] != '\t' {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		k := strings.ToLower(key)
		if meta == nil {
			meta = make(map[string]string)
		}
		if _, dup := meta[k]; !dup {
			meta[k] = strings.TrimSpace(value)
		}
	}
	return meta
}
