package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
)

// Document pairs a parsed Markdown AST with the source it was built from.
// Plugin transforms mutate the tree in place between parse and render.
type Document struct {
	Root   ast.Node
	Source []byte
}

// Walk visits every node of the document.
func (d *Document) Walk(fn ast.Walker) error {
	return ast.Walk(d.Root, fn)
}

// Text returns the plain text content of a node with soft breaks folded to
// newlines.
func (d *Document) Text(n ast.Node) string {
	return strings.TrimSpace(nodeText(n, d.Source))
}

// nodeText collects the text content of a goldmark AST node.
func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.FirstChild() == nil {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(nodeText(c, src))
		}
	}
	return buf.String()
}

// OutlineItem is one heading in a document outline.
type OutlineItem struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	ID    string `json:"id,omitempty"`
	Line  int    `json:"line"`
}

// Outline lists the headings of the document in source order.
func (d *Document) Outline() []OutlineItem {
	var items []OutlineItem
	_ = ast.Walk(d.Root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		item := OutlineItem{
			Level: h.Level,
			Title: strings.TrimSpace(nodeText(h, d.Source)),
		}
		if v, ok := h.AttributeString("id"); ok {
			if b, ok := v.([]byte); ok {
				item.ID = string(b)
			}
		}
		if h.Lines().Len() > 0 {
			item.Line = LineNumber(d.Source, h.Lines().At(0).Start)
		}
		items = append(items, item)
		return ast.WalkContinue, nil
	})
	return items
}

// PlainText flattens the whole document to text, block by block. Headings
// and paragraphs are separated by blank lines.
func (d *Document) PlainText() string {
	var parts []string
	for n := d.Root.FirstChild(); n != nil; n = n.NextSibling() {
		if t := strings.TrimSpace(nodeText(n, d.Source)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
