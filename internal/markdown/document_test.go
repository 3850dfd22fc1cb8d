package markdown

import (
	"strings"
	"testing"
)

func TestDocument_Outline(t *testing.T) {
	src := `# Title

intro

## Section A

text

### Deep

## Section B
`
	c := NewConverter(Options{HeadingAnchors: true})
	doc, _ := c.Parse([]byte(src))
	items := doc.Outline()
	if len(items) != 4 {
		t.Fatalf("expected 4 headings, got %d: %+v", len(items), items)
	}
	if items[0].Title != "Title" || items[0].Level != 1 || items[0].Line != 1 {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if items[2].Title != "Deep" || items[2].Level != 3 {
		t.Errorf("unexpected third item: %+v", items[2])
	}
	if items[3].ID != "section-b" {
		t.Errorf("expected generated id %q, got %q", "section-b", items[3].ID)
	}
	if items[3].Line != 11 {
		t.Errorf("expected line 11 for Section B, got %d", items[3].Line)
	}
}

func TestDocument_PlainText(t *testing.T) {
	src := "# Head\n\nfirst *emphasis* here\n\n- one\n- two\n"
	c := NewConverter(Options{})
	doc, _ := c.Parse([]byte(src))
	text := doc.PlainText()
	if !strings.Contains(text, "Head") {
		t.Errorf("expected heading text, got %q", text)
	}
	if !strings.Contains(text, "first emphasis here") {
		t.Errorf("expected inline markup stripped, got %q", text)
	}
	if !strings.Contains(text, "one") || !strings.Contains(text, "two") {
		t.Errorf("expected list items, got %q", text)
	}
}

func TestDocument_TextOnCodeBlock(t *testing.T) {
	src := "```\nGET /api/users\n```\n"
	c := NewConverter(Options{})
	doc, _ := c.Parse([]byte(src))
	text := doc.PlainText()
	if !strings.Contains(text, "GET /api/users") {
		t.Errorf("expected code content in plain text, got %q", text)
	}
}
