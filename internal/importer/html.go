package importer

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLImporter converts HTML to Markdown. It walks the document body and
// emits one Markdown block per structural element: h1-h6 become headings,
// p paragraphs, blockquote quoted blocks, pre fenced code blocks, and the
// direct li children of ul/ol become list items. Chrome elements (script,
// style, nav, header, footer) are skipped. Nested lists are flattened into
// their parent item's text.
type HTMLImporter struct{}

func (p *HTMLImporter) Import(r io.Reader, filename string) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	root := findBody(doc)
	if root == nil {
		root = doc
	}

	var blocks []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := htmlHeadingLevel(n.Data); level > 0 {
				if t := textContent(n); t != "" {
					blocks = append(blocks, strings.Repeat("#", level)+" "+t)
				}
				return
			}
			switch n.Data {
			case "script", "style", "nav", "header", "footer":
				return
			case "p":
				if t := textContent(n); t != "" {
					blocks = append(blocks, t)
				}
				return
			case "blockquote":
				if t := textContent(n); t != "" {
					blocks = append(blocks, quoteBlock(t))
				}
				return
			case "pre":
				if code := preContent(n); code != "" {
					blocks = append(blocks, "```"+codeLanguage(n)+"\n"+code+"\n```")
				}
				return
			case "ul", "ol":
				if b := listBlock(n); b != "" {
					blocks = append(blocks, b)
				}
				return
			case "td", "th":
				if t := textContent(n); t != "" {
					blocks = append(blocks, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return joinBlocks(blocks), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}

func htmlHeadingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// textContent collects the text nodes under n, collapsing whitespace the way
// a browser would render inline content.
func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

// preContent preserves the raw text of a pre element, trimming only the
// surrounding newlines.
func preContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Trim(buf.String(), "\n")
}

// codeLanguage extracts a fence info string from a pre > code child carrying
// a "language-xxx" class, if present.
func codeLanguage(pre *html.Node) string {
	for c := pre.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "code" {
			continue
		}
		for _, attr := range c.Attr {
			if attr.Key != "class" {
				continue
			}
			for _, cls := range strings.Fields(attr.Val) {
				if lang, ok := strings.CutPrefix(cls, "language-"); ok && lang != "" {
					return lang
				}
			}
		}
	}
	return ""
}

func quoteBlock(t string) string {
	lines := strings.Split(t, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

func listBlock(n *html.Node) string {
	var items []string
	idx := 1
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		t := textContent(c)
		if t == "" {
			continue
		}
		if n.Data == "ol" {
			items = append(items, fmt.Sprintf("%d. %s", idx, t))
		} else {
			items = append(items, "- "+t)
		}
		idx++
	}
	return strings.Join(items, "\n")
}
